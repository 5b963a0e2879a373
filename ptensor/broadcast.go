package ptensor

import "fmt"

// Shape is a (rows, cols) pair.
type Shape struct {
	Rows, Cols int
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d)", s.Rows, s.Cols)
}

// ResolveShapes resolves the output shape of an elementwise operation. Rows must
// be equal or one side must have a single row. Columns are not checked: a
// packed ciphertext does not reveal its length, so the caller is trusted and
// the wider side wins.
func ResolveShapes(a, b Shape) (Shape, error) {
	if a.Rows != b.Rows && min(a.Rows, b.Rows) != 1 {
		return Shape{}, &BroadcastError{Left: a, Right: b}
	}
	return Shape{Rows: max(a.Rows, b.Rows), Cols: max(a.Cols, b.Cols)}, nil
}

// source picks the row of an operand with n rows that feeds output row i.
func source(i, n int) int {
	if n == 1 {
		return 0
	}
	return i
}
