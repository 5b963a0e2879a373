// Package tensor holds plaintext rank-2 tensors: the values the encrypted
// engine packs, and the reference algebra its results are checked against.
package tensor

import (
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/mat"
)

// ErrRagged is returned when rows of a literal have different lengths.
var ErrRagged = errors.New("tensor: rows have different lengths")

// Tensor is a row-major matrix backed by a flat []float64.
// A 1-D tensor of length n behaves as a 1×n row.
type Tensor struct {
	Data  []float64
	Shape []int
}

// New allocates a zero Tensor of the given shape.
func New(shape ...int) *Tensor {
	total := 1
	for _, d := range shape {
		total *= d
	}
	return &Tensor{
		Data:  make([]float64, total),
		Shape: append([]int(nil), shape...),
	}
}

// NewWithData creates a 1-D tensor from a copy of data.
func NewWithData(data []float64) *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), data...),
		Shape: []int{len(data)},
	}
}

// FromRows builds a rows×cols tensor from row literals.
func FromRows[T constraints.Integer | constraints.Float](rows [][]T) (*Tensor, error) {
	if len(rows) == 0 {
		return New(0, 0), nil
	}
	cols := len(rows[0])
	out := New(len(rows), cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrRagged, i, len(row), cols)
		}
		for j, v := range row {
			out.Data[i*cols+j] = float64(v)
		}
	}
	return out, nil
}

// Dims returns (rows, cols).
func (t *Tensor) Dims() (int, int) {
	switch len(t.Shape) {
	case 0:
		return 0, 0
	case 1:
		return 1, t.Shape[0]
	}
	return t.Shape[0], t.Shape[1]
}

// Rows returns a copy of the data as row slices.
func (t *Tensor) Rows() [][]float64 {
	r, c := t.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = append([]float64(nil), t.Data[i*c:(i+1)*c]...)
	}
	return out
}

// At returns the element at (i, j).
func (t *Tensor) At(i, j int) float64 {
	r, c := t.Dims()
	if i < 0 || i >= r || j < 0 || j >= c {
		panic(fmt.Sprintf("At: index (%d, %d) out of bounds for shape %v", i, j, t.Shape))
	}
	return t.Data[i*c+j]
}

// Set sets the element at (i, j).
func (t *Tensor) Set(value float64, i, j int) {
	r, c := t.Dims()
	if i < 0 || i >= r || j < 0 || j >= c {
		panic(fmt.Sprintf("Set: index (%d, %d) out of bounds for shape %v", i, j, t.Shape))
	}
	t.Data[i*c+j] = value
}

// Transpose returns a new cols×rows tensor.
func Transpose(t *Tensor) *Tensor {
	r, c := t.Dims()
	out := New(c, r)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Data[j*r+i] = t.Data[i*c+j]
		}
	}
	return out
}

// Identity returns the n×n identity matrix.
func Identity(n int) *Tensor {
	out := New(n, n)
	for i := 0; i < n; i++ {
		out.Data[i*n+i] = 1
	}
	return out
}

// Vstack stacks b below a. Column counts must match.
func Vstack(a, b *Tensor) (*Tensor, error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ac != bc {
		return nil, fmt.Errorf("Vstack: column mismatch %d vs %d", ac, bc)
	}
	out := New(ar+br, ac)
	copy(out.Data, a.Data)
	copy(out.Data[ar*ac:], b.Data)
	return out, nil
}

// Dense converts t to a gonum matrix.
func (t *Tensor) Dense() *mat.Dense {
	r, c := t.Dims()
	return mat.NewDense(r, c, append([]float64(nil), t.Data...))
}

// FromDense converts a gonum matrix to a Tensor.
func FromDense(m mat.Matrix) *Tensor {
	r, c := m.Dims()
	out := New(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Data[i*c+j] = m.At(i, j)
		}
	}
	return out
}

// MatMul returns a×b, or an error if the inner dimensions differ.
func MatMul(a, b *Tensor) (*Tensor, error) {
	_, k := a.Dims()
	k2, _ := b.Dims()
	if k != k2 {
		return nil, fmt.Errorf("inner dimensions must match: %d vs %d", k, k2)
	}
	var out mat.Dense
	out.Mul(a.Dense(), b.Dense())
	return FromDense(&out), nil
}
