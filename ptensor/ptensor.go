// Package ptensor is the encrypted tensor algebra engine. A PTensor is a
// rank ≤ 2 matrix held either as plaintext rows or as one CKKS ciphertext
// per row; an Engine bound to one homomorphic session derives broadcasting,
// reductions, inner products, transposition and gradient updates from the
// provider's add, multiply, rotate and slot-sum primitives.
package ptensor

import (
	"fmt"

	"github.com/IanQS/pTensor/tensor"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
	"golang.org/x/exp/constraints"
)

// ScalarPacking describes where a single-column ciphertext keeps its value.
type ScalarPacking int

const (
	// Unprojected keeps the value in slot 0 only.
	Unprojected ScalarPacking = iota
	// Broadcast repeats the value across every slot of the window.
	Broadcast
)

func (p ScalarPacking) String() string {
	switch p {
	case Unprojected:
		return "unprojected"
	case Broadcast:
		return "broadcast"
	}
	return fmt.Sprintf("ScalarPacking(%d)", int(p))
}

// PTensor is an immutable rows×cols tensor. Exactly one of the plaintext and
// ciphertext forms is populated. Ciphertexts are never modified after they
// are stored in a PTensor, so tensors may share them.
type PTensor struct {
	rows, cols int

	plain   [][]complex128
	cipher  []*rlwe.Ciphertext
	cipherT []*rlwe.Ciphertext // optional cached transpose, one per column

	packing ScalarPacking
}

// FromRows builds a plaintext tensor from complex rows.
func FromRows(rows [][]complex128) (*PTensor, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmptyTensor
	}
	cols := len(rows[0])
	plain := make([][]complex128, len(rows))
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrShapeMismatch, i, len(row), cols)
		}
		plain[i] = append([]complex128(nil), row...)
	}
	return &PTensor{rows: len(rows), cols: cols, plain: plain}, nil
}

// FromReal builds a plaintext tensor from real rows of any numeric type.
func FromReal[T constraints.Integer | constraints.Float](rows [][]T) (*PTensor, error) {
	c := make([][]complex128, len(rows))
	for i, row := range rows {
		c[i] = make([]complex128, len(row))
		for j, v := range row {
			c[i][j] = complex(float64(v), 0)
		}
	}
	return FromRows(c)
}

// FromTensor converts a plaintext tensor.
func FromTensor(t *tensor.Tensor) (*PTensor, error) {
	return FromReal(t.Rows())
}

// FromCiphertexts wraps ciphertexts received from elsewhere, one per row.
// transpose may be nil; when given it holds one ciphertext per column.
func FromCiphertexts(rows, cols int, cts, transpose []*rlwe.Ciphertext, packing ScalarPacking) (*PTensor, error) {
	if rows == 0 || cols == 0 {
		return nil, ErrEmptyTensor
	}
	if len(cts) != rows {
		return nil, fmt.Errorf("%w: %d ciphertexts for %d rows", ErrShapeMismatch, len(cts), rows)
	}
	if transpose != nil && len(transpose) != cols {
		return nil, fmt.Errorf("%w: %d transpose ciphertexts for %d columns", ErrShapeMismatch, len(transpose), cols)
	}
	return &PTensor{
		rows:    rows,
		cols:    cols,
		cipher:  append([]*rlwe.Ciphertext(nil), cts...),
		cipherT: append([]*rlwe.Ciphertext(nil), transpose...),
		packing: packing,
	}, nil
}

func newCipher(rows, cols int, cts []*rlwe.Ciphertext, packing ScalarPacking) *PTensor {
	if cols != 1 {
		packing = Unprojected
	}
	return &PTensor{rows: rows, cols: cols, cipher: cts, packing: packing}
}

// Rows returns the number of logical rows.
func (t *PTensor) Rows() int { return t.rows }

// Cols returns the number of logical columns.
func (t *PTensor) Cols() int { return t.cols }

// Shape returns (rows, cols).
func (t *PTensor) Shape() Shape { return Shape{Rows: t.rows, Cols: t.cols} }

// Encrypted reports whether the tensor holds ciphertexts.
func (t *PTensor) Encrypted() bool { return t.cipher != nil }

// Packing reports how a single-column ciphertext tensor stores its values.
func (t *PTensor) Packing() ScalarPacking { return t.packing }

// HasCachedTranspose reports whether T is free.
func (t *PTensor) HasCachedTranspose() bool { return len(t.cipherT) > 0 }

// IsScalar reports a 1×1 shape.
func (t *PTensor) IsScalar() bool { return t.rows == 1 && t.cols == 1 }

// IsVector reports that exactly one dimension is 1.
func (t *PTensor) IsVector() bool { return (t.rows == 1) != (t.cols == 1) }

// IsMatrix reports that neither dimension is 1.
func (t *PTensor) IsMatrix() bool { return t.rows != 1 && t.cols != 1 }

// Plain returns a copy of the plaintext rows, or nil for ciphertext tensors.
func (t *PTensor) Plain() [][]complex128 {
	if t.plain == nil {
		return nil
	}
	out := make([][]complex128, len(t.plain))
	for i, row := range t.plain {
		out[i] = append([]complex128(nil), row...)
	}
	return out
}

// Real returns the real parts of the plaintext rows as a tensor.
func (t *PTensor) Real() *tensor.Tensor {
	out := tensor.New(t.rows, t.cols)
	for i, row := range t.plain {
		for j, v := range row {
			out.Data[i*t.cols+j] = real(v)
		}
	}
	return out
}

// Ciphertexts returns the row ciphertexts.
func (t *PTensor) Ciphertexts() []*rlwe.Ciphertext {
	return append([]*rlwe.Ciphertext(nil), t.cipher...)
}

// CachedTranspose returns the cached column ciphertexts, if any.
func (t *PTensor) CachedTranspose() []*rlwe.Ciphertext {
	return append([]*rlwe.Ciphertext(nil), t.cipherT...)
}

// Level returns the lowest level among the row ciphertexts, or -1 for
// plaintext tensors.
func (t *PTensor) Level() int {
	if !t.Encrypted() {
		return -1
	}
	level := t.cipher[0].Level()
	for _, ct := range t.cipher[1:] {
		level = min(level, ct.Level())
	}
	return level
}

func (t *PTensor) String() string {
	form := "plaintext"
	if t.Encrypted() {
		form = "encrypted"
	}
	return fmt.Sprintf("PTensor(%d, %d, %s)", t.rows, t.cols, form)
}

// OperandKind tags the form of a right-hand operand.
type OperandKind int

const (
	PlainOperand OperandKind = iota
	CipherOperand
)

// Operand is the right-hand side of an engine operation: either a plaintext
// or a ciphertext tensor.
type Operand struct {
	Kind   OperandKind
	Tensor *PTensor
}

// Plain tags t as a plaintext operand.
func Plain(t *PTensor) Operand { return Operand{Kind: PlainOperand, Tensor: t} }

// Cipher tags t as a ciphertext operand.
func Cipher(t *PTensor) Operand { return Operand{Kind: CipherOperand, Tensor: t} }

// Of tags t by its current form.
func Of(t *PTensor) Operand {
	if t != nil && t.Encrypted() {
		return Cipher(t)
	}
	return Plain(t)
}

// Scalar wraps v as a 1×1 plaintext operand.
func Scalar(v float64) Operand {
	return Plain(&PTensor{rows: 1, cols: 1, plain: [][]complex128{{complex(v, 0)}}})
}

// Vector wraps v as a 1×len(v) plaintext operand.
func Vector(v []float64) Operand {
	row := make([]complex128, len(v))
	for i, x := range v {
		row[i] = complex(x, 0)
	}
	return Plain(&PTensor{rows: 1, cols: len(v), plain: [][]complex128{row}})
}

// Matrix wraps rows as a plaintext operand. Ragged rows yield an operand
// that the engine rejects.
func Matrix(rows [][]float64) Operand {
	t, err := FromReal(rows)
	if err != nil {
		return Plain(nil)
	}
	return Plain(t)
}

func (o Operand) validate() error {
	t := o.Tensor
	if t == nil || t.rows == 0 || t.cols == 0 {
		return ErrEmptyTensor
	}
	switch o.Kind {
	case CipherOperand:
		if !t.Encrypted() {
			return fmt.Errorf("%w: ciphertext operand %v", ErrNotEncrypted, t)
		}
	case PlainOperand:
		if t.plain == nil {
			return fmt.Errorf("%w: plaintext operand %v holds no plaintext", ErrInvalidOperand, t)
		}
	default:
		return fmt.Errorf("%w: kind %d", ErrInvalidOperand, o.Kind)
	}
	return nil
}
