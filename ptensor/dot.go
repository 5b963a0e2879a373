package ptensor

import (
	"fmt"

	"github.com/IanQS/pTensor/core/ckkswrapper"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
)

// Dot multiplies the encrypted tensor a by b.
//
// When b is a vector (or a scalar) the result is the matrix-vector product
// of a with b: a rows×1 column, or a 1×rows row when asRowVector is set.
// Each entry costs one multiplication and one mask. The other form is
// cached as the transpose of the result whenever it fits the window.
//
// When both sides are matrices the result is the Hadamard product reduced
// over axis 0, which is the batch of column-wise inner products.
func (e *Engine) Dot(a *PTensor, b Operand, asRowVector bool) (*PTensor, error) {
	if a == nil || !a.Encrypted() {
		return nil, fmt.Errorf("dot: %w", ErrNotEncrypted)
	}
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("dot: %w", err)
	}
	bt := b.Tensor
	if bt.IsMatrix() {
		if !a.IsMatrix() {
			return nil, fmt.Errorf("dot: %w: %v with %v", ErrNotVector, a.Shape(), bt.Shape())
		}
		prod, err := e.Mul(a, b)
		if err != nil {
			return nil, fmt.Errorf("dot: %w", err)
		}
		return e.SumAxis(prod, 0)
	}

	vec, err := e.rowForm(bt)
	if err != nil {
		return nil, fmt.Errorf("dot: %w", err)
	}
	if vec.cols != a.cols {
		return nil, fmt.Errorf("dot: %w: %v with vector of length %d", ErrShapeMismatch, a.Shape(), vec.cols)
	}
	if asRowVector && a.rows > e.he.Window {
		return nil, fmt.Errorf("dot: %w: %d rows, window %d", ErrWindowOverflow, a.rows, e.he.Window)
	}

	var slots []complex128
	if b.Kind == PlainOperand {
		slots = e.he.Replicate(vec.plain[0])
	}
	// Two broadcast single values multiply into a broadcast product that
	// must not be slot-summed again.
	summed := !(a.cols == 1 && a.packing == Broadcast && vec.packing == Broadcast)

	col := make([]*rlwe.Ciphertext, a.rows)
	err = e.parallel(a.rows, func(ev *ckkswrapper.Evaluator, i int) error {
		var (
			prod *rlwe.Ciphertext
			err  error
		)
		if slots != nil {
			prod, err = ev.MulPlain(a.cipher[i], slots)
		} else {
			prod, err = ev.Mul(a.cipher[i], vec.cipher[0])
		}
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if summed {
			if prod, err = ev.SlotSum(prod); err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
		}
		if col[i], err = ev.Select(prod, 0); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dot: %w", err)
	}

	var row *rlwe.Ciphertext
	if a.rows <= e.he.Window {
		if row, err = e.gather(col); err != nil {
			return nil, fmt.Errorf("dot: %w", err)
		}
	}

	if asRowVector {
		return &PTensor{rows: 1, cols: a.rows, cipher: []*rlwe.Ciphertext{row}, cipherT: col}, nil
	}
	out := newCipher(a.rows, 1, col, Unprojected)
	if row != nil {
		out.cipherT = []*rlwe.Ciphertext{row}
	}
	return out, nil
}

// rowForm returns a 1×n view of the vector t.
func (e *Engine) rowForm(t *PTensor) (*PTensor, error) {
	if t.rows == 1 {
		return t, nil
	}
	return e.T(t)
}

// gather moves the slot-0 value of cts[i] to slot i and adds them into one
// row ciphertext.
func (e *Engine) gather(cts []*rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	moved := make([]*rlwe.Ciphertext, len(cts))
	err := e.parallel(len(cts), func(ev *ckkswrapper.Evaluator, i int) error {
		var err error
		if moved[i], err = ev.Rotate(cts[i], -i); err != nil {
			return fmt.Errorf("gather %d: %w", i, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accumulate(e.he.Evaluator(), moved)
}
