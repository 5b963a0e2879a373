package ptensor

import (
	"fmt"

	"github.com/IanQS/pTensor/core/ckkswrapper"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
)

// Vstack places the rows of b below the rows of a. Both tensors must share
// a form and a column count. Stacking ciphertexts is free: the row lists are
// concatenated and any cached transpose is dropped.
func (e *Engine) Vstack(a, b *PTensor) (*PTensor, error) {
	if a == nil || b == nil || a.rows == 0 || b.rows == 0 {
		return nil, ErrEmptyTensor
	}
	if a.Encrypted() != b.Encrypted() {
		return nil, fmt.Errorf("vstack: %w", ErrMixedForms)
	}
	if a.cols != b.cols {
		return nil, fmt.Errorf("vstack: %w: %v over %v", ErrShapeMismatch, a.Shape(), b.Shape())
	}
	rows := a.rows + b.rows
	if !a.Encrypted() {
		return &PTensor{rows: rows, cols: a.cols, plain: append(a.Plain(), b.Plain()...)}, nil
	}
	if a.cols == 1 && a.packing != b.packing {
		return nil, fmt.Errorf("vstack: %w: %v over %v", ErrShapeMismatch, a.packing, b.packing)
	}
	cts := make([]*rlwe.Ciphertext, 0, rows)
	cts = append(append(cts, a.cipher...), b.cipher...)
	return newCipher(rows, a.cols, cts, a.packing), nil
}

// Hstack places the columns of b to the right of the columns of a. Both
// tensors must share a form and a row count. Ciphertext rows of b are
// rotated into place, so the combined width must fit the window; broadcast
// single-column inputs are first reduced to slot 0, which costs one level.
func (e *Engine) Hstack(a, b *PTensor) (*PTensor, error) {
	if a == nil || b == nil || a.rows == 0 || b.rows == 0 {
		return nil, ErrEmptyTensor
	}
	if a.Encrypted() != b.Encrypted() {
		return nil, fmt.Errorf("hstack: %w", ErrMixedForms)
	}
	if a.rows != b.rows {
		return nil, fmt.Errorf("hstack: %w: %v beside %v", ErrShapeMismatch, a.Shape(), b.Shape())
	}
	cols := a.cols + b.cols
	if !a.Encrypted() {
		plain := a.Plain()
		for i := range plain {
			plain[i] = append(plain[i], b.plain[i]...)
		}
		return &PTensor{rows: a.rows, cols: cols, plain: plain}, nil
	}
	if cols > e.he.Window {
		return nil, fmt.Errorf("hstack: %w: %d columns, window %d", ErrWindowOverflow, cols, e.he.Window)
	}

	out := make([]*rlwe.Ciphertext, a.rows)
	err := e.parallel(a.rows, func(ev *ckkswrapper.Evaluator, i int) error {
		left, err := firstSlots(ev, a, i)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		right, err := firstSlots(ev, b, i)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if right, err = ev.Rotate(right, -a.cols); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if out[i], err = ev.Add(left, right); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hstack: %w", err)
	}
	return newCipher(a.rows, cols, out, Unprojected), nil
}

// firstSlots returns row i of t with its values confined to [0, cols).
func firstSlots(ev *ckkswrapper.Evaluator, t *PTensor, i int) (*rlwe.Ciphertext, error) {
	if t.cols == 1 && t.packing == Broadcast {
		return ev.Select(t.cipher[i], 0)
	}
	return t.cipher[i], nil
}
