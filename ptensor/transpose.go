package ptensor

import (
	"fmt"

	"github.com/IanQS/pTensor/core/ckkswrapper"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
)

// T returns the transpose of t.
//
// Plaintext tensors are transposed directly. Encrypted tensors with a cached
// transpose swap the two ciphertext lists. Otherwise every output row j is
// assembled from the source rows: slot j of source row i is selected, rotated
// to slot i and accumulated. That costs rows×cols rotations and one level;
// the result caches the source rows as its own transpose when they hold one
// value per slot.
func (e *Engine) T(t *PTensor) (*PTensor, error) {
	if t == nil || t.rows == 0 {
		return nil, ErrEmptyTensor
	}
	if !t.Encrypted() {
		return &PTensor{rows: t.cols, cols: t.rows, plain: plainTranspose(t.plain)}, nil
	}
	if t.HasCachedTranspose() {
		return &PTensor{
			rows:    t.cols,
			cols:    t.rows,
			cipher:  t.cipherT,
			cipherT: t.cipher,
		}, nil
	}
	if t.rows > e.he.Window {
		return nil, fmt.Errorf("transpose: %w: %d rows, window %d", ErrWindowOverflow, t.rows, e.he.Window)
	}

	out := make([]*rlwe.Ciphertext, t.cols)
	err := e.parallel(t.cols, func(ev *ckkswrapper.Evaluator, j int) error {
		var acc *rlwe.Ciphertext
		for i, src := range t.cipher {
			sel, err := ev.Select(src, j)
			if err != nil {
				return fmt.Errorf("select (%d, %d): %w", i, j, err)
			}
			if sel, err = ev.Rotate(sel, j-i); err != nil {
				return fmt.Errorf("align (%d, %d): %w", i, j, err)
			}
			if acc == nil {
				acc = sel
				continue
			}
			if acc, err = ev.Add(acc, sel); err != nil {
				return fmt.Errorf("accumulate (%d, %d): %w", i, j, err)
			}
		}
		out[j] = acc
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transpose: %w", err)
	}
	res := &PTensor{rows: t.cols, cols: t.rows, cipher: out}
	if t.cols != 1 || t.packing == Unprojected {
		res.cipherT = t.cipher
	}
	return res, nil
}
