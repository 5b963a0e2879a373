package ptensor

import (
	"fmt"

	"github.com/IanQS/pTensor/core/ckkswrapper"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
)

// SumAxis reduces an encrypted tensor. Axis 0 adds the rows together into a
// 1×cols tensor. Axis 1 slot-sums every row into a rows×1 tensor whose rows
// broadcast their totals.
func (e *Engine) SumAxis(t *PTensor, axis int) (*PTensor, error) {
	if axis != 0 && axis != 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAxis, axis)
	}
	if t == nil || !t.Encrypted() {
		return nil, fmt.Errorf("sum(axis=%d): %w", axis, ErrUnencrypted)
	}
	if axis == 0 {
		acc, err := e.addRows(t.cipher)
		if err != nil {
			return nil, fmt.Errorf("sum(axis=0): %w", err)
		}
		return newCipher(1, t.cols, []*rlwe.Ciphertext{acc}, t.packing), nil
	}

	if t.cols == 1 && t.packing == Broadcast {
		return newCipher(t.rows, 1, t.cipher, Broadcast), nil
	}
	sums, err := e.slotSums(t.cipher)
	if err != nil {
		return nil, fmt.Errorf("sum(axis=1): %w", err)
	}
	return newCipher(t.rows, 1, sums, Broadcast), nil
}

// Sum reduces every element into a 1×1 tensor holding the total in slot 0
// only.
func (e *Engine) Sum(t *PTensor) (*PTensor, error) {
	cols, err := e.SumAxis(t, 1)
	if err != nil {
		return nil, err
	}
	total, err := e.addRows(cols.cipher)
	if err != nil {
		return nil, fmt.Errorf("sum: %w", err)
	}
	total, err = e.he.Evaluator().Select(total, 0)
	if err != nil {
		return nil, fmt.Errorf("sum: %w", err)
	}
	return newCipher(1, 1, []*rlwe.Ciphertext{total}, Unprojected), nil
}

func (e *Engine) addRows(cts []*rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	return accumulate(e.he.Evaluator(), cts)
}

func accumulate(ev *ckkswrapper.Evaluator, cts []*rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	acc := cts[0]
	for i, ct := range cts[1:] {
		var err error
		if acc, err = ev.Add(acc, ct); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	return acc, nil
}
