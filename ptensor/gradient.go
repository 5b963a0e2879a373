package ptensor

import (
	"fmt"

	"github.com/IanQS/pTensor/core/ckkswrapper"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
)

// Direction fixes the sign of a gradient update.
type Direction int

const (
	// Descent subtracts the scaled gradient from the weights.
	Descent Direction = iota
	// Ascent adds the scaled gradient to the weights.
	Ascent
)

func (d Direction) String() string {
	switch d {
	case Descent:
		return "descent"
	case Ascent:
		return "ascent"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// ApplyGradient updates weights held in repeated form, one row per feature
// with the feature's weight in every observation column. grad holds one value
// per feature, as a features×1 column or a 1×features row. Each value is
// projected across its weight row, scaled by rate and subtracted (Descent) or
// added (Ascent).
//
// rate may be a 1×1 plaintext or ciphertext operand, or the zero Operand for
// no scaling. The result keeps the shape of weights and drops its cached
// transpose.
func (e *Engine) ApplyGradient(weights, grad *PTensor, rate Operand, dir Direction) (*PTensor, error) {
	if dir != Descent && dir != Ascent {
		return nil, fmt.Errorf("apply gradient: %w: direction %d", ErrInvalidOp, int(dir))
	}
	if weights == nil || !weights.Encrypted() || grad == nil || !grad.Encrypted() {
		return nil, fmt.Errorf("apply gradient: %w", ErrNotEncrypted)
	}
	if grad.IsMatrix() {
		return nil, fmt.Errorf("apply gradient: %w: gradient %v", ErrNotVector, grad.Shape())
	}
	if n := max(grad.rows, grad.cols); n != weights.rows {
		return nil, fmt.Errorf("apply gradient: %w: %d gradient values for %d weight rows", ErrShapeMismatch, n, weights.rows)
	}
	var scale []complex128
	if rate.Tensor != nil {
		if err := rate.validate(); err != nil {
			return nil, fmt.Errorf("apply gradient: %w", err)
		}
		if !rate.Tensor.IsScalar() {
			return nil, fmt.Errorf("apply gradient: %w: rate %v", ErrInvalidOperand, rate.Tensor.Shape())
		}
		if rate.Kind == PlainOperand {
			scale = e.rowSlots(weights, rate.Tensor.plain[0][0])
		}
	}

	values, err := e.featureValues(grad)
	if err != nil {
		return nil, fmt.Errorf("apply gradient: %w", err)
	}
	var rateCt *rlwe.Ciphertext
	if rate.Tensor != nil && rate.Kind == CipherOperand {
		rateCt = rate.Tensor.cipher[0]
		if rate.Tensor.packing == Unprojected {
			if rateCt, err = e.he.Evaluator().SlotSum(rateCt); err != nil {
				return nil, fmt.Errorf("apply gradient: rate: %w", err)
			}
		}
	}
	// A broadcast single-column weight tensor takes the update in every slot.
	masked := !(weights.cols == 1 && weights.packing == Broadcast)

	rows := make([]*rlwe.Ciphertext, weights.rows)
	err = e.parallel(weights.rows, func(ev *ckkswrapper.Evaluator, f int) error {
		update := values[f]
		var err error
		switch {
		case scale != nil:
			update, err = ev.MulPlain(update, scale)
		case rateCt != nil:
			if update, err = ev.Mul(update, rateCt); err == nil && masked {
				update, err = ev.Mask(update, weights.cols)
			}
		case masked:
			update, err = ev.Mask(update, weights.cols)
		}
		if err != nil {
			return fmt.Errorf("feature %d: %w", f, err)
		}
		if dir == Descent {
			rows[f], err = ev.Sub(weights.cipher[f], update)
		} else {
			rows[f], err = ev.Add(weights.cipher[f], update)
		}
		if err != nil {
			return fmt.Errorf("feature %d: %w", f, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply gradient: %w", err)
	}
	return newCipher(weights.rows, weights.cols, rows, weights.packing), nil
}

// featureValues returns one ciphertext per gradient value, each holding that
// value in every slot of the window.
func (e *Engine) featureValues(grad *PTensor) ([]*rlwe.Ciphertext, error) {
	n := max(grad.rows, grad.cols)
	values := make([]*rlwe.Ciphertext, n)
	packing := Unprojected
	switch {
	case grad.cols == 1:
		copy(values, grad.cipher)
		packing = grad.packing
	case grad.HasCachedTranspose():
		copy(values, grad.cipherT)
	default:
		err := e.parallel(n, func(ev *ckkswrapper.Evaluator, f int) error {
			sel, err := ev.Select(grad.cipher[0], f)
			if err != nil {
				return fmt.Errorf("feature %d: %w", f, err)
			}
			if values[f], err = ev.Rotate(sel, f); err != nil {
				return fmt.Errorf("feature %d: %w", f, err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if packing == Broadcast {
		return values, nil
	}
	return e.slotSums(values)
}

// rowSlots lays the plaintext scalar v out across a row of t.
func (e *Engine) rowSlots(t *PTensor, v complex128) []complex128 {
	if t.cols == 1 && t.packing == Broadcast {
		return e.he.Fill(v)
	}
	return e.he.Scaled(t.cols, v)
}
