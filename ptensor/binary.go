package ptensor

import (
	"fmt"

	"github.com/IanQS/pTensor/core/ckkswrapper"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
)

// Op selects the elementwise operation of Binary.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
)

func (op Op) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mult"
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// Add returns a + b.
func (e *Engine) Add(a *PTensor, b Operand) (*PTensor, error) { return e.Binary(OpAdd, a, b) }

// Sub returns a - b.
func (e *Engine) Sub(a *PTensor, b Operand) (*PTensor, error) { return e.Binary(OpSub, a, b) }

// Mul returns the elementwise product a * b.
func (e *Engine) Mul(a *PTensor, b Operand) (*PTensor, error) { return e.Binary(OpMul, a, b) }

// Binary applies op between the encrypted tensor a and b row by row. A side
// with a single row is reused for every output row. A side with a single
// column is spread across the output row: its value is slot-summed into
// every slot unless already broadcast, then masked back to the row width for
// add and sub so that slots past the row stay zero.
func (e *Engine) Binary(op Op, a *PTensor, b Operand) (*PTensor, error) {
	if op < OpAdd || op > OpMul {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOp, int(op))
	}
	if a == nil || !a.Encrypted() {
		return nil, fmt.Errorf("%v: %w", op, ErrNotEncrypted)
	}
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", op, err)
	}
	bt := b.Tensor

	out, err := ResolveShapes(a.Shape(), bt.Shape())
	if err != nil {
		return nil, err
	}
	if out.Cols > e.he.Window {
		return nil, fmt.Errorf("%v: %w: %d columns, window %d", op, ErrWindowOverflow, out.Cols, e.he.Window)
	}

	left, leftPacking, err := e.spread(op, a, out.Cols)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", op, err)
	}

	rows := make([]*rlwe.Ciphertext, out.Rows)
	packing := leftPacking

	switch b.Kind {
	case CipherOperand:
		var (
			right        []*rlwe.Ciphertext
			rightPacking ScalarPacking
		)
		right, rightPacking, err = e.spread(op, bt, out.Cols)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", op, err)
		}
		if out.Cols == 1 && op != OpMul && leftPacking != rightPacking {
			if leftPacking == Unprojected {
				left, err = e.slotSums(left)
			} else {
				right, err = e.slotSums(right)
			}
			if err != nil {
				return nil, fmt.Errorf("%v: %w", op, err)
			}
			leftPacking, rightPacking = Broadcast, Broadcast
		}
		packing = leftPacking
		if op == OpMul && rightPacking != Broadcast {
			packing = Unprojected
		}

		err = e.parallel(out.Rows, func(ev *ckkswrapper.Evaluator, i int) error {
			x, y := left[source(i, len(left))], right[source(i, len(right))]
			var err error
			switch op {
			case OpAdd:
				rows[i], err = ev.Add(x, y)
			case OpSub:
				rows[i], err = ev.Sub(x, y)
			case OpMul:
				rows[i], err = ev.Mul(x, y)
			}
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			return nil
		})

	case PlainOperand:
		vecs := make([][]complex128, bt.rows)
		for r, row := range bt.plain {
			if len(row) > e.he.Window {
				return nil, fmt.Errorf("%v: %w: %d columns, window %d", op, ErrWindowOverflow, len(row), e.he.Window)
			}
			vecs[r] = e.plainSlots(row, out.Cols, leftPacking)
		}

		err = e.parallel(out.Rows, func(ev *ckkswrapper.Evaluator, i int) error {
			x, v := left[source(i, len(left))], vecs[source(i, len(vecs))]
			var err error
			switch op {
			case OpAdd:
				rows[i], err = ev.AddPlain(x, v)
			case OpSub:
				rows[i], err = ev.SubPlain(x, v)
			case OpMul:
				rows[i], err = ev.MulPlain(x, v)
			}
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			return nil
		})
	}
	if err != nil {
		return nil, fmt.Errorf("%v: %w", op, err)
	}
	return newCipher(out.Rows, out.Cols, rows, packing), nil
}

// spread prepares the row ciphertexts of a single-column tensor that is
// stretched across outCols columns. Other tensors are returned unchanged.
func (e *Engine) spread(op Op, t *PTensor, outCols int) ([]*rlwe.Ciphertext, ScalarPacking, error) {
	if t.cols != 1 {
		return t.cipher, Unprojected, nil
	}
	if outCols == 1 {
		return t.cipher, t.packing, nil
	}
	cts := t.cipher
	if t.packing == Unprojected {
		var err error
		if cts, err = e.slotSums(cts); err != nil {
			return nil, 0, err
		}
	}
	if op == OpMul {
		return cts, Broadcast, nil
	}
	masked := make([]*rlwe.Ciphertext, len(cts))
	err := e.parallel(len(cts), func(ev *ckkswrapper.Evaluator, i int) error {
		var err error
		masked[i], err = ev.Mask(cts[i], outCols)
		return err
	})
	return masked, Unprojected, err
}

func (e *Engine) slotSums(cts []*rlwe.Ciphertext) ([]*rlwe.Ciphertext, error) {
	out := make([]*rlwe.Ciphertext, len(cts))
	err := e.parallel(len(cts), func(ev *ckkswrapper.Evaluator, i int) error {
		var err error
		out[i], err = ev.SlotSum(cts[i])
		return err
	})
	return out, err
}

// plainSlots lays a plaintext row out to match a left operand of outCols
// columns.
func (e *Engine) plainSlots(row []complex128, outCols int, leftPacking ScalarPacking) []complex128 {
	switch {
	case len(row) == 1 && outCols > 1:
		return e.he.Scaled(outCols, row[0])
	case outCols == 1 && leftPacking == Broadcast:
		return e.he.Fill(row[0])
	}
	return e.he.Replicate(row)
}
