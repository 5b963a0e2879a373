package ckkswrapper

import (
	"fmt"
	"sync/atomic"

	"github.com/IanQS/pTensor/utils"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
	"github.com/tuneinsight/lattigo/v5/he/hefloat"
)

// Counters tallies primitive calls across every evaluator of a session.
type Counters struct {
	rotations atomic.Int64
	muls      atomic.Int64
	rescales  atomic.Int64
	adds      atomic.Int64
}

// CounterSnapshot is a point-in-time copy of Counters.
type CounterSnapshot struct {
	Rotations int64
	Muls      int64
	Rescales  int64
	Adds      int64
}

// Snapshot returns the current counts.
func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Rotations: c.rotations.Load(),
		Muls:      c.muls.Load(),
		Rescales:  c.rescales.Load(),
		Adds:      c.adds.Load(),
	}
}

// Reset zeroes all counters.
func (c *Counters) Reset() {
	c.rotations.Store(0)
	c.muls.Store(0)
	c.rescales.Store(0)
	c.adds.Store(0)
}

// Counters returns the session's operation counters.
func (h *HeContext) Counters() *Counters {
	return h.counters
}

// PrintCounters prints the operation counts accumulated so far.
// Respects utils.Verbose.
func (h *HeContext) PrintCounters(phase string) {
	if !utils.Verbose {
		return
	}
	s := h.counters.Snapshot()
	fmt.Fprintf(utils.Output, "=== Phase: %s ===\n", phase)
	fmt.Fprintf(utils.Output, "Rotates: %d, Muls: %d, Rescales: %d, Adds: %d\n",
		s.Rotations, s.Muls, s.Rescales, s.Adds)
}

// Evaluator wraps a hefloat evaluator with the session's packing rules and
// counts every primitive it issues. An Evaluator is not safe for concurrent
// use; call HeContext.Evaluator once per goroutine.
type Evaluator struct {
	he   *HeContext
	eval *hefloat.Evaluator
}

// Evaluator returns an evaluator with its own buffers sharing the session's
// keys.
func (h *HeContext) Evaluator() *Evaluator {
	return &Evaluator{he: h, eval: h.eval.ShallowCopy()}
}

// Add returns a + b.
func (e *Evaluator) Add(a, b *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	e.he.counters.adds.Add(1)
	out, err := e.eval.AddNew(a, b)
	if err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}
	return out, nil
}

// Sub returns a - b.
func (e *Evaluator) Sub(a, b *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	e.he.counters.adds.Add(1)
	out, err := e.eval.SubNew(a, b)
	if err != nil {
		return nil, fmt.Errorf("sub: %w", err)
	}
	return out, nil
}

// AddPlain returns a + v where v is a full slot vector (see Replicate, Fill).
func (e *Evaluator) AddPlain(a *rlwe.Ciphertext, v []complex128) (*rlwe.Ciphertext, error) {
	e.he.counters.adds.Add(1)
	out, err := e.eval.AddNew(a, v)
	if err != nil {
		return nil, fmt.Errorf("add plaintext: %w", err)
	}
	return out, nil
}

// SubPlain returns a - v.
func (e *Evaluator) SubPlain(a *rlwe.Ciphertext, v []complex128) (*rlwe.Ciphertext, error) {
	e.he.counters.adds.Add(1)
	out, err := e.eval.SubNew(a, v)
	if err != nil {
		return nil, fmt.Errorf("sub plaintext: %w", err)
	}
	return out, nil
}

// Mul returns the relinearized and rescaled product a * b. It consumes one
// level.
func (e *Evaluator) Mul(a, b *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	e.he.counters.muls.Add(1)
	out, err := e.eval.MulRelinNew(a, b)
	if err != nil {
		return nil, fmt.Errorf("mul: %w", err)
	}
	return out, e.rescale(out)
}

// MulPlain returns the rescaled product a * v. It consumes one level; the
// scale of a is preserved.
func (e *Evaluator) MulPlain(a *rlwe.Ciphertext, v []complex128) (*rlwe.Ciphertext, error) {
	e.he.counters.muls.Add(1)
	out, err := e.eval.MulNew(a, v)
	if err != nil {
		return nil, fmt.Errorf("mul plaintext: %w", err)
	}
	return out, e.rescale(out)
}

// Mask keeps slots [0, n) of every window and zeroes the rest.
func (e *Evaluator) Mask(a *rlwe.Ciphertext, n int) (*rlwe.Ciphertext, error) {
	return e.MulPlain(a, e.he.Ones(n))
}

// Select keeps slot i of every window and zeroes the rest.
func (e *Evaluator) Select(a *rlwe.Ciphertext, i int) (*rlwe.Ciphertext, error) {
	return e.MulPlain(a, e.he.Unit(i))
}

func (e *Evaluator) rescale(ct *rlwe.Ciphertext) error {
	e.he.counters.rescales.Add(1)
	if err := e.eval.Rescale(ct, ct); err != nil {
		return fmt.Errorf("rescale: %w", err)
	}
	return nil
}

// Rotate cyclically rotates every window left by k slots: slot s receives
// slot s+k. Negative k rotates right. Rotations without a dedicated key are
// decomposed into power-of-two hops.
func (e *Evaluator) Rotate(ct *rlwe.Ciphertext, k int) (*rlwe.Ciphertext, error) {
	r := e.he.normalize(k)
	if r == 0 {
		return ct.CopyNew(), nil
	}
	if step, ok := e.he.rotations[r]; ok {
		return e.rotate(ct, step)
	}
	out := ct
	for hop := 1; hop < e.he.Window; hop <<= 1 {
		if r&hop == 0 {
			continue
		}
		next, err := e.rotate(out, hop)
		if err != nil {
			return nil, err
		}
		out = next
	}
	return out, nil
}

func (e *Evaluator) rotate(ct *rlwe.Ciphertext, step int) (*rlwe.Ciphertext, error) {
	e.he.counters.rotations.Add(1)
	out, err := e.eval.RotateNew(ct, step)
	if err != nil {
		return nil, fmt.Errorf("rotate by %d: %w", step, err)
	}
	return out, nil
}

// SlotSum leaves the total of the window in every slot of the window.
func (e *Evaluator) SlotSum(ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	acc := ct
	for i := 1; i < e.he.Window; i <<= 1 {
		rot, err := e.rotate(acc, i)
		if err != nil {
			return nil, fmt.Errorf("slot sum: %w", err)
		}
		if acc, err = e.Add(acc, rot); err != nil {
			return nil, fmt.Errorf("slot sum: %w", err)
		}
	}
	if acc == ct {
		return ct.CopyNew(), nil
	}
	return acc, nil
}
