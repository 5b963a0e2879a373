package ptensor

import (
	"fmt"
	"sync"

	"github.com/IanQS/pTensor/core/ckkswrapper"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
)

// Engine runs tensor operations inside one homomorphic session. It holds no
// mutable state of its own and is safe for concurrent use.
type Engine struct {
	he      *ckkswrapper.HeContext
	workers int
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers spreads independent per-row work over n goroutines, each with
// its own evaluator. n <= 1 runs sequentially.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 1 {
			e.workers = n
		}
	}
}

// NewEngine binds an engine to a session.
func NewEngine(he *ckkswrapper.HeContext, opts ...Option) *Engine {
	e := &Engine{he: he, workers: 1}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Session returns the engine's homomorphic session.
func (e *Engine) Session() *ckkswrapper.HeContext {
	return e.he
}

// parallel calls fn for every index in [0, n). Each worker owns one
// evaluator; the first error wins.
func (e *Engine) parallel(n int, fn func(ev *ckkswrapper.Evaluator, i int) error) error {
	if n == 0 {
		return nil
	}
	if e.workers <= 1 || n == 1 {
		ev := e.he.Evaluator()
		for i := 0; i < n; i++ {
			if err := fn(ev, i); err != nil {
				return err
			}
		}
		return nil
	}

	jobs := make(chan int)
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
		failed   = make(chan struct{})
	)
	for w := 0; w < min(e.workers, n); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev := e.he.Evaluator()
			for i := range jobs {
				if err := fn(ev, i); err != nil {
					once.Do(func() {
						firstErr = err
						close(failed)
					})
				}
			}
		}()
	}
feed:
	for i := 0; i < n; i++ {
		select {
		case jobs <- i:
		case <-failed:
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	return firstErr
}

// Encrypt encrypts every row of a plaintext tensor. The transpose is
// computed in plaintext and encrypted as well whenever it fits the packing
// window, so that T on the result is free.
func (e *Engine) Encrypt(t *PTensor) (*PTensor, error) {
	if t == nil || t.rows == 0 {
		return nil, ErrEmptyTensor
	}
	if t.Encrypted() {
		return nil, ErrAlreadyEncrypted
	}
	if t.cols > e.he.Window {
		return nil, fmt.Errorf("%w: %d columns, window %d", ErrWindowOverflow, t.cols, e.he.Window)
	}

	cts, err := e.encryptRows(t.plain)
	if err != nil {
		return nil, err
	}
	out := newCipher(t.rows, t.cols, cts, Unprojected)
	if t.rows <= e.he.Window {
		if out.cipherT, err = e.encryptRows(plainTranspose(t.plain)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Engine) encryptRows(rows [][]complex128) ([]*rlwe.Ciphertext, error) {
	cts := make([]*rlwe.Ciphertext, len(rows))
	for i, row := range rows {
		ct, err := e.he.EncryptRow(row)
		if err != nil {
			return nil, fmt.Errorf("encrypt row %d: %w", i, err)
		}
		cts[i] = ct
	}
	return cts, nil
}

// EncryptScalar encrypts v as a 1×1 tensor with the requested packing.
func (e *Engine) EncryptScalar(v float64, packing ScalarPacking) (*PTensor, error) {
	var (
		ct  *rlwe.Ciphertext
		err error
	)
	switch packing {
	case Unprojected:
		ct, err = e.he.EncryptRow([]complex128{complex(v, 0)})
	case Broadcast:
		ct, err = e.he.EncryptSlots(e.he.Fill(complex(v, 0)))
	default:
		return nil, fmt.Errorf("%w: packing %v", ErrInvalidOperand, packing)
	}
	if err != nil {
		return nil, err
	}
	return &PTensor{rows: 1, cols: 1, cipher: []*rlwe.Ciphertext{ct}, packing: packing}, nil
}

// Decrypt returns the plaintext form of an encrypted tensor. It needs the
// session's secret key.
func (e *Engine) Decrypt(t *PTensor) (*PTensor, error) {
	if t == nil || !t.Encrypted() {
		return nil, ErrNotEncrypted
	}
	plain := make([][]complex128, t.rows)
	for i, ct := range t.cipher {
		row, err := e.he.DecryptRow(ct, t.cols)
		if err != nil {
			return nil, fmt.Errorf("decrypt row %d: %w", i, err)
		}
		plain[i] = row
	}
	return &PTensor{rows: t.rows, cols: t.cols, plain: plain}, nil
}

// Refresh re-encrypts every row ciphertext at the top level. The cached
// transpose, if any, is refreshed too.
func (e *Engine) Refresh(t *PTensor) (*PTensor, error) {
	if t == nil || !t.Encrypted() {
		return nil, ErrNotEncrypted
	}
	refresh := func(cts []*rlwe.Ciphertext) ([]*rlwe.Ciphertext, error) {
		if cts == nil {
			return nil, nil
		}
		out := make([]*rlwe.Ciphertext, len(cts))
		for i, ct := range cts {
			fresh, err := e.he.Refresh(ct)
			if err != nil {
				return nil, fmt.Errorf("refresh row %d: %w", i, err)
			}
			out[i] = fresh
		}
		return out, nil
	}
	rows, err := refresh(t.cipher)
	if err != nil {
		return nil, err
	}
	cols, err := refresh(t.cipherT)
	if err != nil {
		return nil, err
	}
	return &PTensor{rows: t.rows, cols: t.cols, cipher: rows, cipherT: cols, packing: t.packing}, nil
}

func plainTranspose(rows [][]complex128) [][]complex128 {
	out := make([][]complex128, len(rows[0]))
	for j := range out {
		out[j] = make([]complex128, len(rows))
		for i := range rows {
			out[j][i] = rows[i][j]
		}
	}
	return out
}
