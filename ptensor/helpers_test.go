package ptensor

import (
	"sync"
	"testing"

	"github.com/IanQS/pTensor/core/ckkswrapper"
	"github.com/stretchr/testify/require"
)

const tol = 1e-3

var (
	engineOnce sync.Once
	sharedHe   *ckkswrapper.HeContext
	engineErr  error
)

// testEngine returns a sequential engine over one logN=13 session with a
// 16-slot window, built once per package.
func testEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	engineOnce.Do(func() {
		cfg, err := ckkswrapper.PresetConfig(13)
		if err != nil {
			engineErr = err
			return
		}
		cfg.Window = 16
		sharedHe, engineErr = ckkswrapper.NewHeContext(cfg)
	})
	require.NoError(t, engineErr)
	return NewEngine(sharedHe, opts...)
}

func plainOf(t *testing.T, rows [][]float64) *PTensor {
	t.Helper()
	p, err := FromReal(rows)
	require.NoError(t, err)
	return p
}

func encrypted(t *testing.T, e *Engine, rows [][]float64) *PTensor {
	t.Helper()
	c, err := e.Encrypt(plainOf(t, rows))
	require.NoError(t, err)
	return c
}

func decrypted(t *testing.T, e *Engine, c *PTensor) [][]float64 {
	t.Helper()
	p, err := e.Decrypt(c)
	require.NoError(t, err)
	return p.Real().Rows()
}

func requireRows(t *testing.T, want, got [][]float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.InDeltaSlicef(t, want[i], got[i], tol, "row %d", i)
	}
}

// requireSlots checks the full window of every row ciphertext: the logical
// values followed by zeros, or the value everywhere for broadcast columns.
func requireSlots(t *testing.T, e *Engine, c *PTensor, want [][]float64) {
	t.Helper()
	he := e.Session()
	for i, ct := range c.cipher {
		slots, err := he.DecryptRow(ct, he.Window)
		require.NoError(t, err)
		for s, v := range slots {
			exp := 0.0
			switch {
			case c.cols == 1 && c.packing == Broadcast:
				exp = want[i][0]
			case s < len(want[i]):
				exp = want[i][s]
			}
			require.InDeltaf(t, exp, real(v), tol, "row %d slot %d", i, s)
		}
	}
}

var (
	t1 = [][]float64{{1, 2, 3}, {4, 5, 6}}
	t2 = [][]float64{{1, 2, 3}}
	t3 = [][]float64{{2}}
)
