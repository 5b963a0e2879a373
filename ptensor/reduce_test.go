package ptensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumAxis(t *testing.T) {
	e := testEngine(t)
	a := encrypted(t, e, t1)

	rows, err := e.SumAxis(a, 0)
	require.NoError(t, err)
	assert.Equal(t, Shape{1, 3}, rows.Shape())
	requireSlots(t, e, rows, [][]float64{{5, 7, 9}})
	assert.Equal(t, a.Level(), rows.Level())

	cols, err := e.SumAxis(a, 1)
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 1}, cols.Shape())
	assert.Equal(t, Broadcast, cols.Packing())
	requireSlots(t, e, cols, [][]float64{{6}, {15}})
	requireRows(t, [][]float64{{6}, {15}}, decrypted(t, e, cols))
}

func TestSumAxisOfBroadcastColumnIsIdentity(t *testing.T) {
	e := testEngine(t)
	cols, err := e.SumAxis(encrypted(t, e, t1), 1)
	require.NoError(t, err)
	again, err := e.SumAxis(cols, 1)
	require.NoError(t, err)
	requireSlots(t, e, again, [][]float64{{6}, {15}})
}

func TestSumAll(t *testing.T) {
	e := testEngine(t)
	total, err := e.Sum(encrypted(t, e, t1))
	require.NoError(t, err)
	assert.True(t, total.IsScalar())
	assert.Equal(t, Unprojected, total.Packing())
	requireSlots(t, e, total, [][]float64{{21}})

	// The total combines with wider tensors like any unprojected scalar.
	shifted, err := e.Sub(encrypted(t, e, t2), Cipher(total))
	require.NoError(t, err)
	requireSlots(t, e, shifted, [][]float64{{-20, -19, -18}})
}

func TestSumErrors(t *testing.T) {
	e := testEngine(t)
	_, err := e.SumAxis(encrypted(t, e, t1), 2)
	require.ErrorIs(t, err, ErrInvalidAxis)

	_, err = e.SumAxis(plainOf(t, t1), 0)
	require.ErrorIs(t, err, ErrUnencrypted)
	assert.Contains(t, err.Error(), "unsupported on unencrypted data")

	_, err = e.Sum(plainOf(t, t1))
	require.ErrorIs(t, err, ErrUnencrypted)
}
