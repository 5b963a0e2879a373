package ptensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveShapes(t *testing.T) {
	cases := []struct {
		a, b, want Shape
	}{
		{Shape{2, 3}, Shape{1, 3}, Shape{2, 3}},
		{Shape{1, 3}, Shape{2, 3}, Shape{2, 3}},
		{Shape{2, 3}, Shape{1, 1}, Shape{2, 3}},
		{Shape{2, 1}, Shape{2, 3}, Shape{2, 3}},
		{Shape{4, 4}, Shape{4, 4}, Shape{4, 4}},
	}
	for _, c := range cases {
		got, err := ResolveShapes(c.a, c.b)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "%v with %v", c.a, c.b)
	}
}

func TestBroadcastErrorCarriesShapes(t *testing.T) {
	e := testEngine(t)
	a := encrypted(t, e, t1)
	b := plainOf(t, [][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}})

	_, err := e.Add(a, Plain(b))
	var be *BroadcastError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, Shape{2, 3}, be.Left)
	assert.Equal(t, Shape{3, 3}, be.Right)
	assert.Equal(t, "Broadcasting error. The given tensors have incompatible shapes. Tensor1: (2, 3) Tensor 2: (3, 3)", err.Error())
}

func TestBinaryCiphertextRowBroadcast(t *testing.T) {
	e := testEngine(t)
	a := encrypted(t, e, t1)
	b := encrypted(t, e, t2)

	sum, err := e.Add(a, Cipher(b))
	require.NoError(t, err)
	requireSlots(t, e, sum, [][]float64{{2, 4, 6}, {5, 7, 9}})
	assert.False(t, sum.HasCachedTranspose())

	diff, err := e.Sub(a, Cipher(b))
	require.NoError(t, err)
	requireSlots(t, e, diff, [][]float64{{0, 0, 0}, {3, 3, 3}})

	prod, err := e.Mul(a, Cipher(b))
	require.NoError(t, err)
	requireSlots(t, e, prod, [][]float64{{1, 4, 9}, {4, 10, 18}})
	assert.Equal(t, a.Level()-1, prod.Level())
}

func TestBinaryPlaintextOperands(t *testing.T) {
	e := testEngine(t)
	a := encrypted(t, e, t1)

	cases := []struct {
		name string
		op   Op
		b    Operand
		want [][]float64
	}{
		{"add vector", OpAdd, Vector([]float64{1, 2, 3}), [][]float64{{2, 4, 6}, {5, 7, 9}}},
		{"sub matrix", OpSub, Matrix(t1), [][]float64{{0, 0, 0}, {0, 0, 0}}},
		{"add scalar", OpAdd, Scalar(2), [][]float64{{3, 4, 5}, {6, 7, 8}}},
		{"sub scalar", OpSub, Scalar(1), [][]float64{{0, 1, 2}, {3, 4, 5}}},
		{"mult scalar", OpMul, Scalar(2), [][]float64{{2, 4, 6}, {8, 10, 12}}},
		{"mult vector", OpMul, Vector([]float64{1, 0, 2}), [][]float64{{1, 0, 6}, {4, 0, 12}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out, err := e.Binary(c.op, a, c.b)
			require.NoError(t, err)
			requireSlots(t, e, out, c.want)
		})
	}
}

func TestBinaryCiphertextScalarIsProjected(t *testing.T) {
	e := testEngine(t)
	a := encrypted(t, e, t1)
	s := encrypted(t, e, t3)
	require.Equal(t, Unprojected, s.Packing())

	sum, err := e.Add(a, Cipher(s))
	require.NoError(t, err)
	requireSlots(t, e, sum, [][]float64{{3, 4, 5}, {6, 7, 8}})

	prod, err := e.Mul(a, Cipher(s))
	require.NoError(t, err)
	requireSlots(t, e, prod, [][]float64{{2, 4, 6}, {8, 10, 12}})

	bs, err := e.EncryptScalar(2, Broadcast)
	require.NoError(t, err)
	diff, err := e.Sub(a, Cipher(bs))
	require.NoError(t, err)
	requireSlots(t, e, diff, [][]float64{{-1, 0, 1}, {2, 3, 4}})
}

func TestBinaryColumnAgainstRows(t *testing.T) {
	e := testEngine(t)
	a := encrypted(t, e, t1)
	totals, err := e.SumAxis(a, 1)
	require.NoError(t, err)

	// Each row minus its own total.
	out, err := e.Sub(a, Cipher(totals))
	require.NoError(t, err)
	requireSlots(t, e, out, [][]float64{{-5, -4, -3}, {-11, -10, -9}})

	// A single-column left operand stretched by a wider right operand.
	col := encrypted(t, e, [][]float64{{1}, {2}})
	out, err = e.Add(col, Cipher(a))
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 3}, out.Shape())
	requireSlots(t, e, out, [][]float64{{2, 3, 4}, {6, 7, 8}})
}

func TestBinarySingleColumnPackings(t *testing.T) {
	e := testEngine(t)
	totals, err := e.SumAxis(encrypted(t, e, t1), 1)
	require.NoError(t, err)
	require.Equal(t, Broadcast, totals.Packing())

	plus, err := e.Add(totals, Scalar(1))
	require.NoError(t, err)
	assert.Equal(t, Broadcast, plus.Packing())
	requireSlots(t, e, plus, [][]float64{{7}, {16}})

	col := encrypted(t, e, [][]float64{{1}, {2}})
	mixed, err := e.Add(totals, Cipher(col))
	require.NoError(t, err)
	assert.Equal(t, Broadcast, mixed.Packing())
	requireSlots(t, e, mixed, [][]float64{{7}, {17}})

	mixed, err = e.Sub(col, Cipher(totals))
	require.NoError(t, err)
	assert.Equal(t, Broadcast, mixed.Packing())
	requireSlots(t, e, mixed, [][]float64{{-5}, {-13}})

	prod, err := e.Mul(col, Cipher(totals))
	require.NoError(t, err)
	assert.Equal(t, Unprojected, prod.Packing())
	requireSlots(t, e, prod, [][]float64{{6}, {30}})

	sq, err := e.Mul(totals, Cipher(totals))
	require.NoError(t, err)
	assert.Equal(t, Broadcast, sq.Packing())
	requireSlots(t, e, sq, [][]float64{{36}, {225}})
}

func TestBinaryRejectsBadInput(t *testing.T) {
	e := testEngine(t)
	a := encrypted(t, e, t1)

	_, err := e.Add(plainOf(t, t1), Vector([]float64{1, 2, 3}))
	require.ErrorIs(t, err, ErrNotEncrypted)

	_, err = e.Binary(Op(7), a, Scalar(1))
	require.ErrorIs(t, err, ErrInvalidOp)

	_, err = e.Add(a, Matrix([][]float64{{1}, {2, 3}}))
	require.ErrorIs(t, err, ErrEmptyTensor)

	_, err = e.Add(a, Plain(a))
	require.ErrorIs(t, err, ErrInvalidOperand)

	_, err = e.Add(a, Vector(make([]float64, e.Session().Window+1)))
	require.ErrorIs(t, err, ErrWindowOverflow)
}

func TestBinaryParallelMatchesSequential(t *testing.T) {
	seq := testEngine(t)
	par := testEngine(t, WithWorkers(4))
	rows := [][]float64{{1, 2}, {3, 4}, {5, 6}, {7, 8}, {9, 10}}
	a := encrypted(t, seq, rows)
	b := encrypted(t, seq, [][]float64{{2, 3}})

	want, err := seq.Mul(a, Cipher(b))
	require.NoError(t, err)
	got, err := par.Mul(a, Cipher(b))
	require.NoError(t, err)
	requireRows(t, decrypted(t, seq, want), decrypted(t, seq, got))
	requireRows(t, [][]float64{{2, 6}, {6, 12}, {10, 18}, {14, 24}, {18, 30}}, decrypted(t, seq, got))
}

func TestParallelReturnsFirstError(t *testing.T) {
	par := testEngine(t, WithWorkers(3))
	a := encrypted(t, par, [][]float64{{1}, {1}, {1}, {1}})

	var err error
	for i := 0; i <= par.Session().Params.MaxLevel() && err == nil; i++ {
		a, err = par.Mul(a, Scalar(1))
	}
	require.Error(t, err)
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "add", OpAdd.String())
	assert.Equal(t, "sub", OpSub.String())
	assert.Equal(t, "mult", OpMul.String())
	assert.Equal(t, "Op(9)", Op(9).String())
}
