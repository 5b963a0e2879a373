package ptensor

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var (
	stepX = [][]float64{
		{5.1, 3.5, 1.4, 0.2},
		{4.9, 3.0, 1.4, 0.2},
		{7.0, 3.2, 4.7, 1.4},
		{6.4, 3.2, 4.5, 1.5},
		{6.3, 3.3, 6.0, 2.5},
		{5.8, 2.7, 5.1, 1.9},
	}
	stepY = []float64{0, 0, 1, 1, 2, 2}
	stepW = []float64{1, 2, 3, 4}
)

// TestGradientDescentStep runs prediction, residual, gradient and update on
// encrypted data and compares every stage with gonum.
func TestGradientDescentStep(t *testing.T) {
	for _, workers := range []int{1, 4} {
		e := testEngine(t, WithWorkers(workers))
		obs, features := len(stepX), len(stepW)
		const alpha = 0.01

		X := mat.NewDense(obs, features, nil)
		for i, row := range stepX {
			X.SetRow(i, row)
		}
		w := mat.NewVecDense(features, append([]float64(nil), stepW...))
		var pred, residual, grad mat.VecDense
		pred.MulVec(X, w)
		residual.SubVec(&pred, mat.NewVecDense(obs, append([]float64(nil), stepY...)))
		grad.MulVec(X.T(), &residual)
		var next mat.VecDense
		next.AddScaledVec(w, -alpha/float64(obs), &grad)

		xt := make([][]float64, features)
		for f := range xt {
			xt[f] = mat.Col(nil, f, X)
		}
		encX := encrypted(t, e, xt)
		encW := encrypted(t, e, repeated(stepW, obs))
		encY := encrypted(t, e, [][]float64{stepY})

		encPred, err := e.Dot(encX, Cipher(encW), false)
		require.NoError(t, err)
		requireRows(t, [][]float64{pred.RawVector().Data}, decrypted(t, e, encPred))

		encResidual, err := e.Sub(encPred, Cipher(encY))
		require.NoError(t, err)
		requireRows(t, [][]float64{residual.RawVector().Data}, decrypted(t, e, encResidual))

		encGrad, err := e.Dot(encX, Cipher(encResidual), false)
		require.NoError(t, err)
		got := decrypted(t, e, encGrad)
		for f := 0; f < features; f++ {
			require.InDelta(t, grad.AtVec(f), got[f][0], 1e-2, "gradient %d", f)
		}

		encNext, err := e.ApplyGradient(encW, encGrad, Scalar(alpha/float64(obs)), Descent)
		require.NoError(t, err)
		requireSlots(t, e, encNext, repeated(next.RawVector().Data, obs))
	}
}
