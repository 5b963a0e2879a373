package nn

import (
	"fmt"

	"github.com/IanQS/pTensor/tensor"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// PlainStep is the plaintext counterpart of LinearRegression.Step. x is
// observations×features, y holds one label per observation and w one weight
// per feature. It returns the updated weights and the mean squared residual
// before the update.
func PlainStep(x *tensor.Tensor, y, w []float64, alpha, l2 float64) ([]float64, float64, error) {
	obs, features := x.Dims()
	if len(y) != obs || len(w) != features {
		return nil, 0, fmt.Errorf("plain step: %d labels and %d weights for a %dx%d design", len(y), len(w), obs, features)
	}
	X := x.Dense()
	wv := mat.NewVecDense(features, append([]float64(nil), w...))

	var residual mat.VecDense
	residual.MulVec(X, wv)
	residual.SubVec(mat.NewVecDense(obs, append([]float64(nil), y...)), &residual)

	var grad mat.VecDense
	grad.MulVec(X.T(), &residual)
	if l2 > 0 {
		// The encrypted weights repeat every value once per observation.
		penalty := l2 * float64(obs) * floats.Sum(w)
		for f := 0; f < features; f++ {
			grad.SetVec(f, grad.AtVec(f)+penalty)
		}
	}

	var next mat.VecDense
	next.AddScaledVec(wv, alpha/float64(obs), &grad)

	loss, err := MSE(residual.RawVector().Data)
	if err != nil {
		return nil, 0, err
	}
	return next.RawVector().Data, loss, nil
}
