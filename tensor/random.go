package tensor

import (
	"errors"
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrUnknownInitializer is returned by GenerateWeights for an unrecognised
// distribution name.
var ErrUnknownInitializer = errors.New("tensor: unrecognized random initializer")

// Initializer names accepted by GenerateWeights.
const (
	InitNormal  = "normal"
	InitUniform = "uniform"
)

// RandomUniform draws a rows×cols tensor from U[low, high).
// A nil src uses the global source.
func RandomUniform(rows, cols int, low, high float64, src rand.Source) *Tensor {
	d := distuv.Uniform{Min: low, Max: high, Src: src}
	out := New(rows, cols)
	for i := range out.Data {
		out.Data[i] = d.Rand()
	}
	return out
}

// RandomNormal draws a rows×cols tensor from N(mean, std²).
func RandomNormal(rows, cols int, mean, std float64, src rand.Source) *Tensor {
	d := distuv.Normal{Mu: mean, Sigma: std, Src: src}
	out := New(rows, cols)
	for i := range out.Data {
		out.Data[i] = d.Rand()
	}
	return out
}

// GenerateWeights returns a features×repeats tensor whose row f repeats one
// weight per feature. The weights come from seed (features×1) when given,
// otherwise from the named initializer. Repeating the weights lets X, stored
// features×observations, be multiplied with them elementwise.
func GenerateWeights(features, repeats int, seed *Tensor, init string, src rand.Source) (*Tensor, error) {
	var base *Tensor
	switch {
	case seed != nil:
		r, c := seed.Dims()
		if r == 1 && c == features {
			seed = Transpose(seed)
			r, c = c, r
		}
		if r != features || c != 1 {
			return nil, fmt.Errorf("GenerateWeights: seed shape %v, want (%d, 1)", seed.Shape, features)
		}
		base = seed
	case init == InitUniform:
		base = RandomUniform(features, 1, 0, 1, src)
	case init == InitNormal:
		base = RandomNormal(features, 1, 0, 1, src)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownInitializer, init)
	}

	out := New(features, repeats)
	for f := 0; f < features; f++ {
		for j := 0; j < repeats; j++ {
			out.Data[f*repeats+j] = base.Data[f]
		}
	}
	return out, nil
}
