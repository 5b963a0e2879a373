package dataset

import (
	"errors"
	"fmt"

	"github.com/IanQS/pTensor/ptensor"
	"github.com/IanQS/pTensor/tensor"
	"golang.org/x/exp/rand"
)

var ErrLabelCount = errors.New("dataset: label count does not match observations")

// Fold is one pass over the data. Features is observations×features and
// Labels is 1×observations. When the provider was given an engine, X holds
// the encrypted features transposed to features×observations and Y the
// encrypted labels; otherwise both are plaintext.
type Fold struct {
	Features *tensor.Tensor
	Labels   *tensor.Tensor
	X, Y     *ptensor.PTensor
}

// Provider hands out folds of a fixed dataset.
type Provider struct {
	x, y  *tensor.Tensor
	folds int
}

// NewProvider checks that y carries one label per row of x. folds == 0
// yields the data once in file order; otherwise folds shuffled copies are
// produced.
func NewProvider(x, y *tensor.Tensor, folds int) (*Provider, error) {
	obs, _ := x.Dims()
	if n := len(y.Data); n != obs {
		return nil, fmt.Errorf("%w: %d labels, %d observations", ErrLabelCount, n, obs)
	}
	if folds < 0 {
		return nil, fmt.Errorf("dataset: negative fold count %d", folds)
	}
	return &Provider{x: x, y: y, folds: folds}, nil
}

// Observations returns the number of rows per fold.
func (p *Provider) Observations() int {
	obs, _ := p.x.Dims()
	return obs
}

// Features returns the number of feature columns.
func (p *Provider) Features() int {
	_, f := p.x.Dims()
	return f
}

// Provide builds the folds. Shuffling is seeded so that runs repeat. eng may
// be nil for plaintext folds.
func (p *Provider) Provide(seed uint64, eng *ptensor.Engine) ([]Fold, error) {
	obs := p.Observations()
	n := max(p.folds, 1)
	rng := rand.New(rand.NewSource(seed))

	folds := make([]Fold, n)
	for k := range folds {
		order := make([]int, obs)
		for i := range order {
			order[i] = i
		}
		if p.folds > 0 {
			order = rng.Perm(obs)
		}
		fold, err := p.fold(order, eng)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", k, err)
		}
		folds[k] = fold
	}
	return folds, nil
}

func (p *Provider) fold(order []int, eng *ptensor.Engine) (Fold, error) {
	rows := make([][]float64, len(order))
	labels := make([]float64, len(order))
	all := p.x.Rows()
	for i, src := range order {
		rows[i] = all[src]
		labels[i] = p.y.Data[src]
	}
	features, err := tensor.FromRows(rows)
	if err != nil {
		return Fold{}, err
	}
	fold := Fold{Features: features, Labels: tensor.NewWithData(labels)}

	if fold.X, err = ptensor.FromTensor(tensor.Transpose(features)); err != nil {
		return Fold{}, err
	}
	if fold.Y, err = ptensor.FromReal([][]float64{labels}); err != nil {
		return Fold{}, err
	}
	if eng == nil {
		return fold, nil
	}
	if fold.X, err = eng.Encrypt(fold.X); err != nil {
		return Fold{}, fmt.Errorf("encrypt features: %w", err)
	}
	if fold.Y, err = eng.Encrypt(fold.Y); err != nil {
		return Fold{}, fmt.Errorf("encrypt labels: %w", err)
	}
	return fold, nil
}
