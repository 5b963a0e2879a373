// Package nn trains an encrypted linear-regression model with the ptensor
// engine, and carries the plaintext computation it is checked against.
package nn

import (
	"errors"
	"fmt"
	"time"

	"github.com/IanQS/pTensor/dataset"
	"github.com/IanQS/pTensor/ptensor"
	"github.com/IanQS/pTensor/tensor"
	"github.com/IanQS/pTensor/utils"
	"golang.org/x/exp/rand"
)

var ErrNoFolds = errors.New("nn: no folds to train on")

// StepLevels is the number of levels one training step consumes from
// freshly encrypted weights and features: one for the prediction, two for
// the gradient inner products, one for the learning rate and two for the
// projected update.
const StepLevels = 6

// LinearRegression holds encrypted weights in repeated form, features×obs,
// so that a prediction is a Hadamard product with the transposed features
// followed by a column sum.
type LinearRegression struct {
	eng   *ptensor.Engine
	alpha *ptensor.PTensor
	invN  *ptensor.PTensor

	Weights *ptensor.PTensor
	L2      float64
	Losses  []float64
	Stats   *utils.TimingStats

	// Keys defaults to LocalKeys on the training engine.
	Keys KeyHolder
	// Seed drives the fold drawn for every epoch.
	Seed uint64
}

// NewLinearRegression encrypts the initial weights, a features×obs repeated
// tensor as produced by tensor.GenerateWeights, and the step constants.
func NewLinearRegression(eng *ptensor.Engine, weights *tensor.Tensor, alpha, l2 float64) (*LinearRegression, error) {
	_, obs := weights.Dims()
	if obs == 0 {
		return nil, fmt.Errorf("nn: empty weights")
	}
	start := time.Now()
	w, err := ptensor.FromTensor(weights)
	if err != nil {
		return nil, err
	}
	m := &LinearRegression{eng: eng, L2: l2, Stats: &utils.TimingStats{}}
	m.Keys = LocalKeys{Engine: eng, Stats: m.Stats}
	if m.Weights, err = eng.Encrypt(w); err != nil {
		return nil, fmt.Errorf("encrypt weights: %w", err)
	}
	if m.alpha, err = eng.EncryptScalar(alpha, ptensor.Broadcast); err != nil {
		return nil, fmt.Errorf("encrypt alpha: %w", err)
	}
	if m.invN, err = eng.EncryptScalar(1/float64(obs), ptensor.Broadcast); err != nil {
		return nil, fmt.Errorf("encrypt 1/n: %w", err)
	}
	m.Stats.EncryptionTime += time.Since(start)
	return m, nil
}

// Step runs one gradient step on fold and returns the mean squared residual
// of the prediction made before the update. Keys refreshes the updated
// weights and decrypts the residual; the engine itself may be public-only.
func (m *LinearRegression) Step(fold dataset.Fold) (float64, error) {
	if fold.X.Cols() != m.Weights.Cols() {
		return 0, fmt.Errorf("nn: fold has %d observations, weights repeat %d", fold.X.Cols(), m.Weights.Cols())
	}

	start := time.Now()
	pred, err := m.eng.Dot(fold.X, ptensor.Cipher(m.Weights), false)
	if err != nil {
		return 0, fmt.Errorf("prediction: %w", err)
	}
	residual, err := m.eng.Sub(fold.Y, ptensor.Cipher(pred))
	if err != nil {
		return 0, fmt.Errorf("residual: %w", err)
	}
	m.Stats.PredictionTime += time.Since(start)

	start = time.Now()
	grad, err := m.eng.Dot(fold.X, ptensor.Cipher(residual), false)
	if err != nil {
		return 0, fmt.Errorf("gradient: %w", err)
	}
	if m.L2 > 0 {
		if grad, err = m.penalize(grad); err != nil {
			return 0, fmt.Errorf("l2 penalty: %w", err)
		}
	}
	if grad, err = m.eng.Mul(grad, ptensor.Cipher(m.alpha)); err != nil {
		return 0, fmt.Errorf("learning rate: %w", err)
	}
	m.Stats.GradientTime += time.Since(start)

	start = time.Now()
	if m.Weights, err = m.eng.ApplyGradient(m.Weights, grad, ptensor.Cipher(m.invN), ptensor.Ascent); err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}
	m.Stats.UpdateTime += time.Since(start)

	next, loss, err := m.Keys.Refresh(m.Weights, residual)
	if err != nil {
		return 0, err
	}
	m.Weights = next
	return loss, nil
}

// penalize adds l2 times the total of the repeated weights to every gradient
// entry.
func (m *LinearRegression) penalize(grad *ptensor.PTensor) (*ptensor.PTensor, error) {
	total, err := m.eng.Sum(m.Weights)
	if err != nil {
		return nil, err
	}
	if total, err = m.eng.Mul(total, ptensor.Scalar(m.L2)); err != nil {
		return nil, err
	}
	return m.eng.Add(grad, ptensor.Cipher(total))
}

// Train runs epochs steps, each on a fold drawn uniformly from folds with
// the model's Seed, and records the loss of every step.
func (m *LinearRegression) Train(folds []dataset.Fold, epochs int) ([]float64, error) {
	if len(folds) == 0 {
		return nil, ErrNoFolds
	}
	start := time.Now()
	for epoch, f := range FoldOrder(m.Seed, len(folds), epochs) {
		loss, err := m.Step(folds[f])
		if err != nil {
			return m.Losses, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		m.Losses = append(m.Losses, loss)
		utils.Logf("  Epoch %3d: fold %d, loss = %.6f\n", epoch+1, f, loss)
	}
	m.Stats.TotalTime += time.Since(start)
	return m.Losses, nil
}

// FoldOrder returns the fold index used by each of epochs steps.
func FoldOrder(seed uint64, folds, epochs int) []int {
	rng := rand.New(rand.NewSource(seed))
	order := make([]int, epochs)
	for i := range order {
		order[i] = rng.Intn(folds)
	}
	return order
}

// Decrypt returns the current weights as a features×1 tensor.
func (m *LinearRegression) Decrypt() (*tensor.Tensor, error) {
	plain, err := m.eng.Decrypt(m.Weights)
	if err != nil {
		return nil, err
	}
	rows := plain.Real().Rows()
	out := tensor.New(len(rows), 1)
	for f, row := range rows {
		out.Data[f] = row[0]
	}
	return out, nil
}
