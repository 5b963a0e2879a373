package nn

import (
	"fmt"
	"time"

	"github.com/IanQS/pTensor/ptensor"
	"github.com/IanQS/pTensor/utils"
)

// KeyHolder runs the part of a step that needs the secret key: it brings the
// updated weights back to the top level and reports the loss of the
// residual.
type KeyHolder interface {
	Refresh(weights, residual *ptensor.PTensor) (*ptensor.PTensor, float64, error)
}

// LocalKeys refreshes and decrypts with an engine whose session holds the
// secret key.
type LocalKeys struct {
	Engine *ptensor.Engine
	Stats  *utils.TimingStats
}

// Refresh re-encrypts weights and returns the mean squared residual.
func (k LocalKeys) Refresh(weights, residual *ptensor.PTensor) (*ptensor.PTensor, float64, error) {
	stats := k.Stats
	if stats == nil {
		stats = &utils.TimingStats{}
	}

	start := time.Now()
	next, err := k.Engine.Refresh(weights)
	if err != nil {
		return nil, 0, fmt.Errorf("refresh: %w", err)
	}
	stats.RefreshTime += time.Since(start)

	start = time.Now()
	plain, err := k.Engine.Decrypt(residual)
	if err != nil {
		return nil, 0, fmt.Errorf("decrypt residual: %w", err)
	}
	stats.DecryptionTime += time.Since(start)

	start = time.Now()
	loss, err := MSE(plain.Real().Data)
	stats.LossComputationTime += time.Since(start)
	return next, loss, err
}
