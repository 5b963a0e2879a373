package ckkswrapper

import (
	"fmt"
	"math/bits"
	"sync"
	"time"

	"github.com/tuneinsight/lattigo/v5/core/rlwe"
	"golang.org/x/exp/rand"
)

// SmallestPowerOfTwo returns the smallest power of two >= x.
func SmallestPowerOfTwo(x int) int {
	if x <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(x-1))
}

// WindowFor returns the smallest window holding a row of a dataset stored
// either way round, observations×features or features×observations.
func WindowFor(observations, features int) int {
	return SmallestPowerOfTwo(max(observations, features, 2))
}

// MeasureRotationTime encrypts samples random rows and rotates each of them
// once per worker concurrently. It returns the mean wall time per rotation.
func MeasureRotationTime(h *HeContext, samples, workers int) (time.Duration, error) {
	if samples <= 0 || workers <= 0 {
		return 0, fmt.Errorf("ckkswrapper: samples and workers must be positive")
	}
	rng := rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	cts := make([]*rlwe.Ciphertext, samples)
	for i := range cts {
		row := make([]complex128, h.Window)
		for j := range row {
			row[j] = complex(rng.Float64(), 0)
		}
		ct, err := h.EncryptRow(row)
		if err != nil {
			return 0, err
		}
		cts[i] = ct
	}

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	start := time.Now()
	wg.Add(len(cts) * workers)
	for _, ct := range cts {
		for j := 0; j < workers; j++ {
			go func(ct *rlwe.Ciphertext) {
				defer wg.Done()
				if _, err := h.Evaluator().Rotate(ct, 1); err != nil {
					once.Do(func() { firstErr = err })
				}
			}(ct)
		}
	}
	wg.Wait()
	if firstErr != nil {
		return 0, firstErr
	}
	return time.Since(start) / time.Duration(len(cts)*workers), nil
}

// EstimateRotationTime is the share of a run spent on the rotations counted
// in s, given the cost of one rotation.
func EstimateRotationTime(s CounterSnapshot, rotation time.Duration) time.Duration {
	return time.Duration(s.Rotations) * rotation
}

// CiphertextSize returns the serialized size in bytes of a fresh ciphertext.
func (h *HeContext) CiphertextSize() int {
	return rlwe.NewCiphertext(h.Params, 1, h.Params.MaxLevel()).BinarySize()
}

// TransferTime estimates how long sending n ciphertexts of size bytes takes
// over a link of rate MB per second.
func TransferTime(n, size int, rate float64) time.Duration {
	if rate <= 0 {
		return 0
	}
	mb := float64(n*size) / (1 << 20)
	return time.Duration(mb / rate * float64(time.Second))
}
