//go:build debug
// +build debug

package ckkswrapper

import (
	"math"
	"testing"

	"github.com/IanQS/pTensor/tensor"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
)

// DebugCompare decrypts one ciphertext per row of shadow and reports every
// slot that diverges from the plaintext shadow by more than tolerance.
func (h *HeContext) DebugCompare(cts []*rlwe.Ciphertext, shadow *tensor.Tensor, label string, tolerance float64, t *testing.T) {
	if t == nil {
		return
	}
	rows := shadow.Rows()
	if len(cts) != len(rows) {
		t.Errorf("%s: %d ciphertexts for %d shadow rows", label, len(cts), len(rows))
		return
	}

	maxDiff, maxRow, maxCol := 0.0, -1, -1
	for i, ct := range cts {
		got, err := h.DecryptRow(ct, len(rows[i]))
		if err != nil {
			t.Errorf("%s: row %d: %v", label, i, err)
			return
		}
		for j, want := range rows[i] {
			diff := math.Abs(real(got[j]) - want)
			if diff > maxDiff {
				maxDiff, maxRow, maxCol = diff, i, j
			}
			if diff > tolerance {
				t.Errorf("%s: divergence at (%d, %d): HE=%f, shadow=%f, diff=%f",
					label, i, j, real(got[j]), want, diff)
			}
		}
	}
	t.Logf("%s: max difference %g at (%d, %d), depth %d", label, maxDiff, maxRow, maxCol, h.Depth(cts[0]))
}
