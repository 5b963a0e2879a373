//go:build debug
// +build debug

package ckkswrapper

import (
	"testing"

	"github.com/IanQS/pTensor/tensor"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
)

func TestDebugCompareAfterMask(t *testing.T) {
	h := testContext(t)
	ev := h.Evaluator()

	shadow, err := tensor.FromRows([][]float64{{1, 2, 3}})
	if err != nil {
		t.Fatal(err)
	}
	ct, err := h.EncryptRow([]complex128{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	masked, err := ev.Mask(ct, 3)
	if err != nil {
		t.Fatal(err)
	}
	h.DebugCompare([]*rlwe.Ciphertext{masked}, shadow, "mask", 1e-4, t)
}
