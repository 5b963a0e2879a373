package ckkswrapper

import (
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
)

// Refresh restores ct to the top level by decrypting and re-encrypting it.
// It needs the secret key and stands in for bootstrapping, which this module
// does not perform.
func (h *HeContext) Refresh(ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	slots, err := h.DecryptSlots(ct)
	if err != nil {
		return nil, err
	}
	return h.EncryptSlots(slots)
}

// NeedsRefresh reports whether ct has threshold levels or fewer left.
// A threshold of 0 or less is treated as 1.
func NeedsRefresh(ct *rlwe.Ciphertext, threshold int) bool {
	if threshold <= 0 {
		threshold = 1
	}
	return ct.Level() <= threshold
}
