package ckkswrapper

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v5/core/rlwe"
	"github.com/tuneinsight/lattigo/v5/he/hefloat"
)

// Replicate lays row out in the first len(row) slots of a window, zero-fills
// the rest of the window and repeats the window across every slot.
func (h *HeContext) Replicate(row []complex128) []complex128 {
	slots := make([]complex128, h.Slots())
	for base := 0; base < len(slots); base += h.Window {
		copy(slots[base:base+h.Window], row)
	}
	return slots
}

// ReplicateReal is Replicate for real-valued rows.
func (h *HeContext) ReplicateReal(row []float64) []complex128 {
	c := make([]complex128, len(row))
	for i, v := range row {
		c[i] = complex(v, 0)
	}
	return h.Replicate(c)
}

// Fill returns a slot vector holding v everywhere.
func (h *HeContext) Fill(v complex128) []complex128 {
	slots := make([]complex128, h.Slots())
	for i := range slots {
		slots[i] = v
	}
	return slots
}

// Ones returns the mask selecting slots [0, n) of every window.
func (h *HeContext) Ones(n int) []complex128 {
	return h.Scaled(n, 1)
}

// Scaled returns the mask selecting slots [0, n) of every window, with value v.
func (h *HeContext) Scaled(n int, v complex128) []complex128 {
	row := make([]complex128, min(n, h.Window))
	for i := range row {
		row[i] = v
	}
	return h.Replicate(row)
}

// Unit returns the mask selecting slot i of every window.
func (h *HeContext) Unit(i int) []complex128 {
	row := make([]complex128, i+1)
	row[i] = 1
	return h.Replicate(row)
}

// EncryptRow packs row into one ciphertext at the top level.
func (h *HeContext) EncryptRow(row []complex128) (*rlwe.Ciphertext, error) {
	if len(row) > h.Window {
		return nil, fmt.Errorf("%w: %d > %d", ErrWindowOverflow, len(row), h.Window)
	}
	return h.EncryptSlots(h.Replicate(row))
}

// EncryptSlots encrypts a full slot vector as is.
func (h *HeContext) EncryptSlots(slots []complex128) (*rlwe.Ciphertext, error) {
	pt := hefloat.NewPlaintext(h.Params, h.Params.MaxLevel())
	if err := h.Encoder.Encode(slots, pt); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	ct, err := h.Encryptor.EncryptNew(pt)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return ct, nil
}

// DecryptRow returns the first n slots of ct.
func (h *HeContext) DecryptRow(ct *rlwe.Ciphertext, n int) ([]complex128, error) {
	slots, err := h.DecryptSlots(ct)
	if err != nil {
		return nil, err
	}
	if n > len(slots) {
		n = len(slots)
	}
	return append([]complex128(nil), slots[:n]...), nil
}

// DecryptSlots decrypts and decodes every slot of ct.
func (h *HeContext) DecryptSlots(ct *rlwe.Ciphertext) ([]complex128, error) {
	if h.Decryptor == nil {
		return nil, ErrNoSecretKey
	}
	pt := h.Decryptor.DecryptNew(ct)
	slots := make([]complex128, h.Slots())
	if err := h.Encoder.Decode(pt, slots); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return slots, nil
}
