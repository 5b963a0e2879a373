// Package ckkswrapper adapts lattigo's hefloat scheme into the primitive set the
// encrypted tensor engine consumes: row packing, encrypt/decrypt, add, sub,
// mult, cyclic rotation and slot-sum.
package ckkswrapper

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/tuneinsight/lattigo/v5/core/rlwe"
	"github.com/tuneinsight/lattigo/v5/he/hefloat"
)

var (
	// ErrNoSecretKey is returned by operations that need the decryption key on a
	// public-only session.
	ErrNoSecretKey = errors.New("ckkswrapper: session holds no secret key")
	// ErrWindowOverflow is returned when a row does not fit the packing window.
	ErrWindowOverflow = errors.New("ckkswrapper: row longer than packing window")
)

// Config describes the scheme parameters and the packing window of a session.
type Config struct {
	LogN            int
	LogQ            []int
	LogP            []int
	LogDefaultScale int

	// Window is the number of slots reserved for one logical row. It must be a
	// power of two no larger than the slot count; 0 selects the whole ring.
	Window int

	// PublicOnly drops the secret key once the evaluation keys exist.
	PublicOnly bool
}

// PresetConfig returns a modulus chain for the given ring degree. Every preset
// leaves at least seven levels, enough for one full gradient step.
func PresetConfig(logN int) (Config, error) {
	switch logN {
	case 12:
		return Config{LogN: 12, LogQ: []int{50, 35, 35, 35, 35, 35, 35, 35}, LogP: []int{55}, LogDefaultScale: 35}, nil
	case 13:
		return Config{LogN: 13, LogQ: []int{55, 40, 40, 40, 40, 40, 40, 40}, LogP: []int{61}, LogDefaultScale: 40}, nil
	case 14:
		return Config{LogN: 14, LogQ: []int{60, 40, 40, 40, 40, 40, 40, 40, 40, 40}, LogP: []int{61, 61}, LogDefaultScale: 40}, nil
	case 15:
		return Config{LogN: 15, LogQ: []int{60, 45, 45, 45, 45, 45, 45, 45, 45, 45, 45, 45, 45}, LogP: []int{61, 61, 61}, LogDefaultScale: 45}, nil
	case 16:
		return Config{LogN: 16, LogQ: []int{60, 45, 45, 45, 45, 45, 45, 45, 45, 45, 45, 45, 45, 45, 45, 45, 45}, LogP: []int{61, 61, 61, 61}, LogDefaultScale: 45}, nil
	}
	return Config{}, fmt.Errorf("ckkswrapper: no preset for logN=%d (supported: 12-16)", logN)
}

// HeContext is one homomorphic session: parameters, keys and the shared
// evaluator. It is passed explicitly to everything that needs it.
type HeContext struct {
	Params    hefloat.Parameters
	Encoder   *hefloat.Encoder
	Encryptor *rlwe.Encryptor
	Decryptor *rlwe.Decryptor // nil on public-only sessions

	// Window is the per-row slot budget; see Config.Window.
	Window int

	pk        *rlwe.PublicKey
	evk       rlwe.EvaluationKeySet
	eval      *hefloat.Evaluator
	rotations map[int]int // rotation modulo Window -> key step
	counters  *Counters
}

// NewHeContext generates keys for cfg. Galois keys cover every power of two
// below the window plus a single right shift.
func NewHeContext(cfg Config) (*HeContext, error) {
	params, err := hefloat.NewParametersFromLiteral(hefloat.ParametersLiteral{
		LogN:            cfg.LogN,
		LogQ:            cfg.LogQ,
		LogP:            cfg.LogP,
		LogDefaultScale: cfg.LogDefaultScale,
	})
	if err != nil {
		return nil, fmt.Errorf("ckkswrapper: parameters: %w", err)
	}

	window := cfg.Window
	if window == 0 {
		window = params.MaxSlots()
	}
	if window < 2 || window > params.MaxSlots() || bits.OnesCount(uint(window)) != 1 {
		return nil, fmt.Errorf("ckkswrapper: window %d must be a power of two in [2, %d]", window, params.MaxSlots())
	}

	kgen := hefloat.NewKeyGenerator(params)
	sk, pk := kgen.GenKeyPairNew()
	rlk := kgen.GenRelinearizationKeyNew(sk)

	rotations := make(map[int]int)
	var galEls []uint64
	for k := 1; k < window; k <<= 1 {
		rotations[k] = k
		galEls = append(galEls, params.GaloisElement(k))
	}
	if _, ok := rotations[window-1]; !ok {
		rotations[window-1] = -1
		galEls = append(galEls, params.GaloisElement(-1))
	}
	evk := rlwe.NewMemEvaluationKeySet(rlk, kgen.GenGaloisKeysNew(galEls, sk)...)

	h := &HeContext{
		Params:    params,
		Encoder:   hefloat.NewEncoder(params),
		Encryptor: hefloat.NewEncryptor(params, pk),
		Window:    window,
		pk:        pk,
		evk:       evk,
		eval:      hefloat.NewEvaluator(params, evk),
		rotations: rotations,
		counters:  new(Counters),
	}
	if !cfg.PublicOnly {
		h.Decryptor = hefloat.NewDecryptor(params, sk)
	}
	return h, nil
}

// PublicView returns a session sharing parameters and evaluation keys but
// without the decryptor, as held by a party that only computes.
func (h *HeContext) PublicView() *HeContext {
	v := *h
	v.Decryptor = nil
	v.Encoder = h.Encoder.ShallowCopy()
	v.Encryptor = h.Encryptor.ShallowCopy()
	return &v
}

// CanDecrypt reports whether the session holds the secret key.
func (h *HeContext) CanDecrypt() bool {
	return h.Decryptor != nil
}

// Slots returns the number of complex slots of a ciphertext.
func (h *HeContext) Slots() int {
	return h.Params.MaxSlots()
}

// Depth is the number of levels ct has consumed since encryption.
func (h *HeContext) Depth(ct *rlwe.Ciphertext) int {
	return h.Params.MaxLevel() - ct.Level()
}

// HasRotation reports whether a single key switch realises rotation k.
func (h *HeContext) HasRotation(k int) bool {
	_, ok := h.rotations[h.normalize(k)]
	return ok
}

func (h *HeContext) normalize(k int) int {
	k %= h.Window
	if k < 0 {
		k += h.Window
	}
	return k
}
