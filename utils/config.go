package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// Config holds training configuration
type Config struct {
	FeaturesPath string
	LabelsPath   string
	AddBias      bool
	Standardize  bool

	Epochs  int
	Alpha   float64
	L2      float64 // penalty factor; <= 0 disables the L2 term
	Folds   int     // 0 keeps the original order
	Seed    int64
	Weights []float64 // fixed initial weights; empty draws them

	LogN    int
	Window  int // 0 fits the data
	Workers int
}

// DefaultConfig returns the settings of the reference Ames run.
func DefaultConfig() Config {
	return Config{
		AddBias: true,
		Epochs:  50,
		Alpha:   0.06,
		L2:      -1,
		Seed:    42,
		LogN:    14,
		Workers: 1,
	}
}

// ParseFloats parses a whitespace or comma separated list of numbers.
func ParseFloats(s string) ([]float64, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}

// ValidateConfig validates training configuration
func ValidateConfig(config *Config) error {
	if (config.FeaturesPath == "") != (config.LabelsPath == "") {
		return fmt.Errorf("features and labels paths must be given together")
	}

	if config.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive")
	}

	if config.Alpha <= 0 {
		return fmt.Errorf("learning rate must be positive")
	}

	if config.Folds < 0 {
		return fmt.Errorf("folds must not be negative")
	}

	if config.LogN < 12 || config.LogN > 16 {
		return fmt.Errorf("logN must be in [12, 16], got %d", config.LogN)
	}

	if config.Window < 0 || config.Window&(config.Window-1) != 0 {
		return fmt.Errorf("window must be 0 or a power of two, got %d", config.Window)
	}

	if config.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}

	return nil
}
