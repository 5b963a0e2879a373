package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/IanQS/pTensor/tensor"
)

// ErrBadWeights is returned by LoadWeights when the stored shape does not
// match the stored values.
var ErrBadWeights = errors.New("weights: shape does not match data")

// WeightData is a plaintext tensor as stored on disk.
type WeightData struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// ModelWeights is the result of a training run: the decrypted per-feature
// weights, the loss after every epoch and the settings that produced them.
type ModelWeights struct {
	Version string      `json:"version"`
	Weights *WeightData `json:"weights"`
	Losses  []float64   `json:"losses,omitempty"`
	Alpha   float64     `json:"alpha,omitempty"`
	L2      float64     `json:"l2,omitempty"`
	Epochs  int         `json:"epochs,omitempty"`
}

// SaveWeights writes weights as indented JSON.
func SaveWeights(path string, weights *ModelWeights) error {
	data, err := json.MarshalIndent(weights, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// LoadWeights reads weights written by SaveWeights.
func LoadWeights(path string) (*ModelWeights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var weights ModelWeights
	if err := json.Unmarshal(data, &weights); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if wd := weights.Weights; wd != nil {
		n := 1
		for _, d := range wd.Shape {
			n *= d
		}
		if len(wd.Shape) == 0 || n != len(wd.Data) {
			return nil, fmt.Errorf("%w: %v holds %d values", ErrBadWeights, wd.Shape, len(wd.Data))
		}
	}
	return &weights, nil
}

// TensorToWeightData copies t for storage.
func TensorToWeightData(name string, t *tensor.Tensor) *WeightData {
	return &WeightData{
		Name:  name,
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float64(nil), t.Data...),
	}
}

// WeightDataToTensor copies stored weights into a tensor.
func WeightDataToTensor(wd *WeightData) *tensor.Tensor {
	t := tensor.New(wd.Shape...)
	copy(t.Data, wd.Data)
	return t
}
