package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/IanQS/pTensor/tensor"
)

func TestTensorToWeightData(t *testing.T) {
	ten := tensor.New(4, 1)
	for i := range ten.Data {
		ten.Data[i] = float64(i) * 0.5
	}

	wd := TensorToWeightData("linear", ten)

	if wd.Name != "linear" {
		t.Errorf("Name = %s, want linear", wd.Name)
	}
	if len(wd.Shape) != 2 || wd.Shape[0] != 4 || wd.Shape[1] != 1 {
		t.Errorf("Shape = %v, want [4, 1]", wd.Shape)
	}
	for i, v := range wd.Data {
		if v != float64(i)*0.5 {
			t.Errorf("Data[%d] = %f, want %f", i, v, float64(i)*0.5)
		}
	}
	ten.Data[0] = 99
	if wd.Data[0] == 99 {
		t.Error("weight data shares storage with the tensor")
	}
}

func TestWeightDataToTensor(t *testing.T) {
	wd := &WeightData{Name: "w", Shape: []int{2, 3}, Data: []float64{0, 1, 2, 3, 4, 5}}
	ten := WeightDataToTensor(wd)
	if r, c := ten.Dims(); r != 2 || c != 3 {
		t.Errorf("dims = (%d, %d), want (2, 3)", r, c)
	}
	if ten.At(1, 2) != 5 {
		t.Errorf("At(1, 2) = %f, want 5", ten.At(1, 2))
	}
}

func TestSaveLoadWeights(t *testing.T) {
	weightsFile := filepath.Join(t.TempDir(), "weights.json")

	weights := &ModelWeights{
		Version: "1.0",
		Weights: &WeightData{Name: "linear", Shape: []int{5, 1}, Data: []float64{-0.121966, -1.08682, 0.68429, -1.07519, 0.0332695}},
		Losses:  []float64{2.5, 1.25},
	}
	if err := SaveWeights(weightsFile, weights); err != nil {
		t.Fatalf("SaveWeights failed: %v", err)
	}

	loaded, err := LoadWeights(weightsFile)
	if err != nil {
		t.Fatalf("LoadWeights failed: %v", err)
	}
	if loaded.Version != "1.0" {
		t.Errorf("Version = %s, want 1.0", loaded.Version)
	}
	if loaded.Weights == nil || len(loaded.Weights.Data) != 5 {
		t.Fatalf("weights not restored: %+v", loaded.Weights)
	}
	if loaded.Weights.Data[1] != -1.08682 {
		t.Errorf("Data[1] = %f, want -1.08682", loaded.Weights.Data[1])
	}
	if len(loaded.Losses) != 2 || loaded.Losses[1] != 1.25 {
		t.Errorf("Losses = %v", loaded.Losses)
	}
}

func TestLoadWeightsNotFound(t *testing.T) {
	_, err := LoadWeights("/nonexistent/path/weights.json")
	if err == nil {
		t.Error("Expected error for nonexistent file")
	}
}

func TestLoadWeightsInvalidJSON(t *testing.T) {
	badFile := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(badFile, []byte("not valid json"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	if _, err := LoadWeights(badFile); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestLoadWeightsShapeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.json")
	weights := &ModelWeights{
		Version: "1.0",
		Weights: &WeightData{Name: "linear", Shape: []int{3, 1}, Data: []float64{1, 2}},
	}
	if err := SaveWeights(path, weights); err != nil {
		t.Fatalf("SaveWeights failed: %v", err)
	}
	if _, err := LoadWeights(path); !errors.Is(err, ErrBadWeights) {
		t.Errorf("LoadWeights error = %v, want ErrBadWeights", err)
	}
}
