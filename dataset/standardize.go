package dataset

import (
	"fmt"

	"github.com/IanQS/pTensor/tensor"
	"github.com/montanaflynn/stats"
)

// Standardize rescales every feature column to zero mean and unit
// population standard deviation. Constant columns, such as a bias column,
// are left untouched. The column means and deviations are returned so that
// held-out data can be transformed the same way.
func Standardize(x *tensor.Tensor) (out *tensor.Tensor, mean, std []float64, err error) {
	rows, cols := x.Dims()
	out = tensor.New(rows, cols)
	mean = make([]float64, cols)
	std = make([]float64, cols)
	col := make(stats.Float64Data, rows)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			col[i] = x.At(i, j)
		}
		if mean[j], err = stats.Mean(col); err != nil {
			return nil, nil, nil, fmt.Errorf("column %d: %w", j, err)
		}
		if std[j], err = stats.StandardDeviationPopulation(col); err != nil {
			return nil, nil, nil, fmt.Errorf("column %d: %w", j, err)
		}
		for i := 0; i < rows; i++ {
			v := col[i]
			if std[j] != 0 {
				v = (v - mean[j]) / std[j]
			}
			out.Set(v, i, j)
		}
	}
	return out, mean, std, nil
}
