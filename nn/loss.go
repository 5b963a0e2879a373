package nn

import (
	"fmt"

	"github.com/montanaflynn/stats"
)

// MSE returns the mean of the squared residuals.
func MSE(residuals []float64) (float64, error) {
	if len(residuals) == 0 {
		return 0, fmt.Errorf("mse: no residuals")
	}
	sq := make(stats.Float64Data, len(residuals))
	for i, r := range residuals {
		sq[i] = r * r
	}
	return stats.Mean(sq)
}

// LossSummary reports the spread of per-epoch losses.
type LossSummary struct {
	First, Last, Min, Mean float64
}

// Summarize condenses a loss history.
func Summarize(losses []float64) (LossSummary, error) {
	if len(losses) == 0 {
		return LossSummary{}, fmt.Errorf("summarize: no losses")
	}
	data := stats.Float64Data(losses)
	lo, err := stats.Min(data)
	if err != nil {
		return LossSummary{}, err
	}
	mean, err := stats.Mean(data)
	if err != nil {
		return LossSummary{}, err
	}
	return LossSummary{First: losses[0], Last: losses[len(losses)-1], Min: lo, Mean: mean}, nil
}
