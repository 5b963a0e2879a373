package utils

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Verbose controls whether progress and timing statistics are printed.
// Set to false to suppress output.
var Verbose = true

// Output is the writer where progress and statistics are printed.
// Defaults to os.Stdout.
var Output io.Writer = os.Stdout

// Logf prints to Output when Verbose is set.
func Logf(format string, args ...any) {
	if !Verbose {
		return
	}
	fmt.Fprintf(Output, format, args...)
}

// TimingStats holds timing information for different operations
type TimingStats struct {
	TotalTime           time.Duration
	DataLoadingTime     time.Duration
	HEInitTime          time.Duration
	EncryptionTime      time.Duration
	PredictionTime      time.Duration
	GradientTime        time.Duration
	UpdateTime          time.Duration
	RefreshTime         time.Duration
	DecryptionTime      time.Duration
	LossComputationTime time.Duration
}

func share(part, total time.Duration) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// PrintTimingStats prints detailed timing statistics.
// Respects the Verbose flag - does nothing if Verbose is false.
func PrintTimingStats(stats *TimingStats, steps int) {
	if !Verbose {
		return
	}
	if steps <= 0 {
		steps = 1
	}
	fmt.Fprintln(Output, "\n=== TIMING STATISTICS ===")
	fmt.Fprintf(Output, "Total training time: %v\n", stats.TotalTime)
	fmt.Fprintf(Output, "Average time per step: %v\n", stats.TotalTime/time.Duration(steps))
	fmt.Fprintf(Output, "Steps completed: %d\n", steps)
	fmt.Fprintln(Output, "\nBreakdown by operation:")
	fmt.Fprintf(Output, "  Data loading: %v (%.1f%%)\n", stats.DataLoadingTime, share(stats.DataLoadingTime, stats.TotalTime))
	fmt.Fprintf(Output, "  HE initialization: %v (%.1f%%)\n", stats.HEInitTime, share(stats.HEInitTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Encryption: %v (%.1f%%)\n", stats.EncryptionTime, share(stats.EncryptionTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Prediction: %v (%.1f%%)\n", stats.PredictionTime, share(stats.PredictionTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Gradient: %v (%.1f%%)\n", stats.GradientTime, share(stats.GradientTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Weight updates: %v (%.1f%%)\n", stats.UpdateTime, share(stats.UpdateTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Refresh: %v (%.1f%%)\n", stats.RefreshTime, share(stats.RefreshTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Decryption: %v (%.1f%%)\n", stats.DecryptionTime, share(stats.DecryptionTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Loss computation: %v (%.1f%%)\n", stats.LossComputationTime, share(stats.LossComputationTime, stats.TotalTime))
	fmt.Fprintln(Output, "\nPer step:")
	fmt.Fprintf(Output, "  Average prediction time: %v\n", stats.PredictionTime/time.Duration(steps))
	fmt.Fprintf(Output, "  Average gradient time: %v\n", stats.GradientTime/time.Duration(steps))
	fmt.Fprintf(Output, "  Average update time: %v\n", stats.UpdateTime/time.Duration(steps))
}

// DurationUS converts any time.Duration to micro-seconds as float64
func DurationUS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1_000.0
}
