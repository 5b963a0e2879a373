package utils

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"
)

func TestDurationUS(t *testing.T) {
	d := 1234*time.Microsecond + 567*time.Nanosecond
	got := DurationUS(d)
	if math.Abs(got-1234.567) > 0.001 {
		t.Fatalf("want 1234.567µs, got %.3f", got)
	}
}

func withOutput(t *testing.T, verbose bool) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevVerbose := Output, Verbose
	Output, Verbose = &buf, verbose
	t.Cleanup(func() { Output, Verbose = prevOut, prevVerbose })
	return &buf
}

func TestPrintTimingStatsRespectsVerbose(t *testing.T) {
	stats := &TimingStats{TotalTime: time.Second, PredictionTime: 250 * time.Millisecond}

	buf := withOutput(t, false)
	PrintTimingStats(stats, 2)
	Logf("hidden %d\n", 1)
	if buf.Len() != 0 {
		t.Fatalf("expected no output when not verbose, got %q", buf.String())
	}

	buf = withOutput(t, true)
	PrintTimingStats(stats, 2)
	if !strings.Contains(buf.String(), "Prediction: 250ms (25.0%)") {
		t.Errorf("missing prediction share in:\n%s", buf.String())
	}
}

func TestPrintTimingStatsZeroTotal(t *testing.T) {
	buf := withOutput(t, true)
	PrintTimingStats(&TimingStats{}, 0)
	if strings.Contains(buf.String(), "NaN") {
		t.Errorf("zero totals should not print NaN:\n%s", buf.String())
	}
}
