// ptensor-step: one encrypted gradient step on a fixed 6x4 dataset, printed
// next to the plaintext computation.
//
// Usage:
//
//	ptensor-step --logN=13 --alpha=0.01
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/IanQS/pTensor/core/ckkswrapper"
	"github.com/IanQS/pTensor/ptensor"
	"github.com/IanQS/pTensor/tensor"
	"github.com/IanQS/pTensor/utils"
)

var (
	logN    = flag.Int("logN", 13, "Ring dimension log2 (12-16)")
	alpha   = flag.Float64("alpha", 0.01, "Learning rate")
	workers = flag.Int("workers", 1, "Goroutines per engine operation")
	verbose = flag.Bool("verbose", true, "Print operation counters")
)

var (
	X = [][]float64{
		{5.1, 3.5, 1.4, 0.2},
		{4.9, 3., 1.4, 0.2},
		{7., 3.2, 4.7, 1.4},
		{6.4, 3.2, 4.5, 1.5},
		{6.3, 3.3, 6., 2.5},
		{5.8, 2.7, 5.1, 1.9},
	}
	y = []float64{0, 0, 1, 1, 2, 2}
	w = []float64{1, 2, 3, 4}
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	cfg, err := ckkswrapper.PresetConfig(*logN)
	if err != nil {
		fail(err)
	}
	cfg.Window = 16
	start := time.Now()
	he, err := ckkswrapper.NewHeContext(cfg)
	if err != nil {
		fail(err)
	}
	fmt.Printf("HE initialization: %.2fs\n", time.Since(start).Seconds())
	eng := ptensor.NewEngine(he, ptensor.WithWorkers(*workers))

	x, err := tensor.FromRows(X)
	if err != nil {
		fail(err)
	}
	obs, features := x.Dims()
	weights, err := tensor.GenerateWeights(features, obs, tensor.NewWithData(w), "", nil)
	if err != nil {
		fail(err)
	}

	// Plaintext reference.
	wt := tensor.Transpose(tensor.NewWithData(w))
	pred, err := tensor.MatMul(x, wt)
	if err != nil {
		fail(err)
	}
	residual, err := tensor.Sub(tensor.Transpose(pred), tensor.NewWithData(y))
	if err != nil {
		fail(err)
	}
	grad, err := tensor.MatMul(tensor.Transpose(x), tensor.Transpose(residual))
	if err != nil {
		fail(err)
	}

	// Encrypted step.
	start = time.Now()
	encX := encrypt(eng, tensor.Transpose(x))
	encW := encrypt(eng, weights)
	encY := encrypt(eng, tensor.NewWithData(y))
	fmt.Printf("Encryption: %.2fs\n", time.Since(start).Seconds())
	he.Counters().Reset()

	start = time.Now()
	encPred, err := eng.Dot(encX, ptensor.Cipher(encW), false)
	if err != nil {
		fail(err)
	}
	encResidual, err := eng.Sub(encPred, ptensor.Cipher(encY))
	if err != nil {
		fail(err)
	}
	encGrad, err := eng.Dot(encX, ptensor.Cipher(encResidual), false)
	if err != nil {
		fail(err)
	}
	rate := *alpha / float64(obs)
	encNext, err := eng.ApplyGradient(encW, encGrad, ptensor.Scalar(rate), ptensor.Descent)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Encrypted step: %.2fs, %d levels used\n", time.Since(start).Seconds(), he.Params.MaxLevel()-encNext.Level())
	he.PrintCounters("step")

	fmt.Println("\nstage       plaintext      encrypted      |diff|")
	report("prediction", pred.Data, column(eng, encPred, true))
	report("residual", residual.Data, column(eng, encResidual, true))
	report("gradient", grad.Data, column(eng, encGrad, false))
	next, err := tensor.Sub(wt, tensor.Scale(rate, grad))
	if err != nil {
		fail(err)
	}
	got := column(eng, encNext, false)
	report("weights", next.Data, got)
	diff, err := tensor.MaxAbsDiff(next, tensor.Transpose(tensor.NewWithData(got)))
	if err != nil {
		fail(err)
	}
	fmt.Printf("\nmax |diff| on the updated weights: %.2e\n", diff)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func encrypt(eng *ptensor.Engine, t *tensor.Tensor) *ptensor.PTensor {
	p, err := ptensor.FromTensor(t)
	if err != nil {
		fail(err)
	}
	c, err := eng.Encrypt(p)
	if err != nil {
		fail(err)
	}
	return c
}

// column decrypts t and returns its first row, or its first column.
func column(eng *ptensor.Engine, t *ptensor.PTensor, row bool) []float64 {
	p, err := eng.Decrypt(t)
	if err != nil {
		fail(err)
	}
	rows := p.Real().Rows()
	if row {
		return rows[0]
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r[0]
	}
	return out
}

func report(stage string, want, got []float64) {
	for i := range want {
		fmt.Printf("%-10s  %+12.6f  %+12.6f  %.2e\n", fmt.Sprintf("%s[%d]", stage, i), want[i], got[i], math.Abs(want[i]-got[i]))
	}
}
