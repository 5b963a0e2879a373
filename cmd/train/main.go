// ptensor-train: encrypted linear-regression trainer.
//
// The data owner holds the secret key. It encrypts the folds and streams them
// to the trainer over an in-process connection. The trainer holds only the
// public and evaluation keys: it runs the gradient steps on ciphertexts and
// sends the updated weights and the residual back to the owner after every
// step, who refreshes the weights and reports the loss. The final weights
// are decrypted by the owner.
//
// Usage:
//
//	ptensor-train --features=X.csv --labels=y.csv --epochs=50 --alpha=0.06
//	ptensor-train --samples=64 --synthetic-features=4
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/IanQS/pTensor/core/ckkswrapper"
	"github.com/IanQS/pTensor/dataset"
	"github.com/IanQS/pTensor/nn"
	"github.com/IanQS/pTensor/ptensor"
	"github.com/IanQS/pTensor/split"
	"github.com/IanQS/pTensor/tensor"
	"github.com/IanQS/pTensor/utils"
	"golang.org/x/exp/rand"
)

const amesWeights = "-0.121966,-1.08682,0.68429,-1.07519,0.0332695"

var (
	featuresPath = flag.String("features", "", "Feature CSV (header line, one observation per line)")
	labelsPath   = flag.String("labels", "", "Label CSV (header line, one label per line)")
	addBias      = flag.Bool("bias", true, "Prepend a column of ones to the features")
	standardize  = flag.Bool("standardize", false, "Standardize feature columns")
	epochs       = flag.Int("epochs", 50, "Number of gradient steps")
	alpha        = flag.Float64("alpha", 0.06, "Learning rate")
	l2           = flag.Float64("l2", -1, "L2 penalty factor (<= 0 disables it)")
	folds        = flag.Int("folds", 0, "Shuffled folds (0 keeps file order)")
	seed         = flag.Int64("seed", 42, "Random seed")
	weightsFlag  = flag.String("weights", amesWeights, "Initial weights, comma separated (empty draws them)")
	initFlag     = flag.String("init", tensor.InitNormal, "Initializer when weights are drawn: normal, uniform")
	logN         = flag.Int("logN", 14, "Ring dimension log2 (12-16)")
	window       = flag.Int("window", 0, "Slots per logical row (power of two, 0 fits the data)")
	workers      = flag.Int("workers", 1, "Goroutines per engine operation")
	samples      = flag.Int("samples", 64, "Synthetic observations when no CSV is given")
	synthetic    = flag.Int("synthetic-features", 4, "Synthetic features when no CSV is given")
	verbose      = flag.Bool("verbose", true, "Verbose output")
	outputFile   = flag.String("output", "", "Output weights file (JSON)")
	resumeFile   = flag.String("resume", "", "Start from weights saved by --output")
)

func log(format string, args ...any) {
	utils.Logf(format+"\n", args...)
}

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	cfg := utils.DefaultConfig()
	cfg.FeaturesPath, cfg.LabelsPath = *featuresPath, *labelsPath
	cfg.AddBias, cfg.Standardize = *addBias, *standardize
	cfg.Epochs, cfg.Alpha, cfg.L2, cfg.Folds, cfg.Seed = *epochs, *alpha, *l2, *folds, *seed
	cfg.LogN, cfg.Window, cfg.Workers = *logN, *window, *workers
	if *resumeFile != "" {
		saved, err := utils.LoadWeights(*resumeFile)
		if err != nil {
			fail("resume", err)
		}
		if saved.Weights == nil {
			fail("resume", fmt.Errorf("%s holds no weights", *resumeFile))
		}
		cfg.Weights = utils.WeightDataToTensor(saved.Weights).Data
		log("Resuming from %s (%d losses recorded)", *resumeFile, len(saved.Losses))
	} else if *weightsFlag != "" {
		w, err := utils.ParseFloats(*weightsFlag)
		if err != nil {
			fail("weights", err)
		}
		cfg.Weights = w
	}
	if err := utils.ValidateConfig(&cfg); err != nil {
		fail("config", err)
	}

	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║              pTensor Encrypted Linear Regression             ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nConfiguration:\n")
	fmt.Printf("  Epochs:        %d\n", cfg.Epochs)
	fmt.Printf("  Alpha:         %.4f\n", cfg.Alpha)
	fmt.Printf("  L2:            %.4f\n", cfg.L2)
	fmt.Printf("  Folds:         %d\n", cfg.Folds)
	fmt.Printf("  LogN:          %d\n", cfg.LogN)
	fmt.Printf("  Workers:       %d\n", cfg.Workers)
	fmt.Println()

	stats := &utils.TimingStats{}
	totalStart := time.Now()

	start := time.Now()
	x, y, err := loadData(cfg)
	if err != nil {
		fail("data", err)
	}
	stats.DataLoadingTime = time.Since(start)
	obs, features := x.Dims()
	log("Loaded %d observations with %d features", obs, features)

	start = time.Now()
	he, err := newSession(cfg, obs, features)
	if err != nil {
		fail("HE context", err)
	}
	stats.HEInitTime = time.Since(start)
	log("HE initialization: %.2fs (window %d, %d levels)", stats.HEInitTime.Seconds(), he.Window, he.Params.MaxLevel())
	if obs > he.Window || features > he.Window {
		fail("data", fmt.Errorf("%w: %d observations and %d features, window %d", ptensor.ErrWindowOverflow, obs, features, he.Window))
	}
	eng := ptensor.NewEngine(he, ptensor.WithWorkers(cfg.Workers))

	rotation, err := ckkswrapper.MeasureRotationTime(he, 4, cfg.Workers)
	if err != nil {
		fail("rotation benchmark", err)
	}
	sent := max(cfg.Folds, 1) * (features + 2*obs + 1)
	log("Rotation: %v; sending %d ciphertexts (%d KB each) takes ~%v at 100 MB/s",
		rotation, sent, he.CiphertextSize()>>10, ckkswrapper.TransferTime(sent, he.CiphertextSize(), 100))
	he.Counters().Reset()

	provider, err := dataset.NewProvider(x, y, cfg.Folds)
	if err != nil {
		fail("provider", err)
	}
	initial, err := initialWeights(cfg, features, obs)
	if err != nil {
		fail("weights", err)
	}

	ownerConn, trainerConn := net.Pipe()
	type ownerResult struct {
		weights *tensor.Tensor
		err     error
	}
	ownerDone := make(chan ownerResult, 1)
	go func() {
		w, err := runOwner(ownerConn, provider, eng, cfg, stats)
		ownerDone <- ownerResult{w, err}
	}()

	trainerEng := ptensor.NewEngine(he.PublicView(), ptensor.WithWorkers(cfg.Workers))
	model, err := runTrainer(trainerConn, trainerEng, initial, cfg)
	if err != nil {
		fail("training", err)
	}
	owner := <-ownerDone
	if owner.err != nil {
		fail("data owner", owner.err)
	}
	stats.PredictionTime = model.Stats.PredictionTime
	stats.GradientTime = model.Stats.GradientTime
	stats.UpdateTime = model.Stats.UpdateTime
	stats.EncryptionTime += model.Stats.EncryptionTime
	stats.TotalTime = time.Since(totalStart)

	if summary, err := nn.Summarize(model.Losses); err == nil {
		fmt.Printf("\nLoss: first %.6f, last %.6f, min %.6f, mean %.6f\n", summary.First, summary.Last, summary.Min, summary.Mean)
	}
	fmt.Printf("Training complete! Total time: %.2fs\n", stats.TotalTime.Seconds())
	he.PrintCounters("training")
	log("Estimated rotation time: %v of %v", ckkswrapper.EstimateRotationTime(he.Counters().Snapshot(), rotation), stats.TotalTime)
	utils.PrintTimingStats(stats, cfg.Epochs)

	if *outputFile != "" {
		w := owner.weights
		fmt.Printf("\nSaving weights to %s...\n", *outputFile)
		out := &utils.ModelWeights{
			Version: "1.0",
			Weights: utils.TensorToWeightData("weights", w),
			Losses:  model.Losses,
			Alpha:   cfg.Alpha,
			L2:      cfg.L2,
			Epochs:  cfg.Epochs,
		}
		if err := utils.SaveWeights(*outputFile, out); err != nil {
			fail("save", err)
		}
		fmt.Println("Done!")
	}
}

func fail(stage string, err error) {
	fmt.Fprintf(os.Stderr, "Error (%s): %v\n", stage, err)
	os.Exit(1)
}

// newSession builds the HE context. Without an explicit window the smallest
// one holding the data is used, which keeps slot sums short.
func newSession(cfg utils.Config, obs, features int) (*ckkswrapper.HeContext, error) {
	hcfg, err := ckkswrapper.PresetConfig(cfg.LogN)
	if err != nil {
		return nil, err
	}
	hcfg.Window = cfg.Window
	if hcfg.Window == 0 {
		hcfg.Window = ckkswrapper.WindowFor(obs, features)
	}
	return ckkswrapper.NewHeContext(hcfg)
}

// loadData reads the CSV pair, or draws a synthetic regression problem
// y = X·w + noise when no files are given.
func loadData(cfg utils.Config) (*tensor.Tensor, *tensor.Tensor, error) {
	var x, y *tensor.Tensor
	if cfg.FeaturesPath != "" {
		fx, err := os.Open(cfg.FeaturesPath)
		if err != nil {
			return nil, nil, err
		}
		defer fx.Close()
		fy, err := os.Open(cfg.LabelsPath)
		if err != nil {
			return nil, nil, err
		}
		defer fy.Close()
		if x, err = dataset.ReadFeatures(fx, cfg.AddBias); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", cfg.FeaturesPath, err)
		}
		if y, err = dataset.ReadLabels(fy); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", cfg.LabelsPath, err)
		}
	} else {
		src := rand.NewSource(uint64(cfg.Seed))
		raw := tensor.RandomNormal(*samples, *synthetic, 0, 1, src)
		if cfg.AddBias {
			rows := raw.Rows()
			for i, row := range rows {
				rows[i] = append([]float64{1}, row...)
			}
			var err error
			if raw, err = tensor.FromRows(rows); err != nil {
				return nil, nil, err
			}
		}
		_, features := raw.Dims()
		truth := tensor.RandomUniform(features, 1, -1, 1, src)
		clean, err := tensor.MatMul(raw, truth)
		if err != nil {
			return nil, nil, err
		}
		noise := tensor.RandomNormal(len(clean.Data), 1, 0, 0.05, src)
		labels := make([]float64, len(clean.Data))
		for i := range labels {
			labels[i] = clean.Data[i] + noise.Data[i]
		}
		x, y = raw, tensor.NewWithData(labels)
	}
	if cfg.Standardize {
		var err error
		if x, _, _, err = dataset.Standardize(x); err != nil {
			return nil, nil, err
		}
	}
	return x, y, nil
}

func initialWeights(cfg utils.Config, features, obs int) (*tensor.Tensor, error) {
	if len(cfg.Weights) == features {
		return tensor.GenerateWeights(features, obs, tensor.NewWithData(cfg.Weights), "", nil)
	}
	if len(cfg.Weights) > 0 {
		log("Ignoring %d fixed weights for %d features; drawing %s weights", len(cfg.Weights), features, *initFlag)
	}
	return tensor.GenerateWeights(features, obs, nil, *initFlag, rand.NewSource(uint64(cfg.Seed)))
}

// runOwner encrypts and sends every fold, refreshes the weights after every
// step, and decrypts the final weights.
func runOwner(conn net.Conn, provider *dataset.Provider, eng *ptensor.Engine, cfg utils.Config, stats *utils.TimingStats) (*tensor.Tensor, error) {
	defer conn.Close()
	p := split.NewProtocol(conn, conn)

	start := time.Now()
	encFolds, err := provider.Provide(uint64(cfg.Seed), eng)
	if err != nil {
		return nil, p.Abort(err)
	}
	stats.EncryptionTime += time.Since(start)
	log("Encrypted %d fold(s) in %.2fs", len(encFolds), time.Since(start).Seconds())

	for i, f := range encFolds {
		if err := p.SendFold(i, f.X, f.Y); err != nil {
			return nil, err
		}
	}
	if err := p.SendDone(); err != nil {
		return nil, err
	}

	epoch, w, err := p.Serve(nn.LocalKeys{Engine: eng, Stats: stats})
	if err != nil {
		return nil, err
	}
	start = time.Now()
	plain, err := eng.Decrypt(w)
	if err != nil {
		return nil, err
	}
	stats.DecryptionTime += time.Since(start)

	rows := plain.Real().Rows()
	out := tensor.New(len(rows), 1)
	fmt.Printf("\nWeights after %d epochs:\n", epoch)
	for f, row := range rows {
		out.Data[f] = row[0]
		fmt.Printf("  w[%d] = %+.6f\n", f, row[0])
	}
	return out, nil
}

// runTrainer receives the encrypted folds and trains on a public-only
// engine, asking the data owner for every refresh. The final encrypted
// weights go back to the owner.
func runTrainer(conn net.Conn, eng *ptensor.Engine, initial *tensor.Tensor, cfg utils.Config) (*nn.LinearRegression, error) {
	defer conn.Close()
	p := split.NewProtocol(conn, conn)

	var encFolds []dataset.Fold
	for {
		_, x, y, err := p.ReceiveFold()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		encFolds = append(encFolds, dataset.Fold{X: x, Y: y})
	}
	log("Received %d encrypted fold(s)", len(encFolds))

	model, err := nn.NewLinearRegression(eng, initial, cfg.Alpha, cfg.L2)
	if err != nil {
		return nil, p.Abort(err)
	}
	model.Keys = split.RemoteKeys{P: p}
	model.Seed = uint64(cfg.Seed)
	fmt.Println("\nStarting training...")
	if _, err := model.Train(encFolds, cfg.Epochs); err != nil {
		return nil, p.Abort(err)
	}
	if err := p.SendWeights(cfg.Epochs, model.Weights); err != nil {
		return nil, err
	}
	return model, nil
}
