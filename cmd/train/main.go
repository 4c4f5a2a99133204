package main

// Trains the SSTA GCN with the Balanced MSE loss over a sweep of lead times
// and noise variances, writing checkpoints, performance logs, plots and
// metrics for every run.
//
// Usage:
//
//	go run ./cmd/train -config sweep.yaml -lead-times 1,2,3 -noise-vars 0.2,0.5
//
// Flags override values read from -config; -config overrides the built-in
// defaults. SSTA_DATA_DIR, SSTA_OUT_DIR and SSTA_RUNS_DB (optionally from a
// .env file) override the default paths.

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Noofbiz/sstaGraph/config"
	"github.com/Noofbiz/sstaGraph/datasets"
	"github.com/Noofbiz/sstaGraph/experiment"
	"github.com/Noofbiz/sstaGraph/runlog"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML sweep file (optional)")
	envFile := flag.String("env", ".env", "path to a .env file with SSTA_* defaults (optional)")
	dataDir := flag.String("data", "", "directory holding node_features.npy, edge_features.npy and y.npy")
	outDir := flag.String("out", "", "output directory for checkpoints, logs and plots")
	runsDB := flag.String("runs-db", "", "SQLite run ledger path (empty string keeps the configured value)")
	leadTimes := flag.String("lead-times", "", "comma-separated lead times, e.g. '1,2,3,6,12,23'")
	noiseVars := flag.String("noise-vars", "", "comma-separated BMC noise variances, e.g. '0.2,0.5,0.8,1'")

	epochs := flag.Int("epochs", 0, "number of training epochs")
	batchSize := flag.Int("batch-size", 0, "training batch size")
	learningRate := flag.Float64("learning-rate", 0, "learning rate")
	momentum := flag.Float64("momentum", 0, "SGD momentum")
	weightDecay := flag.Float64("weight-decay", 0, "L2 weight decay")
	optimizer := flag.String("optimizer", "", "optimizer: 'SGD' or 'Adam'")
	activation := flag.String("activation", "", "activation: 'lrelu', 'tanh' or 'relu'")
	windowSize := flag.Int("window-size", 0, "number of months in the feature window")
	sampleCount := flag.Int("sample-count", 0, "number of windowed samples (0 = all)")
	trainSplit := flag.Float64("train-split", 0, "fraction of samples used for training")
	learnNoise := flag.Bool("learn-noise", false, "train the BMC noise variance")
	seed := flag.Int64("seed", 0, "random seed for weight initialisation (0 = time based)")

	printEffectiveConfig := flag.Bool("print-effective-config", false, "print the effective (file+env+CLI merged) sweep and exit")
	jsonLogs := flag.Bool("json-logs", false, "emit JSON logs instead of the console format")
	flag.Parse()

	logger, err := newLogger(*jsonLogs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	if err := config.LoadEnv(*envFile); err != nil {
		log.Fatalw("failed to load env file", "path", *envFile, "error", err)
	}

	sweep := config.DefaultSweep()
	if *configPath != "" {
		if sweep, err = config.LoadSweep(*configPath); err != nil {
			log.Fatalw("failed to load sweep", "error", err)
		}
	}
	if err := sweep.ApplyEnv(); err != nil {
		log.Fatalw("failed to read environment", "error", err)
	}

	// Only flags given on the command line override the sweep.
	flag.Visit(func(f *flag.Flag) {
		b := &sweep.Base
		switch f.Name {
		case "data":
			b.DataDir = *dataDir
		case "out":
			b.OutDir = *outDir
		case "runs-db":
			b.RunsDB = *runsDB
		case "epochs":
			b.Epochs = *epochs
		case "batch-size":
			b.BatchSize = *batchSize
		case "learning-rate":
			b.LearningRate = *learningRate
		case "momentum":
			b.Momentum = *momentum
		case "weight-decay":
			b.WeightDecay = *weightDecay
		case "optimizer":
			b.Optimizer = *optimizer
		case "activation":
			b.Activation = *activation
		case "window-size":
			b.WindowSize = *windowSize
		case "sample-count":
			b.SampleCount = *sampleCount
		case "train-split":
			b.TrainSplit = *trainSplit
		case "learn-noise":
			b.LearnNoise = *learnNoise
		case "seed":
			b.Seed = *seed
		case "lead-times":
			if sweep.LeadTimes, err = parseInts(*leadTimes); err != nil {
				log.Fatalw("invalid -lead-times", "error", err)
			}
		case "noise-vars":
			if sweep.NoiseVars, err = parseFloats(*noiseVars); err != nil {
				log.Fatalw("invalid -noise-vars", "error", err)
			}
		}
	})

	if *printEffectiveConfig {
		out, err := sweep.Marshal()
		if err != nil {
			log.Fatalw("failed to marshal sweep", "error", err)
		}
		fmt.Print(string(out))
		return
	}
	if err := sweep.Validate(); err != nil {
		log.Fatalw("invalid configuration", "error", err)
	}

	dir, err := datasets.FindDataDir([]string{
		sweep.Base.DataDir,
		filepath.Join("..", sweep.Base.DataDir),
		filepath.Join("..", "..", sweep.Base.DataDir),
	})
	if err != nil {
		log.Fatalw("data directory not found", "data_dir", sweep.Base.DataDir, "error", err)
	}
	arrays, err := datasets.LoadArrays(dir)
	if err != nil {
		log.Fatalw("failed to load arrays", "dir", dir, "error", err)
	}
	log.Infow("arrays loaded", "dir", dir, "nodes", arrays.NodeCount(), "months", arrays.TimeLength())

	if err := os.MkdirAll(sweep.Base.OutDir, 0755); err != nil {
		log.Fatalw("failed to create output directory", "error", err)
	}

	runner := &experiment.Runner{Log: log}
	if sweep.Base.RunsDB != "" {
		store, err := runlog.NewStore(sweep.Base.RunsDB)
		if err != nil {
			log.Fatalw("failed to open run ledger", "path", sweep.Base.RunsDB, "error", err)
		}
		defer store.Close()
		runner.Store = store
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := runner.RunSweep(ctx, sweep, arrays)
	for _, r := range results {
		log.Infow("run finished", "run", r.Name, "test_mse", r.MSE(), "test_rmse", r.RMSE())
	}
	if err != nil {
		log.Errorw("sweep stopped", "completed", len(results), "error", err)
		logger.Sync()
		os.Exit(1)
	}
}

func newLogger(jsonLogs bool) (*zap.Logger, error) {
	if jsonLogs {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
