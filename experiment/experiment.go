// Package experiment wires the dataset, the GCN, the reports and the run
// ledger into a single training run, and runs sweeps of them.
package experiment

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Noofbiz/sstaGraph/config"
	"github.com/Noofbiz/sstaGraph/datasets"
	"github.com/Noofbiz/sstaGraph/gcn"
	"github.com/Noofbiz/sstaGraph/report"
	"github.com/Noofbiz/sstaGraph/runlog"
	"go.uber.org/zap"
)

// Runner executes experiments. Log and Store are optional.
type Runner struct {
	Log   *zap.SugaredLogger
	Store *runlog.Store
}

// Result is the outcome of one training run.
type Result struct {
	Name       string
	Experiment config.Experiment
	History    *gcn.History

	// Test is nil when the split leaves no test samples.
	Test *gcn.Evaluation

	// Files are the paths of every artefact written.
	Files []string
}

// MSE returns the final test MSE, NaN without a test set.
func (r *Result) MSE() float64 {
	if r.Test == nil {
		return math.NaN()
	}
	return r.Test.MSE
}

// RMSE returns the final test RMSE, NaN without a test set.
func (r *Result) RMSE() float64 {
	if r.Test == nil {
		return math.NaN()
	}
	return r.Test.RMSE
}

func (r *Runner) log() *zap.SugaredLogger {
	if r.Log == nil {
		return zap.NewNop().Sugar()
	}
	return r.Log
}

// Run trains and evaluates one experiment on arrays and writes its outputs
// to exp.OutDir. Failing to write a plot or the metrics file is logged and
// does not fail the run.
func (r *Runner) Run(ctx context.Context, exp config.Experiment, arrays *datasets.Arrays) (*Result, error) {
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	ds, err := datasets.NewGraphDatasetFromArrays(arrays, exp.WindowSize, exp.LeadTime, exp.SampleCount)
	if err != nil {
		return nil, fmt.Errorf("build dataset: %w", err)
	}
	exp.SampleCount = ds.Len()
	name := exp.RunName()
	log := r.log().With("run", name)

	split, err := datasets.SequentialSplit(ds.Len(), exp.TrainSplit)
	if err != nil {
		return nil, err
	}
	train := datasets.NewSubset(ds, split.Train, exp.BatchSize)
	test := datasets.NewSubset(ds, split.Test, 1)
	log.Infow("dataset ready",
		"samples", ds.Len(),
		"nodes", ds.NodeCount(),
		"edges", ds.Graph().NumEdges(),
		"train", train.Len(),
		"test", test.Len(),
	)

	model, err := gcn.NewModel(gcnConfig(exp), ds.Graph())
	if err != nil {
		return nil, err
	}
	log.Infow("start training", "epochs", exp.Epochs, "batch_size", exp.BatchSize)
	hist, err := model.Fit(ctx, train, test, log)
	if err != nil {
		return nil, fmt.Errorf("train %s: %w", name, err)
	}
	log.Infow("complete training", "seconds", hist.Elapsed.Seconds())

	res := &Result{Name: name, Experiment: exp, History: hist}
	out := func(prefix, ext string) string {
		p := filepath.Join(exp.OutDir, exp.FileName(prefix, ext))
		res.Files = append(res.Files, p)
		return p
	}

	if err := model.Save(out("checkpoint", ".gob")); err != nil {
		return nil, fmt.Errorf("save checkpoint: %w", err)
	}

	if test.Len() > 0 {
		if res.Test, err = model.Evaluate(test); err != nil {
			return nil, fmt.Errorf("test %s: %w", name, err)
		}
		log.Infow("final test", "mse", res.Test.MSE, "rmse", res.Test.RMSE)
	} else {
		log.Warnw("no test samples, skipping final test", "train_split", exp.TrainSplit)
	}

	perf := report.NewPerformance(hist.Elapsed, hist.Loss, hist.Eval, hist.Epochs())
	if err := report.WritePerformance(out("perform", ".txt"), perf); err != nil {
		return nil, err
	}

	if res.Test != nil {
		title := "MSE: " + roundString(res.Test.MSE, 4)
		if err := report.PlotPredictions(out("pred_a", ".png"), title, res.Test.Predictions, res.Test.Observed); err != nil {
			log.Warnw("prediction plot failed", "error", err)
		}
		if err := report.PlotScatter(out("pred_b", ".png"), title, res.Test.Observed, res.Test.Predictions); err != nil {
			log.Warnw("scatter plot failed", "error", err)
		}
	}
	if err := report.PlotPerformance(out("perform", ".png"), exp.LossFunction, hist.Epochs(), hist.Loss, hist.Eval); err != nil {
		log.Warnw("performance plot failed", "error", err)
	}

	metrics := report.NewMetrics()
	metrics.ObserveEpochs(name, hist.Loss, hist.Eval, hist.NoiseVar)
	metrics.ObserveTest(name, res.MSE(), res.RMSE(), hist.Elapsed.Seconds())
	if err := metrics.WriteFile(out("metrics", ".prom")); err != nil {
		log.Warnw("metrics file failed", "error", err)
	}

	if r.Store != nil {
		run := &runlog.Run{
			Name:     name,
			Kind:     runlog.KindGCN,
			LeadTime: exp.LeadTime,
			NoiseVar: exp.NoiseVar,
			MSE:      res.MSE(),
			RMSE:     res.RMSE(),
			Seconds:  hist.Elapsed.Seconds(),
			Epochs:   exp.Epochs,
		}
		if err := r.Store.Record(ctx, run); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// RunSweep runs every experiment of s in order. It stops at the first
// failure and returns the results gathered so far.
func (r *Runner) RunSweep(ctx context.Context, s config.Sweep, arrays *datasets.Arrays) ([]*Result, error) {
	exps := s.Expand()
	results := make([]*Result, 0, len(exps))
	for i, exp := range exps {
		r.log().Infow("sweep step", "step", i+1, "of", len(exps), "lead_time", exp.LeadTime, "noise_var", exp.NoiseVar)
		res, err := r.Run(ctx, exp, arrays)
		if err != nil {
			return results, fmt.Errorf("lead time %d, noise %v: %w", exp.LeadTime, exp.NoiseVar, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// gcnConfig maps an experiment onto the model configuration.
func gcnConfig(exp config.Experiment) gcn.Config {
	return gcn.Config{
		WindowSize:     exp.WindowSize,
		HiddenFeatures: exp.HiddenFeatures,
		OutFeatures:    exp.OutFeatures,
		Activation:     exp.Activation,
		Optimizer:      strings.ToLower(exp.Optimizer),
		LearningRate:   exp.LearningRate,
		Momentum:       exp.Momentum,
		WeightDecay:    exp.WeightDecay,
		BatchSize:      exp.BatchSize,
		Epochs:         exp.Epochs,
		NoiseVar:       exp.NoiseVar,
		LearnNoise:     exp.LearnNoise,
		Seed:           exp.Seed,
	}
}

// roundString formats v rounded to the given number of decimals.
func roundString(v float64, decimals int) string {
	p := math.Pow(10, float64(decimals))
	return strconv.FormatFloat(math.Round(v*p)/p, 'f', -1, 64)
}
