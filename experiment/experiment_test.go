package experiment

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Noofbiz/sstaGraph/config"
	"github.com/Noofbiz/sstaGraph/datasets"
	"github.com/Noofbiz/sstaGraph/gcn"
	"github.com/Noofbiz/sstaGraph/report"
	"github.com/Noofbiz/sstaGraph/runlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/mat"
)

func synthArrays(nodes, steps int) *datasets.Arrays {
	feat := mat.NewDense(nodes, steps, nil)
	targets := make([]float64, steps)
	for s := 0; s < steps; s++ {
		for n := 0; n < nodes; n++ {
			feat.Set(n, s, math.Sin(0.4*float64(s)+float64(n)))
		}
		targets[s] = math.Cos(0.4 * float64(s))
	}
	edges := mat.NewDense(nodes, nodes, nil)
	return &datasets.Arrays{NodeFeatures: feat, EdgeFeatures: edges, Targets: targets}
}

func smallExperiment(dir string) config.Experiment {
	e := config.Default()
	e.HiddenFeatures = 8
	e.OutFeatures = 4
	e.WindowSize = 3
	e.BatchSize = 8
	e.Epochs = 2
	e.Seed = 11
	e.OutDir = dir
	return e
}

func TestRun_WritesEveryOutput(t *testing.T) {
	dir := t.TempDir()
	store, err := runlog.NewStore(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	defer store.Close()

	r := &Runner{Log: zaptest.NewLogger(t).Sugar(), Store: store}
	exp := smallExperiment(dir)
	res, err := r.Run(context.Background(), exp, synthArrays(3, 40))
	require.NoError(t, err)

	// 40 - 3 - 1 + 1 samples, 80% of them for training.
	assert.Equal(t, 37, res.Experiment.SampleCount)
	require.NotNil(t, res.Test)
	assert.Len(t, res.Test.Predictions, 37-29)
	assert.Len(t, res.History.Loss, 2)
	assert.InDelta(t, math.Sqrt(res.MSE()), res.RMSE(), 1e-12)

	for _, prefix := range []string{"checkpoint", "perform", "pred_a", "pred_b", "metrics"} {
		matches, err := filepath.Glob(filepath.Join(dir, prefix+"_SSTAGraphDataset_GCN_8_4_3_1_37_0.8_BMSE_0.2_*"))
		require.NoError(t, err)
		assert.NotEmpty(t, matches, prefix)
	}
	for _, f := range res.Files {
		_, err := os.Stat(f)
		assert.NoError(t, err, f)
	}

	perf, err := report.ReadPerformance(filepath.Join(dir, res.Experiment.FileName("perform", ".txt")))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, perf.AllEpoch)
	assert.Equal(t, res.History.Loss, perf.AllLoss)

	m, err := gcn.Load(filepath.Join(dir, res.Experiment.FileName("checkpoint", ".gob")))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Epoch())

	runs, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.Name, runs[0].Name)
	assert.InDelta(t, res.MSE(), runs[0].MSE, 1e-12)
}

func TestRun_WithoutTestSet(t *testing.T) {
	dir := t.TempDir()
	exp := smallExperiment(dir)
	exp.TrainSplit = 1
	exp.Epochs = 1
	res, err := (&Runner{}).Run(context.Background(), exp, synthArrays(3, 20))
	require.NoError(t, err)
	assert.Nil(t, res.Test)
	assert.True(t, math.IsNaN(res.MSE()))
	assert.True(t, math.IsNaN(res.History.Eval[0]))
}

func TestRun_Errors(t *testing.T) {
	exp := smallExperiment(t.TempDir())
	exp.WindowSize = 0
	_, err := (&Runner{}).Run(context.Background(), exp, synthArrays(3, 20))
	assert.ErrorIs(t, err, datasets.ErrInvalidParameter)

	exp = smallExperiment(t.TempDir())
	exp.WindowSize = 19
	exp.LeadTime = 5
	_, err = (&Runner{}).Run(context.Background(), exp, synthArrays(3, 20))
	assert.ErrorIs(t, err, datasets.ErrShapeMismatch)
}

func TestRunSweep(t *testing.T) {
	dir := t.TempDir()
	s := config.Sweep{Base: smallExperiment(dir), LeadTimes: []int{1, 2}, NoiseVars: []float64{0.5, 1}}
	s.Base.Epochs = 1
	results, err := (&Runner{}).RunSweep(context.Background(), s, synthArrays(3, 30))
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, 1, results[1].Experiment.LeadTime)
	assert.Equal(t, 1.0, results[1].Experiment.NoiseVar)
	assert.Equal(t, 2, results[2].Experiment.LeadTime)
	assert.Equal(t, 26, results[3].Experiment.SampleCount)

	// Each run's metrics file holds that run only.
	data, err := os.ReadFile(filepath.Join(dir, results[1].Experiment.FileName("metrics", ".prom")))
	require.NoError(t, err)
	assert.Contains(t, string(data), `run="`+results[1].Name+`"`)
	assert.NotContains(t, string(data), `run="`+results[0].Name+`"`)
}

func TestRunPersistence(t *testing.T) {
	dir := t.TempDir()
	store, err := runlog.NewStore(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	defer store.Close()

	targets := synthArrays(2, 100).Targets
	r := &Runner{Log: zaptest.NewLogger(t).Sugar(), Store: store}
	results, err := r.RunPersistence(context.Background(), targets, 0.8, []int{1, 3}, dir)
	require.NoError(t, err)
	require.Len(t, results, 2)

	plots, err := filepath.Glob(filepath.Join(dir, "plot_persist_SSTAGraphDataset_leadtime_*.png"))
	require.NoError(t, err)
	assert.Len(t, plots, 2)

	best, err := store.Best(context.Background(), runlog.KindPersistence, 3)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.InDelta(t, results[1].MSE, best.MSE, 1e-12)
	assert.True(t, math.IsNaN(best.NoiseVar))
}
