package gcn

import (
	"context"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/Noofbiz/sstaGraph/datasets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// sineDataset builds a dataset whose label is twice the node mean of the last
// column of the feature window, so the network can learn it exactly.
func sineDataset(t *testing.T, nodes, steps, window int) *datasets.GraphDataset {
	t.Helper()
	feat := mat.NewDense(nodes, steps, nil)
	for n := 0; n < nodes; n++ {
		for s := 0; s < steps; s++ {
			feat.Set(n, s, math.Sin(0.3*float64(s)+0.5*float64(n)))
		}
	}
	targets := make([]float64, steps)
	for s := 1; s < steps; s++ {
		targets[s] = 2 * mat.Sum(feat.ColView(s-1)) / float64(nodes)
	}
	edges := mat.NewDense(nodes, nodes, nil)
	ds, err := datasets.NewGraphDataset(feat, edges, targets, window, 1, 0)
	require.NoError(t, err)
	return ds
}

func smallConfig(act string) Config {
	return Config{
		WindowSize:     3,
		HiddenFeatures: 16,
		OutFeatures:    8,
		Activation:     act,
		LearningRate:   0.01,
		Momentum:       0.9,
		BatchSize:      16,
		Epochs:         40,
		NoiseVar:       0.1,
		Seed:           42,
	}
}

func TestNewModel_Defaults(t *testing.T) {
	m, err := NewModel(Config{Seed: 1}, datasets.CompleteGraph(4))
	require.NoError(t, err)
	assert.Equal(t, 5, m.Config.WindowSize)
	assert.Equal(t, 200, m.Config.HiddenFeatures)
	assert.Equal(t, 100, m.Config.OutFeatures)
	assert.Equal(t, ActLeakyReLU, m.Config.Activation)
	assert.Equal(t, OptSGD, m.Config.Optimizer)
	assert.Equal(t, 0.02, m.Config.LearningRate)
	assert.Equal(t, 64, m.Config.BatchSize)
	assert.Equal(t, 30, m.Config.Epochs)
	assert.Equal(t, 0.2, m.NoiseVar())

	r, c := m.p.Conv1.W.Dims()
	assert.Equal(t, []int{5, 200}, []int{r, c})
	r, c = m.p.Out.W.Dims()
	assert.Equal(t, []int{100, 1}, []int{r, c})
}

func TestNewModel_Errors(t *testing.T) {
	_, err := NewModel(Config{Activation: "gelu"}, datasets.CompleteGraph(3))
	assert.ErrorIs(t, err, datasets.ErrInvalidParameter)

	_, err = NewModel(Config{Optimizer: "rmsprop"}, datasets.CompleteGraph(3))
	assert.ErrorIs(t, err, datasets.ErrInvalidParameter)

	// a single node has no incoming edge
	_, err = NewModel(Config{}, datasets.CompleteGraph(1))
	assert.ErrorIs(t, err, datasets.ErrInvalidParameter)

	_, err = NewModel(Config{}, nil)
	assert.ErrorIs(t, err, datasets.ErrInvalidParameter)
}

func TestPropagation_CompleteGraph(t *testing.T) {
	const n = 5
	p, err := propagation(datasets.CompleteGraph(n))
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := 1.0 / (n - 1)
			if i == j {
				want = 0
			}
			assert.InDelta(t, want, p.At(i, j), 1e-12)
		}
	}
}

func TestForward_ShapeMismatch(t *testing.T) {
	m, err := NewModel(smallConfig(ActTanh), datasets.CompleteGraph(4))
	require.NoError(t, err)
	_, _, err = m.forward(mat.NewDense(4, 2, nil))
	assert.ErrorIs(t, err, datasets.ErrShapeMismatch)
	_, _, err = m.forward(mat.NewDense(3, 3, nil))
	assert.ErrorIs(t, err, datasets.ErrShapeMismatch)
}

// TestBackward_MatchesFiniteDifferences checks every parameter gradient of
// the scalar output, including the shared conv2 weights.
func TestBackward_MatchesFiniteDifferences(t *testing.T) {
	for _, act := range []string{ActTanh, ActLeakyReLU} {
		t.Run(act, func(t *testing.T) {
			cfg := Config{WindowSize: 2, HiddenFeatures: 4, OutFeatures: 3, Activation: act, Seed: 7}
			m, err := NewModel(cfg, datasets.CompleteGraph(3))
			require.NoError(t, err)

			rng := rand.New(rand.NewSource(3))
			x := mat.NewDense(3, 2, nil)
			x.Apply(func(_, _ int, _ float64) float64 { return rng.NormFloat64() }, x)

			_, tr, err := m.forward(x)
			require.NoError(t, err)
			grads := m.p.zeroLike()
			m.backward(tr, 1, grads)

			const h = 1e-6
			gdata := grads.data()
			for pi, p := range m.p.data() {
				for j := range p {
					orig := p[j]
					p[j] = orig + h
					up, _, err := m.forward(x)
					require.NoError(t, err)
					p[j] = orig - h
					down, _, err := m.forward(x)
					require.NoError(t, err)
					p[j] = orig

					numeric := (up - down) / (2 * h)
					assert.InDelta(t, numeric, gdata[pi][j], 1e-6, "param %d[%d]", pi, j)
				}
			}
		})
	}
}

func TestFit_ReducesError(t *testing.T) {
	ds := sineDataset(t, 4, 100, 3)
	split, err := datasets.SequentialSplit(ds.Len(), 0.8)
	require.NoError(t, err)
	train := datasets.NewSubset(ds, split.Train, 0)
	test := datasets.NewSubset(ds, split.Test, 0)

	m, err := NewModel(smallConfig(ActLeakyReLU), ds.Graph())
	require.NoError(t, err)

	before, err := m.Evaluate(train)
	require.NoError(t, err)

	hist, err := m.Fit(context.Background(), train, test, nil)
	require.NoError(t, err)

	after, err := m.Evaluate(train)
	require.NoError(t, err)
	t.Logf("train mse before=%.6f after=%.6f", before.MSE, after.MSE)
	assert.Less(t, after.MSE, before.MSE)

	assert.Len(t, hist.Loss, 40)
	assert.Len(t, hist.Eval, 40)
	assert.Equal(t, []int{1, 2, 3}, hist.Epochs()[:3])
	assert.Equal(t, 40, m.Epoch())
	for i := range hist.Loss {
		assert.False(t, math.IsNaN(hist.Loss[i]) || math.IsInf(hist.Loss[i], 0))
		assert.False(t, math.IsNaN(hist.Eval[i]) || math.IsInf(hist.Eval[i], 0))
	}
	for _, p := range after.Predictions {
		assert.False(t, math.IsNaN(p) || math.IsInf(p, 0))
	}
	assert.Equal(t, 0.1, m.NoiseVar())
}

func TestFit_AdamAndLearnedNoise(t *testing.T) {
	ds := sineDataset(t, 3, 40, 3)
	cfg := smallConfig(ActTanh)
	cfg.Optimizer = OptAdam
	cfg.LearningRate = 0.005
	cfg.Epochs = 3
	cfg.LearnNoise = true
	m, err := NewModel(cfg, ds.Graph())
	require.NoError(t, err)

	hist, err := m.Fit(context.Background(), ds, nil, nil)
	require.NoError(t, err)
	require.Len(t, hist.NoiseVar, 3)
	assert.NotEqual(t, 0.1, hist.NoiseVar[2])
	assert.True(t, math.IsNaN(hist.Eval[0]))
	_, ok := m.opt.(*Adam)
	assert.True(t, ok)
}

func TestStepNoise_StaysPositive(t *testing.T) {
	// A step this size takes sigma = 1 exactly to zero when trained directly.
	assert.InDelta(t, math.Exp(-0.5), stepNoise(1, 0.5, 1), 1e-12)

	v := stepNoise(0.2, 1e3, 1)
	assert.Greater(t, v, 0.0)
	assert.Less(t, v, 0.2)

	assert.Greater(t, stepNoise(0.2, -0.3, 0.1), 0.2)
	assert.InDelta(t, 0.2, stepNoise(0.2, 0, 0.1), 1e-15)
}

func TestFit_Errors(t *testing.T) {
	ds := sineDataset(t, 3, 20, 3)
	m, err := NewModel(smallConfig(ActReLU), ds.Graph())
	require.NoError(t, err)

	_, err = m.Fit(context.Background(), datasets.NewSubset(ds, nil, 0), nil, nil)
	assert.ErrorIs(t, err, datasets.ErrInvalidParameter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Fit(ctx, ds, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	ds := sineDataset(t, 3, 30, 3)
	cfg := smallConfig(ActLeakyReLU)
	cfg.Epochs = 2
	m, err := NewModel(cfg, ds.Graph())
	require.NoError(t, err)
	_, err = m.Fit(context.Background(), ds, nil, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "checkpoint.gob")
	require.NoError(t, m.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m.Config, loaded.Config)
	assert.Equal(t, 2, loaded.Epoch())
	assert.Equal(t, m.NoiseVar(), loaded.NoiseVar())

	want, _, err := m.Predict(ds)
	require.NoError(t, err)
	got, _, err := loaded.Predict(ds)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	sgd, ok := loaded.opt.(*SGD)
	require.True(t, ok)
	assert.Equal(t, m.opt.(*SGD).Velocity, sgd.Velocity)

	_, err = Load(filepath.Join(t.TempDir(), "missing.gob"))
	assert.Error(t, err)
}
