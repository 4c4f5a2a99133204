// Package gcn implements the graph convolutional network used to regress the
// SSTA index from a window of node features.
//
// The network is small enough to train on a CPU with gonum matrices and a
// hand-written backward pass, so it has no deep-learning framework
// dependency. Training is sequential and deterministic for a given Seed.
package gcn

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/Noofbiz/sstaGraph/datasets"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Activation names accepted by Config.Activation.
const (
	ActLeakyReLU = "lrelu"
	ActTanh      = "tanh"
	ActReLU      = "relu"
)

// Optimizer names accepted by Config.Optimizer.
const (
	OptSGD  = "sgd"
	OptAdam = "adam"
)

// leakySlope is the negative slope of the leaky ReLU.
const leakySlope = 0.1

// Config holds the network shape and the training hyperparameters.
type Config struct {
	// WindowSize is the number of input features per node. Default 5.
	WindowSize int

	// HiddenFeatures is the width of conv1 and conv2. Default 200.
	HiddenFeatures int

	// OutFeatures is the width of conv3, fed to the final linear layer.
	// Default 100.
	OutFeatures int

	// Activation is one of "lrelu", "tanh" or "relu". Default "lrelu".
	Activation string

	// Optimizer is "sgd" or "adam". Default "sgd".
	Optimizer string

	// LearningRate for the optimizer. Default 0.02.
	LearningRate float64

	// Momentum and WeightDecay are used as given; zero disables them.
	Momentum    float64
	WeightDecay float64

	// Adam hyperparameters (defaults 0.9, 0.999, 1e-8 if zero).
	Beta1   float64
	Beta2   float64
	Epsilon float64

	// BatchSize is the number of training samples per update. Default 64.
	BatchSize int

	// Epochs to train for. Default 30.
	Epochs int

	// NoiseVar is the BMC noise variance. Default 0.2.
	NoiseVar float64

	// LearnNoise makes the noise variance a trained parameter.
	LearnNoise bool

	// Seed controls weight initialisation. If zero, a time-based seed is used.
	Seed int64
}

// withDefaults returns cfg with zero fields replaced by their defaults.
func (cfg Config) withDefaults() Config {
	if cfg.WindowSize == 0 {
		cfg.WindowSize = 5
	}
	if cfg.HiddenFeatures == 0 {
		cfg.HiddenFeatures = 200
	}
	if cfg.OutFeatures == 0 {
		cfg.OutFeatures = 100
	}
	if cfg.Activation == "" {
		cfg.Activation = ActLeakyReLU
	}
	if cfg.Optimizer == "" {
		cfg.Optimizer = OptSGD
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.02
	}
	if cfg.Beta1 == 0 {
		cfg.Beta1 = 0.9
	}
	if cfg.Beta2 == 0 {
		cfg.Beta2 = 0.999
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = 1e-8
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 64
	}
	if cfg.Epochs == 0 {
		cfg.Epochs = 30
	}
	if cfg.NoiseVar == 0 {
		cfg.NoiseVar = 0.2
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return cfg
}

func (cfg Config) validate() error {
	switch {
	case cfg.WindowSize < 0, cfg.HiddenFeatures < 0, cfg.OutFeatures < 0:
		return fmt.Errorf("layer sizes must be positive: %w", datasets.ErrInvalidParameter)
	case cfg.BatchSize < 0, cfg.Epochs < 0:
		return fmt.Errorf("batch size and epochs must be positive: %w", datasets.ErrInvalidParameter)
	case cfg.LearningRate < 0, cfg.Momentum < 0, cfg.WeightDecay < 0:
		return fmt.Errorf("learning rate, momentum and weight decay must be >= 0: %w", datasets.ErrInvalidParameter)
	case cfg.NoiseVar < 0 || math.IsNaN(cfg.NoiseVar):
		return fmt.Errorf("noise variance must be > 0: %w", datasets.ErrInvalidParameter)
	}
	switch cfg.Activation {
	case ActLeakyReLU, ActTanh, ActReLU:
	default:
		return fmt.Errorf("unknown activation %q: %w", cfg.Activation, datasets.ErrInvalidParameter)
	}
	switch cfg.Optimizer {
	case OptSGD, OptAdam:
	default:
		return fmt.Errorf("unknown optimizer %q: %w", cfg.Optimizer, datasets.ErrInvalidParameter)
	}
	return nil
}

// layer is a dense transform: x*W + B, with B a single row.
type layer struct {
	W *mat.Dense
	B *mat.Dense
}

// params are the trainable weights of the network. The same layout holds
// the gradients.
type params struct {
	Conv1 layer
	Conv2 layer
	Conv3 layer
	Out   layer
}

// convSteps returns the graph convolutions in the order they are applied.
// conv2 is applied twice with shared weights.
func (p *params) convSteps() [4]*layer {
	return [4]*layer{&p.Conv1, &p.Conv2, &p.Conv2, &p.Conv3}
}

func (p *params) layers() []*layer {
	return []*layer{&p.Conv1, &p.Conv2, &p.Conv3, &p.Out}
}

// data returns the raw backing slices of every weight and bias, in a fixed
// order. The optimizers update them in place.
func (p *params) data() [][]float64 {
	out := make([][]float64, 0, 8)
	for _, l := range p.layers() {
		out = append(out, l.W.RawMatrix().Data, l.B.RawMatrix().Data)
	}
	return out
}

// zeroLike returns a zeroed params with the same shapes as p.
func (p *params) zeroLike() *params {
	z := &params{}
	src := p.layers()
	for i, l := range z.layers() {
		r, c := src[i].W.Dims()
		l.W = mat.NewDense(r, c, nil)
		l.B = mat.NewDense(1, c, nil)
	}
	return z
}

// Model is a three-layer GCN with a linear head and mean-node readout:
//
//	conv1 -> act -> conv2 -> act -> conv2 -> act -> conv3 -> linear -> mean
//
// Graph convolutions use symmetric degree normalisation. Edge weights are not
// used by the convolution.
type Model struct {
	// Config used for initialisation and training.
	Config Config

	nodeCount int

	// prop is the normalised propagation matrix: prop[dst][src] is the
	// weight of the message from src to dst.
	prop *mat.Dense

	p   params
	opt Optimizer

	noiseVar float64
	epoch    int
	lastLoss float64

	rng *rand.Rand
}

// NewModel creates a Model for graphs shaped like g, with freshly initialised
// weights. Every node of g needs at least one incoming edge.
func NewModel(cfg Config, g *datasets.Graph) (*Model, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if g == nil || g.NumNodes < 1 {
		return nil, fmt.Errorf("graph has no nodes: %w", datasets.ErrInvalidParameter)
	}
	prop, err := propagation(g)
	if err != nil {
		return nil, err
	}

	m := &Model{
		Config:    cfg,
		nodeCount: g.NumNodes,
		prop:      prop,
		noiseVar:  cfg.NoiseVar,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
	}
	m.opt = newOptimizer(cfg)
	m.p.Conv1 = m.xavierLayer(cfg.WindowSize, cfg.HiddenFeatures)
	m.p.Conv2 = m.xavierLayer(cfg.HiddenFeatures, cfg.HiddenFeatures)
	m.p.Conv3 = m.xavierLayer(cfg.HiddenFeatures, cfg.OutFeatures)
	m.p.Out = m.linearLayer(cfg.OutFeatures, 1)
	return m, nil
}

// NodeCount returns the number of graph nodes the model expects.
func (m *Model) NodeCount() int { return m.nodeCount }

// xavierLayer initialises a graph convolution: Glorot-uniform weights, zero
// bias.
func (m *Model) xavierLayer(in, out int) layer {
	limit := math.Sqrt(6.0 / float64(in+out))
	w := make([]float64, in*out)
	for i := range w {
		w[i] = (m.rng.Float64()*2 - 1) * limit
	}
	return layer{W: mat.NewDense(in, out, w), B: mat.NewDense(1, out, nil)}
}

// linearLayer initialises the output layer with U(-1/sqrt(in), 1/sqrt(in))
// weights and bias.
func (m *Model) linearLayer(in, out int) layer {
	bound := 1 / math.Sqrt(float64(in))
	w := make([]float64, in*out)
	for i := range w {
		w[i] = (m.rng.Float64()*2 - 1) * bound
	}
	b := make([]float64, out)
	for i := range b {
		b[i] = (m.rng.Float64()*2 - 1) * bound
	}
	return layer{W: mat.NewDense(in, out, w), B: mat.NewDense(1, out, b)}
}

// propagation builds D_in^-1/2 * A^T * D_out^-1/2 for the edges of g.
func propagation(g *datasets.Graph) (*mat.Dense, error) {
	n := g.NumNodes
	inDeg := make([]float64, n)
	outDeg := make([]float64, n)
	for k := range g.Src {
		outDeg[g.Src[k]]++
		inDeg[g.Dst[k]]++
	}
	for i, d := range inDeg {
		if d == 0 {
			return nil, fmt.Errorf("node %d has no incoming edges: %w", i, datasets.ErrInvalidParameter)
		}
	}
	p := mat.NewDense(n, n, nil)
	for k := range g.Src {
		s, d := g.Src[k], g.Dst[k]
		p.Set(d, s, p.At(d, s)+1/math.Sqrt(outDeg[s]*inDeg[d]))
	}
	return p, nil
}

// trace keeps the intermediate values of a forward pass for backprop.
// msg[k] is prop*input of conv step k, pre[k] its pre-activation output and
// act[k] the activated output (steps 0..2 only).
type trace struct {
	msg [4]*mat.Dense
	pre [4]*mat.Dense
	act [3]*mat.Dense
}

// forward runs the network on one [nodeCount, WindowSize] feature window.
func (m *Model) forward(x mat.Matrix) (float64, *trace, error) {
	r, c := x.Dims()
	if r != m.nodeCount || c != m.Config.WindowSize {
		return 0, nil, fmt.Errorf("features are %dx%d, model expects %dx%d: %w", r, c, m.nodeCount, m.Config.WindowSize, datasets.ErrShapeMismatch)
	}
	tr := &trace{}
	in := x
	for k, l := range m.p.convSteps() {
		msg := &mat.Dense{}
		msg.Mul(m.prop, in)
		z := &mat.Dense{}
		z.Mul(msg, l.W)
		addBias(z, l.B)
		tr.msg[k], tr.pre[k] = msg, z
		if k < 3 {
			h := m.activate(z)
			tr.act[k] = h
			in = h
		}
	}
	out := &mat.Dense{}
	out.Mul(tr.pre[3], m.p.Out.W)
	addBias(out, m.p.Out.B)
	return stat.Mean(out.RawMatrix().Data, nil), tr, nil
}

// backward accumulates into grads the gradient of the loss given dy, the
// gradient of the loss w.r.t. the scalar output of the forward pass.
func (m *Model) backward(tr *trace, dy float64, grads *params) {
	n := m.nodeCount
	dOut := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		dOut.Set(i, 0, dy/float64(n))
	}
	accumulate(grads.Out.W, tr.pre[3].T(), dOut)
	addColSums(grads.Out.B, dOut)

	dz := &mat.Dense{}
	dz.Mul(dOut, m.p.Out.W.T())

	steps := m.p.convSteps()
	gsteps := grads.convSteps()
	for k := 3; k >= 0; k-- {
		accumulate(gsteps[k].W, tr.msg[k].T(), dz)
		addColSums(gsteps[k].B, dz)
		if k == 0 {
			break
		}
		dmsg := &mat.Dense{}
		dmsg.Mul(dz, steps[k].W.T())
		dh := &mat.Dense{}
		dh.Mul(m.prop.T(), dmsg)
		m.activateGrad(dh, tr.pre[k-1], tr.act[k-1])
		dz = dh
	}
}

// activate returns act(z).
func (m *Model) activate(z *mat.Dense) *mat.Dense {
	h := &mat.Dense{}
	switch m.Config.Activation {
	case ActTanh:
		h.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) }, z)
	case ActReLU:
		h.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, z)
	default:
		h.Apply(func(_, _ int, v float64) float64 {
			if v < 0 {
				return leakySlope * v
			}
			return v
		}, z)
	}
	return h
}

// activateGrad multiplies dh in place by act'(z). h is act(z).
func (m *Model) activateGrad(dh, z, h *mat.Dense) {
	switch m.Config.Activation {
	case ActTanh:
		dh.Apply(func(i, j int, v float64) float64 {
			t := h.At(i, j)
			return v * (1 - t*t)
		}, dh)
	case ActReLU:
		dh.Apply(func(i, j int, v float64) float64 {
			if z.At(i, j) > 0 {
				return v
			}
			return 0
		}, dh)
	default:
		dh.Apply(func(i, j int, v float64) float64 {
			if z.At(i, j) < 0 {
				return leakySlope * v
			}
			return v
		}, dh)
	}
}

// accumulate sets dst += a*b.
func accumulate(dst *mat.Dense, a, b mat.Matrix) {
	var tmp mat.Dense
	tmp.Mul(a, b)
	dst.Add(dst, &tmp)
}

// addBias adds the single-row bias b to every row of z.
func addBias(z, b *mat.Dense) {
	r, _ := z.Dims()
	bias := b.RawRowView(0)
	for i := 0; i < r; i++ {
		floats.Add(z.RawRowView(i), bias)
	}
}

// addColSums adds the column sums of src into the single-row dst.
func addColSums(dst, src *mat.Dense) {
	r, _ := src.Dims()
	row := dst.RawRowView(0)
	for i := 0; i < r; i++ {
		floats.Add(row, src.RawRowView(i))
	}
}

// PredictBatch returns the model output for every sample.
func (m *Model) PredictBatch(samples []datasets.Sample) ([]float64, error) {
	out := make([]float64, len(samples))
	for i, s := range samples {
		y, _, err := m.forward(s.Features)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", s.Index, err)
		}
		out[i] = y
	}
	return out, nil
}

// Predict runs the model over ds one sample at a time, in order, and returns
// the predictions together with the labels.
func (m *Model) Predict(ds datasets.Dataset) (preds, labels []float64, err error) {
	n := ds.Len()
	preds = make([]float64, n)
	labels = make([]float64, n)
	for i := 0; i < n; i++ {
		s, err := ds.Example(i)
		if err != nil {
			return nil, nil, err
		}
		y, _, err := m.forward(s.Features)
		if err != nil {
			return nil, nil, fmt.Errorf("sample %d: %w", s.Index, err)
		}
		preds[i] = y
		labels[i] = s.Label
	}
	return preds, labels, nil
}
