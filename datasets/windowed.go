package datasets

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"gonum.org/v1/gonum/mat"
)

// GraphDataset is the sliding-window dataset over the SSTA arrays.
//
// Sample i holds columns [i, i+WindowSize) of the node features and the label
// targets[i+WindowSize+LeadTime-1]. The graph and edge weights are built once
// and shared by every sample.
type GraphDataset struct {
	WindowSize int
	LeadTime   int

	graph        *Graph
	edgeWeights  []float64
	nodeFeatures *mat.Dense
	targets      []float64
	numSamples   int
}

// MaxSamples returns the number of windows a series of timeLength steps
// supports for the given window size and lead time.
func MaxSamples(timeLength, windowSize, leadTime int) int {
	return timeLength - windowSize - leadTime + 1
}

// NewGraphDataset builds a dataset of sampleCount windows. A sampleCount of
// zero selects the maximum number of windows the targets support.
func NewGraphDataset(nodeFeatures, edgeFeatures *mat.Dense, targets []float64, windowSize, leadTime, sampleCount int) (*GraphDataset, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be > 0, got %d: %w", windowSize, ErrInvalidParameter)
	}
	if leadTime <= 0 {
		return nil, fmt.Errorf("lead time must be > 0, got %d: %w", leadTime, ErrInvalidParameter)
	}
	if sampleCount < 0 {
		return nil, fmt.Errorf("sample count must be >= 0, got %d: %w", sampleCount, ErrInvalidParameter)
	}
	if nodeFeatures == nil || edgeFeatures == nil {
		return nil, fmt.Errorf("node and edge features are required: %w", ErrShapeMismatch)
	}

	arrays := &Arrays{NodeFeatures: nodeFeatures, EdgeFeatures: edgeFeatures, Targets: targets}
	if err := arrays.Validate(); err != nil {
		return nil, err
	}

	maxSamples := MaxSamples(len(targets), windowSize, leadTime)
	if maxSamples < 1 {
		return nil, fmt.Errorf("%d time steps cannot hold a window of %d with lead time %d: %w",
			len(targets), windowSize, leadTime, ErrShapeMismatch)
	}
	if sampleCount == 0 {
		sampleCount = maxSamples
	}
	if sampleCount > maxSamples {
		return nil, fmt.Errorf("requested %d samples, targets support at most %d: %w",
			sampleCount, maxSamples, ErrIndexOutOfRange)
	}

	weights, err := FlattenEdgeWeights(edgeFeatures)
	if err != nil {
		return nil, err
	}

	return &GraphDataset{
		WindowSize:   windowSize,
		LeadTime:     leadTime,
		graph:        CompleteGraph(arrays.NodeCount()),
		edgeWeights:  weights,
		nodeFeatures: nodeFeatures,
		targets:      targets,
		numSamples:   sampleCount,
	}, nil
}

// NewGraphDatasetFromArrays is NewGraphDataset over loaded Arrays.
func NewGraphDatasetFromArrays(a *Arrays, windowSize, leadTime, sampleCount int) (*GraphDataset, error) {
	return NewGraphDataset(a.NodeFeatures, a.EdgeFeatures, a.Targets, windowSize, leadTime, sampleCount)
}

// Len returns the number of samples.
func (d *GraphDataset) Len() int { return d.numSamples }

// Graph returns the shared complete graph.
func (d *GraphDataset) Graph() *Graph { return d.graph }

// NodeCount returns the number of nodes of every sample graph.
func (d *GraphDataset) NodeCount() int { return d.graph.NumNodes }

// EdgeWeights returns the shared edge weights in Graph order.
func (d *GraphDataset) EdgeWeights() []float64 { return d.edgeWeights }

// LabelIndex returns the index into the targets used as the label of sample i.
func (d *GraphDataset) LabelIndex(i int) int {
	return i + d.WindowSize + d.LeadTime - 1
}

// Example returns sample i.
func (d *GraphDataset) Example(i int) (Sample, error) {
	if i < 0 || i >= d.numSamples {
		return Sample{}, fmt.Errorf("sample %d not in [0, %d): %w", i, d.numSamples, ErrIndexOutOfRange)
	}
	n := d.graph.NumNodes
	window := d.nodeFeatures.Slice(0, n, i, i+d.WindowSize).(*mat.Dense)
	return Sample{
		Index:       i,
		Features:    window,
		EdgeWeights: d.edgeWeights,
		Label:       d.targets[d.LabelIndex(i)],
	}, nil
}

// Batch returns the samples at the given indices, in the given order.
func (d *GraphDataset) Batch(indices []int) ([]Sample, error) {
	out := make([]Sample, len(indices))
	for pos, idx := range indices {
		s, err := d.Example(idx)
		if err != nil {
			return nil, err
		}
		out[pos] = s
	}
	return out, nil
}

// Labels returns the labels of every sample, in order.
func (d *GraphDataset) Labels() []float64 {
	labels := make([]float64, d.numSamples)
	for i := range labels {
		labels[i] = d.targets[d.LabelIndex(i)]
	}
	return labels
}

// Tensors converts the samples at indices into gomlx tensors of shape
// [batch, nodeCount, windowSize] and [batch, 1].
func (d *GraphDataset) Tensors(indices []int) (*tensors.Tensor, *tensors.Tensor, error) {
	samples, err := d.Batch(indices)
	if err != nil {
		return nil, nil, err
	}
	flat, err := MakeGraphBatchFlat(samples)
	if err != nil {
		return nil, nil, err
	}
	return flat.ToGomlxTensors()
}

// Name returns the name of the dataset.
func (d *GraphDataset) Name() string {
	return fmt.Sprintf("SSTAGraphDataset_windowsize_%d_leadtime_%d", d.WindowSize, d.LeadTime)
}

// GraphBatchFlat stores a batch of feature windows and labels in flat
// contiguous buffers.
type GraphBatchFlat struct {
	Features   []float64
	Labels     []float64
	BatchSize  int
	NodeCount  int
	WindowSize int
}

// MakeGraphBatchFlat flattens a batch into contiguous buffers.
func MakeGraphBatchFlat(samples []Sample) (*GraphBatchFlat, error) {
	if len(samples) == 0 {
		return &GraphBatchFlat{}, nil
	}
	nodes, window := samples[0].Features.Dims()
	b := &GraphBatchFlat{
		Features:   make([]float64, len(samples)*nodes*window),
		Labels:     make([]float64, len(samples)),
		BatchSize:  len(samples),
		NodeCount:  nodes,
		WindowSize: window,
	}
	stride := nodes * window
	for i, s := range samples {
		r, c := s.Features.Dims()
		if r != nodes || c != window {
			return nil, fmt.Errorf("inconsistent window at example %d: expected %dx%d, got %dx%d: %w",
				i, nodes, window, r, c, ErrShapeMismatch)
		}
		for n := 0; n < nodes; n++ {
			copy(b.Features[i*stride+n*window:], s.Features.RawRowView(n)[:window])
		}
		b.Labels[i] = s.Label
	}
	return b, nil
}

// ToGomlxTensors converts the batch to gomlx tensors.
func (b *GraphBatchFlat) ToGomlxTensors() (*tensors.Tensor, *tensors.Tensor, error) {
	if b.BatchSize == 0 || b.NodeCount == 0 || b.WindowSize == 0 {
		return tensors.FromAnyValue(make([][][]float64, 0)), tensors.FromAnyValue(make([][]float64, 0)), nil
	}
	features := make([][][]float64, b.BatchSize)
	labels := make([][]float64, b.BatchSize)
	stride := b.NodeCount * b.WindowSize
	for i := range b.BatchSize {
		features[i] = make([][]float64, b.NodeCount)
		for n := range b.NodeCount {
			start := i*stride + n*b.WindowSize
			features[i][n] = b.Features[start : start+b.WindowSize]
		}
		labels[i] = b.Labels[i : i+1]
	}
	return tensors.FromAnyValue(features), tensors.FromAnyValue(labels), nil
}
