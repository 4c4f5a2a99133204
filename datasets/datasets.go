package datasets

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// This file describes the dataset abstraction shared by the trainer, the
// experiment runner and the example command.
//
// The SSTA data comes as three arrays that are loaded once and never
// mutated:
//
//   - node features: [nodeCount, timeLength], one SSTA series per grid node
//   - edge features: [nodeCount, nodeCount], a weight for every node pair
//   - targets:       [timeLength], the climate index to predict
//
// GraphDataset turns them into a finite, chronologically ordered list of
// samples using a sliding window and a lead time. Every sample shares the
// same complete graph and edge weights; only the feature window and the
// label change.
//
// Notes on gomlx tensors:
//   - Batches are returned as gonum matrices. GraphBatchFlat flattens a
//     batch into contiguous buffers and converts them into gomlx tensors
//     for callers that drive a gomlx training loop.

// Errors returned by the datasets, the loss and the baseline. Callers test
// them with errors.Is; the returned errors wrap them with context.
var (
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrIndexOutOfRange  = errors.New("index out of range")
)

// Sample is a single (graph snapshot, label) pair.
type Sample struct {
	// Index is the position of the sample in the dataset. The feature window
	// starts at time step Index.
	Index int

	// Features is the [nodeCount, windowSize] feature window. It is a view
	// into the dataset's node feature matrix and must not be modified.
	Features *mat.Dense

	// EdgeWeights are the edge features of the shared graph, one per edge in
	// Graph order. The slice is shared by every sample.
	EdgeWeights []float64

	// Label is the target value windowSize+leadTime-1 steps after Index.
	Label float64
}

// Dataset is implemented by GraphDataset and Subset so training and
// evaluation code can work on either.
type Dataset interface {
	Len() int
	Example(i int) (Sample, error)
	Batch(indices []int) ([]Sample, error)
}
