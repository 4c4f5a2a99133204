package datasets

import (
	"fmt"
	"io"
	"math"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Split is a chronological train/test partition of dataset indices.
type Split struct {
	Train []int
	Test  []int
}

// SequentialSplit partitions [0, numExamples) into a training prefix of
// floor(numExamples*trainSplit) indices and a test suffix. Nothing is
// shuffled: every test sample follows every training sample in time.
func SequentialSplit(numExamples int, trainSplit float64) (Split, error) {
	if numExamples < 0 {
		return Split{}, fmt.Errorf("number of examples must be >= 0, got %d: %w", numExamples, ErrInvalidParameter)
	}
	if math.IsNaN(trainSplit) || trainSplit <= 0 || trainSplit > 1 {
		return Split{}, fmt.Errorf("train split must be in (0, 1], got %v: %w", trainSplit, ErrInvalidParameter)
	}
	numTrain := NumTrain(numExamples, trainSplit)
	s := Split{
		Train: make([]int, numTrain),
		Test:  make([]int, numExamples-numTrain),
	}
	for i := range s.Train {
		s.Train[i] = i
	}
	for i := range s.Test {
		s.Test[i] = numTrain + i
	}
	return s, nil
}

// NumTrain returns floor(numExamples*trainSplit).
func NumTrain(numExamples int, trainSplit float64) int {
	return int(math.Floor(float64(numExamples) * trainSplit))
}

// Batches chunks indices into consecutive batches of batchSize. The last
// batch keeps whatever is left over.
func Batches(indices []int, batchSize int) [][]int {
	if batchSize <= 0 {
		batchSize = max(len(indices), 1)
	}
	out := make([][]int, 0, (len(indices)+batchSize-1)/batchSize)
	for start := 0; start < len(indices); start += batchSize {
		end := min(start+batchSize, len(indices))
		out = append(out, indices[start:end])
	}
	return out
}

// Subset exposes a slice of a dataset's indices as a dataset of its own.
// Position i of the subset maps to Indices[i] of Base.
//
// Subset also yields sequential batches of BatchSize as gomlx tensors:
// Yield returns io.EOF at the end of an epoch and Reset starts over.
type Subset struct {
	Base      *GraphDataset
	Indices   []int
	BatchSize int

	next int
}

// NewSubset returns a subset of base over indices.
func NewSubset(base *GraphDataset, indices []int, batchSize int) *Subset {
	return &Subset{Base: base, Indices: indices, BatchSize: batchSize}
}

// Len returns the number of samples in the subset.
func (s *Subset) Len() int { return len(s.Indices) }

// Example returns the i-th sample of the subset.
func (s *Subset) Example(i int) (Sample, error) {
	if i < 0 || i >= len(s.Indices) {
		return Sample{}, fmt.Errorf("subset position %d not in [0, %d): %w", i, len(s.Indices), ErrIndexOutOfRange)
	}
	return s.Base.Example(s.Indices[i])
}

// Batch returns the samples at the given subset positions.
func (s *Subset) Batch(positions []int) ([]Sample, error) {
	globals := make([]int, len(positions))
	for i, p := range positions {
		if p < 0 || p >= len(s.Indices) {
			return nil, fmt.Errorf("subset position %d not in [0, %d): %w", p, len(s.Indices), ErrIndexOutOfRange)
		}
		globals[i] = s.Indices[p]
	}
	return s.Base.Batch(globals)
}

// Name returns the name of the underlying dataset.
func (s *Subset) Name() string { return s.Base.Name() }

// Yield returns the next sequential batch as gomlx tensors.
func (s *Subset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if s.next >= len(s.Indices) {
		return nil, nil, nil, io.EOF
	}
	size := s.BatchSize
	if size <= 0 {
		size = len(s.Indices)
	}
	end := min(s.next+size, len(s.Indices))
	in, la, err := s.Base.Tensors(s.Indices[s.next:end])
	if err != nil {
		return nil, nil, nil, err
	}
	s.next = end
	return nil, []*tensors.Tensor{in}, []*tensors.Tensor{la}, nil
}

// Reset rewinds Yield to the first batch.
func (s *Subset) Reset() {
	s.next = 0
}
