package datasets

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// synthArrays builds node features where node n at time t holds 1000*n+t,
// an edge matrix with 10*i+j off the diagonal, and targets equal to -t.
func synthArrays(t *testing.T, nodes, steps int) *Arrays {
	t.Helper()
	nf := mat.NewDense(nodes, steps, nil)
	for n := 0; n < nodes; n++ {
		for s := 0; s < steps; s++ {
			nf.Set(n, s, float64(1000*n+s))
		}
	}
	ef := mat.NewDense(nodes, nodes, nil)
	for i := 0; i < nodes; i++ {
		for j := 0; j < nodes; j++ {
			ef.Set(i, j, float64(10*i+j))
		}
	}
	y := make([]float64, steps)
	for s := range y {
		y[s] = -float64(s)
	}
	return &Arrays{NodeFeatures: nf, EdgeFeatures: ef, Targets: y}
}

func TestGraphDataset_LengthMatchesWindowCount(t *testing.T) {
	a := synthArrays(t, 3, 1684)
	ds, err := NewGraphDatasetFromArrays(a, 5, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 1680, ds.Len())
	assert.Equal(t, 1680, MaxSamples(1684, 5, 1))
}

func TestGraphDataset_ExampleWindowAndLabel(t *testing.T) {
	a := synthArrays(t, 3, 40)
	ds, err := NewGraphDatasetFromArrays(a, 5, 1, 0)
	require.NoError(t, err)

	s0, err := ds.Example(0)
	require.NoError(t, err)
	assert.Equal(t, a.Targets[5], s0.Label, "window 5, lead 1, i=0 must use targets[5]")

	for _, i := range []int{0, 7, ds.Len() - 1} {
		s, err := ds.Example(i)
		require.NoError(t, err)
		assert.Equal(t, i, s.Index)
		assert.Equal(t, a.Targets[i+5+1-1], s.Label)

		r, c := s.Features.Dims()
		require.Equal(t, 3, r)
		require.Equal(t, 5, c)
		for n := 0; n < r; n++ {
			for w := 0; w < c; w++ {
				assert.Equal(t, float64(1000*n+i+w), s.Features.At(n, w))
			}
		}
	}
}

func TestGraphDataset_LeadTimeShiftsLabel(t *testing.T) {
	a := synthArrays(t, 2, 60)
	ds, err := NewGraphDatasetFromArrays(a, 4, 6, 10)
	require.NoError(t, err)
	require.Equal(t, 10, ds.Len())
	for i := 0; i < ds.Len(); i++ {
		s, err := ds.Example(i)
		require.NoError(t, err)
		assert.Equal(t, a.Targets[i+4+6-1], s.Label)
		assert.Equal(t, i+4+6-1, ds.LabelIndex(i))
	}
}

func TestGraphDataset_SharedGraphAndEdges(t *testing.T) {
	a := synthArrays(t, 4, 30)
	ds, err := NewGraphDatasetFromArrays(a, 3, 2, 0)
	require.NoError(t, err)

	g := ds.Graph()
	assert.Equal(t, 4, g.NumNodes)
	assert.Equal(t, 12, g.NumEdges())

	s1, err := ds.Example(1)
	require.NoError(t, err)
	s2, err := ds.Example(2)
	require.NoError(t, err)
	require.Len(t, s1.EdgeWeights, 12)
	assert.Equal(t, s1.EdgeWeights, s2.EdgeWeights)
	for k := range s1.EdgeWeights {
		assert.Equal(t, float64(10*g.Src[k]+g.Dst[k]), s1.EdgeWeights[k])
	}
}

func TestGraphDataset_Errors(t *testing.T) {
	a := synthArrays(t, 3, 20)

	cases := []struct {
		name   string
		window int
		lead   int
		count  int
		want   error
	}{
		{"zero window", 0, 1, 0, ErrInvalidParameter},
		{"negative lead", 5, -1, 0, ErrInvalidParameter},
		{"zero lead", 5, 0, 0, ErrInvalidParameter},
		{"negative count", 5, 1, -3, ErrInvalidParameter},
		{"too many samples", 5, 1, 17, ErrIndexOutOfRange},
		{"window longer than series", 20, 1, 0, ErrShapeMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewGraphDatasetFromArrays(a, tc.window, tc.lead, tc.count)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}

	ds, err := NewGraphDatasetFromArrays(a, 5, 1, 16)
	require.NoError(t, err)
	assert.Equal(t, 16, ds.Len())
	_, err = ds.Example(16)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = ds.Example(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestGraphDataset_ShapeMismatch(t *testing.T) {
	a := synthArrays(t, 3, 20)

	_, err := NewGraphDataset(a.NodeFeatures, a.EdgeFeatures, a.Targets[:19], 5, 1, 0)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = NewGraphDataset(a.NodeFeatures, mat.NewDense(2, 2, nil), a.Targets, 5, 1, 0)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestGraphDataset_TensorsAndBatchFlat(t *testing.T) {
	a := synthArrays(t, 3, 30)
	ds, err := NewGraphDatasetFromArrays(a, 4, 1, 0)
	require.NoError(t, err)

	samples, err := ds.Batch([]int{0, 2, 5})
	require.NoError(t, err)
	flat, err := MakeGraphBatchFlat(samples)
	require.NoError(t, err)
	assert.Equal(t, 3, flat.BatchSize)
	assert.Equal(t, 3, flat.NodeCount)
	assert.Equal(t, 4, flat.WindowSize)
	require.Len(t, flat.Features, 3*3*4)
	// sample 2 (batch position 1), node 1, window offset 3 -> 1000 + 2 + 3
	assert.Equal(t, 1005.0, flat.Features[1*12+1*4+3])
	assert.Equal(t, []float64{a.Targets[4], a.Targets[6], a.Targets[9]}, flat.Labels)

	in, la, err := ds.Tensors([]int{0, 2, 5})
	require.NoError(t, err)
	require.NotNil(t, in)
	require.NotNil(t, la)
	assert.Equal(t, []int{3, 3, 4}, in.Shape().Dimensions)
	assert.Equal(t, []int{3, 1}, la.Shape().Dimensions)
}
