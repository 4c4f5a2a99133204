package datasets

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// writeArrays writes a into dir using the default file names.
func writeArrays(t *testing.T, dir string, a *Arrays) {
	t.Helper()
	require.NoError(t, WriteNpy(filepath.Join(dir, NodeFeaturesFile), a.NodeFeatures))
	require.NoError(t, WriteNpy(filepath.Join(dir, EdgeFeaturesFile), a.EdgeFeatures))
	require.NoError(t, WriteNpy(filepath.Join(dir, TargetsFile), a.Targets))
}

func TestLoadArrays_ReadsWhatWasWritten(t *testing.T) {
	dir := t.TempDir()
	want := synthArrays(t, 3, 25)
	writeArrays(t, dir, want)

	got, err := LoadArrays(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, got.NodeCount())
	assert.Equal(t, 25, got.TimeLength())
	assert.True(t, mat.Equal(want.NodeFeatures, got.NodeFeatures))
	assert.True(t, mat.Equal(want.EdgeFeatures, got.EdgeFeatures))
	assert.Equal(t, want.Targets, got.Targets)

	found, err := FindDataDir([]string{filepath.Join(dir, "missing"), dir})
	require.NoError(t, err)
	assert.Equal(t, dir, found)
}

func TestLoadArrays_ShapeMismatch(t *testing.T) {
	dir := t.TempDir()
	a := synthArrays(t, 3, 25)
	a.Targets = a.Targets[:20]
	writeArrays(t, dir, a)

	_, err := LoadArrays(dir)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestReadTargets_Rejects2D(t *testing.T) {
	dir := t.TempDir()
	a := synthArrays(t, 3, 25)
	writeArrays(t, dir, a)
	// A matrix in place of the target series.
	require.NoError(t, WriteNpy(filepath.Join(dir, TargetsFile), a.NodeFeatures))

	_, err := ReadTargets(filepath.Join(dir, TargetsFile))
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, err = LoadArrays(dir)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	y, err := ReadTargets(filepath.Join(dir, "missing.npy"))
	assert.Error(t, err)
	assert.Nil(t, y)
}

func TestReadTargets_Reads1D(t *testing.T) {
	path := filepath.Join(t.TempDir(), TargetsFile)
	require.NoError(t, WriteNpy(path, []float64{0.5, -1, 2}))
	y, err := ReadTargets(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -1, 2}, y)
}

func TestLoadArrays_MissingFiles(t *testing.T) {
	_, err := LoadArrays(t.TempDir())
	assert.Error(t, err)

	_, err = FindDataDir([]string{t.TempDir()})
	assert.Error(t, err)
}
