package datasets

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// Default file names of the three input arrays inside a data directory.
const (
	NodeFeaturesFile = "node_features.npy"
	EdgeFeaturesFile = "edge_features.npy"
	TargetsFile      = "y.npy"
)

// Arrays holds the raw inputs of an experiment. They are loaded once and
// only read afterwards.
type Arrays struct {
	NodeFeatures *mat.Dense // [nodeCount, timeLength]
	EdgeFeatures *mat.Dense // [nodeCount, nodeCount]
	Targets      []float64  // [timeLength]
}

// NodeCount returns the number of graph nodes.
func (a *Arrays) NodeCount() int {
	r, _ := a.NodeFeatures.Dims()
	return r
}

// TimeLength returns the number of time steps in the node series.
func (a *Arrays) TimeLength() int {
	_, c := a.NodeFeatures.Dims()
	return c
}

// LoadArrays reads node_features.npy, edge_features.npy and y.npy from dir
// and checks that their shapes agree.
func LoadArrays(dir string) (*Arrays, error) {
	nodes, err := ReadNpyMatrix(filepath.Join(dir, NodeFeaturesFile))
	if err != nil {
		return nil, err
	}
	edges, err := ReadNpyMatrix(filepath.Join(dir, EdgeFeaturesFile))
	if err != nil {
		return nil, err
	}
	y, err := ReadTargets(filepath.Join(dir, TargetsFile))
	if err != nil {
		return nil, err
	}

	a := &Arrays{NodeFeatures: nodes, EdgeFeatures: edges, Targets: y}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks the shape contract between the three arrays.
func (a *Arrays) Validate() error {
	if a.NodeFeatures == nil || a.EdgeFeatures == nil {
		return fmt.Errorf("node and edge features are required: %w", ErrShapeMismatch)
	}
	n, t := a.NodeFeatures.Dims()
	er, ec := a.EdgeFeatures.Dims()
	if er != n || ec != n {
		return fmt.Errorf("edge features are %dx%d, expected %dx%d: %w", er, ec, n, n, ErrShapeMismatch)
	}
	if len(a.Targets) != t {
		return fmt.Errorf("targets have %d steps, node features have %d: %w", len(a.Targets), t, ErrShapeMismatch)
	}
	return nil
}

// ReadNpy reads a float32 or float64 .npy file and returns its data in
// row-major order together with its shape.
func ReadNpy(path string) ([]float64, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read npy header of %s: %w", path, err)
	}
	shape := append([]int(nil), r.Header.Descr.Shape...)
	size := 1
	for _, d := range shape {
		size *= d
	}

	var data []float64
	switch r.Header.Descr.Type {
	case "<f8", "f8", "float64":
		data = make([]float64, size)
		if err := r.Read(&data); err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	case "<f4", "f4", "float32":
		raw := make([]float32, size)
		if err := r.Read(&raw); err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		data = make([]float64, size)
		for i, v := range raw {
			data[i] = float64(v)
		}
	default:
		return nil, nil, fmt.Errorf("%s: unsupported dtype %q", path, r.Header.Descr.Type)
	}

	if r.Header.Descr.Fortran && len(shape) == 2 {
		data = fortranToRowMajor(data, shape[0], shape[1])
	}
	return data, shape, nil
}

// ReadTargets reads a 1D .npy target series.
func ReadTargets(path string) ([]float64, error) {
	y, shape, err := ReadNpy(path)
	if err != nil {
		return nil, err
	}
	if len(shape) != 1 {
		return nil, fmt.Errorf("%s: expected a 1D array, got shape %v: %w", path, shape, ErrShapeMismatch)
	}
	return y, nil
}

// ReadNpyMatrix reads a 2D .npy file into a gonum matrix.
func ReadNpyMatrix(path string) (*mat.Dense, error) {
	data, shape, err := ReadNpy(path)
	if err != nil {
		return nil, err
	}
	if len(shape) != 2 {
		return nil, fmt.Errorf("%s: expected a 2D array, got shape %v: %w", path, shape, ErrShapeMismatch)
	}
	if shape[0] == 0 || shape[1] == 0 {
		return nil, fmt.Errorf("%s: empty array with shape %v: %w", path, shape, ErrShapeMismatch)
	}
	return mat.NewDense(shape[0], shape[1], data), nil
}

// WriteNpy writes a matrix or a float64 slice as a .npy file.
func WriteNpy(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if err := npyio.Write(f, v); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func fortranToRowMajor(data []float64, rows, cols int) []float64 {
	out := make([]float64, len(data))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[i*cols+j] = data[j*rows+i]
		}
	}
	return out
}

// FindDataDir returns the first directory among candidates that holds all
// three input arrays.
func FindDataDir(candidates []string) (string, error) {
	for _, dir := range candidates {
		ok := true
		for _, name := range []string{NodeFeaturesFile, EdgeFeaturesFile, TargetsFile} {
			if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
				ok = false
				break
			}
		}
		if ok {
			return dir, nil
		}
	}
	return "", fmt.Errorf("no data directory with %s, %s and %s found", NodeFeaturesFile, EdgeFeaturesFile, TargetsFile)
}
