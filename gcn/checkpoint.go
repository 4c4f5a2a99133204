package gcn

import (
	"encoding/gob"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"
)

// checkpointVersion is incremented when the on-disk checkpoint format changes.
const checkpointVersion = 1

// checkpointFormat is the on-disk representation of a trained model and its
// optimizer state.
type checkpointFormat struct {
	Version   int
	CreatedAt int64
	Config    Config
	NodeCount int
	Prop      []float64
	Epoch     int
	Loss      float64
	NoiseVar  float64

	// Params holds the raw weights and biases in params.data order, with
	// Shapes giving rows and columns of each.
	Params [][]float64
	Shapes [][2]int

	// At most one of SGD and Adam is set.
	SGD  *SGD
	Adam *Adam
}

// Save writes the model, the optimizer state and the training progress to
// path using encoding/gob. The file is written to a temp file in the same
// directory and renamed into place.
func (m *Model) Save(path string) error {
	if path == "" {
		return fmt.Errorf("empty checkpoint path")
	}
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	cp := checkpointFormat{
		Version:   checkpointVersion,
		CreatedAt: time.Now().Unix(),
		Config:    m.Config,
		NodeCount: m.nodeCount,
		Prop:      m.prop.RawMatrix().Data,
		Epoch:     m.epoch,
		Loss:      m.lastLoss,
		NoiseVar:  m.noiseVar,
		Params:    m.p.data(),
	}
	for _, l := range m.p.layers() {
		wr, wc := l.W.Dims()
		cp.Shapes = append(cp.Shapes, [2]int{wr, wc}, [2]int{1, wc})
	}
	switch o := m.opt.(type) {
	case *SGD:
		cp.SGD = o
	case *Adam:
		cp.Adam = o
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		_ = os.Remove(tmpName)
	}()

	if err := gob.NewEncoder(tmpFile).Encode(&cp); err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp checkpoint file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp checkpoint to target: %w", err)
	}
	return nil
}

// Load reads a checkpoint written by Save. Training can continue from where
// it stopped with Fit.
func Load(path string) (*Model, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint %s: %w", path, err)
	}
	defer fh.Close()

	var cp checkpointFormat
	if err := gob.NewDecoder(fh).Decode(&cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	if cp.Version != checkpointVersion {
		return nil, fmt.Errorf("checkpoint version mismatch: file=%d expected=%d", cp.Version, checkpointVersion)
	}
	n := cp.NodeCount
	if n < 1 || len(cp.Prop) != n*n {
		return nil, fmt.Errorf("checkpoint propagation matrix has %d values for %d nodes", len(cp.Prop), n)
	}
	if len(cp.Params) != 8 || len(cp.Shapes) != 8 {
		return nil, fmt.Errorf("checkpoint has %d parameters, expected 8", len(cp.Params))
	}

	m := &Model{
		Config:    cp.Config,
		nodeCount: n,
		prop:      mat.NewDense(n, n, cp.Prop),
		noiseVar:  cp.NoiseVar,
		epoch:     cp.Epoch,
		lastLoss:  cp.Loss,
		rng:       rand.New(rand.NewSource(cp.Config.Seed)),
	}
	for i, l := range m.p.layers() {
		ws, bs := cp.Shapes[2*i], cp.Shapes[2*i+1]
		wd, bd := cp.Params[2*i], cp.Params[2*i+1]
		if ws[0] < 1 || ws[1] < 1 || bs[0] != 1 || bs[1] != ws[1] ||
			len(wd) != ws[0]*ws[1] || len(bd) != bs[1] {
			return nil, fmt.Errorf("checkpoint layer %d: data does not match shape", i)
		}
		l.W = mat.NewDense(ws[0], ws[1], wd)
		l.B = mat.NewDense(bs[0], bs[1], bd)
	}
	switch {
	case cp.Adam != nil:
		m.opt = cp.Adam
	case cp.SGD != nil:
		m.opt = cp.SGD
	default:
		m.opt = newOptimizer(m.Config)
	}
	return m, nil
}
