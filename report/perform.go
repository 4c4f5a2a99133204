package report

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Performance is the JSON performance log of a training run.
type Performance struct {
	// TrainingTime is the training wall time in seconds, formatted as a
	// decimal string.
	TrainingTime string    `json:"training_time"`
	AllLoss      []float64 `json:"all_loss"`
	AllEval      []float64 `json:"all_eval"`
	AllEpoch     []int     `json:"all_epoch"`
}

// NewPerformance builds a Performance record. NaN validation values, from
// runs without a test set, are written as null by MarshalJSON.
func NewPerformance(elapsed time.Duration, loss, eval []float64, epochs []int) *Performance {
	return &Performance{
		TrainingTime: strconv.FormatFloat(elapsed.Seconds(), 'f', -1, 64),
		AllLoss:      loss,
		AllEval:      eval,
		AllEpoch:     epochs,
	}
}

// MarshalJSON encodes non-finite values as null; encoding/json rejects them.
func (p *Performance) MarshalJSON() ([]byte, error) {
	type raw struct {
		TrainingTime string     `json:"training_time"`
		AllLoss      []*float64 `json:"all_loss"`
		AllEval      []*float64 `json:"all_eval"`
		AllEpoch     []int      `json:"all_epoch"`
	}
	return json.Marshal(raw{
		TrainingTime: p.TrainingTime,
		AllLoss:      nullable(p.AllLoss),
		AllEval:      nullable(p.AllEval),
		AllEpoch:     p.AllEpoch,
	})
}

// UnmarshalJSON reads null values back as NaN.
func (p *Performance) UnmarshalJSON(b []byte) error {
	var raw struct {
		TrainingTime string     `json:"training_time"`
		AllLoss      []*float64 `json:"all_loss"`
		AllEval      []*float64 `json:"all_eval"`
		AllEpoch     []int      `json:"all_epoch"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	p.TrainingTime = raw.TrainingTime
	p.AllLoss = fromNullable(raw.AllLoss)
	p.AllEval = fromNullable(raw.AllEval)
	p.AllEpoch = raw.AllEpoch
	return nil
}

// WritePerformance writes p as a single line of JSON.
func WritePerformance(path string, p *Performance) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal performance: %w", err)
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("write performance %s: %w", path, err)
	}
	return nil
}

// ReadPerformance reads a file written by WritePerformance.
func ReadPerformance(path string) (*Performance, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read performance %s: %w", path, err)
	}
	var p Performance
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse performance %s: %w", path, err)
	}
	return &p, nil
}

func nullable(xs []float64) []*float64 {
	out := make([]*float64, len(xs))
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsInf(xs[i], 0) {
			continue
		}
		out[i] = &xs[i]
	}
	return out
}

func fromNullable(xs []*float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		if x == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *x
	}
	return out
}
