// Package loss provides the Balanced MSE loss and the regression metrics
// used to evaluate the SSTA models.
package loss

import (
	"fmt"
	"math"

	"github.com/Noofbiz/sstaGraph/datasets"
	"gonum.org/v1/gonum/floats"
)

// BMC computes the Balanced MSE loss (Ren et al., 2022) of a batch of scalar
// predictions against their targets.
//
// Entry (a, b) of the logit matrix is -(pred[a]-target[b])^2 / (2*noiseVar).
// Row a is scored with cross-entropy against class a, the row losses are
// averaged, and the mean is scaled back by 2*noiseVar. Batch order of pred
// and target must match: the diagonal is always the correct class.
//
// A batch of one always has zero loss. A noiseVar close to zero can overflow
// the logits; the result is returned as computed, possibly Inf or NaN.
func BMC(pred, target []float64, noiseVar float64) (float64, error) {
	if err := checkBatch(pred, target, noiseVar); err != nil {
		return 0, err
	}
	n := len(pred)
	row := make([]float64, n)
	var sum float64
	for a := 0; a < n; a++ {
		logitsRow(row, pred[a], target, noiseVar)
		sum += floats.LogSumExp(row) - row[a]
	}
	return sum / float64(n) * (2 * noiseVar), nil
}

// BalancedMSE is the BMC loss with a fixed noise variance. When LearnNoise
// is set, Backward also returns the gradient w.r.t. NoiseVar; the
// 2*NoiseVar rescale is treated as a constant for that gradient.
type BalancedMSE struct {
	NoiseVar   float64
	LearnNoise bool
}

// NewBalancedMSE returns a BalancedMSE with a constant noise variance.
func NewBalancedMSE(noiseVar float64) *BalancedMSE {
	return &BalancedMSE{NoiseVar: noiseVar}
}

// Forward computes the loss of a batch.
func (b *BalancedMSE) Forward(pred, target []float64) (float64, error) {
	return BMC(pred, target, b.NoiseVar)
}

// Backward computes the loss of a batch together with its gradient w.r.t.
// every prediction. gradNoise is zero unless LearnNoise is set.
func (b *BalancedMSE) Backward(pred, target []float64) (loss float64, gradPred []float64, gradNoise float64, err error) {
	s := b.NoiseVar
	if err := checkBatch(pred, target, s); err != nil {
		return 0, nil, 0, err
	}
	n := len(pred)
	scale := 2 * s
	invN := 1 / float64(n)

	gradPred = make([]float64, n)
	row := make([]float64, n)
	var sum, dNoise float64
	for a := 0; a < n; a++ {
		logitsRow(row, pred[a], target, s)
		lse := floats.LogSumExp(row)
		sum += lse - row[a]

		// d(lse - l_aa)/d pred[a] = sum_b (p_ab - [a==b]) * -(pred[a]-target[b])/s
		// d(lse - l_aa)/d s       = sum_b (p_ab - [a==b]) * -l_ab/s
		var gp, gs float64
		for bIdx, l := range row {
			p := math.Exp(l - lse)
			if bIdx == a {
				p -= 1
			}
			gp -= p * (pred[a] - target[bIdx]) / s
			gs -= p * l / s
		}
		gradPred[a] = gp * invN * scale
		dNoise += gs
	}
	loss = sum * invN * scale
	if b.LearnNoise {
		gradNoise = dNoise * invN * scale
	}
	return loss, gradPred, gradNoise, nil
}

// logitsRow fills row with the logits of a single prediction against every
// target.
func logitsRow(row []float64, p float64, target []float64, noiseVar float64) {
	denom := 2 * noiseVar
	for b, t := range target {
		d := p - t
		row[b] = -(d * d) / denom
	}
}

func checkBatch(pred, target []float64, noiseVar float64) error {
	if len(pred) != len(target) {
		return fmt.Errorf("pred has %d values, target has %d: %w", len(pred), len(target), datasets.ErrShapeMismatch)
	}
	if len(pred) == 0 {
		return fmt.Errorf("empty batch: %w", datasets.ErrShapeMismatch)
	}
	if math.IsNaN(noiseVar) || noiseVar <= 0 {
		return fmt.Errorf("noise variance must be > 0, got %v: %w", noiseVar, datasets.ErrInvalidParameter)
	}
	return nil
}
