package gcn

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Noofbiz/sstaGraph/datasets"
	"github.com/Noofbiz/sstaGraph/loss"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// History records the per-epoch progress of Fit.
type History struct {
	// Loss is the mean BMC loss over the training batches of each epoch.
	Loss []float64

	// Eval is the validation MSE after each epoch, NaN if there was no
	// validation data.
	Eval []float64

	// NoiseVar is the BMC noise variance at the end of each epoch. It only
	// changes when Config.LearnNoise is set.
	NoiseVar []float64

	// LastLoss is the loss of the final training batch.
	LastLoss float64

	// Elapsed is the wall time spent in Fit.
	Elapsed time.Duration
}

// Epochs returns the 1-based epoch numbers recorded in h.
func (h *History) Epochs() []int {
	out := make([]int, len(h.Loss))
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// Evaluation is the result of running a model over a dataset.
type Evaluation struct {
	Predictions []float64
	Observed    []float64
	MSE         float64
	RMSE        float64
}

// Fit trains the model on train for Config.Epochs epochs with the BMC loss.
// Batches are taken in order and never shuffled. After every epoch the model
// is evaluated on test, one sample at a time, and the validation MSE is
// logged. test may be nil or empty.
func (m *Model) Fit(ctx context.Context, train, test datasets.Dataset, log *zap.SugaredLogger) (*History, error) {
	if train == nil || train.Len() == 0 {
		return nil, fmt.Errorf("training set is empty: %w", datasets.ErrInvalidParameter)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if m.opt == nil {
		m.opt = newOptimizer(m.Config)
	}

	positions := make([]int, train.Len())
	for i := range positions {
		positions[i] = i
	}
	batches := datasets.Batches(positions, m.Config.BatchSize)
	bmse := &loss.BalancedMSE{NoiseVar: m.noiseVar, LearnNoise: m.Config.LearnNoise}

	h := &History{}
	start := time.Now()
	for ep := 0; ep < m.Config.Epochs; ep++ {
		losses := make([]float64, 0, len(batches))
		for _, b := range batches {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			l, err := m.trainBatch(train, b, bmse)
			if err != nil {
				return nil, fmt.Errorf("epoch %d: %w", ep+1, err)
			}
			losses = append(losses, l)
			h.LastLoss = l
		}
		meanLoss := stat.Mean(losses, nil)

		eval := math.NaN()
		if test != nil && test.Len() > 0 {
			ev, err := m.Evaluate(test)
			if err != nil {
				return nil, fmt.Errorf("epoch %d validation: %w", ep+1, err)
			}
			eval = ev.MSE
		}

		m.epoch++
		m.lastLoss = h.LastLoss
		h.Loss = append(h.Loss, meanLoss)
		h.Eval = append(h.Eval, eval)
		h.NoiseVar = append(h.NoiseVar, m.noiseVar)
		log.Infow("epoch done", "epoch", ep+1, "loss", meanLoss, "val_mse", eval)
	}
	h.Elapsed = time.Since(start)
	return h, nil
}

// trainBatch runs one forward/backward pass over the samples at positions and
// applies an optimizer step. It returns the batch loss.
func (m *Model) trainBatch(ds datasets.Dataset, positions []int, bmse *loss.BalancedMSE) (float64, error) {
	samples, err := ds.Batch(positions)
	if err != nil {
		return 0, err
	}
	preds := make([]float64, len(samples))
	labels := make([]float64, len(samples))
	traces := make([]*trace, len(samples))
	for i, s := range samples {
		y, tr, err := m.forward(s.Features)
		if err != nil {
			return 0, fmt.Errorf("sample %d: %w", s.Index, err)
		}
		preds[i], labels[i], traces[i] = y, s.Label, tr
	}

	l, gradPred, gradNoise, err := bmse.Backward(preds, labels)
	if err != nil {
		return 0, err
	}
	grads := m.p.zeroLike()
	for i, tr := range traces {
		m.backward(tr, gradPred[i], grads)
	}
	m.opt.Step(m.p.data(), grads.data())

	if m.Config.LearnNoise {
		m.noiseVar = stepNoise(m.noiseVar, gradNoise, m.Config.LearningRate)
		bmse.NoiseVar = m.noiseVar
	}
	return l, nil
}

// stepNoise takes one gradient step on log(noiseVar) so the variance stays
// strictly positive however large the step.
func stepNoise(noiseVar, grad, lr float64) float64 {
	logVar := math.Log(noiseVar) - lr*grad*noiseVar
	return math.Exp(logVar)
}

// Evaluate predicts every sample of ds in order and scores the predictions
// with MSE and RMSE.
func (m *Model) Evaluate(ds datasets.Dataset) (*Evaluation, error) {
	preds, labels, err := m.Predict(ds)
	if err != nil {
		return nil, err
	}
	mse, err := loss.MSE(labels, preds)
	if err != nil {
		return nil, err
	}
	return &Evaluation{
		Predictions: preds,
		Observed:    labels,
		MSE:         mse,
		RMSE:        math.Sqrt(mse),
	}, nil
}

// NoiseVar returns the current BMC noise variance.
func (m *Model) NoiseVar() float64 { return m.noiseVar }

// Epoch returns the number of epochs trained so far.
func (m *Model) Epoch() int { return m.epoch }
