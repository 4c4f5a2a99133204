package report

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gauges of one run in its own registry so every run can
// be written to a separate text file.
type Metrics struct {
	Registry *prometheus.Registry

	// EpochLoss tracks the mean training loss per epoch.
	EpochLoss *prometheus.GaugeVec

	// EpochValMSE tracks the validation MSE per epoch.
	EpochValMSE *prometheus.GaugeVec

	// NoiseVar tracks the BMC noise variance per epoch.
	NoiseVar *prometheus.GaugeVec

	// TestMSE and TestRMSE hold the final test scores.
	TestMSE  *prometheus.GaugeVec
	TestRMSE *prometheus.GaugeVec

	// TrainingSeconds is the training wall time.
	TrainingSeconds *prometheus.GaugeVec

	// BaselineMSE holds the persistence baseline MSE per lead time.
	BaselineMSE *prometheus.GaugeVec
}

// NewMetrics creates and registers the gauges.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		EpochLoss: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ssta_epoch_loss",
				Help: "Mean training loss of an epoch",
			},
			[]string{"run", "epoch"},
		),
		EpochValMSE: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ssta_epoch_val_mse",
				Help: "Validation MSE after an epoch",
			},
			[]string{"run", "epoch"},
		),
		NoiseVar: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ssta_bmc_noise_var",
				Help: "BMC noise variance after an epoch",
			},
			[]string{"run", "epoch"},
		),
		TestMSE: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ssta_test_mse",
				Help: "Final test MSE of a run",
			},
			[]string{"run"},
		),
		TestRMSE: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ssta_test_rmse",
				Help: "Final test RMSE of a run",
			},
			[]string{"run"},
		),
		TrainingSeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ssta_training_seconds",
				Help: "Training wall time of a run",
			},
			[]string{"run"},
		),
		BaselineMSE: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ssta_persistence_mse",
				Help: "Persistence baseline MSE for a lead time",
			},
			[]string{"lead_time"},
		),
	}
	m.Registry.MustRegister(
		m.EpochLoss,
		m.EpochValMSE,
		m.NoiseVar,
		m.TestMSE,
		m.TestRMSE,
		m.TrainingSeconds,
		m.BaselineMSE,
	)
	return m
}

// ObserveEpochs records the per-epoch history of a run. NaN values are
// skipped.
func (m *Metrics) ObserveEpochs(run string, loss, valMSE, noiseVar []float64) {
	set := func(g *prometheus.GaugeVec, vals []float64) {
		for i, v := range vals {
			if math.IsNaN(v) {
				continue
			}
			g.WithLabelValues(run, strconv.Itoa(i+1)).Set(v)
		}
	}
	set(m.EpochLoss, loss)
	set(m.EpochValMSE, valMSE)
	set(m.NoiseVar, noiseVar)
}

// ObserveTest records the final scores of a run.
func (m *Metrics) ObserveTest(run string, mse, rmse, seconds float64) {
	m.TestMSE.WithLabelValues(run).Set(mse)
	m.TestRMSE.WithLabelValues(run).Set(rmse)
	m.TrainingSeconds.WithLabelValues(run).Set(seconds)
}

// ObserveBaseline records the persistence MSE for a lead time.
func (m *Metrics) ObserveBaseline(leadTime int, mse float64) {
	m.BaselineMSE.WithLabelValues(strconv.Itoa(leadTime)).Set(mse)
}

// WriteFile writes every registered metric to path in the Prometheus text
// format.
func (m *Metrics) WriteFile(path string) error {
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
