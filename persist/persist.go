// Package persist implements the persistence baseline: the forecast for a
// month lead time steps ahead is the value observed today.
package persist

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/Noofbiz/sstaGraph/datasets"
	"github.com/Noofbiz/sstaGraph/loss"
)

// DefaultLeadTimes are the lead times evaluated by the baseline sweep.
var DefaultLeadTimes = []int{1, 2, 3, 6, 12, 23}

// Baseline is a persistence forecaster evaluated on the chronological test
// portion of a target series.
type Baseline struct {
	LeadTime   int
	TrainSplit float64
}

// Result holds the baseline forecasts for the test portion of a series.
type Result struct {
	LeadTime int

	// TestStart is the index of the first observed value: the test portion
	// begins at floor(len*TrainSplit) and the first LeadTime steps are only
	// used as forecasts.
	TestStart int

	// Predictions[k] is targets[TestStart+k-LeadTime].
	Predictions []float64

	// Observed[k] is targets[TestStart+k].
	Observed []float64

	MSE  float64
	RMSE float64
}

// Evaluate scores the baseline on targets. The split is computed over the
// whole series, not over windowed samples.
func (b Baseline) Evaluate(targets []float64) (*Result, error) {
	if b.LeadTime <= 0 {
		return nil, fmt.Errorf("lead time must be > 0, got %d: %w", b.LeadTime, datasets.ErrInvalidParameter)
	}
	if math.IsNaN(b.TrainSplit) || b.TrainSplit <= 0 || b.TrainSplit > 1 {
		return nil, fmt.Errorf("train split must be in (0, 1], got %v: %w", b.TrainSplit, datasets.ErrInvalidParameter)
	}
	numTrain := datasets.NumTrain(len(targets), b.TrainSplit)
	testStart := numTrain + b.LeadTime
	if testStart >= len(targets) {
		return nil, fmt.Errorf("no test values: %d targets, test starts at %d: %w", len(targets), testStart, datasets.ErrShapeMismatch)
	}

	res := &Result{
		LeadTime:    b.LeadTime,
		TestStart:   testStart,
		Observed:    append([]float64(nil), targets[testStart:]...),
		Predictions: append([]float64(nil), targets[numTrain:len(targets)-b.LeadTime]...),
	}
	var err error
	if res.MSE, err = loss.MSE(res.Observed, res.Predictions); err != nil {
		return nil, err
	}
	res.RMSE = math.Sqrt(res.MSE)
	return res, nil
}

// EvaluateLeadTimes evaluates the baseline for every lead time concurrently
// and returns the results in the order of leadTimes. The first error
// encountered, in lead time order, is returned.
func EvaluateLeadTimes(targets []float64, trainSplit float64, leadTimes []int) ([]*Result, error) {
	n := len(leadTimes)
	results := make([]*Result, n)
	errs := make([]error, n)
	if n == 0 {
		return results, nil
	}

	workerCount := runtime.NumCPU()
	if workerCount > n {
		workerCount = n
	}
	jobs := make(chan int, n)
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				b := Baseline{LeadTime: leadTimes[i], TrainSplit: trainSplit}
				results[i], errs[i] = b.Evaluate(targets)
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("lead time %d: %w", leadTimes[i], err)
		}
	}
	return results, nil
}
