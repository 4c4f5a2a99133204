package loss

import (
	"fmt"
	"math"

	"github.com/Noofbiz/sstaGraph/datasets"
	"gonum.org/v1/gonum/floats"
)

// MSE returns the mean squared error between observed and predicted values.
func MSE(observed, predicted []float64) (float64, error) {
	if len(observed) != len(predicted) {
		return 0, fmt.Errorf("observed has %d values, predicted has %d: %w", len(observed), len(predicted), datasets.ErrShapeMismatch)
	}
	if len(observed) == 0 {
		return 0, fmt.Errorf("no values to compare: %w", datasets.ErrShapeMismatch)
	}
	d := floats.Distance(observed, predicted, 2)
	return d * d / float64(len(observed)), nil
}

// RMSE returns the root of MSE.
func RMSE(observed, predicted []float64) (float64, error) {
	m, err := MSE(observed, predicted)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(m), nil
}
