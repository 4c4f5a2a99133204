package persist

import (
	"math"
	"testing"

	"github.com/Noofbiz/sstaGraph/datasets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(n int) []float64 {
	y := make([]float64, n)
	for i := range y {
		y[i] = float64(i)
	}
	return y
}

func TestBaseline_Ramp(t *testing.T) {
	// numTrain = 8, lead 2: observed y[10:], predicted y[8:18].
	res, err := Baseline{LeadTime: 2, TrainSplit: 0.4}.Evaluate(ramp(20))
	require.NoError(t, err)
	assert.Equal(t, 10, res.TestStart)
	assert.Equal(t, ramp(20)[10:], res.Observed)
	assert.Equal(t, ramp(20)[8:18], res.Predictions)
	assert.InDelta(t, 4.0, res.MSE, 1e-12)
	assert.InDelta(t, 2.0, res.RMSE, 1e-12)
}

func TestBaseline_PredictionIsValueLeadStepsEarlier(t *testing.T) {
	y := make([]float64, 50)
	for i := range y {
		y[i] = math.Sin(float64(i))
	}
	for _, lead := range DefaultLeadTimes {
		res, err := Baseline{LeadTime: lead, TrainSplit: 0.5}.Evaluate(y)
		require.NoError(t, err)
		require.Equal(t, len(res.Observed), len(res.Predictions))
		for k := range res.Observed {
			assert.Equal(t, y[res.TestStart+k], res.Observed[k])
			assert.Equal(t, y[res.TestStart+k-lead], res.Predictions[k])
		}
	}
}

func TestBaseline_ConstantSeriesIsPerfect(t *testing.T) {
	y := make([]float64, 30)
	for i := range y {
		y[i] = 0.7
	}
	res, err := Baseline{LeadTime: 3, TrainSplit: 0.8}.Evaluate(y)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.MSE)
}

func TestBaseline_Errors(t *testing.T) {
	_, err := Baseline{LeadTime: 0, TrainSplit: 0.8}.Evaluate(ramp(10))
	assert.ErrorIs(t, err, datasets.ErrInvalidParameter)

	_, err = Baseline{LeadTime: 1, TrainSplit: 1.5}.Evaluate(ramp(10))
	assert.ErrorIs(t, err, datasets.ErrInvalidParameter)

	// numTrain = 8, lead 2: nothing left to observe.
	_, err = Baseline{LeadTime: 2, TrainSplit: 0.8}.Evaluate(ramp(10))
	assert.ErrorIs(t, err, datasets.ErrShapeMismatch)
}

func TestEvaluateLeadTimes_KeepsOrder(t *testing.T) {
	y := ramp(200)
	res, err := EvaluateLeadTimes(y, 0.8, DefaultLeadTimes)
	require.NoError(t, err)
	require.Len(t, res, len(DefaultLeadTimes))
	for i, lead := range DefaultLeadTimes {
		assert.Equal(t, lead, res[i].LeadTime)
		assert.InDelta(t, float64(lead*lead), res[i].MSE, 1e-9)
	}

	_, err = EvaluateLeadTimes(ramp(10), 0.8, []int{1, 5})
	assert.ErrorIs(t, err, datasets.ErrShapeMismatch)

	res, err = EvaluateLeadTimes(y, 0.8, nil)
	require.NoError(t, err)
	assert.Empty(t, res)
}
