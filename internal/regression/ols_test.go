package regression

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func withIntercept(x ...float64) *mat.Dense {
	m := mat.NewDense(len(x), 2, nil)
	for i, v := range x {
		m.Set(i, 0, 1)
		m.Set(i, 1, v)
	}
	return m
}

// Worked by hand: slope 1.1, intercept 1.1, residuals (-0.1, 0.8, -1.3, 0.6).
// HC1 variance of the slope is n/(n-k)·Σ(x-x̄)²e²/Sxx² = 2·1.415/25.
func TestFitOLS_HC1HandComputed(t *testing.T) {
	fit, err := FitOLS(withIntercept(0, 1, 2, 3), []float64{1, 3, 2, 5}, 0)
	require.NoError(t, err)

	assert.InDelta(t, 1.1, fit.Beta[0], 1e-12)
	assert.InDelta(t, 1.1, fit.Beta[1], 1e-12)
	assert.InDeltaSlice(t, []float64{-0.1, 0.8, -1.3, 0.6}, fit.Resid, 1e-12)

	assert.InDelta(t, math.Sqrt(0.2772), fit.StdErr[0], 1e-10)
	assert.InDelta(t, math.Sqrt(0.1132), fit.StdErr[1], 1e-10)
	assert.InDelta(t, 1.1/math.Sqrt(0.1132), fit.Z[1], 1e-9)
	assert.InDelta(t, 0.00108, fit.P[1], 1e-4)

	assert.Equal(t, 4, fit.N)
	assert.Equal(t, 2, fit.K)
	assert.Equal(t, 2, fit.DFResid)
	assert.InDelta(t, 2.7, fit.RSS, 1e-12)
	assert.InDelta(t, 1-2.7/8.75, fit.R2, 1e-12)
	assert.InDelta(t, 1-(2.7/8.75)*3/2, fit.AdjR2, 1e-12)
}

func TestFitOLS_Failures(t *testing.T) {
	t.Run("too few observations", func(t *testing.T) {
		_, err := FitOLS(withIntercept(1, 2), []float64{1, 2}, 0)
		assert.ErrorIs(t, err, ErrTooFewObservations)
	})

	t.Run("absorbed groups use up degrees of freedom", func(t *testing.T) {
		x := mat.NewDense(3, 1, []float64{1, -1, 0})
		_, err := FitOLS(x, []float64{1, 2, 3}, 2)
		assert.ErrorIs(t, err, ErrTooFewObservations)
	})

	t.Run("collinear columns", func(t *testing.T) {
		x := mat.NewDense(4, 3, []float64{
			1, 1, 2,
			1, 2, 4,
			1, 3, 6,
			1, 4, 8,
		})
		_, err := FitOLS(x, []float64{1, 2, 2, 5}, 0)
		assert.ErrorIs(t, err, ErrSingular)
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := FitOLS(withIntercept(1, 2, 3), []float64{1}, 0)
		assert.Error(t, err)
	})
}

func TestFitOLS_ExactFit(t *testing.T) {
	fit, err := FitOLS(withIntercept(1, 2, 3, 4, 5), []float64{3, 5, 7, 9, 11}, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1, fit.Beta[0], 1e-10)
	assert.InDelta(t, 2, fit.Beta[1], 1e-10)
	assert.InDelta(t, 1, fit.R2, 1e-12)
}

func TestLeastSquares(t *testing.T) {
	x := withIntercept(1, 3)
	beta, resid, err := LeastSquares(x, []float64{2, 8})
	require.NoError(t, err, "two rows identify two parameters")
	assert.InDeltaSlice(t, []float64{-1, 3}, beta, 1e-9)
	assert.InDeltaSlice(t, []float64{0, 0}, resid, 1e-9)

	_, err = FitOLS(x, []float64{2, 8}, 0)
	assert.ErrorIs(t, err, ErrTooFewObservations, "inference needs residual degrees of freedom")

	_, _, err = LeastSquares(withIntercept(1), []float64{2})
	assert.ErrorIs(t, err, ErrTooFewObservations)

	_, _, err = LeastSquares(withIntercept(2, 2, 2), []float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrSingular)
}
