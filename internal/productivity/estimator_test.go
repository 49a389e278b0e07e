package productivity

import (
	"context"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtpanel/internal/shared/testutil"
	"dtpanel/pkg/contracts/domain"
)

func observation(stkcd string, y, m, k, l float64) domain.ProductionObservation {
	return domain.ProductionObservation{
		Key:    domain.FirmYearKey{Stkcd: stkcd, Year: 2020},
		Output: y, IntermediateInput: m, Capital: k, Labor: l,
		LnY: math.Log(y), LnM: math.Log(m), LnK: math.Log(k), LnL: math.Log(l),
	}
}

func TestOLSEstimator_SingleObservation(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	est, err := NewOLSEstimator(logger).Estimate(context.Background(),
		[]domain.ProductionObservation{observation("000001", 200, 50, 100, 20)})
	require.NoError(t, err)

	assert.True(t, est.Degenerate)
	require.Len(t, est.Observations, 1)
	assert.Equal(t, math.Log(200), est.Observations[0].TFP)
	testutil.AssertLogContains(t, logs, slog.LevelWarn, "Production function not identified, using intercept-only fit")
}

func TestOLSEstimator_RecoversTechnology(t *testing.T) {
	// lnY = 0.5 + 0.3 lnL + 0.2 lnK + 0.4 lnM + u, with u summing to zero.
	inputs := [][3]float64{
		{10, 100, 40}, {20, 80, 60}, {15, 150, 30}, {30, 200, 90},
		{25, 120, 70}, {12, 90, 45}, {40, 300, 120}, {18, 60, 55},
	}
	shocks := []float64{0.002, -0.002, 0.001, -0.001, 0.0005, -0.0005, 0, 0}

	obs := make([]domain.ProductionObservation, len(inputs))
	for i, in := range inputs {
		l, k, m := in[0], in[1], in[2]
		lnY := 0.5 + 0.3*math.Log(l) + 0.2*math.Log(k) + 0.4*math.Log(m) + shocks[i]
		obs[i] = observation("00000"+string(rune('1'+i)), math.Exp(lnY), m, k, l)
	}

	est, err := NewOLSEstimator(nil).Estimate(context.Background(), obs)
	require.NoError(t, err)
	assert.False(t, est.Degenerate)
	assert.Equal(t, 8, est.N)
	assert.InDelta(t, 0.3, est.Elasticities[domain.ColLnL], 0.05)
	assert.InDelta(t, 0.2, est.Elasticities[domain.ColLnK], 0.05)
	assert.InDelta(t, 0.4, est.Elasticities[domain.ColLnM], 0.05)

	for _, o := range est.Observations {
		fitted := est.Intercept + est.Elasticities[domain.ColLnL]*o.LnL +
			est.Elasticities[domain.ColLnK]*o.LnK + est.Elasticities[domain.ColLnM]*o.LnM
		assert.InDelta(t, o.LnY-fitted+est.Intercept, o.TFP, 1e-9, "TFP is residual plus intercept")
	}
	assert.Zero(t, obs[0].TFP, "input is not modified")

	recs := est.Records()
	require.Len(t, recs, 8)
	v, ok := recs[0].Value(domain.ColTFP)
	require.True(t, ok)
	assert.Equal(t, est.Observations[0].TFP, v)
}

func TestOLSEstimator_ExactlyIdentified(t *testing.T) {
	inputs := [][3]float64{{10, 100, 40}, {20, 80, 60}, {15, 150, 30}, {30, 200, 90}}
	obs := make([]domain.ProductionObservation, len(inputs))
	for i, in := range inputs {
		l, k, m := in[0], in[1], in[2]
		lnY := 0.5 + 0.3*math.Log(l) + 0.2*math.Log(k) + 0.4*math.Log(m)
		obs[i] = observation("00000"+string(rune('1'+i)), math.Exp(lnY), m, k, l)
	}

	logger, logs := testutil.NewTestLogger(t)
	est, err := NewOLSEstimator(logger).Estimate(context.Background(), obs)
	require.NoError(t, err)

	assert.False(t, est.Degenerate, "four rows identify four parameters")
	assert.InDelta(t, 0.5, est.Intercept, 1e-6)
	assert.InDelta(t, 0.3, est.Elasticities[domain.ColLnL], 1e-6)
	assert.InDelta(t, 0.2, est.Elasticities[domain.ColLnK], 1e-6)
	assert.InDelta(t, 0.4, est.Elasticities[domain.ColLnM], 1e-6)
	for _, o := range est.Observations {
		assert.InDelta(t, est.Intercept, o.TFP, 1e-6, "zero residuals leave TFP at the intercept")
	}
	assert.Empty(t, logs.GetRecordsByLevel(slog.LevelWarn))
}

func TestOLSEstimator_Collinear(t *testing.T) {
	obs := []domain.ProductionObservation{
		observation("000001", 200, 50, 100, 20),
		observation("000002", 300, 50, 100, 20),
		observation("000003", 250, 50, 100, 20),
		observation("000004", 100, 50, 100, 20),
		observation("000005", 150, 50, 100, 20),
	}
	est, err := NewOLSEstimator(nil).Estimate(context.Background(), obs)
	require.NoError(t, err)

	assert.True(t, est.Degenerate)
	for i, o := range est.Observations {
		assert.Equal(t, obs[i].LnY, o.TFP)
	}
}

func TestOLSEstimator_Empty(t *testing.T) {
	est, err := NewOLSEstimator(nil).Estimate(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, est.Degenerate)
	assert.Empty(t, est.Records())
}
