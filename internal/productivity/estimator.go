package productivity

import (
	"context"
	"errors"
	"log/slog"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"dtpanel/internal/infrastructure"
	"dtpanel/internal/regression"
	"dtpanel/pkg/contracts/domain"
)

// Estimate is a fitted production function together with the observations
// carrying their TFP.
type Estimate struct {
	Method       string
	Intercept    float64
	Elasticities map[string]float64
	R2           float64
	N            int
	// Degenerate is set when the slopes were not identified and an
	// intercept-only fit was used.
	Degenerate   bool
	Observations []domain.ProductionObservation
}

// Estimator computes a TFP proxy for each observation.
type Estimator interface {
	Name() string
	Estimate(ctx context.Context, obs []domain.ProductionObservation) (*Estimate, error)
}

// OLSEstimator fits lnY = a + bL·lnL + bK·lnK + bM·lnM by OLS and sets
// TFP = residual + a.
//
// This ignores the simultaneity between productivity and input choice. A
// control-function estimator (Levinsohn-Petrin, Olley-Pakes) can replace it
// through the Estimator interface.
type OLSEstimator struct {
	logger *slog.Logger
}

// NewOLSEstimator creates the default estimator.
func NewOLSEstimator(logger *slog.Logger) *OLSEstimator {
	return &OLSEstimator{logger: infrastructure.WithComponent(logger, "tfp")}
}

func (e *OLSEstimator) Name() string { return "ols" }

// Estimate fits the model. When there are fewer rows than parameters or
// the inputs are collinear it falls back to an intercept-only fit
// (intercept = mean lnY, so TFP = lnY) and marks the estimate Degenerate.
// The input slice is not modified.
func (e *OLSEstimator) Estimate(ctx context.Context, obs []domain.ProductionObservation) (*Estimate, error) {
	out := make([]domain.ProductionObservation, len(obs))
	copy(out, obs)
	est := &Estimate{
		Method:       e.Name(),
		N:            len(out),
		Elasticities: map[string]float64{domain.ColLnL: 0, domain.ColLnK: 0, domain.ColLnM: 0},
		Observations: out,
	}
	if len(out) == 0 {
		est.Degenerate = true
		e.logger.WarnContext(ctx, "No production observations, TFP table will be empty")
		return est, nil
	}

	n := len(out)
	x := mat.NewDense(n, 4, nil)
	y := make([]float64, n)
	for i, o := range out {
		x.SetRow(i, []float64{1, o.LnL, o.LnK, o.LnM})
		y[i] = o.LnY
	}

	beta, resid, err := regression.LeastSquares(x, y)
	switch {
	case err == nil:
		est.Intercept = beta[0]
		est.Elasticities[domain.ColLnL] = beta[1]
		est.Elasticities[domain.ColLnK] = beta[2]
		est.Elasticities[domain.ColLnM] = beta[3]
		est.R2 = rSquared(y, resid)
		for i := range out {
			out[i].TFP = resid[i] + est.Intercept
		}
	case errors.Is(err, regression.ErrSingular), errors.Is(err, regression.ErrTooFewObservations):
		est.Degenerate = true
		est.Intercept = stat.Mean(y, nil)
		for i := range out {
			out[i].TFP = y[i]
		}
		e.logger.WarnContext(ctx, "Production function not identified, using intercept-only fit",
			slog.Int("rows", n),
			slog.String("reason", err.Error()))
	default:
		return nil, err
	}

	e.logger.InfoContext(ctx, "TFP estimated",
		slog.String("method", est.Method),
		slog.Int("rows", n),
		slog.Bool("degenerate", est.Degenerate),
		slog.Float64("intercept", est.Intercept),
		slog.Float64("beta_l", est.Elasticities[domain.ColLnL]),
		slog.Float64("beta_k", est.Elasticities[domain.ColLnK]),
		slog.Float64("beta_m", est.Elasticities[domain.ColLnM]),
		slog.Float64("r2", est.R2))
	return est, nil
}

// rSquared is 1 - RSS/TSS, or 0 when lnY does not vary.
func rSquared(y, resid []float64) float64 {
	mean := stat.Mean(y, nil)
	var rss, tss float64
	for i := range y {
		rss += resid[i] * resid[i]
		tss += (y[i] - mean) * (y[i] - mean)
	}
	if tss == 0 {
		return 0
	}
	return 1 - rss/tss
}

// Records converts the estimate into firm-year records with TFP_OLS and
// the log factors.
func (est *Estimate) Records() []*domain.FirmYearRecord {
	out := make([]*domain.FirmYearRecord, 0, len(est.Observations))
	for _, o := range est.Observations {
		rec := domain.NewFirmYearRecord(o.Key)
		rec.SetValue(domain.ColTFP, o.TFP)
		rec.SetValue(domain.ColLnY, o.LnY)
		rec.SetValue(domain.ColLnL, o.LnL)
		rec.SetValue(domain.ColLnK, o.LnK)
		rec.SetValue(domain.ColLnM, o.LnM)
		out = append(out, rec)
	}
	return out
}

// TFPColumns is the column order of the TFP table after Stkcd and Year.
var TFPColumns = []string{domain.ColTFP, domain.ColLnY, domain.ColLnL, domain.ColLnK, domain.ColLnM}
