package regression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dtpanel/internal/config"
	apperrors "dtpanel/internal/errors"
	"dtpanel/internal/infrastructure"
	"dtpanel/internal/panel"
	"dtpanel/pkg/contracts/domain"
)

// CovType is the covariance estimator reported on every fit.
const CovType = "HC1"

// Options configures a Runner.
type Options struct {
	YearCutoff    int
	ImputeColumns []string
	Imputer       Imputer
	// Absorb names a variable whose fixed effects are swept out by
	// within-group demeaning. Empty disables absorption.
	Absorb string
}

// PrepareStats summarizes the preparation of the regression sample.
type PrepareStats struct {
	BeforeCutoff int
	TFPMatched   int
	Impute       ImputeStats
	Rows         int
}

// Runner prepares the panel and fits the configured models.
type Runner struct {
	logger  *slog.Logger
	metrics *infrastructure.Metrics
	opts    Options
}

// NewRunner creates a runner. A nil Imputer means mean imputation.
func NewRunner(logger *slog.Logger, metrics *infrastructure.Metrics, opts Options) *Runner {
	if opts.Imputer == nil {
		opts.Imputer = MeanImputer{}
	}
	return &Runner{
		logger:  infrastructure.WithComponent(logger, "regression"),
		metrics: metrics,
		opts:    opts,
	}
}

// Prepare filters the panel to Year >= YearCutoff, left-joins the TFP
// table when one is given, and applies the imputer.
func (r *Runner) Prepare(ctx context.Context, p *panel.Panel, tfp []*domain.FirmYearRecord) PrepareStats {
	var st PrepareStats

	cutoff := r.opts.YearCutoff
	st.BeforeCutoff = p.Filter(func(rec *domain.FirmYearRecord) bool { return rec.Key.Year >= cutoff })
	r.metrics.RowsDropped("regress", "before_cutoff", st.BeforeCutoff)

	if tfp != nil {
		st.TFPMatched = JoinTFP(p, tfp)
		r.logger.InfoContext(ctx, "Joined TFP",
			slog.Int("tfp_rows", len(tfp)),
			slog.Int("matched", st.TFPMatched))
	}

	var columns []string
	for _, c := range r.opts.ImputeColumns {
		if p.HasColumn(c) {
			columns = append(columns, c)
			continue
		}
		r.logger.WarnContext(ctx, "Impute column not in panel", slog.String("column", c))
	}
	st.Impute = r.opts.Imputer.Impute(p, columns)
	r.metrics.RowsDropped("regress", "impute_drop", st.Impute.Dropped)
	st.Rows = p.Len()

	r.logger.InfoContext(ctx, "Regression sample prepared",
		slog.Int("year_cutoff", cutoff),
		slog.Int("dropped_before_cutoff", st.BeforeCutoff),
		slog.String("imputation", st.Impute.Method),
		slog.Any("imputed", st.Impute.Filled),
		slog.Int("rows", st.Rows))
	return st
}

// JoinTFP left-joins TFP_OLS onto the panel by key and returns the number
// of matched rows.
func JoinTFP(p *panel.Panel, tfp []*domain.FirmYearRecord) int {
	p.AddColumns(domain.ColTFP)
	matched := 0
	for _, t := range tfp {
		v, ok := t.Value(domain.ColTFP)
		if !ok {
			continue
		}
		if rec, ok := p.Get(t.Key); ok {
			rec.SetValue(domain.ColTFP, v)
			matched++
		}
	}
	return matched
}

// Run fits every model in order. A failing model is reported in its result
// and does not stop the others.
func (r *Runner) Run(ctx context.Context, p *panel.Panel, models []config.ModelSpec) []domain.ModelResult {
	results := make([]domain.ModelResult, 0, len(models))
	for _, m := range models {
		results = append(results, r.Fit(ctx, p, m))
	}
	return results
}

// Fit fits one model. It never panics: numerical failures, including
// panics in the linear algebra, become a failed result.
func (r *Runner) Fit(ctx context.Context, p *panel.Panel, spec config.ModelSpec) (res domain.ModelResult) {
	res = domain.ModelResult{
		Name:     spec.Name,
		Formula:  spec.Formula,
		CovType:  CovType,
		Absorbed: r.opts.Absorb,
	}

	defer func() {
		if rec := recover(); rec != nil {
			res = r.failed(ctx, res, "numerical failure", fmt.Errorf("panic: %v", rec))
		}
		r.metrics.ModelFit(res.Name, res.Status)
	}()

	f, err := ParseFormula(spec.Formula)
	if err != nil {
		return r.failed(ctx, res, "invalid formula", err)
	}
	res.Formula = f.String()

	vars := f.Variables()
	if r.opts.Absorb != "" {
		vars = append(vars, r.opts.Absorb)
	}
	for _, v := range vars {
		if v == domain.ColStkcd || v == domain.ColYear {
			continue
		}
		if !p.HasColumn(v) {
			return r.failed(ctx, res, fmt.Sprintf("column %s not in panel", v), nil)
		}
	}

	d, err := BuildDesign(p.Records(), f, r.opts.Absorb)
	if err != nil {
		return r.failed(ctx, res, "cannot build design", err)
	}
	res.Dropped = d.Dropped
	res.N = len(d.Y)
	if len(d.Collinear) > 0 {
		r.logger.WarnContext(ctx, "Terms removed by absorption",
			slog.String("model", spec.Name),
			slog.Any("terms", d.Collinear))
	}

	fit, err := FitOLS(d.X, d.Y, d.Groups)
	if err != nil {
		msg := "estimation failed"
		switch {
		case errors.Is(err, ErrSingular):
			msg = "singular design"
		case errors.Is(err, ErrTooFewObservations):
			msg = "too few observations"
		}
		return r.failed(ctx, res, msg, err)
	}

	res.Status = domain.ModelStatusOK
	res.DFResid = fit.DFResid
	res.R2 = fit.R2
	res.AdjR2 = fit.AdjR2
	res.Coefficients = make([]domain.Coefficient, len(d.Columns))
	for j, name := range d.Columns {
		res.Coefficients[j] = domain.Coefficient{
			Term:     name,
			Estimate: fit.Beta[j],
			StdErr:   fit.StdErr[j],
			Z:        fit.Z[j],
			P:        fit.P[j],
		}
	}

	r.logger.InfoContext(ctx, "Model fitted",
		slog.String("model", res.Name),
		slog.Int("n", res.N),
		slog.Int("dropped", res.Dropped),
		slog.Float64("r2", res.R2))
	return res
}

func (r *Runner) failed(ctx context.Context, res domain.ModelResult, msg string, cause error) domain.ModelResult {
	err := apperrors.NewModelFitError(res.Name, msg, cause)
	res.Status = domain.ModelStatusFailed
	res.Error = err.Error()
	res.Coefficients = nil
	r.logger.ErrorContext(ctx, "Model fit failed",
		slog.String("model", res.Name),
		slog.String("error", res.Error))
	return res
}
