package productivity

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"dtpanel/internal/dataprocessing"
	apperrors "dtpanel/internal/errors"
	"dtpanel/internal/infrastructure"
	"dtpanel/pkg/contracts/domain"
)

// JoinStats counts what the factor join kept and dropped.
type JoinStats struct {
	// Candidates is the number of keys in the output table.
	Candidates int
	// Unmatched counts keys absent from at least one other factor table.
	Unmatched int
	// Missing counts matched keys with a missing factor value.
	Missing int
	// NonPositive counts rows with a factor <= 0, where the log is undefined.
	NonPositive int
	Rows        int
}

// Builder assembles production observations from the factor tables.
type Builder struct {
	logger  *slog.Logger
	metrics *infrastructure.Metrics
}

// NewBuilder creates a builder. metrics may be nil.
func NewBuilder(logger *slog.Logger, metrics *infrastructure.Metrics) *Builder {
	return &Builder{
		logger:  infrastructure.WithComponent(logger, "production"),
		metrics: metrics,
	}
}

// factorColumn returns the production factor a table provides.
func factorColumn(t *dataprocessing.SourceTable) (string, bool) {
	for _, c := range t.Spec.Columns {
		for _, f := range domain.FactorColumns {
			if c.To == f {
				return f, true
			}
		}
	}
	return "", false
}

// Build inner-joins the four factor tables on (Stkcd, Year), keeps rows
// where every factor is present and strictly positive, and log-transforms
// them. An absent factor table is a SourceNotFound error, since the join
// would be empty.
func (b *Builder) Build(ctx context.Context, tables []*dataprocessing.SourceTable) ([]domain.ProductionObservation, JoinStats, error) {
	var st JoinStats

	byFactor := make(map[string]*dataprocessing.SourceTable, len(domain.FactorColumns))
	for _, t := range tables {
		if t == nil {
			continue
		}
		f, ok := factorColumn(t)
		if !ok {
			return nil, st, apperrors.NewAppValidationError(fmt.Sprintf("source %q provides no production factor", t.Spec.Name))
		}
		if t.Absent {
			return nil, st, apperrors.NewSourceNotFoundError(t.Spec.Name, t.Spec.File, t.Dir)
		}
		byFactor[f] = t
	}
	for _, f := range domain.FactorColumns {
		if _, ok := byFactor[f]; !ok {
			return nil, st, apperrors.NewAppValidationError(fmt.Sprintf("no source provides production factor %s", f))
		}
	}

	indexes := make(map[string]map[domain.FirmYearKey]*domain.FirmYearRecord, len(byFactor))
	for f, t := range byFactor {
		indexes[f] = t.Index()
	}

	base := byFactor[domain.ColOutput]
	st.Candidates = base.Len()
	obs := make([]domain.ProductionObservation, 0, base.Len())

rows:
	for _, rec := range base.Records {
		vals := make(map[string]float64, len(domain.FactorColumns))
		missing := false
		for _, f := range domain.FactorColumns {
			src, ok := indexes[f][rec.Key]
			if !ok {
				st.Unmatched++
				continue rows
			}
			v, ok := src.Value(f)
			if !ok {
				missing = true
				continue
			}
			vals[f] = v
		}
		if missing {
			st.Missing++
			continue
		}
		for _, f := range domain.FactorColumns {
			if !(vals[f] > 0) {
				st.NonPositive++
				continue rows
			}
		}

		obs = append(obs, domain.ProductionObservation{
			Key:               rec.Key,
			Output:            vals[domain.ColOutput],
			IntermediateInput: vals[domain.ColIntermediateInput],
			Capital:           vals[domain.ColCapital],
			Labor:             vals[domain.ColLabor],
			LnY:               math.Log(vals[domain.ColOutput]),
			LnM:               math.Log(vals[domain.ColIntermediateInput]),
			LnK:               math.Log(vals[domain.ColCapital]),
			LnL:               math.Log(vals[domain.ColLabor]),
		})
	}
	st.Rows = len(obs)

	b.metrics.RowsDropped("tfp", "unmatched", st.Unmatched)
	b.metrics.RowsDropped("tfp", "missing_factor", st.Missing)
	b.metrics.RowsDropped("tfp", "non_positive_factor", st.NonPositive)
	b.logger.InfoContext(ctx, "Production panel built",
		slog.Int("candidates", st.Candidates),
		slog.Int("unmatched", st.Unmatched),
		slog.Int("missing_factor", st.Missing),
		slog.Int("non_positive", st.NonPositive),
		slog.Int("rows", st.Rows))
	return obs, st, nil
}
