package panel

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	apperrors "dtpanel/internal/errors"
	"dtpanel/internal/infrastructure"
	"dtpanel/pkg/contracts/domain"
)

// Skip is one aggregated ComputationSkipped diagnostic.
type Skip struct {
	Field  string
	Reason string
	Rows   int
}

type skipKey struct{ field, reason string }

// Diagnostics aggregates skipped computations per field and reason.
type Diagnostics struct {
	counts map[skipKey]int
}

func newDiagnostics() *Diagnostics {
	return &Diagnostics{counts: make(map[skipKey]int)}
}

func (d *Diagnostics) add(field, reason string) {
	d.counts[skipKey{field, reason}]++
}

// Skips returns the diagnostics sorted by field, then reason.
func (d *Diagnostics) Skips() []Skip {
	out := make([]Skip, 0, len(d.counts))
	for k, n := range d.counts {
		out = append(out, Skip{Field: k.field, Reason: k.reason, Rows: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

// Count returns the rows skipped for field, over all reasons.
func (d *Diagnostics) Count(field string) int {
	n := 0
	for k, c := range d.counts {
		if k.field == field {
			n += c
		}
	}
	return n
}

// Deriver computes the analysis variables on a merged panel.
type Deriver struct {
	logger  *slog.Logger
	metrics *infrastructure.Metrics
}

// NewDeriver creates a deriver. metrics may be nil.
func NewDeriver(logger *slog.Logger, metrics *infrastructure.Metrics) *Deriver {
	return &Deriver{
		logger:  infrastructure.WithComponent(logger, "deriver"),
		metrics: metrics,
	}
}

type rule struct {
	field   string
	compute func(rec *domain.FirmYearRecord) (float64, string)
}

// rules run in order; a non-empty reason leaves the field missing.
var rules = []rule{
	{domain.ColSize, deriveSize},
	{domain.ColLev, deriveLev},
	{domain.ColROA, deriveROA},
	{domain.ColBoard, deriveBoard},
	{domain.ColAge, deriveAge},
	{domain.ColGDP, deriveGDP},
	{domain.ColSOE, deriveSOE},
	{domain.ColTreatTime, deriveTreatTime},
}

// Derive computes every derived field on every row. It never fails: a row
// whose prerequisites are missing or invalid gets the field left missing
// and a diagnostic, logged once per field and reason.
func (d *Deriver) Derive(ctx context.Context, p *Panel) *Diagnostics {
	diag := newDiagnostics()
	for _, r := range rules {
		p.AddColumns(r.field)
	}

	for _, rec := range p.Records() {
		for _, r := range rules {
			v, reason := r.compute(rec)
			if reason != "" {
				rec.Unset(r.field)
				diag.add(r.field, reason)
				continue
			}
			rec.SetValue(r.field, v)
		}
	}

	for _, s := range diag.Skips() {
		d.metrics.DerivedSkipped(s.Field, s.Reason, s.Rows)
		d.logger.WarnContext(ctx, "Derived field skipped",
			slog.String("field", s.Field),
			slog.Int("rows", s.Rows),
			slog.String("error", apperrors.NewComputationSkippedError(s.Field, s.Reason, s.Rows).Error()))
	}
	return diag
}

func log1pOf(rec *domain.FirmYearRecord, col string) (float64, string) {
	x, ok := rec.Value(col)
	if !ok {
		return 0, col + " missing"
	}
	v, ok := SafeLog1p(x)
	if !ok {
		return 0, col + " <= -1"
	}
	return v, ""
}

func deriveSize(rec *domain.FirmYearRecord) (float64, string) {
	return log1pOf(rec, domain.ColTotalAssets)
}

// ratioOrRaw prefers num/TotalAssets and falls back to a directly reported
// figure.
func ratioOrRaw(rec *domain.FirmYearRecord, num, raw string) (float64, string) {
	n, okN := rec.Value(num)
	a, okA := rec.Value(domain.ColTotalAssets)
	if okN && okA {
		if q, ok := SafeDiv(n, a); ok {
			return q, ""
		}
	}
	if v, ok := rec.Value(raw); ok {
		return v, ""
	}
	switch {
	case okN && okA:
		return 0, "TotalAssets is zero and " + raw + " missing"
	case !okA:
		return 0, "TotalAssets and " + raw + " missing"
	default:
		return 0, num + " and " + raw + " missing"
	}
}

func deriveLev(rec *domain.FirmYearRecord) (float64, string) {
	return ratioOrRaw(rec, domain.ColTotalLiabilities, domain.ColLevRaw)
}

func deriveROA(rec *domain.FirmYearRecord) (float64, string) {
	return ratioOrRaw(rec, domain.ColNetProfit, domain.ColROARaw)
}

func deriveBoard(rec *domain.FirmYearRecord) (float64, string) {
	return log1pOf(rec, domain.ColBoardSize)
}

func deriveAge(rec *domain.FirmYearRecord) (float64, string) {
	est, ok := rec.Value(domain.ColEstablishYear)
	if !ok {
		return 0, domain.ColEstablishYear + " missing"
	}
	age := float64(rec.Key.Year) - est
	if age < 0 {
		return 0, "established after fiscal year"
	}
	v, _ := SafeLog1p(age)
	return v, ""
}

// deriveGDP re-reads the regional figures rather than GDP itself so that
// deriving twice does not apply the log twice.
func deriveGDP(rec *domain.FirmYearRecord) (float64, string) {
	x, ok := rec.Value(domain.ColGDPCity)
	if !ok {
		x, ok = rec.Value(domain.ColGDPProv)
	}
	if !ok {
		return 0, "GDP_City and GDP_Prov missing"
	}
	v, ok := SafeLog1p(x)
	if !ok {
		return 0, "GDP <= -1"
	}
	return v, ""
}

func deriveSOE(rec *domain.FirmYearRecord) (float64, string) {
	id, ok := rec.Label(domain.ColSOEID)
	if !ok {
		// Registries that load the nature code as a number.
		v, okV := rec.Value(domain.ColSOEID)
		if !okV {
			return 0, domain.ColSOEID + " missing"
		}
		id = strconv.FormatFloat(v, 'f', -1, 64)
	}
	if strings.HasPrefix(strings.TrimSpace(id), "1") {
		return 1, ""
	}
	return 0, ""
}

func deriveTreatTime(rec *domain.FirmYearRecord) (float64, string) {
	score, ok := rec.Value(domain.ColDigitalScore)
	if !ok {
		return 0, domain.ColDigitalScore + " missing"
	}
	if score > 0 {
		return 1, ""
	}
	return 0, ""
}
