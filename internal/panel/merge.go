package panel

import (
	"context"
	"log/slog"

	"dtpanel/internal/dataprocessing"
	"dtpanel/internal/infrastructure"
	"dtpanel/pkg/contracts/domain"
)

// MergeStat summarizes one join.
type MergeStat struct {
	Source  string
	Rows    int
	Matched int
	Skipped bool

	// Incomplete is set when the source lacked a required column.
	Incomplete bool
}

// Merger builds the panel from cleaned source tables.
type Merger struct {
	logger  *slog.Logger
	metrics *infrastructure.Metrics
}

// NewMerger creates a merger. metrics may be nil.
func NewMerger(logger *slog.Logger, metrics *infrastructure.Metrics) *Merger {
	return &Merger{
		logger:  infrastructure.WithComponent(logger, "merger"),
		metrics: metrics,
	}
}

// Merge left-joins every secondary table onto base in the given order,
// then joins region tables through the City / Province labels, and finally
// resolves GDP. Every base row is kept. When two tables provide the same
// column the first non-missing value wins. Absent tables are skipped.
func (m *Merger) Merge(ctx context.Context, base *dataprocessing.SourceTable, secondaries, regions []*dataprocessing.SourceTable) (*Panel, []MergeStat) {
	var p *Panel
	if base == nil || base.Absent {
		name := ""
		if base != nil {
			name = base.Spec.Name
		}
		m.logger.WarnContext(ctx, "Base source absent, panel will be empty", slog.String("source", name))
		p = New(nil)
	} else {
		records := make([]*domain.FirmYearRecord, 0, base.Len())
		for _, rec := range base.Records {
			records = append(records, rec.Clone())
		}
		p = New(records, base.Columns()...)
		m.warnIncomplete(ctx, base)
	}

	stats := make([]MergeStat, 0, len(secondaries)+len(regions))
	for _, t := range secondaries {
		stats = append(stats, m.joinByKey(ctx, p, t))
	}
	for _, t := range regions {
		stats = append(stats, m.joinByRegion(ctx, p, t))
	}

	ResolveGDP(p)

	m.logger.InfoContext(ctx, "Panel merged",
		slog.Int("rows", p.Len()),
		slog.Int("columns", len(p.Columns())+2),
		slog.Int("sources", len(stats)+1))
	return p, stats
}

func (m *Merger) skip(ctx context.Context, t *dataprocessing.SourceTable) (MergeStat, bool) {
	stat := MergeStat{Source: t.Spec.Name, Rows: t.Len()}
	if t.Absent {
		stat.Skipped = true
		m.logger.WarnContext(ctx, "Skipping absent source in merge", slog.String("source", t.Spec.Name))
		return stat, true
	}
	stat.Incomplete = t.Incomplete
	m.warnIncomplete(ctx, t)
	return stat, false
}

func (m *Merger) warnIncomplete(ctx context.Context, t *dataprocessing.SourceTable) {
	if !t.Incomplete {
		return
	}
	m.logger.WarnContext(ctx, "Merging source with missing required columns",
		slog.String("source", t.Spec.Name),
		slog.Any("columns", t.MissingRequired()))
}

func (m *Merger) joinByKey(ctx context.Context, p *Panel, t *dataprocessing.SourceTable) MergeStat {
	stat, skipped := m.skip(ctx, t)
	if skipped {
		return stat
	}

	p.AddColumns(t.Columns()...)
	idx := t.Index()
	for _, rec := range p.Records() {
		if src, ok := idx[rec.Key]; ok {
			Coalesce(rec, src)
			stat.Matched++
		}
	}

	m.record(ctx, stat)
	return stat
}

func (m *Merger) joinByRegion(ctx context.Context, p *Panel, t *dataprocessing.SourceTable) MergeStat {
	stat, skipped := m.skip(ctx, t)
	if skipped {
		return stat
	}

	p.AddColumns(t.Columns()...)
	idx := t.Index()
	unlabeled := 0
	for _, rec := range p.Records() {
		label, ok := rec.Label(t.Spec.JoinLabel)
		if !ok {
			unlabeled++
			continue
		}
		key := domain.FirmYearKey{Stkcd: dataprocessing.NormalizeRegion(label), Year: rec.Key.Year}
		if src, ok := idx[key]; ok {
			Coalesce(rec, src)
			stat.Matched++
		}
	}

	if unlabeled > 0 {
		m.logger.DebugContext(ctx, "Rows without a region label",
			slog.String("source", t.Spec.Name),
			slog.String("label", t.Spec.JoinLabel),
			slog.Int("rows", unlabeled))
	}
	m.record(ctx, stat)
	return stat
}

func (m *Merger) record(ctx context.Context, stat MergeStat) {
	m.metrics.MergeMatched(stat.Source, stat.Matched)
	m.logger.InfoContext(ctx, "Merged source",
		slog.String("source", stat.Source),
		slog.Int("source_rows", stat.Rows),
		slog.Int("matched", stat.Matched))
}

// ResolveGDP sets GDP to GDP_City when present, else GDP_Prov, else leaves
// it missing. It never substitutes zero.
func ResolveGDP(p *Panel) {
	p.AddColumns(domain.ColGDP)
	for _, rec := range p.Records() {
		if v, ok := rec.Value(domain.ColGDPCity); ok {
			rec.SetValue(domain.ColGDP, v)
		} else if v, ok := rec.Value(domain.ColGDPProv); ok {
			rec.SetValue(domain.ColGDP, v)
		} else {
			rec.Unset(domain.ColGDP)
		}
	}
}
