package dataprocessing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "dtpanel/internal/errors"
	"dtpanel/internal/infrastructure"
	"dtpanel/pkg/contracts/domain"
)

// headerSearchRows bounds how far down a sheet the header row may sit.
const headerSearchRows = 10

// Loader reads registry sources into cleaned tables.
type Loader struct {
	logger  *slog.Logger
	metrics *infrastructure.Metrics
}

// NewLoader creates a loader. metrics may be nil.
func NewLoader(logger *slog.Logger, metrics *infrastructure.Metrics) *Loader {
	return &Loader{
		logger:  infrastructure.WithComponent(logger, "loader"),
		metrics: metrics,
	}
}

// Load reads a resolved source. An absent file yields an empty table marked
// Absent together with a logged SourceNotFound warning; it is not an error.
func (l *Loader) Load(ctx context.Context, res Resolution) (*SourceTable, error) {
	if !res.Found {
		warn := apperrors.NewSourceNotFoundError(res.Spec.Name, res.Spec.File, res.Dir)
		l.logger.WarnContext(ctx, "Source file not found, skipping",
			slog.String("source", res.Spec.Name),
			slog.String("error", warn.Error()))
		l.metrics.SourceMissing(res.Spec.Name)
		return &SourceTable{Spec: res.Spec, Dir: res.Dir, Absent: true}, nil
	}
	t, err := l.LoadFile(ctx, res.Spec, res.Path)
	if err != nil {
		return nil, err
	}
	t.Dir = res.Dir
	return t, nil
}

// LoadFile reads one workbook and cleans it: malformed rows dropped,
// columns renamed, periods converted to years, keys normalized, then
// sorted and deduplicated keeping the last row per key.
func (l *Loader) LoadFile(ctx context.Context, spec SourceSpec, path string) (*SourceTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("source %q: failed to open %s", spec.Name, path), err)
	}
	defer f.Close()

	sheet, rows, headerRow, err := findDataSheet(f, spec.IDColumn)
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("source %q: %s", spec.Name, path), err)
	}

	header := make(map[string]int)
	for i, name := range rows[headerRow] {
		name = strings.TrimSpace(name)
		if _, seen := header[name]; !seen && name != "" {
			header[name] = i
		}
	}

	periodIdx, ok := header[spec.PeriodColumn]
	if !ok {
		return nil, apperrors.NewParsingError(
			fmt.Sprintf("source %q: period column %s not found in sheet %s", spec.Name, spec.PeriodColumn, sheet), nil)
	}
	idIdx := header[spec.IDColumn]

	table := &SourceTable{Spec: spec, Path: path}
	required := make(map[string]bool, len(spec.Required))
	for _, r := range spec.Required {
		required[r] = true
	}

	type mapped struct {
		ColumnSpec
		idx int
	}
	var columns []mapped
	for _, c := range spec.Columns {
		idx, ok := header[c.From]
		if !ok {
			table.MissingColumns = append(table.MissingColumns, c.From)
			if required[c.To] {
				table.Incomplete = true
				l.logger.WarnContext(ctx, "Required column missing",
					slog.String("source", spec.Name),
					slog.String("column", c.From))
			} else {
				l.logger.DebugContext(ctx, "Column not present, skipping",
					slog.String("source", spec.Name),
					slog.String("column", c.From))
			}
			continue
		}
		columns = append(columns, mapped{ColumnSpec: c, idx: idx})
	}

	records := make([]*domain.FirmYearRecord, 0, len(rows)-headerRow-1)
	for _, row := range rows[headerRow+1:] {
		idRaw := cell(row, idIdx)

		var id string
		if spec.IsRegion() {
			id = NormalizeRegion(idRaw)
		} else {
			id = normalizeNumericID(idRaw)
		}
		year, yearOK := spec.ParsePeriod(cell(row, periodIdx))
		if id == "" || !yearOK {
			table.Malformed++
			continue
		}

		rec := domain.NewFirmYearRecord(domain.FirmYearKey{Stkcd: id, Year: year})
		for _, c := range columns {
			raw := cell(row, c.idx)
			switch c.Kind {
			case KindLabel:
				rec.SetLabel(c.To, strings.TrimSpace(raw))
			case KindYear:
				if y, ok := ParseYear(raw); ok {
					rec.SetValue(c.To, float64(y))
				}
			default:
				if v, ok := ParseNumber(raw); ok {
					rec.SetValue(c.To, v)
				}
			}
		}
		records = append(records, rec)
	}

	before := len(records)
	table.Records = domain.SortAndDedupe(records)
	table.Duplicates = before - len(table.Records)

	if table.Malformed > 0 {
		l.logger.WarnContext(ctx, "Dropped malformed rows",
			slog.String("source", spec.Name),
			slog.String("error", apperrors.NewMalformedRowError(spec.Name, table.Malformed).Error()))
		l.metrics.RowsDropped("load", "malformed_row", table.Malformed)
	}
	l.metrics.RowsDropped("load", "duplicate_key", table.Duplicates)
	l.metrics.SourceRows(spec.Name, table.Len())

	l.logger.InfoContext(ctx, "Source loaded",
		slog.String("source", spec.Name),
		slog.String("path", path),
		slog.String("sheet", sheet),
		slog.Int("rows", table.Len()),
		slog.Int("malformed", table.Malformed),
		slog.Int("duplicates", table.Duplicates))
	return table, nil
}

// LoadAll loads every resolution in order, keyed by source name.
func (l *Loader) LoadAll(ctx context.Context, resolutions []Resolution) (map[string]*SourceTable, error) {
	tables := make(map[string]*SourceTable, len(resolutions))
	for _, res := range resolutions {
		t, err := l.Load(ctx, res)
		if err != nil {
			return nil, err
		}
		tables[res.Spec.Name] = t
	}
	return tables, nil
}

// findDataSheet returns the first sheet whose header row, within the first
// few rows, contains idColumn.
func findDataSheet(f *excelize.File, idColumn string) (string, [][]string, int, error) {
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			continue
		}
		for i := 0; i < len(rows) && i < headerSearchRows; i++ {
			for _, h := range rows[i] {
				if strings.TrimSpace(h) == idColumn {
					return name, rows, i, nil
				}
			}
		}
	}
	return "", nil, 0, fmt.Errorf("no sheet has identifier column %s", idColumn)
}

// cell returns the trimmed cell text, treating ragged rows as padded with
// empty cells.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// normalizeNumericID returns the canonical code for an identifier cell, or
// "" when the cell is not numeric (vendor description and unit rows).
func normalizeNumericID(raw string) string {
	if isASCIIDigits(raw) {
		return NormalizeStkcd(raw)
	}
	f, ok := ParseNumber(raw)
	if !ok {
		return ""
	}
	return NormalizeStkcd(f)
}
