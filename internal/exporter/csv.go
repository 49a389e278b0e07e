package exporter

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"dtpanel/internal/dataprocessing"
	apperrors "dtpanel/internal/errors"
	"dtpanel/internal/files"
	"dtpanel/internal/infrastructure"
	"dtpanel/internal/panel"
	"dtpanel/pkg/contracts/domain"
)

// CSVWriter saves firm-year tables as UTF-8 CSV with a byte order mark so
// that Excel detects the encoding.
type CSVWriter struct {
	files  *files.Manager
	logger *slog.Logger
}

// NewCSVWriter creates a writer that saves through manager.
func NewCSVWriter(manager *files.Manager, logger *slog.Logger) *CSVWriter {
	return &CSVWriter{files: manager, logger: infrastructure.WithComponent(logger, "exporter")}
}

// WriteRecords atomically writes Stkcd, Year and then columns in the given
// order. Missing values are empty cells.
func (w *CSVWriter) WriteRecords(ctx context.Context, path string, columns []string, records []*domain.FirmYearRecord) error {
	header := append([]string{domain.ColStkcd, domain.ColYear}, columns...)

	err := w.files.AtomicWrite(path, func(dst io.Writer) error {
		bom := transform.NewWriter(dst, unicode.UTF8BOM.NewEncoder())
		cw := csv.NewWriter(bom)
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		row := make([]string, len(header))
		for _, rec := range records {
			row[0] = rec.Key.Stkcd
			row[1] = strconv.Itoa(rec.Key.Year)
			for i, col := range columns {
				row[i+2] = cellText(rec, col)
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write row %v: %w", rec.Key, err)
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return err
		}
		return bom.Close()
	})
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to save table",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return err
	}

	w.logger.InfoContext(ctx, "Table saved",
		slog.String("path", path),
		slog.Int("rows", len(records)),
		slog.Int("columns", len(header)))
	return nil
}

// WritePanel writes the panel with its columns in first-appearance order.
func (w *CSVWriter) WritePanel(ctx context.Context, path string, p *panel.Panel) error {
	return w.WriteRecords(ctx, path, p.Columns(), p.Records())
}

func cellText(rec *domain.FirmYearRecord, col string) string {
	if s, ok := rec.Label(col); ok {
		return s
	}
	if v, ok := rec.Value(col); ok {
		return formatFloat(v)
	}
	return ""
}

// ReadRecords reads a table written by WriteRecords, with or without a
// byte order mark. Columns known to hold text and cells that are not
// numbers are read as labels. Rows are returned sorted and unique by key.
func ReadRecords(path string) ([]string, []*domain.FirmYearRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, apperrors.NewSourceNotFoundError(filepath.Base(path), filepath.Base(path), filepath.Dir(path))
		}
		return nil, nil, apperrors.NewParsingError("failed to open "+path, err)
	}
	defer f.Close()

	cr := csv.NewReader(transform.NewReader(f, unicode.UTF8BOM.NewDecoder()))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, apperrors.NewParsingError(path+" is empty", nil)
	}
	if err != nil {
		return nil, nil, apperrors.NewParsingError("failed to read header of "+path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) < 2 || header[0] != domain.ColStkcd || header[1] != domain.ColYear {
		return nil, nil, apperrors.NewParsingError(fmt.Sprintf("%s: header must start with %s,%s", path, domain.ColStkcd, domain.ColYear), nil)
	}
	columns := header[2:]

	var records []*domain.FirmYearRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, apperrors.NewParsingError(fmt.Sprintf("%s line %d", path, line), err)
		}
		year, err := strconv.Atoi(strings.TrimSpace(at(row, 1)))
		if err != nil {
			return nil, nil, apperrors.NewParsingError(fmt.Sprintf("%s line %d: invalid year %q", path, line, at(row, 1)), err)
		}
		rec := domain.NewFirmYearRecord(domain.FirmYearKey{
			Stkcd: dataprocessing.NormalizeStkcd(strings.TrimSpace(at(row, 0))),
			Year:  year,
		})
		for i, col := range columns {
			cell := strings.TrimSpace(at(row, i+2))
			if cell == "" {
				continue
			}
			if domain.IsLabelColumn(col) {
				rec.SetLabel(col, cell)
			} else if v, ok := parseFloat(cell); ok {
				rec.SetValue(col, v)
			} else {
				rec.SetLabel(col, cell)
			}
		}
		records = append(records, rec)
	}
	return columns, domain.SortAndDedupe(records), nil
}

// ReadPanel reads a panel saved by WritePanel.
func ReadPanel(path string) (*panel.Panel, error) {
	columns, records, err := ReadRecords(path)
	if err != nil {
		return nil, err
	}
	return panel.New(records, columns...), nil
}

func at(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
