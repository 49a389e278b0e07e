package panel

import (
	"fmt"
	"io"
	"math"
	"strconv"

	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ColumnSummary holds descriptive statistics for one column. Label-only
// columns report their non-empty count in N and NaN statistics.
type ColumnSummary struct {
	Column  string
	Label   bool
	N       int
	Missing int
	Mean    float64
	SD      float64
	Min     float64
	Max     float64
}

// Summary describes a panel.
type Summary struct {
	Rows      int
	Firms     int
	FirstYear int
	LastYear  int
	Columns   []ColumnSummary
}

// Summarize computes per-column statistics in column order. SD is the
// sample standard deviation and is NaN below two observations.
func Summarize(p *Panel) Summary {
	s := Summary{Rows: p.Len()}

	firms := make(map[string]bool)
	for i, rec := range p.Records() {
		firms[rec.Key.Stkcd] = true
		if i == 0 || rec.Key.Year < s.FirstYear {
			s.FirstYear = rec.Key.Year
		}
		if rec.Key.Year > s.LastYear {
			s.LastYear = rec.Key.Year
		}
	}
	s.Firms = len(firms)

	for _, col := range p.Columns() {
		var xs []float64
		labels := 0
		for _, rec := range p.Records() {
			if v, ok := rec.Value(col); ok {
				xs = append(xs, v)
			} else if _, ok := rec.Label(col); ok {
				labels++
			}
		}

		cs := ColumnSummary{Column: col, Mean: math.NaN(), SD: math.NaN(), Min: math.NaN(), Max: math.NaN()}
		switch {
		case len(xs) > 0:
			cs.N = len(xs)
			cs.Mean, cs.SD = stat.MeanStdDev(xs, nil)
			if len(xs) < 2 {
				cs.SD = math.NaN()
			}
			cs.Min, cs.Max = floats.Min(xs), floats.Max(xs)
		case labels > 0:
			cs.Label = true
			cs.N = labels
		}
		cs.Missing = s.Rows - cs.N
		s.Columns = append(s.Columns, cs)
	}
	return s
}

// RenderSummary writes the summary as a table.
func RenderSummary(w io.Writer, s Summary) error {
	if _, err := fmt.Fprintf(w, "Panel: %d rows, %d firms, years %d-%d\n", s.Rows, s.Firms, s.FirstYear, s.LastYear); err != nil {
		return err
	}

	t := prettytable.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(prettytable.StyleLight)
	t.AppendHeader(prettytable.Row{"Column", "N", "Missing", "Mean", "SD", "Min", "Max"})
	for _, c := range s.Columns {
		t.AppendRow(prettytable.Row{c.Column, c.N, c.Missing, stat4(c.Mean), stat4(c.SD), stat4(c.Min), stat4(c.Max)})
	}
	right := text.AlignRight
	t.SetColumnConfigs([]prettytable.ColumnConfig{
		{Number: 2, Align: right}, {Number: 3, Align: right}, {Number: 4, Align: right},
		{Number: 5, Align: right}, {Number: 6, Align: right}, {Number: 7, Align: right},
	})
	t.Render()
	return nil
}

func stat4(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}
