package regression

import (
	"fmt"
	"io"
	"math"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"dtpanel/pkg/contracts/domain"
)

// RenderReport writes one table per model. Failed models are listed with
// their error.
func RenderReport(w io.Writer, run domain.RegressionRun) error {
	if _, err := fmt.Fprintf(w, "Regression run %s\nPanel: %s (%d rows, Year >= %d, imputation %s)\n\n",
		run.ID, run.PanelFile, run.Rows, run.YearCutoff, run.Imputation); err != nil {
		return err
	}

	for _, m := range run.Models {
		if !m.OK() {
			if _, err := fmt.Fprintf(w, "Model %s: FAILED\n  %s\n  %s\n\n", m.Name, m.Formula, m.Error); err != nil {
				return err
			}
			continue
		}

		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.SetTitle(fmt.Sprintf("%s: %s", m.Name, m.Formula))
		t.AppendHeader(table.Row{"Term", "Coef", "Std.Err", "z", "P>|z|", ""})
		for _, c := range m.Coefficients {
			t.AppendRow(table.Row{c.Term, num(c.Estimate), num(c.StdErr), num(c.Z), num(c.P), stars(c.P)})
		}
		footer := fmt.Sprintf("N=%d  dropped=%d  R²=%.4f  adj.R²=%.4f  cov=%s", m.N, m.Dropped, m.R2, m.AdjR2, m.CovType)
		if m.Absorbed != "" {
			footer += "  absorbed=" + m.Absorbed
		}
		t.AppendFooter(table.Row{footer, "", "", "", "", ""}, table.RowConfig{AutoMerge: true})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 2, Align: text.AlignRight},
			{Number: 3, Align: text.AlignRight},
			{Number: 4, Align: text.AlignRight},
			{Number: 5, Align: text.AlignRight},
		})
		t.Render()
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

func num(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.4f", v)
}

func stars(p float64) string {
	switch {
	case math.IsNaN(p):
		return ""
	case p < 0.01:
		return "***"
	case p < 0.05:
		return "**"
	case p < 0.1:
		return "*"
	}
	return ""
}
