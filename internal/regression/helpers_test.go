package regression

import (
	"dtpanel/internal/panel"
	"dtpanel/pkg/contracts/domain"
)

type row struct {
	stkcd  string
	year   int
	values map[string]float64
}

func records(rows ...row) []*domain.FirmYearRecord {
	out := make([]*domain.FirmYearRecord, 0, len(rows))
	for _, r := range rows {
		rec := domain.NewFirmYearRecord(domain.FirmYearKey{Stkcd: r.stkcd, Year: r.year})
		for k, v := range r.values {
			rec.SetValue(k, v)
		}
		out = append(out, rec)
	}
	return out
}

func newPanel(columns []string, rows ...row) *panel.Panel {
	return panel.New(records(rows...), columns...)
}
