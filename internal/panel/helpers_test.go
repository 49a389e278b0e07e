package panel

import (
	"dtpanel/internal/dataprocessing"
	"dtpanel/pkg/contracts/domain"
)

func rec(stkcd string, year int, values map[string]float64, labels map[string]string) *domain.FirmYearRecord {
	r := domain.NewFirmYearRecord(domain.FirmYearKey{Stkcd: stkcd, Year: year})
	for k, v := range values {
		r.SetValue(k, v)
	}
	for k, v := range labels {
		r.SetLabel(k, v)
	}
	return r
}

func table(name string, role dataprocessing.Role, joinLabel string, columns []string, records ...*domain.FirmYearRecord) *dataprocessing.SourceTable {
	spec := dataprocessing.SourceSpec{Name: name, Role: role, JoinLabel: joinLabel}
	for _, c := range columns {
		kind := dataprocessing.KindNumber
		if domain.IsLabelColumn(c) {
			kind = dataprocessing.KindLabel
		}
		spec.Columns = append(spec.Columns, dataprocessing.ColumnSpec{From: c, To: c, Kind: kind})
	}
	return &dataprocessing.SourceTable{Spec: spec, Records: domain.SortAndDedupe(records)}
}

func absent(name string, role dataprocessing.Role) *dataprocessing.SourceTable {
	return &dataprocessing.SourceTable{Spec: dataprocessing.SourceSpec{Name: name, Role: role}, Absent: true}
}
