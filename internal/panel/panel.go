package panel

import (
	"sort"

	"dtpanel/pkg/contracts/domain"
)

// Panel is the merged firm-year table. Rows are unique by key and kept in
// key order; columns are remembered in first-appearance order.
type Panel struct {
	records []*domain.FirmYearRecord
	index   map[domain.FirmYearKey]*domain.FirmYearRecord
	columns []string
	known   map[string]bool
}

// New builds a panel from records, which must already be unique by key.
func New(records []*domain.FirmYearRecord, columns ...string) *Panel {
	p := &Panel{
		records: records,
		index:   make(map[domain.FirmYearKey]*domain.FirmYearRecord, len(records)),
		known:   make(map[string]bool),
	}
	sort.SliceStable(p.records, func(i, j int) bool {
		return p.records[i].Key.Less(p.records[j].Key)
	})
	for _, rec := range records {
		p.index[rec.Key] = rec
	}
	p.AddColumns(columns...)
	return p
}

// Len returns the number of rows.
func (p *Panel) Len() int { return len(p.records) }

// Records returns the rows in key order.
func (p *Panel) Records() []*domain.FirmYearRecord { return p.records }

// Get returns the row for key.
func (p *Panel) Get(key domain.FirmYearKey) (*domain.FirmYearRecord, bool) {
	rec, ok := p.index[key]
	return rec, ok
}

// Columns returns the data columns (everything but Stkcd and Year) in
// first-appearance order.
func (p *Panel) Columns() []string {
	out := make([]string, len(p.columns))
	copy(out, p.columns)
	return out
}

// HasColumn reports whether the column has been declared.
func (p *Panel) HasColumn(name string) bool { return p.known[name] }

// AddColumns declares columns, ignoring ones already known.
func (p *Panel) AddColumns(names ...string) {
	for _, n := range names {
		if n == domain.ColStkcd || n == domain.ColYear || p.known[n] {
			continue
		}
		p.known[n] = true
		p.columns = append(p.columns, n)
	}
}

// Filter keeps only rows for which keep returns true.
func (p *Panel) Filter(keep func(*domain.FirmYearRecord) bool) int {
	kept := p.records[:0]
	dropped := 0
	for _, rec := range p.records {
		if keep(rec) {
			kept = append(kept, rec)
			continue
		}
		delete(p.index, rec.Key)
		dropped++
	}
	p.records = kept
	return dropped
}

// Coalesce copies every value and label of src that dst is missing. Values
// already present in dst win.
func Coalesce(dst, src *domain.FirmYearRecord) {
	for k, v := range src.Values {
		if _, ok := dst.Values[k]; !ok {
			dst.Values[k] = v
		}
	}
	for k, v := range src.Labels {
		if _, ok := dst.Labels[k]; !ok {
			dst.Labels[k] = v
		}
	}
}
