package domain

import (
	"math"
	"sort"
)

// Canonical column names shared by every stage of the pipeline.
const (
	ColStkcd = "Stkcd"
	ColYear  = "Year"

	ColTotalAssets      = "TotalAssets"
	ColTotalLiabilities = "TotalLiabilities"
	ColNetProfit        = "NetProfit"
	ColLevRaw           = "Lev_raw"
	ColROARaw           = "ROA_raw"
	ColLev              = "Lev"
	ColROA              = "ROA"
	ColGrow             = "Grow"
	ColTop1             = "Top1"
	ColSOEID            = "SOE_ID"
	ColSOE              = "SOE"
	ColBoardSize        = "BoardSize"
	ColBoard            = "Board"
	ColIndb             = "Indb"
	ColDuality          = "Duality"
	ColStaff            = "Staff"
	ColEstablishYear    = "EstablishYear"
	ColAge              = "Age"
	ColIndustryCode     = "IndustryCode"
	ColProvince         = "Province"
	ColCity             = "City"
	ColDigitalScore     = "DigitalScore"
	ColTreatTime        = "Treat_time"
	ColTobinQ           = "TobinQ"
	ColGDPCity          = "GDP_City"
	ColGDPProv          = "GDP_Prov"
	ColGDP              = "GDP"
	ColSize             = "Size"
	ColTFP              = "TFP_OLS"
)

// LabelColumns lists canonical columns that carry text rather than numbers.
var LabelColumns = map[string]bool{
	ColIndustryCode: true,
	ColProvince:     true,
	ColCity:         true,
	ColSOEID:        true,
}

// IsLabelColumn reports whether a canonical column holds text.
func IsLabelColumn(name string) bool {
	return LabelColumns[name]
}

// FirmYearKey identifies one firm in one fiscal year.
type FirmYearKey struct {
	Stkcd string `json:"stkcd" db:"stkcd"`
	Year  int    `json:"year" db:"year"`
}

// Less orders keys by identifier, then year.
func (k FirmYearKey) Less(o FirmYearKey) bool {
	if k.Stkcd != o.Stkcd {
		return k.Stkcd < o.Stkcd
	}
	return k.Year < o.Year
}

// FirmYearRecord is one row of a firm-year table. A column that is absent
// from Values (or Labels) is missing; NaN is never stored.
type FirmYearRecord struct {
	Key    FirmYearKey        `json:"key"`
	Values map[string]float64 `json:"values"`
	Labels map[string]string  `json:"labels,omitempty"`
}

// NewFirmYearRecord creates an empty record for key.
func NewFirmYearRecord(key FirmYearKey) *FirmYearRecord {
	return &FirmYearRecord{
		Key:    key,
		Values: make(map[string]float64),
		Labels: make(map[string]string),
	}
}

// Value returns a numeric column and whether it is present.
func (r *FirmYearRecord) Value(name string) (float64, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// SetValue stores v, or marks the column missing when v is not finite.
func (r *FirmYearRecord) SetValue(name string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		delete(r.Values, name)
		return
	}
	r.Values[name] = v
}

// Unset marks a numeric column missing.
func (r *FirmYearRecord) Unset(name string) {
	delete(r.Values, name)
}

// Label returns a text column and whether it is present.
func (r *FirmYearRecord) Label(name string) (string, bool) {
	v, ok := r.Labels[name]
	return v, ok
}

// SetLabel stores a text column; the empty string marks it missing.
func (r *FirmYearRecord) SetLabel(name, v string) {
	if v == "" {
		delete(r.Labels, name)
		return
	}
	r.Labels[name] = v
}

// Has reports whether the column is present as either a number or a label.
func (r *FirmYearRecord) Has(name string) bool {
	if _, ok := r.Values[name]; ok {
		return true
	}
	_, ok := r.Labels[name]
	return ok
}

// Clone returns a deep copy.
func (r *FirmYearRecord) Clone() *FirmYearRecord {
	c := NewFirmYearRecord(r.Key)
	for k, v := range r.Values {
		c.Values[k] = v
	}
	for k, v := range r.Labels {
		c.Labels[k] = v
	}
	return c
}

// SortAndDedupe stable-sorts records by key and keeps the last record seen
// for every duplicated key.
func SortAndDedupe(records []*FirmYearRecord) []*FirmYearRecord {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Key.Less(records[j].Key)
	})

	out := records[:0]
	for i, rec := range records {
		if i+1 < len(records) && records[i+1].Key == rec.Key {
			continue
		}
		out = append(out, rec)
	}
	return out
}
