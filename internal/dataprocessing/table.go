package dataprocessing

import (
	"sort"

	"dtpanel/pkg/contracts/domain"
)

// SourceTable is one cleaned source: unique keys, canonical column names,
// sorted by key. Region tables carry the normalized region name in
// Key.Stkcd.
type SourceTable struct {
	Spec    SourceSpec
	Path    string
	Dir     string
	Absent  bool
	Records []*domain.FirmYearRecord

	// Malformed counts rows dropped as header or footer noise.
	Malformed int
	// Duplicates counts rows replaced by a later row with the same key.
	Duplicates int
	// MissingColumns lists mapped source columns absent from the header.
	MissingColumns []string
	// Incomplete is set when a required column is missing.
	Incomplete bool
}

// Len returns the number of records.
func (t *SourceTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Index maps each key to its record.
func (t *SourceTable) Index() map[domain.FirmYearKey]*domain.FirmYearRecord {
	idx := make(map[domain.FirmYearKey]*domain.FirmYearRecord, t.Len())
	if t == nil {
		return idx
	}
	for _, rec := range t.Records {
		idx[rec.Key] = rec
	}
	return idx
}

// Columns returns the canonical columns this table provides, in registry
// order, skipping columns that were missing from the file.
func (t *SourceTable) Columns() []string {
	missing := make(map[string]bool, len(t.MissingColumns))
	for _, m := range t.MissingColumns {
		missing[m] = true
	}
	var cols []string
	for _, c := range t.Spec.Columns {
		if !missing[c.From] {
			cols = append(cols, c.To)
		}
	}
	return cols
}

// MissingRequired returns the required canonical columns the file did
// not provide.
func (t *SourceTable) MissingRequired() []string {
	if !t.Incomplete {
		return nil
	}
	have := make(map[string]bool)
	for _, c := range t.Columns() {
		have[c] = true
	}
	var out []string
	for _, r := range t.Spec.Required {
		if !have[r] {
			out = append(out, r)
		}
	}
	return out
}

// Keys returns the sorted record keys.
func (t *SourceTable) Keys() []domain.FirmYearKey {
	keys := make([]domain.FirmYearKey, 0, t.Len())
	for _, rec := range t.Records {
		keys = append(keys, rec.Key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}
