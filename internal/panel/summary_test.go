package panel

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtpanel/pkg/contracts/domain"
)

func TestSummarize(t *testing.T) {
	p := New([]*domain.FirmYearRecord{
		rec("000001", 2019, map[string]float64{domain.ColSize: 1, domain.ColROA: 0.1}, map[string]string{domain.ColCity: "深圳"}),
		rec("000001", 2020, map[string]float64{domain.ColSize: 3}, nil),
		rec("000002", 2018, map[string]float64{domain.ColSize: 5}, map[string]string{domain.ColCity: "上海"}),
	}, domain.ColSize, domain.ColROA, domain.ColCity, domain.ColGDP)

	s := Summarize(p)
	assert.Equal(t, 3, s.Rows)
	assert.Equal(t, 2, s.Firms)
	assert.Equal(t, 2018, s.FirstYear)
	assert.Equal(t, 2020, s.LastYear)
	require.Len(t, s.Columns, 4)

	size := s.Columns[0]
	assert.Equal(t, domain.ColSize, size.Column)
	assert.Equal(t, 3, size.N)
	assert.Equal(t, 0, size.Missing)
	assert.InDelta(t, 3.0, size.Mean, 1e-12)
	assert.InDelta(t, 2.0, size.SD, 1e-12)
	assert.Equal(t, 1.0, size.Min)
	assert.Equal(t, 5.0, size.Max)

	roa := s.Columns[1]
	assert.Equal(t, 1, roa.N)
	assert.Equal(t, 2, roa.Missing)
	assert.True(t, math.IsNaN(roa.SD), "one observation has no sample SD")

	city := s.Columns[2]
	assert.True(t, city.Label)
	assert.Equal(t, 2, city.N)
	assert.True(t, math.IsNaN(city.Mean))

	gdp := s.Columns[3]
	assert.Equal(t, 0, gdp.N)
	assert.Equal(t, 3, gdp.Missing)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(New(nil))
	assert.Equal(t, 0, s.Rows)
	assert.Equal(t, 0, s.Firms)
	assert.Empty(t, s.Columns)
}

func TestRenderSummary(t *testing.T) {
	p := New([]*domain.FirmYearRecord{
		rec("000001", 2019, map[string]float64{domain.ColLev: 0.25}, nil),
		rec("000002", 2019, map[string]float64{domain.ColLev: 0.75}, nil),
	}, domain.ColLev)

	var buf bytes.Buffer
	require.NoError(t, RenderSummary(&buf, Summarize(p)))
	out := buf.String()
	assert.Contains(t, out, "Panel: 2 rows, 2 firms, years 2019-2019")
	assert.Contains(t, out, "Lev")
	assert.Contains(t, out, "0.5000")
	assert.Contains(t, out, "0.3536")
}
