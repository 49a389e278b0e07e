package regression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"dtpanel/pkg/contracts/domain"
)

func TestBuildDesign_CategoricalAndListwise(t *testing.T) {
	f, err := ParseFormula("y ~ x + C(SOE) + C(Year)")
	require.NoError(t, err)

	recs := records(
		row{"000001", 2018, map[string]float64{"y": 1, "x": 0.5, "SOE": 1}},
		row{"000001", 2019, map[string]float64{"y": 2, "x": 1.5, "SOE": 1}},
		row{"000002", 2018, map[string]float64{"y": 3, "x": 2.5, "SOE": 0}},
		row{"000002", 2020, map[string]float64{"y": 4, "x": 3.5, "SOE": 0}},
		row{"000003", 2020, map[string]float64{"y": 5, "SOE": 0}},
	)
	d, err := BuildDesign(recs, f, "")
	require.NoError(t, err)

	assert.Equal(t, 1, d.Dropped)
	assert.Equal(t, []string{InterceptTerm, "x", "C(SOE)[T.1]", "C(Year)[T.2019]", "C(Year)[T.2020]"}, d.Columns)
	assert.Equal(t, []float64{1, 2, 3, 4}, d.Y)

	want := mat.NewDense(4, 5, []float64{
		1, 0.5, 1, 0, 0,
		1, 1.5, 1, 1, 0,
		1, 2.5, 0, 0, 0,
		1, 3.5, 0, 0, 1,
	})
	assert.True(t, mat.Equal(want, d.X))
	assert.Equal(t, domain.FirmYearKey{Stkcd: "000002", Year: 2020}, d.Keys[3])
}

func TestBuildDesign_NumericLevelOrder(t *testing.T) {
	f, err := ParseFormula("y ~ C(g)")
	require.NoError(t, err)

	d, err := BuildDesign(records(
		row{"1", 2020, map[string]float64{"y": 1, "g": 10}},
		row{"2", 2020, map[string]float64{"y": 1, "g": 9}},
		row{"3", 2020, map[string]float64{"y": 1, "g": 100}},
	), f, "")
	require.NoError(t, err)
	assert.Equal(t, []string{InterceptTerm, "C(g)[T.10]", "C(g)[T.100]"}, d.Columns)
}

func TestBuildDesign_Absorb(t *testing.T) {
	f, err := ParseFormula("y ~ x + C(SOE)")
	require.NoError(t, err)

	// y = firm effect + 2x, SOE constant within firm.
	recs := records(
		row{"000001", 2018, map[string]float64{"y": 10 + 2*1, "x": 1, "SOE": 1}},
		row{"000001", 2019, map[string]float64{"y": 10 + 2*2, "x": 2, "SOE": 1}},
		row{"000001", 2020, map[string]float64{"y": 10 + 2*4, "x": 4, "SOE": 1}},
		row{"000002", 2018, map[string]float64{"y": -5 + 2*3, "x": 3, "SOE": 0}},
		row{"000002", 2019, map[string]float64{"y": -5 + 2*1, "x": 1, "SOE": 0}},
		row{"000002", 2020, map[string]float64{"y": -5 + 2*7, "x": 7, "SOE": 0}},
	)
	d, err := BuildDesign(recs, f, domain.ColStkcd)
	require.NoError(t, err)

	assert.Equal(t, []string{"x"}, d.Columns)
	assert.Equal(t, []string{"C(SOE)[T.1]"}, d.Collinear)
	assert.Equal(t, 2, d.Groups)

	fit, err := FitOLS(d.X, d.Y, d.Groups)
	require.NoError(t, err)
	assert.InDelta(t, 2, fit.Beta[0], 1e-10)
	assert.Equal(t, 3, fit.DFResid)
}

func TestBuildDesign_NoRegressors(t *testing.T) {
	f, err := ParseFormula("y ~ C(SOE)")
	require.NoError(t, err)
	_, err = BuildDesign(records(
		row{"000001", 2018, map[string]float64{"y": 1, "SOE": 1}},
		row{"000001", 2019, map[string]float64{"y": 2, "SOE": 1}},
	), f, domain.ColStkcd)
	assert.ErrorIs(t, err, ErrNoRegressors)
}
