package regression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtpanel/internal/config"
)

func TestParseFormula(t *testing.T) {
	f, err := ParseFormula("ROA ~ Size +Lev+ C(SOE) + C( Year )")
	require.NoError(t, err)

	assert.Equal(t, "ROA", f.Response)
	assert.Equal(t, []Term{
		{Name: "Size"},
		{Name: "Lev"},
		{Name: "SOE", Categorical: true},
		{Name: "Year", Categorical: true},
	}, f.Terms)
	assert.Equal(t, []string{"ROA", "Size", "Lev", "SOE", "Year"}, f.Variables())
	assert.Equal(t, "ROA ~ Size + Lev + C(SOE) + C(Year)", f.String())
}

func TestParseFormula_Defaults(t *testing.T) {
	for _, s := range []string{config.DefaultTFPFormula, config.DefaultROAFormula} {
		f, err := ParseFormula(s)
		require.NoError(t, err, s)
		assert.Len(t, f.Terms, 11)
		assert.Equal(t, s, f.String())
	}
}

func TestParseFormula_Errors(t *testing.T) {
	tests := []struct {
		name    string
		formula string
	}{
		{"no tilde", "ROA Size"},
		{"empty response", " ~ Size"},
		{"empty term", "ROA ~ Size + "},
		{"empty categorical", "ROA ~ C()"},
		{"response on rhs", "ROA ~ ROA + Size"},
		{"duplicate", "ROA ~ Size + C(Size)"},
		{"nested tilde", "ROA ~ Size ~ Lev"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFormula(tt.formula)
			assert.Error(t, err)
		})
	}
}
