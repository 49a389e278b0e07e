package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "dtpanel/internal/errors"
	"dtpanel/pkg/contracts"
	"dtpanel/pkg/contracts/domain"
)

func sampleRun(id string, started time.Time) domain.RegressionRun {
	return domain.RegressionRun{
		ID:         id,
		StartedAt:  started,
		PanelFile:  "data/final_data.csv",
		YearCutoff: 2016,
		Imputation: "mean",
		Rows:       120,
		Models: []domain.ModelResult{
			{Name: "tfp", Formula: "TFP_OLS ~ Size", Status: domain.ModelStatusFailed, Error: "[MODEL_FIT_FAILURE] missing column"},
			{
				Name: "roa", Formula: "ROA ~ Size", Status: domain.ModelStatusOK,
				N: 118, Dropped: 2, DFResid: 116, R2: 0.4, AdjR2: 0.39, CovType: "HC1",
				Coefficients: []domain.Coefficient{
					{Term: "Intercept", Estimate: -0.1, StdErr: 0.05, Z: -2, P: 0.0455},
					{Term: "Size", Estimate: 0.01, StdErr: 0, Z: math.NaN(), P: math.NaN()},
				},
			},
		},
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer s.Close()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run := sampleRun("run-a", started)
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.LoadRun(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, started, got.StartedAt)
	assert.Equal(t, run.PanelFile, got.PanelFile)
	assert.Equal(t, 120, got.Rows)
	require.Len(t, got.Models, 2)

	assert.Equal(t, "tfp", got.Models[0].Name)
	assert.False(t, got.Models[0].OK())
	assert.Empty(t, got.Models[0].Coefficients)

	roa := got.Models[1]
	assert.Equal(t, 116, roa.DFResid)
	assert.Equal(t, "HC1", roa.CovType)
	require.Len(t, roa.Coefficients, 2)
	assert.Equal(t, run.Models[1].Coefficients[0], roa.Coefficients[0])
	assert.True(t, math.IsNaN(roa.Coefficients[1].P), "NaN survives as NULL")
}

func TestStore_ReplaceAndList(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer s.Close()

	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveRun(ctx, sampleRun("old", t0)))
	require.NoError(t, s.SaveRun(ctx, sampleRun("new", t0.Add(time.Hour))))

	again := sampleRun("old", t0)
	again.Models = again.Models[:1]
	require.NoError(t, s.SaveRun(ctx, again))

	ids, err := s.RunIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids)

	got, err := s.LoadRun(ctx, "old")
	require.NoError(t, err)
	assert.Len(t, got.Models, 1)

	_, err = s.LoadRun(ctx, "missing")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))
}

func TestStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.SaveRun(ctx, sampleRun("persist", time.Now())))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	ids, err := s.RunIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"persist"}, ids)
}

func TestStore_SchemaVersion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, contracts.StoreSchemaVersion, v)

	_, err = s.db.ExecContext(ctx, "PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(ctx, path)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))
	assert.Contains(t, err.Error(), "newer than supported")
}
