package app

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtpanel/internal/config"
	apperrors "dtpanel/internal/errors"
	"dtpanel/internal/exporter"
	"dtpanel/internal/infrastructure"
	"dtpanel/internal/operations"
	"dtpanel/internal/shared/testutil"
	"dtpanel/internal/store"
	"dtpanel/pkg/contracts/domain"
)

func newTestApp(t *testing.T) (*Application, *testutil.BufferedSlogHandler, string) {
	t.Helper()
	base := t.TempDir()

	cfg := config.Default()
	cfg.Paths.BaseDir = base
	cfg.Paths.ResultsDB = "results.db"
	cfg.Telemetry.MetricsFile = "dtpanel.prom"
	cfg.Telemetry.TraceFile = "trace.json"

	logger, logs := testutil.NewTestLogger(t)
	a, err := NewApplication(cfg, logger)
	require.NoError(t, err)
	a.SetOutput(&bytes.Buffer{})
	return a, logs, base
}

func writeControlSources(t *testing.T, base string) {
	control := filepath.Join(base, "control_data_new")
	testutil.WriteWorkbook(t, filepath.Join(control, "PT_LCMAINFIN.xlsx"), "", testutil.VendorRows(
		[]string{"Symbol", "EndDate", "TotalAssets"},
		[]any{"2", "2020-12-31", 1000000},
	))
	testutil.WriteWorkbook(t, filepath.Join(control, "FI_T1.xlsx"), "", testutil.VendorRows(
		[]string{"Stkcd", "Accper", "F011201A"},
		[]any{"000002", "2020-12-31", 0.5},
	))
	testutil.WriteWorkbook(t, filepath.Join(control, "nested", "AF_Actual.xlsx"), "", testutil.VendorRows(
		[]string{"Stkcd", "Ddate", "ROA"},
		[]any{"000002", "2020-12-31", 0.08},
	))
}

func writeFactorSources(t *testing.T, base string) {
	dir := filepath.Join(base, "tfp_data")
	factors := []struct {
		file, id, period, col string
		value                 float64
	}{
		{"FS_Comins.xlsx", "Stkcd", "Accper", "B001101000", 200},
		{"FS_Comscfd.xlsx", "Stkcd", "Accper", "C001014000", 50},
		{"FS_Combas.xlsx", "Stkcd", "Accper", "A001212000", 100},
		{"CG_Ybasic.xlsx", "Stkcd", "Reptdt", "Y0601b", 20},
	}
	for _, f := range factors {
		testutil.WriteWorkbook(t, filepath.Join(dir, f.file), "", testutil.VendorRows(
			[]string{f.id, f.period, f.col},
			[]any{"2", "2020-12-31", f.value},
		))
	}
}

func TestApplication_CleanScenario(t *testing.T) {
	a, logs, base := newTestApp(t)
	writeControlSources(t, base)
	ctx := infrastructure.WithRunID(context.Background(), "run-clean")

	res, err := a.Clean(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Panel.Len())

	p, err := exporter.ReadPanel(filepath.Join(base, "data", "final_data.csv"))
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())

	rec, ok := p.Get(domain.FirmYearKey{Stkcd: "000002", Year: 2020})
	require.True(t, ok)
	size, _ := rec.Value(domain.ColSize)
	assert.InDelta(t, 13.8155, size, 1e-4)
	lev, _ := rec.Value(domain.ColLev)
	assert.Equal(t, 0.5, lev)
	roa, _ := rec.Value(domain.ColROA)
	assert.Equal(t, 0.08, roa)

	testutil.AssertLogContains(t, logs, slog.LevelWarn, "Source file not found, skipping")
}

func TestApplication_CleanWithoutBase(t *testing.T) {
	a, logs, base := newTestApp(t)

	res, err := a.Clean(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Panel.Len())

	data, err := os.ReadFile(filepath.Join(base, "data", "final_data.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Stkcd,Year")
	testutil.AssertLogContains(t, logs, slog.LevelWarn, "Base source absent, panel will be empty")
}

func TestApplication_TFP(t *testing.T) {
	a, _, base := newTestApp(t)

	_, err := a.TFP(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeSourceNotFound))

	writeFactorSources(t, base)
	res, err := a.TFP(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Estimate.Degenerate)

	_, recs, err := exporter.ReadRecords(filepath.Join(base, "data", "tfp_result.csv"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	tfp, _ := recs[0].Value(domain.ColTFP)
	assert.InDelta(t, math.Log(200), tfp, 1e-12)
}

func TestApplication_RunAllAndArchive(t *testing.T) {
	a, logs, base := newTestApp(t)
	writeControlSources(t, base)
	writeFactorSources(t, base)

	var report bytes.Buffer
	a.SetOutput(&report)
	ctx := infrastructure.WithRunID(context.Background(), "run-all")

	run, err := a.RunAll(ctx)
	require.NoError(t, err, "model failures are not fatal")
	require.Len(t, run.Models, 2)
	for _, m := range run.Models {
		assert.Equal(t, domain.ModelStatusFailed, m.Status, m.Name)
	}
	assert.Len(t, logs.RecordsWithMessage("Model fit failed"), 2)
	assert.Contains(t, report.String(), "Model tfp: FAILED")

	out := filepath.Join(base, "data")
	for _, f := range []string{"final_data.csv", "tfp_result.csv", "regression_report.txt"} {
		assert.FileExists(t, filepath.Join(out, f))
	}

	s, err := store.Open(ctx, filepath.Join(out, "results.db"))
	require.NoError(t, err)
	stored, err := s.LoadRun(ctx, "run-all")
	require.NoError(t, err)
	assert.Len(t, stored.Models, 2)
	require.NoError(t, s.Close())

	res, err := a.Archive(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Moved, 3)
	for _, f := range []string{"final_data.csv", "tfp_result.csv", "regression_report.txt"} {
		assert.FileExists(t, filepath.Join(out, "archive_v1", f))
		assert.NoFileExists(t, filepath.Join(out, f))
	}

	require.NoError(t, a.Shutdown(ctx))
	metrics, err := os.ReadFile(filepath.Join(out, "dtpanel.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "dtpanel_stage_duration_seconds")
	assert.FileExists(t, filepath.Join(out, "trace.json"))

	manifest, err := operations.LoadManifest(filepath.Join(out, "run_manifest.json"))
	require.NoError(t, err)
	assert.Equal(t, "run-all", manifest.RunID)
	assert.Equal(t, operations.StatusCompleted, manifest.Status)
	require.Len(t, manifest.Stages, 4)
	for i, stage := range []string{StageClean, StageTFP, StageRegress, StageArchive} {
		assert.Equal(t, stage, manifest.Stages[i].Stage)
		assert.Equal(t, operations.StatusCompleted, manifest.Stages[i].Status)
	}
	assert.Contains(t, manifest.Inputs, "balance_sheet")
	require.Contains(t, manifest.Outputs, "panel")
	assert.Equal(t, 1, manifest.Outputs["panel"].Rows)
	assert.Contains(t, manifest.Outputs, "tfp")
	assert.Contains(t, manifest.Outputs, "report")
}

func TestApplication_Describe(t *testing.T) {
	a, _, base := newTestApp(t)
	writeControlSources(t, base)
	ctx := context.Background()

	_, err := a.Describe(ctx)
	require.Error(t, err, "no panel yet")

	_, err = a.Clean(ctx)
	require.NoError(t, err)

	var out bytes.Buffer
	a.SetOutput(&out)
	summary, err := a.Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Rows)
	assert.Equal(t, 1, summary.Firms)
	assert.Contains(t, out.String(), "Panel: 1 rows, 1 firms, years 2020-2020")
	assert.Contains(t, out.String(), "Size")

	status, ok := a.Manifest().StageStatus(StageDescribe)
	require.True(t, ok)
	assert.Equal(t, operations.StatusCompleted, status)
	assert.Equal(t, operations.StatusFailed, a.Manifest().Status, "the first describe failed")
}

func TestApplication_RegressWithoutPanel(t *testing.T) {
	a, _, _ := newTestApp(t)
	_, err := a.Regress(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run clean first")
}

func TestApplication_Sources(t *testing.T) {
	a, _, base := newTestApp(t)
	writeControlSources(t, base)

	res, err := a.Sources(context.Background())
	require.NoError(t, err)
	found := map[string]bool{}
	for _, r := range res {
		found[r.Spec.Name] = r.Found
	}
	assert.True(t, found["balance_sheet"])
	assert.True(t, found["income"], "sources are found in nested directories")
	assert.False(t, found["tobin_q"])
}

func TestApplication_UnregisteredWorkbooks(t *testing.T) {
	a, _, base := newTestApp(t)
	writeControlSources(t, base)
	stray := testutil.WriteWorkbook(t, filepath.Join(base, "control_data_new", "old", "FI_T9.xlsx"), "", [][]any{{"Stkcd"}})

	extra, err := a.UnregisteredWorkbooks(context.Background())
	require.NoError(t, err)
	require.Len(t, extra, 1)
	assert.Equal(t, stray, extra[0].Path)
}
