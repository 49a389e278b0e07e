package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"dtpanel/internal/config"
	"dtpanel/internal/dataprocessing"
	apperrors "dtpanel/internal/errors"
	"dtpanel/internal/exporter"
	"dtpanel/internal/files"
	"dtpanel/internal/infrastructure"
	"dtpanel/internal/operations"
	"dtpanel/internal/panel"
	"dtpanel/internal/productivity"
	"dtpanel/internal/regression"
	"dtpanel/internal/store"
	"dtpanel/pkg/contracts"
	"dtpanel/pkg/contracts/domain"
)

// Stage names used for logging, spans and metrics.
const (
	StageClean    = "clean"
	StageTFP      = "tfp"
	StageRegress  = "regress"
	StageArchive  = "archive"
	StageDescribe = "describe"
)

// Application wires the pipeline stages to their configuration.
type Application struct {
	Config   *config.Config
	Paths    *config.Paths
	Registry *dataprocessing.Registry
	Logger   *slog.Logger
	Metrics  *infrastructure.Metrics
	Tracing  *infrastructure.Tracing

	files     *files.Manager
	discovery *files.Discovery
	loader    *dataprocessing.Loader
	writer    *exporter.CSVWriter
	estimator productivity.Estimator
	manifest  *operations.RunManifest
	out       io.Writer
}

// NewApplication resolves paths, loads the source registry and starts
// telemetry. Call Shutdown when done.
func NewApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	paths, err := cfg.Resolve()
	if err != nil {
		return nil, apperrors.NewConfigError("failed to resolve paths", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, apperrors.NewConfigError("failed to create output directories", err)
	}

	registry, err := dataprocessing.LoadRegistry(paths.RegistryFile)
	if err != nil {
		return nil, err
	}

	tracing, err := infrastructure.InitializeTracing(paths.TraceFile, logger)
	if err != nil {
		return nil, err
	}

	metrics := infrastructure.NewMetrics()
	fm := files.NewManager(logger)
	a := &Application{
		Config:    cfg,
		Paths:     paths,
		Registry:  registry,
		Logger:    logger,
		Metrics:   metrics,
		Tracing:   tracing,
		files:     fm,
		discovery: files.NewDiscovery(paths.BaseDir),
		loader:    dataprocessing.NewLoader(logger, metrics),
		writer:    exporter.NewCSVWriter(fm, logger),
		estimator: productivity.NewOLSEstimator(logger),
		out:       os.Stdout,
	}

	logger.Info("Application initialized",
		slog.String("base_dir", paths.BaseDir),
		slog.String("output_dir", paths.OutputDir),
		slog.Int("sources", len(registry.Sources)))
	return a, nil
}

// SetOutput redirects the human-readable report, stdout by default.
func (a *Application) SetOutput(w io.Writer) {
	a.out = w
}

// Manifest returns the manifest of this invocation, nil before the first
// stage.
func (a *Application) Manifest() *operations.RunManifest {
	return a.manifest
}

// Shutdown closes the run manifest, writes the metrics textfile and
// flushes traces.
func (a *Application) Shutdown(ctx context.Context) error {
	var firstErr error
	if a.manifest != nil {
		a.manifest.Complete()
		a.saveManifest(ctx)
	}
	if a.Paths.MetricsFile != "" {
		if err := a.Metrics.WriteTextfile(a.Paths.MetricsFile); err != nil {
			a.Logger.Error("Failed to write metrics", slog.String("path", a.Paths.MetricsFile), slog.String("error", err.Error()))
			firstErr = err
		}
	}
	if err := a.Tracing.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// stage runs fn inside a span with timing and start/finish logs.
func (a *Application) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, span := a.Tracing.StartStage(ctx, name)
	a.Logger.InfoContext(ctx, "Stage started", slog.String("stage", name))
	if a.manifest == nil {
		a.manifest = operations.NewRunManifest(infrastructure.GetRunID(ctx), contracts.Version)
	}
	a.manifest.RecordStageStart(name)

	err := fn(ctx)

	infrastructure.EndStage(span, err)
	a.Metrics.ObserveStage(name, start)
	a.manifest.RecordStageEnd(name, err)
	a.saveManifest(ctx)
	if err != nil {
		a.Logger.ErrorContext(ctx, "Stage failed",
			slog.String("stage", name),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return err
	}
	a.Logger.InfoContext(ctx, "Stage completed",
		slog.String("stage", name),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// saveManifest writes the manifest when a manifest file is configured. A
// failure is logged and does not fail the stage.
func (a *Application) saveManifest(ctx context.Context) {
	if a.Paths.ManifestFile == "" {
		return
	}
	if err := a.files.AtomicWrite(a.Paths.ManifestFile, a.manifest.Encode); err != nil {
		a.Logger.WarnContext(ctx, "Failed to write run manifest",
			slog.String("path", a.Paths.ManifestFile),
			slog.String("error", err.Error()))
	}
}

// recordInputs adds every loaded source file to the manifest.
func (a *Application) recordInputs(ctx context.Context, tables map[string]*dataprocessing.SourceTable) {
	for name, t := range tables {
		if t.Absent || t.Path == "" {
			continue
		}
		if err := a.manifest.RecordInput(name, t.Path); err != nil {
			a.Logger.DebugContext(ctx, "Input not recorded", slog.String("source", name), slog.String("error", err.Error()))
		}
	}
}

func (a *Application) recordOutput(ctx context.Context, name, path, stage string, rows int) {
	if err := a.manifest.RecordOutput(name, path, stage, rows); err != nil {
		a.Logger.DebugContext(ctx, "Output not recorded", slog.String("output", name), slog.String("error", err.Error()))
	}
}

// Sources resolves every registry source against the configured
// directories.
func (a *Application) Sources(ctx context.Context) ([]dataprocessing.Resolution, error) {
	return a.Registry.Resolve(a.discovery, dataprocessing.ScopeDirs{
		Control: a.Paths.ControlDir,
		Base:    a.Paths.BaseDir,
		TFP:     a.Paths.TFPDir,
	})
}

// UnregisteredWorkbooks lists workbooks under the control and TFP
// directories that no registry source resolved to.
func (a *Application) UnregisteredWorkbooks(ctx context.Context) ([]files.FileInfo, error) {
	resolutions, err := a.Sources(ctx)
	if err != nil {
		return nil, err
	}
	used := make(map[string]bool, len(resolutions))
	for _, r := range resolutions {
		if r.Found {
			used[r.Path] = true
		}
	}

	var out []files.FileInfo
	for _, dir := range []string{a.Paths.ControlDir, a.Paths.TFPDir} {
		found, err := a.discovery.FindExcelFiles(dir)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			if !used[f.Path] {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

func (a *Application) resolveRoles(ctx context.Context, roles ...dataprocessing.Role) ([]dataprocessing.Resolution, error) {
	all, err := a.Sources(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[dataprocessing.Role]bool, len(roles))
	for _, r := range roles {
		want[r] = true
	}
	var out []dataprocessing.Resolution
	for _, res := range all {
		if want[res.Spec.Role] {
			out = append(out, res)
		}
	}
	return out, nil
}

// CleanResult summarizes the clean stage.
type CleanResult struct {
	Tables      map[string]*dataprocessing.SourceTable
	Merge       []panel.MergeStat
	Diagnostics *panel.Diagnostics
	Panel       *panel.Panel
	Path        string
}

// Clean loads every base, secondary and region source, merges them onto
// the base table, derives the analysis variables and saves the panel.
func (a *Application) Clean(ctx context.Context) (*CleanResult, error) {
	var res *CleanResult
	err := a.stage(ctx, StageClean, func(ctx context.Context) error {
		resolutions, err := a.resolveRoles(ctx, dataprocessing.RoleBase, dataprocessing.RoleSecondary, dataprocessing.RoleRegion)
		if err != nil {
			return err
		}
		tables, err := a.loader.LoadAll(ctx, resolutions)
		if err != nil {
			return err
		}
		a.recordInputs(ctx, tables)

		var base *dataprocessing.SourceTable
		var secondaries, regions []*dataprocessing.SourceTable
		for _, r := range resolutions {
			t := tables[r.Spec.Name]
			switch r.Spec.Role {
			case dataprocessing.RoleBase:
				base = t
			case dataprocessing.RoleSecondary:
				secondaries = append(secondaries, t)
			case dataprocessing.RoleRegion:
				regions = append(regions, t)
			}
		}

		p, stats := panel.NewMerger(a.Logger, a.Metrics).Merge(ctx, base, secondaries, regions)
		diag := panel.NewDeriver(a.Logger, a.Metrics).Derive(ctx, p)
		a.Metrics.PanelRows(p.Len())

		if err := a.writer.WritePanel(ctx, a.Paths.PanelFile, p); err != nil {
			return err
		}
		a.recordOutput(ctx, "panel", a.Paths.PanelFile, StageClean, p.Len())
		res = &CleanResult{Tables: tables, Merge: stats, Diagnostics: diag, Panel: p, Path: a.Paths.PanelFile}
		return nil
	})
	return res, err
}

// TFPResult summarizes the TFP stage.
type TFPResult struct {
	Join     productivity.JoinStats
	Estimate *productivity.Estimate
	Path     string
}

// TFP joins the production factors, estimates TFP and saves the table.
func (a *Application) TFP(ctx context.Context) (*TFPResult, error) {
	var res *TFPResult
	err := a.stage(ctx, StageTFP, func(ctx context.Context) error {
		resolutions, err := a.resolveRoles(ctx, dataprocessing.RoleFactor)
		if err != nil {
			return err
		}
		tables, err := a.loader.LoadAll(ctx, resolutions)
		if err != nil {
			return err
		}
		a.recordInputs(ctx, tables)
		ordered := make([]*dataprocessing.SourceTable, 0, len(resolutions))
		for _, r := range resolutions {
			ordered = append(ordered, tables[r.Spec.Name])
		}

		obs, join, err := productivity.NewBuilder(a.Logger, a.Metrics).Build(ctx, ordered)
		if err != nil {
			return err
		}
		est, err := a.estimator.Estimate(ctx, obs)
		if err != nil {
			return err
		}
		if err := a.writer.WriteRecords(ctx, a.Paths.TFPFile, productivity.TFPColumns, est.Records()); err != nil {
			return err
		}
		a.recordOutput(ctx, "tfp", a.Paths.TFPFile, StageTFP, est.N)
		res = &TFPResult{Join: join, Estimate: est, Path: a.Paths.TFPFile}
		return nil
	})
	return res, err
}

// Regress fits the configured models on the saved panel, prints the
// report, saves it and, when configured, stores the run.
func (a *Application) Regress(ctx context.Context) (*domain.RegressionRun, error) {
	var run *domain.RegressionRun
	err := a.stage(ctx, StageRegress, func(ctx context.Context) error {
		cfg := a.Config.Regression

		p, err := exporter.ReadPanel(a.Paths.PanelFile)
		if err != nil {
			return fmt.Errorf("failed to read panel (run clean first): %w", err)
		}

		var tfp []*domain.FirmYearRecord
		if cfg.JoinTFP {
			if a.files.FileExists(a.Paths.TFPFile) {
				if _, tfp, err = exporter.ReadRecords(a.Paths.TFPFile); err != nil {
					return err
				}
			} else {
				a.Logger.WarnContext(ctx, "TFP table not found, TFP models will fail",
					slog.String("path", a.Paths.TFPFile))
			}
		}

		imputer, err := regression.NewImputer(cfg.Imputation)
		if err != nil {
			return apperrors.NewConfigError("invalid imputation", err)
		}
		runner := regression.NewRunner(a.Logger, a.Metrics, regression.Options{
			YearCutoff:    cfg.YearCutoff,
			ImputeColumns: cfg.ImputeColumns,
			Imputer:       imputer,
			Absorb:        cfg.Absorb,
		})
		prep := runner.Prepare(ctx, p, tfp)

		run = &domain.RegressionRun{
			ID:         infrastructure.GetRunID(ctx),
			StartedAt:  time.Now().UTC(),
			PanelFile:  a.Paths.PanelFile,
			YearCutoff: cfg.YearCutoff,
			Imputation: imputer.Name(),
			Rows:       prep.Rows,
		}
		run.Models = runner.Run(ctx, p, cfg.Models)

		if err := regression.RenderReport(a.out, *run); err != nil {
			return fmt.Errorf("failed to print report: %w", err)
		}
		if err := a.files.AtomicWrite(a.Paths.ReportFile, func(w io.Writer) error {
			return regression.RenderReport(w, *run)
		}); err != nil {
			return err
		}
		a.recordOutput(ctx, "report", a.Paths.ReportFile, StageRegress, len(run.Models))

		if a.Paths.ResultsDB != "" {
			s, err := store.Open(ctx, a.Paths.ResultsDB)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.SaveRun(ctx, *run); err != nil {
				return err
			}
			a.Logger.InfoContext(ctx, "Run stored", slog.String("db", a.Paths.ResultsDB), slog.String("run_id", run.ID))
		}
		return nil
	})
	return run, err
}

// Describe summarizes the saved panel and prints the summary.
func (a *Application) Describe(ctx context.Context) (*panel.Summary, error) {
	var summary *panel.Summary
	err := a.stage(ctx, StageDescribe, func(ctx context.Context) error {
		p, err := exporter.ReadPanel(a.Paths.PanelFile)
		if err != nil {
			return fmt.Errorf("failed to read panel (run clean first): %w", err)
		}
		s := panel.Summarize(p)
		summary = &s
		return panel.RenderSummary(a.out, s)
	})
	return summary, err
}

// RunAll runs clean, tfp and regress in order. A failed TFP stage is
// logged and the regression still runs; models that need TFP then fail
// individually.
func (a *Application) RunAll(ctx context.Context) (*domain.RegressionRun, error) {
	if _, err := a.Clean(ctx); err != nil {
		return nil, err
	}
	if _, err := a.TFP(ctx); err != nil {
		a.Logger.WarnContext(ctx, "Continuing without a fresh TFP table", slog.String("error", err.Error()))
	}
	return a.Regress(ctx)
}

// Archive moves the panel, TFP table and report into the archive
// directory.
func (a *Application) Archive(ctx context.Context) (*files.ArchiveResult, error) {
	var res *files.ArchiveResult
	err := a.stage(ctx, StageArchive, func(ctx context.Context) error {
		var err error
		res, err = a.files.Archive(a.Paths.ArchiveDir, a.Paths.PanelFile, a.Paths.TFPFile, a.Paths.ReportFile)
		if err != nil {
			return err
		}
		if len(res.Failed) > 0 {
			return fmt.Errorf("%d files could not be archived", len(res.Failed))
		}
		return nil
	})
	return res, err
}
