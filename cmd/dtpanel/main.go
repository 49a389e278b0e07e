// Command dtpanel builds the firm-year panel from vendor workbooks,
// estimates TFP and runs the panel regressions.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"dtpanel/internal/app"
	"dtpanel/internal/config"
	"dtpanel/internal/infrastructure"
	"dtpanel/pkg/contracts"
)

type options struct {
	configFile string
	baseDir    string
	outputDir  string
	registry   string
	resultsDB  string
	imputation string
	absorb     string
	logLevel   string
	yearCutoff int
}

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root, shutdown := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if serr := shutdown(ctx); err == nil {
		err = serr
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// newRootCmd builds the command tree. The returned shutdown func flushes
// telemetry and closes the log file; it runs even when a command fails.
func newRootCmd(stdout, stderr io.Writer) (*cobra.Command, func(context.Context) error) {
	var (
		opts        options
		application *app.Application
	)

	root := &cobra.Command{
		Use:     "dtpanel",
		Short:   "Firm-year panel, TFP and digital transformation regressions",
		Version: contracts.Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "help", "completion", "version":
				return nil
			}
			cfg, err := config.Load(opts.configFile, flagOverrides(cmd, &opts))
			if err != nil {
				return err
			}

			logger, err := newLogger(cfg.Logging, stderr)
			if err != nil {
				return err
			}

			ctx := infrastructure.EnsureRunID(cmd.Context())
			cmd.SetContext(ctx)
			logger.InfoContext(ctx, "Starting", slog.String("command", cmd.Name()), slog.String("version", contracts.Version))

			application, err = app.NewApplication(cfg, logger)
			if err != nil {
				return err
			}
			application.SetOutput(stdout)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default: ./dtpanel.yaml or ./configs/dtpanel.yaml)")
	flags.StringVar(&opts.baseDir, "base-dir", "", "directory holding the source workbooks")
	flags.StringVar(&opts.outputDir, "output-dir", "", "directory for generated files, relative to the base dir")
	flags.StringVar(&opts.registry, "registry", "", "source registry YAML replacing the built-in one")
	flags.StringVar(&opts.resultsDB, "results-db", "", "SQLite file for regression results")
	flags.StringVar(&opts.imputation, "imputation", "", "mean, drop, interpolate or none")
	flags.StringVar(&opts.absorb, "absorb", "", "variable whose fixed effects are absorbed, e.g. Stkcd")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	flags.IntVar(&opts.yearCutoff, "year-cutoff", 0, "first fiscal year in the regression sample")

	appOf := func() *app.Application { return application }
	root.AddCommand(
		newCleanCmd(appOf),
		newTFPCmd(appOf),
		newRegressCmd(appOf),
		newRunCmd(appOf),
		newArchiveCmd(appOf),
		newSourcesCmd(appOf),
		newDescribeCmd(appOf),
		newVersionCmd(),
	)

	shutdown := func(ctx context.Context) error {
		if application == nil {
			return nil
		}
		err := application.Shutdown(ctx)
		infrastructure.CloseLogFile()
		return err
	}
	return root, shutdown
}

// flagOverrides applies only the flags given on the command line.
func flagOverrides(cmd *cobra.Command, opts *options) func(*config.Config) {
	return func(cfg *config.Config) {
		changed := cmd.Flags().Changed
		if changed("base-dir") {
			cfg.Paths.BaseDir = opts.baseDir
		}
		if changed("output-dir") {
			cfg.Paths.OutputDir = opts.outputDir
		}
		if changed("registry") {
			cfg.Paths.RegistryFile = opts.registry
		}
		if changed("results-db") {
			cfg.Paths.ResultsDB = opts.resultsDB
		}
		if changed("imputation") {
			cfg.Regression.Imputation = opts.imputation
		}
		if changed("absorb") {
			cfg.Regression.Absorb = opts.absorb
		}
		if changed("log-level") {
			cfg.Logging.Level = opts.logLevel
		}
		if changed("year-cutoff") {
			cfg.Regression.YearCutoff = opts.yearCutoff
		}
	}
}

// newLogger logs to stderr for console output and through the shared
// file logger otherwise.
func newLogger(cfg config.LoggingConfig, stderr io.Writer) (*slog.Logger, error) {
	if cfg.Output == "console" {
		logger := infrastructure.NewLogger(cfg, stderr)
		slog.SetDefault(logger)
		return logger, nil
	}
	return infrastructure.InitializeLogger(cfg)
}

func newCleanCmd(appOf func() *app.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Load, merge and derive the firm-year panel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := appOf().Clean(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Panel saved: %s (%d rows, %d columns)\n", res.Path, res.Panel.Len(), len(res.Panel.Columns())+2)
			for _, s := range res.Diagnostics.Skips() {
				fmt.Fprintf(out, "  %s left missing for %d rows: %s\n", s.Field, s.Rows, s.Reason)
			}
			names := make([]string, 0, len(res.Tables))
			for name, t := range res.Tables {
				if t.Incomplete {
					names = append(names, name)
				}
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "  source %s is missing required columns: %s\n", name, strings.Join(res.Tables[name].MissingRequired(), ", "))
			}
			return nil
		},
	}
}

func newTFPCmd(appOf func() *app.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "tfp",
		Short: "Estimate total factor productivity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := appOf().TFP(cmd.Context())
			if err != nil {
				return err
			}
			est := res.Estimate
			fmt.Fprintf(cmd.OutOrStdout(), "TFP saved: %s (%d rows, %s, degenerate=%t)\n", res.Path, est.N, est.Method, est.Degenerate)
			fmt.Fprintf(cmd.OutOrStdout(), "  dropped: %d unmatched, %d missing, %d non-positive\n",
				res.Join.Unmatched, res.Join.Missing, res.Join.NonPositive)
			return nil
		},
	}
}

func newRegressCmd(appOf func() *app.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "regress",
		Short: "Fit the configured regression models on the saved panel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := appOf().Regress(cmd.Context())
			return err
		},
	}
}

func newRunCmd(appOf func() *app.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run clean, tfp and regress in order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := appOf().RunAll(cmd.Context())
			return err
		},
	}
}

func newArchiveCmd(appOf func() *app.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Move previous outputs into the archive directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := appOf().Archive(cmd.Context())
			if res != nil {
				for _, p := range res.Moved {
					fmt.Fprintf(cmd.OutOrStdout(), "archived %s\n", p)
				}
				for _, p := range res.Missing {
					fmt.Fprintf(cmd.OutOrStdout(), "not found %s\n", p)
				}
			}
			return err
		},
	}
}

func newSourcesCmd(appOf func() *app.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the registered sources and where they were found",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := appOf().Sources(cmd.Context())
			if err != nil {
				return err
			}
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Source", "Role", "Scope", "File", "Found", "Path"})
			for _, r := range res {
				path := r.Path
				if !r.Found {
					path = r.Dir
				}
				t.AppendRow(table.Row{r.Spec.Name, r.Spec.Role, r.Spec.Scope, r.Spec.File, r.Found, path})
			}
			t.Render()

			extra, err := appOf().UnregisteredWorkbooks(cmd.Context())
			if err != nil {
				return err
			}
			if len(extra) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Workbooks not in the registry:")
				for _, f := range extra {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", f.Path)
				}
			}
			return nil
		},
	}
}

func newDescribeCmd(appOf func() *app.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Print descriptive statistics of the saved panel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := appOf().Describe(cmd.Context())
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), contracts.GetFullVersionString())
		},
	}
}
