package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths holds every absolute location the pipeline reads or writes.
type Paths struct {
	BaseDir      string
	ControlDir   string
	TFPDir       string
	OutputDir    string
	PanelFile    string
	TFPFile      string
	ReportFile   string
	ArchiveDir   string
	ResultsDB    string // empty when the result store is disabled
	RegistryFile string // empty when the embedded registry is used
	ManifestFile string // empty when no run manifest is written
	MetricsFile  string
	TraceFile    string
	LogFile      string
}

// Resolve turns the configured locations into absolute paths. Source
// directories hang off BaseDir; outputs and the archive hang off OutputDir.
func (c *Config) Resolve() (*Paths, error) {
	base, err := filepath.Abs(c.Paths.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base dir %s: %w", c.Paths.BaseDir, err)
	}

	output := under(base, c.Paths.OutputDir)
	p := &Paths{
		BaseDir:      base,
		ControlDir:   under(base, c.Paths.ControlDir),
		TFPDir:       under(base, c.Paths.TFPDir),
		OutputDir:    output,
		PanelFile:    under(output, c.Paths.PanelFile),
		TFPFile:      under(output, c.Paths.TFPFile),
		ReportFile:   under(output, c.Paths.ReportFile),
		ArchiveDir:   under(output, c.Paths.ArchiveDir),
		ResultsDB:    optional(output, c.Paths.ResultsDB),
		RegistryFile: optional(base, c.Paths.RegistryFile),
		ManifestFile: optional(output, c.Paths.ManifestFile),
		MetricsFile:  optional(output, c.Telemetry.MetricsFile),
		TraceFile:    optional(output, c.Telemetry.TraceFile),
	}
	if c.Logging.Output != "console" {
		p.LogFile = under(base, c.Logging.FilePath)
	}
	return p, nil
}

func under(dir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}

func optional(dir, path string) string {
	if path == "" {
		return ""
	}
	return under(dir, path)
}

// EnsureDirectories creates the output directory and the parents of any
// configured output file.
func (p *Paths) EnsureDirectories() error {
	directories := []string{p.OutputDir}
	for _, f := range []string{p.PanelFile, p.TFPFile, p.ReportFile, p.ResultsDB, p.ManifestFile, p.MetricsFile, p.TraceFile, p.LogFile} {
		if f != "" {
			directories = append(directories, filepath.Dir(f))
		}
	}

	logger := slog.Default()
	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		logger.Debug("Ensured directory exists", slog.String("directory", dir))
	}
	return nil
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
