package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "dtpanel/internal/errors"
)

// EnvPrefix namespaces every environment override, e.g. DTP_PATHS_BASE_DIR.
const EnvPrefix = "DTP"

// Config represents the complete application configuration
type Config struct {
	Paths      PathsConfig      `yaml:"paths" envconfig:"PATHS"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Regression RegressionConfig `yaml:"regression" envconfig:"REGRESSION"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// PathsConfig contains file system locations. Relative entries are resolved
// against BaseDir (directories) or OutputDir (output files) by Resolve.
type PathsConfig struct {
	BaseDir      string `yaml:"base_dir" envconfig:"BASE_DIR" validate:"required"`
	ControlDir   string `yaml:"control_dir" envconfig:"CONTROL_DIR" validate:"required"`
	TFPDir       string `yaml:"tfp_dir" envconfig:"TFP_DIR" validate:"required"`
	OutputDir    string `yaml:"output_dir" envconfig:"OUTPUT_DIR" validate:"required"`
	PanelFile    string `yaml:"panel_file" envconfig:"PANEL_FILE" validate:"required"`
	TFPFile      string `yaml:"tfp_file" envconfig:"TFP_FILE" validate:"required"`
	ReportFile   string `yaml:"report_file" envconfig:"REPORT_FILE" validate:"required"`
	ArchiveDir   string `yaml:"archive_dir" envconfig:"ARCHIVE_DIR" validate:"required"`
	ResultsDB    string `yaml:"results_db" envconfig:"RESULTS_DB"`
	RegistryFile string `yaml:"registry_file" envconfig:"REGISTRY_FILE"`
	ManifestFile string `yaml:"manifest_file" envconfig:"MANIFEST_FILE"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" validate:"required_unless=Output console"`
}

// RegressionConfig controls the regression stage.
type RegressionConfig struct {
	YearCutoff    int         `yaml:"year_cutoff" envconfig:"YEAR_CUTOFF" validate:"gte=1900,lte=2100"`
	ImputeColumns []string    `yaml:"impute_columns" envconfig:"IMPUTE_COLUMNS"`
	Imputation    string      `yaml:"imputation" envconfig:"IMPUTATION" validate:"oneof=mean drop interpolate none"`
	JoinTFP       bool        `yaml:"join_tfp" envconfig:"JOIN_TFP"`
	Absorb        string      `yaml:"absorb" envconfig:"ABSORB"`
	Models        []ModelSpec `yaml:"models" ignored:"true" validate:"min=1,dive"`
}

// ModelSpec names one regression formula.
type ModelSpec struct {
	Name    string `yaml:"name" validate:"required"`
	Formula string `yaml:"formula" validate:"required,contains=~"`
}

// TelemetryConfig selects where metrics and traces are written. Empty
// paths disable the corresponding exporter.
type TelemetryConfig struct {
	MetricsFile string `yaml:"metrics_file" envconfig:"METRICS_FILE"`
	TraceFile   string `yaml:"trace_file" envconfig:"TRACE_FILE"`
}

// Default model formulas.
const (
	DefaultTFPFormula = "TFP_OLS ~ Treat_time + Size + Lev + TobinQ + Board + Indb + Top1 + Age + GDP + C(SOE) + C(Year)"
	DefaultROAFormula = "ROA ~ Treat_time + Size + Lev + TobinQ + Board + Indb + Top1 + Age + GDP + C(SOE) + C(Year)"
)

// Default returns default configuration
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			BaseDir:      ".",
			ControlDir:   "control_data_new",
			TFPDir:       "tfp_data",
			OutputDir:    "data",
			PanelFile:    "final_data.csv",
			TFPFile:      "tfp_result.csv",
			ReportFile:   "regression_report.txt",
			ArchiveDir:   "archive_v1",
			ManifestFile: "run_manifest.json",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/dtpanel.log",
		},
		Regression: RegressionConfig{
			YearCutoff:    2016,
			ImputeColumns: []string{"GDP", "ROA"},
			Imputation:    "mean",
			JoinTFP:       true,
			Models: []ModelSpec{
				{Name: "tfp", Formula: DefaultTFPFormula},
				{Name: "roa", Formula: DefaultROAFormula},
			},
		},
	}
}

// Load builds the configuration from defaults, the YAML file (configFile,
// or the first default location that exists), environment variables and
// finally the given overrides, then validates the result.
func Load(configFile string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default()

	explicit := configFile != ""
	if !explicit {
		configFile = getConfigFilePath()
	}
	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			if explicit || !os.IsNotExist(err) {
				return nil, apperrors.NewConfigError("failed to load config file "+configFile, err)
			}
		}
	}

	// Fields without a matching variable keep their current value, so the
	// environment only overrides what is actually set.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, apperrors.NewConfigError("failed to load config from env", err)
	}

	for _, override := range overrides {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile decodes a YAML file over cfg.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	locations := []string{
		"dtpanel.yaml",
		"configs/dtpanel.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

var validate = validator.New()

// Validate checks struct constraints and the model list.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return apperrors.NewConfigError("config validation failed", err)
	}

	seen := make(map[string]bool, len(c.Regression.Models))
	for _, m := range c.Regression.Models {
		if seen[m.Name] {
			return apperrors.NewConfigError(fmt.Sprintf("duplicate model name %q", m.Name), nil)
		}
		seen[m.Name] = true
	}

	for _, col := range c.Regression.ImputeColumns {
		if strings.TrimSpace(col) == "" {
			return apperrors.NewConfigError("impute_columns contains an empty name", nil)
		}
	}
	return nil
}

// Model returns the named model spec.
func (c *Config) Model(name string) (ModelSpec, bool) {
	for _, m := range c.Regression.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelSpec{}, false
}
