// Package config provides configuration management for dtpanel.
//
// # Configuration Sources
//
// Configuration is layered, later sources overriding earlier ones:
//
//  1. Default values
//  2. YAML file (--config, else dtpanel.yaml or configs/dtpanel.yaml)
//  3. Environment variables
//  4. Command line flags
//
// # Environment Variables
//
// Environment variables use the DTP prefix and the section name:
//
//	DTP_PATHS_BASE_DIR=/data/study
//	DTP_LOGGING_LEVEL=debug
//	DTP_REGRESSION_YEAR_CUTOFF=2016
//	DTP_REGRESSION_IMPUTATION=drop
//
// Model formulas can only be set in the YAML file.
//
// # Path Management
//
// Config.Resolve returns a Paths value with absolute locations. Source
// directories are relative to paths.base_dir, output files and the archive
// directory are relative to paths.output_dir.
package config
