// Package dataprocessing turns vendor spreadsheets into clean firm-year
// tables.
//
// # Architecture
//
// Registry lists every dataset the study uses: file name, search scope,
// identifier and period columns, column renames and the role the table
// plays (base, secondary, region or factor). The default registry is
// embedded from sources.yaml.
//
// Loader reads one resolved source with excelize and applies the cleaning
// rules in order: rows with a non-numeric identifier are dropped, columns
// are renamed, the period becomes a calendar year, identifiers are
// normalized with NormalizeStkcd and duplicate keys keep their last row.
//
// # Usage
//
//	reg, err := dataprocessing.LoadRegistry(paths.RegistryFile)
//	resolved, err := reg.Resolve(files.NewDiscovery(""), dataprocessing.ScopeDirs{
//	    Control: paths.ControlDir, Base: paths.BaseDir, TFP: paths.TFPDir,
//	})
//	tables, err := dataprocessing.NewLoader(logger, metrics).LoadAll(ctx, resolved)
package dataprocessing
