// Package regression fits the panel regressions: OLS with HC1 robust
// standard errors, formula-driven design matrices with treatment-coded
// categoricals and optional absorbed fixed effects, pluggable imputation,
// and a plain-text report.
package regression
