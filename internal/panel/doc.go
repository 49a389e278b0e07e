// Package panel merges cleaned source tables into the firm-year panel and
// derives the analysis variables.
//
// Merger keeps every row of the base table and left-joins each secondary
// table in registry order. When tables overlap, the first non-missing value
// wins; variables that need a different rule are given distinct names
// (Lev_raw, ROA_raw) and settled by the Deriver. Region tables join through
// the City and Province labels after name normalization, and GDP takes the
// city figure before the province figure.
//
// Deriver computes Size, Lev, ROA, Board, Age, GDP, SOE and Treat_time.
// It never fails; missing prerequisites leave the field missing and are
// reported as aggregated Diagnostics.
//
// SOE and Treat_time follow that rule too: a blank SOE_ID or DigitalScore
// leaves the field missing rather than coding it 0, even when the firm-year
// has a row in the equity or digital source. Such rows then drop out of
// listwise-deleted models instead of joining the control group.
package panel
