package domain

import "time"

// Model fit statuses.
const (
	ModelStatusOK     = "ok"
	ModelStatusFailed = "failed"
)

// Coefficient is one estimated term of a fitted model.
type Coefficient struct {
	Term     string  `json:"term" db:"term"`
	Estimate float64 `json:"estimate" db:"estimate"`
	StdErr   float64 `json:"std_err" db:"std_err"`
	Z        float64 `json:"z" db:"z"`
	P        float64 `json:"p" db:"p"`
}

// ModelResult is the outcome of one model fit. Failed fits carry the error
// text and no coefficients.
type ModelResult struct {
	Name         string        `json:"name" db:"name"`
	Formula      string        `json:"formula" db:"formula"`
	Status       string        `json:"status" db:"status" validate:"oneof=ok failed"`
	Error        string        `json:"error,omitempty" db:"error"`
	N            int           `json:"n" db:"n"`
	Dropped      int           `json:"dropped" db:"dropped"`
	DFResid      int           `json:"df_resid" db:"df_resid"`
	R2           float64       `json:"r2" db:"r2"`
	AdjR2        float64       `json:"adj_r2" db:"adj_r2"`
	CovType      string        `json:"cov_type" db:"cov_type"`
	Absorbed     string        `json:"absorbed,omitempty" db:"absorbed"`
	Coefficients []Coefficient `json:"coefficients"`
}

// OK reports whether the fit succeeded.
func (m ModelResult) OK() bool {
	return m.Status == ModelStatusOK
}

// RegressionRun groups the model results of one invocation.
type RegressionRun struct {
	ID         string        `json:"id" db:"id"`
	StartedAt  time.Time     `json:"started_at" db:"started_at"`
	PanelFile  string        `json:"panel_file" db:"panel_file"`
	YearCutoff int           `json:"year_cutoff" db:"year_cutoff"`
	Imputation string        `json:"imputation" db:"imputation"`
	Rows       int           `json:"rows" db:"rows"`
	Models     []ModelResult `json:"models"`
}
