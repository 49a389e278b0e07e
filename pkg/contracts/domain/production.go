package domain

// Production factor column names.
const (
	ColOutput            = "Output"
	ColIntermediateInput = "IntermediateInput"
	ColCapital           = "Capital"
	ColLabor             = "Labor"

	ColLnY = "lnY"
	ColLnL = "lnL"
	ColLnK = "lnK"
	ColLnM = "lnM"
)

// FactorColumns are the four production factors in estimation order.
var FactorColumns = []string{ColOutput, ColIntermediateInput, ColCapital, ColLabor}

// ProductionObservation is one firm-year of the production panel. All four
// factors are strictly positive.
type ProductionObservation struct {
	Key               FirmYearKey `json:"key"`
	Output            float64     `json:"output" validate:"gt=0"`
	IntermediateInput float64     `json:"intermediate_input" validate:"gt=0"`
	Capital           float64     `json:"capital" validate:"gt=0"`
	Labor             float64     `json:"labor" validate:"gt=0"`

	LnY float64 `json:"ln_y"`
	LnM float64 `json:"ln_m"`
	LnK float64 `json:"ln_k"`
	LnL float64 `json:"ln_l"`

	// TFP is the productivity proxy filled in by an estimator.
	TFP float64 `json:"tfp"`
}
