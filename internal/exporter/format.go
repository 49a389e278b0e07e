package exporter

import (
	"math"
	"strconv"
	"strings"
)

// formatFloat renders v with the fewest digits that round-trip, in plain
// decimal notation unless the magnitude needs an exponent.
func formatFloat(v float64) string {
	abs := math.Abs(v)
	if abs == 0 || (abs >= 1e-6 && abs < 1e21) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// parseFloat reads a numeric cell. Empty cells and NaN are missing.
func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
