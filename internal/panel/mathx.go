package panel

import "math"

// SafeLog1p returns log(1+x). ok is false for NaN, ±Inf and x <= -1, where
// the transform is undefined or infinite.
func SafeLog1p(x float64) (float64, bool) {
	if math.IsNaN(x) || math.IsInf(x, 0) || x <= -1 {
		return 0, false
	}
	return math.Log1p(x), true
}

// SafeDiv returns a/b. ok is false when either operand is not finite or b
// is zero.
func SafeDiv(a, b float64) (float64, bool) {
	if b == 0 || !finite(a) || !finite(b) {
		return 0, false
	}
	q := a / b
	if !finite(q) {
		return 0, false
	}
	return q, true
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
