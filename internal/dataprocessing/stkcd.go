package dataprocessing

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// StkcdWidth is the width of a mainland security code.
const StkcdWidth = 6

// NormalizeStkcd returns the canonical string form of a security code.
// Strings made only of ASCII digits are left-padded with zeros to six
// characters; any other text is returned trimmed but otherwise unchanged.
// Integers format in base 10 and integral floats drop their fraction, so
// 2, 2.0 and "2" all become "000002". nil yields "". It never fails and is
// idempotent.
func NormalizeStkcd(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		s = x
	case int:
		s = strconv.FormatInt(int64(x), 10)
	case int32:
		s = strconv.FormatInt(int64(x), 10)
	case int64:
		s = strconv.FormatInt(x, 10)
	case uint:
		s = strconv.FormatUint(uint64(x), 10)
	case uint32:
		s = strconv.FormatUint(uint64(x), 10)
	case uint64:
		s = strconv.FormatUint(x, 10)
	case float32:
		s = formatFloatID(float64(x))
	case float64:
		s = formatFloatID(x)
	case fmt.Stringer:
		s = x.String()
	default:
		s = fmt.Sprint(x)
	}

	s = strings.TrimSpace(s)
	if !isASCIIDigits(s) || len(s) >= StkcdWidth {
		return s
	}
	return strings.Repeat("0", StkcdWidth-len(s)) + s
}

func formatFloatID(f float64) string {
	if !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func isASCIIDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
