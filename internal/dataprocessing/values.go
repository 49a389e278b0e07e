package dataprocessing

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"
)

// missingMarkers are cell texts that vendors use for "no value".
var missingMarkers = map[string]bool{
	"":     true,
	"-":    true,
	"--":   true,
	"N/A":  true,
	"NA":   true,
	"NaN":  true,
	"null": true,
}

// ParseNumber parses a numeric cell. Thousands separators are stripped;
// empty, marker or unparseable text is reported as missing.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if missingMarkers[s] {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-1-2",
	"2006/1/2",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01",
	"2006/01",
	"01-02-06",
}

// Excel serial numbers between these bounds cover 1900-03-01..9999-12-31.
const (
	minExcelSerial = 61
	maxExcelSerial = 2958465
)

// ParseYear extracts a calendar year from a period cell: ISO or slash
// dates, date-times, bare years (optionally suffixed 年) and Excel date
// serial numbers.
func ParseYear(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if y, ok := parseDateYear(s); ok {
		return y, true
	}

	bare := strings.TrimSuffix(s, "年")
	if n, err := strconv.Atoi(bare); err == nil && n >= 1000 && n <= 9999 {
		return n, true
	}

	if f, ok := ParseNumber(s); ok && f >= minExcelSerial && f <= maxExcelSerial {
		if t, err := excelize.ExcelDateToTime(f, false); err == nil {
			return t.Year(), true
		}
	}
	return 0, false
}

// ParseYearValue reads a cell holding a year number, such as 2020, 2020.0
// or 2020年. Date text is also accepted; Excel serials are not, so a
// numeric cell outside 1000..9999 is rejected.
func ParseYearValue(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if f, ok := ParseNumber(strings.TrimSuffix(s, "年")); ok {
		if f != math.Trunc(f) || f < 1000 || f > 9999 {
			return 0, false
		}
		return int(f), true
	}
	return parseDateYear(s)
}

func parseDateYear(s string) (int, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Year(), true
		}
	}
	return 0, false
}

// NormalizeRegion canonicalizes a city or province name for joining:
// NFKC folding, all whitespace removed and a trailing 市 or 省 stripped.
func NormalizeRegion(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	for _, suffix := range []string{"市", "省"} {
		if strings.HasSuffix(s, suffix) && s != suffix {
			return strings.TrimSuffix(s, suffix)
		}
	}
	return s
}
