package regression

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"dtpanel/pkg/contracts/domain"
)

// InterceptTerm names the constant column.
const InterceptTerm = "Intercept"

// ErrNoRegressors reports a formula that leaves nothing to estimate.
var ErrNoRegressors = errors.New("no regressors left after expansion")

// Design is a model matrix built from panel rows after listwise deletion.
type Design struct {
	X       *mat.Dense
	Y       []float64
	Columns []string
	Keys    []domain.FirmYearKey

	// Dropped counts rows removed for missing model variables.
	Dropped int
	// Groups is the number of absorbed fixed-effect groups.
	Groups int
	// Collinear lists columns removed because absorbing made them constant.
	Collinear []string
}

// numeric reads a numeric variable, including the Stkcd and Year keys.
func numeric(rec *domain.FirmYearRecord, name string) (float64, bool) {
	switch name {
	case domain.ColYear:
		return float64(rec.Key.Year), true
	case domain.ColStkcd:
		v, err := strconv.ParseFloat(rec.Key.Stkcd, 64)
		return v, err == nil
	}
	return rec.Value(name)
}

// level reads a variable as a category label.
func level(rec *domain.FirmYearRecord, name string) (string, bool) {
	switch name {
	case domain.ColStkcd:
		return rec.Key.Stkcd, true
	case domain.ColYear:
		return strconv.Itoa(rec.Key.Year), true
	}
	if v, ok := rec.Value(name); ok {
		return strconv.FormatFloat(v, 'g', -1, 64), true
	}
	return rec.Label(name)
}

// sortLevels orders levels numerically when every level is a number and
// lexically otherwise.
func sortLevels(levels []string) {
	nums := make(map[string]float64, len(levels))
	for _, l := range levels {
		v, err := strconv.ParseFloat(l, 64)
		if err != nil {
			sort.Strings(levels)
			return
		}
		nums[l] = v
	}
	sort.Slice(levels, func(i, j int) bool { return nums[levels[i]] < nums[levels[j]] })
}

// BuildDesign expands f over records. Rows missing the response or any term
// are dropped. Categorical terms become treatment dummies against their
// lowest level. When absorb names a variable, every column and the
// response are demeaned within its groups and no intercept is added.
func BuildDesign(records []*domain.FirmYearRecord, f Formula, absorb string) (*Design, error) {
	d := &Design{}

	var rows []*domain.FirmYearRecord
	for _, rec := range records {
		if complete(rec, f, absorb) {
			rows = append(rows, rec)
		} else {
			d.Dropped++
		}
	}

	type column struct {
		name  string
		value func(*domain.FirmYearRecord) float64
	}
	var cols []column
	if absorb == "" {
		cols = append(cols, column{InterceptTerm, func(*domain.FirmYearRecord) float64 { return 1 }})
	}
	for _, t := range f.Terms {
		t := t
		if !t.Categorical {
			cols = append(cols, column{t.Name, func(r *domain.FirmYearRecord) float64 {
				v, _ := numeric(r, t.Name)
				return v
			}})
			continue
		}
		seen := make(map[string]bool)
		var levels []string
		for _, r := range rows {
			l, _ := level(r, t.Name)
			if !seen[l] {
				seen[l] = true
				levels = append(levels, l)
			}
		}
		sortLevels(levels)
		for _, l := range levels[min(1, len(levels)):] {
			l := l
			cols = append(cols, column{fmt.Sprintf("%s[T.%s]", t, l), func(r *domain.FirmYearRecord) float64 {
				if v, _ := level(r, t.Name); v == l {
					return 1
				}
				return 0
			}})
		}
	}

	n := len(rows)
	data := make([][]float64, len(cols))
	for j, c := range cols {
		data[j] = make([]float64, n)
		for i, r := range rows {
			data[j][i] = c.value(r)
		}
	}
	d.Y = make([]float64, n)
	d.Keys = make([]domain.FirmYearKey, n)
	for i, r := range rows {
		d.Y[i], _ = numeric(r, f.Response)
		d.Keys[i] = r.Key
	}

	if absorb != "" {
		groups := make([]string, n)
		for i, r := range rows {
			groups[i], _ = level(r, absorb)
		}
		d.Groups = demean(d.Y, groups)
		kept := cols[:0]
		keptData := data[:0]
		for j, c := range cols {
			demean(data[j], groups)
			if constantZero(data[j]) {
				d.Collinear = append(d.Collinear, c.name)
				continue
			}
			kept = append(kept, c)
			keptData = append(keptData, data[j])
		}
		cols, data = kept, keptData
	}

	if len(cols) == 0 {
		return nil, ErrNoRegressors
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: no complete rows", ErrTooFewObservations)
	}

	d.X = mat.NewDense(n, len(cols), nil)
	d.Columns = make([]string, len(cols))
	for j, c := range cols {
		d.Columns[j] = c.name
		for i := 0; i < n; i++ {
			d.X.Set(i, j, data[j][i])
		}
	}
	return d, nil
}

func complete(rec *domain.FirmYearRecord, f Formula, absorb string) bool {
	if _, ok := numeric(rec, f.Response); !ok {
		return false
	}
	for _, t := range f.Terms {
		if t.Categorical {
			if _, ok := level(rec, t.Name); !ok {
				return false
			}
			continue
		}
		if _, ok := numeric(rec, t.Name); !ok {
			return false
		}
	}
	if absorb != "" {
		if _, ok := level(rec, absorb); !ok {
			return false
		}
	}
	return true
}

// demean subtracts the group mean from every element and returns the
// number of groups.
func demean(v []float64, groups []string) int {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i, g := range groups {
		sums[g] += v[i]
		counts[g]++
	}
	for i, g := range groups {
		v[i] -= sums[g] / float64(counts[g])
	}
	return len(counts)
}

func constantZero(v []float64) bool {
	for _, x := range v {
		if math.Abs(x) > 1e-10 {
			return false
		}
	}
	return true
}
