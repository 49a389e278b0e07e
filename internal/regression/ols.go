package regression

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// maxCondition is the largest condition number of X'X accepted as
// non-singular.
const maxCondition = 1e15

var (
	// ErrSingular reports a rank-deficient design matrix.
	ErrSingular = errors.New("singular design matrix")
	// ErrTooFewObservations reports a design with no residual degrees of
	// freedom.
	ErrTooFewObservations = errors.New("not enough observations")
)

// OLSFit is an ordinary least squares fit with HC1 standard errors.
type OLSFit struct {
	Beta   []float64
	StdErr []float64
	Z      []float64
	P      []float64
	Resid  []float64

	N       int
	K       int
	DFResid int
	RSS     float64
	R2      float64
	AdjR2   float64
}

// FitOLS regresses y on the columns of x. absorbed is the number of
// parameters already swept out of x and y (fixed-effect groups) and only
// reduces the residual degrees of freedom. When x carries no intercept
// column (absorbed > 0) R² is computed around zero, which is the within R²
// for demeaned data.
func FitOLS(x *mat.Dense, y []float64, absorbed int) (*OLSFit, error) {
	n, k := x.Dims()
	if len(y) != n {
		return nil, fmt.Errorf("response has %d rows, design has %d", len(y), n)
	}
	df := n - k - absorbed
	if df <= 0 {
		return nil, fmt.Errorf("%w: %d observations for %d parameters", ErrTooFewObservations, n, k+absorbed)
	}

	chol, beta, err := solveNormal(x, y)
	if err != nil {
		return nil, err
	}

	var fitted mat.VecDense
	fitted.MulVec(x, beta)

	fit := &OLSFit{
		Beta:    make([]float64, k),
		StdErr:  make([]float64, k),
		Z:       make([]float64, k),
		P:       make([]float64, k),
		Resid:   make([]float64, n),
		N:       n,
		K:       k,
		DFResid: df,
	}
	for j := 0; j < k; j++ {
		fit.Beta[j] = beta.AtVec(j)
	}

	mean := 0.0
	if absorbed == 0 {
		for _, v := range y {
			mean += v
		}
		mean /= float64(n)
	}
	tss := 0.0
	for i := 0; i < n; i++ {
		e := y[i] - fitted.AtVec(i)
		fit.Resid[i] = e
		fit.RSS += e * e
		tss += (y[i] - mean) * (y[i] - mean)
	}
	if tss > 0 {
		fit.R2 = 1 - fit.RSS/tss
		dfTotal := float64(n - absorbed)
		if absorbed == 0 {
			dfTotal = float64(n - 1)
		}
		fit.AdjR2 = 1 - (1-fit.R2)*dfTotal/float64(df)
	}

	var bread mat.SymDense
	if err := chol.InverseTo(&bread); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	cov := hc1(x, fit.Resid, &bread, df)
	for j := 0; j < k; j++ {
		v := cov.At(j, j)
		if v <= 0 {
			fit.StdErr[j] = 0
			fit.Z[j] = math.NaN()
			fit.P[j] = math.NaN()
			continue
		}
		se := math.Sqrt(v)
		fit.StdErr[j] = se
		fit.Z[j] = fit.Beta[j] / se
		fit.P[j] = 2 * distuv.UnitNormal.Survival(math.Abs(fit.Z[j]))
	}
	return fit, nil
}

// LeastSquares returns the OLS coefficients and residuals of y on x
// without inference, so an exactly identified design (n == k) is
// accepted and fits with zero residuals.
func LeastSquares(x *mat.Dense, y []float64) (beta, resid []float64, err error) {
	n, k := x.Dims()
	if len(y) != n {
		return nil, nil, fmt.Errorf("response has %d rows, design has %d", len(y), n)
	}
	if n < k {
		return nil, nil, fmt.Errorf("%w: %d observations for %d parameters", ErrTooFewObservations, n, k)
	}

	_, b, err := solveNormal(x, y)
	if err != nil {
		return nil, nil, err
	}

	var fitted mat.VecDense
	fitted.MulVec(x, b)

	beta = make([]float64, k)
	for j := range beta {
		beta[j] = b.AtVec(j)
	}
	resid = make([]float64, n)
	for i := range resid {
		resid[i] = y[i] - fitted.AtVec(i)
	}
	return beta, resid, nil
}

// solveNormal solves X'X b = X'y through a Cholesky factorization, which is
// returned for the covariance computation.
func solveNormal(x *mat.Dense, y []float64) (*mat.Cholesky, *mat.VecDense, error) {
	n, _ := x.Dims()

	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())

	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok || chol.Cond() > maxCondition {
		return nil, nil, ErrSingular
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), mat.NewVecDense(n, y))

	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return &chol, &beta, nil
}

// hc1 returns n/df · (X'X)⁻¹ X' diag(e²) X (X'X)⁻¹.
func hc1(x *mat.Dense, resid []float64, bread *mat.SymDense, df int) *mat.Dense {
	n, k := x.Dims()

	scaled := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			scaled.Set(i, j, x.At(i, j)*resid[i])
		}
	}
	var meat mat.SymDense
	meat.SymOuterK(1, scaled.T())

	var tmp, cov mat.Dense
	tmp.Mul(bread, &meat)
	cov.Mul(&tmp, bread)
	cov.Scale(float64(n)/float64(df), &cov)
	return &cov
}
