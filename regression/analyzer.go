package regression

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/internal/options"
)

// Analyze fits every configured candidate to (x, y) and ranks them by R².
//
// Candidates that cannot be fitted (for example a power law on data with no
// positive samples) are left out; Analyze fails only when none can be fitted.
//
// Parameters:
//   - x, y: samples of equal length, at least two
//   - opts: WithCandidates, WithPolynomialOrder
//
// Returns:
//   - *Result: candidates ranked best first
//   - error: on mismatched lengths, too few samples or invalid options
func Analyze(x, y []float64, opts ...AnalyzeOption) (*Result, error) {
	cfg := defaultAnalyzeConfig()
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}
	if err := checkSamples(x, y, 2); err != nil {
		return nil, err
	}

	models := make([]*Model, 0, len(cfg.Candidates))
	var lastErr error
	for _, mt := range cfg.Candidates {
		var (
			m   *Model
			err error
		)
		switch mt {
		case ModelTypePower:
			m, err = FitPower(x, y)
		case ModelTypeExponential:
			m, err = FitExponential(x, y)
		case ModelTypeLinear:
			m, err = FitLinear(x, y)
		case ModelTypePolynomial:
			m, err = FitPolynomial(x, y, cfg.PolynomialOrder)
		default:
			err = fmt.Errorf("unknown model type %d", mt)
		}
		if err != nil {
			lastErr = err
			continue
		}
		models = append(models, m)
	}

	if len(models) == 0 {
		return nil, fmt.Errorf("no candidate model could be fitted: %w", lastErr)
	}

	slices.SortStableFunc(models, func(a, b *Model) int {
		switch {
		case a.RSquared > b.RSquared:
			return -1
		case a.RSquared < b.RSquared:
			return 1
		default:
			return 0
		}
	})

	return &Result{BestFit: models[0], AllModels: models}, nil
}

// FitPower fits y = A · x^(−r) on the samples with x > 0 and y > 0.
//
// Returns:
//   - *Model: coefficients [A, r]
//   - error: errs.ErrNotEstimable when fewer than two usable samples remain
func FitPower(x, y []float64) (*Model, error) {
	if err := checkSamples(x, y, 0); err != nil {
		return nil, err
	}

	lx := make([]float64, 0, len(x))
	ly := make([]float64, 0, len(y))
	for i := range x {
		if x[i] > 0 && y[i] > 0 {
			lx = append(lx, math.Log(x[i]))
			ly = append(ly, math.Log(y[i]))
		}
	}

	intercept, slope, err := linearLeastSquares(lx, ly)
	if err != nil {
		return nil, fmt.Errorf("power fit: %w", err)
	}

	a, r := math.Exp(intercept), -slope
	est := NewPowerEstimator(a, r)
	r2, rmse := goodness(x, y, est)

	return &Model{
		Type:         ModelTypePower,
		Coefficients: []float64{a, r},
		RSquared:     r2,
		RMSE:         rmse,
		Formula:      fmt.Sprintf("y = %.4g * x^-%.4f", a, r),
		Estimator:    est,
	}, nil
}

// FitExponential fits y = A · e^(−x/τ) on the samples with y > 0.
//
// Returns:
//   - *Model: coefficients [A, τ]; τ is +Inf for a flat signal
//   - error: errs.ErrNotEstimable when fewer than two usable samples remain
func FitExponential(x, y []float64) (*Model, error) {
	if err := checkSamples(x, y, 0); err != nil {
		return nil, err
	}

	xs := make([]float64, 0, len(x))
	ly := make([]float64, 0, len(y))
	for i := range x {
		if y[i] > 0 {
			xs = append(xs, x[i])
			ly = append(ly, math.Log(y[i]))
		}
	}

	intercept, slope, err := linearLeastSquares(xs, ly)
	if err != nil {
		return nil, fmt.Errorf("exponential fit: %w", err)
	}

	a, tau := math.Exp(intercept), -1/slope
	est := NewExponentialEstimator(a, tau)
	r2, rmse := goodness(x, y, est)

	return &Model{
		Type:         ModelTypeExponential,
		Coefficients: []float64{a, tau},
		RSquared:     r2,
		RMSE:         rmse,
		Formula:      fmt.Sprintf("y = %.4g * e^(-x/%.4g)", a, tau),
		Estimator:    est,
	}, nil
}

// FitLinear fits y = a + b·x.
//
// Returns:
//   - *Model: coefficients [a, b]
//   - error: errs.ErrNotEstimable for fewer than two samples or constant x
func FitLinear(x, y []float64) (*Model, error) {
	if err := checkSamples(x, y, 0); err != nil {
		return nil, err
	}

	a, b, err := linearLeastSquares(x, y)
	if err != nil {
		return nil, fmt.Errorf("linear fit: %w", err)
	}

	est := NewLinearEstimator(a, b)
	r2, rmse := goodness(x, y, est)

	return &Model{
		Type:         ModelTypeLinear,
		Coefficients: []float64{a, b},
		RSquared:     r2,
		RMSE:         rmse,
		Formula:      fmt.Sprintf("y = %.4g + %.4g * x", a, b),
		Estimator:    est,
	}, nil
}

// FitPolynomial fits a polynomial of the given order by QR-decomposing the
// Vandermonde matrix.
//
// Returns:
//   - *Model: ascending coefficients [a0, …, a_order]
//   - error: errs.ErrNotEstimable when there are not more samples than
//     coefficients or the system is rank deficient
func FitPolynomial(x, y []float64, order int) (*Model, error) {
	if order < 0 {
		return nil, fmt.Errorf("polynomial order must be >= 0, got %d", order)
	}
	if err := checkSamples(x, y, 0); err != nil {
		return nil, err
	}
	if len(x) <= order {
		return nil, fmt.Errorf("%w: %d samples for %d coefficients", errs.ErrNotEstimable, len(x), order+1)
	}

	a := vandermonde(x, order)
	b := mat.NewVecDense(len(y), append([]float64(nil), y...))
	c := mat.NewVecDense(order+1, nil)

	var qr mat.QR
	qr.Factorize(a)
	if err := qr.SolveVecTo(c, false, b); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrNotEstimable, err)
	}

	coeffs := make([]float64, order+1)
	for i := range coeffs {
		coeffs[i] = c.AtVec(i)
	}

	est := NewPolynomialEstimator(coeffs...)
	r2, rmse := goodness(x, y, est)

	terms := make([]string, len(coeffs))
	for i, ci := range coeffs {
		switch i {
		case 0:
			terms[i] = fmt.Sprintf("%.4g", ci)
		case 1:
			terms[i] = fmt.Sprintf("%.4g*x", ci)
		default:
			terms[i] = fmt.Sprintf("%.4g*x^%d", ci, i)
		}
	}

	return &Model{
		Type:         ModelTypePolynomial,
		Coefficients: coeffs,
		RSquared:     r2,
		RMSE:         rmse,
		Formula:      "y = " + strings.Join(terms, " + "),
		Estimator:    est,
	}, nil
}

func vandermonde(x []float64, order int) *mat.Dense {
	v := mat.NewDense(len(x), order+1, nil)
	for i, xi := range x {
		p := 1.0
		for j := 0; j <= order; j++ {
			v.Set(i, j, p)
			p *= xi
		}
	}

	return v
}

// linearLeastSquares returns the intercept and slope of the least-squares line.
func linearLeastSquares(x, y []float64) (intercept, slope float64, err error) {
	n := len(x)
	if n < 2 {
		return 0, 0, fmt.Errorf("%w: %d usable samples", errs.ErrNotEstimable, n)
	}

	meanX := floats.Sum(x) / float64(n)
	meanY := floats.Sum(y) / float64(n)

	var sxx, sxy float64
	for i := range x {
		dx := x[i] - meanX
		sxx += dx * dx
		sxy += dx * (y[i] - meanY)
	}
	if sxx == 0 {
		return 0, 0, fmt.Errorf("%w: constant abscissa", errs.ErrNotEstimable)
	}

	slope = sxy / sxx

	return meanY - slope*meanX, slope, nil
}

// goodness returns R² and RMSE of est on all samples.
func goodness(x, y []float64, est Estimator) (r2, rmse float64) {
	if len(y) == 0 {
		return 0, 0
	}

	meanY := floats.Sum(y) / float64(len(y))
	var ssTot, ssRes float64
	for i := range x {
		res := y[i] - est.Estimate(x[i])
		ssRes += res * res
		ssTot += (y[i] - meanY) * (y[i] - meanY)
	}

	rmse = math.Sqrt(ssRes / float64(len(y)))
	switch {
	case ssTot == 0 && ssRes == 0:
		r2 = 1
	case ssTot == 0 || math.IsNaN(ssRes):
		r2 = 0
	default:
		r2 = 1 - ssRes/ssTot
	}

	return r2, rmse
}

func checkSamples(x, y []float64, minLen int) error {
	if len(x) != len(y) {
		return fmt.Errorf("%w: %d x values vs %d y values", errs.ErrDimensionMismatch, len(x), len(y))
	}
	if len(x) < minLen {
		return fmt.Errorf("%w: %d samples, need %d", errs.ErrNotEstimable, len(x), minLen)
	}

	return nil
}
