package regression

import (
	"fmt"
	"math"
	"strings"
)

// ModelType identifies a curve family.
type ModelType int

const (
	// ModelTypePower is y = A · x^(−r).
	ModelTypePower ModelType = iota
	// ModelTypeExponential is y = A · e^(−x/τ).
	ModelTypeExponential
	// ModelTypeLinear is y = a + b·x.
	ModelTypeLinear
	// ModelTypePolynomial is y = a0 + a1·x + … + an·xⁿ.
	ModelTypePolynomial
)

var modelTypeNames = map[ModelType]string{
	ModelTypePower:       "power",
	ModelTypeExponential: "exponential",
	ModelTypeLinear:      "linear",
	ModelTypePolynomial:  "polynomial",
}

// String returns the lower-case family name.
func (mt ModelType) String() string {
	if name, ok := modelTypeNames[mt]; ok {
		return name
	}

	return "unknown"
}

// ModelTypeFromString returns the ModelType for name, or ModelType(-1).
func ModelTypeFromString(name string) ModelType {
	for mt, n := range modelTypeNames {
		if n == strings.ToLower(name) {
			return mt
		}
	}

	return ModelType(-1)
}

// Estimator evaluates a fitted curve.
type Estimator interface {
	// Estimate returns the curve value at x.
	Estimate(x float64) float64
	// Type returns the curve family.
	Type() ModelType
	// Coefficients returns a copy of the coefficients.
	Coefficients() []float64
	// SetCoefficients replaces the coefficients; the count must match the family.
	SetCoefficients(coeffs []float64) error
}

// NewEstimator builds an estimator of modelType from coeffs.
func NewEstimator(modelType ModelType, coeffs []float64) (Estimator, error) {
	var e Estimator
	switch modelType {
	case ModelTypePower:
		e = &PowerEstimator{}
	case ModelTypeExponential:
		e = &ExponentialEstimator{}
	case ModelTypeLinear:
		e = &LinearEstimator{}
	case ModelTypePolynomial:
		e = &PolynomialEstimator{}
	default:
		return nil, fmt.Errorf("unknown model type %d", modelType)
	}

	if err := e.SetCoefficients(coeffs); err != nil {
		return nil, err
	}

	return e, nil
}

// PowerEstimator evaluates y = A · x^(−r). Coefficients: [A, r].
type PowerEstimator struct {
	A, R float64
}

// NewPowerEstimator creates a power-law estimator.
func NewPowerEstimator(a, r float64) *PowerEstimator {
	return &PowerEstimator{A: a, R: r}
}

// Estimate returns A·x^(−r), or NaN for x ≤ 0.
func (p *PowerEstimator) Estimate(x float64) float64 {
	if x <= 0 {
		return math.NaN()
	}

	return p.A * math.Pow(x, -p.R)
}

func (p *PowerEstimator) Type() ModelType { return ModelTypePower }

func (p *PowerEstimator) Coefficients() []float64 { return []float64{p.A, p.R} }

func (p *PowerEstimator) SetCoefficients(coeffs []float64) error {
	if len(coeffs) != 2 {
		return fmt.Errorf("power model expects 2 coefficients, got %d", len(coeffs))
	}
	p.A, p.R = coeffs[0], coeffs[1]

	return nil
}

// ExponentialEstimator evaluates y = A · e^(−x/τ). Coefficients: [A, τ].
type ExponentialEstimator struct {
	A, Tau float64
}

// NewExponentialEstimator creates an exponential-decay estimator.
func NewExponentialEstimator(a, tau float64) *ExponentialEstimator {
	return &ExponentialEstimator{A: a, Tau: tau}
}

// Estimate returns A·e^(−x/τ).
func (e *ExponentialEstimator) Estimate(x float64) float64 {
	return e.A * math.Exp(-x/e.Tau)
}

func (e *ExponentialEstimator) Type() ModelType { return ModelTypeExponential }

func (e *ExponentialEstimator) Coefficients() []float64 { return []float64{e.A, e.Tau} }

func (e *ExponentialEstimator) SetCoefficients(coeffs []float64) error {
	if len(coeffs) != 2 {
		return fmt.Errorf("exponential model expects 2 coefficients, got %d", len(coeffs))
	}
	e.A, e.Tau = coeffs[0], coeffs[1]

	return nil
}

// LinearEstimator evaluates y = a + b·x. Coefficients: [a, b].
type LinearEstimator struct {
	Intercept, Slope float64
}

// NewLinearEstimator creates a straight-line estimator.
func NewLinearEstimator(intercept, slope float64) *LinearEstimator {
	return &LinearEstimator{Intercept: intercept, Slope: slope}
}

// Estimate returns a + b·x.
func (l *LinearEstimator) Estimate(x float64) float64 {
	return l.Intercept + l.Slope*x
}

func (l *LinearEstimator) Type() ModelType { return ModelTypeLinear }

func (l *LinearEstimator) Coefficients() []float64 { return []float64{l.Intercept, l.Slope} }

func (l *LinearEstimator) SetCoefficients(coeffs []float64) error {
	if len(coeffs) != 2 {
		return fmt.Errorf("linear model expects 2 coefficients, got %d", len(coeffs))
	}
	l.Intercept, l.Slope = coeffs[0], coeffs[1]

	return nil
}

// PolynomialEstimator evaluates a polynomial with coefficients in ascending
// order: [a0, a1, …, an].
type PolynomialEstimator struct {
	coeffs []float64
}

// NewPolynomialEstimator creates a polynomial estimator from ascending coefficients.
func NewPolynomialEstimator(coeffs ...float64) *PolynomialEstimator {
	return &PolynomialEstimator{coeffs: append([]float64(nil), coeffs...)}
}

// Estimate evaluates the polynomial with Horner's scheme.
func (p *PolynomialEstimator) Estimate(x float64) float64 {
	y := 0.0
	for i := len(p.coeffs) - 1; i >= 0; i-- {
		y = y*x + p.coeffs[i]
	}

	return y
}

func (p *PolynomialEstimator) Type() ModelType { return ModelTypePolynomial }

func (p *PolynomialEstimator) Coefficients() []float64 { return append([]float64(nil), p.coeffs...) }

func (p *PolynomialEstimator) SetCoefficients(coeffs []float64) error {
	if len(coeffs) == 0 {
		return fmt.Errorf("polynomial model expects at least 1 coefficient")
	}
	p.coeffs = append(p.coeffs[:0], coeffs...)

	return nil
}
