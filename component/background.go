package component

import (
	"fmt"
	"math"

	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/regression"
)

// Built-in component kinds.
const (
	KindOffset       = "Offset"
	KindPowerLaw     = "PowerLaw"
	KindExponential  = "Exponential"
	KindPolynomial   = "Polynomial"
	KindGaussian     = "Gaussian"
	KindLorentzian   = "Lorentzian"
	KindEdge         = "Edge"
	KindFixedPattern = "FixedPattern"
)

// Offset is a constant: f(E) = offset.
type Offset struct {
	Base
}

// NewOffset creates an Offset with offset = 0.
func NewOffset(name string) *Offset {
	return &Offset{Base: NewBase(KindOffset, name, NewParameter("offset", 0))}
}

func (o *Offset) Function(_, params, dst []float64) {
	for i := range dst {
		dst[i] = params[0]
	}
}

// Estimate sets offset to the window mean.
func (o *Offset) Estimate(_, counts, current []float64) ([]float64, error) {
	if len(counts) == 0 {
		return nil, fmt.Errorf("%w: empty window", errs.ErrNotEstimable)
	}

	sum := 0.0
	for _, c := range counts {
		sum += c
	}

	return []float64{sum / float64(len(counts))}, nil
}

// PowerLaw is the usual EELS background: f(E) = A·(E − origin)^(−r), zero for
// E ≤ origin. Parameters: A, r, origin (frozen).
type PowerLaw struct {
	Base
}

// NewPowerLaw creates a PowerLaw with A = 1e6, r = 3, origin = 0.
func NewPowerLaw(name string) *PowerLaw {
	return &PowerLaw{Base: NewBase(KindPowerLaw, name,
		NewParameter("A", 1e6),
		NewParameter("r", 3),
		NewFixedParameter("origin", 0),
	)}
}

func (p *PowerLaw) Function(energy, params, dst []float64) {
	a, r, origin := params[0], params[1], params[2]
	for i, e := range energy {
		x := e - origin
		if x <= 0 {
			dst[i] = 0
			continue
		}
		dst[i] = a * math.Pow(x, -r)
	}
}

// Estimate fits A and r on the window with a log-log least-squares line.
func (p *PowerLaw) Estimate(energy, counts, current []float64) ([]float64, error) {
	origin := current[2]
	x := make([]float64, len(energy))
	for i, e := range energy {
		x[i] = e - origin
	}

	m, err := regression.FitPower(x, counts)
	if err != nil {
		return nil, err
	}

	return []float64{m.Coefficients[0], m.Coefficients[1], origin}, nil
}

// Exponential is f(E) = A·e^(−E/tau).
type Exponential struct {
	Base
}

// NewExponential creates an Exponential with A = 1, tau = 1.
func NewExponential(name string) *Exponential {
	return &Exponential{Base: NewBase(KindExponential, name,
		NewParameter("A", 1),
		NewParameter("tau", 1),
	)}
}

func (x *Exponential) Function(energy, params, dst []float64) {
	a, tau := params[0], params[1]
	for i, e := range energy {
		dst[i] = a * math.Exp(-e/tau)
	}
}

// Estimate fits A and tau with a semi-log least-squares line.
func (x *Exponential) Estimate(energy, counts, _ []float64) ([]float64, error) {
	m, err := regression.FitExponential(energy, counts)
	if err != nil {
		return nil, err
	}

	return []float64{m.Coefficients[0], m.Coefficients[1]}, nil
}

// Polynomial is f(E) = a0 + a1·E + … + an·Eⁿ.
type Polynomial struct {
	Base
	order int
}

// NewPolynomial creates a Polynomial of the given order with all coefficients zero.
func NewPolynomial(name string, order int) *Polynomial {
	params := make([]*Parameter, order+1)
	for i := range params {
		params[i] = NewParameter(fmt.Sprintf("a%d", i), 0)
	}

	return &Polynomial{Base: NewBase(KindPolynomial, name, params...), order: order}
}

// Order returns the polynomial order.
func (p *Polynomial) Order() int { return p.order }

// Config returns [order].
func (p *Polynomial) Config() []float64 { return []float64{float64(p.order)} }

func (p *Polynomial) Function(energy, params, dst []float64) {
	for i, e := range energy {
		y := 0.0
		for j := len(params) - 1; j >= 0; j-- {
			y = y*e + params[j]
		}
		dst[i] = y
	}
}

// Estimate solves the least-squares polynomial on the window.
func (p *Polynomial) Estimate(energy, counts, _ []float64) ([]float64, error) {
	m, err := regression.FitPolynomial(energy, counts, p.order)
	if err != nil {
		return nil, err
	}

	return m.Coefficients, nil
}
