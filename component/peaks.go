package component

import (
	"fmt"
	"math"

	"github.com/arloliu/eelsfit/errs"
)

// Gaussian is an area-normalized peak:
//
//	f(E) = A / (sigma·√(2π)) · exp(−(E − centre)² / (2·sigma²))
type Gaussian struct {
	Base
}

// NewGaussian creates a Gaussian with A = 1, sigma = 1, centre = 0.
func NewGaussian(name string) *Gaussian {
	return &Gaussian{Base: NewBase(KindGaussian, name,
		NewParameter("A", 1),
		NewParameter("sigma", 1),
		NewParameter("centre", 0),
	)}
}

func (g *Gaussian) Function(energy, params, dst []float64) {
	a, sigma, centre := params[0], params[1], params[2]
	norm := a / (math.Abs(sigma) * math.Sqrt(2*math.Pi))
	for i, e := range energy {
		z := (e - centre) / sigma
		dst[i] = norm * math.Exp(-0.5*z*z)
	}
}

// Estimate uses the window moments: area, mean and standard deviation.
func (g *Gaussian) Estimate(energy, counts, _ []float64) ([]float64, error) {
	area, centre, sigma, err := moments(energy, counts)
	if err != nil {
		return nil, err
	}

	return []float64{area, sigma, centre}, nil
}

// Lorentzian is an area-normalized Cauchy peak:
//
//	f(E) = A/π · gamma / ((E − centre)² + gamma²)
type Lorentzian struct {
	Base
}

// NewLorentzian creates a Lorentzian with A = 1, gamma = 1, centre = 0.
func NewLorentzian(name string) *Lorentzian {
	return &Lorentzian{Base: NewBase(KindLorentzian, name,
		NewParameter("A", 1),
		NewParameter("gamma", 1),
		NewParameter("centre", 0),
	)}
}

func (l *Lorentzian) Function(energy, params, dst []float64) {
	a, gamma, centre := params[0], params[1], params[2]
	for i, e := range energy {
		d := e - centre
		dst[i] = a / math.Pi * gamma / (d*d + gamma*gamma)
	}
}

// Estimate takes the centre at the maximum, gamma as half the full width at
// half maximum and A from the window area.
func (l *Lorentzian) Estimate(energy, counts, _ []float64) ([]float64, error) {
	area, _, _, err := moments(energy, counts)
	if err != nil {
		return nil, err
	}

	peak := 0
	for i, c := range counts {
		if c > counts[peak] {
			peak = i
		}
	}

	half := counts[peak] / 2
	lo, hi := peak, peak
	for lo > 0 && counts[lo] > half {
		lo--
	}
	for hi < len(counts)-1 && counts[hi] > half {
		hi++
	}

	gamma := math.Abs(energy[hi]-energy[lo]) / 2
	if gamma == 0 {
		gamma = math.Abs(energy[len(energy)-1]-energy[0]) / float64(len(energy))
	}

	return []float64{area, gamma, energy[peak]}, nil
}

// moments returns the area, mean and standard deviation of a window treated
// as a density.
func moments(energy, counts []float64) (area, mean, std float64, err error) {
	if len(energy) < 2 || len(energy) != len(counts) {
		return 0, 0, 0, fmt.Errorf("%w: window of %d channels", errs.ErrNotEstimable, len(energy))
	}

	var sum, first float64
	for i, c := range counts {
		sum += c
		first += c * energy[i]
	}
	if sum <= 0 {
		return 0, 0, 0, fmt.Errorf("%w: window has no positive signal", errs.ErrNotEstimable)
	}

	mean = first / sum
	var second float64
	for i, c := range counts {
		d := energy[i] - mean
		second += c * d * d
	}

	step := (energy[len(energy)-1] - energy[0]) / float64(len(energy)-1)
	area = sum * math.Abs(step)
	std = math.Sqrt(math.Max(second/sum, 0))

	return area, mean, std, nil
}
