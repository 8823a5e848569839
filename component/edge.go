package component

import (
	"math"
	"sync/atomic"
)

// Edge is an analytic ionization-edge shape: a smoothed step at the onset
// energy followed by a power-law decay.
//
//	f(E) = intensity · (1/2 + atan((E − onset)/width)/π) · (E/onset)^(−r)
//
// Only intensity is free by default. f is zero for E ≤ 0.
type Edge struct {
	Base
	convolved atomic.Bool
}

// NewEdge creates an edge at onset with r = 3 and width = 1.
func NewEdge(name string, onset float64) *Edge {
	return &Edge{Base: NewBase(KindEdge, name,
		NewParameter("intensity", 1),
		NewFixedParameter("onset", onset),
		NewFixedParameter("r", 3),
		NewFixedParameter("width", 1),
	)}
}

func (e *Edge) Function(energy, params, dst []float64) {
	intensity, onset, r, width := params[0], params[1], params[2], params[3]
	if width <= 0 {
		width = math.SmallestNonzeroFloat64
	}

	for i, x := range energy {
		if x <= 0 || onset <= 0 {
			dst[i] = 0
			continue
		}
		step := 0.5 + math.Atan((x-onset)/width)/math.Pi
		dst[i] = intensity * step * math.Pow(x/onset, -r)
	}
}

// Convolved reports whether the edge is convolved with the model's low-loss spectrum.
func (e *Edge) Convolved() bool { return e.convolved.Load() }

// SetConvolved toggles low-loss convolution.
func (e *Edge) SetConvolved(convolved bool) error {
	if err := e.checkMutable(); err != nil {
		return err
	}
	e.convolved.Store(convolved)

	return nil
}
