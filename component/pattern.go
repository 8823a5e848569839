package component

import (
	"fmt"
	"math"
	"slices"

	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/signal"
)

// FixedPattern scales and shifts a tabulated spectrum recorded on a fixed axis,
// for example a reference spectrum of a known phase.
//
//	f(E) = yscale · pattern(E − shift)
//
// pattern is linearly interpolated and zero outside its axis.
type FixedPattern struct {
	Base
	axis    signal.Axis
	pattern []float64
}

// NewFixedPattern creates a pattern component bound to axis.
//
// Returns errs.ErrInvalidShape when len(pattern) != axis.Size.
func NewFixedPattern(name string, axis signal.Axis, pattern []float64) (*FixedPattern, error) {
	if err := axis.Validate(); err != nil {
		return nil, err
	}
	if len(pattern) != axis.Size {
		return nil, fmt.Errorf("%w: pattern %q has %d values for an axis of %d", errs.ErrInvalidShape, name, len(pattern), axis.Size)
	}

	return &FixedPattern{
		Base: NewBase(KindFixedPattern, name,
			NewParameter("yscale", 1),
			NewParameter("shift", 0),
		),
		axis:    axis,
		pattern: slices.Clone(pattern),
	}, nil
}

func fixedPatternFromConfig(name string, config []float64) (Component, error) {
	if len(config) < 3 {
		return nil, fmt.Errorf("%w: pattern %q config too short", errs.ErrInvalidConfig, name)
	}

	size := int(config[2])
	if float64(size) != config[2] || len(config)-3 != size {
		return nil, fmt.Errorf("%w: pattern %q config size mismatch", errs.ErrInvalidConfig, name)
	}

	return NewFixedPattern(name, signal.NewEnergyAxis(config[0], config[1], size), config[3:])
}

// Axis returns the axis the pattern was recorded on.
func (p *FixedPattern) Axis() signal.Axis { return p.axis }

// Pattern returns a copy of the tabulated values.
func (p *FixedPattern) Pattern() []float64 { return slices.Clone(p.pattern) }

// Config returns [offset, scale, size, pattern...].
func (p *FixedPattern) Config() []float64 {
	out := make([]float64, 0, 3+len(p.pattern))
	out = append(out, p.axis.Offset, p.axis.Scale, float64(p.axis.Size))

	return append(out, p.pattern...)
}

func (p *FixedPattern) Function(energy, params, dst []float64) {
	yscale, shift := params[0], params[1]
	n := len(p.pattern)

	for i, e := range energy {
		pos := (e - shift - p.axis.Offset) / p.axis.Scale
		if math.IsNaN(pos) || pos < 0 || pos > float64(n-1) {
			dst[i] = 0
			continue
		}

		lo := int(pos)
		if lo >= n-1 {
			dst[i] = yscale * p.pattern[n-1]
			continue
		}
		frac := pos - float64(lo)
		dst[i] = yscale * (p.pattern[lo]*(1-frac) + p.pattern[lo+1]*frac)
	}
}

// Estimate sets yscale by least squares against the unshifted pattern.
func (p *FixedPattern) Estimate(energy, counts, current []float64) ([]float64, error) {
	ref := make([]float64, len(energy))
	p.Function(energy, []float64{1, current[1]}, ref)

	var num, den float64
	for i, r := range ref {
		num += r * counts[i]
		den += r * r
	}
	if den == 0 {
		return nil, fmt.Errorf("%w: pattern %q does not overlap the window", errs.ErrNotEstimable, p.Name())
	}

	return []float64{num / den, current[1]}, nil
}
