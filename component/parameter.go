package component

import (
	"fmt"
	"math"
	"sync"

	"github.com/arloliu/eelsfit/errs"
)

// Guard vetoes mutations. A model installs itself as the guard of its
// components so configuration cannot change while a fit is running.
type Guard interface {
	CheckMutable() error
}

// Parameter is a named scalar of a component.
//
// Bounds default to (−Inf, +Inf) and a new parameter is free. Bounds only
// constrain fits run in bounded mode, but Set always rejects values outside
// them.
type Parameter struct {
	mu    sync.Mutex
	name  string
	value float64
	min   float64
	max   float64
	free  bool
	guard Guard
}

// ParameterState is a snapshot of a Parameter.
type ParameterState struct {
	Name  string
	Value float64
	Min   float64
	Max   float64
	Free  bool
}

// NewParameter creates a free, unbounded parameter.
func NewParameter(name string, value float64) *Parameter {
	return &Parameter{
		name:  name,
		value: value,
		min:   math.Inf(-1),
		max:   math.Inf(1),
		free:  true,
	}
}

// NewFixedParameter creates a frozen, unbounded parameter.
func NewFixedParameter(name string, value float64) *Parameter {
	p := NewParameter(name, value)
	p.free = false

	return p
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Value returns the current value.
func (p *Parameter) Value() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.value
}

// Bounds returns the declared lower and upper bounds.
func (p *Parameter) Bounds() (lo, hi float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.min, p.max
}

// Free reports whether the parameter is varied by fits.
func (p *Parameter) Free() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.free
}

// State returns a consistent snapshot of the parameter.
func (p *Parameter) State() ParameterState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ParameterState{Name: p.name, Value: p.value, Min: p.min, Max: p.max, Free: p.free}
}

// Set assigns v.
//
// Returns an *errs.OutOfBoundsError when v is NaN or outside the declared
// bounds, and errs.ErrModelBusy while the owning model is fitting.
func (p *Parameter) Set(v float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkGuard(); err != nil {
		return err
	}
	if math.IsNaN(v) || v < p.min || v > p.max {
		return &errs.OutOfBoundsError{Parameter: p.name, Value: v, Min: p.min, Max: p.max}
	}
	p.value = v

	return nil
}

// SetBounds declares [lo, hi]. Use ±Inf for an open side.
//
// The current value is left alone even if it now violates the bounds; the next
// bounded fit starts from the clamped value.
func (p *Parameter) SetBounds(lo, hi float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkGuard(); err != nil {
		return err
	}
	if math.IsNaN(lo) || math.IsNaN(hi) || lo > hi {
		return fmt.Errorf("%w: parameter %q [%g, %g]", errs.ErrInvalidBounds, p.name, lo, hi)
	}
	p.min, p.max = lo, hi

	return nil
}

// SetFree marks the parameter free or frozen.
func (p *Parameter) SetFree(free bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkGuard(); err != nil {
		return err
	}
	p.free = free

	return nil
}

// Freeze excludes the parameter from fits.
func (p *Parameter) Freeze() error { return p.SetFree(false) }

// Unfreeze includes the parameter in fits.
func (p *Parameter) Unfreeze() error { return p.SetFree(true) }

// Restore overwrites value, bounds and free flag from a snapshot without the
// value-in-bounds check. It is used when loading archives and when fetching a
// stored pixel, whose values may come from an unbounded fit.
func (p *Parameter) Restore(s ParameterState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkGuard(); err != nil {
		return err
	}
	if math.IsNaN(s.Min) || math.IsNaN(s.Max) || s.Min > s.Max {
		return fmt.Errorf("%w: parameter %q [%g, %g]", errs.ErrInvalidBounds, p.name, s.Min, s.Max)
	}
	p.value, p.min, p.max, p.free = s.Value, s.Min, s.Max, s.Free

	return nil
}

// Clamp projects v onto the declared bounds.
func (p *Parameter) Clamp(v float64) float64 {
	lo, hi := p.Bounds()
	return math.Max(lo, math.Min(hi, v))
}

func (p *Parameter) bindGuard(g Guard) {
	p.mu.Lock()
	p.guard = g
	p.mu.Unlock()
}

func (p *Parameter) checkGuard() error {
	if p.guard == nil {
		return nil
	}

	return p.guard.CheckMutable()
}
