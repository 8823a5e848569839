// Package component defines model components: named parametric functions of
// energy that are summed to form a model spectrum.
//
// A Component evaluates through Function, a pure function of the energy axis
// and an explicit parameter vector ordered like Parameters(). Fit workers call
// it concurrently with per-pixel vectors, so implementations must not read
// Parameter values inside Function.
//
// Built-in kinds are Offset, PowerLaw, Exponential, Polynomial, Gaussian,
// Lorentzian, Edge and FixedPattern. Further kinds can be added with Register
// so archives containing them can be loaded.
package component

import (
	"fmt"
	"sync"

	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/signal"
)

// Component is a parametric contribution to a model spectrum.
type Component interface {
	// Name is unique within a model.
	Name() string
	// Kind names the registered factory that can rebuild the component.
	Kind() string
	// Parameters returns the parameters in a fixed order.
	Parameters() []*Parameter
	// Parameter looks a parameter up by name.
	Parameter(name string) (*Parameter, error)
	// Active reports whether the component contributes to the model sum.
	Active() bool
	// SetActive includes or excludes the component.
	SetActive(active bool) error
	// Function writes the component evaluated at energy into dst using the
	// parameter vector params. len(dst) == len(energy).
	Function(energy, params, dst []float64)
	// BindGuard installs the guard consulted before every mutation.
	BindGuard(g Guard)
}

// AxisBound is implemented by components tied to a specific energy axis.
type AxisBound interface {
	Axis() signal.Axis
}

// Estimator is implemented by components that can derive parameter values
// from a spectrum window in closed form.
type Estimator interface {
	// Estimate returns a full parameter vector, ordered like Parameters(), for
	// the window (energy, counts). Parameters it cannot estimate keep the values
	// in current.
	Estimate(energy, counts, current []float64) ([]float64, error)
}

// Configurable is implemented by components whose construction needs more
// than a name, for example a polynomial order or a tabulated pattern.
type Configurable interface {
	Config() []float64
}

// Convolvable is implemented by components that are convolved with the
// low-loss spectrum when the model has one.
type Convolvable interface {
	Convolved() bool
	SetConvolved(convolved bool) error
}

// Base carries the state shared by all components. Built-ins embed it.
type Base struct {
	name   string
	kind   string
	params []*Parameter
	index  map[string]int
	state  *baseState
}

type baseState struct {
	mu     sync.Mutex
	active bool
	guard  Guard
}

// NewBase creates an active component base.
func NewBase(kind, name string, params ...*Parameter) Base {
	index := make(map[string]int, len(params))
	for i, p := range params {
		index[p.Name()] = i
	}

	return Base{name: name, kind: kind, params: params, index: index, state: &baseState{active: true}}
}

// Name returns the component name.
func (b *Base) Name() string { return b.name }

// Kind returns the registered kind.
func (b *Base) Kind() string { return b.kind }

// Parameters returns the parameters in declaration order.
func (b *Base) Parameters() []*Parameter { return b.params }

// Parameter returns the named parameter or errs.ErrUnknownParameter.
func (b *Base) Parameter(name string) (*Parameter, error) {
	i, ok := b.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q has no parameter %q", errs.ErrUnknownParameter, b.name, name)
	}

	return b.params[i], nil
}

// Active reports whether the component is active.
func (b *Base) Active() bool {
	b.state.mu.Lock()
	defer b.state.mu.Unlock()

	return b.state.active
}

// SetActive includes or excludes the component from the model sum.
func (b *Base) SetActive(active bool) error {
	b.state.mu.Lock()
	defer b.state.mu.Unlock()

	if b.state.guard != nil {
		if err := b.state.guard.CheckMutable(); err != nil {
			return err
		}
	}
	b.state.active = active

	return nil
}

// BindGuard installs g on the component and all its parameters.
func (b *Base) BindGuard(g Guard) {
	b.state.mu.Lock()
	b.state.guard = g
	b.state.mu.Unlock()

	for _, p := range b.params {
		p.bindGuard(g)
	}
}

// checkMutable consults the guard; embedding components use it for their own setters.
func (b *Base) checkMutable() error {
	b.state.mu.Lock()
	g := b.state.guard
	b.state.mu.Unlock()

	if g == nil {
		return nil
	}

	return g.CheckMutable()
}

// Values returns the current parameter values of c in order.
func Values(c Component) []float64 {
	params := c.Parameters()
	out := make([]float64, len(params))
	for i, p := range params {
		out[i] = p.Value()
	}

	return out
}

// Evaluate returns c evaluated at energy with its current parameter values.
func Evaluate(c Component, energy []float64) []float64 {
	dst := make([]float64, len(energy))
	c.Function(energy, Values(c), dst)

	return dst
}

// ApplyEstimate runs the component's estimator on a window and assigns the
// result, clamped to each parameter's bounds.
func ApplyEstimate(c Component, energy, counts []float64) error {
	est, ok := c.(Estimator)
	if !ok {
		return fmt.Errorf("%w: %s %q", errs.ErrNotEstimable, c.Kind(), c.Name())
	}

	values, err := est.Estimate(energy, counts, Values(c))
	if err != nil {
		return err
	}

	for i, p := range c.Parameters() {
		if err := p.Set(p.Clamp(values[i])); err != nil {
			return err
		}
	}

	return nil
}
