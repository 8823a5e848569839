// Package model sums components into a model of a spectrum image and fits it
// at every navigation position.
//
// A Model owns its components, a channel mask (the signal range) and a
// per-pixel store holding, for every parameter, a value, a standard error and
// an is-set flag at each navigation position. Fits never read the Parameter
// values of another pixel: a pixel starts from its stored values where set and
// from the current Parameter values otherwise.
//
// Staged fitting is composed by the caller from SetComponentActiveValue,
// Parameter.Freeze, SetSignalRange and Multifit:
//
//	m.SetComponentActiveValue(false)
//	m.SetComponentActiveValue(true, "background")
//	m.SetSignalRange(750, 915)
//	m.Multifit(ctx, true)
//	m.ResetSignalRange()
//	...
//
// While Multifit or Fit is running the model rejects every mutation, of its
// own configuration and of its components and parameters, with
// errs.ErrModelBusy.
package model

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/arloliu/eelsfit/component"
	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/fit"
	"github.com/arloliu/eelsfit/internal/options"
	"github.com/arloliu/eelsfit/signal"
)

// Model is an ordered sum of components approximating a spectrum image.
type Model struct {
	mu   sync.RWMutex
	busy atomic.Bool
	cfg  Config

	target  *signal.Signal
	axis    signal.Axis
	nav     []int
	navAxes []signal.Axis
	navSize int

	components []component.Component
	byName     map[string]int
	// maps[c][p] is the per-pixel store of parameter p of component c.
	maps [][]*ParameterMap
	mask []bool
}

var _ component.Guard = (*Model)(nil)

// New creates a model of target.
//
// Returns:
//   - *errs.AxisMismatchError: an AxisBound component or the low-loss signal
//     disagrees with the target's energy axis
//   - errs.ErrDuplicateComponent: two components share a name
func New(target *signal.Signal, components []component.Component, opts ...Option) (*Model, error) {
	if target == nil {
		return nil, errs.ErrNoTarget
	}

	m, err := newModel(target.Axis(), target.NavShape(), components, opts)
	if err != nil {
		return nil, err
	}
	m.target = target
	m.navAxes = target.NavigationAxes()

	return m, nil
}

// NewDetached creates a model without a target signal, for example when
// loading an archive. Per-pixel queries work; fitting requires Attach.
func NewDetached(axis signal.Axis, nav []int, components []component.Component, opts ...Option) (*Model, error) {
	for i, n := range nav {
		if n <= 0 {
			return nil, fmt.Errorf("%w: navigation dimension %d has size %d", errs.ErrInvalidShape, i, n)
		}
	}

	return newModel(axis, nav, components, opts)
}

func newModel(axis signal.Axis, nav []int, components []component.Component, opts []Option) (*Model, error) {
	if err := axis.Validate(); err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}
	if cfg.Fitter == nil {
		lm, err := fit.NewLevenbergMarquardt()
		if err != nil {
			return nil, err
		}
		cfg.Fitter = lm
	}

	navSize := 1
	for _, n := range nav {
		navSize *= n
	}

	m := &Model{
		cfg:        cfg,
		axis:       axis,
		nav:        slices.Clone(nav),
		navSize:    navSize,
		components: make([]component.Component, 0, len(components)),
		byName:     make(map[string]int, len(components)),
		mask:       make([]bool, axis.Size),
	}
	for i := range m.mask {
		m.mask[i] = true
	}

	if cfg.LowLoss != nil {
		if err := checkLowLoss(cfg.LowLoss, axis, nav); err != nil {
			return nil, err
		}
	}

	for _, c := range components {
		if err := m.add(c); err != nil {
			return nil, err
		}
	}
	for _, c := range m.components {
		c.BindGuard(m)
	}

	return m, nil
}

func (m *Model) add(c component.Component) error {
	if c == nil {
		return fmt.Errorf("%w: nil component", errs.ErrInvalidConfig)
	}
	if _, ok := m.byName[c.Name()]; ok {
		return fmt.Errorf("%w: %q", errs.ErrDuplicateComponent, c.Name())
	}
	if ab, ok := c.(component.AxisBound); ok && !ab.Axis().Equal(m.axis) {
		return &errs.AxisMismatchError{
			Component: c.Name(),
			Reason:    fmt.Sprintf("component axis is %s, signal axis is %s", ab.Axis().Describe(), m.axis.Describe()),
		}
	}

	params := c.Parameters()
	maps := make([]*ParameterMap, len(params))
	for i, p := range params {
		maps[i] = newParameterMap(m.navSize, p.Value())
	}

	m.byName[c.Name()] = len(m.components)
	m.components = append(m.components, c)
	m.maps = append(m.maps, maps)

	return nil
}

func checkLowLoss(ll *signal.Signal, axis signal.Axis, nav []int) error {
	llAxis := ll.Axis()
	if llAxis.Size != axis.Size || math.Abs(llAxis.Scale-axis.Scale) > 1e-9*math.Abs(axis.Scale) {
		return &errs.AxisMismatchError{
			Component: "low-loss",
			Reason:    fmt.Sprintf("low-loss axis is %s, signal axis is %s", llAxis.Describe(), axis.Describe()),
		}
	}
	if ll.NavSize() != 1 && !slices.Equal(ll.NavShape(), nav) {
		return &errs.AxisMismatchError{
			Component: "low-loss",
			Reason:    fmt.Sprintf("low-loss navigation shape %v, signal navigation shape %v", ll.NavShape(), nav),
		}
	}

	return nil
}

// CheckMutable returns errs.ErrModelBusy while a fit is running.
func (m *Model) CheckMutable() error {
	if m.busy.Load() {
		return errs.ErrModelBusy
	}

	return nil
}

// Busy reports whether a fit is running.
func (m *Model) Busy() bool { return m.busy.Load() }

// Target returns the signal being modelled, or nil for a detached model.
func (m *Model) Target() *signal.Signal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.target
}

// Attach binds a detached model to target. The target must have the model's
// energy axis and navigation shape.
func (m *Model) Attach(target *signal.Signal) error {
	if target == nil {
		return errs.ErrNoTarget
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.CheckMutable(); err != nil {
		return err
	}
	if !target.Axis().Equal(m.axis) {
		return &errs.AxisMismatchError{
			Component: "target",
			Reason:    fmt.Sprintf("signal axis is %s, model axis is %s", target.Axis().Describe(), m.axis.Describe()),
		}
	}
	if !slices.Equal(target.NavShape(), m.nav) {
		return fmt.Errorf("%w: signal navigation shape %v, model navigation shape %v", errs.ErrInvalidShape, target.NavShape(), m.nav)
	}

	m.target = target
	m.navAxes = target.NavigationAxes()

	return nil
}

// Axis returns the energy axis.
func (m *Model) Axis() signal.Axis { return m.axis }

// NavShape returns a copy of the navigation shape.
func (m *Model) NavShape() []int { return slices.Clone(m.nav) }

// NavSize returns the number of navigation positions.
func (m *Model) NavSize() int { return m.navSize }

// NavigationAxes returns the navigation axes of the attached signal, or nil.
func (m *Model) NavigationAxes() []signal.Axis {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.navAxes)
}

// LowLoss returns the low-loss signal, or nil.
func (m *Model) LowLoss() *signal.Signal { return m.cfg.LowLoss }

// Components returns the components in model order.
func (m *Model) Components() []component.Component {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.components)
}

// Component looks a component up by name.
func (m *Model) Component(name string) (component.Component, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownComponent, name)
	}

	return m.components[i], nil
}

// Parameter looks a parameter up by component and parameter name.
func (m *Model) Parameter(comp, param string) (*component.Parameter, error) {
	c, err := m.Component(comp)
	if err != nil {
		return nil, err
	}

	return c.Parameter(param)
}

// SetComponentActiveValue activates or deactivates the named components, or
// all components when no name is given. Unknown names fail before anything
// changes.
func (m *Model) SetComponentActiveValue(active bool, names ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.CheckMutable(); err != nil {
		return err
	}

	targets, err := m.lookup(names)
	if err != nil {
		return err
	}
	for _, c := range targets {
		if err := c.SetActive(active); err != nil {
			return err
		}
	}

	return nil
}

// SetParametersFree frees or freezes the named parameters of a component, or
// all of its parameters when no name is given.
func (m *Model) SetParametersFree(free bool, comp string, params ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.CheckMutable(); err != nil {
		return err
	}

	i, ok := m.byName[comp]
	if !ok {
		return fmt.Errorf("%w: %q", errs.ErrUnknownComponent, comp)
	}
	c := m.components[i]

	targets := c.Parameters()
	if len(params) > 0 {
		targets = make([]*component.Parameter, 0, len(params))
		for _, name := range params {
			p, err := c.Parameter(name)
			if err != nil {
				return err
			}
			targets = append(targets, p)
		}
	}

	for _, p := range targets {
		if err := p.SetFree(free); err != nil {
			return err
		}
	}

	return nil
}

func (m *Model) lookup(names []string) ([]component.Component, error) {
	if len(names) == 0 {
		return m.components, nil
	}

	out := make([]component.Component, 0, len(names))
	for _, name := range names {
		i, ok := m.byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", errs.ErrUnknownComponent, name)
		}
		out = append(out, m.components[i])
	}

	return out, nil
}

// slot resolves a component and parameter name to store indices.
func (m *Model) slot(comp, param string) (ci, pi int, err error) {
	ci, ok := m.byName[comp]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", errs.ErrUnknownComponent, comp)
	}

	for i, p := range m.components[ci].Parameters() {
		if p.Name() == param {
			return ci, i, nil
		}
	}

	return 0, 0, fmt.Errorf("%w: %q has no parameter %q", errs.ErrUnknownParameter, comp, param)
}
