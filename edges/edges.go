// Package edges supplies ionization-edge components for EELS models.
//
// A Provider turns an element, a shell and the microscope settings into a
// component. Physics tables (generalized oscillator strengths, tabulated
// cross-sections) are outside this module; the bundled AnalyticProvider
// builds component.Edge shapes from caller-supplied onset energies.
package edges

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/arloliu/eelsfit/component"
	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/internal/options"
)

// Microscope holds the acquisition settings an edge shape may depend on.
type Microscope struct {
	// BeamEnergy is the incident beam energy in keV.
	BeamEnergy float64
	// Convergence is the convergence semi-angle in mrad.
	Convergence float64
	// Collection is the collection semi-angle in mrad.
	Collection float64
}

// Validate checks that every setting is finite, the beam energy and the
// collection angle are positive and the convergence angle is not negative.
func (mp Microscope) Validate() error {
	for _, v := range []float64{mp.BeamEnergy, mp.Convergence, mp.Collection} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: microscope settings must be finite", errs.ErrInvalidConfig)
		}
	}
	if mp.BeamEnergy <= 0 {
		return fmt.Errorf("%w: beam energy %g keV", errs.ErrInvalidConfig, mp.BeamEnergy)
	}
	if mp.Collection <= 0 || mp.Convergence < 0 {
		return fmt.Errorf("%w: convergence %g mrad, collection %g mrad", errs.ErrInvalidConfig, mp.Convergence, mp.Collection)
	}

	return nil
}

// Provider builds edge components.
type Provider interface {
	EdgeComponent(element, shell string, mp Microscope) (component.Component, error)
}

// EdgeName returns the conventional component name of an edge, e.g. "Cu_L3".
func EdgeName(element, shell string) string {
	return normalizeElement(element) + "_" + strings.ToUpper(strings.TrimSpace(shell))
}

func normalizeElement(element string) string {
	element = strings.TrimSpace(element)
	if element == "" {
		return ""
	}

	return strings.ToUpper(element[:1]) + strings.ToLower(element[1:])
}

// Config holds the shape settings of an AnalyticProvider.
type Config struct {
	// Exponent is the power-law decay exponent past the onset.
	Exponent float64
	// Width is the smoothing width of the onset step in eV.
	Width float64
	// Convolved enables low-loss convolution on the built edges.
	Convolved bool
	// ShellExponents overrides Exponent per shell family ("K", "L", "M", ...).
	ShellExponents map[string]float64
}

// Option configures an AnalyticProvider.
type Option = options.Option[*Config]

// WithExponent sets the default decay exponent.
func WithExponent(r float64) Option {
	return options.New(func(c *Config) error {
		if !(r > 0) || math.IsInf(r, 0) {
			return fmt.Errorf("%w: exponent %g", errs.ErrInvalidConfig, r)
		}
		c.Exponent = r

		return nil
	})
}

// WithShellExponent sets the decay exponent of one shell family.
func WithShellExponent(family string, r float64) Option {
	return options.New(func(c *Config) error {
		if !(r > 0) || math.IsInf(r, 0) {
			return fmt.Errorf("%w: exponent %g for shell %q", errs.ErrInvalidConfig, r, family)
		}
		if c.ShellExponents == nil {
			c.ShellExponents = make(map[string]float64)
		}
		c.ShellExponents[strings.ToUpper(family)] = r

		return nil
	})
}

// WithWidth sets the onset smoothing width.
func WithWidth(w float64) Option {
	return options.New(func(c *Config) error {
		if !(w > 0) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: width %g", errs.ErrInvalidConfig, w)
		}
		c.Width = w

		return nil
	})
}

// WithConvolved marks built edges for low-loss convolution.
func WithConvolved(convolved bool) Option {
	return options.NoError(func(c *Config) { c.Convolved = convolved })
}

// AnalyticProvider builds component.Edge shapes at known onset energies.
// It is safe for concurrent use once created.
type AnalyticProvider struct {
	cfg    Config
	onsets map[string]float64
}

var _ Provider = (*AnalyticProvider)(nil)

// NewAnalyticProvider creates a provider from onset energies in eV keyed by
// edge name ("Cu_L3", "Zn_L3", "O_K"). Keys are normalized with EdgeName.
func NewAnalyticProvider(onsets map[string]float64, opts ...Option) (*AnalyticProvider, error) {
	cfg := Config{Exponent: 3, Width: 1}
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	p := &AnalyticProvider{cfg: cfg, onsets: make(map[string]float64, len(onsets))}
	for key, onset := range onsets {
		element, shell, ok := strings.Cut(key, "_")
		if !ok || strings.TrimSpace(element) == "" || strings.TrimSpace(shell) == "" {
			return nil, fmt.Errorf("%w: edge key %q, want Element_Shell", errs.ErrInvalidConfig, key)
		}
		if !(onset > 0) || math.IsInf(onset, 0) {
			return nil, fmt.Errorf("%w: onset %g eV for %s", errs.ErrInvalidConfig, onset, key)
		}
		p.onsets[EdgeName(element, shell)] = onset
	}

	return p, nil
}

// Edges returns the known edge names in sorted order.
func (p *AnalyticProvider) Edges() []string {
	names := make([]string, 0, len(p.onsets))
	for name := range p.onsets {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}

// Onset returns the onset energy of an edge.
func (p *AnalyticProvider) Onset(element, shell string) (float64, bool) {
	onset, ok := p.onsets[EdgeName(element, shell)]
	return onset, ok
}

// EdgeComponent returns a new *component.Edge named after the edge, with
// only its intensity free. The analytic shape does not depend on mp beyond
// validation.
//
// Returns:
//   - errs.ErrInvalidConfig: mp is not a usable microscope setting
//   - errs.ErrUnknownComponent: no onset is known for the edge
func (p *AnalyticProvider) EdgeComponent(element, shell string, mp Microscope) (component.Component, error) {
	if err := mp.Validate(); err != nil {
		return nil, err
	}

	name := EdgeName(element, shell)
	onset, ok := p.onsets[name]
	if !ok {
		return nil, fmt.Errorf("%w: no onset for edge %s", errs.ErrUnknownComponent, name)
	}

	edge := component.NewEdge(name, onset)
	if err := p.shape(edge, strings.ToUpper(strings.TrimSpace(shell))); err != nil {
		return nil, err
	}

	return edge, nil
}

func (p *AnalyticProvider) shape(edge *component.Edge, shell string) error {
	r := p.cfg.Exponent
	if family := shell[:1]; p.cfg.ShellExponents != nil {
		if v, ok := p.cfg.ShellExponents[family]; ok {
			r = v
		}
	}

	for _, set := range []struct {
		name  string
		value float64
	}{{"r", r}, {"width", p.cfg.Width}} {
		param, err := edge.Parameter(set.name)
		if err != nil {
			return err
		}
		if err := param.Set(set.value); err != nil {
			return err
		}
	}

	return edge.SetConvolved(p.cfg.Convolved)
}
