package plan

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/arloliu/eelsfit/component"
	"github.com/arloliu/eelsfit/edges"
	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/fit"
	"github.com/arloliu/eelsfit/model"
	"github.com/arloliu/eelsfit/signal"
)

// Fitter methods.
const (
	MethodLM         = "lm"
	MethodNelderMead = "nelder-mead"
)

// Validate checks names, references and ranges without building anything.
func (p *Plan) Validate() error {
	names := make(map[string]bool, len(p.Components)+len(p.Edges))
	add := func(name string) error {
		if name == "" {
			return fmt.Errorf("%w: empty component name", errs.ErrInvalidConfig)
		}
		if names[name] {
			return fmt.Errorf("%w: %q", errs.ErrDuplicateComponent, name)
		}
		names[name] = true

		return nil
	}

	for _, c := range p.Components {
		if err := add(c.Name); err != nil {
			return err
		}
	}
	for _, e := range p.Edges {
		if err := add(edges.EdgeName(e.Element, e.Shell)); err != nil {
			return err
		}
	}
	if len(p.Edges) > 0 && p.Microscope == nil {
		return fmt.Errorf("%w: edges need a microscope block", errs.ErrInvalidConfig)
	}
	if p.Fitter != nil {
		if _, err := p.Fitter.options(); err != nil {
			return err
		}
	}

	stages := make(map[string]bool, len(p.Stages))
	for _, s := range p.Stages {
		if stages[s.Name] {
			return fmt.Errorf("%w: duplicate stage %q", errs.ErrInvalidConfig, s.Name)
		}
		stages[s.Name] = true

		if err := s.validate(names); err != nil {
			return fmt.Errorf("stage %q: %w", s.Name, err)
		}
	}

	return nil
}

func (s *StageBlock) validate(names map[string]bool) error {
	if s.SignalRange != nil {
		if _, _, err := window(s.SignalRange); err != nil {
			return err
		}
	}
	for _, name := range s.Active {
		if !names[name] {
			return fmt.Errorf("%w: %q", errs.ErrUnknownComponent, name)
		}
	}
	for _, ref := range append(append([]string(nil), s.Freeze...), s.Free...) {
		if comp, _ := splitRef(ref, names); !names[comp] {
			return fmt.Errorf("%w: %q", errs.ErrUnknownComponent, ref)
		}
	}
	for _, e := range s.Estimates {
		if !names[e.Component] {
			return fmt.Errorf("%w: %q", errs.ErrUnknownComponent, e.Component)
		}
		if _, _, err := window(e.Range); err != nil {
			return err
		}
	}

	return nil
}

func window(r []float64) (lo, hi float64, err error) {
	if len(r) != 2 || math.IsNaN(r[0]) || math.IsNaN(r[1]) || r[0] > r[1] {
		return 0, 0, fmt.Errorf("%w: %v, want [lo, hi]", errs.ErrInvalidRange, r)
	}

	return r[0], r[1], nil
}

// splitRef resolves "comp" or "comp.param". A known component name wins over
// a dotted split.
func splitRef(ref string, names map[string]bool) (comp, param string) {
	if names[ref] {
		return ref, ""
	}
	if c, p, ok := strings.Cut(ref, "."); ok {
		return c, p
	}

	return ref, ""
}

func (f *FitterBlock) options() ([]fit.Option, error) {
	switch f.Method {
	case "", MethodLM, MethodNelderMead:
	default:
		return nil, fmt.Errorf("%w: fitter method %q", errs.ErrInvalidConfig, f.Method)
	}

	var opts []fit.Option
	if f.MaxIterations != nil {
		opts = append(opts, fit.WithMaxIterations(*f.MaxIterations))
	}
	if f.MaxEvaluations != nil {
		opts = append(opts, fit.WithMaxEvaluations(*f.MaxEvaluations))
	}
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return nil, fmt.Errorf("%w: fitter timeout: %w", errs.ErrInvalidConfig, err)
		}
		opts = append(opts, fit.WithTimeout(d))
	}
	if f.FTol != nil || f.XTol != nil || f.GTol != nil {
		def := fit.DefaultConfig()
		ftol, xtol, gtol := def.FTol, def.XTol, def.GTol
		if f.FTol != nil {
			ftol = *f.FTol
		}
		if f.XTol != nil {
			xtol = *f.XTol
		}
		if f.GTol != nil {
			gtol = *f.GTol
		}
		opts = append(opts, fit.WithTolerances(ftol, xtol, gtol))
	}
	if f.Workers != nil && *f.Workers <= 0 {
		return nil, fmt.Errorf("%w: workers %d", errs.ErrInvalidConfig, *f.Workers)
	}

	return opts, nil
}

// ModelOptions returns the model options described by the fitter block.
func (p *Plan) ModelOptions() ([]model.Option, error) {
	if p.Fitter == nil {
		return nil, nil
	}

	fopts, err := p.Fitter.options()
	if err != nil {
		return nil, err
	}

	var f fit.Fitter
	if p.Fitter.Method == MethodNelderMead {
		f, err = fit.NewNelderMead(fopts...)
	} else {
		f, err = fit.NewLevenbergMarquardt(fopts...)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidConfig, err)
	}

	opts := []model.Option{model.WithFitter(f)}
	if p.Fitter.Workers != nil {
		opts = append(opts, model.WithWorkers(*p.Fitter.Workers))
	}

	return opts, nil
}

// MicroscopeSettings returns the microscope settings, or the zero value.
func (p *Plan) MicroscopeSettings() edges.Microscope {
	if p.Microscope == nil {
		return edges.Microscope{}
	}

	return edges.Microscope{
		BeamEnergy:  p.Microscope.BeamEnergy,
		Convergence: p.Microscope.Convergence,
		Collection:  p.Microscope.Collection,
	}
}

// BuildComponents creates the declared components followed by the declared
// edges. Edges come from provider; with a nil provider an
// edges.AnalyticProvider is built from the onsets in the plan, and every
// edge must then declare one.
func (p *Plan) BuildComponents(provider edges.Provider) ([]component.Component, error) {
	if provider == nil {
		onsets := make(map[string]float64, len(p.Edges))
		for _, e := range p.Edges {
			if e.Onset == nil {
				return nil, fmt.Errorf("%w: edge %s has no onset", errs.ErrInvalidConfig, edges.EdgeName(e.Element, e.Shell))
			}
			onsets[edges.EdgeName(e.Element, e.Shell)] = *e.Onset
		}
		ap, err := edges.NewAnalyticProvider(onsets)
		if err != nil {
			return nil, err
		}
		provider = ap
	}

	out := make([]component.Component, 0, len(p.Components)+len(p.Edges))
	for _, cb := range p.Components {
		c, err := component.New(cb.Kind, cb.Name, cb.Config)
		if err != nil {
			return nil, fmt.Errorf("component %q: %w", cb.Name, err)
		}
		if err := configure(c, cb.Active, cb.Convolved, cb.Parameters); err != nil {
			return nil, fmt.Errorf("component %q: %w", cb.Name, err)
		}
		out = append(out, c)
	}

	mp := p.MicroscopeSettings()
	for _, e := range p.Edges {
		name := edges.EdgeName(e.Element, e.Shell)
		c, err := provider.EdgeComponent(e.Element, e.Shell, mp)
		if err != nil {
			return nil, fmt.Errorf("edge %s: %w", name, err)
		}
		params := e.Parameters
		if e.Onset != nil {
			params = append([]*ParameterBlock{{Name: "onset", Value: e.Onset}}, params...)
		}
		if err := configure(c, e.Active, e.Convolved, params); err != nil {
			return nil, fmt.Errorf("edge %s: %w", name, err)
		}
		out = append(out, c)
	}

	return out, nil
}

func configure(c component.Component, active, convolved *bool, params []*ParameterBlock) error {
	for _, pb := range params {
		if err := applyParameter(c, pb); err != nil {
			return err
		}
	}
	if active != nil {
		if err := c.SetActive(*active); err != nil {
			return err
		}
	}
	if convolved != nil {
		cv, ok := c.(component.Convolvable)
		if !ok {
			return fmt.Errorf("%w: %s components cannot be convolved", errs.ErrInvalidConfig, c.Kind())
		}
		if err := cv.SetConvolved(*convolved); err != nil {
			return err
		}
	}

	return nil
}

func applyParameter(c component.Component, pb *ParameterBlock) error {
	p, err := c.Parameter(pb.Name)
	if err != nil {
		return err
	}

	if pb.Min != nil || pb.Max != nil {
		lo, hi := p.Bounds()
		if pb.Min != nil {
			lo = *pb.Min
		}
		if pb.Max != nil {
			hi = *pb.Max
		}
		if err := p.SetBounds(lo, hi); err != nil {
			return err
		}
	}
	if pb.Value != nil {
		if err := p.Set(*pb.Value); err != nil {
			return err
		}
	}
	if pb.Free != nil {
		if err := p.SetFree(*pb.Free); err != nil {
			return err
		}
	}

	return nil
}

// Build creates a model of target from the plan. opts are applied after the
// options derived from the fitter block.
func (p *Plan) Build(target *signal.Signal, provider edges.Provider, opts ...model.Option) (*model.Model, error) {
	comps, err := p.BuildComponents(provider)
	if err != nil {
		return nil, err
	}
	mopts, err := p.ModelOptions()
	if err != nil {
		return nil, err
	}

	return model.New(target, comps, append(mopts, opts...)...)
}
