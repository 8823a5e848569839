// Package eelsfit fits multi-component models to EELS spectrum images.
//
// A model is an ordered set of components (background, ionization edges,
// peaks) summed and compared with the spectrum of every navigation position
// by a bounded nonlinear least-squares solver. Parameter values are kept per
// pixel, so staged fits can warm-start later stages from earlier ones.
//
// # Basic Usage
//
// Building an EELS model with a power-law background and two edges:
//
//	provider, _ := edges.NewAnalyticProvider(map[string]float64{
//	    "Cu_L3": 931,
//	    "Zn_L3": 1020,
//	})
//	m, _ := eelsfit.NewEELSModel(si, lowLoss,
//	    eelsfit.WithMicroscope(edges.Microscope{BeamEnergy: 200, Convergence: 10, Collection: 50}),
//	    eelsfit.WithEdges(provider, "Cu_L3", "Zn_L3"),
//	)
//
// Fitting the background alone, then the edges with the background frozen:
//
//	_ = m.SetComponentActiveValue(false, "Cu_L3", "Zn_L3")
//	_ = m.SetSignalRange(750, 915)
//	_, _ = m.Multifit(ctx, true)
//	_ = m.SetParametersFree(false, "background")
//	_ = m.SetComponentActiveValue(true)
//	_ = m.ResetSignalRange()
//	report, _ := m.Multifit(ctx, true)
//
// Saving and restoring the fitted model:
//
//	data, _ := eelsfit.Save(m)
//	restored, _ := eelsfit.Load(data)
//
// # Package Structure
//
// This package provides convenient top-level wrappers around the model,
// edges and archive packages. For staged fits described in files, use the
// plan package; for a catalogue of saved archives, use the store package.
package eelsfit

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/arloliu/eelsfit/archive"
	"github.com/arloliu/eelsfit/component"
	"github.com/arloliu/eelsfit/edges"
	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/internal/hash"
	"github.com/arloliu/eelsfit/internal/options"
	"github.com/arloliu/eelsfit/model"
	"github.com/arloliu/eelsfit/regression"
	"github.com/arloliu/eelsfit/signal"
)

// BackgroundName is the component name NewEELSModel gives the background.
const BackgroundName = "background"

// EELSConfig holds the settings of NewEELSModel.
type EELSConfig struct {
	// Background is the kind of the background component, or "" for none.
	Background string
	// BackgroundConfig is passed to component.New, e.g. [order] for a Polynomial.
	BackgroundConfig []float64

	Microscope edges.Microscope
	Provider   edges.Provider
	// Edges are edge names such as "Cu_L3", added in order after the background.
	Edges        []string
	ModelOptions []model.Option
}

// EELSOption configures NewEELSModel.
type EELSOption = options.Option[*EELSConfig]

var defaultMicroscope = edges.Microscope{BeamEnergy: 200, Convergence: 10, Collection: 50}

// WithBackground sets the background kind, e.g. component.KindExponential,
// and its configuration. An empty kind leaves the model without a background.
func WithBackground(kind string, config ...float64) EELSOption {
	return options.NoError(func(c *EELSConfig) {
		c.Background = kind
		c.BackgroundConfig = config
	})
}

// WithMicroscope sets the acquisition settings handed to the edge provider.
func WithMicroscope(mp edges.Microscope) EELSOption {
	return options.New(func(c *EELSConfig) error {
		if err := mp.Validate(); err != nil {
			return err
		}
		c.Microscope = mp

		return nil
	})
}

// WithEdges adds the named edges built by provider.
func WithEdges(provider edges.Provider, names ...string) EELSOption {
	return options.New(func(c *EELSConfig) error {
		if provider == nil {
			return fmt.Errorf("%w: nil edge provider", errs.ErrInvalidConfig)
		}
		c.Provider = provider
		c.Edges = append(c.Edges, names...)

		return nil
	})
}

// WithModelOptions passes options through to model.New.
func WithModelOptions(opts ...model.Option) EELSOption {
	return options.NoError(func(c *EELSConfig) {
		c.ModelOptions = append(c.ModelOptions, opts...)
	})
}

// NewEELSModel creates a model of target holding a background followed by
// the configured edges. The background defaults to a power law. A non-nil
// lowLoss is convolved with the edges that request it.
//
// Returns:
//   - errs.ErrInvalidConfig: a malformed edge name or invalid settings
//   - errors from the edge provider and from model.New
func NewEELSModel(target, lowLoss *signal.Signal, opts ...EELSOption) (*model.Model, error) {
	cfg := &EELSConfig{
		Background: component.KindPowerLaw,
		Microscope: defaultMicroscope,
	}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	var comps []component.Component
	if cfg.Background != "" {
		bg, err := component.New(cfg.Background, BackgroundName, cfg.BackgroundConfig)
		if err != nil {
			return nil, fmt.Errorf("background: %w", err)
		}
		comps = append(comps, bg)
	}

	for _, name := range cfg.Edges {
		element, shell, ok := strings.Cut(name, "_")
		if !ok || element == "" || shell == "" {
			return nil, fmt.Errorf("%w: edge name %q is not Element_Shell", errs.ErrInvalidConfig, name)
		}
		c, err := cfg.Provider.EdgeComponent(element, shell, cfg.Microscope)
		if err != nil {
			return nil, fmt.Errorf("edge %s: %w", name, err)
		}
		comps = append(comps, c)
	}

	mopts := cfg.ModelOptions
	if lowLoss != nil {
		mopts = append([]model.Option{model.WithLowLoss(lowLoss)}, mopts...)
	}

	return model.New(target, comps, mopts...)
}

// BackgroundSuggestion is the background family that best describes a
// pre-edge window.
type BackgroundSuggestion struct {
	Kind   string
	Config []float64
	// Fit is the winning curve on the window of the summed spectrum.
	Fit *regression.Model
}

// Option returns the NewEELSModel option selecting the suggested background.
func (s BackgroundSuggestion) Option() EELSOption {
	return WithBackground(s.Kind, s.Config...)
}

var backgroundKinds = map[regression.ModelType]BackgroundSuggestion{
	regression.ModelTypePower:       {Kind: component.KindPowerLaw},
	regression.ModelTypeExponential: {Kind: component.KindExponential},
	regression.ModelTypeLinear:      {Kind: component.KindPolynomial, Config: []float64{1}},
}

// SuggestBackground fits a power law, an exponential and a line to the
// channels of the summed spectrum in [lo, hi] and returns the family with the
// highest R².
func SuggestBackground(target *signal.Signal, lo, hi float64) (BackgroundSuggestion, error) {
	if math.IsNaN(lo) || math.IsNaN(hi) || lo > hi {
		return BackgroundSuggestion{}, fmt.Errorf("%w: [%g, %g]", errs.ErrInvalidRange, lo, hi)
	}

	axis := target.Axis()
	var energy, counts []float64
	for i := range axis.Size {
		if e := axis.Value(i); e >= lo && e <= hi {
			energy = append(energy, e)
			counts = append(counts, 0)
		}
	}
	if len(energy) < 2 {
		return BackgroundSuggestion{}, fmt.Errorf("%w: [%g, %g]", errs.ErrEmptySignalRange, lo, hi)
	}

	first := axis.ValueIndex(energy[0])
	for _, spectrum := range target.All() {
		floats.Add(counts, spectrum[first:first+len(counts)])
	}

	res, err := regression.Analyze(energy, counts, regression.WithCandidates(
		regression.ModelTypePower,
		regression.ModelTypeExponential,
		regression.ModelTypeLinear,
	))
	if err != nil {
		return BackgroundSuggestion{}, err
	}

	s := backgroundKinds[res.BestFit.Type]
	s.Fit = res.BestFit

	return s, nil
}

// ComponentID returns the 64-bit hash that identifies a component name
// inside model archives.
func ComponentID(name string) uint64 {
	return hash.ID(name)
}

// Save serializes m with its parameter maps. See archive.SaveModel.
func Save(m *model.Model, opts ...archive.Option) ([]byte, error) {
	return archive.SaveModel(m, opts...)
}

// Load restores a model saved by Save. The model is detached; bind it to a
// signal with Model.Attach before fitting.
func Load(data []byte, opts ...model.Option) (*model.Model, error) {
	return archive.LoadModel(data, opts...)
}

// SaveSignal serializes a spectrum image. See archive.SaveSignal.
func SaveSignal(s *signal.Signal, opts ...archive.Option) ([]byte, error) {
	return archive.SaveSignal(s, opts...)
}

// LoadSignal restores a spectrum image saved by SaveSignal.
func LoadSignal(data []byte) (*signal.Signal, error) {
	return archive.LoadSignal(data)
}
