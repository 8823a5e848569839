package component

import (
	"fmt"
	"sort"
	"sync"

	"github.com/arloliu/eelsfit/errs"
)

// Factory builds a component of one kind from its name and the values its
// Config method returned (nil for kinds that are not Configurable).
type Factory func(name string, config []float64) (Component, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a factory for kind. Registering a kind twice is an error.
func Register(kind string, f Factory) error {
	if kind == "" || f == nil {
		return fmt.Errorf("%w: empty kind or nil factory", errs.ErrInvalidConfig)
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := registry[kind]; ok {
		return fmt.Errorf("%w: kind %q already registered", errs.ErrInvalidConfig, kind)
	}
	registry[kind] = f

	return nil
}

// MustRegister is Register that panics on error, for use in init functions.
func MustRegister(kind string, f Factory) {
	if err := Register(kind, f); err != nil {
		panic(err)
	}
}

// New builds a component of a registered kind.
func New(kind, name string, config []float64) (Component, error) {
	registryMu.RLock()
	f, ok := registry[kind]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownKind, kind)
	}

	return f(name, config)
}

// Kinds returns the registered kinds in sorted order.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	return kinds
}

func init() {
	MustRegister(KindOffset, func(name string, _ []float64) (Component, error) {
		return NewOffset(name), nil
	})
	MustRegister(KindPowerLaw, func(name string, _ []float64) (Component, error) {
		return NewPowerLaw(name), nil
	})
	MustRegister(KindExponential, func(name string, _ []float64) (Component, error) {
		return NewExponential(name), nil
	})
	MustRegister(KindPolynomial, func(name string, config []float64) (Component, error) {
		if len(config) != 1 || config[0] < 0 || config[0] != float64(int(config[0])) {
			return nil, fmt.Errorf("%w: polynomial %q needs [order], got %v", errs.ErrInvalidConfig, name, config)
		}

		return NewPolynomial(name, int(config[0])), nil
	})
	MustRegister(KindGaussian, func(name string, _ []float64) (Component, error) {
		return NewGaussian(name), nil
	})
	MustRegister(KindLorentzian, func(name string, _ []float64) (Component, error) {
		return NewLorentzian(name), nil
	})
	MustRegister(KindEdge, func(name string, _ []float64) (Component, error) {
		return NewEdge(name, 0), nil
	})
	MustRegister(KindFixedPattern, fixedPatternFromConfig)
}
