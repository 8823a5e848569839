// Package signal holds spectrum images: an N-dimensional navigation grid with
// one spectrum of equal length at every position.
//
// Navigation positions are addressed by a coordinate tuple or by a flat
// row-major index (the last coordinate varies fastest). The data of a Signal
// is fixed at construction and is shared read-only by models and fit workers.
package signal

import (
	"fmt"
	"iter"

	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/internal/options"
)

// Signal is a spectrum image.
type Signal struct {
	data    []float64
	nav     []int
	strides []int
	axis    Axis
	navAxes []Axis
	title   string
}

type config struct {
	navAxes []Axis
	title   string
}

// Option configures New.
type Option = options.Option[*config]

// WithNavigationAxes sets calibrated navigation axes, one per navigation dimension.
func WithNavigationAxes(axes ...Axis) Option {
	return options.NoError(func(c *config) {
		c.navAxes = make([]Axis, len(axes))
		copy(c.navAxes, axes)
	})
}

// WithTitle sets the signal title.
func WithTitle(title string) Option {
	return options.NoError(func(c *config) {
		c.title = title
	})
}

// New creates a Signal from row-major data.
//
// Parameters:
//   - data: len(data) must equal prod(nav)·axis.Size; the slice is retained, not copied
//   - nav: navigation shape; empty for a single spectrum
//   - axis: the energy axis
//
// Returns:
//   - error: errs.ErrInvalidShape when the sizes disagree
func New(data []float64, nav []int, axis Axis, opts ...Option) (*Signal, error) {
	if err := axis.Validate(); err != nil {
		return nil, err
	}

	var cfg config
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	navSize := 1
	for i, n := range nav {
		if n <= 0 {
			return nil, fmt.Errorf("%w: navigation dimension %d has size %d", errs.ErrInvalidShape, i, n)
		}
		navSize *= n
	}
	if len(data) != navSize*axis.Size {
		return nil, fmt.Errorf("%w: %d values for %d pixels × %d channels", errs.ErrInvalidShape, len(data), navSize, axis.Size)
	}

	navAxes := cfg.navAxes
	if navAxes == nil {
		navAxes = make([]Axis, len(nav))
		for i, n := range nav {
			navAxes[i] = Axis{Name: fmt.Sprintf("nav%d", i), Scale: 1, Size: n}
		}
	}
	if len(navAxes) != len(nav) {
		return nil, fmt.Errorf("%w: %d navigation axes for %d dimensions", errs.ErrInvalidShape, len(navAxes), len(nav))
	}
	for i, a := range navAxes {
		if a.Size != nav[i] {
			return nil, fmt.Errorf("%w: navigation axis %d has size %d, shape says %d", errs.ErrInvalidShape, i, a.Size, nav[i])
		}
	}

	return &Signal{
		data:    data,
		nav:     append([]int(nil), nav...),
		strides: strides(nav),
		axis:    axis,
		navAxes: navAxes,
		title:   cfg.title,
	}, nil
}

// Generate builds a Signal by calling fn once per pixel in row-major order.
// fn receives the flat index, the energy values and the spectrum to fill.
func Generate(nav []int, axis Axis, fn func(index int, energy, dst []float64), opts ...Option) (*Signal, error) {
	if err := axis.Validate(); err != nil {
		return nil, err
	}

	navSize := 1
	for _, n := range nav {
		navSize *= max(n, 0)
	}

	data := make([]float64, navSize*axis.Size)
	energy := axis.Values()
	for i := range navSize {
		fn(i, energy, data[i*axis.Size:(i+1)*axis.Size])
	}

	return New(data, nav, axis, opts...)
}

func strides(nav []int) []int {
	s := make([]int, len(nav))
	acc := 1
	for i := len(nav) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= nav[i]
	}

	return s
}

// Axis returns the energy axis.
func (s *Signal) Axis() Axis { return s.axis }

// Title returns the signal title.
func (s *Signal) Title() string { return s.title }

// Channels returns the number of energy channels.
func (s *Signal) Channels() int { return s.axis.Size }

// NavShape returns a copy of the navigation shape.
func (s *Signal) NavShape() []int { return append([]int(nil), s.nav...) }

// NavigationAxes returns a copy of the navigation axes.
func (s *Signal) NavigationAxes() []Axis { return append([]Axis(nil), s.navAxes...) }

// NavSize returns the number of navigation positions.
func (s *Signal) NavSize() int {
	return len(s.data) / s.axis.Size
}

// Data returns the underlying row-major data. Callers must not modify it.
func (s *Signal) Data() []float64 { return s.data }

// Index converts a navigation coordinate into a flat index.
func (s *Signal) Index(coord []int) (int, error) {
	return FlatIndex(s.nav, coord)
}

// Coord converts a flat index into a navigation coordinate.
func (s *Signal) Coord(index int) []int {
	coord := make([]int, len(s.nav))
	for i, st := range s.strides {
		coord[i] = index / st
		index %= st
	}

	return coord
}

// Spectrum returns the spectrum at a flat index as a view into the signal data.
// Callers must not modify it.
func (s *Signal) Spectrum(index int) []float64 {
	n := s.axis.Size
	return s.data[index*n : (index+1)*n : (index+1)*n]
}

// All yields every spectrum in row-major order.
func (s *Signal) All() iter.Seq2[int, []float64] {
	return func(yield func(int, []float64) bool) {
		for i := range s.NavSize() {
			if !yield(i, s.Spectrum(i)) {
				return
			}
		}
	}
}

// FlatIndex converts coord into a row-major index for the navigation shape nav.
// An empty coord addresses the single pixel of a signal without navigation.
func FlatIndex(nav []int, coord []int) (int, error) {
	if len(coord) != len(nav) {
		return 0, fmt.Errorf("%w: coordinate %v has %d dimensions, navigation has %d", errs.ErrInvalidCoordinate, coord, len(coord), len(nav))
	}

	index := 0
	for i, c := range coord {
		if c < 0 || c >= nav[i] {
			return 0, fmt.Errorf("%w: coordinate %v outside navigation shape %v", errs.ErrInvalidCoordinate, coord, nav)
		}
		index = index*nav[i] + c
	}

	return index, nil
}
