package signal

import (
	"testing"

	"github.com/arloliu/eelsfit/errs"
	"github.com/stretchr/testify/require"
)

func TestAxis(t *testing.T) {
	a := NewEnergyAxis(300, 0.5, 5)

	require.NoError(t, a.Validate())
	require.Equal(t, []float64{300, 300.5, 301, 301.5, 302}, a.Values())
	require.Equal(t, 302.0, a.End())
	require.Equal(t, 2, a.ValueIndex(301.1))
	require.Equal(t, 0, a.ValueIndex(-1e9))
	require.Equal(t, 4, a.ValueIndex(1e9))

	b := a
	b.Name = "other"
	b.Offset += 1e-12
	require.True(t, a.Equal(b))

	b.Offset = 300.5
	require.False(t, a.Equal(b))

	c := a
	c.Size = 6
	require.False(t, a.Equal(c))

	require.ErrorIs(t, Axis{Scale: 1}.Validate(), errs.ErrInvalidShape)
	require.ErrorIs(t, Axis{Scale: 0, Size: 3}.Validate(), errs.ErrInvalidShape)
	require.Contains(t, a.Describe(), "5 channels")
}

func TestNewValidatesShape(t *testing.T) {
	axis := NewEnergyAxis(0, 1, 4)

	_, err := New(make([]float64, 7), []int{2}, axis)
	require.ErrorIs(t, err, errs.ErrInvalidShape)

	_, err = New(make([]float64, 8), []int{2, 0}, axis)
	require.ErrorIs(t, err, errs.ErrInvalidShape)

	_, err = New(make([]float64, 8), []int{2}, axis, WithNavigationAxes())
	require.ErrorIs(t, err, errs.ErrInvalidShape)

	_, err = New(make([]float64, 8), []int{2}, axis, WithNavigationAxes(Axis{Scale: 1, Size: 3}))
	require.ErrorIs(t, err, errs.ErrInvalidShape)

	s, err := New(make([]float64, 4), nil, axis, WithTitle("single"))
	require.NoError(t, err)
	require.Equal(t, 1, s.NavSize())
	require.Equal(t, "single", s.Title())

	idx, err := s.Index(nil)
	require.NoError(t, err)
	require.Equal(t, 0, idx)
}

func TestRowMajorNavigation(t *testing.T) {
	axis := NewEnergyAxis(0, 1, 3)
	s, err := Generate([]int{2, 3}, axis, func(index int, energy, dst []float64) {
		for i := range dst {
			dst[i] = float64(index*10) + energy[i]
		}
	})
	require.NoError(t, err)

	require.Equal(t, 6, s.NavSize())
	require.Equal(t, 3, s.Channels())
	require.Equal(t, []int{2, 3}, s.NavShape())
	require.Len(t, s.NavigationAxes(), 2)

	idx, err := s.Index([]int{1, 2})
	require.NoError(t, err)
	require.Equal(t, 5, idx)
	require.Equal(t, []int{1, 2}, s.Coord(5))
	require.Equal(t, []int{0, 1}, s.Coord(1))
	require.Equal(t, []float64{50, 51, 52}, s.Spectrum(5))

	_, err = s.Index([]int{2, 0})
	require.ErrorIs(t, err, errs.ErrInvalidCoordinate)
	_, err = s.Index([]int{0})
	require.ErrorIs(t, err, errs.ErrInvalidCoordinate)

	visited := 0
	for i, spec := range s.All() {
		require.Equal(t, float64(i*10), spec[0])
		visited++
	}
	require.Equal(t, 6, visited)
}

func TestSpectrumViewIsCapped(t *testing.T) {
	s, err := New([]float64{1, 2, 3, 4}, []int{2}, NewEnergyAxis(0, 1, 2))
	require.NoError(t, err)

	spec := s.Spectrum(0)
	spec = append(spec, 99)
	require.Equal(t, 3.0, s.Data()[2])
	require.Len(t, spec, 3)
}
