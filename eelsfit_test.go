package eelsfit

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/eelsfit/component"
	"github.com/arloliu/eelsfit/edges"
	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/internal/hash"
	"github.com/arloliu/eelsfit/model"
	"github.com/arloliu/eelsfit/signal"
)

var coreLossAxis = signal.NewEnergyAxis(850, 1, 200)

func powerLawSignal(t *testing.T, nav []int, a, r float64) *signal.Signal {
	t.Helper()

	s, err := signal.Generate(nav, coreLossAxis, func(index int, energy, dst []float64) {
		scale := 1 + 0.1*float64(index)
		for i, e := range energy {
			dst[i] = scale * a * math.Pow(e, -r)
		}
	})
	require.NoError(t, err)

	return s
}

func testProvider(t *testing.T) *edges.AnalyticProvider {
	t.Helper()

	p, err := edges.NewAnalyticProvider(map[string]float64{"Cu_L3": 931, "Zn_L3": 1020}, edges.WithConvolved(true))
	require.NoError(t, err)

	return p
}

func componentNames(m *model.Model) []string {
	var names []string
	for _, c := range m.Components() {
		names = append(names, c.Name())
	}

	return names
}

// TestNewEELSModel verifies the background comes first and edges follow in order
func TestNewEELSModel(t *testing.T) {
	target := powerLawSignal(t, []int{2, 2}, 5e8, 2.8)

	m, err := NewEELSModel(target, nil, WithEdges(testProvider(t), "Zn_L3", "Cu_L3"))
	require.NoError(t, err)
	require.Equal(t, []string{BackgroundName, "Zn_L3", "Cu_L3"}, componentNames(m))

	bg, err := m.Component(BackgroundName)
	require.NoError(t, err)
	require.Equal(t, component.KindPowerLaw, bg.Kind())
	require.Nil(t, m.LowLoss())
}

// TestNewEELSModel_Options verifies background, low-loss and model options are applied
func TestNewEELSModel_Options(t *testing.T) {
	target := powerLawSignal(t, []int{3}, 5e8, 2.8)
	lowLoss, err := signal.Generate([]int{1}, signal.NewEnergyAxis(-20, 1, 200), func(_ int, energy, dst []float64) {
		for i, e := range energy {
			dst[i] = math.Exp(-e * e / 8)
		}
	})
	require.NoError(t, err)

	m, err := NewEELSModel(target, lowLoss,
		WithBackground(component.KindExponential),
		WithMicroscope(edges.Microscope{BeamEnergy: 300, Convergence: 0, Collection: 20}),
		WithEdges(testProvider(t), "Cu_L3"),
		WithModelOptions(model.WithWorkers(2)),
	)
	require.NoError(t, err)
	require.Same(t, lowLoss, m.LowLoss())

	bg, err := m.Component(BackgroundName)
	require.NoError(t, err)
	require.Equal(t, component.KindExponential, bg.Kind())

	m, err = NewEELSModel(target, nil, WithBackground(""), WithEdges(testProvider(t), "Cu_L3"))
	require.NoError(t, err)
	require.Equal(t, []string{"Cu_L3"}, componentNames(m))
}

// TestNewEELSModel_Errors verifies invalid settings are rejected
func TestNewEELSModel_Errors(t *testing.T) {
	target := powerLawSignal(t, []int{2}, 5e8, 2.8)
	provider := testProvider(t)

	_, err := NewEELSModel(target, nil, WithEdges(provider, "CuL3"))
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = NewEELSModel(target, nil, WithEdges(provider, "Fe_L3"))
	require.ErrorIs(t, err, errs.ErrUnknownComponent)

	_, err = NewEELSModel(target, nil, WithEdges(nil, "Cu_L3"))
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = NewEELSModel(target, nil, WithMicroscope(edges.Microscope{BeamEnergy: -1, Collection: 10}))
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = NewEELSModel(target, nil, WithBackground("Spline"))
	require.ErrorIs(t, err, errs.ErrUnknownKind)

	_, err = NewEELSModel(target, nil, WithEdges(provider, "Cu_L3", "Cu_L3"))
	require.ErrorIs(t, err, errs.ErrDuplicateComponent)
}

// TestBackgroundFitAndRoundTrip verifies a fitted model survives Save and Load
func TestBackgroundFitAndRoundTrip(t *testing.T) {
	ctx := context.Background()
	target := powerLawSignal(t, []int{2, 3}, 5e8, 2.8)

	m, err := NewEELSModel(target, nil, WithModelOptions(model.WithWorkers(2)))
	require.NoError(t, err)

	failed, err := m.EstimateComponent(ctx, BackgroundName, 850, 1049)
	require.NoError(t, err)
	require.Zero(t, failed)

	report, err := m.Multifit(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 6, report.Converged+report.NotConverged)

	for idx := range target.NavSize() {
		coord := target.Coord(idx)
		r, err := m.PixelValue(BackgroundName, "r", coord)
		require.NoError(t, err)
		require.InDelta(t, 2.8, r.Value, 1e-6)

		a, err := m.PixelValue(BackgroundName, "A", coord)
		require.NoError(t, err)
		require.InEpsilon(t, 5e8*(1+0.1*float64(idx)), a.Value, 1e-5)
	}

	data, err := Save(m)
	require.NoError(t, err)

	restored, err := Load(data)
	require.NoError(t, err)
	require.Nil(t, restored.Target())
	require.Equal(t, componentNames(m), componentNames(restored))

	want, err := m.StoredMap(BackgroundName, "A")
	require.NoError(t, err)
	got, err := restored.StoredMap(BackgroundName, "A")
	require.NoError(t, err)
	require.Equal(t, want, got)

	require.NoError(t, restored.Attach(target))
	spec, err := restored.ModelSpectrum([]int{1, 2})
	require.NoError(t, err)
	require.InEpsilon(t, target.Spectrum(5)[0], spec[0], 1e-5)
}

// TestSignalRoundTrip verifies the signal wrappers
func TestSignalRoundTrip(t *testing.T) {
	target := powerLawSignal(t, []int{2}, 5e8, 2.8)

	data, err := SaveSignal(target)
	require.NoError(t, err)

	got, err := LoadSignal(data)
	require.NoError(t, err)
	require.Equal(t, target.Data(), got.Data())
	require.True(t, target.Axis().Equal(got.Axis()))
}

// TestSuggestBackground verifies the best family is picked on the summed window
func TestSuggestBackground(t *testing.T) {
	target := powerLawSignal(t, []int{2, 2}, 5e8, 2.8)

	s, err := SuggestBackground(target, 850, 920)
	require.NoError(t, err)
	require.Equal(t, component.KindPowerLaw, s.Kind)
	require.InDelta(t, 2.8, s.Fit.Coefficients[1], 1e-9)

	line, err := signal.Generate([]int{3}, coreLossAxis, func(_ int, energy, dst []float64) {
		for i, e := range energy {
			dst[i] = 100 - 0.05*e
		}
	})
	require.NoError(t, err)
	s, err = SuggestBackground(line, 850, 1000)
	require.NoError(t, err)
	require.Equal(t, component.KindPolynomial, s.Kind)
	require.Equal(t, []float64{1}, s.Config)

	m, err := NewEELSModel(line, nil, s.Option())
	require.NoError(t, err)
	bg, err := m.Component(BackgroundName)
	require.NoError(t, err)
	require.Len(t, bg.Parameters(), 2)

	_, err = SuggestBackground(target, 900, 850)
	require.ErrorIs(t, err, errs.ErrInvalidRange)
	_, err = SuggestBackground(target, 2000, 3000)
	require.ErrorIs(t, err, errs.ErrEmptySignalRange)
}

// TestComponentID verifies the id matches the archive hash
func TestComponentID(t *testing.T) {
	require.Equal(t, hash.ID("Cu_L3"), ComponentID("Cu_L3"))
	require.NotEqual(t, ComponentID("Cu_L3"), ComponentID("Zn_L3"))
}
