package component

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/signal"
)

type busyGuard struct{ busy bool }

func (g *busyGuard) CheckMutable() error {
	if g.busy {
		return errs.ErrModelBusy
	}

	return nil
}

func TestParameter_SetRespectsBounds(t *testing.T) {
	p := NewParameter("A", 1)
	require.True(t, p.Free())

	require.NoError(t, p.Set(1e9), "unbounded parameter accepts any finite value")
	require.NoError(t, p.SetBounds(0, 10))
	require.Equal(t, 1e9, p.Value(), "SetBounds leaves the value alone")

	err := p.Set(11)
	var oob *errs.OutOfBoundsError
	require.ErrorAs(t, err, &oob)
	require.ErrorIs(t, err, errs.ErrOutOfBounds)
	require.Equal(t, "A", oob.Parameter)

	require.ErrorIs(t, p.Set(math.NaN()), errs.ErrOutOfBounds)
	require.NoError(t, p.Set(10))
	require.Equal(t, 10.0, p.Value())
	require.Equal(t, 0.0, p.Clamp(-3))
}

func TestParameter_SetBoundsRejectsInverted(t *testing.T) {
	p := NewParameter("r", 3)
	require.ErrorIs(t, p.SetBounds(5, 1), errs.ErrInvalidBounds)
	require.ErrorIs(t, p.SetBounds(math.NaN(), 1), errs.ErrInvalidBounds)

	lo, hi := p.Bounds()
	require.True(t, math.IsInf(lo, -1))
	require.True(t, math.IsInf(hi, 1))
}

func TestParameter_FreezeAndRestore(t *testing.T) {
	p := NewParameter("sigma", 2)
	require.NoError(t, p.Freeze())
	require.False(t, p.Free())
	require.NoError(t, p.Unfreeze())
	require.True(t, p.Free())

	require.NoError(t, p.Restore(ParameterState{Name: "sigma", Value: 50, Min: 0, Max: 10, Free: false}))
	st := p.State()
	require.Equal(t, 50.0, st.Value, "Restore skips the value check")
	require.Equal(t, 10.0, st.Max)
	require.False(t, st.Free)
}

func TestGuard_BlocksMutation(t *testing.T) {
	g := &busyGuard{}
	c := NewGaussian("peak")
	c.BindGuard(g)

	g.busy = true
	a, err := c.Parameter("A")
	require.NoError(t, err)
	require.ErrorIs(t, a.Set(2), errs.ErrModelBusy)
	require.ErrorIs(t, a.Freeze(), errs.ErrModelBusy)
	require.ErrorIs(t, c.SetActive(false), errs.ErrModelBusy)
	require.True(t, c.Active())

	g.busy = false
	require.NoError(t, c.SetActive(false))
	require.False(t, c.Active())
}

func TestBase_UnknownParameter(t *testing.T) {
	c := NewOffset("bg")
	_, err := c.Parameter("nope")
	require.ErrorIs(t, err, errs.ErrUnknownParameter)
}

func TestPowerLaw_Function(t *testing.T) {
	c := NewPowerLaw("bg")
	require.NoError(t, mustParam(t, c, "A").Set(1000))
	require.NoError(t, mustParam(t, c, "r").Set(2))

	got := Evaluate(c, []float64{-1, 0, 10, 100})
	require.Equal(t, 0.0, got[0])
	require.Equal(t, 0.0, got[1])
	require.InDelta(t, 10.0, got[2], 1e-12)
	require.InDelta(t, 0.1, got[3], 1e-12)
	require.False(t, mustParam(t, c, "origin").Free())
}

func TestPowerLaw_Estimate(t *testing.T) {
	c := NewPowerLaw("bg")
	energy := make([]float64, 50)
	counts := make([]float64, 50)
	for i := range energy {
		energy[i] = 400 + float64(i)
		counts[i] = 3e8 * math.Pow(energy[i], -2.5)
	}

	require.NoError(t, ApplyEstimate(c, energy, counts))
	require.InDelta(t, 3e8, mustParam(t, c, "A").Value(), 3e8*1e-6)
	require.InDelta(t, 2.5, mustParam(t, c, "r").Value(), 1e-9)
}

func TestApplyEstimate_ClampsToBounds(t *testing.T) {
	c := NewOffset("bg")
	require.NoError(t, mustParam(t, c, "offset").SetBounds(0, 5))
	require.NoError(t, ApplyEstimate(c, []float64{1, 2, 3}, []float64{10, 10, 10}))
	require.Equal(t, 5.0, mustParam(t, c, "offset").Value())
}

func TestApplyEstimate_NotEstimable(t *testing.T) {
	c := NewEdge("Cu_L3", 931)
	require.ErrorIs(t, ApplyEstimate(c, []float64{1, 2}, []float64{1, 2}), errs.ErrNotEstimable)
}

func TestGaussian_AreaAndEstimate(t *testing.T) {
	c := NewGaussian("peak")
	require.NoError(t, mustParam(t, c, "A").Set(60))
	require.NoError(t, mustParam(t, c, "sigma").Set(2))
	require.NoError(t, mustParam(t, c, "centre").Set(50))

	axis := signal.NewEnergyAxis(0, 0.1, 1000)
	energy := axis.Values()
	y := Evaluate(c, energy)

	area := 0.0
	for _, v := range y {
		area += v * axis.Scale
	}
	require.InDelta(t, 60, area, 1e-6)

	g := NewGaussian("guess")
	require.NoError(t, ApplyEstimate(g, energy, y))
	require.InDelta(t, 60, mustParam(t, g, "A").Value(), 0.1)
	require.InDelta(t, 2, mustParam(t, g, "sigma").Value(), 0.01)
	require.InDelta(t, 50, mustParam(t, g, "centre").Value(), 1e-6)
}

func TestLorentzian_Estimate(t *testing.T) {
	c := NewLorentzian("peak")
	require.NoError(t, mustParam(t, c, "A").Set(10))
	require.NoError(t, mustParam(t, c, "gamma").Set(1.5))
	require.NoError(t, mustParam(t, c, "centre").Set(20))

	energy := signal.NewEnergyAxis(0, 0.05, 800).Values()
	y := Evaluate(c, energy)

	l := NewLorentzian("guess")
	require.NoError(t, ApplyEstimate(l, energy, y))
	require.InDelta(t, 20, mustParam(t, l, "centre").Value(), 0.05)
	require.InDelta(t, 1.5, mustParam(t, l, "gamma").Value(), 0.1)
}

func TestPolynomial_FunctionAndEstimate(t *testing.T) {
	c := NewPolynomial("poly", 2)
	require.Len(t, c.Parameters(), 3)
	require.Equal(t, []float64{2}, c.Config())

	energy := []float64{0, 1, 2, 3, 4, 5}
	counts := make([]float64, len(energy))
	for i, e := range energy {
		counts[i] = 1 + 2*e + 0.5*e*e
	}

	require.NoError(t, ApplyEstimate(c, energy, counts))
	require.InDeltaSlice(t, []float64{1, 2, 0.5}, Values(c), 1e-9)
	require.InDeltaSlice(t, counts, Evaluate(c, energy), 1e-9)
}

func TestEdge_ShapeAndConvolved(t *testing.T) {
	e := NewEdge("Zn_L3", 1020)
	require.NoError(t, mustParam(t, e, "intensity").Set(100))

	y := Evaluate(e, []float64{0, 900, 1020, 1100})
	require.Equal(t, 0.0, y[0])
	require.Less(t, y[1], 1.0)
	require.InDelta(t, 50, y[2], 1e-9)
	require.Greater(t, y[3], 60.0)

	require.False(t, e.Convolved())
	require.NoError(t, e.SetConvolved(true))
	require.True(t, e.Convolved())

	g := &busyGuard{busy: true}
	e.BindGuard(g)
	require.ErrorIs(t, e.SetConvolved(false), errs.ErrModelBusy)
}

func TestFixedPattern_InterpolatesAndShifts(t *testing.T) {
	axis := signal.NewEnergyAxis(100, 1, 5)
	p, err := NewFixedPattern("ref", axis, []float64{0, 1, 2, 3, 4})
	require.NoError(t, err)

	require.NoError(t, mustParam(t, p, "yscale").Set(2))
	got := Evaluate(p, []float64{99, 100, 101.5, 104, 105})
	require.Equal(t, []float64{0, 0, 3, 8, 0}, got)

	require.NoError(t, mustParam(t, p, "shift").Set(1))
	got = Evaluate(p, []float64{101, 102})
	require.Equal(t, []float64{0, 2}, got)

	_, err = NewFixedPattern("bad", axis, []float64{1})
	require.ErrorIs(t, err, errs.ErrInvalidShape)
}

func TestRegistry_RebuildsFromConfig(t *testing.T) {
	require.Contains(t, Kinds(), KindPowerLaw)

	poly, err := New(KindPolynomial, "p", []float64{3})
	require.NoError(t, err)
	require.Len(t, poly.Parameters(), 4)

	_, err = New(KindPolynomial, "p", []float64{1.5})
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	orig, err := NewFixedPattern("ref", signal.NewEnergyAxis(10, 0.5, 3), []float64{1, 2, 3})
	require.NoError(t, err)
	rebuilt, err := New(KindFixedPattern, "ref", orig.Config())
	require.NoError(t, err)
	require.True(t, rebuilt.(AxisBound).Axis().Equal(orig.Axis()))
	require.Equal(t, []float64{1, 2, 3}, rebuilt.(*FixedPattern).Pattern())

	_, err = New("Nope", "x", nil)
	require.ErrorIs(t, err, errs.ErrUnknownKind)

	err = Register(KindGaussian, func(string, []float64) (Component, error) { return nil, errors.New("x") })
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func mustParam(t *testing.T, c Component, name string) *Parameter {
	t.Helper()
	p, err := c.Parameter(name)
	require.NoError(t, err)

	return p
}
