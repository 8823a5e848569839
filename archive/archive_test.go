package archive

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/eelsfit/component"
	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/format"
	"github.com/arloliu/eelsfit/model"
	"github.com/arloliu/eelsfit/section"
	"github.com/arloliu/eelsfit/signal"
)

var testAxis = signal.NewEnergyAxis(100, 0.5, 64)

func testSignal(t *testing.T) *signal.Signal {
	t.Helper()
	s, err := signal.Generate([]int{2, 3}, testAxis, func(index int, energy, dst []float64) {
		for i, e := range energy {
			dst[i] = 1e6*math.Pow(e, -2) + float64(index)*0.125 + float64(i)/7
		}
	}, signal.WithTitle("Cu/Zn interface"),
		signal.WithNavigationAxes(
			signal.Axis{Name: "y", Units: "nm", Offset: 0, Scale: 0.8, Size: 2},
			signal.Axis{Name: "x", Units: "nm", Offset: -1, Scale: 0.8, Size: 3},
		))
	require.NoError(t, err)

	return s
}

func testModel(t *testing.T) *model.Model {
	t.Helper()

	bg := component.NewPowerLaw("bg")
	a, err := bg.Parameter("A")
	require.NoError(t, err)
	require.NoError(t, a.SetBounds(0, 1e12))
	require.NoError(t, a.Set(2.5e6))

	poly := component.NewPolynomial("poly", 2)
	require.NoError(t, poly.SetActive(false))

	edge := component.NewEdge("Cu_L3", 120)
	require.NoError(t, edge.SetConvolved(true))

	pattern := make([]float64, testAxis.Size)
	for i := range pattern {
		pattern[i] = math.Sin(float64(i) / 5)
	}
	ref, err := component.NewFixedPattern("ref", testAxis, pattern)
	require.NoError(t, err)

	m, err := model.New(testSignal(t), []component.Component{bg, component.NewGaussian("g"), poly, edge, ref})
	require.NoError(t, err)

	require.NoError(t, m.SetParametersFree(false, "g", "centre"))
	require.NoError(t, m.SetSignalRange(105, 120))
	require.NoError(t, m.AddSignalRange(125, 128))
	require.NoError(t, m.SetPixelValue("bg", "r", []int{1, 2}, 3.25))
	require.NoError(t, m.RestoreMap("g", "A", model.ParameterMap{
		Values: []float64{math.NaN(), math.Copysign(0, -1), math.Inf(1), 5e-324, -1.5, math.Pi},
		Std:    []float64{0.1, 0.2, math.NaN(), 0, math.MaxFloat64, 1e-300},
		IsSet:  []bool{true, false, true, true, false, true},
	}))

	return m
}

func requireSameBits(t *testing.T, want, got []float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, math.Float64bits(want[i]), math.Float64bits(got[i]), "index %d: %v vs %v", i, want[i], got[i])
	}
}

func requireSameModel(t *testing.T, want, got *model.Model) {
	t.Helper()

	require.True(t, want.Axis().Equal(got.Axis()))
	require.Equal(t, want.Axis(), got.Axis())
	require.Equal(t, want.NavShape(), got.NavShape())
	require.Equal(t, want.SignalMask(), got.SignalMask())

	wc, gc := want.Components(), got.Components()
	require.Len(t, gc, len(wc))
	for i, c := range wc {
		g := gc[i]
		require.Equal(t, c.Kind(), g.Kind())
		require.Equal(t, c.Name(), g.Name())
		require.Equal(t, c.Active(), g.Active())
		if cv, ok := c.(component.Convolvable); ok {
			require.Equal(t, cv.Convolved(), g.(component.Convolvable).Convolved())
		}
		if cc, ok := c.(component.Configurable); ok {
			requireSameBits(t, cc.Config(), g.(component.Configurable).Config())
		}

		for j, p := range c.Parameters() {
			q := g.Parameters()[j]
			require.Equal(t, p.State(), q.State())

			wm, err := want.StoredMap(c.Name(), p.Name())
			require.NoError(t, err)
			gm, err := got.StoredMap(c.Name(), p.Name())
			require.NoError(t, err)
			requireSameBits(t, wm.Values, gm.Values)
			requireSameBits(t, wm.Std, gm.Std)
			require.Equal(t, wm.IsSet, gm.IsSet)
		}
	}
}

func TestModelRoundTrip_BitExact(t *testing.T) {
	orig := testModel(t)

	cases := []struct {
		name string
		opts []Option
	}{
		{"default", nil},
		{"none-raw", []Option{WithCompression(format.CompressionNone)}},
		{"s2-xor", []Option{WithCompression(format.CompressionS2), WithValueEncoding(format.ValueXOR)}},
		{"lz4-big-endian", []Option{WithCompression(format.CompressionLZ4), WithBigEndian()}},
		{"zstd-xor-big-endian", []Option{WithValueEncoding(format.ValueXOR), WithBigEndian()}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := SaveModel(orig, tc.opts...)
			require.NoError(t, err)

			kind, err := Kind(data)
			require.NoError(t, err)
			require.Equal(t, format.KindModel, kind)

			loaded, err := LoadModel(data)
			require.NoError(t, err)
			require.Nil(t, loaded.Target())
			requireSameModel(t, orig, loaded)

			again, err := SaveModel(loaded, tc.opts...)
			require.NoError(t, err)
			require.Equal(t, data, again)
		})
	}
}

func TestModelRoundTrip_AttachAndEvaluate(t *testing.T) {
	orig := testModel(t)
	data, err := SaveModel(orig)
	require.NoError(t, err)

	loaded, err := LoadModel(data)
	require.NoError(t, err)
	require.NoError(t, loaded.Attach(testSignal(t)))

	want, err := orig.ModelSpectrum([]int{1, 2})
	require.NoError(t, err)
	got, err := loaded.ModelSpectrum([]int{1, 2})
	require.NoError(t, err)
	requireSameBits(t, want, got)
}

func TestSignalRoundTrip(t *testing.T) {
	data := []float64{1, math.NaN(), math.Inf(-1), math.Copysign(0, -1), 1e-310, 42}
	s, err := signal.New(data, []int{3}, signal.NewEnergyAxis(0, 1, 2), signal.WithTitle("tiny"))
	require.NoError(t, err)

	for _, opts := range [][]Option{
		nil,
		{WithValueEncoding(format.ValueXOR), WithCompression(format.CompressionLZ4)},
		{WithBigEndian(), WithCompression(format.CompressionS2)},
	} {
		encoded, err := SaveSignal(s, opts...)
		require.NoError(t, err)

		got, err := LoadSignal(encoded)
		require.NoError(t, err)
		require.Equal(t, s.Axis(), got.Axis())
		require.Equal(t, s.NavShape(), got.NavShape())
		require.Equal(t, s.NavigationAxes(), got.NavigationAxes())
		require.Equal(t, "tiny", got.Title())
		requireSameBits(t, s.Data(), got.Data())
	}

	full := testSignal(t)
	encoded, err := SaveSignal(full)
	require.NoError(t, err)
	got, err := LoadSignal(encoded)
	require.NoError(t, err)
	require.Equal(t, full.NavigationAxes(), got.NavigationAxes())
	requireSameBits(t, full.Data(), got.Data())
}

func TestLoad_RejectsDamagedArchives(t *testing.T) {
	data, err := SaveModel(testModel(t), WithCompression(format.CompressionNone))
	require.NoError(t, err)

	t.Run("checksum", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[len(bad)-1] ^= 0xFF
		_, err := LoadModel(bad)
		require.ErrorIs(t, err, errs.ErrChecksumMismatch)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := LoadModel(data[:len(data)-3])
		require.ErrorIs(t, err, errs.ErrTruncatedPayload)
	})

	t.Run("short header", func(t *testing.T) {
		_, err := LoadModel(data[:section.HeaderSize-1])
		require.ErrorIs(t, err, errs.ErrInvalidHeaderSize)
	})

	t.Run("magic", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[1] = 0x12
		_, err := LoadModel(bad)
		require.ErrorIs(t, err, errs.ErrInvalidMagic)
	})

	t.Run("wrong kind", func(t *testing.T) {
		_, err := LoadSignal(data)
		require.ErrorIs(t, err, errs.ErrWrongArchiveKind)
	})
}

// unregistered is a component whose kind no factory knows.
type unregistered struct {
	component.Base
}

func (u *unregistered) Function(_, params, dst []float64) {
	for i := range dst {
		dst[i] = params[0]
	}
}

func TestLoadModel_UnknownKind(t *testing.T) {
	c := &unregistered{Base: component.NewBase("unregistered-kind", "custom", component.NewParameter("level", 1))}
	m, err := model.New(testSignal(t), []component.Component{c})
	require.NoError(t, err)

	data, err := SaveModel(m)
	require.NoError(t, err)

	_, err = LoadModel(data)
	require.ErrorIs(t, err, errs.ErrUnknownKind)
}

func TestSaveOptions_Validate(t *testing.T) {
	_, err := SaveModel(testModel(t), WithCompression(format.CompressionType(9)))
	require.Error(t, err)
	_, err = SaveModel(testModel(t), WithValueEncoding(format.ValueEncoding(7)))
	require.Error(t, err)
}
