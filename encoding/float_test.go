package encoding

import (
	"math"
	"math/rand"
	"testing"

	"github.com/arloliu/eelsfit/endian"
	"github.com/arloliu/eelsfit/errs"
	"github.com/stretchr/testify/require"
)

// specialValues covers bit patterns that must survive unchanged.
func specialValues() []float64 {
	return []float64{
		0,
		math.Copysign(0, -1),
		1,
		-1,
		math.Inf(1),
		math.Inf(-1),
		math.NaN(),
		math.Float64frombits(0x7ff8dead_beef0001), // NaN with payload
		math.SmallestNonzeroFloat64,
		math.MaxFloat64,
		60,
		60,
		60.000000000001,
		1e-300,
	}
}

func requireSameBits(t *testing.T, want, got []float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.Equalf(t, math.Float64bits(want[i]), math.Float64bits(got[i]), "index %d", i)
	}
}

func TestFloatRawRoundTrip(t *testing.T) {
	for _, engine := range []endian.EndianEngine{endian.GetLittleEndianEngine(), endian.GetBigEndianEngine()} {
		values := specialValues()

		enc := NewFloatRawEncoder(engine)
		enc.Write(values[0])
		enc.WriteSlice(values[1:])
		require.Equal(t, len(values), enc.Len())
		require.Equal(t, len(values)*8, enc.Size())

		data := append([]byte(nil), enc.Bytes()...)
		enc.Finish()

		dec := NewFloatRawDecoder(engine)
		got := make([]float64, len(values))
		require.NoError(t, dec.DecodeInto(data, got))
		requireSameBits(t, values, got)

		var iterated []float64
		for v := range dec.All(data, len(values)) {
			iterated = append(iterated, v)
		}
		requireSameBits(t, values, iterated)

		v, ok := dec.At(data, 10)
		require.True(t, ok)
		require.Equal(t, 60.0, v)

		_, ok = dec.At(data, len(values))
		require.False(t, ok)
	}
}

func TestFloatRawByteOrder(t *testing.T) {
	le := NewFloatRawEncoder(endian.GetLittleEndianEngine())
	defer le.Finish()
	be := NewFloatRawEncoder(endian.GetBigEndianEngine())
	defer be.Finish()

	le.Write(1.0)
	be.Write(1.0)

	require.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0xf0, 0x3f}, le.Bytes())
	require.Equal(t, []byte{0x3f, 0xf0, 0, 0, 0, 0, 0, 0}, be.Bytes())
}

func TestFloatRawTruncated(t *testing.T) {
	dec := NewFloatRawDecoder(endian.GetLittleEndianEngine())
	err := dec.DecodeInto(make([]byte, 15), make([]float64, 2))
	require.ErrorIs(t, err, errs.ErrTruncatedPayload)
}

func TestFloatRawFinishPanics(t *testing.T) {
	enc := NewFloatRawEncoder(endian.GetLittleEndianEngine())
	enc.Finish()
	require.Panics(t, func() { enc.Write(1) })
}

func TestFloatXORRoundTripSpecials(t *testing.T) {
	values := specialValues()

	enc := NewFloatXOREncoder()
	defer enc.Finish()
	enc.WriteSlice(values)

	got := make([]float64, len(values))
	require.NoError(t, NewFloatXORDecoder().DecodeInto(enc.Bytes(), got))
	requireSameBits(t, values, got)
}

func TestFloatXORRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	values := make([]float64, 5000)
	for i := range values {
		switch rng.Intn(4) {
		case 0:
			values[i] = math.Float64frombits(rng.Uint64())
		case 1:
			values[i] = 100 + rng.NormFloat64()
		case 2:
			if i > 0 {
				values[i] = values[i-1]
			}
		default:
			values[i] = float64(rng.Intn(10))
		}
	}

	enc := NewFloatXOREncoder()
	defer enc.Finish()
	for _, v := range values {
		enc.Write(v)
	}
	require.Equal(t, len(values), enc.Len())
	require.Len(t, enc.Bytes(), enc.Size())

	got := make([]float64, 0, len(values))
	for v := range NewFloatXORDecoder().All(enc.Bytes(), len(values)) {
		got = append(got, v)
	}
	requireSameBits(t, values, got)
}

func TestFloatXORCompressesSmoothMaps(t *testing.T) {
	values := make([]float64, 1024)
	for i := range values {
		values[i] = 60
	}
	values[512] = 61

	enc := NewFloatXOREncoder()
	defer enc.Finish()
	enc.WriteSlice(values)

	require.Less(t, enc.Size(), len(values)) // well under one byte per value
}

func TestFloatXORTruncated(t *testing.T) {
	enc := NewFloatXOREncoder()
	defer enc.Finish()
	enc.WriteSlice([]float64{1, 2, 3, 4})

	data := enc.Bytes()
	err := NewFloatXORDecoder().DecodeInto(data[:len(data)-2], make([]float64, 4))
	require.ErrorIs(t, err, errs.ErrTruncatedPayload)

	require.Error(t, NewFloatXORDecoder().DecodeInto(nil, make([]float64, 1)))
	require.NoError(t, NewFloatXORDecoder().DecodeInto(nil, nil))
}
