package endian

import (
	"encoding/binary"
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestCheckEndianness(t *testing.T) {
	var marker uint16 = 0x0102
	first := (*[2]byte)(unsafe.Pointer(&marker))[0]

	switch first {
	case 0x01:
		require.Equal(t, binary.BigEndian, CheckEndianness())
		require.False(t, IsNativeLittleEndian())
	case 0x02:
		require.Equal(t, binary.LittleEndian, CheckEndianness())
		require.True(t, IsNativeLittleEndian())
	default:
		require.Failf(t, "unexpected byte value", "got %v", first)
	}
}

func TestForFlag(t *testing.T) {
	require.Equal(t, GetBigEndianEngine(), ForFlag(true))
	require.Equal(t, GetLittleEndianEngine(), ForFlag(false))
	require.True(t, IsLittleEndian(ForFlag(false)))
	require.False(t, IsLittleEndian(ForFlag(true)))
}

func TestEngineFloatWords(t *testing.T) {
	// Both engines must round-trip the exact IEEE 754 bits, including NaN payloads.
	values := []float64{0, -0.0, 1.5, math.Inf(-1), math.Float64frombits(0x7ff8000000000001)}

	for _, engine := range []EndianEngine{GetLittleEndianEngine(), GetBigEndianEngine()} {
		var buf []byte
		for _, v := range values {
			buf = engine.AppendUint64(buf, math.Float64bits(v))
		}
		require.Len(t, buf, len(values)*8)

		for i, v := range values {
			got := engine.Uint64(buf[i*8:])
			require.Equal(t, math.Float64bits(v), got)
		}
	}
}
