package compress

import (
	"encoding/binary"
	"math"
	"math/rand"
	"testing"

	"github.com/arloliu/eelsfit/format"
	"github.com/stretchr/testify/require"
)

// spectrumPayload encodes a smooth decaying background like the ones archives store.
func spectrumPayload(n int) []byte {
	buf := make([]byte, 0, n*8)
	for i := range n {
		e := 300.0 + float64(i)*0.5
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(1e9*math.Pow(e, -3)))
	}

	return buf
}

func TestCodecsRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	noisy := make([]byte, 4096)
	rng.Read(noisy)

	payloads := map[string][]byte{
		"spectrum": spectrumPayload(2048),
		"noise":    noisy,
		"single":   {0x42},
	}

	for _, ct := range []format.CompressionType{
		format.CompressionNone,
		format.CompressionZstd,
		format.CompressionS2,
		format.CompressionLZ4,
	} {
		codec, err := GetCodec(ct)
		require.NoError(t, err)

		for name, data := range payloads {
			t.Run(ct.String()+"/"+name, func(t *testing.T) {
				packed, err := codec.Compress(data)
				require.NoError(t, err)

				out, err := codec.Decompress(packed)
				require.NoError(t, err)
				require.Equal(t, data, out)
			})
		}
	}
}

func TestCodecsEmptyInput(t *testing.T) {
	for _, codec := range []Codec{NewZstdCompressor(), NewS2Compressor(), NewLZ4Compressor()} {
		packed, err := codec.Compress(nil)
		require.NoError(t, err)
		require.Empty(t, packed)

		out, err := codec.Decompress(nil)
		require.NoError(t, err)
		require.Empty(t, out)
	}
}

func TestZstdShrinksSmoothSpectrum(t *testing.T) {
	data := spectrumPayload(8192)
	packed, err := NewZstdCompressor().Compress(data)
	require.NoError(t, err)

	stats := CompressionStats{
		Algorithm:      format.CompressionZstd,
		OriginalSize:   int64(len(data)),
		CompressedSize: int64(len(packed)),
	}
	require.Less(t, stats.CompressionRatio(), 1.0)
	require.Greater(t, stats.SpaceSavings(), 0.0)
}

func TestCorruptedInput(t *testing.T) {
	garbage := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03}

	_, err := NewZstdCompressor().Decompress(garbage)
	require.Error(t, err)

	_, err = NewS2Compressor().Decompress(garbage)
	require.Error(t, err)
}

func TestGetCodec(t *testing.T) {
	codec, err := GetCodec(format.CompressionS2)
	require.NoError(t, err)
	require.IsType(t, S2Compressor{}, codec)

	_, err = GetCodec(format.CompressionType(0x7f))
	require.ErrorContains(t, err, "unsupported compression type")
}

func TestCompressionStatsEmpty(t *testing.T) {
	require.Equal(t, 0.0, CompressionStats{}.CompressionRatio())
}
