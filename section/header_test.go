package section

import (
	"testing"

	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/format"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	for _, big := range []bool{false, true} {
		h := NewHeader(format.KindModel)
		h.Flag.SetBigEndian(big)
		h.Flag.SetValueEncoding(format.ValueXOR)
		h.Flag.SetCompression(format.CompressionZstd)
		h.Flag.SetCollision(true)
		h.NavSize = 12
		h.Channels = 2048
		h.ComponentCount = 3
		h.PayloadLength = 1 << 40
		h.Checksum = 0xdeadbeefcafebabe

		data := h.Bytes()
		require.Len(t, data, HeaderSize)

		got, err := ParseHeader(data)
		require.NoError(t, err)
		require.Equal(t, *h, got)
		require.Equal(t, big, got.Flag.IsBigEndian())
		require.True(t, got.Flag.HasCollision())
		require.Equal(t, format.ValueXOR, got.Flag.ValueEncoding())
		require.Equal(t, format.CompressionZstd, got.Flag.Compression())
	}
}

func TestNewFlagDefaults(t *testing.T) {
	f := NewFlag(format.KindSignal)

	require.False(t, f.IsBigEndian())
	require.False(t, f.HasCollision())
	require.Equal(t, format.ValueRaw, f.ValueEncoding())
	require.Equal(t, format.CompressionNone, f.Compression())
	require.NoError(t, f.Validate())

	f.SetBigEndian(false)
	f.SetCollision(false)
	require.NoError(t, f.Validate())
}

func TestParseHeaderErrors(t *testing.T) {
	_, err := ParseHeader(make([]byte, HeaderSize-1))
	require.ErrorIs(t, err, errs.ErrInvalidHeaderSize)

	var h Header
	require.ErrorIs(t, h.Parse(make([]byte, HeaderSize+1)), errs.ErrInvalidHeaderSize)

	valid := NewHeader(format.KindSignal).Bytes()

	badMagic := append([]byte(nil), valid...)
	badMagic[1] = 0xAB
	_, err = ParseHeader(badMagic)
	require.ErrorIs(t, err, errs.ErrInvalidMagic)

	badVersion := append([]byte(nil), valid...)
	badVersion[0] = 0x20 // version 2
	_, err = ParseHeader(badVersion)
	require.ErrorIs(t, err, errs.ErrInvalidVersion)

	reserved := append([]byte(nil), valid...)
	reserved[0] |= 0x04
	_, err = ParseHeader(reserved)
	require.ErrorIs(t, err, errs.ErrInvalidHeaderFlags)

	badKind := append([]byte(nil), valid...)
	badKind[2] = 0x9
	_, err = ParseHeader(badKind)
	require.ErrorIs(t, err, errs.ErrInvalidHeaderFlags)

	badCodec := append([]byte(nil), valid...)
	badCodec[3] = 0xF1
	_, err = ParseHeader(badCodec)
	require.ErrorIs(t, err, errs.ErrInvalidHeaderFlags)

	badEncoding := append([]byte(nil), valid...)
	badEncoding[3] = 0x17
	_, err = ParseHeader(badEncoding)
	require.ErrorIs(t, err, errs.ErrInvalidHeaderFlags)
}
