package section

import (
	"fmt"

	"github.com/arloliu/eelsfit/endian"
	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/format"
)

// Flag holds the packed option and codec bytes of the header.
type Flag struct {
	// Options packs the endianness and collision bits with the magic number.
	Options uint16
	// Kind says whether the archive holds a signal or a model.
	Kind format.ArchiveKind
	// Codecs packs the value encoding (bits 0-3) and compression (bits 4-7).
	Codecs uint8
}

// NewFlag returns a little-endian, raw, uncompressed flag for kind.
func NewFlag(kind format.ArchiveKind) Flag {
	f := Flag{Options: MagicArchiveV1, Kind: kind}
	f.SetValueEncoding(format.ValueRaw)
	f.SetCompression(format.CompressionNone)

	return f
}

// IsBigEndian reports whether the archive body is big-endian.
func (f Flag) IsBigEndian() bool {
	return f.Options&EndiannessMask != 0
}

// SetBigEndian selects the byte order.
func (f *Flag) SetBigEndian(big bool) {
	if big {
		f.Options |= EndiannessMask
	} else {
		f.Options &^= EndiannessMask
	}
}

// HasCollision reports whether component name IDs collide.
func (f Flag) HasCollision() bool {
	return f.Options&CollisionMask != 0
}

// SetCollision records a name ID collision.
func (f *Flag) SetCollision(collision bool) {
	if collision {
		f.Options |= CollisionMask
	} else {
		f.Options &^= CollisionMask
	}
}

// ValueEncoding returns the float column encoding.
func (f Flag) ValueEncoding() format.ValueEncoding {
	return format.ValueEncoding(f.Codecs & 0x0F)
}

// SetValueEncoding sets the float column encoding.
func (f *Flag) SetValueEncoding(enc format.ValueEncoding) {
	f.Codecs &^= 0x0F
	f.Codecs |= uint8(enc) & 0x0F
}

// Compression returns the payload compression.
func (f Flag) Compression() format.CompressionType {
	return format.CompressionType(f.Codecs >> 4)
}

// SetCompression sets the payload compression.
func (f *Flag) SetCompression(c format.CompressionType) {
	f.Codecs &^= 0xF0
	f.Codecs |= (uint8(c) & 0x0F) << 4
}

// Engine returns the endian engine for the archive body.
func (f Flag) Engine() endian.EndianEngine {
	return endian.ForFlag(f.IsBigEndian())
}

// Validate checks magic, version, reserved bits, kind and codecs.
func (f Flag) Validate() error {
	if f.Options&MagicFamilyMask != MagicFamily {
		return errs.ErrInvalidMagic
	}
	if f.Options&MagicNumberMask != MagicArchiveV1 {
		return fmt.Errorf("%w: 0x%x", errs.ErrInvalidVersion, (f.Options&VersionMask)>>4)
	}
	if f.Options&ReservedMask != 0 {
		return fmt.Errorf("%w: reserved bits set", errs.ErrInvalidHeaderFlags)
	}

	switch f.Kind {
	case format.KindSignal, format.KindModel:
	default:
		return fmt.Errorf("%w: kind 0x%x", errs.ErrInvalidHeaderFlags, uint8(f.Kind))
	}

	switch f.ValueEncoding() {
	case format.ValueRaw, format.ValueXOR:
	default:
		return fmt.Errorf("%w: value encoding 0x%x", errs.ErrInvalidHeaderFlags, uint8(f.ValueEncoding()))
	}

	switch f.Compression() {
	case format.CompressionNone, format.CompressionZstd, format.CompressionS2, format.CompressionLZ4:
	default:
		return fmt.Errorf("%w: compression 0x%x", errs.ErrInvalidHeaderFlags, uint8(f.Compression()))
	}

	return nil
}
