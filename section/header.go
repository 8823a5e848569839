package section

import (
	"encoding/binary"

	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/format"
)

// Header is the fixed-size archive header.
type Header struct {
	Flag           Flag   // byte offset 0-3
	NavSize        uint32 // byte offset 4-7
	Channels       uint32 // byte offset 8-11
	ComponentCount uint32 // byte offset 12-15
	PayloadLength  uint64 // byte offset 16-23
	Checksum       uint64 // byte offset 24-31
}

// NewHeader creates a header for kind with default flags.
// Sizes and checksum are filled in by the archive writer.
func NewHeader(kind format.ArchiveKind) *Header {
	return &Header{Flag: NewFlag(kind)}
}

// Parse decodes and validates a header.
//
// Parameters:
//   - data: exactly HeaderSize bytes
//
// Returns:
//   - error: ErrInvalidHeaderSize, ErrInvalidMagic, ErrInvalidVersion or ErrInvalidHeaderFlags
func (h *Header) Parse(data []byte) error {
	if len(data) != HeaderSize {
		return errs.ErrInvalidHeaderSize
	}

	h.Flag.Options = binary.LittleEndian.Uint16(data[0:2])
	h.Flag.Kind = format.ArchiveKind(data[2])
	h.Flag.Codecs = data[3]
	if err := h.Flag.Validate(); err != nil {
		return err
	}

	engine := h.Flag.Engine()
	h.NavSize = engine.Uint32(data[4:8])
	h.Channels = engine.Uint32(data[8:12])
	h.ComponentCount = engine.Uint32(data[12:16])
	h.PayloadLength = engine.Uint64(data[16:24])
	h.Checksum = engine.Uint64(data[24:32])

	return nil
}

// Bytes serializes the header.
func (h *Header) Bytes() []byte {
	b := make([]byte, HeaderSize)
	engine := h.Flag.Engine()

	binary.LittleEndian.PutUint16(b[0:2], h.Flag.Options)
	b[2] = uint8(h.Flag.Kind)
	b[3] = h.Flag.Codecs
	engine.PutUint32(b[4:8], h.NavSize)
	engine.PutUint32(b[8:12], h.Channels)
	engine.PutUint32(b[12:16], h.ComponentCount)
	engine.PutUint64(b[16:24], h.PayloadLength)
	engine.PutUint64(b[24:32], h.Checksum)

	return b
}

// ParseHeader parses the header at the start of data.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, errs.ErrInvalidHeaderSize
	}

	var h Header
	if err := h.Parse(data[:HeaderSize]); err != nil {
		return Header{}, err
	}

	return h, nil
}
