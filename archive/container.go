// Package archive stores spectrum images and fitted models in a compact,
// checksummed binary container.
//
// Every archive starts with the 32-byte section.Header. The header records
// the archive kind, the byte order, the float column encoding, the payload
// compression, the navigation size, the channel count, the component count,
// the compressed payload length and the xxHash64 of the uncompressed payload.
//
// The uncompressed payload has three parts:
//
//	u32 string count | u32 string bytes | length-prefixed strings
//	u32 meta bytes   | fixed-width metadata in the header byte order
//	columns          | repeated u32 byte length + encoded column
//
// Strings and metadata are consumed in the same order they were written.
// Float64 values are stored bit-exact in every encoding.
package archive

import (
	"fmt"
	"log/slog"

	"github.com/arloliu/eelsfit/compress"
	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/format"
	"github.com/arloliu/eelsfit/internal/hash"
	"github.com/arloliu/eelsfit/section"
)

// seal compresses payload and prepends h. The returned slice never aliases
// payload.
func seal(h *section.Header, payload []byte, logger *slog.Logger) ([]byte, error) {
	codec, err := compress.GetCodec(h.Flag.Compression())
	if err != nil {
		return nil, err
	}

	body, err := codec.Compress(payload)
	if err != nil {
		return nil, fmt.Errorf("compress %s payload: %w", h.Flag.Kind, err)
	}

	h.PayloadLength = uint64(len(body))
	h.Checksum = hash.Checksum(payload)

	out := make([]byte, 0, section.HeaderSize+len(body))
	out = append(out, h.Bytes()...)
	out = append(out, body...)

	stats := compress.CompressionStats{
		Algorithm:      h.Flag.Compression(),
		OriginalSize:   int64(len(payload)),
		CompressedSize: int64(len(body)),
	}
	logger.Debug("archive written",
		"kind", h.Flag.Kind.String(),
		"compression", stats.Algorithm.String(),
		"payload_bytes", stats.OriginalSize,
		"compressed_bytes", stats.CompressedSize,
		"space_savings_pct", stats.SpaceSavings())

	return out, nil
}

// open validates the header of data, checks its kind and returns the
// decompressed, checksum-verified payload.
func open(data []byte, kind format.ArchiveKind) (section.Header, []byte, error) {
	h, err := section.ParseHeader(data)
	if err != nil {
		return section.Header{}, nil, err
	}
	if h.Flag.Kind != kind {
		return section.Header{}, nil, fmt.Errorf("%w: want %s, have %s", errs.ErrWrongArchiveKind, kind, h.Flag.Kind)
	}

	body := data[section.HeaderSize:]
	if uint64(len(body)) != h.PayloadLength {
		return section.Header{}, nil, fmt.Errorf("%w: header says %d bytes, have %d", errs.ErrTruncatedPayload, h.PayloadLength, len(body))
	}

	codec, err := compress.GetCodec(h.Flag.Compression())
	if err != nil {
		return section.Header{}, nil, err
	}
	payload, err := codec.Decompress(body)
	if err != nil {
		return section.Header{}, nil, fmt.Errorf("decompress %s payload: %w", kind, err)
	}
	if sum := hash.Checksum(payload); sum != h.Checksum {
		return section.Header{}, nil, fmt.Errorf("%w: header 0x%016x, payload 0x%016x", errs.ErrChecksumMismatch, h.Checksum, sum)
	}

	return h, payload, nil
}

// Kind reports the kind of archive data holds without decoding its payload.
func Kind(data []byte) (format.ArchiveKind, error) {
	h, err := section.ParseHeader(data)
	if err != nil {
		return 0, err
	}

	return h.Flag.Kind, nil
}
