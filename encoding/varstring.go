package encoding

import (
	"fmt"
	"iter"

	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/internal/pool"
)

// MaxTextLength is the longest string VarStringEncoder accepts, the range of its
// uint8 length prefix.
const MaxTextLength = 255

// VarStringEncoder writes strings as a 1-byte length followed by the UTF-8 bytes.
// It carries component names, component kinds and parameter names.
type VarStringEncoder struct {
	buf   *pool.ByteBuffer
	count int
}

// NewVarStringEncoder creates a string encoder backed by a pooled column buffer.
func NewVarStringEncoder() *VarStringEncoder {
	return &VarStringEncoder{buf: pool.GetColumnBuffer()}
}

// Write appends text, failing when it exceeds MaxTextLength.
func (e *VarStringEncoder) Write(text string) error {
	if len(text) > MaxTextLength {
		return fmt.Errorf("%w: length %d exceeds maximum %d", errs.ErrInvalidName, len(text), MaxTextLength)
	}

	e.count++
	e.buf.Grow(1 + len(text))
	_ = e.buf.WriteByte(uint8(len(text))) //nolint:gosec
	e.buf.B = append(e.buf.B, text...)

	return nil
}

// WriteSlice appends texts, validating all of them before writing any.
func (e *VarStringEncoder) WriteSlice(texts []string) error {
	total := 0
	for _, text := range texts {
		if len(text) > MaxTextLength {
			return fmt.Errorf("%w: length %d exceeds maximum %d", errs.ErrInvalidName, len(text), MaxTextLength)
		}
		total += 1 + len(text)
	}

	e.buf.Grow(total)
	for _, text := range texts {
		_ = e.buf.WriteByte(uint8(len(text))) //nolint:gosec
		e.buf.B = append(e.buf.B, text...)
		e.count++
	}

	return nil
}

// Bytes returns the encoded strings.
func (e *VarStringEncoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Len returns the number of strings written.
func (e *VarStringEncoder) Len() int {
	return e.count
}

// Size returns the encoded size in bytes.
func (e *VarStringEncoder) Size() int {
	return e.buf.Len()
}

// Finish returns the buffer to the pool.
func (e *VarStringEncoder) Finish() {
	if e.buf != nil {
		pool.PutColumnBuffer(e.buf)
		e.buf = nil
	}
	e.count = 0
}

// AllStrings yields up to count strings from data, stopping on truncation.
func AllStrings(data []byte, count int) iter.Seq[string] {
	return func(yield func(string) bool) {
		offset := 0
		for range count {
			s, n, ok := readVarString(data[offset:])
			if !ok || !yield(s) {
				return
			}
			offset += n
		}
	}
}

// DecodeStrings reads count strings and reports how many bytes they occupied.
func DecodeStrings(data []byte, count int) ([]string, int, error) {
	out := make([]string, 0, count)
	offset := 0
	for i := range count {
		s, n, ok := readVarString(data[offset:])
		if !ok {
			return nil, 0, fmt.Errorf("%w: string %d of %d", errs.ErrTruncatedPayload, i, count)
		}
		out = append(out, s)
		offset += n
	}

	return out, offset, nil
}

func readVarString(data []byte) (string, int, bool) {
	if len(data) == 0 {
		return "", 0, false
	}

	n := int(data[0])
	if 1+n > len(data) {
		return "", 0, false
	}

	return string(data[1 : 1+n]), 1 + n, true
}
