package archive

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/arloliu/eelsfit/encoding"
	"github.com/arloliu/eelsfit/endian"
	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/format"
	"github.com/arloliu/eelsfit/internal/pool"
	"github.com/arloliu/eelsfit/section"
)

// payloadWriter accumulates the three payload parts. It must be released.
type payloadWriter struct {
	engine  endian.EndianEngine
	enc     format.ValueEncoding
	strs    *encoding.VarStringEncoder
	meta    *pool.ByteBuffer
	columns *pool.ByteBuffer
}

func newPayloadWriter(h *section.Header) *payloadWriter {
	return &payloadWriter{
		engine:  h.Flag.Engine(),
		enc:     h.Flag.ValueEncoding(),
		strs:    encoding.NewVarStringEncoder(),
		meta:    pool.GetArchiveBuffer(),
		columns: pool.GetArchiveBuffer(),
	}
}

func (w *payloadWriter) release() {
	w.strs.Finish()
	pool.PutArchiveBuffer(w.meta)
	pool.PutArchiveBuffer(w.columns)
}

func (w *payloadWriter) str(s string) error {
	return w.strs.Write(s)
}

func (w *payloadWriter) u8(v uint8) {
	_ = w.meta.WriteByte(v)
}

func (w *payloadWriter) u32(v int) {
	w.meta.B = w.engine.AppendUint32(w.meta.B, uint32(v)) //nolint:gosec
}

func (w *payloadWriter) u64(v uint64) {
	w.meta.B = w.engine.AppendUint64(w.meta.B, v)
}

func (w *payloadWriter) f64(v float64) {
	w.meta.B = w.engine.AppendUint64(w.meta.B, math.Float64bits(v))
}

func (w *payloadWriter) column(col []byte) {
	w.columns.Grow(4 + len(col))
	w.columns.B = w.engine.AppendUint32(w.columns.B, uint32(len(col))) //nolint:gosec
	w.columns.B = append(w.columns.B, col...)
}

// floats appends values as one column in the configured value encoding.
func (w *payloadWriter) floats(values []float64) {
	switch w.enc {
	case format.ValueXOR:
		enc := encoding.NewFloatXOREncoder()
		enc.WriteSlice(values)
		w.column(enc.Bytes())
		enc.Finish()
	default:
		enc := encoding.NewFloatRawEncoder(w.engine)
		enc.WriteSlice(values)
		w.column(enc.Bytes())
		enc.Finish()
	}
}

func (w *payloadWriter) bits(flags []bool) {
	w.column(encoding.AppendBitset(nil, flags))
}

// seal assembles the payload and wraps it with h.
func (w *payloadWriter) seal(h *section.Header, logger *slog.Logger) ([]byte, error) {
	buf := pool.GetArchiveBuffer()
	defer pool.PutArchiveBuffer(buf)

	buf.Grow(12 + w.strs.Size() + w.meta.Len() + w.columns.Len())
	buf.B = w.engine.AppendUint32(buf.B, uint32(w.strs.Len()))  //nolint:gosec
	buf.B = w.engine.AppendUint32(buf.B, uint32(w.strs.Size())) //nolint:gosec
	buf.B = append(buf.B, w.strs.Bytes()...)
	buf.B = w.engine.AppendUint32(buf.B, uint32(w.meta.Len())) //nolint:gosec
	buf.B = append(buf.B, w.meta.B...)
	buf.B = append(buf.B, w.columns.B...)

	return seal(h, buf.B, logger)
}

// payloadReader consumes a payload written by payloadWriter. The first
// decoding error is sticky; later reads return zero values.
type payloadReader struct {
	engine endian.EndianEngine
	enc    format.ValueEncoding

	strs []string
	si   int
	meta []byte
	mi   int
	cols []byte
	ci   int

	err error
}

func newPayloadReader(h section.Header, payload []byte) (*payloadReader, error) {
	r := &payloadReader{engine: h.Flag.Engine(), enc: h.Flag.ValueEncoding()}

	if len(payload) < 8 {
		return nil, fmt.Errorf("%w: payload of %d bytes", errs.ErrTruncatedPayload, len(payload))
	}
	count := int(r.engine.Uint32(payload[0:4]))
	size := int(r.engine.Uint32(payload[4:8]))
	rest := payload[8:]
	if size > len(rest) || count > size {
		return nil, fmt.Errorf("%w: string table of %d bytes, have %d", errs.ErrTruncatedPayload, size, len(rest))
	}
	strs, used, err := encoding.DecodeStrings(rest[:size], count)
	if err != nil {
		return nil, err
	}
	if used != size {
		return nil, fmt.Errorf("%w: string table has %d trailing bytes", errs.ErrTruncatedPayload, size-used)
	}
	r.strs = strs
	rest = rest[size:]

	if len(rest) < 4 {
		return nil, fmt.Errorf("%w: missing metadata length", errs.ErrTruncatedPayload)
	}
	metaLen := int(r.engine.Uint32(rest[0:4]))
	rest = rest[4:]
	if metaLen > len(rest) {
		return nil, fmt.Errorf("%w: metadata of %d bytes, have %d", errs.ErrTruncatedPayload, metaLen, len(rest))
	}
	r.meta = rest[:metaLen]
	r.cols = rest[metaLen:]

	return r, nil
}

func (r *payloadReader) fail(msg string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: "+msg, append([]any{errs.ErrTruncatedPayload}, args...)...)
	}
}

func (r *payloadReader) str() string {
	if r.err != nil {
		return ""
	}
	if r.si >= len(r.strs) {
		r.fail("string %d of %d", r.si, len(r.strs))
		return ""
	}
	s := r.strs[r.si]
	r.si++

	return s
}

func (r *payloadReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.mi+n > len(r.meta) {
		r.fail("metadata needs %d bytes at offset %d, have %d", n, r.mi, len(r.meta))
		return nil
	}
	b := r.meta[r.mi : r.mi+n]
	r.mi += n

	return b
}

func (r *payloadReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}

	return b[0]
}

func (r *payloadReader) u32() int {
	b := r.take(4)
	if b == nil {
		return 0
	}

	return int(r.engine.Uint32(b))
}

func (r *payloadReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}

	return r.engine.Uint64(b)
}

func (r *payloadReader) f64() float64 {
	return math.Float64frombits(r.u64())
}

func (r *payloadReader) column() []byte {
	if r.err != nil {
		return nil
	}
	if r.ci+4 > len(r.cols) {
		r.fail("missing column length at offset %d", r.ci)
		return nil
	}
	n := int(r.engine.Uint32(r.cols[r.ci:]))
	r.ci += 4
	if r.ci+n > len(r.cols) {
		r.fail("column of %d bytes at offset %d, have %d", n, r.ci, len(r.cols)-r.ci)
		return nil
	}
	col := r.cols[r.ci : r.ci+n]
	r.ci += n

	return col
}

func (r *payloadReader) floats(n int) []float64 {
	col := r.column()
	if r.err != nil {
		return nil
	}

	out := make([]float64, n)
	var err error
	switch r.enc {
	case format.ValueXOR:
		err = encoding.NewFloatXORDecoder().DecodeInto(col, out)
	default:
		err = encoding.NewFloatRawDecoder(r.engine).DecodeInto(col, out)
	}
	if err != nil {
		r.err = err
		return nil
	}

	return out
}

func (r *payloadReader) bits(n int) []bool {
	col := r.column()
	if r.err != nil {
		return nil
	}

	out, err := encoding.DecodeBitset(col, n)
	if err != nil {
		r.err = err
		return nil
	}

	return out
}

// done returns the first decoding error, or an error when the payload has
// unread content.
func (r *payloadReader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.si != len(r.strs) || r.mi != len(r.meta) || r.ci != len(r.cols) {
		return errs.ErrTrailingData
	}

	return nil
}
