package encoding

import (
	"fmt"
	"iter"
	"math"

	"github.com/arloliu/eelsfit/endian"
	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/internal/pool"
)

// FloatRawEncoder writes float64 values as IEEE 754 words in the byte order of
// its endian engine.
type FloatRawEncoder struct {
	buf    *pool.ByteBuffer
	engine endian.EndianEngine
	count  int
}

var _ ColumnarEncoder[float64] = (*FloatRawEncoder)(nil)

// NewFloatRawEncoder creates a raw float encoder backed by a pooled column buffer.
func NewFloatRawEncoder(engine endian.EndianEngine) *FloatRawEncoder {
	return &FloatRawEncoder{
		engine: engine,
		buf:    pool.GetColumnBuffer(),
	}
}

// Write appends one value.
//
// Panics if Finish has been called.
func (e *FloatRawEncoder) Write(val float64) {
	if e.buf == nil {
		panic("encoder already finished - cannot write after Finish()")
	}

	e.count++
	e.buf.Grow(8)
	e.buf.B = e.engine.AppendUint64(e.buf.B, math.Float64bits(val))
}

// WriteSlice appends values, growing the buffer once.
//
// Panics if Finish has been called.
func (e *FloatRawEncoder) WriteSlice(values []float64) {
	if e.buf == nil {
		panic("encoder already finished - cannot write after Finish()")
	}
	if len(values) == 0 {
		return
	}

	e.count += len(values)
	e.buf.Grow(len(values) * 8)
	for _, v := range values {
		e.buf.B = e.engine.AppendUint64(e.buf.B, math.Float64bits(v))
	}
}

// Bytes returns the encoded column.
func (e *FloatRawEncoder) Bytes() []byte {
	if e.buf == nil {
		panic("encoder already finished - cannot access bytes after Finish()")
	}

	return e.buf.Bytes()
}

// Len returns the number of values written.
func (e *FloatRawEncoder) Len() int {
	return e.count
}

// Size returns the encoded size, always 8 × Len().
func (e *FloatRawEncoder) Size() int {
	if e.buf == nil {
		panic("encoder already finished - cannot access size after Finish()")
	}

	return e.buf.Len()
}

// Finish returns the buffer to the pool.
func (e *FloatRawEncoder) Finish() {
	if e.buf != nil {
		pool.PutColumnBuffer(e.buf)
		e.buf = nil
	}
	e.count = 0
}

// FloatRawDecoder reads columns written by FloatRawEncoder. It is stateless.
type FloatRawDecoder struct {
	engine endian.EndianEngine
}

var _ ColumnarDecoder[float64] = FloatRawDecoder{}

// NewFloatRawDecoder creates a decoder; engine must match the encoder's.
func NewFloatRawDecoder(engine endian.EndianEngine) FloatRawDecoder {
	return FloatRawDecoder{engine: engine}
}

// All yields count values, or nothing when data is shorter than count words.
func (d FloatRawDecoder) All(data []byte, count int) iter.Seq[float64] {
	return func(yield func(float64) bool) {
		if count <= 0 || len(data) < count*8 {
			return
		}

		for i := range count {
			if !yield(math.Float64frombits(d.engine.Uint64(data[i*8:]))) {
				return
			}
		}
	}
}

// At returns the value at index.
func (d FloatRawDecoder) At(data []byte, index int) (float64, bool) {
	start := index * 8
	if index < 0 || start+8 > len(data) {
		return 0, false
	}

	return math.Float64frombits(d.engine.Uint64(data[start:])), true
}

// DecodeInto fills dst from data.
func (d FloatRawDecoder) DecodeInto(data []byte, dst []float64) error {
	if len(data) < len(dst)*8 {
		return fmt.Errorf("%w: raw column needs %d bytes, have %d", errs.ErrTruncatedPayload, len(dst)*8, len(data))
	}

	for i := range dst {
		dst[i] = math.Float64frombits(d.engine.Uint64(data[i*8:]))
	}

	return nil
}
