package encoding

import (
	"fmt"
	"iter"
	"math"
	"math/bits"

	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/internal/pool"
)

// maxLeading is the largest leading-zero count representable in the 5-bit field.
const maxLeading = 31

// FloatXOREncoder compresses float64 values with the Gorilla XOR scheme.
//
// Stream layout, MSB first:
//   - first value: 64 raw bits
//   - unchanged value: '0'
//   - changed, fits previous window: '10' + meaningful bits
//   - changed, new window: '11' + 5 bits leading zeros + 6 bits (length-1) + meaningful bits
//
// The stream is byte-aligned only at the end; the last byte is zero-padded.
type FloatXOREncoder struct {
	prev      uint64
	cur       byte // partially filled output byte
	nbits     int  // bits used in cur
	count     int
	leading   int
	trailing  int
	hasWindow bool

	buf *pool.ByteBuffer
}

var _ ColumnarEncoder[float64] = (*FloatXOREncoder)(nil)

// NewFloatXOREncoder creates an XOR encoder backed by a pooled column buffer.
func NewFloatXOREncoder() *FloatXOREncoder {
	return &FloatXOREncoder{buf: pool.GetColumnBuffer()}
}

// Write appends one value.
//
// Panics if Finish has been called.
func (e *FloatXOREncoder) Write(val float64) {
	if e.buf == nil {
		panic("encoder already finished - cannot write after Finish()")
	}

	v := math.Float64bits(val)
	e.count++
	if e.count == 1 {
		e.prev = v
		e.writeBits(v, 64)

		return
	}

	xor := v ^ e.prev
	e.prev = v
	if xor == 0 {
		e.writeBits(0, 1)
		return
	}

	leading := min(bits.LeadingZeros64(xor), maxLeading)
	trailing := bits.TrailingZeros64(xor)

	if e.hasWindow && leading >= e.leading && trailing >= e.trailing {
		e.writeBits(0b10, 2)
		e.writeBits(xor>>e.trailing, 64-e.leading-e.trailing)

		return
	}

	sig := 64 - leading - trailing
	e.writeBits(0b11, 2)
	e.writeBits(uint64(leading), 5) //nolint:gosec
	e.writeBits(uint64(sig-1), 6)   //nolint:gosec
	e.writeBits(xor>>trailing, sig)
	e.leading, e.trailing, e.hasWindow = leading, trailing, true
}

// WriteSlice appends values in order.
func (e *FloatXOREncoder) WriteSlice(values []float64) {
	for _, v := range values {
		e.Write(v)
	}
}

// Bytes returns the encoded stream including the zero-padded trailing byte.
func (e *FloatXOREncoder) Bytes() []byte {
	if e.buf == nil {
		panic("encoder already finished - cannot access bytes after Finish()")
	}

	out := e.buf.Bytes()
	if e.nbits > 0 {
		out = append(out[:len(out):len(out)], e.cur)
	}

	return out
}

// Len returns the number of values written.
func (e *FloatXOREncoder) Len() int {
	return e.count
}

// Size returns the encoded size in bytes.
func (e *FloatXOREncoder) Size() int {
	if e.buf == nil {
		panic("encoder already finished - cannot access size after Finish()")
	}

	if e.nbits > 0 {
		return e.buf.Len() + 1
	}

	return e.buf.Len()
}

// Finish returns the buffer to the pool.
func (e *FloatXOREncoder) Finish() {
	if e.buf != nil {
		pool.PutColumnBuffer(e.buf)
		e.buf = nil
	}
	*e = FloatXOREncoder{}
}

// writeBits appends the n low bits of v, most significant first.
func (e *FloatXOREncoder) writeBits(v uint64, n int) {
	for n > 0 {
		free := 8 - e.nbits
		take := min(free, n)
		chunk := (v >> (n - take)) & (1<<take - 1)
		e.cur |= byte(chunk) << (free - take) //nolint:gosec
		e.nbits += take
		n -= take

		if e.nbits == 8 {
			_ = e.buf.WriteByte(e.cur)
			e.cur, e.nbits = 0, 0
		}
	}
}

// FloatXORDecoder reads streams written by FloatXOREncoder. It is stateless.
type FloatXORDecoder struct{}

var _ ColumnarDecoder[float64] = FloatXORDecoder{}

// NewFloatXORDecoder creates an XOR decoder.
func NewFloatXORDecoder() FloatXORDecoder {
	return FloatXORDecoder{}
}

// All yields up to count values, stopping early on a truncated or corrupt stream.
func (d FloatXORDecoder) All(data []byte, count int) iter.Seq[float64] {
	return func(yield func(float64) bool) {
		r := xorReader{data: data}
		for range count {
			v, ok := r.next()
			if !ok || !yield(math.Float64frombits(v)) {
				return
			}
		}
	}
}

// DecodeInto fills dst from data.
func (d FloatXORDecoder) DecodeInto(data []byte, dst []float64) error {
	r := xorReader{data: data}
	for i := range dst {
		v, ok := r.next()
		if !ok {
			return fmt.Errorf("%w: xor column ended after %d of %d values", errs.ErrTruncatedPayload, i, len(dst))
		}
		dst[i] = math.Float64frombits(v)
	}

	return nil
}

type xorReader struct {
	data     []byte
	pos      int // bit position
	prev     uint64
	leading  int
	trailing int
	started  bool
	window   bool
}

func (r *xorReader) next() (uint64, bool) {
	if !r.started {
		v, ok := r.readBits(64)
		if !ok {
			return 0, false
		}
		r.prev, r.started = v, true

		return v, true
	}

	changed, ok := r.readBits(1)
	if !ok {
		return 0, false
	}
	if changed == 0 {
		return r.prev, true
	}

	newWindow, ok := r.readBits(1)
	if !ok {
		return 0, false
	}

	if newWindow == 1 {
		leading, ok1 := r.readBits(5)
		sigMinusOne, ok2 := r.readBits(6)
		if !ok1 || !ok2 {
			return 0, false
		}
		r.leading = int(leading)                           //nolint:gosec
		r.trailing = 64 - r.leading - int(sigMinusOne) - 1 //nolint:gosec
		if r.trailing < 0 {
			return 0, false
		}
		r.window = true
	} else if !r.window {
		return 0, false
	}

	meaningful, ok := r.readBits(64 - r.leading - r.trailing)
	if !ok {
		return 0, false
	}
	r.prev ^= meaningful << r.trailing

	return r.prev, true
}

// readBits reads n bits MSB first.
func (r *xorReader) readBits(n int) (uint64, bool) {
	if r.pos+n > len(r.data)*8 {
		return 0, false
	}

	var v uint64
	for n > 0 {
		byteIdx, bitOff := r.pos/8, r.pos%8
		avail := 8 - bitOff
		take := min(avail, n)
		chunk := (uint64(r.data[byteIdx]) >> (avail - take)) & (1<<take - 1)
		v = v<<take | chunk
		r.pos += take
		n -= take
	}

	return v, true
}
