package encoding

import "iter"

// ColumnarEncoder appends values of type T to an internal buffer.
type ColumnarEncoder[T comparable] interface {
	// Bytes returns the encoded column. The slice is valid until the next write
	// or Finish and must not be modified.
	Bytes() []byte

	// Len returns the number of values written.
	Len() int

	// Size returns the encoded size in bytes.
	Size() int

	// Finish returns the buffer to its pool. The encoder is unusable afterwards.
	//
	//	enc := NewFloatRawEncoder(engine)
	//	defer enc.Finish()
	Finish()

	// Write appends a single value.
	Write(data T)

	// WriteSlice appends values in order.
	WriteSlice(values []T)
}

// ColumnarDecoder reads a column produced by the matching ColumnarEncoder.
type ColumnarDecoder[T comparable] interface {
	// All yields up to count decoded values. It stops early on malformed data.
	All(data []byte, count int) iter.Seq[T]

	// DecodeInto decodes exactly len(dst) values into dst, returning an error
	// when data holds fewer.
	DecodeInto(data []byte, dst []T) error
}
