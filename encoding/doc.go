// Package encoding provides the column codecs used inside archive payloads.
//
// Float columns (spectrum channels, parameter values, standard deviations)
// are written with one of two codecs:
//   - FloatRawEncoder: 8 bytes per value in the archive byte order
//   - FloatXOREncoder: Gorilla-style XOR compression, effective on smooth
//     parameter maps whose neighbouring values share sign, exponent and
//     leading mantissa bits
//
// Both are bit-exact: every float64, including NaN payloads, signed zeros and
// infinities, decodes to the same 64-bit pattern it was written with.
//
// Names and kinds are written with VarStringEncoder and boolean columns (free
// flags, "is set" masks, signal-range masks) with AppendBitset.
//
//	enc := encoding.NewFloatXOREncoder()
//	defer enc.Finish()
//	enc.WriteSlice(values)
//	column := enc.Bytes()
//
//	out := make([]float64, len(values))
//	err := encoding.NewFloatXORDecoder().DecodeInto(column, out)
package encoding
