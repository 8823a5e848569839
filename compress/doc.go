// Package compress provides the payload codecs used by archive files.
//
// An archive payload is first encoded (raw or XOR float columns, varstring
// names, bitsets) and then passed through one of these codecs:
//   - None: payload stored as is
//   - Zstd: best ratio; klauspost/compress by default, valyala/gozstd when
//     built with the gozstd tag and cgo
//   - S2: fast, moderate ratio
//   - LZ4: fastest decompression
//
// The chosen algorithm is recorded in the archive header, so readers pick the
// matching Decompressor with GetCodec.
//
//	codec, err := compress.GetCodec(format.CompressionZstd)
//	if err != nil {
//	    return err
//	}
//	packed, err := codec.Compress(payload)
//
// Parameter maps of smooth fits compress well with Zstd; raw spectrum images
// with Poisson noise barely compress at all, and None is the better choice.
//
// All codecs are safe for concurrent use.
package compress
