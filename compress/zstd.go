package compress

// ZstdCompressor compresses payloads with Zstandard at the default level.
//
// Two implementations exist: the pure-Go one backed by pooled klauspost
// encoders, and a cgo one backed by valyala/gozstd, selected with the gozstd
// build tag. Both produce standard zstd frames, so archives written by either
// are readable by the other.
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a Zstd compressor.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}
