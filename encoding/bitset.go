package encoding

import (
	"fmt"

	"github.com/arloliu/eelsfit/errs"
)

// BitsetSize returns the number of bytes needed for n flags.
func BitsetSize(n int) int {
	return (n + 7) / 8
}

// AppendBitset appends flags to dst, eight per byte, least significant bit first.
func AppendBitset(dst []byte, flags []bool) []byte {
	start := len(dst)
	dst = append(dst, make([]byte, BitsetSize(len(flags)))...)
	for i, f := range flags {
		if f {
			dst[start+i/8] |= 1 << (i % 8)
		}
	}

	return dst
}

// DecodeBitset reads n flags written by AppendBitset.
func DecodeBitset(data []byte, n int) ([]bool, error) {
	if len(data) < BitsetSize(n) {
		return nil, fmt.Errorf("%w: bitset needs %d bytes, have %d", errs.ErrTruncatedPayload, BitsetSize(n), len(data))
	}

	out := make([]bool, n)
	for i := range out {
		out[i] = data[i/8]&(1<<(i%8)) != 0
	}

	return out, nil
}
