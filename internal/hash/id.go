package hash

import "github.com/cespare/xxhash/v2"

// ID computes the xxHash64 of a component or parameter name.
func ID(name string) uint64 {
	return xxhash.Sum64String(name)
}

// Checksum computes the xxHash64 of an archive payload.
func Checksum(payload []byte) uint64 {
	return xxhash.Sum64(payload)
}
