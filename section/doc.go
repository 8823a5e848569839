// Package section defines the fixed 32-byte header at the start of every
// archive file.
//
// Layout:
//
//	┌──────────┬───────────────────────────────────────────────────────┐
//	│ 0-1      │ Options: endianness bit, name-collision bit, magic   │
//	│ 2        │ Kind: signal or model                                 │
//	│ 3        │ Codecs: value encoding (bits 0-3), compression (4-7) │
//	│ 4-7      │ NavSize: number of navigation pixels                  │
//	│ 8-11     │ Channels: energy channels per spectrum                │
//	│ 12-15    │ ComponentCount: components in a model archive         │
//	│ 16-23    │ PayloadLength: uncompressed payload size              │
//	│ 24-31    │ Checksum: xxHash64 of the uncompressed payload        │
//	└──────────┴───────────────────────────────────────────────────────┘
//
// Options is always stored little-endian so a reader can learn the byte
// order before decoding the rest of the header.
package section
