package format

type (
	ArchiveKind     uint8
	ValueEncoding   uint8
	CompressionType uint8
)

const (
	KindSignal ArchiveKind = 0x1 // KindSignal marks an archive holding a spectrum image.
	KindModel  ArchiveKind = 0x2 // KindModel marks an archive holding a model and its parameter maps.

	ValueRaw ValueEncoding = 0x1 // ValueRaw stores float64 columns as IEEE 754 words.
	ValueXOR ValueEncoding = 0x2 // ValueXOR stores float64 columns with XOR (Gorilla) compression.

	CompressionNone CompressionType = 0x1 // CompressionNone represents no compression.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 compression.
)

func (k ArchiveKind) String() string {
	switch k {
	case KindSignal:
		return "Signal"
	case KindModel:
		return "Model"
	default:
		return "Unknown"
	}
}

func (e ValueEncoding) String() string {
	switch e {
	case ValueRaw:
		return "Raw"
	case ValueXOR:
		return "XOR"
	default:
		return "Unknown"
	}
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

// ParseCompression maps a lower-case name ("none", "zstd", "s2", "lz4") to a CompressionType.
// It returns false for unknown names.
func ParseCompression(name string) (CompressionType, bool) {
	switch name {
	case "none", "":
		return CompressionNone, true
	case "zstd":
		return CompressionZstd, true
	case "s2":
		return CompressionS2, true
	case "lz4":
		return CompressionLZ4, true
	default:
		return 0, false
	}
}
