package section

const (
	EndiannessMask  = 0x0001 // bit 0: 0=little, 1=big
	CollisionMask   = 0x0002 // bit 1: two component names share an ID
	ReservedMask    = 0x000C // bits 2-3: must be zero
	MagicNumberMask = 0xFFF0 // bits 4-15

	MagicFamilyMask = 0xFF00
	MagicFamily     = 0xEE00 // identifies an eelsfit archive
	VersionMask     = 0x00F0
	MagicArchiveV1  = 0xEE10
)

// HeaderSize is the fixed size of an archive header in bytes.
const HeaderSize = 32
