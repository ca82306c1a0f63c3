// Package bundle reads and writes self-contained application bundles.
//
// An artifact is a launcher executable followed by the bundle payload:
//
//	launcher | metadata (gzip JSON) | slot table | slot data | trailer
//
// The trailer is the package emoji, a fixed-size little-endian Index and the
// magic wand emoji, so a reader finds everything by seeking from the end of
// the file.
package bundle

var (
	PackageEmojiBytes   = []byte{0xF0, 0x9F, 0x93, 0xA6} // 📦
	MagicWandEmojiBytes = []byte{0xF0, 0x9F, 0xAA, 0x84} // 🪄
)

const (
	FormatVersion = 0x20260001
	FormatName    = "BNDL/2026"

	IndexSize          = 256
	TrailerSize        = 4 + IndexSize + 4
	SlotAlignment      = 8
	SlotDescriptorSize = 64
)

// Index flags.
const (
	FlagConsole uint32 = 1 << iota
	FlagCompressed
	FlagDebug
	FlagStripped
	FlagSigned
)

// SlotKind says what a slot holds.
type SlotKind uint8

const (
	KindData SlotKind = iota
	KindEntry
	KindBinary
	KindModule
)

func (k SlotKind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindEntry:
		return "entry"
	case KindBinary:
		return "binary"
	case KindModule:
		return "module"
	}
	return "unknown"
}

// ParseSlotKind is the inverse of SlotKind.String.
func ParseSlotKind(s string) (SlotKind, bool) {
	for _, k := range []SlotKind{KindData, KindEntry, KindBinary, KindModule} {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Default permissions for extracted content and artifacts.
const (
	DirPerms        = 0o755
	FilePerms       = 0o644
	ExecutablePerms = 0o755
)

// AlignOffset rounds offset up to a multiple of alignment.
func AlignOffset(offset int64, alignment int64) int64 {
	if rem := offset % alignment; rem != 0 {
		return offset + alignment - rem
	}
	return offset
}
