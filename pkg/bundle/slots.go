package bundle

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// SlotDescriptor is one 64-byte slot table entry.
type SlotDescriptor struct {
	ID           uint64
	NameHash     uint64 // HashName of the slot target
	Offset       uint64
	Size         uint64 // stored size
	OriginalSize uint64
	Operations   uint64 // packed operation chain
	Checksum     uint64 // SlotChecksum of the stored bytes

	Kind        SlotKind
	Reserved    uint8
	Permissions uint16
	Reserved2   uint32
}

// HashName returns the first 8 bytes of SHA-256(name) as a little-endian integer.
func HashName(name string) uint64 {
	sum := sha256.Sum256([]byte(name))
	return binary.LittleEndian.Uint64(sum[:8])
}

// SlotChecksum is the checksum stored for slot data.
func SlotChecksum(data []byte) uint64 {
	sum := sha256.Sum256(data)
	return binary.LittleEndian.Uint64(sum[:8])
}

// Pack serializes the descriptor.
func (d *SlotDescriptor) Pack() []byte {
	buf := make([]byte, SlotDescriptorSize)
	le := binary.LittleEndian

	le.PutUint64(buf[0:8], d.ID)
	le.PutUint64(buf[8:16], d.NameHash)
	le.PutUint64(buf[16:24], d.Offset)
	le.PutUint64(buf[24:32], d.Size)
	le.PutUint64(buf[32:40], d.OriginalSize)
	le.PutUint64(buf[40:48], d.Operations)
	le.PutUint64(buf[48:56], d.Checksum)
	buf[56] = uint8(d.Kind)
	buf[57] = d.Reserved
	le.PutUint16(buf[58:60], d.Permissions)
	le.PutUint32(buf[60:64], d.Reserved2)
	return buf
}

// UnpackSlotDescriptor parses one slot table entry.
func UnpackSlotDescriptor(data []byte) (*SlotDescriptor, error) {
	if len(data) != SlotDescriptorSize {
		return nil, fmt.Errorf("invalid descriptor size: expected %d, got %d", SlotDescriptorSize, len(data))
	}
	le := binary.LittleEndian
	return &SlotDescriptor{
		ID:           le.Uint64(data[0:8]),
		NameHash:     le.Uint64(data[8:16]),
		Offset:       le.Uint64(data[16:24]),
		Size:         le.Uint64(data[24:32]),
		OriginalSize: le.Uint64(data[32:40]),
		Operations:   le.Uint64(data[40:48]),
		Checksum:     le.Uint64(data[48:56]),
		Kind:         SlotKind(data[56]),
		Reserved:     data[57],
		Permissions:  le.Uint16(data[58:60]),
		Reserved2:    le.Uint32(data[60:64]),
	}, nil
}
