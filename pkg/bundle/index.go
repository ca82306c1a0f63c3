package bundle

import (
	"encoding/binary"
	"fmt"
	"hash/adler32"
)

// Index is the fixed 256-byte block stored in the trailer.
type Index struct {
	FormatVersion uint32
	IndexChecksum uint32 // Adler-32 of the packed index with this field zeroed

	PackageSize     uint64
	LauncherSize    uint64
	MetadataOffset  uint64
	MetadataSize    uint64
	SlotTableOffset uint64
	SlotTableSize   uint64

	SlotCount uint32
	Flags     uint32

	PublicKey        [32]byte
	MetadataChecksum [32]byte // SHA-256 of the compressed metadata
	Signature        [64]byte // Ed25519 over the uncompressed metadata JSON

	BuildTimestamp uint64
	Reserved       [56]byte
}

// Pack serializes the index.
func (idx *Index) Pack() []byte {
	buf := make([]byte, IndexSize)
	le := binary.LittleEndian

	le.PutUint32(buf[0:4], idx.FormatVersion)
	le.PutUint32(buf[4:8], idx.IndexChecksum)
	le.PutUint64(buf[8:16], idx.PackageSize)
	le.PutUint64(buf[16:24], idx.LauncherSize)
	le.PutUint64(buf[24:32], idx.MetadataOffset)
	le.PutUint64(buf[32:40], idx.MetadataSize)
	le.PutUint64(buf[40:48], idx.SlotTableOffset)
	le.PutUint64(buf[48:56], idx.SlotTableSize)
	le.PutUint32(buf[56:60], idx.SlotCount)
	le.PutUint32(buf[60:64], idx.Flags)
	copy(buf[64:96], idx.PublicKey[:])
	copy(buf[96:128], idx.MetadataChecksum[:])
	copy(buf[128:192], idx.Signature[:])
	le.PutUint64(buf[192:200], idx.BuildTimestamp)
	copy(buf[200:256], idx.Reserved[:])
	return buf
}

// UnpackIndex parses a packed index. It does not verify the checksum.
func UnpackIndex(data []byte) (*Index, error) {
	if len(data) != IndexSize {
		return nil, fmt.Errorf("invalid index size: %d", len(data))
	}
	le := binary.LittleEndian

	idx := &Index{
		FormatVersion:   le.Uint32(data[0:4]),
		IndexChecksum:   le.Uint32(data[4:8]),
		PackageSize:     le.Uint64(data[8:16]),
		LauncherSize:    le.Uint64(data[16:24]),
		MetadataOffset:  le.Uint64(data[24:32]),
		MetadataSize:    le.Uint64(data[32:40]),
		SlotTableOffset: le.Uint64(data[40:48]),
		SlotTableSize:   le.Uint64(data[48:56]),
		SlotCount:       le.Uint32(data[56:60]),
		Flags:           le.Uint32(data[60:64]),
		BuildTimestamp:  le.Uint64(data[192:200]),
	}
	copy(idx.PublicKey[:], data[64:96])
	copy(idx.MetadataChecksum[:], data[96:128])
	copy(idx.Signature[:], data[128:192])
	copy(idx.Reserved[:], data[200:256])
	return idx, nil
}

// ComputeChecksum returns the Adler-32 of the index with IndexChecksum zeroed.
func (idx *Index) ComputeChecksum() uint32 {
	buf := idx.Pack()
	binary.LittleEndian.PutUint32(buf[4:8], 0)
	return adler32.Checksum(buf)
}

// Seal stores the computed checksum.
func (idx *Index) Seal() {
	idx.IndexChecksum = idx.ComputeChecksum()
}

// Has reports whether flag is set.
func (idx *Index) Has(flag uint32) bool {
	return idx.Flags&flag != 0
}
