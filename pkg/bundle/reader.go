package bundle

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/bundlespec/pkg/bundle/operations"
)

var (
	ErrInvalidTrailer   = errors.New("invalid trailer")
	ErrInvalidVersion   = errors.New("invalid format version")
	ErrIndexChecksum    = errors.New("index checksum mismatch")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrInvalidSlotIndex = errors.New("invalid slot index")
	ErrNoSignature      = errors.New("no integrity signature found")
	ErrSignatureInvalid = errors.New("signature verification failed")
)

// Reader reads a bundle artifact.
type Reader struct {
	path   string
	file   *os.File
	size   int64
	index  *Index
	logger hclog.Logger

	metadataJSON []byte
	metadata     *Metadata
}

// ReaderOption configures Open.
type ReaderOption func(*Reader)

// WithReaderLogger sets the reader logger.
func WithReaderLogger(l hclog.Logger) ReaderOption {
	return func(r *Reader) { r.logger = l }
}

// Open opens path and validates its trailer and index.
func Open(path string, opts ...ReaderOption) (*Reader, error) {
	r := &Reader{path: path, logger: hclog.NewNullLogger()}
	for _, opt := range opts {
		opt(r)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file, r.size = f, info.Size()

	if err := r.readIndex(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Path returns the artifact path.
func (r *Reader) Path() string { return r.path }

// Index returns the validated index.
func (r *Reader) Index() *Index { return r.index }

func (r *Reader) readIndex() error {
	if r.size < TrailerSize {
		return fmt.Errorf("%w: file too small (%d bytes)", ErrInvalidTrailer, r.size)
	}
	trailer := make([]byte, TrailerSize)
	if _, err := r.file.ReadAt(trailer, r.size-TrailerSize); err != nil {
		return fmt.Errorf("failed to read trailer: %w", err)
	}
	if !bytes.Equal(trailer[:4], PackageEmojiBytes) {
		return fmt.Errorf("%w: missing 📦 at start", ErrInvalidTrailer)
	}
	if !bytes.Equal(trailer[TrailerSize-4:], MagicWandEmojiBytes) {
		return fmt.Errorf("%w: missing 🪄 at end", ErrInvalidTrailer)
	}

	index, err := UnpackIndex(trailer[4 : 4+IndexSize])
	if err != nil {
		return err
	}
	if index.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: got 0x%08x, expected 0x%08x", ErrInvalidVersion, index.FormatVersion, FormatVersion)
	}
	if sum := index.ComputeChecksum(); sum != index.IndexChecksum {
		return fmt.Errorf("%w: stored 0x%08x, computed 0x%08x", ErrIndexChecksum, index.IndexChecksum, sum)
	}
	if index.PackageSize != uint64(r.size) {
		return fmt.Errorf("%w: index records %d bytes, file has %d", ErrInvalidTrailer, index.PackageSize, r.size)
	}

	r.logger.Debug("🔍 Found index", "slots", index.SlotCount, "metadata_size", index.MetadataSize)
	r.index = index
	return nil
}

func (r *Reader) readAt(off, n uint64) ([]byte, error) {
	if off+n > uint64(r.size) || off+n < off {
		return nil, fmt.Errorf("range %d+%d outside file of %d bytes", off, n, r.size)
	}
	buf := make([]byte, n)
	if _, err := r.file.ReadAt(buf, int64(off)); err != nil {
		return nil, err
	}
	return buf, nil
}

// MetadataJSON returns the uncompressed metadata after checking its checksum.
func (r *Reader) MetadataJSON() ([]byte, error) {
	if r.metadataJSON != nil {
		return r.metadataJSON, nil
	}
	compressed, err := r.readAt(r.index.MetadataOffset, r.index.MetadataSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	if sha256.Sum256(compressed) != r.index.MetadataChecksum {
		return nil, fmt.Errorf("metadata: %w", ErrChecksumMismatch)
	}
	gr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata: %w", err)
	}
	defer gr.Close()
	data, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress metadata: %w", err)
	}
	r.metadataJSON = data
	return data, nil
}

// Metadata returns the parsed metadata.
func (r *Reader) Metadata() (*Metadata, error) {
	if r.metadata != nil {
		return r.metadata, nil
	}
	data, err := r.MetadataJSON()
	if err != nil {
		return nil, err
	}
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	r.metadata = &md
	return &md, nil
}

// SlotDescriptor returns the slot table entry i.
func (r *Reader) SlotDescriptor(i int) (*SlotDescriptor, error) {
	if i < 0 || i >= int(r.index.SlotCount) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlotIndex, i)
	}
	data, err := r.readAt(r.index.SlotTableOffset+uint64(i*SlotDescriptorSize), SlotDescriptorSize)
	if err != nil {
		return nil, err
	}
	return UnpackSlotDescriptor(data)
}

// ReadSlot returns the decoded content of slot i. Directory slots come back
// as tar streams.
func (r *Reader) ReadSlot(i int) ([]byte, error) {
	desc, err := r.SlotDescriptor(i)
	if err != nil {
		return nil, err
	}
	stored, err := r.readAt(desc.Offset, desc.Size)
	if err != nil {
		return nil, fmt.Errorf("slot %d: %w", i, err)
	}
	if sum := SlotChecksum(stored); sum != desc.Checksum {
		r.logger.Debug("❌ Slot checksum mismatch", "slot", i,
			"stored", fmt.Sprintf("%016x", desc.Checksum), "computed", fmt.Sprintf("%016x", sum))
		return nil, fmt.Errorf("slot %d: %w", i, ErrChecksumMismatch)
	}
	data, err := operations.Decode(stored, desc.Operations)
	if err != nil {
		return nil, fmt.Errorf("slot %d: %w", i, err)
	}
	if uint64(len(data)) != desc.OriginalSize {
		return nil, fmt.Errorf("slot %d: decoded %d bytes, expected %d", i, len(data), desc.OriginalSize)
	}
	return data, nil
}

// ExtractTo writes every slot below dir.
func (r *Reader) ExtractTo(dir string) error {
	md, err := r.Metadata()
	if err != nil {
		return err
	}
	if len(md.Slots) != int(r.index.SlotCount) {
		return fmt.Errorf("metadata lists %d slots, index has %d", len(md.Slots), r.index.SlotCount)
	}

	for i, slot := range md.Slots {
		desc, err := r.SlotDescriptor(i)
		if err != nil {
			return err
		}
		data, err := r.ReadSlot(i)
		if err != nil {
			return err
		}
		target, err := SafeJoin(dir, slot.Target)
		if err != nil {
			return fmt.Errorf("slot %d: %w", i, err)
		}

		if operations.HasTar(desc.Operations) {
			if err := os.MkdirAll(target, DirPerms); err != nil {
				return err
			}
			if err := Untar(bytes.NewReader(data), target); err != nil {
				return fmt.Errorf("slot %d: %w", i, err)
			}
			continue
		}

		mode := os.FileMode(desc.Permissions) & os.ModePerm
		if mode == 0 {
			mode = FilePerms
		}
		if err := os.MkdirAll(filepath.Dir(target), DirPerms); err != nil {
			return err
		}
		if err := os.WriteFile(target, data, mode); err != nil {
			return fmt.Errorf("slot %d: %w", i, err)
		}
		r.logger.Trace("📂 Extracted slot", "index", i, "target", target, "size", len(data))
	}
	return nil
}

// VerifySeal checks the Ed25519 signature over the metadata.
func (r *Reader) VerifySeal() error {
	data, err := r.MetadataJSON()
	if err != nil {
		return err
	}
	if r.index.Signature == [64]byte{} {
		return ErrNoSignature
	}
	if !ed25519Verify(r.index.PublicKey[:], data, r.index.Signature[:]) {
		return ErrSignatureInvalid
	}
	return nil
}
