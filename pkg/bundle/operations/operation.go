// Package operations defines the payload transforms a bundle slot can carry
// and the packed 64-bit chain that records them.
package operations

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// Operation identifiers. A chain stores them one per byte.
const (
	OpNone uint8 = 0x00

	// OpTar marks a slot whose content is a tar stream of a directory. The
	// archive is produced by the bundle builder, not by a Codec.
	OpTar uint8 = 0x01

	OpGzip  uint8 = 0x10
	OpBzip2 uint8 = 0x13
)

// Codec is a reversible stream transform.
type Codec interface {
	ID() uint8
	Name() string

	// NewWriter returns a writer that encodes into w. Close flushes it
	// without closing w.
	NewWriter(w io.Writer) (io.WriteCloser, error)

	// NewReader returns a reader that decodes r.
	NewReader(r io.Reader) (io.ReadCloser, error)
}

var (
	mu     sync.RWMutex
	codecs = map[uint8]Codec{}
)

// Register makes a codec available by ID. Registering an ID twice replaces
// the earlier codec.
func Register(c Codec) {
	mu.Lock()
	defer mu.Unlock()
	codecs[c.ID()] = c
}

// Get returns the codec registered for id.
func Get(id uint8) (Codec, error) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := codecs[id]
	if !ok {
		return nil, fmt.Errorf("unknown operation: 0x%02x", id)
	}
	return c, nil
}

// Registered lists registered codec IDs in ascending order.
func Registered() []uint8 {
	mu.RLock()
	defer mu.RUnlock()
	ids := make([]uint8, 0, len(codecs))
	for id := range codecs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Name returns the upper-case name of an operation.
func Name(id uint8) string {
	switch id {
	case OpNone:
		return "NONE"
	case OpTar:
		return "TAR"
	}
	if c, err := Get(id); err == nil {
		return c.Name()
	}
	return fmt.Sprintf("UNKNOWN_%02x", id)
}
