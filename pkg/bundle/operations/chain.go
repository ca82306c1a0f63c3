package operations

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// MaxChainLength is the number of operations a packed chain can hold.
const MaxChainLength = 8

// Pack stores ops in a uint64, first operation in the lowest byte.
func Pack(ops []uint8) (uint64, error) {
	if len(ops) > MaxChainLength {
		return 0, fmt.Errorf("maximum %d operations allowed, got %d", MaxChainLength, len(ops))
	}
	var packed uint64
	for i, op := range ops {
		if op == OpNone {
			return 0, fmt.Errorf("operation %d is NONE", i)
		}
		packed |= uint64(op) << (i * 8)
	}
	return packed, nil
}

// Unpack is the inverse of Pack. The first zero byte ends the chain.
func Unpack(packed uint64) []uint8 {
	var ops []uint8
	for i := 0; i < MaxChainLength; i++ {
		op := uint8(packed >> (i * 8))
		if op == OpNone {
			break
		}
		ops = append(ops, op)
	}
	return ops
}

// HasTar reports whether the chain starts with the tar marker.
func HasTar(packed uint64) bool {
	ops := Unpack(packed)
	return len(ops) > 0 && ops[0] == OpTar
}

// Transforms returns the codec operations of a chain, skipping the tar marker.
func Transforms(packed uint64) []uint8 {
	ops := Unpack(packed)
	if len(ops) > 0 && ops[0] == OpTar {
		return ops[1:]
	}
	return ops
}

var chainNames = map[string][]uint8{
	"raw":     {},
	"tar":     {OpTar},
	"gzip":    {OpGzip},
	"bzip2":   {OpBzip2},
	"tar.gz":  {OpTar, OpGzip},
	"tar.bz2": {OpTar, OpBzip2},
	"tgz":     {OpTar, OpGzip},
	"tbz2":    {OpTar, OpBzip2},
}

var preferredNames = []string{"raw", "tar", "gzip", "bzip2", "tar.gz", "tar.bz2"}

// String renders a packed chain as "raw", "tar.gz" and similar, falling back
// to "tar|gzip" pipe form for chains without a short name.
func String(packed uint64) string {
	ops := Unpack(packed)
	for _, name := range preferredNames {
		if equalOps(chainNames[name], ops) {
			return name
		}
	}
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = strings.ToLower(Name(op))
	}
	return strings.Join(names, "|")
}

// Parse accepts the forms String produces.
func Parse(s string) (uint64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	if ops, ok := chainNames[s]; ok {
		return Pack(ops)
	}

	var ops []uint8
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		single, ok := chainNames[part]
		if !ok || len(single) != 1 {
			return 0, fmt.Errorf("unknown operation %q", part)
		}
		ops = append(ops, single[0])
	}
	return Pack(ops)
}

func equalOps(a, b []uint8) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Encode runs data through the chain's transforms in order.
func Encode(data []byte, packed uint64) ([]byte, error) {
	current := data
	for _, id := range Transforms(packed) {
		c, err := Get(id)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		w, err := c.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name(), err)
		}
		if _, err := w.Write(current); err != nil {
			w.Close()
			return nil, fmt.Errorf("%s: %w", c.Name(), err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name(), err)
		}
		current = buf.Bytes()
	}
	return current, nil
}

// Decode reverses Encode.
func Decode(data []byte, packed uint64) ([]byte, error) {
	r, err := NewReader(bytes.NewReader(data), packed)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// NewReader stacks the chain's decoders over r, last transform first.
func NewReader(r io.Reader, packed uint64) (io.ReadCloser, error) {
	ops := Transforms(packed)
	closers := make(multiCloser, 0, len(ops))

	current := r
	for i := len(ops) - 1; i >= 0; i-- {
		c, err := Get(ops[i])
		if err != nil {
			closers.Close()
			return nil, err
		}
		rc, err := c.NewReader(current)
		if err != nil {
			closers.Close()
			return nil, fmt.Errorf("%s: %w", c.Name(), err)
		}
		closers = append(closers, rc)
		current = rc
	}
	return &chainReader{Reader: current, closers: closers}, nil
}

type chainReader struct {
	io.Reader
	closers multiCloser
}

func (c *chainReader) Close() error { return c.closers.Close() }

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for i := len(m) - 1; i >= 0; i-- {
		if err := m[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
