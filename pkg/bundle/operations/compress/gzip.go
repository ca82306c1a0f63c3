// Package compress registers the compression codecs used by bundle slots.
// Import it for its side effect.
package compress

import (
	"compress/gzip"
	"io"

	"github.com/provide-io/bundlespec/pkg/bundle/operations"
)

func init() {
	operations.Register(Gzip{Level: gzip.BestCompression})
}

// Gzip is the default slot codec.
type Gzip struct {
	Level int
}

func (Gzip) ID() uint8    { return operations.OpGzip }
func (Gzip) Name() string { return "GZIP" }

func (g Gzip) NewWriter(w io.Writer) (io.WriteCloser, error) {
	// The header's ModTime stays zero so output does not depend on build time.
	return gzip.NewWriterLevel(w, g.Level)
}

func (Gzip) NewReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}
