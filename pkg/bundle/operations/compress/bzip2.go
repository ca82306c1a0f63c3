package compress

import (
	"io"

	"github.com/dsnet/compress/bzip2"

	"github.com/provide-io/bundlespec/pkg/bundle/operations"
)

func init() {
	operations.Register(Bzip2{Level: bzip2.BestCompression})
}

// Bzip2 trades speed for smaller slots.
type Bzip2 struct {
	Level int
}

func (Bzip2) ID() uint8    { return operations.OpBzip2 }
func (Bzip2) Name() string { return "BZIP2" }

func (b Bzip2) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: b.Level})
}

func (Bzip2) NewReader(r io.Reader) (io.ReadCloser, error) {
	return bzip2.NewReader(r, &bzip2.ReaderConfig{})
}
