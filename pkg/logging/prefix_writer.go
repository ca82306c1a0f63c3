package logging

import (
	"bytes"
	"io"
	"sync"
)

// PrefixWriter prefixes every complete line written to it. Partial lines are
// held until a newline arrives or Flush is called.
type PrefixWriter struct {
	mu     sync.Mutex
	prefix []byte
	writer io.Writer
	buffer bytes.Buffer
}

// NewPrefixWriter creates a PrefixWriter around w.
func NewPrefixWriter(prefix string, w io.Writer) *PrefixWriter {
	return &PrefixWriter{
		prefix: []byte(prefix),
		writer: w,
	}
}

// Write implements io.Writer.
func (pw *PrefixWriter) Write(p []byte) (int, error) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	pw.buffer.Write(p)

	for {
		data := pw.buffer.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		if err := pw.emit(data[:i+1]); err != nil {
			return 0, err
		}
		pw.buffer.Next(i + 1)
	}

	return len(p), nil
}

// Flush writes any buffered partial line, terminated with a newline.
func (pw *PrefixWriter) Flush() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.buffer.Len() == 0 {
		return nil
	}
	line := append(pw.buffer.Bytes(), '\n')
	pw.buffer.Reset()
	return pw.emit(line)
}

func (pw *PrefixWriter) emit(line []byte) error {
	if _, err := pw.writer.Write(pw.prefix); err != nil {
		return err
	}
	_, err := pw.writer.Write(line)
	return err
}
