package driver

import (
	"bytes"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// toolOutput logs a tool's output line by line and keeps every line for
// failure messages.
type toolOutput struct {
	mu      sync.Mutex
	logger  hclog.Logger
	level   hclog.Level
	partial []byte
	lines   []string
}

func newToolOutput(logger hclog.Logger, level hclog.Level) *toolOutput {
	return &toolOutput{logger: logger, level: level}
}

func (o *toolOutput) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.partial = append(o.partial, p...)
	for {
		i := bytes.IndexByte(o.partial, '\n')
		if i < 0 {
			break
		}
		o.line(string(o.partial[:i]))
		o.partial = o.partial[i+1:]
	}
	return len(p), nil
}

// Flush emits a trailing line without newline.
func (o *toolOutput) Flush() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.partial) > 0 {
		o.line(string(o.partial))
		o.partial = nil
	}
}

func (o *toolOutput) line(s string) {
	s = strings.TrimRight(s, "\r")
	if strings.TrimSpace(s) == "" {
		return
	}
	o.logger.Log(o.level, s)
	o.lines = append(o.lines, s)
}

// String returns the non-blank lines joined with newlines.
func (o *toolOutput) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return strings.Join(o.lines, "\n")
}
