// Package logging builds the hclog loggers shared by the bundlespec binaries.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// DefaultLevel is used when neither a flag, config, nor environment sets a level.
const DefaultLevel = "warn"

// Options controls logger construction.
type Options struct {
	// Name is the logger name shown in every line.
	Name string

	// Level is an hclog level name ("trace" .. "error") or "json:<level>"
	// to switch to JSON output.
	Level string

	// Output defaults to os.Stderr.
	Output io.Writer

	// LogPath appends to the given file instead of Output when set.
	LogPath string

	// Prefix is written before every human-readable line.
	Prefix string
}

// ParseLevel splits a level spec like "json:debug" into its level and format.
func ParseLevel(spec string) (level string, jsonFormat bool) {
	spec = strings.TrimSpace(strings.ToLower(spec))
	if spec == "" {
		return DefaultLevel, false
	}
	if strings.HasPrefix(spec, "json") {
		parts := strings.SplitN(spec, ":", 2)
		if len(parts) > 1 && parts[1] != "" {
			return parts[1], true
		}
		return "info", true
	}
	return spec, false
}

// New creates an hclog logger with the standard UTC time format.
func New(opts Options) hclog.Logger {
	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	if opts.LogPath != "" {
		if file, err := os.OpenFile(opts.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			output = file
		}
	}

	level, jsonFormat := ParseLevel(opts.Level)

	if !jsonFormat && opts.Prefix != "" {
		output = NewPrefixWriter(opts.Prefix, output)
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       opts.Name,
		Level:      hclog.LevelFromString(level),
		JSONFormat: jsonFormat,
		Output:     output,
		TimeFormat: "2006-01-02T15:04:05Z", // UTC ISO format
		TimeFn: func() time.Time {
			return time.Now().UTC()
		},
	})
}

// NewLogger creates a logger with the default package prefix.
func NewLogger(name string, level string, output io.Writer) hclog.Logger {
	return New(Options{
		Name:   name,
		Level:  level,
		Output: output,
		Prefix: "📦 ",
	})
}

// GetLogLevel returns the level configured in the environment.
func GetLogLevel() string {
	if level := os.Getenv("BUNDLESPEC_LOG_LEVEL"); level != "" {
		return level
	}
	return DefaultLevel
}
