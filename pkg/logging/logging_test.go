package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrefixWriter(t *testing.T) {
	testCases := []struct {
		name   string
		writes []string
		flush  bool
		want   string
	}{
		{
			name:   "single line",
			writes: []string{"hello\n"},
			want:   "> hello\n",
		},
		{
			name:   "line split across writes",
			writes: []string{"hel", "lo\nwor", "ld\n"},
			want:   "> hello\n> world\n",
		},
		{
			name:   "partial line held until flush",
			writes: []string{"first\nsecond"},
			flush:  true,
			want:   "> first\n> second\n",
		},
		{
			name:   "partial line without flush",
			writes: []string{"pending"},
			want:   "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			pw := NewPrefixWriter("> ", &out)

			for _, w := range tc.writes {
				n, err := pw.Write([]byte(w))
				if err != nil {
					t.Fatalf("Write(%q) failed: %v", w, err)
				}
				if n != len(w) {
					t.Errorf("Write(%q) = %d, want %d", w, n, len(w))
				}
			}
			if tc.flush {
				if err := pw.Flush(); err != nil {
					t.Fatalf("Flush failed: %v", err)
				}
			}

			if got := out.String(); got != tc.want {
				t.Errorf("output = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		spec      string
		wantLevel string
		wantJSON  bool
	}{
		{"", DefaultLevel, false},
		{"debug", "debug", false},
		{"  INFO ", "info", false},
		{"json", "info", true},
		{"json:trace", "trace", true},
		{"json:", "info", true},
	}

	for _, tc := range testCases {
		t.Run(tc.spec, func(t *testing.T) {
			level, jsonFormat := ParseLevel(tc.spec)
			if level != tc.wantLevel || jsonFormat != tc.wantJSON {
				t.Errorf("ParseLevel(%q) = (%q, %v), want (%q, %v)",
					tc.spec, level, jsonFormat, tc.wantLevel, tc.wantJSON)
			}
		})
	}
}

func TestNewLoggerWritesPrefixedLines(t *testing.T) {
	var out bytes.Buffer
	logger := New(Options{Name: "test", Level: "info", Output: &out, Prefix: "📦 "})

	logger.Info("descriptor loaded", "path", "bundle.yaml")

	line := out.String()
	if !strings.HasPrefix(line, "📦 ") {
		t.Errorf("expected prefixed line, got %q", line)
	}
	if !strings.Contains(line, "descriptor loaded") || !strings.Contains(line, "path=bundle.yaml") {
		t.Errorf("unexpected log line %q", line)
	}

	out.Reset()
	logger.Debug("hidden")
	if out.Len() != 0 {
		t.Errorf("debug line should be filtered at info level, got %q", out.String())
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var out bytes.Buffer
	logger := New(Options{Name: "test", Level: "json:debug", Output: &out, Prefix: "📦 "})

	logger.Debug("probe", "field", "x")

	line := out.String()
	if strings.HasPrefix(line, "📦") {
		t.Errorf("JSON output must not be prefixed: %q", line)
	}
	if !strings.Contains(line, `"@message":"probe"`) {
		t.Errorf("expected JSON message, got %q", line)
	}
}
