package launcher

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/bundlespec/internal/workenv"
	"github.com/provide-io/bundlespec/pkg/bundle"
	"github.com/provide-io/bundlespec/pkg/bundle/operations"
)

func testLogger(t *testing.T) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{Name: t.Name(), Level: hclog.Trace, Output: os.Stderr})
}

// buildBundle packs a shell entry point run through sh.
func buildBundle(t *testing.T, script string, console bool) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses sh entry points")
	}
	dir := t.TempDir()
	files := map[string]string{
		"app/run.sh":   script,
		"app/data.txt": "payload",
		"launcher.bin": "not a real launcher",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	m := &bundle.Manifest{
		Name:    "shapp",
		Version: "1.0",
		Entry:   bundle.EntryInfo{Path: "run.sh", Interpreter: "sh"},
		Console: console,
		Codec:   operations.OpGzip,
		Slots: []bundle.Slot{
			{Kind: bundle.KindEntry, Source: filepath.Join(dir, "app", "run.sh"), Target: "run.sh"},
			{Kind: bundle.KindData, Source: filepath.Join(dir, "app", "data.txt"), Target: "data/data.txt"},
		},
	}
	out := filepath.Join(dir, "shapp")
	if _, err := bundle.Build(context.Background(), m, filepath.Join(dir, "launcher.bin"), out,
		bundle.WithTimestamp(time.Unix(1700000000, 0))); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return out
}

func TestRun(t *testing.T) {
	exe := buildBundle(t, "cat \"$BUNDLESPEC_WORKENV/data/data.txt\"\necho \" $1\"\necho \"$PYTHONPATH\" >&2\n", true)
	cache := t.TempDir()

	var stdout, stderr bytes.Buffer
	code, err := Run(context.Background(), exe, []string{"arg1"}, Options{
		Logger:    testLogger(t),
		CacheRoot: cache,
		Stdout:    &stdout,
		Stderr:    &stderr,
	})
	if err != nil || code != 0 {
		t.Fatalf("Run() = %d, %v", code, err)
	}
	if got := strings.TrimSpace(stdout.String()); got != "payload arg1" {
		t.Errorf("stdout = %q", got)
	}
	if !strings.HasPrefix(stderr.String(), filepath.Join(cache, "workenv")) {
		t.Errorf("PYTHONPATH should start with the workenv, got %q", stderr.String())
	}

	// Second run uses the completed workenv.
	entries, err := os.ReadDir(filepath.Join(cache, "workenv"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Run(context.Background(), exe, nil, Options{CacheRoot: cache, Stdout: &stdout, Stderr: &stderr}); err != nil {
		t.Fatal(err)
	}
	again, _ := os.ReadDir(filepath.Join(cache, "workenv"))
	if len(again) != len(entries) {
		t.Errorf("second run created new workenvs: %d then %d", len(entries), len(again))
	}
}

func TestRunPropagatesExitCode(t *testing.T) {
	exe := buildBundle(t, "exit 7\n", true)
	code, err := Run(context.Background(), exe, nil, Options{CacheRoot: t.TempDir(), Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
	if err != nil {
		t.Fatal(err)
	}
	if code != 7 {
		t.Errorf("exit code = %d, want 7", code)
	}
}

func TestRunWindowedWritesLog(t *testing.T) {
	exe := buildBundle(t, "echo hidden\n", false)
	cache := t.TempDir()

	var stdout bytes.Buffer
	if _, err := Run(context.Background(), exe, nil, Options{CacheRoot: cache, Stdout: &stdout, Stderr: &stdout}); err != nil {
		t.Fatal(err)
	}
	if stdout.Len() != 0 {
		t.Errorf("windowed bundle wrote to stdout: %q", stdout.String())
	}

	r, err := bundle.Open(exe)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	md, err := r.Metadata()
	if err != nil {
		t.Fatal(err)
	}
	sum := r.Index().MetadataChecksum
	paths := workenv.New(cache, md.Package.Name, md.Package.Version, hex.EncodeToString(sum[:]))
	data, err := os.ReadFile(filepath.Join(paths.LogDir(), "shapp.log"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "hidden" {
		t.Errorf("log = %q", data)
	}
}

func TestRunRejectsNonBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(path, []byte("just bytes"), 0o755); err != nil {
		t.Fatal(err)
	}
	code, err := Run(context.Background(), path, nil, Options{CacheRoot: t.TempDir()})
	var lerr *Error
	if !errors.As(err, &lerr) || code != ExitBundleError {
		t.Fatalf("Run() = %d, %v", code, err)
	}
}

func TestChildEnv(t *testing.T) {
	sep := string(os.PathListSeparator)
	got := childEnv([]string{"HOME=/home/u", "PYTHONPATH=/opt/lib", "BUNDLESPEC_WORKENV=/old"}, "/cache/w")
	want := []string{"HOME=/home/u", "PYTHONPATH=/cache/w" + sep + "/opt/lib", "BUNDLESPEC_WORKENV=/cache/w"}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("childEnv() = %q, want %q", got, want)
	}
}
