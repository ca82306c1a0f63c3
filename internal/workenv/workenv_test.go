package workenv

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
)

func testLogger(t *testing.T) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{Name: t.Name(), Level: hclog.Trace, Output: os.Stderr})
}

func TestCacheRootOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(CacheDirEnv, dir)
	if got := CacheRoot(); got != dir {
		t.Errorf("CacheRoot() = %q, want %q", got, dir)
	}
}

func TestPaths(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name, pkg, version, checksum string
		want                         string
	}{
		{"checksum prefix", "GoStealthAI", "1.0.1", "0123456789abcdef", "GoStealthAI-01234567"},
		{"short checksum", "app", "", "abc", "app-abc"},
		{"unsafe characters", "my app/v2", "", "deadbeef", "my_app_v2-deadbeef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(root, tt.pkg, tt.version, tt.checksum)
			if p.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.want)
			}
			if filepath.Dir(p.Workenv()) != filepath.Join(root, "workenv") {
				t.Errorf("Workenv() = %q", p.Workenv())
			}
		})
	}

	a := New(root, "app", "1.0", "")
	b := New(root, "app", "2.0", "")
	if a.Name() == b.Name() {
		t.Error("versions should hash to different workenvs")
	}
	if len(strings.TrimPrefix(a.Name(), "app-")) != 8 {
		t.Errorf("hashed id should be 8 characters: %q", a.Name())
	}
}

func TestCompletionMarker(t *testing.T) {
	p := New(t.TempDir(), "app", "1.0", "cafebabe")
	if p.IsComplete("app", "1.0", "cafebabe") {
		t.Fatal("fresh workenv should not be complete")
	}
	if err := p.Create(); err != nil {
		t.Fatal(err)
	}
	if err := p.MarkComplete("app", "1.0", "cafebabe"); err != nil {
		t.Fatal(err)
	}
	if !p.IsComplete("app", "1.0", "cafebabe") {
		t.Error("expected complete workenv")
	}
	if p.IsComplete("app", "1.0", "00000000") {
		t.Error("different checksum must not match")
	}
	if err := p.Reset(); err != nil {
		t.Fatal(err)
	}
	if p.IsComplete("app", "1.0", "cafebabe") {
		t.Error("Reset should clear the marker")
	}
}

func TestLocking(t *testing.T) {
	logger := testLogger(t)
	p := New(t.TempDir(), "app", "", "feedface")

	ok, err := p.TryLock(logger)
	if err != nil || !ok {
		t.Fatalf("TryLock() = %v, %v", ok, err)
	}
	data, err := os.ReadFile(p.LockFile())
	if err != nil || strings.TrimSpace(string(data)) == "" {
		t.Fatalf("lock file should hold our PID: %q, %v", data, err)
	}
	p.Unlock(logger)
	if _, err := os.Stat(p.LockFile()); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed: %v", err)
	}
}

func TestStaleLockRecovery(t *testing.T) {
	logger := testLogger(t)
	tests := []struct {
		name    string
		content string
	}{
		{"garbage", "not-a-pid\n"},
		{"dead process", "2147483646\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(t.TempDir(), "app", "", "0badc0de")
			if err := os.MkdirAll(p.Meta(), 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(p.LockFile(), []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			ok, err := p.TryLock(logger)
			if err != nil || !ok {
				t.Fatalf("TryLock() = %v, %v", ok, err)
			}
			p.Unlock(logger)
		})
	}
}

func TestTryLockLeavesOnlyTheLockFile(t *testing.T) {
	logger := testLogger(t)
	p := New(t.TempDir(), "app", "", "c0ffee00")
	ok, err := p.TryLock(logger)
	if err != nil || !ok {
		t.Fatalf("TryLock() = %v, %v", ok, err)
	}
	defer p.Unlock(logger)

	entries, err := os.ReadDir(p.Meta())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != filepath.Base(p.LockFile()) {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("meta dir holds %v, want only the lock file", names)
	}

	data, err := os.ReadFile(p.LockFile())
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(data)); got != strconv.Itoa(os.Getpid()) {
		t.Errorf("lock holds %q, want %d", got, os.Getpid())
	}
}

func TestBreakLockKeepsNewerHolder(t *testing.T) {
	p := New(t.TempDir(), "app", "", "deadbeef")
	if err := os.MkdirAll(p.Meta(), 0o755); err != nil {
		t.Fatal(err)
	}
	// Read as stale, then replaced by a live holder before it was removed.
	stale := []byte("2147483646\n")
	live := []byte(strconv.Itoa(os.Getppid()) + "\n")
	if err := os.WriteFile(p.LockFile(), live, 0o644); err != nil {
		t.Fatal(err)
	}

	broken, err := p.breakLock(stale)
	if err != nil {
		t.Fatal(err)
	}
	if broken {
		t.Error("breakLock() removed a lock it did not read")
	}
	data, err := os.ReadFile(p.LockFile())
	if err != nil {
		t.Fatalf("newer lock should be back in place: %v", err)
	}
	if !bytes.Equal(data, live) {
		t.Errorf("lock holds %q, want %q", data, live)
	}

	broken, err = p.breakLock(live)
	if err != nil || !broken {
		t.Fatalf("breakLock() = %v, %v", broken, err)
	}
	if _, err := os.Stat(p.LockFile()); !os.IsNotExist(err) {
		t.Errorf("lock file should be gone: %v", err)
	}
}

func TestLockTimesOutOnLiveHolder(t *testing.T) {
	logger := testLogger(t)
	p := New(t.TempDir(), "app", "", "abad1dea")
	if err := os.MkdirAll(p.Meta(), 0o755); err != nil {
		t.Fatal(err)
	}
	// The parent process outlives the test.
	parent := os.Getppid()
	if !processAlive(parent) {
		t.Skip("parent process is not visible")
	}
	if err := os.WriteFile(p.LockFile(), []byte(strconv.Itoa(parent)+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := p.Lock(context.Background(), 250*time.Millisecond, logger)
	if !errors.Is(err, ErrLockTimeout) {
		t.Errorf("Lock() = %v, want ErrLockTimeout", err)
	}
}
