// Package workenv manages the cache directories bundles are extracted into.
package workenv

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/xyproto/env/v2"
)

// CacheDirEnv overrides the cache root.
const CacheDirEnv = "BUNDLESPEC_CACHE_DIR"

const (
	dirPerms     = 0o755
	lockFile     = "extract.lock"
	completeFile = "extract.complete"
	logDir       = "logs"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// CacheRoot returns $BUNDLESPEC_CACHE_DIR, or bundlespec below the user
// cache directory, or below the temp directory as a last resort.
func CacheRoot() string {
	if dir := env.Str(CacheDirEnv); dir != "" {
		return dir
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "bundlespec")
	}
	return filepath.Join(os.TempDir(), "bundlespec", "cache")
}

// Paths locates the work environment of one package build.
type Paths struct {
	root string
	name string
	id   string
}

// New returns the paths for a package. checksum distinguishes builds of the
// same package; when empty, name and version are hashed instead.
func New(root, name, version, checksum string) *Paths {
	id := checksum
	if id == "" {
		sum := sha256.Sum256([]byte(name + "-" + version))
		id = hex.EncodeToString(sum[:])
	}
	if len(id) > 8 {
		id = id[:8]
	}
	name = unsafeChars.ReplaceAllString(name, "_")
	if name == "" {
		name = "bundle"
	}
	return &Paths{root: root, name: name, id: id}
}

// Name returns the directory name, "<package>-<id>".
func (p *Paths) Name() string {
	return fmt.Sprintf("%s-%s", p.name, p.id)
}

// Workenv is where slots are extracted.
func (p *Paths) Workenv() string {
	return filepath.Join(p.root, "workenv", p.Name())
}

// Meta holds the lock, the completion marker and logs.
func (p *Paths) Meta() string {
	return filepath.Join(p.root, "workenv", "."+p.Name()+".meta")
}

func (p *Paths) LockFile() string     { return filepath.Join(p.Meta(), lockFile) }
func (p *Paths) CompleteFile() string { return filepath.Join(p.Meta(), completeFile) }
func (p *Paths) LogDir() string       { return filepath.Join(p.Meta(), logDir) }

// Create makes the workenv and metadata directories.
func (p *Paths) Create() error {
	for _, dir := range []string{p.Workenv(), p.Meta()} {
		if err := os.MkdirAll(dir, dirPerms); err != nil {
			return fmt.Errorf("failed to create workenv: %w", err)
		}
	}
	return nil
}

// Reset removes a previous, possibly partial, extraction.
func (p *Paths) Reset() error {
	os.Remove(p.CompleteFile())
	if err := os.RemoveAll(p.Workenv()); err != nil {
		return fmt.Errorf("failed to clean workenv: %w", err)
	}
	return p.Create()
}
