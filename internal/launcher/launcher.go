// Package launcher runs a bundle from the executable that carries it.
package launcher

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/bundlespec/internal/workenv"
	"github.com/provide-io/bundlespec/pkg/bundle"
)

// DefaultLockTimeout bounds the wait for a concurrent extraction.
const DefaultLockTimeout = 2 * time.Minute

// Options configures Run.
type Options struct {
	Logger hclog.Logger

	// CacheRoot defaults to workenv.CacheRoot().
	CacheRoot string

	// LevelFromEnv is set when the log level came from the environment; a
	// debug bundle then keeps it instead of switching to debug.
	LevelFromEnv bool

	LockTimeout time.Duration

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Run extracts the bundle appended to exePath and runs its entry point with
// args. It returns the child's exit code; a non-nil error is an *Error.
func Run(ctx context.Context, exePath string, args []string, opts Options) (int, error) {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if opts.CacheRoot == "" {
		opts.CacheRoot = workenv.CacheRoot()
	}
	if opts.LockTimeout == 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	r, err := bundle.Open(exePath, bundle.WithReaderLogger(logger))
	if err != nil {
		return ExitBundleError, failure(ExitBundleError, "open bundle", err)
	}
	defer r.Close()

	idx := r.Index()
	if idx.Has(bundle.FlagDebug) && !opts.LevelFromEnv {
		logger.SetLevel(hclog.Debug)
	}
	if idx.Has(bundle.FlagSigned) {
		if err := r.VerifySeal(); err != nil {
			return ExitBundleError, failure(ExitBundleError, "verify bundle", err)
		}
		logger.Debug("🔏 Signature verified")
	}

	md, err := r.Metadata()
	if err != nil {
		return ExitBundleError, failure(ExitBundleError, "read metadata", err)
	}
	logger.Debug("📖 Bundle opened", "name", md.Package.Name, "version", md.Package.Version, "slots", len(md.Slots))

	checksum := hex.EncodeToString(idx.MetadataChecksum[:])
	paths := workenv.New(opts.CacheRoot, md.Package.Name, md.Package.Version, checksum)
	if err := ensureExtracted(ctx, r, md, paths, checksum, opts.LockTimeout, logger); err != nil {
		return ExitExtractionError, failure(ExitExtractionError, "extract bundle", err)
	}

	cmd, err := command(ctx, md, paths.Workenv(), args)
	if err != nil {
		return ExitExecutionError, failure(ExitExecutionError, "prepare command", err)
	}
	cmd.Env = childEnv(os.Environ(), paths.Workenv())
	cmd.Stdin, cmd.Stdout, cmd.Stderr = opts.Stdin, opts.Stdout, opts.Stderr

	if !md.Options.Console {
		logFile, err := openLog(paths, md.Package.Name)
		if err != nil {
			return ExitIOError, failure(ExitIOError, "open log file", err)
		}
		defer logFile.Close()
		cmd.Stdout, cmd.Stderr = logFile, logFile
		logger.Debug("📝 Windowed bundle, child output goes to a log file", "path", logFile.Name())
	}

	logger.Info("🚀 Executing entry point", "path", cmd.Path, "args", cmd.Args[1:])
	err = cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		logger.Debug("⏹️ Process exited", "code", exitErr.ExitCode())
		return exitErr.ExitCode(), nil
	default:
		return ExitExecutionError, failure(ExitExecutionError, "run entry point", err)
	}
}

// ensureExtracted extracts every slot once per bundle build.
func ensureExtracted(ctx context.Context, r *bundle.Reader, md *bundle.Metadata, paths *workenv.Paths, checksum string, timeout time.Duration, logger hclog.Logger) error {
	name, version := md.Package.Name, md.Package.Version
	if paths.IsComplete(name, version, checksum) {
		logger.Debug("✅ Using cached workenv", "path", paths.Workenv())
		return nil
	}

	if err := paths.Lock(ctx, timeout, logger); err != nil {
		return err
	}
	defer paths.Unlock(logger)

	// Another process may have finished while we waited.
	if paths.IsComplete(name, version, checksum) {
		return nil
	}

	logger.Info("📦 Extracting bundle", "path", paths.Workenv())
	if err := paths.Reset(); err != nil {
		return err
	}
	if err := r.ExtractTo(paths.Workenv()); err != nil {
		return err
	}
	return paths.MarkComplete(name, version, checksum)
}

// command builds the child command. Python entry points without a declared
// interpreter run through python3, or python when python3 is missing.
func command(ctx context.Context, md *bundle.Metadata, dir string, args []string) (*exec.Cmd, error) {
	entry, err := bundle.SafeJoin(dir, md.Entry.Path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(entry); err != nil {
		return nil, fmt.Errorf("entry point: %w", err)
	}

	interpreter := md.Entry.Interpreter
	if interpreter == "" && strings.EqualFold(filepath.Ext(entry), ".py") {
		interpreter = "python3"
		if _, err := exec.LookPath(interpreter); err != nil {
			interpreter = "python"
		}
	}

	var cmd *exec.Cmd
	if interpreter == "" {
		cmd = exec.CommandContext(ctx, entry, args...)
	} else {
		cmd = exec.CommandContext(ctx, interpreter, append([]string{entry}, args...)...)
	}
	return cmd, nil
}

// childEnv prepends the workenv to PYTHONPATH and exports its location.
func childEnv(environ []string, dir string) []string {
	pythonPath := dir
	out := make([]string, 0, len(environ)+2)
	for _, kv := range environ {
		switch {
		case strings.HasPrefix(kv, "PYTHONPATH="):
			if existing := strings.TrimPrefix(kv, "PYTHONPATH="); existing != "" {
				pythonPath += string(os.PathListSeparator) + existing
			}
		case strings.HasPrefix(kv, "BUNDLESPEC_WORKENV="):
		default:
			out = append(out, kv)
		}
	}
	return append(out, "PYTHONPATH="+pythonPath, "BUNDLESPEC_WORKENV="+dir)
}

func openLog(paths *workenv.Paths, name string) (*os.File, error) {
	if err := os.MkdirAll(paths.LogDir(), 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(paths.LogDir(), filepath.Base(name)+".log")
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
