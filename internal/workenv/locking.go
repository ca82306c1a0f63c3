package workenv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// ErrLockTimeout is returned when another process holds the lock too long.
var ErrLockTimeout = errors.New("timed out waiting for extraction lock")

const pollInterval = 100 * time.Millisecond

// TryLock creates the PID lock file. It returns false when a live process
// holds it. Locks of dead processes and unreadable locks are removed first.
//
// The lock file is linked into place fully written, so readers never see a
// partial PID.
func (p *Paths) TryLock(logger hclog.Logger) (bool, error) {
	if err := os.MkdirAll(p.Meta(), dirPerms); err != nil {
		return false, err
	}

	if data, err := os.ReadFile(p.LockFile()); err == nil {
		pid, perr := strconv.Atoi(strings.TrimSpace(string(data)))
		switch {
		case perr == nil && pid != os.Getpid() && processAlive(pid):
			logger.Debug("🔒 Lock held by active process", "pid", pid)
			return false, nil
		case perr != nil:
			logger.Info("🧹 Removing invalid lock file")
		default:
			logger.Info("🧹 Removing stale lock", "pid", pid)
		}
		broken, err := p.breakLock(data)
		if err != nil || !broken {
			return false, err
		}
	}

	tmp, err := os.CreateTemp(p.Meta(), ".lock-*")
	if err != nil {
		return false, err
	}
	defer os.Remove(tmp.Name())
	if _, err := fmt.Fprintf(tmp, "%d\n", os.Getpid()); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := os.Link(tmp.Name(), p.LockFile()); err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	logger.Debug("🔒 Acquired extraction lock", "pid", os.Getpid())
	return true, nil
}

// breakLock moves the lock file aside if it still holds seen. When another
// process replaced it in the meantime, the newer lock is put back and
// breakLock reports false.
func (p *Paths) breakLock(seen []byte) (bool, error) {
	path := p.LockFile()
	aside := fmt.Sprintf("%s.%d.stale", path, os.Getpid())
	if err := os.Rename(path, aside); err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	defer os.Remove(aside)

	data, err := os.ReadFile(aside)
	if err != nil {
		return false, err
	}
	if bytes.Equal(data, seen) {
		return true, nil
	}
	if err := os.Link(aside, path); err != nil && !os.IsExist(err) {
		return false, err
	}
	return false, nil
}

// Unlock removes the lock file.
func (p *Paths) Unlock(logger hclog.Logger) {
	if err := os.Remove(p.LockFile()); err != nil && !os.IsNotExist(err) {
		logger.Debug("⚠️ Failed to remove lock file", "error", err)
		return
	}
	logger.Debug("🔓 Released extraction lock")
}

// Lock waits until TryLock succeeds, ctx is done, or timeout elapses.
func (p *Paths) Lock(ctx context.Context, timeout time.Duration, logger hclog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ok, err := p.TryLock(logger)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrLockTimeout
			}
			return ctx.Err()
		case <-ticker.C:
			logger.Trace("⏳ Waiting for extraction lock")
		}
	}
}
