package lockfile

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrHeld is returned when another live instance owns the lock.
var ErrHeld = errors.New("another instance is already running")

// Lock is a held single-instance lock backed by a PID file. The file records
// the owning process identity; a file naming a dead process is stale and gets
// reclaimed, as does a file with unparseable contents.
type Lock struct {
	path string
}

// Acquire takes the lock at path, writing the current process's PID into it.
// A live owner yields ErrHeld; a stale or corrupt file is reclaimed.
func Acquire(path string, logger *slog.Logger) (*Lock, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	contents, err := os.ReadFile(path)
	switch {
	case err == nil:
		pid, parseErr := strconv.Atoi(strings.TrimSpace(string(contents)))
		if parseErr != nil {
			logger.LogAttrs(nil, slog.LevelWarn, "Reclaiming corrupt lockfile",
				slog.String("path", path))
		} else if alive(pid) {
			return nil, fmt.Errorf("%w: lockfile %s held by pid %d", ErrHeld, path, pid)
		} else {
			logger.LogAttrs(nil, slog.LevelWarn, "Reclaiming stale lockfile",
				slog.String("path", path), slog.Int("pid", pid))
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read lockfile %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lockfile directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return nil, fmt.Errorf("write lockfile %s: %w", path, err)
	}
	return &Lock{path: path}, nil
}

// Release removes the lockfile. Safe to call on every exit path; a missing
// file is not an error.
func (l *Lock) Release() error {
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lockfile %s: %w", l.path, err)
	}
	return nil
}

// alive reports whether a process with the given PID exists. Signal 0 probes
// existence without delivering anything; EPERM still means the process is
// there.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
