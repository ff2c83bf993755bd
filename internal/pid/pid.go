// Package pid keeps a second serve process from starting on the same host.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/telemetryd/internal/errors"
)

const pidFile = "telemetryd.pid"

// DefaultPath is used when no PID file is configured.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), pidFile)
}

func resolve(path string) string {
	if path == "" {
		return DefaultPath()
	}

	return path
}

// Write records the current process ID at path. A file naming a live
// process fails with ErrAlreadyRunning; unreadable or stale files are
// replaced.
func Write(path string) error {
	errFactory := errors.New()
	path = resolve(path)

	if running, pid := alive(path); running {
		return errFactory.WithData(errors.ErrAlreadyRunning, pid)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600)
	if err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove deletes the PID file. A missing file is not an error.
func Remove(path string) error {
	path = resolve(path)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}

func alive(path string) (bool, int) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false, 0
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}

	return process.Signal(syscall.Signal(0)) == nil, pid
}
