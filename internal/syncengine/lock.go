package syncengine

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// Lock is a held PID-file lock at one path; callers must call Release when
// the sync pass (or long-lived server) exits.
type Lock struct {
	path string
}

// AcquireLock claims the PID file at path, refusing if another live process
// already holds it. A stale lock left behind by a process that died without
// cleanup (crash, SIGKILL) is detected by probing the recorded PID with
// signal 0 and removed automatically. No pack library covers PID-file
// locking, so this is authored directly against os/syscall.
func AcquireLock(path string) (*Lock, error) {
	if data, err := os.ReadFile(path); err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(data))); perr == nil && processAlive(pid) {
			return nil, fmt.Errorf("syncengine: lock %s held by live pid %d", path, pid)
		}
		// stale lock: previous holder is gone, remove it and continue.
		_ = os.Remove(path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("syncengine: acquire lock %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("syncengine: write lock %s: %w", path, err)
	}

	return &Lock{path: path}, nil
}

// Release removes the PID file. Safe to call even if the file was already
// removed out from under the process.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("syncengine: release lock %s: %w", l.path, err)
	}
	return nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; signal 0 performs a liveness
	// probe without actually sending a signal.
	return proc.Signal(syscall.Signal(0)) == nil
}
