// Package lockfile keeps two StudyPipe processes from sharing one state directory.
//
// The lock is an flock on a file inside the directory, so the kernel drops it
// when the owning process exits, cleanly or not.
package lockfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the name of the lock file created in the state directory
const LockFileName = "studypipe.lock"

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// AcquireLock takes the state directory lock without blocking.
// When another process holds it, the returned *LockError describes that process.
func AcquireLock(stateDir string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	slog.Debug("lockfile.AcquireLock: acquiring", "lock_path", lockPath)

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	// not truncated yet: the holder's info must survive a failed attempt
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := describeHolder(lockPath)
		slog.Error("lockfile.AcquireLock: state directory is locked by another StudyPipe instance", "lock_path", lockPath, "holder", holder, "error", err)
		return nil, &LockError{LockPath: lockPath, Holder: holder, Cause: err}
	}

	if err := writeOwner(file); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}

	slog.Info("lockfile.AcquireLock: state directory locked", "lock_path", lockPath, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath}, nil
}

func writeOwner(file *os.File) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.Seek(0, 0); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(file, "pid=%d\nstarted=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		slog.Warn("lockfile.writeOwner: sync failed", "error", err)
	}
	return nil
}

// Release unlocks and removes the lock file. Calling it again is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Error("lockfile.Release: unlock failed", "lock_path", l.path, "error", err)
	}
	if err := l.file.Close(); err != nil {
		slog.Error("lockfile.Release: close failed", "lock_path", l.path, "error", err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("lockfile.Release: could not remove lock file", "lock_path", l.path, "error", err)
	}
	l.file = nil
	slog.Info("lockfile.Release: state directory unlocked", "lock_path", l.path)
	return nil
}

// LockError is returned when another process holds the lock.
type LockError struct {
	LockPath string
	Holder   string
	Cause    error
}

func (e *LockError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "another StudyPipe instance is already using this state directory (lock file %s)", e.LockPath)
	if e.Holder != "" {
		fmt.Fprintf(&b, "; holder: %s", e.Holder)
	}
	fmt.Fprintf(&b, ". If no other instance is running, remove the stale lock with: rm %s", e.LockPath)
	return b.String()
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// describeHolder summarizes the lock file written by the current holder.
func describeHolder(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return "unknown"
	}
	info := parseLockInfo(string(data))
	if info.pid <= 0 {
		return "unknown"
	}
	state := "not running, stale lock"
	if isProcessRunning(info.pid) {
		state = "running"
	}
	if info.started != "" {
		return fmt.Sprintf("PID %d (%s) since %s", info.pid, state, info.started)
	}
	return fmt.Sprintf("PID %d (%s)", info.pid, state)
}

type lockInfo struct {
	pid     int
	started string
}

// parseLockInfo reads the key=value lines of a lock file. Unknown keys are ignored.
func parseLockInfo(content string) lockInfo {
	var info lockInfo
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil {
				info.pid = pid
			}
		case "started":
			info.started = value
		}
	}
	return info
}

// isProcessRunning probes pid with signal 0.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
