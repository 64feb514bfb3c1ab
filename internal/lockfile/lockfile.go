// Package lockfile guards an AgentBuilder state directory against concurrent servers.
//
// The lock is an flock on a file in the state directory, so the kernel releases it
// when the holder exits for any reason.
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

// LockFileName is the name of the lock file created in the state directory.
const LockFileName = "agentbuilder.lock"

// Info describes the process holding a lock.
type Info struct {
	PID     int
	Command string
	Started time.Time
}

func (i Info) String() string {
	if i.PID == 0 {
		return "unknown holder"
	}
	state := "not running, stale lock"
	if isProcessRunning(i.PID) {
		state = "running"
	}
	s := fmt.Sprintf("PID %d (%s)", i.PID, state)
	if i.Command != "" {
		s += " command " + i.Command
	}
	if !i.Started.IsZero() {
		s += " since " + i.Started.Format(time.RFC3339)
	}
	return s
}

func (i Info) encode() string {
	return fmt.Sprintf("pid=%d\ncommand=%s\nstarted=%s\n", i.PID, i.Command, i.Started.UTC().Format(time.RFC3339))
}

// parseInfo reads key=value lines written by encode. Unknown keys are ignored.
func parseInfo(content string) Info {
	var info Info
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil && pid > 0 {
				info.PID = pid
			}
		case "command":
			info.Command = value
		case "started":
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				info.Started = t
			}
		}
	}
	return info
}

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the exclusive lock on stateDir, creating the directory if needed.
// command names the holder in the lock file. A held lock yields a *LockError.
func Acquire(stateDir, command string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	slog.Debug("Lockfile.Acquire: attempting", "lockPath", lockPath)

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	// O_TRUNC is deferred until the flock is held so a holder's info survives a failed attempt.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := readInfo(lockPath)
		slog.Error("Lockfile.Acquire: state directory in use", "lockPath", lockPath, "holder", holder.String())
		return nil, &LockError{LockPath: lockPath, Holder: holder, Cause: err}
	}

	info := Info{PID: os.Getpid(), Command: command, Started: time.Now()}
	if err := writeInfo(file, info); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}

	slog.Info("State directory locked", "lockPath", lockPath, "pid", info.PID)
	return &Lock{file: file, path: lockPath}, nil
}

func writeInfo(file *os.File, info Info) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.WriteAt([]byte(info.encode()), 0); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		slog.Warn("Lockfile: failed to sync lock file", "error", err, "lockPath", file.Name())
	}
	return nil
}

func readInfo(lockPath string) Info {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return Info{}
	}
	return parseInfo(string(data))
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release unlocks and removes the lock file. Calling it more than once is safe.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Error("Lockfile.Release: failed to unlock", "error", err, "lockPath", l.path)
	}
	if err := l.file.Close(); err != nil {
		slog.Error("Lockfile.Release: failed to close", "error", err, "lockPath", l.path)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lockfile.Release: failed to remove lock file", "error", err, "lockPath", l.path)
	}
	l.file = nil
	slog.Info("State directory unlocked", "lockPath", l.path)
	return nil
}

// LockError reports a state directory already locked by another process.
type LockError struct {
	LockPath string
	Holder   Info
	Cause    error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("state directory is locked by another AgentBuilder server (%s); lock file %s. "+
		"Remove it only if that process is gone: rm %s", e.Holder, e.LockPath, e.LockPath)
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// isProcessRunning probes pid with signal 0.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
