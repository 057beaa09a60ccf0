package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
)

const lockFilename = "figtool.pid"

var ErrSessionActive = errors.New("another card session is already running")

// SessionLock stops two processes talking to a reader at the same time.
type SessionLock struct {
	path string
}

func lockPid(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("error reading pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("error parsing pid: %w", err)
	}

	return pid, nil
}

func processRunning(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}

// LockSession creates a pid file in dir. A stale file left by a process
// that is no longer running is replaced.
func LockSession(dir string) (*SessionLock, error) {
	path := filepath.Join(dir, lockFilename)

	pid, err := lockPid(path)
	if err != nil {
		log.Warn().Err(err).Msg("ignoring unreadable pid file")
	} else if processRunning(pid) {
		return nil, fmt.Errorf("%w: pid %d", ErrSessionActive, pid)
	}

	err = os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
	if err != nil {
		return nil, err
	}

	return &SessionLock{path: path}, nil
}

func (l *SessionLock) Release() error {
	return os.Remove(l.path)
}
