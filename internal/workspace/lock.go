// Package workspace serializes writers on a workspace directory.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

const lockFileName = ".kvit-patch.lock"

// retryInterval is how often a waiting Acquire polls the lock.
const retryInterval = 50 * time.Millisecond

// ErrLocked is returned when another process holds the workspace lock.
var ErrLocked = errors.New("workspace is locked by another kvit-patch run")

// Lock represents an acquired workspace lock.
type Lock struct {
	file        *os.File
	lockPath    string
	sigChan     chan os.Signal
	mu          sync.Mutex
	cleanupOnce sync.Once
}

// Acquire takes an exclusive lock on the workspace directory so that two runs never
// rewrite the same files at once. It keeps retrying until the lock is free, ctx is
// done, or wait has passed; a zero wait tries once.
// The returned Lock must be released by calling Release().
func Acquire(ctx context.Context, workspaceRoot string, wait time.Duration) (*Lock, error) {
	deadline := time.Now().Add(wait)
	for {
		lock, err := tryAcquire(workspaceRoot)
		if !errors.Is(err, ErrLocked) || !time.Now().Before(deadline) {
			return lock, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

func tryAcquire(workspaceRoot string) (*Lock, error) {
	lockPath := filepath.Join(workspaceRoot, lockFileName)

	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace lock file: %w", err)
	}

	// Non-blocking; Acquire does the waiting
	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		lockFile.Close()
		if pid := Holder(workspaceRoot); pid > 0 {
			return nil, fmt.Errorf("%w (pid %d): %s", ErrLocked, pid, workspaceRoot)
		}
		return nil, fmt.Errorf("%w: %s", ErrLocked, workspaceRoot)
	}

	// PID is informational only
	lockFile.Truncate(0)
	lockFile.Seek(0, 0)
	fmt.Fprintf(lockFile, "%d\n", os.Getpid())

	lock := &Lock{
		file:     lockFile,
		lockPath: lockPath,
		sigChan:  make(chan os.Signal, 1),
	}

	// Ctrl+C during a write still removes the lock file
	signal.Notify(lock.sigChan, syscall.SIGINT, syscall.SIGTERM)
	sigChan := lock.sigChan // Capture to avoid race with Release() setting to nil
	go func() {
		sig, ok := <-sigChan
		if ok && sig != nil {
			lock.cleanup()
			os.Exit(130) // 128 + SIGINT(2)
		}
	}()

	return lock, nil
}

// Holder returns the PID written by the current lock holder, or 0 if unknown.
func Holder(workspaceRoot string) int {
	data, err := os.ReadFile(filepath.Join(workspaceRoot, lockFileName))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// Release releases the workspace lock and removes the lock file.
func (l *Lock) Release() {
	l.mu.Lock()
	if l.file == nil {
		l.mu.Unlock()
		return
	}
	if l.sigChan != nil {
		signal.Stop(l.sigChan)
		close(l.sigChan)
		l.sigChan = nil
	}
	l.mu.Unlock()
	l.cleanup()
}

// cleanup is shared by Release and the signal handler.
func (l *Lock) cleanup() {
	l.cleanupOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.file == nil {
			return
		}
		syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
		l.file.Close()
		os.Remove(l.lockPath)
		l.file = nil
	})
}
