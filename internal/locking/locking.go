// Package locking implements a project-wide advisory lock: a single lock
// file guarding operations that straddle the database and the filesystem
// (context/notes writes), backed by POSIX flock/kill(pid, 0) primitives
// idiomatic for a Linux-hosted CLI tool, with PID-staleness detection so
// a crashed holder's lock can be safely reclaimed.
package locking

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/taskorchestrator/core/internal/errs"
)

// DefaultGracePeriod is how long a lock file may go unrefreshed before a
// competing process is allowed to treat it as abandoned and steal it.
const DefaultGracePeriod = 60 * time.Second

// DefaultTimeout is the timeout callers pass to Acquire to bound how long
// it waits before giving up.
const DefaultTimeout = 10 * time.Second

// payload is the JSON body written into the lock file for diagnosability
// and staleness checks.
type payload struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
	Hostname   string    `json:"hostname"`
}

// Lock represents a held (or pending) advisory lock on a single file.
type Lock struct {
	path        string
	gracePeriod time.Duration
	fd          int
	held        bool
}

// New creates a Lock bound to path (typically "<project>/.task-orchestrator/.lock").
// It does not acquire anything yet.
func New(path string) *Lock {
	return &Lock{path: path, gracePeriod: DefaultGracePeriod}
}

// WithGracePeriod overrides the staleness grace period (for tests).
func (l *Lock) WithGracePeriod(d time.Duration) *Lock {
	l.gracePeriod = d
	return l
}

// Acquire blocks until the lock is obtained or timeout elapses, stealing
// a stale lock (dead PID, or alive but older than the grace period) along
// the way. Returns errs.LockTimeout on timeout.
func (l *Lock) Acquire(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := l.tryAcquire()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return errs.New(errs.LockTimeout, "could not acquire project lock %s within %s", l.path, timeout)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (l *Lock) tryAcquire() (bool, error) {
	fd, err := unix.Open(l.path, unix.O_RDWR|unix.O_CREAT, 0644)
	if err != nil {
		return false, errs.Wrap(errs.Internal, err, "open lock file %s", l.path)
	}

	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			// Someone else holds it. A live, over-grace holder still holds
			// its flock on this inode, so re-flocking the same fd can never
			// take it; steal by replacing the file itself.
			stale := l.isStale(fd)
			unix.Close(fd)
			if stale {
				return l.stealStale()
			}
			return false, nil
		}
		unix.Close(fd)
		return false, errs.Wrap(errs.Internal, err, "flock %s", l.path)
	}

	return l.writeAndHold(fd)
}

// stealStale unlinks a stale lock file and creates a fresh one (a new
// inode, carrying no flock state inherited from the old holder) at the
// same path, then flocks that. O_EXCL means a contender that loses the
// race to recreate the file backs off to the caller's retry loop instead
// of fighting over a file it didn't create.
func (l *Lock) stealStale() (bool, error) {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return false, errs.Wrap(errs.Internal, err, "remove stale lock file %s", l.path)
	}

	fd, err := unix.Open(l.path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0644)
	if err != nil {
		if err == unix.EEXIST {
			return false, nil
		}
		return false, errs.Wrap(errs.Internal, err, "recreate lock file %s", l.path)
	}

	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if err == unix.EWOULDBLOCK {
			return false, nil
		}
		return false, errs.Wrap(errs.Internal, err, "flock %s", l.path)
	}

	return l.writeAndHold(fd)
}

func (l *Lock) writeAndHold(fd int) (bool, error) {
	p := payload{PID: os.Getpid(), AcquiredAt: time.Now().UTC()}
	if h, err := os.Hostname(); err == nil {
		p.Hostname = h
	}
	data, _ := json.Marshal(p)
	unix.Ftruncate(fd, 0)
	unix.Pwrite(fd, data, 0)

	l.fd = fd
	l.held = true
	return true, nil
}

// isStale reports whether the lock's current payload refers to a dead
// process or one whose claim predates the grace period.
func (l *Lock) isStale(fd int) bool {
	data, err := os.ReadFile(l.path)
	if err != nil || len(data) == 0 {
		return false
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return false
	}
	if p.PID <= 0 {
		return true
	}
	if err := unix.Kill(p.PID, 0); err != nil {
		// ESRCH: no such process.
		return true
	}
	return time.Since(p.AcquiredAt) > l.gracePeriod
}

// Release drops the lock and removes the backing file.
func (l *Lock) Release() error {
	if !l.held {
		return nil
	}
	unix.Flock(l.fd, unix.LOCK_UN)
	unix.Close(l.fd)
	l.held = false
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// WithLock acquires the lock, runs fn, and releases it unconditionally,
// the shape every context-file write in internal/context uses to bracket
// its critical section.
func WithLock(path string, timeout time.Duration, fn func() error) error {
	l := New(path)
	if err := l.Acquire(timeout); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}
