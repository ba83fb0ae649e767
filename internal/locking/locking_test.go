package locking

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func tempLockPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "locking-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, ".lock")
}

func TestAcquireAndReleaseRoundTrip(t *testing.T) {
	path := tempLockPath(t)
	l := New(path)
	if err := l.Acquire(time.Second); err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected lock file removed after release, stat err: %v", err)
	}
}

func TestAcquireTimesOutWhileHeld(t *testing.T) {
	path := tempLockPath(t)
	holder := New(path)
	if err := holder.Acquire(time.Second); err != nil {
		t.Fatal(err)
	}
	defer holder.Release()

	contender := New(path)
	err := contender.Acquire(150 * time.Millisecond)
	if err == nil {
		t.Fatal("expected contender to time out while holder keeps the lock")
	}
}

func TestWithLockRunsFnAndReleases(t *testing.T) {
	path := tempLockPath(t)
	ran := false
	err := WithLock(path, time.Second, func() error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Error("expected fn to run")
	}

	// The lock must be free again for a second acquire to succeed promptly.
	l := New(path)
	if err := l.Acquire(150 * time.Millisecond); err != nil {
		t.Fatalf("expected lock free after WithLock returns: %v", err)
	}
	l.Release()
}

func TestWithLockReleasesEvenOnError(t *testing.T) {
	path := tempLockPath(t)
	sentinel := errNotFound()
	err := WithLock(path, time.Second, func() error {
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("expected WithLock to propagate fn's error, got %v", err)
	}

	l := New(path)
	if err := l.Acquire(150 * time.Millisecond); err != nil {
		t.Fatalf("expected lock released despite fn error: %v", err)
	}
	l.Release()
}

func errNotFound() error {
	return os.ErrNotExist
}

// TestAcquireStealsFromLiveStaleHolder exercises the scenario a same-fd
// re-flock can never handle: the holder process is alive (it's this test
// process) but its claim is older than the grace period. A contender must
// still get in by replacing the lock file itself.
func TestAcquireStealsFromLiveStaleHolder(t *testing.T) {
	path := tempLockPath(t)
	holder := New(path).WithGracePeriod(0)
	if err := holder.Acquire(time.Second); err != nil {
		t.Fatal(err)
	}
	defer unix.Close(holder.fd) // avoid double-closing an fd the contender's steal invalidated the path for

	time.Sleep(5 * time.Millisecond)

	contender := New(path).WithGracePeriod(0)
	if err := contender.Acquire(time.Second); err != nil {
		t.Fatalf("expected contender to steal the live-but-stale lock, got %v", err)
	}
	defer contender.Release()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatal(err)
	}
	if p.PID != os.Getpid() {
		t.Errorf("expected the lock payload to reflect the contender's own claim, got pid %d", p.PID)
	}
}
