package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func setupStorePath(t *testing.T) (string, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "store-test-*")
	if err != nil {
		t.Fatal(err)
	}
	cleanup := func() { os.RemoveAll(dir) }
	return filepath.Join(dir, "tasks.db"), cleanup
}

func TestOpenCreatesDatabaseAndAppliesMigrations(t *testing.T) {
	path, cleanup := setupStorePath(t)
	defer cleanup()

	s, err := Open(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected database file to exist at %s: %v", path, err)
	}

	m := NewMigrator(s)
	version, err := m.CurrentVersion()
	if err != nil {
		t.Fatal(err)
	}
	if version != 2 {
		t.Errorf("expected schema at latest version 2, got %d", version)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path, cleanup := setupStorePath(t)
	defer cleanup()

	s1, err := Open(path, true)
	if err != nil {
		t.Fatal(err)
	}
	s1.Close()

	s2, err := Open(path, true)
	if err != nil {
		t.Fatalf("expected reopening an already-migrated database to succeed, got %v", err)
	}
	defer s2.Close()

	m := NewMigrator(s2)
	version, err := m.CurrentVersion()
	if err != nil {
		t.Fatal(err)
	}
	if version != 2 {
		t.Errorf("expected version to remain 2 after reopen, got %d", version)
	}
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	path, cleanup := setupStorePath(t)
	defer cleanup()
	s, err := Open(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	err = s.WithTx(func(tx *sql.Tx) error {
		_, execErr := tx.Exec(`INSERT INTO tasks (id, title, status, priority, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			"abc12345", "committed task", "pending", "medium", "user", Now(), Now())
		return execErr
	})
	if err != nil {
		t.Fatal(err)
	}

	var count int
	if err := s.DB.QueryRow(`SELECT count(*) FROM tasks WHERE id = ?`, "abc12345").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected committed row to persist, got count %d", count)
	}
}

var errSentinel = errors.New("forced rollback")

func TestWithTxRollsBackOnError(t *testing.T) {
	path, cleanup := setupStorePath(t)
	defer cleanup()
	s, err := Open(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	err = s.WithTx(func(tx *sql.Tx) error {
		if _, execErr := tx.Exec(`INSERT INTO tasks (id, title, status, priority, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			"deadbeef", "should vanish", "pending", "medium", "user", Now(), Now()); execErr != nil {
			return execErr
		}
		return errSentinel
	})
	if !errors.Is(err, errSentinel) {
		t.Fatalf("expected WithTx to propagate the callback's error, got %v", err)
	}

	var count int
	if err := s.DB.QueryRow(`SELECT count(*) FROM tasks WHERE id = ?`, "deadbeef").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected rollback to discard the row, found count %d", count)
	}
}

func TestNowReturnsUTC(t *testing.T) {
	if Now().Location().String() != "UTC" {
		t.Errorf("expected Now() to return UTC, got %s", Now().Location())
	}
}
