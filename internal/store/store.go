// Package store owns the embedded SQLite database: connection setup,
// schema migrations, and the transaction helper every other component
// builds its writes on top of.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/taskorchestrator/core/internal/errs"
)

// Store wraps the underlying *sql.DB plus the paths it was opened from,
// which the migrator needs to take pre-migration backups.
type Store struct {
	DB   *sql.DB
	Path string
}

// Open opens (creating if necessary) the SQLite database at path with
// WAL mode, a busy-timeout floor, and foreign keys enforced, runs any
// pending migrations, and returns the ready-to-use Store.
//
// testMode relaxes fsync the way TM_TEST_MODE does for the CLI: it still
// uses WAL and the same busy timeout but sets synchronous=OFF, which is
// only useful for speeding up ephemeral test databases.
func Open(path string, testMode bool) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "create db directory %s", dir)
		}
	}

	busyTimeout := 5000
	synchronous := "NORMAL"
	if testMode {
		synchronous = "OFF"
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on&_synchronous=%s",
		path, busyTimeout, synchronous)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "open database %s", path)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.Internal, err, "ping database %s", path)
	}

	s := &Store{DB: db, Path: path}

	m := NewMigrator(s)
	if err := m.Apply(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}

// WithTx runs fn inside a single transaction, rolling back on any error and
// committing otherwise — the atomicity unit every public task-coordination
// operation is built from.
func (s *Store) WithTx(fn func(*sql.Tx) error) error {
	tx, err := s.DB.Begin()
	if err != nil {
		if isBusy(err) {
			return errs.Wrap(errs.StoreBusy, err, "begin transaction")
		}
		return errs.Wrap(errs.Internal, err, "begin transaction")
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		if isBusy(err) {
			return errs.Wrap(errs.StoreBusy, err, "commit transaction")
		}
		return errs.Wrap(errs.Internal, err, "commit transaction")
	}
	return nil
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return contains(s, "database is locked") || contains(s, "busy")
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// Now returns the current time in UTC, the form every stored timestamp
// uses.
func Now() time.Time { return time.Now().UTC() }
