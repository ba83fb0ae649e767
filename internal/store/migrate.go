package store

import (
	_ "embed"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/taskorchestrator/core/internal/errs"
)

//go:embed migrations/001_init.sql
var migration001 string

//go:embed migrations/002_assignment_history.sql
var migration002 string

// migration describes one numbered, idempotent schema step, mirroring the
// teacher's internal/memory/db.go embed-and-ladder structure.
type migration struct {
	version     int
	description string
	sql         string
}

var migrations = []migration{
	{1, "initial schema: tasks, dependencies, participants, notifications, progress", migration001},
	{2, "add assignment_history for per-agent productivity metrics", migration002},
}

// Migrator applies pending migrations to a Store, taking a backup of the
// database file before each apply and supporting rollback to the most
// recent backup.
type Migrator struct {
	s          *Store
	backupsDir string
}

// NewMigrator builds a Migrator whose backups land in "./backups" relative
// to the database file's directory.
func NewMigrator(s *Store) *Migrator {
	return &Migrator{s: s, backupsDir: filepath.Join(filepath.Dir(s.Path), "backups")}
}

// CurrentVersion returns the highest applied schema version, or 0 if the
// schema_version table doesn't exist yet.
func (m *Migrator) CurrentVersion() (int, error) {
	var exists int
	err := m.s.DB.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='schema_version'`).Scan(&exists)
	if err != nil {
		return 0, errs.Wrap(errs.Internal, err, "check schema_version table")
	}
	if exists == 0 {
		return 0, nil
	}

	var version sql.NullInt64
	err = m.s.DB.QueryRow(`SELECT max(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, errs.Wrap(errs.Internal, err, "read schema_version")
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

// Apply runs every migration with version greater than CurrentVersion, in
// order, each inside its own transaction, backing up the database file
// first. Applying when already current is a no-op.
func (m *Migrator) Apply() error {
	current, err := m.CurrentVersion()
	if err != nil {
		return err
	}

	latest := 0
	for _, mig := range migrations {
		if mig.version > latest {
			latest = mig.version
		}
	}
	if latest > 0 && current > latest {
		return errs.New(errs.SchemaMismatch, "database schema version %d is newer than this build understands (max %d)", current, latest)
	}

	for _, mig := range migrations {
		if mig.version <= current {
			continue
		}
		if err := m.backup(mig.version); err != nil {
			return err
		}
		if err := m.applyOne(mig); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) applyOne(mig migration) error {
	return m.s.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(mig.sql); err != nil {
			return errs.Wrap(errs.Internal, err, "apply migration %d", mig.version)
		}
		_, err := tx.Exec(`INSERT INTO schema_version (version, applied_at, description) VALUES (?, ?, ?)`,
			mig.version, Now(), mig.description)
		if err != nil {
			return errs.Wrap(errs.Internal, err, "record schema_version %d", mig.version)
		}
		return nil
	})
}

// backup copies the live database file to ./backups/tasks-<version>-<ts>.db
// before applying the migration that would produce that version. The WAL
// is checkpointed into the main file first so the copy holds every
// committed change.
func (m *Migrator) backup(forVersion int) error {
	if _, err := os.Stat(m.s.Path); os.IsNotExist(err) {
		return nil // nothing to back up on first run
	}
	if _, err := m.s.DB.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return errs.Wrap(errs.Internal, err, "checkpoint database before backup")
	}

	if err := os.MkdirAll(m.backupsDir, 0755); err != nil {
		return errs.Wrap(errs.Internal, err, "create backups directory")
	}

	dest := filepath.Join(m.backupsDir, fmt.Sprintf("tasks-%d-%d.db", forVersion, time.Now().UnixNano()))
	return copyFile(m.s.Path, dest)
}

// Rollback restores the most recent backup file and rewinds the
// schema_version row set to match, undoing the last Apply.
func (m *Migrator) Rollback() error {
	entries, err := os.ReadDir(m.backupsDir)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "read backups directory")
	}
	if len(entries) == 0 {
		return errs.New(errs.Internal, "no backups available to roll back to")
	}

	var newest string
	var newestMod time.Time
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(newestMod) {
			newestMod = info.ModTime()
			newest = filepath.Join(m.backupsDir, e.Name())
		}
	}
	if newest == "" {
		return errs.New(errs.Internal, "no usable backups found")
	}

	if err := m.s.DB.Close(); err != nil {
		return errs.Wrap(errs.Internal, err, "close database before rollback")
	}
	if err := copyFile(newest, m.s.Path); err != nil {
		return err
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", m.s.Path))
	if err != nil {
		return errs.Wrap(errs.Internal, err, "reopen database after rollback")
	}
	m.s.DB = db
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "open %s for backup", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "create %s for backup", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errs.Wrap(errs.Internal, err, "copy %s to %s", src, dst)
	}
	return out.Sync()
}
