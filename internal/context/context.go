// Package context manages per-task shared context documents and
// per-(task,agent) private notes: append-only, size-bounded, fsynced
// under the project advisory lock.
package context

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/taskorchestrator/core/internal/errs"
	"github.com/taskorchestrator/core/internal/locking"
)

// DefaultSharedBound is the default shared-context size bound.
const DefaultSharedBound = 10 * 1024 * 1024

// DefaultPrivateBound is the default private-note size bound.
const DefaultPrivateBound = 5 * 1024 * 1024

// EntryType is one of the structured shared-context content kinds.
type EntryType string

const (
	TypeProgress  EntryType = "progress"
	TypeUpdate    EntryType = "update"
	TypeFix       EntryType = "fix"
	TypeDiscovery EntryType = "discovery"
	TypeSync      EntryType = "sync"
)

// Entry is one structured contribution to a shared context document.
type Entry struct {
	AgentID   string    `yaml:"agent_id"`
	Timestamp time.Time `yaml:"timestamp"`
	Type      EntryType `yaml:"type"`
	Content   string    `yaml:"content"`
	// Discovery-only fields; empty/zero for other entry types.
	Impact string   `yaml:"impact,omitempty"`
	Tags   []string `yaml:"tags,omitempty"`

	Extra map[string]interface{} `yaml:",inline"`
}

// SharedContext is the full document stored at contexts/<task_id>.yaml.
// Extra preserves any top-level key this package doesn't know about, so a
// document written by a newer version (or a hand-edited file) round-trips
// through a load/append/save cycle without losing data.
type SharedContext struct {
	Global      string  `yaml:"global"`
	Agents      []Entry `yaml:"agents"`
	Discoveries []Entry `yaml:"discoveries"`
	SyncPoints  []Entry `yaml:"sync_points"`

	Extra map[string]interface{} `yaml:",inline"`
}

// Store manages shared/private context files under a project state
// directory, serializing writes through the shared project advisory lock
// so a context-file write and the DB row that references it commit as one
// critical section.
type Store struct {
	stateDir      string
	lockPath      string
	lockTimeout   time.Duration
	sharedBound   int64
	privateBound  int64
}

// NewStore builds a context Store rooted at stateDir
// ("<project>/.task-orchestrator").
func NewStore(stateDir string) *Store {
	return &Store{
		stateDir:     stateDir,
		lockPath:     filepath.Join(stateDir, ".lock"),
		lockTimeout:  locking.DefaultTimeout,
		sharedBound:  DefaultSharedBound,
		privateBound: DefaultPrivateBound,
	}
}

// WithBounds overrides the size bounds (for tests).
func (s *Store) WithBounds(shared, private int64) *Store {
	s.sharedBound = shared
	s.privateBound = private
	return s
}

func (s *Store) sharedPath(taskID string) string {
	return filepath.Join(s.stateDir, "contexts", taskID+".yaml")
}

func (s *Store) privatePath(taskID, agentID string) string {
	return filepath.Join(s.stateDir, "notes", taskID+"_"+agentID+".md")
}

// LoadShared reads the shared context document for taskID without taking
// the advisory lock: reads never lock.
func (s *Store) LoadShared(taskID string) (*SharedContext, error) {
	data, err := os.ReadFile(s.sharedPath(taskID))
	if os.IsNotExist(err) {
		return &SharedContext{}, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "read shared context for %s", taskID)
	}
	var doc SharedContext
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errs.Wrap(errs.Internal, err, "parse shared context for %s", taskID)
	}
	return &doc, nil
}

// LockPath returns the project advisory lock file path this store writes
// under, so callers that need to bracket a context write together with a
// database transaction in one critical section (§4.3) can take the lock
// themselves and call the *NoLock variants below.
func (s *Store) LockPath() string { return s.lockPath }

// LockTimeout returns the advisory-lock acquire timeout this store uses.
func (s *Store) LockTimeout() time.Duration { return s.lockTimeout }

// SetGlobal replaces the document's global section, taking the advisory
// lock for the read-modify-write.
func (s *Store) SetGlobal(taskID, global string) error {
	return locking.WithLock(s.lockPath, s.lockTimeout, func() error {
		return s.SetGlobalNoLock(taskID, global)
	})
}

// SetGlobalNoLock is SetGlobal's body without acquiring the lock, for
// callers who already hold it (e.g. an orchestration step that writes a
// context file and a database row in one locked critical section).
func (s *Store) SetGlobalNoLock(taskID, global string) error {
	doc, err := s.LoadShared(taskID)
	if err != nil {
		return err
	}
	doc.Global = global
	return s.writeShared(taskID, doc)
}

// AppendAgentEntry appends e to the document's agents[] list.
func (s *Store) AppendAgentEntry(taskID string, e Entry) error {
	return s.appendTo(taskID, func(doc *SharedContext) { doc.Agents = append(doc.Agents, e) })
}

// AppendAgentEntryNoLock is AppendAgentEntry without acquiring the lock.
func (s *Store) AppendAgentEntryNoLock(taskID string, e Entry) error {
	return s.appendToNoLock(taskID, func(doc *SharedContext) { doc.Agents = append(doc.Agents, e) })
}

// AppendDiscovery appends e to the document's discoveries[] list.
func (s *Store) AppendDiscovery(taskID string, e Entry) error {
	return s.appendTo(taskID, func(doc *SharedContext) { doc.Discoveries = append(doc.Discoveries, e) })
}

// AppendDiscoveryNoLock is AppendDiscovery without acquiring the lock: used
// by the worker facade's discover() so the context-file append and the
// notification row it produces land in one locked critical section instead
// of two separate ones.
func (s *Store) AppendDiscoveryNoLock(taskID string, e Entry) error {
	return s.appendToNoLock(taskID, func(doc *SharedContext) { doc.Discoveries = append(doc.Discoveries, e) })
}

// AppendSyncPoint appends e to the document's sync_points[] list.
func (s *Store) AppendSyncPoint(taskID string, e Entry) error {
	return s.appendTo(taskID, func(doc *SharedContext) { doc.SyncPoints = append(doc.SyncPoints, e) })
}

// AppendSyncPointNoLock is AppendSyncPoint without acquiring the lock.
func (s *Store) AppendSyncPointNoLock(taskID string, e Entry) error {
	return s.appendToNoLock(taskID, func(doc *SharedContext) { doc.SyncPoints = append(doc.SyncPoints, e) })
}

func (s *Store) appendTo(taskID string, mutate func(*SharedContext)) error {
	return locking.WithLock(s.lockPath, s.lockTimeout, func() error {
		return s.appendToNoLock(taskID, mutate)
	})
}

func (s *Store) appendToNoLock(taskID string, mutate func(*SharedContext)) error {
	doc, err := s.LoadShared(taskID)
	if err != nil {
		return err
	}
	mutate(doc)

	data, err := yaml.Marshal(doc)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "marshal shared context for %s", taskID)
	}
	if int64(len(data)) > s.sharedBound {
		return errs.New(errs.SizeExceeded, "shared context for %s would exceed %d bytes", taskID, s.sharedBound)
	}
	return writeFileFsync(s.sharedPath(taskID), data)
}

func (s *Store) writeShared(taskID string, doc *SharedContext) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "marshal shared context for %s", taskID)
	}
	if int64(len(data)) > s.sharedBound {
		return errs.New(errs.SizeExceeded, "shared context for %s would exceed %d bytes", taskID, s.sharedBound)
	}
	return writeFileFsync(s.sharedPath(taskID), data)
}

// AppendPrivateNote appends text to the per-(task,agent) private note
// file, enforcing the size bound before writing anything.
func (s *Store) AppendPrivateNote(taskID, agentID, text string) error {
	return locking.WithLock(s.lockPath, s.lockTimeout, func() error {
		path := s.privatePath(taskID, agentID)
		existing, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return errs.Wrap(errs.Internal, err, "read private note %s", path)
		}

		entry := fmt.Sprintf("\n## %s (%s)\n\n%s\n", agentID, time.Now().UTC().Format(time.RFC3339), text)
		if int64(len(existing)+len(entry)) > s.privateBound {
			return errs.New(errs.SizeExceeded, "private note %s would exceed %d bytes", path, s.privateBound)
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return errs.Wrap(errs.Internal, err, "create notes directory")
		}
		fh, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return errs.Wrap(errs.Internal, err, "open private note %s", path)
		}
		defer fh.Close()
		if _, err := fh.WriteString(entry); err != nil {
			return errs.Wrap(errs.Internal, err, "write private note %s", path)
		}
		return fh.Sync()
	})
}

// LoadPrivateNote reads a private note file's full contents without
// locking (reads never lock).
func (s *Store) LoadPrivateNote(taskID, agentID string) (string, error) {
	data, err := os.ReadFile(s.privatePath(taskID, agentID))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", errs.Wrap(errs.Internal, err, "read private note for %s/%s", taskID, agentID)
	}
	return string(data), nil
}

// writeFileFsync writes data to path via a temp-file-then-rename swap: the
// new document is fully written and fsynced under a sibling ".tmp" name
// before os.Rename atomically replaces the target, so a crash mid-write
// never truncates or corrupts the previously-persisted document (§9: writes
// never rewrite the live file in place).
func writeFileFsync(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errs.Wrap(errs.Internal, err, "create directory for %s", path)
	}

	tmp := path + ".tmp"
	fh, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "open %s", tmp)
	}
	if _, err := fh.Write(data); err != nil {
		fh.Close()
		return errs.Wrap(errs.Internal, err, "write %s", tmp)
	}
	if err := fh.Sync(); err != nil {
		fh.Close()
		return errs.Wrap(errs.Internal, err, "fsync %s", tmp)
	}
	if err := fh.Close(); err != nil {
		return errs.Wrap(errs.Internal, err, "close %s", tmp)
	}

	if err := os.Rename(tmp, path); err != nil {
		return errs.Wrap(errs.Internal, err, "rename %s to %s", tmp, path)
	}
	return nil
}
