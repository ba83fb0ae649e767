package notifier

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// HookEvent is the post-commit payload handed to downstream tooling over
// the fire-and-forget side-channel the core invokes but does not itself
// interpret.
type HookEvent struct {
	AgentID   string    `json:"agent_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// HookPublisher fans a HookEvent out to whatever downstream transport is
// configured. Publish must never block the caller's transaction on
// failure; implementations log and swallow transport errors.
type HookPublisher interface {
	Publish(ev HookEvent)
	Close() error
}

// FileHookPublisher appends one JSON line per event to events/hooks.jsonl
// under the state directory — the default, zero-dependency transport.
type FileHookPublisher struct {
	mu   sync.Mutex
	path string
	logger *log.Logger
}

// NewFileHookPublisher creates <stateDir>/events if needed and returns a
// publisher for the append-only hook log at <stateDir>/events/hooks.jsonl;
// each Publish opens (creating if needed) and appends to that file.
func NewFileHookPublisher(stateDir string, logger *log.Logger) (*FileHookPublisher, error) {
	if logger == nil {
		logger = log.Default()
	}
	dir := filepath.Join(stateDir, "events")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileHookPublisher{path: filepath.Join(dir, "hooks.jsonl"), logger: logger}, nil
}

func (f *FileHookPublisher) Publish(ev HookEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		f.logger.Printf("hook publish: marshal event: %v", err)
		return
	}
	data = append(data, '\n')

	fh, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		f.logger.Printf("hook publish: open %s: %v", f.path, err)
		return
	}
	defer fh.Close()

	if _, err := fh.Write(data); err != nil {
		f.logger.Printf("hook publish: write %s: %v", f.path, err)
		return
	}
	fh.Sync()
}

func (f *FileHookPublisher) Close() error { return nil }

// NATSHookPublisher fire-and-forgets each event onto a subject derived from
// the project id and event kind, grounded in internal/nats/client.go's
// connection setup and cmd/nats-bridge/main.go's no-ack-awaited publish
// style: errors are logged, never raised to the caller.
type NATSHookPublisher struct {
	conn      *nats.Conn
	projectID string
	logger    *log.Logger
}

// NewNATSHookPublisher connects to url and returns a publisher that
// targets "taskorchestrator.<projectID>.<kind>" subjects.
func NewNATSHookPublisher(url, projectID string, logger *log.Logger) (*NATSHookPublisher, error) {
	if logger == nil {
		logger = log.Default()
	}
	conn, err := nats.Connect(url, nats.MaxReconnects(-1), nats.ReconnectWait(time.Second))
	if err != nil {
		return nil, err
	}
	return &NATSHookPublisher{conn: conn, projectID: projectID, logger: logger}, nil
}

func (p *NATSHookPublisher) Publish(ev HookEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Printf("nats hook publish: marshal event: %v", err)
		return
	}
	subject := "taskorchestrator." + p.projectID + "." + ev.Kind
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Printf("nats hook publish: publish %s: %v", subject, err)
	}
}

func (p *NATSHookPublisher) Close() error {
	p.conn.Drain()
	return nil
}
