// Package notifier implements durable, pull-delivered notifications with
// per-agent FIFO ordering, exactly-once consumption via Watch, and a
// post-commit hook side-channel for downstream tooling.
package notifier

import (
	"database/sql"
	"time"

	"github.com/taskorchestrator/core/internal/errs"
)

// Kind is one of the notification kinds the engine emits.
type Kind string

const (
	KindUnblocked       Kind = "unblocked"
	KindImpact          Kind = "impact"
	KindDiscovery       Kind = "discovery"
	KindCompleted       Kind = "completed"
	KindSync            Kind = "sync"
	KindContextUpdated  Kind = "context_updated"
)

// Notification is one persisted notification row. AgentID == "" means broadcast.
type Notification struct {
	ID        int64     `json:"id"`
	AgentID   string    `json:"agent_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

type dber interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Notifier writes/reads notification rows and fans each emission out to an
// optional HookPublisher side-channel.
type Notifier struct {
	db  dber
	hub HookPublisher
}

// New builds a Notifier. hub may be nil, in which case the hook
// side-channel is skipped (notifications are still durably stored).
func New(db dber, hub HookPublisher) *Notifier {
	return &Notifier{db: db, hub: hub}
}

// Emit inserts one notification row and, best-effort, publishes it to the
// hook side-channel. A hook-publish failure is logged by the publisher and
// never rolls back the caller's transaction. A failure to insert the row
// itself is returned to the caller, so the caller's transaction rolls back.
func (n *Notifier) Emit(agentID, taskID string, kind Kind, message string) error {
	var agentArg interface{}
	if agentID != "" {
		agentArg = agentID
	}
	var taskArg interface{}
	if taskID != "" {
		taskArg = taskID
	}

	now := time.Now().UTC()
	_, err := n.db.Exec(`
		INSERT INTO notifications (agent_id, task_id, kind, message, created_at, read)
		VALUES (?, ?, ?, ?, ?, 0)
	`, agentArg, taskArg, string(kind), message, now)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "emit notification")
	}

	if n.hub != nil {
		n.hub.Publish(HookEvent{
			AgentID:   agentID,
			TaskID:    taskID,
			Kind:      string(kind),
			Message:   message,
			CreatedAt: now,
		})
	}
	return nil
}

// Watch returns unread notifications for agentID (plus any broadcast
// notifications) and atomically marks them read within the same
// transaction, giving exactly-once consumption. Callers must pass a
// Notifier built over a *sql.Tx for the atomicity guarantee to hold
// across the select+update.
func (n *Notifier) Watch(agentID string, limit int) ([]Notification, error) {
	query := `
		SELECT id, agent_id, task_id, kind, message, created_at, read
		FROM notifications
		WHERE read = 0 AND (agent_id = ? OR agent_id IS NULL)
		ORDER BY created_at ASC, id ASC
	`
	args := []interface{}{agentID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := n.db.Query(query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "query pending notifications for %s", agentID)
	}

	var out []Notification
	var ids []int64
	for rows.Next() {
		var ntf Notification
		var agentCol, taskCol sql.NullString
		if err := rows.Scan(&ntf.ID, &agentCol, &taskCol, &ntf.Kind, &ntf.Message, &ntf.CreatedAt, &ntf.Read); err != nil {
			rows.Close()
			return nil, errs.Wrap(errs.Internal, err, "scan notification row")
		}
		if agentCol.Valid {
			ntf.AgentID = agentCol.String
		}
		if taskCol.Valid {
			ntf.TaskID = taskCol.String
		}
		out = append(out, ntf)
		ids = append(ids, ntf.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Internal, err, "iterate notification rows")
	}

	for _, id := range ids {
		if _, err := n.db.Exec(`UPDATE notifications SET read = 1 WHERE id = ?`, id); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "mark notification %d read", id)
		}
	}

	return out, nil
}

// RecentForTask returns the most recent notifications referencing taskID,
// read or unread, for use by TaskCore.Show's "recent notifications" field.
func (n *Notifier) RecentForTask(taskID string, limit int) ([]Notification, error) {
	rows, err := n.db.Query(`
		SELECT id, agent_id, task_id, kind, message, created_at, read
		FROM notifications
		WHERE task_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, taskID, limit)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "query notifications for task %s", taskID)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var ntf Notification
		var agentCol, taskCol sql.NullString
		if err := rows.Scan(&ntf.ID, &agentCol, &taskCol, &ntf.Kind, &ntf.Message, &ntf.CreatedAt, &ntf.Read); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "scan notification row")
		}
		if agentCol.Valid {
			ntf.AgentID = agentCol.String
		}
		if taskCol.Valid {
			ntf.TaskID = taskCol.String
		}
		out = append(out, ntf)
	}
	return out, rows.Err()
}
