package taskcore

import (
	"database/sql"

	"github.com/taskorchestrator/core/internal/dependency"
	"github.com/taskorchestrator/core/internal/errs"
	"github.com/taskorchestrator/core/internal/notifier"
	dbstore "github.com/taskorchestrator/core/internal/store"
)

// CriticalPath returns the longest chain of non-terminal tasks by
// estimated_hours, ties broken by priority then deadline then id (§4.5).
func (e *Engine) CriticalPath() ([]string, error) {
	var path []string
	err := e.s.WithTx(func(tx *sql.Tx) error {
		st := NewStore(tx)
		resolver := dependency.NewResolver(tx)

		tasks, err := st.List(Filter{})
		if err != nil {
			return err
		}
		edges, err := resolver.AllEdges()
		if err != nil {
			return err
		}

		nodes := make(map[string]dependency.NodeInfo, len(tasks))
		for _, t := range tasks {
			var hours float64
			if t.EstimatedHours != nil {
				hours = *t.EstimatedHours
			}
			var deadline *int64
			if t.Deadline != nil {
				u := t.Deadline.Unix()
				deadline = &u
			}
			nodes[t.ID] = dependency.NodeInfo{
				ID:             t.ID,
				EstimatedHours: hours,
				Terminal:       t.Status.Terminal(),
				PriorityRank:   t.Priority.rank(),
				Deadline:       deadline,
			}
		}

		path = dependency.CriticalPath(edges, nodes)
		return nil
	})
	return path, err
}

// Join records agentID as a participant on task id, idempotently (joining
// twice leaves a single membership row), and appends an assignment_history
// row so metricsengine's Engine.Productivity can reconstruct per-agent
// tenure.
func (e *Engine) Join(id, agentID string) error {
	return e.s.WithTx(func(tx *sql.Tx) error {
		st := NewStore(tx)
		if _, err := st.GetByID(id); err != nil {
			return err
		}
		now := dbstore.Now()
		_, err := tx.Exec(`INSERT OR IGNORE INTO participants (task_id, agent_id, joined_at) VALUES (?, ?, ?)`,
			id, agentID, now)
		if err != nil {
			return errs.Wrap(errs.Internal, err, "join task %s as %s", id, agentID)
		}

		var alreadyLogged int
		err = tx.QueryRow(`SELECT count(*) FROM assignment_history WHERE task_id = ? AND agent_id = ? AND left_at IS NULL`,
			id, agentID).Scan(&alreadyLogged)
		if err != nil {
			return errs.Wrap(errs.Internal, err, "check assignment history for %s/%s", id, agentID)
		}
		if alreadyLogged == 0 {
			_, err = tx.Exec(`INSERT INTO assignment_history (task_id, agent_id, joined_at) VALUES (?, ?, ?)`,
				id, agentID, now)
			if err != nil {
				return errs.Wrap(errs.Internal, err, "record assignment history for %s/%s", id, agentID)
			}
		}
		return nil
	})
}

// Discover emits a broadcast discovery notification for task id, stamped
// with the reporting agent, inside TaskCore's own transaction. Facades that
// also want the discovery recorded in the shared context document (§4.7)
// call context.Store's *NoLock append first, under the project advisory
// lock, then call this.
func (e *Engine) Discover(id, agentID, message string) error {
	return e.s.WithTx(func(tx *sql.Tx) error {
		st := NewStore(tx)
		if _, err := st.GetByID(id); err != nil {
			return err
		}
		ntf := notifier.New(tx, e.hub)
		return ntf.Emit("", id, notifier.KindDiscovery, "["+agentID+"] "+message)
	})
}

// NotifyContextUpdated emits KindContextUpdated to every participant of
// task id except authorID, the producer named in §4.6 for context-file
// writes. Callers perform the actual file write themselves (under the
// project advisory lock) before calling this.
func (e *Engine) NotifyContextUpdated(id, authorID, message string) error {
	return e.s.WithTx(func(tx *sql.Tx) error {
		st := NewStore(tx)
		if _, err := st.GetByID(id); err != nil {
			return err
		}
		rows, err := tx.Query(`SELECT agent_id FROM participants WHERE task_id = ? AND agent_id != ?`, id, authorID)
		if err != nil {
			return errs.Wrap(errs.Internal, err, "load participants for %s", id)
		}
		var agents []string
		for rows.Next() {
			var a string
			if err := rows.Scan(&a); err != nil {
				rows.Close()
				return errs.Wrap(errs.Internal, err, "scan participant")
			}
			agents = append(agents, a)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		ntf := notifier.New(tx, e.hub)
		for _, a := range agents {
			if err := ntf.Emit(a, id, notifier.KindContextUpdated, message); err != nil {
				return err
			}
		}
		return nil
	})
}

// Watch returns and atomically marks-read agentID's unread (plus broadcast)
// notifications, in one transaction for exactly-once consumption (§4.6).
func (e *Engine) Watch(agentID string, limit int) ([]notifier.Notification, error) {
	var out []notifier.Notification
	err := e.s.WithTx(func(tx *sql.Tx) error {
		ntf := notifier.New(tx, e.hub)
		ns, err := ntf.Watch(agentID, limit)
		if err != nil {
			return err
		}
		out = ns
		return nil
	})
	return out, err
}
