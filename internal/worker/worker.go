// Package worker is the role-scoped facade (§4.11) exposing claim, progress
// reporting, private notes, discoveries, escalation, self-decomposition,
// and completion of one's own tasks over taskcore.Engine. Grounded on the
// teacher's internal/memory/assignments.go claim/rework shape and
// internal/memory/interface.go's CreateTasks bulk-child pattern, adapted
// from LLM-assignment bookkeeping to this engine's task lifecycle.
package worker

import (
	"time"

	ctxstore "github.com/taskorchestrator/core/internal/context"
	"github.com/taskorchestrator/core/internal/errs"
	"github.com/taskorchestrator/core/internal/locking"
	"github.com/taskorchestrator/core/internal/notifier"
	"github.com/taskorchestrator/core/internal/taskcore"
)

// Worker wraps a taskcore.Engine and a context.Store with the operation
// set an individual contributor is expected to call.
type Worker struct {
	engine  *taskcore.Engine
	ctx     *ctxstore.Store
	agentID string
}

// New builds a Worker acting as agentID.
func New(engine *taskcore.Engine, ctx *ctxstore.Store, agentID string) *Worker {
	return &Worker{engine: engine, ctx: ctx, agentID: agentID}
}

// Claim assigns taskID to the worker's own agent id, equivalent to an
// orchestrator Assign but restricted to self (a worker cannot claim on
// another agent's behalf through this facade).
func (w *Worker) Claim(taskID string) (*taskcore.Task, error) {
	t, err := w.engine.Assign(taskID, w.agentID)
	if err != nil {
		return nil, err
	}
	if err := w.engine.Join(taskID, w.agentID); err != nil {
		return nil, err
	}
	return t, nil
}

// Assignments returns the worker's own assigned, non-terminal tasks.
func (w *Worker) Assignments() ([]*taskcore.Task, error) {
	pending, err := w.engine.List(taskcore.Filter{Assignee: w.agentID, Status: taskcore.StatusPending})
	if err != nil {
		return nil, err
	}
	inProgress, err := w.engine.List(taskcore.Filter{Assignee: w.agentID, Status: taskcore.StatusInProgress})
	if err != nil {
		return nil, err
	}
	return append(pending, inProgress...), nil
}

// Progress appends a progress entry stamped with the worker's agent id.
func (w *Worker) Progress(taskID, message string) error {
	return w.engine.Progress(taskID, w.agentID, message)
}

// Note appends free-form text to the worker's private note file for
// taskID, under the project advisory lock (§4.7); it never touches the
// shared document or emits a notification.
func (w *Worker) Note(taskID, text string) error {
	return w.ctx.AppendPrivateNote(taskID, w.agentID, text)
}

// ReadNote returns the worker's own private note for taskID.
func (w *Worker) ReadNote(taskID string) (string, error) {
	return w.ctx.LoadPrivateNote(taskID, w.agentID)
}

// Share contributes a structured entry to task taskID's shared context
// document and notifies the other participants, all inside one advisory
// lock critical section (§4.3): lock, file append, then the notification
// transaction, released together.
func (w *Worker) Share(taskID string, entryType ctxstore.EntryType, content string) error {
	return locking.WithLock(w.ctx.LockPath(), w.ctx.LockTimeout(), func() error {
		entry := ctxstore.Entry{AgentID: w.agentID, Timestamp: time.Now().UTC(), Type: entryType, Content: content}
		if err := w.ctx.AppendAgentEntryNoLock(taskID, entry); err != nil {
			return err
		}
		return w.engine.NotifyContextUpdated(taskID, w.agentID, "shared context updated by "+w.agentID)
	})
}

// Sync records a sync point in the shared context document and notifies
// other participants, under the same locked critical section as Share.
func (w *Worker) Sync(taskID, content string) error {
	return locking.WithLock(w.ctx.LockPath(), w.ctx.LockTimeout(), func() error {
		entry := ctxstore.Entry{AgentID: w.agentID, Timestamp: time.Now().UTC(), Type: ctxstore.TypeSync, Content: content}
		if err := w.ctx.AppendSyncPointNoLock(taskID, entry); err != nil {
			return err
		}
		return w.engine.NotifyContextUpdated(taskID, w.agentID, "sync point recorded by "+w.agentID)
	})
}

// SharedContext returns task taskID's shared context document.
func (w *Worker) SharedContext(taskID string) (*ctxstore.SharedContext, error) {
	return w.ctx.LoadShared(taskID)
}

// Discover broadcasts a discovery: it lands in the shared context
// document's discoveries[] list and as a broadcast notification, in one
// locked critical section (§4.6, §4.7).
func (w *Worker) Discover(taskID, message string, tags []string) error {
	return locking.WithLock(w.ctx.LockPath(), w.ctx.LockTimeout(), func() error {
		entry := ctxstore.Entry{
			AgentID: w.agentID, Timestamp: time.Now().UTC(),
			Type: ctxstore.TypeDiscovery, Content: message, Tags: tags,
		}
		if err := w.ctx.AppendDiscoveryNoLock(taskID, entry); err != nil {
			return err
		}
		return w.engine.Discover(taskID, w.agentID, message)
	})
}

// Escalate sets taskID to blocked with a recorded reason: a worker-visible
// way of pulling a task out of active work without deleting it or its
// dependency edges. The reason is appended as a progress entry so it
// appears in the task's history.
func (w *Worker) Escalate(taskID, reason string) (*taskcore.Task, error) {
	blocked := taskcore.StatusBlocked
	t, err := w.engine.Update(taskID, taskcore.Patch{Status: &blocked})
	if err != nil {
		return nil, err
	}
	msg := "escalated"
	if reason != "" {
		msg += ": " + reason
	}
	if err := w.engine.Progress(taskID, w.agentID, msg); err != nil {
		return nil, err
	}
	return t, nil
}

// SelfDecompose creates child tasks that depend on taskID (the reverse of
// a normal breakdown: each child stays blocked until taskID reaches a
// terminal state). Siblings do not depend on each other, and taskID does
// not depend on the children.
func (w *Worker) SelfDecompose(taskID string, childTitles []string) ([]*taskcore.Task, error) {
	if len(childTitles) == 0 {
		return nil, errs.New(errs.InvalidInput, "self-decompose requires at least one child title")
	}
	out := make([]*taskcore.Task, 0, len(childTitles))
	for _, title := range childTitles {
		child, err := w.engine.Add(title, taskcore.AddOpts{
			CreatedBy: w.agentID,
			DependsOn: []string{taskID},
		})
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, nil
}

// Complete finishes the worker's own task.
func (w *Worker) Complete(taskID string, opts taskcore.CompleteOpts) (*taskcore.CompleteResult, error) {
	return w.engine.Complete(taskID, opts)
}

// Watch drains the worker's unread notifications.
func (w *Worker) Watch(limit int) ([]notifier.Notification, error) {
	return w.engine.Watch(w.agentID, limit)
}
