package taskcore

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskorchestrator/core/internal/criteria"
	"github.com/taskorchestrator/core/internal/dependency"
	"github.com/taskorchestrator/core/internal/errs"
	"github.com/taskorchestrator/core/internal/notifier"
	dbstore "github.com/taskorchestrator/core/internal/store"
)

// Engine is the public task-coordination surface: every operation opens
// (or reuses) one transaction, the atomicity unit the rest of the
// system's guarantees are built on.
type Engine struct {
	s   *dbstore.Store
	hub notifier.HookPublisher
}

// New builds a TaskCore Engine over an already-migrated Store.
func New(s *dbstore.Store, hub notifier.HookPublisher) *Engine {
	return &Engine{s: s, hub: hub}
}

// NewID generates an 8-hex-character task id from a fresh UUID's entropy.
func NewID() string {
	u := uuid.New()
	return strings.ReplaceAll(u.String(), "-", "")[:8]
}

// AddOpts carries add()'s optional fields.
type AddOpts struct {
	Description    string
	Priority       Priority
	Assignee       string
	CreatedBy      string
	DependsOn      []string
	Criteria       []Criterion
	FileRefs       []FileRef
	Tags           []string
	Deadline       *time.Time
	EstimatedHours *float64
}

// Add creates a new task, computing its initial status from the supplied
// dependencies inside a single transaction: pending, unless any named
// dependency is not yet terminal, in which case blocked.
func (e *Engine) Add(title string, opts AddOpts) (*Task, error) {
	var result *Task
	err := e.s.WithTx(func(tx *sql.Tx) error {
		t, err := e.AddInTx(tx, title, opts)
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	return result, err
}

// WithTx exposes the store's transaction helper to callers (facades) that
// need more than one Engine operation to commit or roll back together —
// the "single public operation" spec.md §5 describes isn't always a single
// Engine method, e.g. a project breakdown creating several tasks at once.
func (e *Engine) WithTx(fn func(*sql.Tx) error) error {
	return e.s.WithTx(fn)
}

// AddInTx is Add's logic run against a caller-supplied transaction instead
// of opening its own, so a caller can compose several creates (or a create
// plus other writes) into one atomic unit.
func (e *Engine) AddInTx(tx *sql.Tx, title string, opts AddOpts) (*Task, error) {
	if err := ValidateTitle(title); err != nil {
		return nil, err
	}
	if opts.Priority == "" {
		opts.Priority = PriorityMedium
	}
	if err := ValidatePriority(opts.Priority); err != nil {
		return nil, err
	}
	if err := ValidateCriteria(opts.Criteria); err != nil {
		return nil, err
	}
	if err := ValidateHours(opts.EstimatedHours, "estimated_hours"); err != nil {
		return nil, err
	}
	if opts.CreatedBy == "" {
		opts.CreatedBy = "user"
	}

	st := NewStore(tx)
	resolver := dependency.NewResolver(tx)

	for _, dep := range opts.DependsOn {
		exists, err := st.Exists(dep)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, errs.New(errs.NotFound, "depends_on task %s not found", dep)
		}
	}

	id := NewID()
	var newEdges []dependency.Edge
	for _, dep := range opts.DependsOn {
		newEdges = append(newEdges, dependency.Edge{TaskID: id, DependsOn: dep})
	}
	if len(newEdges) > 0 {
		cyclic, err := resolver.WouldCreateCycle(newEdges)
		if err != nil {
			return nil, err
		}
		if cyclic {
			return nil, errs.New(errs.CycleDetected, "adding dependencies %v to %s would create a cycle", opts.DependsOn, id)
		}
	}

	blocked, err := dependency.ComputeInitialStatus(opts.DependsOn, terminalLookup(st))
	if err != nil {
		return nil, err
	}
	status := StatusPending
	if blocked {
		status = StatusBlocked
	}

	now := dbstore.Now()
	t := &Task{
		ID:              id,
		Title:           title,
		Description:     opts.Description,
		Status:          status,
		Priority:        opts.Priority,
		Assignee:        opts.Assignee,
		CreatedBy:       opts.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
		SuccessCriteria: opts.Criteria,
		Deadline:        opts.Deadline,
		EstimatedHours:  opts.EstimatedHours,
		FileRefs:        opts.FileRefs,
		Tags:            opts.Tags,
	}
	if err := st.Insert(t); err != nil {
		return nil, err
	}
	if err := resolver.AddEdges(newEdges); err != nil {
		return nil, err
	}

	return t, nil
}

func terminalLookup(st *Store) dependency.StatusLookup {
	return func(taskID string) (bool, error) {
		t, err := st.GetByID(taskID)
		if err != nil {
			return false, err
		}
		return t.Status.Terminal(), nil
	}
}

// ShowResult bundles a task with its dependencies, participants, and
// recent notifications.
type ShowResult struct {
	Task          *Task
	DependsOn     []string
	Dependents    []string
	Participants  []Participant
	Notifications []notifier.Notification
}

// Show returns a task plus its relational context.
func (e *Engine) Show(id string) (*ShowResult, error) {
	var result ShowResult
	err := e.s.WithTx(func(tx *sql.Tx) error {
		st := NewStore(tx)
		t, err := st.GetByID(id)
		if err != nil {
			return err
		}
		result.Task = t

		resolver := dependency.NewResolver(tx)
		deps, err := resolver.DependsOn(id)
		if err != nil {
			return err
		}
		result.DependsOn = deps

		dependents, err := resolver.Dependents(id)
		if err != nil {
			return err
		}
		result.Dependents = dependents

		rows, err := tx.Query(`SELECT task_id, agent_id, joined_at, left_at FROM participants WHERE task_id = ?`, id)
		if err != nil {
			return errs.Wrap(errs.Internal, err, "load participants for %s", id)
		}
		defer rows.Close()
		for rows.Next() {
			var p Participant
			var leftAt sql.NullTime
			if err := rows.Scan(&p.TaskID, &p.AgentID, &p.JoinedAt, &leftAt); err != nil {
				return errs.Wrap(errs.Internal, err, "scan participant row")
			}
			if leftAt.Valid {
				tm := leftAt.Time
				p.LeftAt = &tm
			}
			result.Participants = append(result.Participants, p)
		}

		ntf := notifier.New(tx, nil)
		recent, err := ntf.RecentForTask(id, 20)
		if err != nil {
			return err
		}
		result.Notifications = recent

		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Patch carries update()'s optional field changes. Nil pointers/empty
// strings mean "leave unchanged" except where noted.
type Patch struct {
	Title           *string
	Description     *string
	Status          *Status
	Priority        *Priority
	Assignee        *string
	Deadline        **time.Time // double pointer: outer nil = unchanged, inner nil = clear
	EstimatedHours  **float64
	ActualHours     **float64
	Tags            *[]string
	FileRefs        *[]FileRef
}

// Update applies patch to task id. Once a task is completed only
// feedback fields may change (handled by Feedback, not Update), so
// Update on a completed task always fails with IllegalTransition
// regardless of which fields were set.
func (e *Engine) Update(id string, patch Patch) (*Task, error) {
	var result *Task
	err := e.s.WithTx(func(tx *sql.Tx) error {
		st := NewStore(tx)
		t, err := st.GetByID(id)
		if err != nil {
			return err
		}

		if t.Status == StatusCompleted {
			return errs.New(errs.IllegalTransition, "task %s is completed; only feedback fields may change", id)
		}

		if patch.Status != nil && *patch.Status != t.Status {
			if !CanTransition(t.Status, *patch.Status) {
				return errs.New(errs.IllegalTransition, "cannot move task %s from %s to %s", id, t.Status, *patch.Status)
			}
			t.Status = *patch.Status
		}
		if patch.Title != nil {
			if err := ValidateTitle(*patch.Title); err != nil {
				return err
			}
			t.Title = *patch.Title
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.Priority != nil {
			if err := ValidatePriority(*patch.Priority); err != nil {
				return err
			}
			t.Priority = *patch.Priority
		}
		if patch.Assignee != nil {
			t.Assignee = *patch.Assignee
		}
		if patch.Deadline != nil {
			t.Deadline = *patch.Deadline
		}
		if patch.EstimatedHours != nil {
			if err := ValidateHours(*patch.EstimatedHours, "estimated_hours"); err != nil {
				return err
			}
			t.EstimatedHours = *patch.EstimatedHours
		}
		if patch.ActualHours != nil {
			if err := ValidateHours(*patch.ActualHours, "actual_hours"); err != nil {
				return err
			}
			t.ActualHours = *patch.ActualHours
		}
		if patch.Tags != nil {
			t.Tags = *patch.Tags
		}
		if patch.FileRefs != nil {
			t.FileRefs = *patch.FileRefs
		}

		t.UpdatedAt = dbstore.Now()
		if err := st.Update(t); err != nil {
			return err
		}
		result = t
		return nil
	})
	return result, err
}

// Delete removes task id, refusing if any other task depends on it
// (invariant 6). Cascades to its outbound edges/participants/notifications
// via ON DELETE CASCADE.
func (e *Engine) Delete(id string) error {
	return e.s.WithTx(func(tx *sql.Tx) error {
		st := NewStore(tx)
		if _, err := st.GetByID(id); err != nil {
			return err
		}

		resolver := dependency.NewResolver(tx)
		hasIncoming, err := resolver.HasIncoming(id)
		if err != nil {
			return err
		}
		if hasIncoming {
			return errs.New(errs.DependencyViolation, "task %s is depended on by other tasks; cannot delete", id)
		}

		return st.Delete(id)
	})
}

// Assign is equivalent to Update with only Assignee set.
func (e *Engine) Assign(id, agentID string) (*Task, error) {
	return e.Update(id, Patch{Assignee: &agentID})
}

// CompleteOpts carries complete()'s optional fields. RequireSummary and
// CheckCriteria reflect the caller's config toggles (completion_summaries,
// success_criteria); both default false here so the facade layer decides
// what to enforce.
type CompleteOpts struct {
	Summary         string
	RequireSummary  bool
	ActualHours     *float64
	CriteriaContext map[string]interface{}
	CheckCriteria   bool
	ImpactReview    bool
}

// CompleteResult bundles the completed task with the success-criteria
// outcome (nil if CheckCriteria was false or there were no criteria), the
// ids of dependent tasks that unblocked as a result, and the ids of tasks
// notified of impact (nil unless ImpactReview was requested).
type CompleteResult struct {
	Task      *Task
	Criteria  *criteria.Outcome
	Unblocked []string
	Impacted  []string
}

// Complete transitions a task to completed, optionally gating on its
// success criteria, then cascades the unblock check to its dependents.
// Calling Complete on an already-completed task is a no-op that returns
// the task unchanged: idempotent retries from a crashed agent shouldn't
// fail.
func (e *Engine) Complete(id string, opts CompleteOpts) (*CompleteResult, error) {
	if err := ValidateCompletionSummary(opts.Summary, opts.RequireSummary); err != nil {
		return nil, err
	}
	if err := ValidateHours(opts.ActualHours, "actual_hours"); err != nil {
		return nil, err
	}

	var result CompleteResult
	err := e.s.WithTx(func(tx *sql.Tx) error {
		st := NewStore(tx)
		t, err := st.GetByID(id)
		if err != nil {
			return err
		}

		if t.Status == StatusCompleted {
			result.Task = t
			return nil
		}
		if t.Status != StatusPending && !CanTransition(t.Status, StatusCompleted) {
			return errs.New(errs.IllegalTransition, "cannot complete task %s from status %s", id, t.Status)
		}

		if opts.CheckCriteria && len(t.SuccessCriteria) > 0 {
			outcome, err := criteria.Evaluate(CriteriaInputs(t.SuccessCriteria), opts.CriteriaContext)
			if err != nil {
				return err
			}
			result.Criteria = outcome
			if !outcome.OverallPass {
				return errs.New(errs.ValidationFailed, "task %s failed %d success criteria", id, len(outcome.Failures))
			}
		}

		now := dbstore.Now()
		t.Status = StatusCompleted
		t.CompletedAt = &now
		t.UpdatedAt = now
		t.CompletionSummary = opts.Summary
		if opts.ActualHours != nil {
			t.ActualHours = opts.ActualHours
		}
		if err := st.Update(t); err != nil {
			return err
		}
		result.Task = t

		if _, err := tx.Exec(`UPDATE assignment_history SET left_at = ? WHERE task_id = ? AND left_at IS NULL`, now, id); err != nil {
			return errs.Wrap(errs.Internal, err, "close assignment history for %s", id)
		}

		ntf := notifier.New(tx, e.hub)
		if err := ntf.Emit("", id, notifier.KindCompleted, "task "+id+" completed"); err != nil {
			return err
		}

		resolver := dependency.NewResolver(tx)
		dependents, err := resolver.Dependents(id)
		if err != nil {
			return err
		}
		lookup := terminalLookup(st)
		for _, depID := range dependents {
			dep, err := st.GetByID(depID)
			if err != nil {
				return err
			}
			if dep.Status != StatusBlocked {
				continue
			}
			stillBlocked, err := resolver.IsBlocked(depID, lookup)
			if err != nil {
				return err
			}
			if stillBlocked {
				continue
			}
			dep.Status = StatusPending
			dep.UpdatedAt = dbstore.Now()
			if err := st.Update(dep); err != nil {
				return err
			}
			if err := ntf.Emit(dep.Assignee, depID, notifier.KindUnblocked, "dependency "+id+" completed, "+depID+" is now unblocked"); err != nil {
				return err
			}
			result.Unblocked = append(result.Unblocked, depID)
		}

		if opts.ImpactReview {
			impacted, err := notifyImpact(st, ntf, t)
			if err != nil {
				return err
			}
			result.Impacted = impacted
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// notifyImpact emits KindImpact to the assignee (or broadcast) of every
// other task sharing at least one file-ref path with t, per §4.6.
func notifyImpact(st *Store, ntf *notifier.Notifier, t *Task) ([]string, error) {
	if len(t.FileRefs) == 0 {
		return nil, nil
	}
	paths := make(map[string]bool, len(t.FileRefs))
	for _, fr := range t.FileRefs {
		paths[fr.Path] = true
	}

	all, err := st.List(Filter{})
	if err != nil {
		return nil, err
	}

	var impacted []string
	for _, other := range all {
		if other.ID == t.ID {
			continue
		}
		shared := false
		for _, fr := range other.FileRefs {
			if paths[fr.Path] {
				shared = true
				break
			}
		}
		if !shared {
			continue
		}
		msg := "task " + t.ID + " completed, touching files this task also references"
		if err := ntf.Emit(other.Assignee, other.ID, notifier.KindImpact, msg); err != nil {
			return nil, err
		}
		impacted = append(impacted, other.ID)
	}
	return impacted, nil
}

// Reopen moves a completed task back to in_progress and increments its
// rework count, the one exception to "completed is terminal" that
// Update refuses to perform. Feedback already recorded on the task is
// left untouched; a fresh Feedback call after the next Complete will
// fail until the existing record is cleared by a future feedback
// revision feature (not built here).
func (e *Engine) Reopen(id, reason string) (*Task, error) {
	var result *Task
	err := e.s.WithTx(func(tx *sql.Tx) error {
		st := NewStore(tx)
		t, err := st.GetByID(id)
		if err != nil {
			return err
		}
		if t.Status != StatusCompleted {
			return errs.New(errs.IllegalTransition, "task %s is not completed, cannot reopen", id)
		}

		t.Status = StatusInProgress
		t.CompletedAt = nil
		t.ReworkCount++
		t.UpdatedAt = dbstore.Now()
		if err := st.Update(t); err != nil {
			return err
		}

		var seq int
		if err := tx.QueryRow(`SELECT count(*) FROM progress WHERE task_id = ?`, id).Scan(&seq); err != nil {
			return errs.Wrap(errs.Internal, err, "count progress entries for %s", id)
		}
		msg := "reopened for rework"
		if reason != "" {
			msg += ": " + reason
		}
		if _, err := tx.Exec(`INSERT INTO progress (task_id, ts, seq, agent_id, message) VALUES (?, ?, ?, ?, ?)`,
			id, dbstore.Now(), seq, t.Assignee, msg); err != nil {
			return errs.Wrap(errs.Internal, err, "insert reopen progress entry for %s", id)
		}

		result = t
		return nil
	})
	return result, err
}

// Progress appends a ProgressEntry, stamped with the caller's agent id and
// the current time.
func (e *Engine) Progress(id, agentID, message string) error {
	return e.s.WithTx(func(tx *sql.Tx) error {
		st := NewStore(tx)
		if _, err := st.GetByID(id); err != nil {
			return err
		}
		var seq int
		err := tx.QueryRow(`SELECT count(*) FROM progress WHERE task_id = ?`, id).Scan(&seq)
		if err != nil {
			return errs.Wrap(errs.Internal, err, "count progress entries for %s", id)
		}
		_, err = tx.Exec(`INSERT INTO progress (task_id, ts, seq, agent_id, message) VALUES (?, ?, ?, ?, ?)`,
			id, dbstore.Now(), seq, agentID, message)
		if err != nil {
			return errs.Wrap(errs.Internal, err, "insert progress entry for %s", id)
		}
		return nil
	})
}

// ListProgress returns a task's progress log in chronological order.
func (e *Engine) ListProgress(id string) ([]ProgressEntry, error) {
	var out []ProgressEntry
	err := e.s.WithTx(func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT task_id, ts, seq, agent_id, message FROM progress WHERE task_id = ? ORDER BY seq ASC`, id)
		if err != nil {
			return errs.Wrap(errs.Internal, err, "list progress for %s", id)
		}
		defer rows.Close()
		for rows.Next() {
			var p ProgressEntry
			if err := rows.Scan(&p.TaskID, &p.Ts, &p.Seq, &p.AgentID, &p.Message); err != nil {
				return errs.Wrap(errs.Internal, err, "scan progress row")
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}

// FeedbackOpts carries feedback()'s optional fields.
type FeedbackOpts struct {
	Quality    *int
	Timeliness *int
	Note       string
}

// Feedback records feedback on a completed task. Invariant 5: exactly one
// Feedback tuple per task — a second call fails with IllegalTransition.
func (e *Engine) Feedback(id string, opts FeedbackOpts) (*Task, error) {
	if err := ValidateFeedbackScore(opts.Quality, "quality"); err != nil {
		return nil, err
	}
	if err := ValidateFeedbackScore(opts.Timeliness, "timeliness"); err != nil {
		return nil, err
	}
	if err := ValidateFeedbackNotes(opts.Note); err != nil {
		return nil, err
	}

	var result *Task
	err := e.s.WithTx(func(tx *sql.Tx) error {
		st := NewStore(tx)
		t, err := st.GetByID(id)
		if err != nil {
			return err
		}
		if t.Status != StatusCompleted {
			return errs.New(errs.IllegalTransition, "feedback requires task %s to be completed", id)
		}
		if t.FeedbackQuality != nil || t.FeedbackTimeliness != nil {
			return errs.New(errs.IllegalTransition, "task %s already has feedback recorded", id)
		}

		t.FeedbackQuality = opts.Quality
		t.FeedbackTimeliness = opts.Timeliness
		t.FeedbackNotes = opts.Note
		t.UpdatedAt = dbstore.Now()
		if err := st.Update(t); err != nil {
			return err
		}
		result = t
		return nil
	})
	return result, err
}

// List returns tasks matching f, fully ordered.
func (e *Engine) List(f Filter) ([]*Task, error) {
	var out []*Task
	err := e.s.WithTx(func(tx *sql.Tx) error {
		st := NewStore(tx)
		tasks, err := st.List(f)
		if err != nil {
			return err
		}
		out = tasks
		return nil
	})
	return out, err
}

// Resolver exposes the DependencyResolver over the engine's store for
// callers that need direct access to the dependency graph.
func (e *Engine) Resolver() *dependency.Resolver {
	return dependency.NewResolver(e.s.DB)
}

// CriteriaInputs converts a task's SuccessCriteria into criteria.CriterionInput.
func CriteriaInputs(cs []Criterion) []criteria.CriterionInput {
	out := make([]criteria.CriterionInput, len(cs))
	for i, c := range cs {
		out[i] = criteria.CriterionInput{Criterion: c.Criterion, Measurable: c.Measurable}
	}
	return out
}
