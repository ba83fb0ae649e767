package taskcore

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/taskorchestrator/core/internal/errs"
)

// Store persists Task rows to SQLite, the way internal/tasks/store.go does
// for its flatter Task shape: explicit column list, separate INSERT and
// UPDATE statements, manual NullString/NullTime scanning.
type Store struct {
	db dber
}

// dber is satisfied by both *sql.DB and *sql.Tx so Store methods can run
// either standalone or inside a caller-managed transaction.
type dber interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// NewStore wraps any dber (a *sql.DB or an in-flight *sql.Tx).
func NewStore(db dber) *Store {
	return &Store{db: db}
}

// Insert writes a brand-new task row. Callers are responsible for having
// already validated and defaulted the Task's fields.
func (s *Store) Insert(t *Task) error {
	criteria, err := json.Marshal(t.SuccessCriteria)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "marshal success_criteria")
	}
	fileRefs, err := json.Marshal(t.FileRefs)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "marshal file_refs")
	}
	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "marshal tags")
	}

	_, err = s.db.Exec(`
		INSERT INTO tasks (
			id, title, description, status, priority, assignee, created_by,
			created_at, updated_at, completed_at, success_criteria,
			feedback_quality, feedback_timeliness, feedback_notes,
			completion_summary, deadline, estimated_hours, actual_hours,
			file_refs, tags, rework_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.Title, t.Description, t.Status, t.Priority, nullStr(t.Assignee), t.CreatedBy,
		t.CreatedAt, t.UpdatedAt, nullTime(t.CompletedAt), string(criteria),
		t.FeedbackQuality, t.FeedbackTimeliness, nullStr(t.FeedbackNotes),
		nullStr(t.CompletionSummary), nullTime(t.Deadline), t.EstimatedHours, t.ActualHours,
		string(fileRefs), string(tags), t.ReworkCount,
	)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "insert task %s", t.ID)
	}
	return nil
}

// Update rewrites every mutable column of an existing task row.
func (s *Store) Update(t *Task) error {
	criteria, _ := json.Marshal(t.SuccessCriteria)
	fileRefs, _ := json.Marshal(t.FileRefs)
	tags, _ := json.Marshal(t.Tags)

	res, err := s.db.Exec(`
		UPDATE tasks SET
			title = ?, description = ?, status = ?, priority = ?, assignee = ?,
			updated_at = ?, completed_at = ?, success_criteria = ?,
			feedback_quality = ?, feedback_timeliness = ?, feedback_notes = ?,
			completion_summary = ?, deadline = ?, estimated_hours = ?, actual_hours = ?,
			file_refs = ?, tags = ?, rework_count = ?
		WHERE id = ?
	`,
		t.Title, t.Description, t.Status, t.Priority, nullStr(t.Assignee),
		t.UpdatedAt, nullTime(t.CompletedAt), string(criteria),
		t.FeedbackQuality, t.FeedbackTimeliness, nullStr(t.FeedbackNotes),
		nullStr(t.CompletionSummary), nullTime(t.Deadline), t.EstimatedHours, t.ActualHours,
		string(fileRefs), string(tags), t.ReworkCount, t.ID,
	)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "update task %s", t.ID)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.NotFound, "task %s not found", t.ID)
	}
	return nil
}

// GetByID returns the task with the given id, or NotFound.
func (s *Store) GetByID(id string) (*Task, error) {
	row := s.db.QueryRow(selectCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.NotFound, "task %s not found", id)
	}
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "load task %s", id)
	}
	return t, nil
}

// Delete removes a task row. Callers must have already checked for
// incoming dependency edges (DependencyViolation).
func (s *Store) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "delete task %s", id)
	}
	return nil
}

// Exists reports whether a task id is present.
func (s *Store) Exists(id string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT count(*) FROM tasks WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, errs.Wrap(errs.Internal, err, "check task existence %s", id)
	}
	return n > 0, nil
}

// Filter narrows List() results. Zero values mean "no filter on this field".
type Filter struct {
	Status        Status
	Assignee      string
	HasDeps       bool
	FileRefSubstr string
	Priority      Priority
	DeadlineFrom  *time.Time
	DeadlineTo    *time.Time
}

const selectCols = `SELECT id, title, description, status, priority, assignee, created_by,
			created_at, updated_at, completed_at, success_criteria,
			feedback_quality, feedback_timeliness, feedback_notes,
			completion_summary, deadline, estimated_hours, actual_hours,
			file_refs, tags, rework_count`

// List returns tasks matching f, ordered by priority, deadline (nulls
// last), created_at, id.
func (s *Store) List(f Filter) ([]*Task, error) {
	query := selectCols + ` FROM tasks WHERE 1=1`
	var args []interface{}

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Assignee != "" {
		query += ` AND assignee = ?`
		args = append(args, f.Assignee)
	}
	if f.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, f.Priority)
	}
	if f.FileRefSubstr != "" {
		query += ` AND file_refs LIKE ?`
		args = append(args, "%"+f.FileRefSubstr+"%")
	}
	if f.HasDeps {
		query += ` AND id IN (SELECT task_id FROM dependencies)`
	}
	if f.DeadlineFrom != nil {
		query += ` AND deadline >= ?`
		args = append(args, *f.DeadlineFrom)
	}
	if f.DeadlineTo != nil {
		query += ` AND deadline <= ?`
		args = append(args, *f.DeadlineTo)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "list tasks")
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, errs.Wrap(errs.Internal, err, "scan task row")
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Internal, err, "iterate task rows")
	}

	SortTasks(tasks)
	return tasks, nil
}

// SortTasks applies the list ordering tie-break chain in place: priority
// (critical>high>medium>low), deadline ascending (nulls last), created_at
// ascending, id lexicographic.
func SortTasks(tasks []*Task) {
	less := func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if ra, rb := a.Priority.rank(), b.Priority.rank(); ra != rb {
			return ra < rb
		}
		an, bn := a.Deadline == nil, b.Deadline == nil
		if an != bn {
			return bn // a has no deadline -> sorts after b
		}
		if !an && !bn && !a.Deadline.Equal(*b.Deadline) {
			return a.Deadline.Before(*b.Deadline)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	}
	insertionSort(tasks, less)
}

func insertionSort(tasks []*Task, less func(i, j int) bool) {
	for i := 1; i < len(tasks); i++ {
		for j := i; j > 0; j-- {
			if less(j, j-1) {
				tasks[j], tasks[j-1] = tasks[j-1], tasks[j]
			} else {
				break
			}
		}
	}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row *sql.Row) (*Task, error)   { return scanAny(row) }
func scanTaskRows(rows *sql.Rows) (*Task, error) { return scanAny(rows) }

func scanAny(sc scanner) (*Task, error) {
	var t Task
	var description, assignee, feedbackNotes, completionSummary sql.NullString
	var completedAt, deadline sql.NullTime
	var criteriaJSON, fileRefsJSON, tagsJSON sql.NullString

	err := sc.Scan(
		&t.ID, &t.Title, &description, &t.Status, &t.Priority, &assignee, &t.CreatedBy,
		&t.CreatedAt, &t.UpdatedAt, &completedAt, &criteriaJSON,
		&t.FeedbackQuality, &t.FeedbackTimeliness, &feedbackNotes,
		&completionSummary, &deadline, &t.EstimatedHours, &t.ActualHours,
		&fileRefsJSON, &tagsJSON, &t.ReworkCount,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		t.Description = description.String
	}
	if assignee.Valid {
		t.Assignee = assignee.String
	}
	if feedbackNotes.Valid {
		t.FeedbackNotes = feedbackNotes.String
	}
	if completionSummary.Valid {
		t.CompletionSummary = completionSummary.String
	}
	if completedAt.Valid {
		tm := completedAt.Time
		t.CompletedAt = &tm
	}
	if deadline.Valid {
		tm := deadline.Time
		t.Deadline = &tm
	}
	if criteriaJSON.Valid && criteriaJSON.String != "" {
		json.Unmarshal([]byte(criteriaJSON.String), &t.SuccessCriteria)
	}
	if fileRefsJSON.Valid && fileRefsJSON.String != "" {
		json.Unmarshal([]byte(fileRefsJSON.String), &t.FileRefs)
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		json.Unmarshal([]byte(tagsJSON.String), &t.Tags)
	}

	return &t, nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
