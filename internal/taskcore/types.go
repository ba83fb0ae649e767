// Package taskcore is the authoritative owner of the task/dependency state
// machine: CRUD, validation, and status transitions.
package taskcore

import (
	"time"
)

// Status is one of the five task lifecycle states.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether s is a dependency-satisfying terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Priority is one of four ordered levels; zero value is "" (invalid).
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// rank orders priorities for tie-breaking in list/critical-path (critical highest).
func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Valid reports whether p is one of the four defined levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Criterion is one success-criterion entry: a human-readable
// description paired with a machine-checkable measurable expression.
type Criterion struct {
	Criterion  string `json:"criterion" yaml:"criterion"`
	Measurable string `json:"measurable" yaml:"measurable"`
}

// FileRef is one file/line reference attached to a task.
type FileRef struct {
	Path      string `json:"path" yaml:"path"`
	LineStart *int   `json:"line_start,omitempty" yaml:"line_start,omitempty"`
	LineEnd   *int   `json:"line_end,omitempty" yaml:"line_end,omitempty"`
}

// Task is the full persisted task row.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	Assignee    string     `json:"assignee,omitempty"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	SuccessCriteria []Criterion `json:"success_criteria,omitempty"`

	FeedbackQuality     *int   `json:"feedback_quality,omitempty"`
	FeedbackTimeliness  *int   `json:"feedback_timeliness,omitempty"`
	FeedbackNotes       string `json:"feedback_notes,omitempty"`
	CompletionSummary   string `json:"completion_summary,omitempty"`

	Deadline       *time.Time `json:"deadline,omitempty"`
	EstimatedHours *float64   `json:"estimated_hours,omitempty"`
	ActualHours    *float64   `json:"actual_hours,omitempty"`

	FileRefs []FileRef `json:"file_refs,omitempty"`
	Tags     []string  `json:"tags,omitempty"`

	ReworkCount int `json:"rework_count"`
}

// ProgressEntry is one chronological progress note.
type ProgressEntry struct {
	TaskID  string    `json:"task_id"`
	Ts      time.Time `json:"ts"`
	Seq     int       `json:"seq"`
	AgentID string    `json:"agent_id"`
	Message string    `json:"message"`
}

// Participant is one (task, agent) membership row.
type Participant struct {
	TaskID   string     `json:"task_id"`
	AgentID  string     `json:"agent_id"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

// validTransitions encodes the task lifecycle's legal moves. "blocked"
// is reached as a computed side effect of dependency state (see
// internal/dependency) or by an explicit Update, which is how a worker
// escalates its task. Engine.Complete also accepts a pending task.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusCancelled, StatusBlocked},
	StatusInProgress: {StatusCompleted, StatusCancelled, StatusBlocked, StatusPending},
	StatusBlocked:    {StatusPending, StatusCancelled},
	StatusCompleted:  {}, // only feedback fields may change past this point
	StatusCancelled:  {},
}

// CanTransition reports whether moving from 'from' to 'to' is legal.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
