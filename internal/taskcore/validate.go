package taskcore

import (
	"github.com/taskorchestrator/core/internal/errs"
)

const (
	maxTitleLen             = 500
	maxDescriptionLen       = 0 // unbounded
	maxCriteria             = 10
	maxCriterionLen         = 500
	minCompletionSummaryLen = 20
	maxCompletionSummaryLen = 2000
	maxFeedbackNotesLen     = 500
)

// ValidateTitle enforces: non-empty, <=500 chars.
func ValidateTitle(title string) error {
	if title == "" {
		return errs.New(errs.InvalidInput, "title must not be empty")
	}
	if len(title) > maxTitleLen {
		return errs.New(errs.InvalidInput, "title must be at most %d characters", maxTitleLen)
	}
	return nil
}

// ValidatePriority enforces: one of the four levels.
func ValidatePriority(p Priority) error {
	if !p.Valid() {
		return errs.New(errs.InvalidInput, "invalid priority %q", p)
	}
	return nil
}

// ValidateCriteria enforces: at most 10 items, each field non-empty and
// <=500 chars. Validation happens at write time only; existing rows are
// never re-checked on read.
func ValidateCriteria(criteria []Criterion) error {
	if len(criteria) > maxCriteria {
		return errs.New(errs.InvalidInput, "success_criteria may contain at most %d items, got %d", maxCriteria, len(criteria))
	}
	for i, c := range criteria {
		if c.Criterion == "" {
			return errs.New(errs.InvalidInput, "criteria[%d]: criterion text must not be empty", i)
		}
		if c.Measurable == "" {
			return errs.New(errs.InvalidInput, "criteria[%d]: measurable must not be empty", i)
		}
		if len(c.Criterion) > maxCriterionLen || len(c.Measurable) > maxCriterionLen {
			return errs.New(errs.InvalidInput, "criteria[%d]: fields must be at most %d characters", i, maxCriterionLen)
		}
	}
	return nil
}

// ValidateFeedbackScore enforces the 1..5 range.
func ValidateFeedbackScore(v *int, field string) error {
	if v == nil {
		return nil
	}
	if *v < 1 || *v > 5 {
		return errs.New(errs.InvalidInput, "%s must be between 1 and 5, got %d", field, *v)
	}
	return nil
}

// ValidateCompletionSummary enforces the 20-2000 char bound when present.
func ValidateCompletionSummary(summary string, required bool) error {
	if summary == "" {
		if required {
			return errs.New(errs.InvalidInput, "completion_summary is required")
		}
		return nil
	}
	if len(summary) < minCompletionSummaryLen || len(summary) > maxCompletionSummaryLen {
		return errs.New(errs.InvalidInput, "completion_summary must be between %d and %d characters", minCompletionSummaryLen, maxCompletionSummaryLen)
	}
	return nil
}

// ValidateFeedbackNotes enforces the <=500 char bound.
func ValidateFeedbackNotes(notes string) error {
	if len(notes) > maxFeedbackNotesLen {
		return errs.New(errs.InvalidInput, "feedback_notes must be at most %d characters", maxFeedbackNotesLen)
	}
	return nil
}

// ValidateHours enforces non-negative hours.
func ValidateHours(v *float64, field string) error {
	if v == nil {
		return nil
	}
	if *v < 0 {
		return errs.New(errs.InvalidInput, "%s must be non-negative", field)
	}
	return nil
}
