// Package metricsengine provides read-only aggregations over completed
// tasks: feedback distributions, estimation accuracy, and adoption rate
// (§4.9), grounded on the teacher's internal/memory/metrics.go rollup-query
// shape, adapted from per-agent LLM cost rollups to per-assignee task
// quality rollups.
package metricsengine

import (
	"context"
	"database/sql"
	"time"

	"github.com/taskorchestrator/core/internal/errs"
)

// Period narrows a metrics query to a time window.
type Period struct {
	From time.Time
	To   time.Time
}

// Week returns the period covering the 7 days ending now.
func Week(now time.Time) Period { return Period{From: now.AddDate(0, 0, -7), To: now} }

// Month returns the period covering the 30 days ending now.
func Month(now time.Time) Period { return Period{From: now.AddDate(0, 0, -30), To: now} }

func (p Period) empty() bool { return p.From.IsZero() && p.To.IsZero() }

// Engine runs metrics queries over the store's *sql.DB directly: these are
// read-only snapshots, not part of any write transaction.
type Engine struct {
	db *sql.DB
}

func New(db *sql.DB) *Engine { return &Engine{db: db} }

// FeedbackMetrics is §4.9's feedback aggregation.
type FeedbackMetrics struct {
	AvgQuality      float64            `json:"avg_quality"`
	AvgTimeliness   float64            `json:"avg_timeliness"`
	QualityDist     map[int]int        `json:"quality_distribution"`
	TimelinessDist  map[int]int        `json:"timeliness_distribution"`
	CountByAssignee map[string]int     `json:"count_by_assignee"`
	MonthlyTrend    map[string]float64 `json:"monthly_trend"` // year-month -> avg quality
}

// Feedback aggregates quality/timeliness over completed tasks carrying
// feedback, optionally restricted to period. ctx governs cancellation of
// this read-only query (§4.3/§5).
func (e *Engine) Feedback(ctx context.Context, period Period) (*FeedbackMetrics, error) {
	query := `SELECT assignee, feedback_quality, feedback_timeliness, completed_at
		FROM tasks WHERE status = 'completed' AND feedback_quality IS NOT NULL`
	var args []interface{}
	if !period.empty() {
		query += ` AND completed_at >= ? AND completed_at <= ?`
		args = append(args, period.From, period.To)
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "query feedback metrics")
	}
	defer rows.Close()

	m := &FeedbackMetrics{
		QualityDist:     make(map[int]int),
		TimelinessDist:  make(map[int]int),
		CountByAssignee: make(map[string]int),
		MonthlyTrend:    make(map[string]float64),
	}
	monthSum := make(map[string]float64)
	monthCount := make(map[string]int)
	var qualitySum, timelinessSum float64
	var qualityN, timelinessN int

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "feedback metrics cancelled")
		}
		var assignee sql.NullString
		var quality, timeliness sql.NullInt64
		var completedAt sql.NullTime
		if err := rows.Scan(&assignee, &quality, &timeliness, &completedAt); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "scan feedback row")
		}
		if quality.Valid {
			qualitySum += float64(quality.Int64)
			qualityN++
			m.QualityDist[int(quality.Int64)]++
			if completedAt.Valid {
				key := completedAt.Time.Format("2006-01")
				monthSum[key] += float64(quality.Int64)
				monthCount[key]++
			}
		}
		if timeliness.Valid {
			timelinessSum += float64(timeliness.Int64)
			timelinessN++
			m.TimelinessDist[int(timeliness.Int64)]++
		}
		if assignee.Valid {
			m.CountByAssignee[assignee.String]++
		} else {
			m.CountByAssignee["(unassigned)"]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Internal, err, "iterate feedback rows")
	}

	if qualityN > 0 {
		m.AvgQuality = qualitySum / float64(qualityN)
	}
	if timelinessN > 0 {
		m.AvgTimeliness = timelinessSum / float64(timelinessN)
	}
	for k, sum := range monthSum {
		m.MonthlyTrend[k] = sum / float64(monthCount[k])
	}
	return m, nil
}

// TimeMetrics is §4.9's time-tracking aggregation.
type TimeMetrics struct {
	TotalEstimated          float64            `json:"total_estimated_hours"`
	TotalActual             float64            `json:"total_actual_hours"`
	AvgEstimationAccuracy   float64            `json:"avg_estimation_accuracy"`
	AccuracyByAssignee      map[string]float64 `json:"accuracy_by_assignee"`
}

const accuracyEpsilon = 1e-9

// Time aggregates estimated/actual hours over completed tasks, optionally
// restricted to period.
func (e *Engine) Time(ctx context.Context, period Period) (*TimeMetrics, error) {
	query := `SELECT assignee, estimated_hours, actual_hours, completed_at
		FROM tasks WHERE status = 'completed' AND estimated_hours IS NOT NULL AND actual_hours IS NOT NULL`
	var args []interface{}
	if !period.empty() {
		query += ` AND completed_at >= ? AND completed_at <= ?`
		args = append(args, period.From, period.To)
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "query time metrics")
	}
	defer rows.Close()

	m := &TimeMetrics{AccuracyByAssignee: make(map[string]float64)}
	assigneeSum := make(map[string]float64)
	assigneeN := make(map[string]int)
	var accuracySum float64
	var n int

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "time metrics cancelled")
		}
		var assignee sql.NullString
		var estimated, actual float64
		var completedAt sql.NullTime
		if err := rows.Scan(&assignee, &estimated, &actual, &completedAt); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "scan time row")
		}
		m.TotalEstimated += estimated
		m.TotalActual += actual

		acc := estimationAccuracy(estimated, actual)
		accuracySum += acc
		n++
		key := "(unassigned)"
		if assignee.Valid {
			key = assignee.String
		}
		assigneeSum[key] += acc
		assigneeN[key]++
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Internal, err, "iterate time rows")
	}

	if n > 0 {
		m.AvgEstimationAccuracy = accuracySum / float64(n)
	}
	for k, sum := range assigneeSum {
		m.AccuracyByAssignee[k] = sum / float64(assigneeN[k])
	}
	return m, nil
}

// estimationAccuracy implements §4.9's formula, clamped to [0,1].
func estimationAccuracy(estimated, actual float64) float64 {
	denom := estimated
	if denom < accuracyEpsilon {
		denom = accuracyEpsilon
	}
	acc := 1 - abs(actual-estimated)/denom
	if acc < 0 {
		return 0
	}
	if acc > 1 {
		return 1
	}
	return acc
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// AssigneeProductivity is one agent's assignment_history rollup: how many
// tasks it has completed and the mean wall-clock time from joining a task
// to that task's completion.
type AssigneeProductivity struct {
	AgentID        string  `json:"agent_id"`
	TasksCompleted int     `json:"tasks_completed"`
	MeanTenureSecs float64 `json:"mean_tenure_seconds"`
}

// Productivity aggregates assignment_history by agent, restricted to rows
// whose task has since completed (left_at set), optionally within period.
func (e *Engine) Productivity(ctx context.Context, period Period) ([]AssigneeProductivity, error) {
	query := `SELECT agent_id, joined_at, left_at FROM assignment_history WHERE left_at IS NOT NULL`
	var args []interface{}
	if !period.empty() {
		query += ` AND left_at >= ? AND left_at <= ?`
		args = append(args, period.From, period.To)
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "query assignment history")
	}
	defer rows.Close()

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "productivity metrics cancelled")
		}
		var agentID string
		var joinedAt, leftAt time.Time
		if err := rows.Scan(&agentID, &joinedAt, &leftAt); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "scan assignment history row")
		}
		sums[agentID] += leftAt.Sub(joinedAt).Seconds()
		counts[agentID]++
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Internal, err, "iterate assignment history rows")
	}

	out := make([]AssigneeProductivity, 0, len(counts))
	for agentID, n := range counts {
		out = append(out, AssigneeProductivity{
			AgentID:        agentID,
			TasksCompleted: n,
			MeanTenureSecs: sums[agentID] / float64(n),
		})
	}
	return out, nil
}

// Adoption is §4.9's adoption-rate aggregation.
type Adoption struct {
	CompletedTotal     int     `json:"completed_total"`
	WithCriteria       int     `json:"with_criteria"`
	WithSummary        int     `json:"with_summary"`
	WithFeedback       int     `json:"with_feedback"`
	CriteriaFraction   float64 `json:"criteria_fraction"`
	SummaryFraction    float64 `json:"summary_fraction"`
	FeedbackFraction   float64 `json:"feedback_fraction"`
}

// AdoptionRate reports what fraction of completed tasks carry criteria,
// a completion summary, and feedback, optionally restricted to period.
func (e *Engine) AdoptionRate(ctx context.Context, period Period) (*Adoption, error) {
	query := `SELECT success_criteria, completion_summary, feedback_quality
		FROM tasks WHERE status = 'completed'`
	var args []interface{}
	if !period.empty() {
		query += ` AND completed_at >= ? AND completed_at <= ?`
		args = append(args, period.From, period.To)
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "query adoption metrics")
	}
	defer rows.Close()

	var a Adoption
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "adoption metrics cancelled")
		}
		var criteria, summary sql.NullString
		var quality sql.NullInt64
		if err := rows.Scan(&criteria, &summary, &quality); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "scan adoption row")
		}
		a.CompletedTotal++
		if criteria.Valid && criteria.String != "" && criteria.String != "[]" && criteria.String != "null" {
			a.WithCriteria++
		}
		if summary.Valid && summary.String != "" {
			a.WithSummary++
		}
		if quality.Valid {
			a.WithFeedback++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Internal, err, "iterate adoption rows")
	}

	if a.CompletedTotal > 0 {
		a.CriteriaFraction = float64(a.WithCriteria) / float64(a.CompletedTotal)
		a.SummaryFraction = float64(a.WithSummary) / float64(a.CompletedTotal)
		a.FeedbackFraction = float64(a.WithFeedback) / float64(a.CompletedTotal)
	}
	return &a, nil
}
