// Package orchestrator is the role-scoped facade (§4.11) exposing project
// breakdown, assignment, and monitoring over taskcore.Engine. It carries
// no authority taskcore.Engine doesn't already enforce — the separation
// from internal/worker is policy, grounded on the teacher's
// internal/captain/captain.go role-dispatching shape, adapted from
// spawning sub-agent processes to creating and wiring dependent tasks.
package orchestrator

import (
	"database/sql"

	"github.com/taskorchestrator/core/internal/errs"
	"github.com/taskorchestrator/core/internal/notifier"
	"github.com/taskorchestrator/core/internal/taskcore"
)

// Orchestrator wraps a taskcore.Engine with the operation set a project
// coordinator is expected to call.
type Orchestrator struct {
	engine  *taskcore.Engine
	agentID string
}

// New builds an Orchestrator acting as agentID.
func New(engine *taskcore.Engine, agentID string) *Orchestrator {
	return &Orchestrator{engine: engine, agentID: agentID}
}

// ChildSpec describes one task in a breakdown: a title plus the indices
// (into the same breakdown batch) of sibling tasks it depends on.
type ChildSpec struct {
	Title          string
	Description    string
	Priority       taskcore.Priority
	Assignee       string
	DependsOnIndex []int
	EstimatedHours *float64
	FileRefs       []taskcore.FileRef
}

// Breakdown creates a parent project task plus len(children) child tasks in
// one transaction (§4.11): each child's DependsOnIndex resolves against ids
// assigned earlier in the same batch, and the project task itself depends
// on every child, so it stays blocked until all of them reach a terminal
// state — the aggregate CompleteAggregate is built to finish. Specs must be
// given in an order where a child's dependencies appear first; forward
// references fail with InvalidInput (a missing external dependency fails
// with NotFound), and the whole batch rolls back together on any error.
func (o *Orchestrator) Breakdown(projectTitle string, children []ChildSpec) (*taskcore.Task, []*taskcore.Task, error) {
	if len(children) == 0 {
		return nil, nil, errs.New(errs.InvalidInput, "breakdown requires at least one child task")
	}

	var project *taskcore.Task
	out := make([]*taskcore.Task, 0, len(children))

	err := o.engine.WithTx(func(tx *sql.Tx) error {
		ids := make([]string, len(children))
		for i, spec := range children {
			var dependsOn []string
			for _, idx := range spec.DependsOnIndex {
				if idx < 0 || idx >= len(ids) || ids[idx] == "" {
					return errs.New(errs.InvalidInput, "breakdown item %d depends on an unresolved sibling index %d", i, idx)
				}
				dependsOn = append(dependsOn, ids[idx])
			}

			t, err := o.engine.AddInTx(tx, spec.Title, taskcore.AddOpts{
				Description:    spec.Description,
				Priority:       spec.Priority,
				Assignee:       spec.Assignee,
				CreatedBy:      o.agentID,
				DependsOn:      dependsOn,
				EstimatedHours: spec.EstimatedHours,
				FileRefs:       spec.FileRefs,
			})
			if err != nil {
				return err
			}
			ids[i] = t.ID
			out = append(out, t)
		}

		p, err := o.engine.AddInTx(tx, projectTitle, taskcore.AddOpts{
			CreatedBy: o.agentID,
			DependsOn: ids,
		})
		if err != nil {
			return err
		}
		project = p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return project, out, nil
}

// Assign routes a task to an agent.
func (o *Orchestrator) Assign(taskID, agentID string) (*taskcore.Task, error) {
	return o.engine.Assign(taskID, agentID)
}

// Monitor returns every task matching filter, for dashboards/reports —
// export formatting itself stays out of core per §1.
func (o *Orchestrator) Monitor(filter taskcore.Filter) ([]*taskcore.Task, error) {
	return o.engine.List(filter)
}

// CriticalPath exposes the project's current critical path.
func (o *Orchestrator) CriticalPath() ([]string, error) {
	return o.engine.CriticalPath()
}

// CompleteAggregate completes a project-aggregate task: per §4.11 the
// orchestrator only completes at the aggregate level, never a worker's
// individual task.
func (o *Orchestrator) CompleteAggregate(taskID string, opts taskcore.CompleteOpts) (*taskcore.CompleteResult, error) {
	return o.engine.Complete(taskID, opts)
}

// Watch drains the orchestrator agent's unread notifications.
func (o *Orchestrator) Watch(limit int) ([]notifier.Notification, error) {
	return o.engine.Watch(o.agentID, limit)
}
