// Package dependency implements the task dependency DAG: cycle detection,
// status computation, on-complete unblock cascade, and critical-path,
// over a SQL edge table. See DESIGN.md's stdlib justification for this
// package.
package dependency

import (
	"database/sql"

	"github.com/taskorchestrator/core/internal/errs"
)

type dber interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Resolver operates on the dependencies table via any dber (plain *sql.DB
// or an in-flight *sql.Tx, so callers can compose it inside TaskCore's
// transactions).
type Resolver struct {
	db dber
}

func NewResolver(db dber) *Resolver {
	return &Resolver{db: db}
}

// Edge is one (task_id, depends_on) pair.
type Edge struct {
	TaskID    string
	DependsOn string
}

// AllEdges loads the full dependency relation.
func (r *Resolver) AllEdges() ([]Edge, error) {
	rows, err := r.db.Query(`SELECT task_id, depends_on FROM dependencies`)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "load dependency edges")
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.TaskID, &e.DependsOn); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "scan dependency edge")
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// DependsOn returns the ids a task directly depends on.
func (r *Resolver) DependsOn(taskID string) ([]string, error) {
	rows, err := r.db.Query(`SELECT depends_on FROM dependencies WHERE task_id = ?`, taskID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "load dependencies of %s", taskID)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "scan dependency")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Dependents returns the ids that directly depend on taskID (D -> taskID).
func (r *Resolver) Dependents(taskID string) ([]string, error) {
	rows, err := r.db.Query(`SELECT task_id FROM dependencies WHERE depends_on = ?`, taskID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "load dependents of %s", taskID)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "scan dependent")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// HasIncoming reports whether any task depends on taskID — the guard
// the delete operation uses to refuse removing a task other tasks still
// depend on.
func (r *Resolver) HasIncoming(taskID string) (bool, error) {
	var n int
	err := r.db.QueryRow(`SELECT count(*) FROM dependencies WHERE depends_on = ?`, taskID).Scan(&n)
	if err != nil {
		return false, errs.Wrap(errs.Internal, err, "check incoming dependencies of %s", taskID)
	}
	return n > 0, nil
}

// WouldCreateCycle reports whether adding newEdges to the current graph
// would introduce a cycle, via DFS over current-plus-proposed edges,
// O(V+E) in the size of the graph.
func (r *Resolver) WouldCreateCycle(newEdges []Edge) (bool, error) {
	existing, err := r.AllEdges()
	if err != nil {
		return false, err
	}

	adj := make(map[string][]string)
	for _, e := range existing {
		adj[e.TaskID] = append(adj[e.TaskID], e.DependsOn)
	}
	for _, e := range newEdges {
		adj[e.TaskID] = append(adj[e.TaskID], e.DependsOn)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)

	var visit func(node string) bool
	visit = func(node string) bool {
		color[node] = gray
		for _, next := range adj[node] {
			switch color[next] {
			case gray:
				return true // back edge -> cycle
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}

	for node := range adj {
		if color[node] == white {
			if visit(node) {
				return true, nil
			}
		}
	}
	return false, nil
}

// AddEdges inserts the given edges, assuming the caller has already
// checked WouldCreateCycle and that both endpoints exist.
func (r *Resolver) AddEdges(edges []Edge) error {
	for _, e := range edges {
		_, err := r.db.Exec(`INSERT OR IGNORE INTO dependencies (task_id, depends_on) VALUES (?, ?)`, e.TaskID, e.DependsOn)
		if err != nil {
			return errs.Wrap(errs.Internal, err, "insert dependency edge %s -> %s", e.TaskID, e.DependsOn)
		}
	}
	return nil
}

// StatusLookup reports whether a task's status is terminal, so this
// package doesn't need to import taskcore and create a cycle; callers
// build one from taskcore.Status.Terminal().
type StatusLookup func(taskID string) (terminal bool, err error)

// ComputeInitialStatus returns true (blocked) if any of deps is not
// terminal: a task starts pending unless a named dependency is not yet
// terminal (completed or cancelled), in which case it starts blocked.
func ComputeInitialStatus(deps []string, lookup StatusLookup) (blocked bool, err error) {
	for _, d := range deps {
		terminal, err := lookup(d)
		if err != nil {
			return false, err
		}
		if !terminal {
			return true, nil
		}
	}
	return false, nil
}

// IsBlocked recomputes whether taskID should currently be blocked: true
// iff it has at least one dependency whose target is not terminal.
func (r *Resolver) IsBlocked(taskID string, lookup StatusLookup) (bool, error) {
	deps, err := r.DependsOn(taskID)
	if err != nil {
		return false, err
	}
	return ComputeInitialStatus(deps, lookup)
}
