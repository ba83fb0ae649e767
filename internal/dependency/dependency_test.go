package dependency

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func setupResolverDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	f, err := os.CreateTemp("", "dependency-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	db, err := sql.Open("sqlite3", f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`CREATE TABLE dependencies (task_id TEXT, depends_on TEXT)`); err != nil {
		t.Fatal(err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(f.Name())
	}
	return db, cleanup
}

func TestWouldCreateCycleDetectsDirectCycle(t *testing.T) {
	db, cleanup := setupResolverDB(t)
	defer cleanup()

	r := NewResolver(db)
	if err := r.AddEdges([]Edge{{TaskID: "b", DependsOn: "a"}}); err != nil {
		t.Fatal(err)
	}

	cyclic, err := r.WouldCreateCycle([]Edge{{TaskID: "a", DependsOn: "b"}})
	if err != nil {
		t.Fatal(err)
	}
	if !cyclic {
		t.Error("expected a->b plus b->a to be flagged as a cycle")
	}
}

func TestWouldCreateCycleDetectsTransitiveCycle(t *testing.T) {
	db, cleanup := setupResolverDB(t)
	defer cleanup()

	r := NewResolver(db)
	if err := r.AddEdges([]Edge{
		{TaskID: "b", DependsOn: "a"},
		{TaskID: "c", DependsOn: "b"},
	}); err != nil {
		t.Fatal(err)
	}

	cyclic, err := r.WouldCreateCycle([]Edge{{TaskID: "a", DependsOn: "c"}})
	if err != nil {
		t.Fatal(err)
	}
	if !cyclic {
		t.Error("expected a->c to close the a->b->c->a cycle")
	}
}

func TestWouldCreateCycleAllowsAcyclicAddition(t *testing.T) {
	db, cleanup := setupResolverDB(t)
	defer cleanup()

	r := NewResolver(db)
	if err := r.AddEdges([]Edge{{TaskID: "b", DependsOn: "a"}}); err != nil {
		t.Fatal(err)
	}

	cyclic, err := r.WouldCreateCycle([]Edge{{TaskID: "c", DependsOn: "b"}})
	if err != nil {
		t.Fatal(err)
	}
	if cyclic {
		t.Error("c->b does not close a cycle and should be allowed")
	}
}

func TestDependentsAndHasIncoming(t *testing.T) {
	db, cleanup := setupResolverDB(t)
	defer cleanup()

	r := NewResolver(db)
	if err := r.AddEdges([]Edge{
		{TaskID: "child1", DependsOn: "parent"},
		{TaskID: "child2", DependsOn: "parent"},
	}); err != nil {
		t.Fatal(err)
	}

	deps, err := r.Dependents("parent")
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 2 {
		t.Errorf("expected 2 dependents of parent, got %d", len(deps))
	}

	has, err := r.HasIncoming("parent")
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Error("expected parent to have incoming dependencies")
	}

	has, err = r.HasIncoming("child1")
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Error("expected child1 to have no incoming dependencies")
	}
}

func TestComputeInitialStatusBlockedUntilAllTerminal(t *testing.T) {
	terminal := map[string]bool{"a": true, "b": false}
	lookup := func(id string) (bool, error) { return terminal[id], nil }

	blocked, err := ComputeInitialStatus([]string{"a"}, lookup)
	if err != nil {
		t.Fatal(err)
	}
	if blocked {
		t.Error("expected pending when the sole dependency is terminal")
	}

	blocked, err = ComputeInitialStatus([]string{"a", "b"}, lookup)
	if err != nil {
		t.Fatal(err)
	}
	if !blocked {
		t.Error("expected blocked when any dependency is non-terminal")
	}

	blocked, err = ComputeInitialStatus(nil, lookup)
	if err != nil {
		t.Fatal(err)
	}
	if blocked {
		t.Error("expected pending with no dependencies at all")
	}
}

func TestIsBlockedRecomputesFromCurrentLookup(t *testing.T) {
	db, cleanup := setupResolverDB(t)
	defer cleanup()

	r := NewResolver(db)
	if err := r.AddEdges([]Edge{{TaskID: "child", DependsOn: "parent"}}); err != nil {
		t.Fatal(err)
	}

	notYetTerminal := func(string) (bool, error) { return false, nil }
	blocked, err := r.IsBlocked("child", notYetTerminal)
	if err != nil {
		t.Fatal(err)
	}
	if !blocked {
		t.Error("expected child blocked while parent is non-terminal")
	}

	nowTerminal := func(string) (bool, error) { return true, nil }
	blocked, err = r.IsBlocked("child", nowTerminal)
	if err != nil {
		t.Fatal(err)
	}
	if blocked {
		t.Error("expected child unblocked once parent is terminal")
	}
}
