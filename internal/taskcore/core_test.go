package taskcore

import (
	"os"
	"testing"

	"github.com/taskorchestrator/core/internal/notifier"
	"github.com/taskorchestrator/core/internal/store"
)

func setupEngine(t *testing.T) (*Engine, func()) {
	t.Helper()
	f, err := os.CreateTemp("", "taskcore-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	os.Remove(f.Name())

	s, err := store.Open(f.Name(), true)
	if err != nil {
		t.Fatal(err)
	}
	cleanup := func() {
		s.Close()
		os.Remove(f.Name())
	}
	return New(s, nil), cleanup
}

func TestAddDefaultsStatusPending(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()

	task, err := e.Add("write docs", AddOpts{})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if task.Status != StatusPending {
		t.Errorf("expected pending status, got %s", task.Status)
	}
	if task.Priority != PriorityMedium {
		t.Errorf("expected default priority medium, got %s", task.Priority)
	}
}

func TestAddWithUnmetDependencyIsBlocked(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()

	dep, err := e.Add("parent", AddOpts{})
	if err != nil {
		t.Fatal(err)
	}
	child, err := e.Add("child", AddOpts{DependsOn: []string{dep.ID}})
	if err != nil {
		t.Fatal(err)
	}
	if child.Status != StatusBlocked {
		t.Errorf("expected blocked status, got %s", child.Status)
	}
}

func TestAddWithMissingDependencyFails(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()

	_, err := e.Add("child", AddOpts{DependsOn: []string{"nope0000"}})
	if err == nil {
		t.Fatal("expected error for missing dependency")
	}
}

func TestAddWithDiamondDependencyIsBlockedUntilAllTerminal(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()

	a, err := e.Add("a", AddOpts{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Add("b", AddOpts{})
	if err != nil {
		t.Fatal(err)
	}
	c, err := e.Add("c", AddOpts{DependsOn: []string{a.ID, b.ID}})
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != StatusBlocked {
		t.Fatalf("expected c blocked with two open deps, got %s", c.Status)
	}

	if _, err := e.Complete(a.ID, CompleteOpts{}); err != nil {
		t.Fatal(err)
	}
	reloaded, err := e.Show(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Task.Status != StatusBlocked {
		t.Fatalf("expected c still blocked with b open, got %s", reloaded.Task.Status)
	}

	result, err := e.Complete(b.ID, CompleteOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Unblocked) != 1 || result.Unblocked[0] != c.ID {
		t.Errorf("expected c unblocked once both deps complete, got %v", result.Unblocked)
	}
}

func TestCompleteUnblocksDependents(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()

	parent, err := e.Add("parent", AddOpts{})
	if err != nil {
		t.Fatal(err)
	}
	child, err := e.Add("child", AddOpts{DependsOn: []string{parent.ID}})
	if err != nil {
		t.Fatal(err)
	}
	if child.Status != StatusBlocked {
		t.Fatalf("expected child blocked before parent completes, got %s", child.Status)
	}

	result, err := e.Complete(parent.ID, CompleteOpts{})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if len(result.Unblocked) != 1 || result.Unblocked[0] != child.ID {
		t.Errorf("expected child %s unblocked, got %v", child.ID, result.Unblocked)
	}

	reloaded, err := e.Show(child.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Task.Status != StatusPending {
		t.Errorf("expected child pending after unblock, got %s", reloaded.Task.Status)
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()

	task, err := e.Add("solo", AddOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Complete(task.ID, CompleteOpts{}); err != nil {
		t.Fatal(err)
	}
	result, err := e.Complete(task.ID, CompleteOpts{})
	if err != nil {
		t.Fatalf("second Complete should be a no-op, got error: %v", err)
	}
	if result.Task.Status != StatusCompleted {
		t.Errorf("expected task to remain completed, got %s", result.Task.Status)
	}
}

func TestDeleteRefusesWithIncomingDependency(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()

	parent, err := e.Add("parent", AddOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Add("child", AddOpts{DependsOn: []string{parent.ID}}); err != nil {
		t.Fatal(err)
	}

	if err := e.Delete(parent.ID); err == nil {
		t.Fatal("expected delete to fail while a dependent exists")
	}
}

func TestFeedbackRequiresCompletedAndIsOnceOnly(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()

	task, err := e.Add("solo", AddOpts{})
	if err != nil {
		t.Fatal(err)
	}

	quality := 4
	if _, err := e.Feedback(task.ID, FeedbackOpts{Quality: &quality}); err == nil {
		t.Fatal("expected feedback on a non-completed task to fail")
	}

	if _, err := e.Complete(task.ID, CompleteOpts{}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Feedback(task.ID, FeedbackOpts{Quality: &quality}); err != nil {
		t.Fatalf("feedback on completed task should succeed: %v", err)
	}
	if _, err := e.Feedback(task.ID, FeedbackOpts{Quality: &quality}); err == nil {
		t.Fatal("expected second feedback call to fail")
	}
}

func TestImpactReviewNotifiesSharedFileRefs(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()

	refs := []FileRef{{Path: "internal/taskcore/core.go"}}
	a, err := e.Add("touch core.go", AddOpts{FileRefs: refs, Assignee: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Add("also touch core.go", AddOpts{FileRefs: refs, Assignee: "bob"})
	if err != nil {
		t.Fatal(err)
	}

	result, err := e.Complete(a.ID, CompleteOpts{ImpactReview: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Impacted) != 1 || result.Impacted[0] != b.ID {
		t.Errorf("expected %s impacted, got %v", b.ID, result.Impacted)
	}

	ns, err := e.Watch("bob", 10)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, n := range ns {
		if n.Kind == notifier.KindImpact {
			found = true
		}
	}
	if !found {
		t.Error("expected bob to receive an impact notification")
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	e, cleanup := setupEngine(t)
	defer cleanup()

	task, err := e.Add("solo", AddOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Join(task.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := e.Join(task.ID, "alice"); err != nil {
		t.Fatalf("second join should be a no-op, got: %v", err)
	}

	result, err := e.Show(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Participants) != 1 {
		t.Errorf("expected exactly one participant row, got %d", len(result.Participants))
	}
}
