package notifier

import (
	"os"
	"testing"

	"github.com/taskorchestrator/core/internal/store"
)

func setupNotifierDB(t *testing.T) (*store.Store, func()) {
	t.Helper()
	f, err := os.CreateTemp("", "notifier-test-*.db")
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
	return s, cleanup
}

// insertTask adds a bare tasks row so notifications may reference id.
func insertTask(t *testing.T, s *store.Store, id string) {
	t.Helper()
	if _, err := s.DB.Exec(`INSERT INTO tasks (id, title, status, priority, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, "t", "pending", "medium", "user", store.Now(), store.Now()); err != nil {
		t.Fatal(err)
	}
}

func TestEmitAndWatchIsExactlyOnce(t *testing.T) {
	s, cleanup := setupNotifierDB(t)
	defer cleanup()

	n := New(s.DB, nil)
	if err := n.Emit("alice", "", KindDiscovery, "hello"); err != nil {
		t.Fatal(err)
	}

	first, err := n.Watch("alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 notification on first watch, got %d", len(first))
	}

	second, err := n.Watch("alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 0 {
		t.Errorf("expected second watch to drain nothing already-read, got %d", len(second))
	}
}

func TestBroadcastNotificationsReachEveryWatcher(t *testing.T) {
	s, cleanup := setupNotifierDB(t)
	defer cleanup()

	n := New(s.DB, nil)
	if err := n.Emit("", "", KindCompleted, "broadcast"); err != nil {
		t.Fatal(err)
	}

	for _, agent := range []string{"alice", "bob"} {
		ns, err := n.Watch(agent, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(ns) != 1 {
			t.Errorf("expected %s to see the broadcast notification, got %d", agent, len(ns))
		}
	}
}

func TestWatchRespectsLimit(t *testing.T) {
	s, cleanup := setupNotifierDB(t)
	defer cleanup()

	n := New(s.DB, nil)
	for i := 0; i < 5; i++ {
		if err := n.Emit("alice", "", KindSync, "msg"); err != nil {
			t.Fatal(err)
		}
	}

	ns, err := n.Watch("alice", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(ns) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(ns))
	}

	rest, err := n.Watch("alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 3 {
		t.Errorf("expected remaining 3 notifications on next watch, got %d", len(rest))
	}
}

func TestRecentForTaskOrdersNewestFirst(t *testing.T) {
	s, cleanup := setupNotifierDB(t)
	defer cleanup()

	insertTask(t, s, "task1")
	n := New(s.DB, nil)
	if err := n.Emit("alice", "task1", KindUnblocked, "first"); err != nil {
		t.Fatal(err)
	}
	if err := n.Emit("alice", "task1", KindCompleted, "second"); err != nil {
		t.Fatal(err)
	}

	recent, err := n.RecentForTask("task1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 notifications for task1, got %d", len(recent))
	}
	if recent[0].Message != "second" {
		t.Errorf("expected newest-first ordering, got %q first", recent[0].Message)
	}
}

type recordingHub struct {
	events []HookEvent
}

func (r *recordingHub) Publish(ev HookEvent) { r.events = append(r.events, ev) }
func (r *recordingHub) Close() error         { return nil }

func TestEmitFansOutToHookPublisher(t *testing.T) {
	s, cleanup := setupNotifierDB(t)
	defer cleanup()

	insertTask(t, s, "task1")
	hub := &recordingHub{}
	n := New(s.DB, hub)
	if err := n.Emit("alice", "task1", KindImpact, "impacted"); err != nil {
		t.Fatal(err)
	}

	if len(hub.events) != 1 {
		t.Fatalf("expected 1 hook event published, got %d", len(hub.events))
	}
	if hub.events[0].Kind != string(KindImpact) {
		t.Errorf("expected hook event kind %q, got %q", KindImpact, hub.events[0].Kind)
	}
}
