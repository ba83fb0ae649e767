package notifier

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// startTestServer starts an embedded NATS server for testing, grounded on
// the teacher's internal/nats/client_test.go helper of the same name.
func startTestServer(t *testing.T) (*server.Server, string) {
	t.Helper()
	opts := &server.Options{
		Host:           "127.0.0.1",
		Port:           -1, // random port
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 2048,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("failed to create NATS server: %v", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	return ns, ns.ClientURL()
}

func TestFileHookPublisherAppendsOneJSONLinePerEvent(t *testing.T) {
	dir, err := os.MkdirTemp("", "hook-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	pub, err := NewFileHookPublisher(dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	pub.Publish(HookEvent{AgentID: "alice", TaskID: "t1", Kind: "completed", Message: "done", CreatedAt: time.Now().UTC()})
	pub.Publish(HookEvent{AgentID: "bob", TaskID: "t2", Kind: "unblocked", Message: "go", CreatedAt: time.Now().UTC()})

	f, err := os.Open(filepath.Join(dir, "events", "hooks.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 appended lines, got %d", len(lines))
	}

	var ev HookEvent
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.AgentID != "alice" || ev.Kind != "completed" {
		t.Errorf("unexpected first event: %+v", ev)
	}
}

func TestFileHookPublisherCloseIsNoop(t *testing.T) {
	dir, err := os.MkdirTemp("", "hook-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	pub, err := NewFileHookPublisher(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("expected Close to be a no-op, got %v", err)
	}
}

func TestNATSHookPublisherDeliversToSubscribedSubject(t *testing.T) {
	ns, url := startTestServer(t)
	defer ns.Shutdown()

	sub, err := nats.Connect(url)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	msgs := make(chan *nats.Msg, 1)
	subscription, err := sub.ChanSubscribe("taskorchestrator.proj1.completed", msgs)
	if err != nil {
		t.Fatal(err)
	}
	defer subscription.Unsubscribe()

	pub, err := NewNATSHookPublisher(url, "proj1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Close()

	pub.Publish(HookEvent{AgentID: "alice", TaskID: "t1", Kind: "completed", Message: "done", CreatedAt: time.Now().UTC()})

	select {
	case msg := <-msgs:
		var ev HookEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.TaskID != "t1" || ev.AgentID != "alice" {
			t.Errorf("unexpected delivered event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the published hook event")
	}
}

func TestNATSHookPublisherDoesNotCrossPostToOtherProjects(t *testing.T) {
	ns, url := startTestServer(t)
	defer ns.Shutdown()

	sub, err := nats.Connect(url)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	msgs := make(chan *nats.Msg, 1)
	subscription, err := sub.ChanSubscribe("taskorchestrator.other-project.completed", msgs)
	if err != nil {
		t.Fatal(err)
	}
	defer subscription.Unsubscribe()

	pub, err := NewNATSHookPublisher(url, "proj1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Close()

	pub.Publish(HookEvent{TaskID: "t1", Kind: "completed", CreatedAt: time.Now().UTC()})

	select {
	case msg := <-msgs:
		t.Fatalf("expected no message on another project's subject, got %s", msg.Data)
	case <-time.After(200 * time.Millisecond):
	}
}
