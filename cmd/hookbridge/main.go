// hookbridge is the standalone, fire-and-forget process that forwards the
// core's post-commit hook side-channel (§9) to an external command. It is
// explicitly out of core (§1: "Hook execution is a fire-and-forget
// side-channel the core invokes but does not implement") — the core only
// guarantees the events/hooks.jsonl file (or NATS subject) gets written;
// this binary is one way to act on it downstream.
//
// Grounded on cmd/nats-bridge/main.go's subject-forwarding, dedup-by-seen,
// and graceful-shutdown shape, adapted from bridging two NATS brokers to
// forwarding one event stream into an external command.
package main

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
)

func main() {
	hooksPath := flag.String("file", "", "Path to events/hooks.jsonl to tail (mutually exclusive with -nats)")
	natsURL := flag.String("nats", "", "NATS URL to subscribe to instead of tailing a file")
	subject := flag.String("subject", "taskorchestrator.*.*", "NATS subject pattern when -nats is set")
	forward := flag.String("forward", "", "External command to run once per event, receiving the JSON line on stdin")
	flag.Parse()

	if *hooksPath == "" && *natsURL == "" {
		log.Fatal("hookbridge: one of -file or -nats is required")
	}
	if *forward == "" {
		log.Fatal("hookbridge: -forward is required")
	}

	seen := newRecentLines(30 * time.Second)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if *natsURL != "" {
		conn, err := nats.Connect(*natsURL, nats.Name("hookbridge"))
		if err != nil {
			log.Fatalf("hookbridge: connect to nats: %v", err)
		}
		defer conn.Close()

		_, err = conn.Subscribe(*subject, func(msg *nats.Msg) {
			if seen.isSeen(msg.Data) {
				return
			}
			seen.mark(msg.Data)
			runForward(*forward, msg.Data)
		})
		if err != nil {
			log.Fatalf("hookbridge: subscribe %s: %v", *subject, err)
		}

		log.Printf("hookbridge: forwarding %s to %q", *subject, *forward)
		<-sigCh
		log.Println("hookbridge: shutting down")
		return
	}

	log.Printf("hookbridge: tailing %s, forwarding to %q", *hooksPath, *forward)
	done := make(chan struct{})
	go func() {
		tailFile(*hooksPath, seen, *forward, sigCh)
		close(done)
	}()
	<-done
}

// tailFile polls hooksPath for new lines the way a log-shipping sidecar
// would, since the core only ever appends to it (FileHookPublisher opens
// it with O_APPEND) and never rewrites it.
func tailFile(path string, seen *recentLines, forward string, sigCh chan os.Signal) {
	var offset int64
	for {
		select {
		case <-sigCh:
			log.Println("hookbridge: shutting down")
			return
		default:
		}

		fh, err := os.Open(path)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Printf("hookbridge: open %s: %v", path, err)
			}
			time.Sleep(time.Second)
			continue
		}

		if _, err := fh.Seek(offset, io.SeekStart); err != nil {
			fh.Close()
			time.Sleep(time.Second)
			continue
		}

		scanner := bufio.NewScanner(fh)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		var read int64
		for scanner.Scan() {
			line := scanner.Bytes()
			read += int64(len(line)) + 1
			if len(line) == 0 {
				continue
			}
			if seen.isSeen(line) {
				continue
			}
			seen.mark(line)
			runForward(forward, line)
		}
		offset += read
		fh.Close()

		time.Sleep(500 * time.Millisecond)
	}
}

func runForward(command string, payload []byte) {
	cmd := exec.Command("sh", "-c", command)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		log.Printf("hookbridge: forward command failed: %v", err)
	}
}

// recentLines dedups identical payloads within a TTL window, mirroring
// cmd/nats-bridge/main.go's RecentMessages.
type recentLines struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

func newRecentLines(ttl time.Duration) *recentLines {
	return &recentLines{seen: make(map[string]time.Time), ttl: ttl}
}

func (r *recentLines) hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:16])
}

func (r *recentLines) isSeen(data []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.seen[r.hash(data)]
	if !ok {
		return false
	}
	return time.Since(ts) < r.ttl
}

func (r *recentLines) mark(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[r.hash(data)] = time.Now()
	for k, ts := range r.seen {
		if time.Since(ts) > r.ttl {
			delete(r.seen, k)
		}
	}
}
