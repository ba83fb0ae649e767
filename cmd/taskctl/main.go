// taskctl is the thin CLI dispatcher onto the task-coordination core
// (§6.2): argument parsing and output formatting only, no business logic
// of its own. Grounded on cmd/cliaimonitor/main.go's flag-based startup
// shape and cmd/dbctl/main.go's flat action dispatch — the teacher never
// imports cobra anywhere in this repo, so neither does this.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	ctxstore "github.com/taskorchestrator/core/internal/context"
	"github.com/taskorchestrator/core/internal/config"
	"github.com/taskorchestrator/core/internal/errs"
	"github.com/taskorchestrator/core/internal/identity"
	"github.com/taskorchestrator/core/internal/notifier"
	"github.com/taskorchestrator/core/internal/store"
	"github.com/taskorchestrator/core/internal/taskcore"
)

const defaultStateDirName = ".task-orchestrator"

// app bundles every subcommand's dependencies, built once per process
// invocation from environment + on-disk config (§6.3, §4.10).
type app struct {
	stateDir string
	store    *store.Store
	engine   *taskcore.Engine
	ctx      *ctxstore.Store
	cfg      *config.Config
	agentID  string
	hub      notifier.HookPublisher
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "init" {
		runInit(args)
		return
	}

	a, err := newApp()
	if err != nil {
		fail(err)
	}
	defer a.close()

	switch cmd {
	case "add":
		a.runAdd(args)
	case "list":
		a.runList(args)
	case "show":
		a.runShow(args)
	case "update":
		a.runUpdate(args)
	case "complete":
		a.runComplete(args)
	case "delete":
		a.runDelete(args)
	case "assign":
		a.runAssign(args)
	case "progress":
		a.runProgress(args)
	case "feedback":
		a.runFeedback(args)
	case "metrics":
		a.runMetrics(args)
	case "watch":
		a.runWatch(args)
	case "discover":
		a.runDiscover(args)
	case "export":
		a.runExport(args)
	case "migrate":
		a.runMigrate(args)
	case "config":
		a.runConfig(args)
	case "critical-path":
		a.runCriticalPath(args)
	case "join":
		a.runJoin(args)
	case "note":
		a.runNote(args)
	case "share":
		a.runShare(args)
	case "sync":
		a.runSync(args)
	case "context":
		a.runContext(args)
	default:
		fmt.Fprintf(os.Stderr, "taskctl: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: taskctl <command> [args]

commands:
  init                 create the project state directory and database
  add <title>          create a task
  list                 list tasks
  show <id>             show a task
  update <id>          update a task's mutable fields
  complete <id>        complete a task
  delete <id>          delete a task
  assign <id> <agent>  assign a task
  progress <id> <msg>  append a progress note
  feedback <id>        record post-completion feedback
  metrics              print aggregate metrics
  watch                drain this agent's unread notifications
  discover <id> <msg>  broadcast a discovery
  export               export tasks as json or markdown
  migrate              schema migration status/apply/rollback
  config               show or change feature toggles
  critical-path        print the current critical path
  join <id>            join a task as a participant
  note <id> <text>     append a private note
  share <id> <text>    contribute to the shared context
  sync <id> <text>     record a shared sync point
  context <id>         print a task's shared context document`)
}

func dbPath() string {
	if v := os.Getenv("TM_DB_PATH"); v != "" {
		return v
	}
	return filepath.Join(defaultStateDirName, "tasks.db")
}

func testMode() bool { return os.Getenv("TM_TEST_MODE") != "" }

func runInit(args []string) {
	stateDir := defaultStateDirName
	if v := os.Getenv("TM_DB_PATH"); v != "" {
		stateDir = filepath.Dir(v)
	}
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		fail(errs.Wrap(errs.Internal, err, "create state directory %s", stateDir))
	}

	s, err := store.Open(dbPath(), testMode())
	if err != nil {
		fail(err)
	}
	defer s.Close()

	cfgPath := filepath.Join(stateDir, config.FileName)
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.Save(cfgPath, config.Default()); err != nil {
			fail(err)
		}
	}

	fmt.Printf("initialized task-orchestrator project at %s\n", stateDir)
}

func newApp() (*app, error) {
	path := dbPath()
	stateDir := filepath.Dir(path)

	s, err := store.Open(path, testMode())
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(filepath.Join(stateDir, config.FileName))
	if err != nil {
		s.Close()
		return nil, err
	}

	hub, err := buildHub(stateDir, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	return &app{
		stateDir: stateDir,
		store:    s,
		engine:   taskcore.New(s, hub),
		ctx:      ctxstore.NewStore(stateDir),
		cfg:      cfg,
		agentID:  identity.Current(),
		hub:      hub,
	}, nil
}

// buildHub picks the Notifier's hook side-channel transport per config.yaml
// hooks.nats_url (§4.6, §4.10): NATS when set, the append-only file
// publisher otherwise. minimal_mode always clears hooks.nats_url on load.
func buildHub(stateDir string, cfg *config.Config) (notifier.HookPublisher, error) {
	if cfg.Hooks.NATSURL != "" {
		hub, err := notifier.NewNATSHookPublisher(cfg.Hooks.NATSURL, filepath.Base(stateDir), log.Default())
		if err != nil {
			return nil, errs.Wrap(errs.Internal, err, "connect hook publisher to %s", cfg.Hooks.NATSURL)
		}
		return hub, nil
	}
	hub, err := notifier.NewFileHookPublisher(stateDir, log.Default())
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "open hook publisher")
	}
	return hub, nil
}

func (a *app) close() {
	a.hub.Close()
	a.store.Close()
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "taskctl: %v\n", err)
	os.Exit(errs.ExitCode(errs.KindOf(err)))
}
