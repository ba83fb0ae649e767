package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	ctxstore "github.com/taskorchestrator/core/internal/context"
	"github.com/taskorchestrator/core/internal/desktop"
	"github.com/taskorchestrator/core/internal/worker"
)

func (a *app) runJoin(args []string) {
	if len(args) < 1 {
		fail(fmt.Errorf("join requires a task id"))
	}
	if err := a.engine.Join(args[0], a.agentID); err != nil {
		fail(err)
	}
	fmt.Printf("joined %s as %s\n", args[0], a.agentID)
}

func (a *app) runNote(args []string) {
	if len(args) < 2 {
		fail(fmt.Errorf("note requires a task id and text"))
	}
	w := worker.New(a.engine, a.ctx, a.agentID)
	if err := w.Note(args[0], strings.Join(args[1:], " ")); err != nil {
		fail(err)
	}
	fmt.Println("note recorded")
}

func (a *app) runShare(args []string) {
	fs := flag.NewFlagSet("share", flag.ExitOnError)
	entryType := fs.String("type", string(ctxstore.TypeUpdate), "progress|update|fix")
	fs.Parse(args)
	if fs.NArg() < 2 {
		fail(fmt.Errorf("share requires a task id and text"))
	}
	w := worker.New(a.engine, a.ctx, a.agentID)
	content := strings.Join(fs.Args()[1:], " ")
	if err := w.Share(fs.Arg(0), ctxstore.EntryType(*entryType), content); err != nil {
		fail(err)
	}
	fmt.Println("shared context updated")
}

func (a *app) runSync(args []string) {
	if len(args) < 2 {
		fail(fmt.Errorf("sync requires a task id and text"))
	}
	w := worker.New(a.engine, a.ctx, a.agentID)
	if err := w.Sync(args[0], strings.Join(args[1:], " ")); err != nil {
		fail(err)
	}
	fmt.Println("sync point recorded")
}

func (a *app) runContext(args []string) {
	fs := flag.NewFlagSet("context", flag.ExitOnError)
	formatJSON := fs.Bool("json", false, "output as JSON")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fail(fmt.Errorf("context requires a task id"))
	}

	doc, err := a.ctx.LoadShared(fs.Arg(0))
	if err != nil {
		fail(err)
	}

	if *formatJSON {
		json.NewEncoder(os.Stdout).Encode(doc)
		return
	}

	if doc.Global != "" {
		fmt.Printf("global:\n%s\n\n", doc.Global)
	}
	for _, e := range doc.Agents {
		fmt.Printf("[%s] %s: %s\n", e.Timestamp.Format("2006-01-02 15:04"), e.AgentID, e.Content)
	}
	for _, e := range doc.Discoveries {
		fmt.Printf("[discovery %s] %s: %s\n", e.Timestamp.Format("2006-01-02 15:04"), e.AgentID, e.Content)
	}
	for _, e := range doc.SyncPoints {
		fmt.Printf("[sync %s] %s: %s\n", e.Timestamp.Format("2006-01-02 15:04"), e.AgentID, e.Content)
	}
}

func (a *app) runDiscover(args []string) {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	var tags stringSlice
	fs.Var(&tags, "tag", "discovery tag (repeatable)")
	fs.Parse(args)
	if fs.NArg() < 2 {
		fail(fmt.Errorf("discover requires a task id and a message"))
	}

	w := worker.New(a.engine, a.ctx, a.agentID)
	message := strings.Join(fs.Args()[1:], " ")
	if err := w.Discover(fs.Arg(0), message, tags); err != nil {
		fail(err)
	}
	fmt.Println("discovery broadcast")
}

func (a *app) runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	limit := fs.Int("limit", 50, "max notifications to drain")
	formatJSON := fs.Bool("json", false, "output as JSON")
	desktopNotify := fs.Bool("desktop-notify", false, "flash a desktop/terminal alert for new notifications")
	fs.Parse(args)

	ns, err := a.engine.Watch(a.agentID, *limit)
	if err != nil {
		fail(err)
	}

	if *formatJSON {
		json.NewEncoder(os.Stdout).Encode(ns)
		return
	}
	if len(ns) == 0 {
		fmt.Println("no new notifications")
		return
	}
	for _, n := range ns {
		fmt.Printf("[%s] %s %s: %s\n", n.CreatedAt.Format("2006-01-02 15:04"), n.Kind, n.TaskID, n.Message)
	}

	if *desktopNotify {
		alert := fmt.Sprintf("%d new notifications", len(ns))
		if err := desktop.New("task-orchestrator").Notify(alert, ns[len(ns)-1].Message); err != nil {
			desktop.TerminalFlash(alert)
		}
	}
}
