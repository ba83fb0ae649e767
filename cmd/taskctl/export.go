package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/taskorchestrator/core/internal/config"
	"github.com/taskorchestrator/core/internal/taskcore"
)

func configPath(stateDir string) string {
	return filepath.Join(stateDir, config.FileName)
}

func saveConfig(path string, cfg *config.Config) error {
	return config.Save(path, cfg)
}

// runExport is a thin formatter only: no business logic of its own, per
// the engine's task-coordination surface stopping at List/Show.
func (a *app) runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "json", "json|markdown")
	status := fs.String("status", "", "filter by status")
	fs.Parse(args)

	tasks, err := a.engine.List(taskcore.Filter{Status: taskcore.Status(*status)})
	if err != nil {
		fail(err)
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(tasks)
	case "markdown":
		exportMarkdown(tasks)
	default:
		fail(fmt.Errorf("unknown export format %q", *format))
	}
}

func exportMarkdown(tasks []*taskcore.Task) {
	fmt.Println("# Tasks")
	fmt.Println()
	for _, t := range tasks {
		fmt.Printf("## %s (%s)\n\n", t.Title, t.ID)
		fmt.Printf("- status: %s\n", t.Status)
		fmt.Printf("- priority: %s\n", t.Priority)
		if t.Assignee != "" {
			fmt.Printf("- assignee: %s\n", t.Assignee)
		}
		if t.Description != "" {
			fmt.Printf("\n%s\n", t.Description)
		}
		if t.CompletionSummary != "" {
			fmt.Printf("\n**Summary:** %s\n", t.CompletionSummary)
		}
		fmt.Println()
	}
}
