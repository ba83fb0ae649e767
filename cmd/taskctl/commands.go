package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/taskorchestrator/core/internal/taskcore"
)

// parseFileRefs parses "path[:start[:end]]" flag values into FileRefs.
func parseFileRefs(values []string) ([]taskcore.FileRef, error) {
	var out []taskcore.FileRef
	for _, v := range values {
		parts := strings.SplitN(v, ":", 3)
		fr := taskcore.FileRef{Path: parts[0]}
		if len(parts) >= 2 && parts[1] != "" {
			n, err := strconv.Atoi(parts[1])
			if err != nil {
				return nil, fmt.Errorf("invalid line_start in --file %q: %w", v, err)
			}
			fr.LineStart = &n
		}
		if len(parts) == 3 && parts[2] != "" {
			n, err := strconv.Atoi(parts[2])
			if err != nil {
				return nil, fmt.Errorf("invalid line_end in --file %q: %w", v, err)
			}
			fr.LineEnd = &n
		}
		out = append(out, fr)
	}
	return out, nil
}

type stringSlice []string

func (s *stringSlice) String() string     { return strings.Join(*s, ",") }
func (s *stringSlice) Set(v string) error { *s = append(*s, v); return nil }

func (a *app) runAdd(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	description := fs.String("description", "", "task description")
	priority := fs.String("priority", "medium", "low|medium|high|critical")
	assignee := fs.String("assignee", "", "agent to assign")
	criteriaJSON := fs.String("criteria", "", "success criteria, JSON array of {criterion,measurable}")
	deadline := fs.String("deadline", "", "ISO-8601 deadline")
	estimatedHours := fs.Float64("estimated-hours", -1, "estimated hours")
	var dependsOn, fileRefs stringSlice
	fs.Var(&dependsOn, "depends-on", "id this task depends on (repeatable)")
	fs.Var(&fileRefs, "file", "path[:start[:end]] file reference (repeatable)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fail(fmt.Errorf("add requires a title"))
	}
	title := fs.Arg(0)

	opts := taskcore.AddOpts{
		Description: *description,
		Priority:    taskcore.Priority(*priority),
		Assignee:    *assignee,
		CreatedBy:   a.agentID,
		DependsOn:   dependsOn,
	}

	if *criteriaJSON != "" {
		if !a.cfg.SuccessCriteria {
			fail(fmt.Errorf("success_criteria feature is disabled; enable with `taskctl config --enable success_criteria`"))
		}
		var criteria []taskcore.Criterion
		if err := json.Unmarshal([]byte(*criteriaJSON), &criteria); err != nil {
			fail(fmt.Errorf("invalid --criteria JSON: %w", err))
		}
		opts.Criteria = criteria
	}

	if *deadline != "" {
		if !a.cfg.Deadlines {
			fail(fmt.Errorf("deadlines feature is disabled; enable with `taskctl config --enable deadlines`"))
		}
		t, err := time.Parse(time.RFC3339, *deadline)
		if err != nil {
			fail(fmt.Errorf("invalid --deadline: %w", err))
		}
		opts.Deadline = &t
	}

	if *estimatedHours >= 0 {
		if !a.cfg.TimeTracking {
			fail(fmt.Errorf("time_tracking feature is disabled; enable with `taskctl config --enable time_tracking`"))
		}
		opts.EstimatedHours = estimatedHours
	}

	refs, err := parseFileRefs(fileRefs)
	if err != nil {
		fail(err)
	}
	opts.FileRefs = refs

	t, err := a.engine.Add(title, opts)
	if err != nil {
		fail(err)
	}
	fmt.Println(t.ID)
}

func (a *app) runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	status := fs.String("status", "", "filter by status")
	assignee := fs.String("assignee", "", "filter by assignee")
	priority := fs.String("priority", "", "filter by priority")
	hasDeps := fs.Bool("has-deps", false, "only tasks with dependencies")
	formatJSON := fs.Bool("json", false, "output as JSON")
	fs.Parse(args)

	tasks, err := a.engine.List(taskcore.Filter{
		Status:   taskcore.Status(*status),
		Assignee: *assignee,
		Priority: taskcore.Priority(*priority),
		HasDeps:  *hasDeps,
	})
	if err != nil {
		fail(err)
	}

	if *formatJSON {
		json.NewEncoder(os.Stdout).Encode(tasks)
		return
	}
	printTaskTable(tasks)
}

func printTaskTable(tasks []*taskcore.Task) {
	if len(tasks) == 0 {
		fmt.Println("no tasks")
		return
	}
	fmt.Printf("%-10s %-9s %-8s %-12s %s\n", "ID", "STATUS", "PRIORITY", "ASSIGNEE", "TITLE")
	for _, t := range tasks {
		assignee := t.Assignee
		if assignee == "" {
			assignee = "-"
		}
		fmt.Printf("%-10s %-9s %-8s %-12s %s\n", t.ID, t.Status, t.Priority, assignee, t.Title)
	}
}

func (a *app) runShow(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	formatJSON := fs.Bool("json", false, "output as JSON")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fail(fmt.Errorf("show requires a task id"))
	}

	result, err := a.engine.Show(fs.Arg(0))
	if err != nil {
		fail(err)
	}

	if *formatJSON {
		json.NewEncoder(os.Stdout).Encode(result)
		return
	}

	t := result.Task
	fmt.Printf("id:          %s\n", t.ID)
	fmt.Printf("title:       %s\n", t.Title)
	fmt.Printf("status:      %s\n", t.Status)
	fmt.Printf("priority:    %s\n", t.Priority)
	if t.Assignee != "" {
		fmt.Printf("assignee:    %s\n", t.Assignee)
	}
	fmt.Printf("created_by:  %s\n", t.CreatedBy)
	fmt.Printf("created_at:  %s\n", t.CreatedAt.Format(time.RFC3339))
	if t.CompletedAt != nil {
		fmt.Printf("completed_at: %s\n", t.CompletedAt.Format(time.RFC3339))
	}
	if len(result.DependsOn) > 0 {
		fmt.Printf("depends_on:  %s\n", strings.Join(result.DependsOn, ", "))
	}
	if len(result.Dependents) > 0 {
		fmt.Printf("dependents:  %s\n", strings.Join(result.Dependents, ", "))
	}
	if t.Description != "" {
		fmt.Printf("description: %s\n", t.Description)
	}
	if t.CompletionSummary != "" {
		fmt.Printf("summary:     %s\n", t.CompletionSummary)
	}
}

func (a *app) runUpdate(args []string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	status := fs.String("status", "", "new status")
	assignee := fs.String("assignee", "", "new assignee")
	title := fs.String("title", "", "new title")
	description := fs.String("description", "", "new description")
	priority := fs.String("priority", "", "new priority")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fail(fmt.Errorf("update requires a task id"))
	}

	patch := taskcore.Patch{}
	if *status != "" {
		s := taskcore.Status(*status)
		patch.Status = &s
	}
	if *assignee != "" {
		patch.Assignee = assignee
	}
	if *title != "" {
		patch.Title = title
	}
	if *description != "" {
		patch.Description = description
	}
	if *priority != "" {
		p := taskcore.Priority(*priority)
		patch.Priority = &p
	}

	t, err := a.engine.Update(fs.Arg(0), patch)
	if err != nil {
		fail(err)
	}
	fmt.Printf("%s -> %s\n", t.ID, t.Status)
}

func (a *app) runComplete(args []string) {
	fs := flag.NewFlagSet("complete", flag.ExitOnError)
	validate := fs.Bool("validate", false, "evaluate success criteria before completing")
	actualHours := fs.Float64("actual-hours", -1, "actual hours spent")
	summary := fs.String("summary", "", "completion summary")
	impactReview := fs.Bool("impact-review", false, "notify tasks sharing a file reference")
	criteriaCtxJSON := fs.String("context", "{}", "JSON object of criteria-context values")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fail(fmt.Errorf("complete requires a task id"))
	}

	opts := taskcore.CompleteOpts{
		Summary:        *summary,
		RequireSummary: a.cfg.CompletionSummaries && *validate,
		CheckCriteria:  *validate,
		ImpactReview:   *impactReview,
	}
	if *actualHours >= 0 {
		opts.ActualHours = actualHours
	}
	if *validate {
		var ctxMap map[string]interface{}
		if err := json.Unmarshal([]byte(*criteriaCtxJSON), &ctxMap); err != nil {
			fail(fmt.Errorf("invalid --context JSON: %w", err))
		}
		opts.CriteriaContext = ctxMap
	}

	result, err := a.engine.Complete(fs.Arg(0), opts)
	if err != nil {
		fail(err)
	}
	fmt.Printf("%s completed\n", result.Task.ID)
	for _, id := range result.Unblocked {
		fmt.Printf("unblocked: %s\n", id)
	}
	for _, id := range result.Impacted {
		fmt.Printf("impact notified: %s\n", id)
	}
}

func (a *app) runDelete(args []string) {
	if len(args) < 1 {
		fail(fmt.Errorf("delete requires a task id"))
	}
	if err := a.engine.Delete(args[0]); err != nil {
		fail(err)
	}
	fmt.Printf("%s deleted\n", args[0])
}

func (a *app) runAssign(args []string) {
	if len(args) < 2 {
		fail(fmt.Errorf("assign requires a task id and an agent id"))
	}
	t, err := a.engine.Assign(args[0], args[1])
	if err != nil {
		fail(err)
	}
	fmt.Printf("%s assigned to %s\n", t.ID, t.Assignee)
}

func (a *app) runProgress(args []string) {
	if len(args) < 2 {
		fail(fmt.Errorf("progress requires a task id and a message"))
	}
	if err := a.engine.Progress(args[0], a.agentID, strings.Join(args[1:], " ")); err != nil {
		fail(err)
	}
	fmt.Println("progress recorded")
}

func (a *app) runFeedback(args []string) {
	fs := flag.NewFlagSet("feedback", flag.ExitOnError)
	quality := fs.Int("quality", 0, "quality score 1-5")
	timeliness := fs.Int("timeliness", 0, "timeliness score 1-5")
	note := fs.String("note", "", "feedback note")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fail(fmt.Errorf("feedback requires a task id"))
	}
	if !a.cfg.Feedback {
		fail(fmt.Errorf("feedback feature is disabled; enable with `taskctl config --enable feedback`"))
	}

	opts := taskcore.FeedbackOpts{Note: *note}
	if *quality > 0 {
		opts.Quality = quality
	}
	if *timeliness > 0 {
		opts.Timeliness = timeliness
	}

	t, err := a.engine.Feedback(fs.Arg(0), opts)
	if err != nil {
		fail(err)
	}
	fmt.Printf("feedback recorded for %s\n", t.ID)
}
