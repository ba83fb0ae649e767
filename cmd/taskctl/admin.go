package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/taskorchestrator/core/internal/metricsengine"
	"github.com/taskorchestrator/core/internal/store"
)

func (a *app) runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	action := fs.String("action", "status", "status|apply|rollback")
	fs.Parse(args)

	m := store.NewMigrator(a.store)
	switch *action {
	case "status":
		version, err := m.CurrentVersion()
		if err != nil {
			fail(err)
		}
		fmt.Printf("schema version: %d\n", version)
	case "apply":
		version, err := m.CurrentVersion()
		if err != nil {
			fail(err)
		}
		fmt.Printf("schema at version %d\n", version)
	case "rollback":
		if err := m.Rollback(); err != nil {
			fail(err)
		}
		fmt.Println("rolled back to previous backup")
	default:
		fail(fmt.Errorf("unknown migrate action %q", *action))
	}
}

func (a *app) runConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	enable := fs.String("enable", "", "feature to turn on")
	disable := fs.String("disable", "", "feature to turn off")
	formatJSON := fs.Bool("json", false, "output as JSON")
	fs.Parse(args)

	cfgPath := configPath(a.stateDir)

	if *enable != "" {
		if err := a.cfg.Enable(*enable); err != nil {
			fail(err)
		}
		if err := saveConfig(cfgPath, a.cfg); err != nil {
			fail(err)
		}
	}
	if *disable != "" {
		if err := a.cfg.Disable(*disable); err != nil {
			fail(err)
		}
		if err := saveConfig(cfgPath, a.cfg); err != nil {
			fail(err)
		}
	}

	if *formatJSON {
		json.NewEncoder(os.Stdout).Encode(a.cfg)
		return
	}
	fmt.Printf("success_criteria:      %v\n", a.cfg.SuccessCriteria)
	fmt.Printf("feedback:              %v\n", a.cfg.Feedback)
	fmt.Printf("telemetry:             %v\n", a.cfg.Telemetry)
	fmt.Printf("completion_summaries:  %v\n", a.cfg.CompletionSummaries)
	fmt.Printf("time_tracking:         %v\n", a.cfg.TimeTracking)
	fmt.Printf("deadlines:             %v\n", a.cfg.Deadlines)
	fmt.Printf("minimal_mode:          %v\n", a.cfg.MinimalMode)
}

func (a *app) runMetrics(args []string) {
	fs := flag.NewFlagSet("metrics", flag.ExitOnError)
	period := fs.String("period", "", "week|month (default: all time)")
	formatJSON := fs.Bool("json", false, "output as JSON")
	wantFeedback := fs.Bool("feedback", false, "include feedback quality/timeliness metrics")
	wantTimeTracking := fs.Bool("time-tracking", false, "include estimated/actual hours metrics")
	wantTelemetry := fs.Bool("telemetry", false, "include adoption/productivity telemetry metrics")
	fs.Parse(args)

	// No selector flag means "everything", matching the teacher's convention
	// for list-style commands with no filters given (§6.2).
	all := !*wantFeedback && !*wantTimeTracking && !*wantTelemetry

	eng := metricsengine.New(a.store.DB)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var p metricsengine.Period
	now := time.Now().UTC()
	switch *period {
	case "week":
		p = metricsengine.Week(now)
	case "month":
		p = metricsengine.Month(now)
	}

	out := map[string]interface{}{}

	var feedback *metricsengine.FeedbackMetrics
	if all || *wantFeedback {
		fb, err := eng.Feedback(ctx, p)
		if err != nil {
			fail(err)
		}
		feedback = fb
		out["feedback"] = fb
	}
	var timeMetrics *metricsengine.TimeMetrics
	if all || *wantTimeTracking {
		tm, err := eng.Time(ctx, p)
		if err != nil {
			fail(err)
		}
		timeMetrics = tm
		out["time"] = tm
	}
	var adoption *metricsengine.Adoption
	var productivity []metricsengine.AssigneeProductivity
	if all || *wantTelemetry {
		ad, err := eng.AdoptionRate(ctx, p)
		if err != nil {
			fail(err)
		}
		adoption = ad
		out["adoption"] = ad

		prod, err := eng.Productivity(ctx, p)
		if err != nil {
			fail(err)
		}
		productivity = prod
		out["productivity"] = prod
	}

	if *formatJSON {
		json.NewEncoder(os.Stdout).Encode(out)
		return
	}

	if all || *wantFeedback {
		fmt.Printf("feedback: avg quality %.2f, avg timeliness %.2f (n by assignee: %v)\n",
			feedback.AvgQuality, feedback.AvgTimeliness, feedback.CountByAssignee)
	}
	if all || *wantTimeTracking {
		fmt.Printf("time: estimated %.1fh, actual %.1fh, avg accuracy %.2f\n",
			timeMetrics.TotalEstimated, timeMetrics.TotalActual, timeMetrics.AvgEstimationAccuracy)
	}
	if all || *wantTelemetry {
		fmt.Printf("adoption: %d completed, criteria %.0f%%, summary %.0f%%, feedback %.0f%%\n",
			adoption.CompletedTotal, adoption.CriteriaFraction*100, adoption.SummaryFraction*100, adoption.FeedbackFraction*100)
		for _, p := range productivity {
			fmt.Printf("productivity: %s completed %d, mean tenure %.0fs\n", p.AgentID, p.TasksCompleted, p.MeanTenureSecs)
		}
	}
}

func (a *app) runCriticalPath(args []string) {
	fs := flag.NewFlagSet("critical-path", flag.ExitOnError)
	formatJSON := fs.Bool("json", false, "output as JSON")
	fs.Parse(args)

	path, err := a.engine.CriticalPath()
	if err != nil {
		fail(err)
	}

	if *formatJSON {
		json.NewEncoder(os.Stdout).Encode(path)
		return
	}
	if len(path) == 0 {
		fmt.Println("no critical path (no non-terminal tasks)")
		return
	}
	for i, id := range path {
		if i > 0 {
			fmt.Print(" -> ")
		}
		fmt.Print(id)
	}
	fmt.Println()
}
