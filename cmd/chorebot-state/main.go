package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/vthunder/chorebot/internal/activity"
	"github.com/vthunder/chorebot/internal/config"
	"github.com/vthunder/chorebot/internal/resolver"
	"github.com/vthunder/chorebot/internal/state"
	"github.com/vthunder/chorebot/internal/sweep"
	"github.com/vthunder/chorebot/internal/tasks"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}

	db, err := tasks.Open(cfg.StatePath, tasks.Options{Driver: cfg.DBDriver, UniqueActiveTitles: cfg.UniqueActiveTitles})
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	inspector := state.NewInspector(cfg.StatePath, db, cfg.Retention())
	cmd := os.Args[1]

	switch cmd {
	case "summary", "":
		handleSummary(ctx, inspector)
	case "health":
		handleHealth(ctx, inspector)
	case "tasks":
		handleTasks(ctx, db, os.Args[2:])
	case "history":
		handleHistory(ctx, db, os.Args[2:])
	case "kv":
		handleKV(ctx, db, os.Args[2:])
	case "sweep":
		handleSweep(ctx, db, cfg, os.Args[2:])
	case "logs":
		handleLogs(inspector, os.Args[2:])
	case "activity":
		handleActivity(activity.New(cfg.StatePath), os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`chorebot-state - Inspect and manage chorebot's state

Usage: chorebot-state <command> [options]

Commands:
  summary                   Overview of tasks, history, archives and logs (default)
  health                    Run health checks with recommendations

  tasks                     List open tasks (everyone)
  tasks --owner=alex        List one owner's open tasks
  tasks --all --limit=50    List recent rows including completed ones
  tasks --json              Print as JSON

  history --chat=C --user=U Show recent conversation turns
  history --n=20            Number of turns (default 12)

  kv                        Show stored values
  kv <key> <value>          Set a value

  sweep                     Run the maintenance sweep if it is due
  sweep --force             Sweep now regardless of the last run

  logs                      Tail transcript and profiling entries
  logs --truncate=1000      Keep only the last N entries of each log

  activity                  Show recent activity (default 20)
  activity --today          Show today's activity
  activity --message=ID     Show everything done for one message
  activity --type=error     Filter by type (input, interpret, fallback,
                            ingest, operation, reply, error)
  activity --search=milk    Search summaries and details

Environment:
  STATE_PATH                State directory (default: "state")
  RETENTION_DAYS            Completed-task retention (default: 30)`)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func handleSummary(ctx context.Context, inspector *state.Inspector) {
	summary, err := inspector.Summary(ctx)
	if err != nil {
		fatal(err)
	}

	fmt.Println("State Summary")
	fmt.Println("=============")
	fmt.Printf("Open tasks:     %d\n", summary.Tasks.Active)
	owners := make([]string, 0, len(summary.Tasks.ActiveByOwner))
	for owner := range summary.Tasks.ActiveByOwner {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	for _, owner := range owners {
		fmt.Printf("  %-12s  %d\n", owner, summary.Tasks.ActiveByOwner[owner])
	}
	fmt.Printf("Completed:      %d\n", summary.Tasks.Completed)
	fmt.Printf("Turns:          %d in %d conversations\n", summary.Tasks.Turns, summary.Tasks.Conversations)
	fmt.Printf("Archived:       %d rows in %d files\n", summary.Archived, len(summary.Archives))
	fmt.Printf("Transcript:     %d entries\n", summary.Transcript)
	fmt.Printf("Profiling:      %d entries\n", summary.Profiling)
	fmt.Printf("Activity:       %d entries\n", summary.Activity)
	if last, ok := summary.KV[sweep.LastRunKey]; ok {
		fmt.Printf("Last sweep:     %s\n", last)
	} else {
		fmt.Println("Last sweep:     never")
	}
}

func handleHealth(ctx context.Context, inspector *state.Inspector) {
	health, err := inspector.Health(ctx)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("Health Status: %s\n", health.Status)
	if len(health.Warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range health.Warnings {
			fmt.Printf("  - %s\n", w)
		}
	}
	if len(health.Recommendations) > 0 {
		fmt.Println("\nRecommendations:")
		for _, r := range health.Recommendations {
			fmt.Printf("  - %s\n", r)
		}
	}
}

func handleTasks(ctx context.Context, db *tasks.DB, args []string) {
	fs := flag.NewFlagSet("tasks", flag.ExitOnError)
	owner := fs.String("owner", "", "Only this owner's open tasks")
	all := fs.Bool("all", false, "Include completed rows")
	limit := fs.Int("limit", 100, "Maximum rows with --all")
	asJSON := fs.Bool("json", false, "Print JSON")
	fs.Parse(args)

	var (
		list []tasks.Task
		err  error
	)
	if *all {
		list, err = db.All(ctx, *limit)
	} else {
		list, err = db.Active(ctx, *owner)
	}
	if err != nil {
		fatal(err)
	}

	if *asJSON {
		printJSON(list)
		return
	}
	if !*all {
		fmt.Println(resolver.FormatList(list, *owner == ""))
		return
	}
	for _, t := range list {
		status := "open"
		if t.Completed && t.CompletedAt != nil {
			status = "done " + t.CompletedAt.Format("2006-01-02")
		}
		id := t.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Printf("%s  %-16s  %-10s  %-8s  %s\n", id, status, t.Owner, t.Category, t.Title)
	}
}

func handleHistory(ctx context.Context, db *tasks.DB, args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	chat := fs.String("chat", "", "Chat ID")
	user := fs.String("user", "", "User ID")
	n := fs.Int("n", 12, "Number of turns")
	fs.Parse(args)

	if *chat == "" || *user == "" {
		fmt.Fprintln(os.Stderr, "history needs --chat and --user")
		os.Exit(1)
	}
	turns, err := db.RecentTurns(ctx, *chat, *user, *n)
	if err != nil {
		fatal(err)
	}
	for _, turn := range turns {
		fmt.Printf("[%s] %-9s %s\n", turn.Timestamp.Format("2006-01-02 15:04"), turn.Role, strings.ReplaceAll(turn.Content, "\n", "\n                           "))
	}
}

func handleKV(ctx context.Context, db *tasks.DB, args []string) {
	if len(args) == 2 {
		if err := db.SetValue(ctx, args[0], args[1]); err != nil {
			fatal(err)
		}
		fmt.Printf("Set %s\n", args[0])
		return
	}

	values, err := db.Values(ctx)
	if err != nil {
		fatal(err)
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s = %s\n", k, values[k])
	}
}

func handleSweep(ctx context.Context, db *tasks.DB, cfg config.Config, args []string) {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	force := fs.Bool("force", false, "Sweep regardless of the last run")
	fs.Parse(args)

	sweeper := sweep.New(db, db, sweep.NewJSONLArchiver(cfg.StatePath), cfg.Retention())
	run := sweeper.Run
	if *force {
		run = sweeper.Force
	}
	report, err := run(ctx)
	if err != nil {
		fatal(err)
	}
	if !report.Ran {
		fmt.Printf("Sweep skipped (%s), last run %s\n", report.Skipped, report.LastRun.Format("2006-01-02"))
		return
	}
	fmt.Printf("Archived %d, deleted %d", report.Archived, report.Deleted)
	if report.ArchivePath != "" {
		fmt.Printf(" -> %s", report.ArchivePath)
	}
	fmt.Println()
}

func handleLogs(inspector *state.Inspector, args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	truncate := fs.Int("truncate", 0, "Keep only the last N entries")
	count := fs.Int("n", 20, "Entries to show")
	fs.Parse(args)

	if *truncate > 0 {
		if err := inspector.TruncateLogs(*truncate); err != nil {
			fatal(err)
		}
		fmt.Printf("Truncated logs to %d entries\n", *truncate)
		return
	}
	printJSON(inspector.TailLogs(*count))
}

func handleActivity(trail *activity.Log, args []string) {
	fs := flag.NewFlagSet("activity", flag.ExitOnError)
	n := fs.Int("n", 20, "Number of entries")
	today := fs.Bool("today", false, "Only today's entries")
	message := fs.String("message", "", "Entries for one message ID")
	typ := fs.String("type", "", "Filter by type")
	search := fs.String("search", "", "Search text")
	asJSON := fs.Bool("json", false, "Print JSON")
	fs.Parse(args)

	var (
		entries []activity.Entry
		err     error
	)
	switch {
	case *message != "":
		entries, err = trail.ForMessage(*message)
	case *search != "":
		entries, err = trail.Search(*search, *n)
	case *typ != "":
		entries, err = trail.ByType(activity.Type(*typ), *n)
	case *today:
		entries, err = trail.Today()
	default:
		entries, err = trail.Recent(*n)
	}
	if err != nil {
		fatal(err)
	}

	if *asJSON {
		printJSON(entries)
		return
	}
	for _, e := range entries {
		fmt.Printf("[%s] %-9s %s", e.Timestamp.Format("01-02 15:04:05"), e.Type, e.Summary)
		if e.Actor != "" {
			fmt.Printf(" (%s)", e.Actor)
		}
		if len(e.Data) > 0 {
			data, _ := json.Marshal(e.Data)
			fmt.Printf(" %s", data)
		}
		fmt.Println()
	}
}
