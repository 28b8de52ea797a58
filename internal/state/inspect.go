package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vthunder/chorebot/internal/activity"
	"github.com/vthunder/chorebot/internal/sweep"
	"github.com/vthunder/chorebot/internal/tasks"
)

// Log files the inspector knows about, relative to the state path
const (
	TranscriptLog = "system/transcript.jsonl"
	ProfilingLog  = "system/profiling.jsonl"
	ActivityLog   = activity.File
)

// Inspector provides state introspection capabilities
type Inspector struct {
	statePath string
	db        *tasks.DB
	retention time.Duration
	now       func() time.Time
}

// NewInspector creates a new state inspector
func NewInspector(statePath string, db *tasks.DB, retention time.Duration) *Inspector {
	if retention <= 0 {
		retention = sweep.DefaultRetention
	}
	return &Inspector{statePath: statePath, db: db, retention: retention, now: time.Now}
}

// ArchiveFile is one sweep archive
type ArchiveFile struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
}

// StateSummary holds summary of all state
type StateSummary struct {
	Tasks      tasks.Stats       `json:"tasks"`
	KV         map[string]string `json:"kv"`
	Archives   []ArchiveFile     `json:"archives"`
	Archived   int               `json:"archived_rows"`
	Transcript int               `json:"transcript_entries"`
	Profiling  int               `json:"profiling_entries"`
	Activity   int               `json:"activity_entries"`
}

// HealthReport holds health check results
type HealthReport struct {
	Status          string   `json:"status"` // "healthy", "warnings"
	Warnings        []string `json:"warnings,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Summary returns a summary of all state components
func (i *Inspector) Summary(ctx context.Context) (*StateSummary, error) {
	stats, err := i.db.Stats(ctx)
	if err != nil {
		return nil, err
	}
	kv, err := i.db.Values(ctx)
	if err != nil {
		return nil, err
	}
	archives, err := i.ListArchives()
	if err != nil {
		return nil, err
	}

	summary := &StateSummary{
		Tasks:      *stats,
		KV:         kv,
		Archives:   archives,
		Transcript: i.countJSONL(TranscriptLog),
		Profiling:  i.countJSONL(ProfilingLog),
		Activity:   i.countJSONL(ActivityLog),
	}
	for _, a := range archives {
		summary.Archived += a.Rows
	}
	return summary, nil
}

// Health runs health checks and returns a report
func (i *Inspector) Health(ctx context.Context) (*HealthReport, error) {
	report := &HealthReport{Status: "healthy"}

	summary, err := i.Summary(ctx)
	if err != nil {
		return nil, err
	}

	stale, err := i.db.CompletedBefore(ctx, i.now().Add(-i.retention))
	if err != nil {
		return nil, err
	}

	lastRun, hasRun := summary.KV[sweep.LastRunKey]
	if len(stale) > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d completed tasks are older than the retention window", len(stale)))
		report.Recommendations = append(report.Recommendations, "Run `chorebot-state sweep --force`")
	}
	if hasRun {
		if t, err := time.Parse(time.RFC3339, lastRun); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("Unreadable %s: %q", sweep.LastRunKey, lastRun))
		} else if i.now().Sub(t) > 2*i.retention {
			report.Warnings = append(report.Warnings, fmt.Sprintf("Last sweep was %s", t.Format("2006-01-02")))
			report.Recommendations = append(report.Recommendations, "Check that the bot process is running its sweep")
		}
	}

	if summary.Tasks.Active > 200 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("High open task count: %d", summary.Tasks.Active))
		report.Recommendations = append(report.Recommendations, "Consider clearing tasks nobody will do")
	}

	if summary.Transcript > 10000 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Large transcript: %d entries", summary.Transcript))
		report.Recommendations = append(report.Recommendations, "Truncate with `chorebot-state logs --truncate=1000`")
	}

	if len(report.Warnings) > 0 {
		report.Status = "warnings"
	}
	return report, nil
}

// ListArchives returns the sweep archive files, oldest first
func (i *Inspector) ListArchives() ([]ArchiveFile, error) {
	dir := filepath.Join(i.statePath, "archive")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read archive dir: %w", err)
	}

	var files []ArchiveFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		files = append(files, ArchiveFile{
			Name: e.Name(),
			Rows: i.countJSONL(filepath.Join("archive", e.Name())),
		})
	}
	sort.Slice(files, func(a, b int) bool { return files[a].Name < files[b].Name })
	return files, nil
}

// TailLogs returns the last count transcript and profiling entries
func (i *Inspector) TailLogs(count int) map[string][]map[string]any {
	return map[string][]map[string]any{
		"transcript": i.tailJSONL(TranscriptLog, count),
		"profiling":  i.tailJSONL(ProfilingLog, count),
		"activity":   i.tailJSONL(ActivityLog, count),
	}
}

// TruncateLogs keeps only the last keep entries of each log
func (i *Inspector) TruncateLogs(keep int) error {
	for _, name := range []string{TranscriptLog, ProfilingLog, ActivityLog} {
		if err := i.truncateJSONL(name, keep); err != nil {
			return fmt.Errorf("truncate %s: %w", name, err)
		}
	}
	return nil
}

func (i *Inspector) readLines(name string) ([]string, error) {
	file, err := os.Open(filepath.Join(i.statePath, name))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func (i *Inspector) countJSONL(name string) int {
	lines, _ := i.readLines(name)
	return len(lines)
}

func (i *Inspector) tailJSONL(name string, count int) []map[string]any {
	lines, _ := i.readLines(name)
	if len(lines) > count {
		lines = lines[len(lines)-count:]
	}

	var result []map[string]any
	for _, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err == nil {
			result = append(result, entry)
		}
	}
	return result
}

func (i *Inspector) truncateJSONL(name string, keep int) error {
	lines, err := i.readLines(name)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(lines) <= keep {
		return nil
	}
	lines = lines[len(lines)-keep:]

	content := ""
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}
	return os.WriteFile(filepath.Join(i.statePath, name), []byte(content), 0644)
}
