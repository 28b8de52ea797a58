package sweep

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vthunder/chorebot/internal/tasks"
)

// Archiver writes swept rows somewhere durable before they are deleted
type Archiver interface {
	Archive(ctx context.Context, runAt time.Time, rows []tasks.Task) (string, error)
}

// Record is one archived task line
type Record struct {
	ArchivedAt time.Time  `json:"archived_at"`
	Task       tasks.Task `json:"task"`
}

// JSONLArchiver appends full row snapshots to dir/tasks-YYYY-MM-DD.jsonl
type JSONLArchiver struct {
	dir string
	mu  sync.Mutex
}

// NewJSONLArchiver creates an archiver writing under statePath/archive
func NewJSONLArchiver(statePath string) *JSONLArchiver {
	return &JSONLArchiver{dir: filepath.Join(statePath, "archive")}
}

// PathFor returns the archive file for a run date
func (a *JSONLArchiver) PathFor(runAt time.Time) string {
	return filepath.Join(a.dir, "tasks-"+runAt.Format("2006-01-02")+".jsonl")
}

// Archive appends rows and syncs the file before returning
func (a *JSONLArchiver) Archive(ctx context.Context, runAt time.Time, rows []tasks.Task) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive dir: %w", err)
	}

	path := a.PathFor(runAt)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := enc.Encode(Record{ArchivedAt: runAt, Task: row}); err != nil {
			return "", fmt.Errorf("failed to write archive: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync archive: %w", err)
	}
	return path, nil
}
