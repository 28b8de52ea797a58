// Package sweep archives and removes completed tasks once they are older than
// the retention window.
package sweep

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vthunder/chorebot/internal/logging"
	"github.com/vthunder/chorebot/internal/tasks"
)

const (
	// LastRunKey is the kv entry holding the last completed sweep (RFC3339)
	LastRunKey = "sweep.last_run"

	DefaultInterval  = 24 * time.Hour
	DefaultRetention = 30 * 24 * time.Hour
)

// State is the sweeper's state machine
type State int32

const (
	Idle State = iota
	Sweeping
)

func (s State) String() string {
	if s == Sweeping {
		return "sweeping"
	}
	return "idle"
}

// Store is the part of the task store a sweep needs
type Store interface {
	CompletedBefore(ctx context.Context, cutoff time.Time) ([]tasks.Task, error)
	DeleteMany(ctx context.Context, ids []string) (int, error)
}

// Report describes one trigger
type Report struct {
	Ran         bool
	Skipped     string // why nothing ran: "busy" or "not due"
	Archived    int
	Deleted     int
	ArchivePath string
	LastRun     time.Time
}

// Sweeper runs the archive-then-delete cycle
type Sweeper struct {
	store     Store
	kv        tasks.KV
	archiver  Archiver
	retention time.Duration
	state     atomic.Int32
	now       func() time.Time

	wg sync.WaitGroup
}

// New creates a sweeper. retention <= 0 uses DefaultRetention.
func New(store Store, kv tasks.KV, archiver Archiver, retention time.Duration) *Sweeper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Sweeper{
		store:     store,
		kv:        kv,
		archiver:  archiver,
		retention: retention,
		now:       time.Now,
	}
}

// State returns the current state
func (s *Sweeper) State() State {
	return State(s.state.Load())
}

// Run sweeps if the last run is older than the retention window
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	return s.run(ctx, false)
}

// Force sweeps regardless of when the last run was
func (s *Sweeper) Force(ctx context.Context) (Report, error) {
	return s.run(ctx, true)
}

func (s *Sweeper) run(ctx context.Context, force bool) (Report, error) {
	if !s.state.CompareAndSwap(int32(Idle), int32(Sweeping)) {
		return Report{Skipped: "busy"}, nil
	}
	defer s.state.Store(int32(Idle))

	now := s.now()
	if !force {
		last, ok, err := s.lastRun(ctx)
		if err != nil {
			return Report{}, err
		}
		if ok && now.Sub(last) < s.retention {
			return Report{Skipped: "not due", LastRun: last}, nil
		}
	}

	cutoff := now.Add(-s.retention)
	rows, err := s.store.CompletedBefore(ctx, cutoff)
	if err != nil {
		return Report{}, fmt.Errorf("select completed tasks: %w", err)
	}

	report := Report{Ran: true, LastRun: now}
	if len(rows) > 0 {
		// Archive first; on failure the live rows stay untouched
		path, err := s.archiver.Archive(ctx, now, rows)
		if err != nil {
			return Report{}, fmt.Errorf("archive %d tasks: %w", len(rows), err)
		}
		report.Archived = len(rows)
		report.ArchivePath = path

		ids := make([]string, len(rows))
		for i, t := range rows {
			ids[i] = t.ID
		}
		n, err := s.store.DeleteMany(ctx, ids)
		if err != nil {
			return report, fmt.Errorf("delete archived tasks: %w", err)
		}
		report.Deleted = n
	}

	if err := s.kv.SetValue(ctx, LastRunKey, now.UTC().Format(time.RFC3339)); err != nil {
		return report, fmt.Errorf("record last run: %w", err)
	}

	logging.Info("sweep", "archived %d, deleted %d completed tasks older than %s",
		report.Archived, report.Deleted, cutoff.Format("2006-01-02"))
	return report, nil
}

func (s *Sweeper) lastRun(ctx context.Context) (time.Time, bool, error) {
	value, ok, err := s.kv.GetValue(ctx, LastRunKey)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	last, err := time.Parse(time.RFC3339, value)
	if err != nil {
		logging.Warn("sweep", "ignoring unreadable %s %q: %v", LastRunKey, value, err)
		return time.Time{}, false, nil
	}
	return last, true, nil
}

// Start triggers Run once now and then every interval until ctx is done
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if _, err := s.Run(ctx); err != nil {
				logging.Error("sweep", "sweep failed: %v", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Wait blocks until a started sweeper has stopped
func (s *Sweeper) Wait() {
	s.wg.Wait()
}
