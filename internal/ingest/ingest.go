// Package ingest turns new-task descriptors into stored tasks: titles are
// normalized, duplicates dropped and survivors inserted in one transaction.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vthunder/chorebot/internal/intent"
	"github.com/vthunder/chorebot/internal/logging"
	"github.com/vthunder/chorebot/internal/tasks"
	"github.com/vthunder/chorebot/internal/vocab"
)

// Ingester inserts new tasks
type Ingester struct {
	store tasks.Store
	vocab *vocab.Vocabulary
	now   func() time.Time
}

// New creates an Ingester. A nil vocabulary uses the built-in one.
func New(store tasks.Store, v *vocab.Vocabulary) *Ingester {
	if v == nil {
		v = vocab.Default()
	}
	return &Ingester{store: store, vocab: v, now: time.Now}
}

// CountClass is the part of a report the reply depends on
type CountClass int

const (
	CountNone CountClass = iota
	CountOne
	CountMany
)

// Report says what an ingestion did
type Report struct {
	Requested int
	Inserted  []tasks.Task
	Skipped   []string // titles dropped as duplicates
}

// Count is the number of tasks actually inserted
func (r Report) Count() int {
	return len(r.Inserted)
}

// Class buckets the count into none, one or many
func (r Report) Class() CountClass {
	switch len(r.Inserted) {
	case 0:
		return CountNone
	case 1:
		return CountOne
	default:
		return CountMany
	}
}

// Message renders the confirmation
func (r Report) Message() string {
	switch r.Class() {
	case CountNone:
		if len(r.Skipped) == 1 {
			return fmt.Sprintf("Already have that: %s", r.Skipped[0])
		}
		return "Already have that."
	case CountOne:
		return fmt.Sprintf("📝 Added: %s", describe(r.Inserted[0]))
	default:
		names := make([]string, len(r.Inserted))
		for i, t := range r.Inserted {
			names[i] = t.Title
		}
		return fmt.Sprintf("📝 Added %d tasks: %s", len(r.Inserted), strings.Join(names, ", "))
	}
}

func describe(t tasks.Task) string {
	var extra []string
	if w := t.Where(); w != "" {
		extra = append(extra, "@ "+w)
	}
	if w := t.When(); w != "" {
		extra = append(extra, w)
	}
	if len(extra) == 0 {
		return t.Title
	}
	return t.Title + " [" + strings.Join(extra, ", ") + "]"
}

// Normalize trims and collapses whitespace, then folds known phrasings onto
// their canonical title
func (in *Ingester) Normalize(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	if canonical, ok := in.vocab.Canonical(title); ok {
		return canonical
	}
	return title
}

func dedupKey(owner, title string) string {
	return owner + "\x00" + strings.ToLower(title)
}

// Apply stores the descriptors for actor. Descriptors that duplicate each
// other or an active task of the same owner are skipped, never an error.
func (in *Ingester) Apply(ctx context.Context, actor tasks.Actor, descs []intent.NewTask) (Report, error) {
	report := Report{Requested: len(descs)}
	if len(descs) == 0 {
		return report, nil
	}

	existing := make(map[string]map[string]bool) // owner -> lowered titles
	activeFor := func(owner string) (map[string]bool, error) {
		if set, ok := existing[owner]; ok {
			return set, nil
		}
		active, err := in.store.Active(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("load active tasks for %s: %w", owner, err)
		}
		set := make(map[string]bool, len(active))
		for _, t := range active {
			set[strings.ToLower(in.Normalize(t.Title))] = true
		}
		existing[owner] = set
		return set, nil
	}

	now := in.now()
	seen := make(map[string]bool)
	var batch []tasks.Task

	for _, d := range descs {
		title := in.Normalize(d.Title)
		if title == "" {
			continue
		}
		owner := actor.Owner()
		if who := strings.TrimSpace(d.Who); who != "" {
			owner = who
		}

		key := dedupKey(owner, title)
		if seen[key] {
			report.Skipped = append(report.Skipped, title)
			continue
		}
		seen[key] = true

		active, err := activeFor(owner)
		if err != nil {
			return report, err
		}
		if active[strings.ToLower(title)] {
			report.Skipped = append(report.Skipped, title)
			continue
		}

		batch = append(batch, tasks.Task{
			ID:         tasks.NewID(),
			Title:      title,
			Owner:      owner,
			WhenText:   d.WhenText,
			WhereText:  d.WhereText,
			Importance: d.Importance,
			Category:   d.Category,
			CreatedBy:  actor.Owner(),
			// Distinct timestamps keep batch order stable in listings
			CreatedAt: now.Add(time.Duration(len(batch))),
		})
	}

	inserted, err := in.store.Insert(ctx, batch)
	if err != nil {
		return report, fmt.Errorf("insert tasks: %w", err)
	}
	report.Inserted = inserted

	// Rows the unique index rejected
	if len(inserted) < len(batch) {
		got := make(map[string]bool, len(inserted))
		for _, t := range inserted {
			got[t.ID] = true
		}
		for _, t := range batch {
			if !got[t.ID] {
				report.Skipped = append(report.Skipped, t.Title)
			}
		}
	}

	logging.Info("ingest", "%s: %d requested, %d inserted, %d skipped",
		actor.Owner(), report.Requested, len(report.Inserted), len(report.Skipped))
	return report, nil
}
