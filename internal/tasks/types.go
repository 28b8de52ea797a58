package tasks

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Importance ranks how soon a task should be done
type Importance string

const (
	ImportanceUrgent Importance = "urgent"
	ImportanceNormal Importance = "normal"
	ImportanceLow    Importance = "low"
)

// Rank orders importance for sorting (lower sorts first)
func (i Importance) Rank() int {
	switch i {
	case ImportanceUrgent:
		return 0
	case ImportanceLow:
		return 2
	default:
		return 1
	}
}

// ParseImportance maps free-form input onto the enum. ok is false for
// unrecognized values so callers can decide whether to default or ignore.
func ParseImportance(s string) (Importance, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "urgent", "high", "asap", "dringend", "wichtig":
		return ImportanceUrgent, true
	case "normal", "medium", "":
		return ImportanceNormal, s != ""
	case "low", "later", "niedrig", "unwichtig":
		return ImportanceLow, true
	}
	return ImportanceNormal, false
}

// Category groups tasks for listing and bulk shortcuts
type Category string

const (
	CategoryShopping  Category = "shopping"
	CategoryHousehold Category = "household"
	CategoryWork      Category = "work"
	CategoryPersonal  Category = "personal"
	CategoryGeneral   Category = "general"
)

// Categories lists every category in display order
var Categories = []Category{
	CategoryShopping,
	CategoryHousehold,
	CategoryWork,
	CategoryPersonal,
	CategoryGeneral,
}

// Rank orders categories for listing
func (c Category) Rank() int {
	for i, cat := range Categories {
		if cat == c {
			return i
		}
	}
	return len(Categories)
}

// ParseCategory maps free-form input onto the enum
func ParseCategory(s string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shopping", "einkaufen", "einkauf", "groceries":
		return CategoryShopping, true
	case "household", "cleaning", "household/cleaning", "haushalt", "putzen", "chores":
		return CategoryHousehold, true
	case "work", "arbeit", "job":
		return CategoryWork, true
	case "personal", "privat", "persönlich":
		return CategoryPersonal, true
	case "general", "allgemein":
		return CategoryGeneral, true
	}
	return CategoryGeneral, false
}

// Task is a unit of household work.
// A task is either active (Completed=false, CompletedAt=nil) or completed
// (Completed=true, CompletedAt set). There is no state in between.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Owner       string     `json:"owner"`
	WhenText    *string    `json:"when_text"`
	WhereText   *string    `json:"where_text"`
	Importance  Importance `json:"importance"`
	Category    Category   `json:"category"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
	CompletedBy *string    `json:"completed_by"`
}

// Active reports whether the task is still open
func (t Task) Active() bool {
	return !t.Completed
}

// Where returns where_text or "" when unset
func (t Task) Where() string {
	if t.WhereText == nil {
		return ""
	}
	return *t.WhereText
}

// When returns when_text or "" when unset
func (t Task) When() string {
	if t.WhenText == nil {
		return ""
	}
	return *t.WhenText
}

// Patch is a partial update. Nil fields are left untouched; ClearWhen and
// ClearWhere null the corresponding column.
type Patch struct {
	Title      *string
	Owner      *string
	WhenText   *string
	WhereText  *string
	ClearWhen  bool
	ClearWhere bool
	Importance *Importance
	Category   *Category
}

// Empty reports whether the patch would change nothing
func (p Patch) Empty() bool {
	return p.Title == nil && p.Owner == nil && p.WhenText == nil && p.WhereText == nil &&
		!p.ClearWhen && !p.ClearWhere && p.Importance == nil && p.Category == nil
}

// Apply returns a copy of t with the patch applied
func (p Patch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Owner != nil {
		t.Owner = *p.Owner
	}
	if p.ClearWhen {
		t.WhenText = nil
	} else if p.WhenText != nil {
		v := *p.WhenText
		t.WhenText = &v
	}
	if p.ClearWhere {
		t.WhereText = nil
	} else if p.WhereText != nil {
		v := *p.WhereText
		t.WhereText = &v
	}
	if p.Importance != nil {
		t.Importance = *p.Importance
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	return t
}

// Actor is the person a message came from. Tasks are owned by name so that
// "give the floor to Sam" and Sam's own messages refer to the same owner.
type Actor struct {
	ID   string
	Name string
}

// Owner is the owner string used for tasks this actor creates or acts on
func (a Actor) Owner() string {
	if name := strings.TrimSpace(a.Name); name != "" {
		return name
	}
	return a.ID
}

// Turn is one persisted conversation exchange
type Turn struct {
	ChatID    string    `json:"chat_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"` // user, assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNotFound is returned when a task id does not exist (or is no longer active)
var ErrNotFound = errors.New("task not found")

// Store is the task persistence boundary. Every multi-row mutation runs in a
// single transaction.
type Store interface {
	// Active returns active tasks; owner "" means every owner
	Active(ctx context.Context, owner string) ([]Task, error)
	Get(ctx context.Context, id string) (*Task, error)

	// Insert adds tasks in one transaction, skipping rows that hit the
	// active-title uniqueness constraint. Returns the rows actually inserted.
	Insert(ctx context.Context, batch []Task) ([]Task, error)

	// Complete marks the given active tasks completed. Already-completed ids
	// are skipped. Returns the number of rows changed.
	Complete(ctx context.Context, ids []string, by string, at time.Time) (int, error)
	Update(ctx context.Context, id string, patch Patch) (*Task, error)
	Delete(ctx context.Context, id string) error

	// CompletedBefore lists completed tasks whose completed_at is before cutoff
	CompletedBefore(ctx context.Context, cutoff time.Time) ([]Task, error)
	DeleteMany(ctx context.Context, ids []string) (int, error)
}

// HistoryStore persists conversation turns
type HistoryStore interface {
	AppendTurn(ctx context.Context, turn Turn, keep int) error
	RecentTurns(ctx context.Context, chatID, userID string, n int) ([]Turn, error)
}

// KV holds process-wide scalar state such as the last sweep time
type KV interface {
	GetValue(ctx context.Context, key string) (string, bool, error)
	SetValue(ctx context.Context, key, value string) error
}
