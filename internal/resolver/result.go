package resolver

import (
	"fmt"
	"strings"

	"github.com/vthunder/chorebot/internal/intent"
	"github.com/vthunder/chorebot/internal/tasks"
)

// Outcome classifies what an operation did
type Outcome int

const (
	OutcomeListed Outcome = iota
	OutcomeEmpty
	OutcomeCompleted
	OutcomeCleared
	OutcomeDeleted
	OutcomeEdited
	OutcomeSuggested
	OutcomeNothingToChange
	OutcomeDidYouMean
	OutcomeNotFound
	OutcomeNeedTarget
	OutcomeFailed
)

var outcomeNames = map[Outcome]string{
	OutcomeListed:          "listed",
	OutcomeEmpty:           "empty",
	OutcomeCompleted:       "completed",
	OutcomeCleared:         "cleared",
	OutcomeDeleted:         "deleted",
	OutcomeEdited:          "edited",
	OutcomeSuggested:       "suggested",
	OutcomeNothingToChange: "nothing_to_change",
	OutcomeDidYouMean:      "did_you_mean",
	OutcomeNotFound:        "not_found",
	OutcomeNeedTarget:      "need_target",
	OutcomeFailed:          "failed",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Mutated reports whether the outcome changed the store
func (o Outcome) Mutated() bool {
	switch o {
	case OutcomeCompleted, OutcomeCleared, OutcomeDeleted, OutcomeEdited:
		return true
	}
	return false
}

// Result is what one operation did
type Result struct {
	Op         intent.OpType
	Outcome    Outcome
	Target     string
	Scope      intent.Scope
	Tasks      []tasks.Task // listed, suggested or affected tasks
	Count      int          // rows affected, or tasks listed
	Bulk       bool
	Suggestion *tasks.Task // did-you-mean candidate
	Minutes    int         // estimated total for suggestions
	Err        error
}

// Message renders a short confirmation for the chat
func (r Result) Message() string {
	switch r.Outcome {
	case OutcomeListed:
		return FormatList(r.Tasks, r.Scope == intent.ScopeAll)
	case OutcomeEmpty:
		if r.Op == intent.OpSuggest {
			return "Nothing fits right now."
		}
		return "Nothing to do! 🎉"
	case OutcomeCompleted:
		if r.Bulk || r.Count > 1 {
			return fmt.Sprintf("✅ Completed %d tasks: %s", r.Count, titles(r.Tasks))
		}
		return fmt.Sprintf("✅ Done: %s", r.Tasks[0].Title)
	case OutcomeCleared:
		if r.Count == 0 {
			return "Nothing to clear."
		}
		return fmt.Sprintf("✅ Cleared %d tasks.", r.Count)
	case OutcomeDeleted:
		return fmt.Sprintf("🗑️ Deleted: %s", r.Tasks[0].Title)
	case OutcomeEdited:
		return fmt.Sprintf("✏️ Updated: %s", describe(r.Tasks[0], true))
	case OutcomeSuggested:
		var b strings.Builder
		if r.Minutes > 0 {
			fmt.Fprintf(&b, "How about this (about %d min):\n", r.Minutes)
		} else {
			b.WriteString("How about this:\n")
		}
		for _, t := range r.Tasks {
			fmt.Fprintf(&b, "• %s\n", describe(t, false))
		}
		return strings.TrimRight(b.String(), "\n")
	case OutcomeNothingToChange:
		return fmt.Sprintf("Nothing to change for %q.", r.Target)
	case OutcomeDidYouMean:
		return fmt.Sprintf("I couldn't find %q. Did you mean %q?", r.Target, r.Suggestion.Title)
	case OutcomeNotFound:
		return fmt.Sprintf("I couldn't find a task matching %q.", r.Target)
	case OutcomeNeedTarget:
		return "Which task do you mean?"
	default:
		return "Sorry, I couldn't complete that operation."
	}
}

// FormatList renders tasks grouped by importance, then category
func FormatList(list []tasks.Task, showOwner bool) string {
	if len(list) == 0 {
		return "Nothing to do! 🎉"
	}

	var (
		b       strings.Builder
		lastImp tasks.Importance
		lastCat tasks.Category
	)
	for i, t := range list {
		if i == 0 || t.Importance != lastImp {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "%s %s\n", importanceIcon(t.Importance), strings.ToUpper(string(t.Importance)))
			lastCat = ""
		}
		if t.Category != lastCat {
			fmt.Fprintf(&b, "  %s\n", t.Category)
		}
		lastImp, lastCat = t.Importance, t.Category

		line := describe(t, false)
		if showOwner {
			line += " (" + t.Owner + ")"
		}
		fmt.Fprintf(&b, "  • %s\n", line)
	}
	return strings.TrimRight(b.String(), "\n")
}

func importanceIcon(i tasks.Importance) string {
	switch i {
	case tasks.ImportanceUrgent:
		return "🔴"
	case tasks.ImportanceLow:
		return "⚪"
	default:
		return "🟡"
	}
}

func describe(t tasks.Task, withOwner bool) string {
	var extra []string
	if w := t.Where(); w != "" {
		extra = append(extra, "@ "+w)
	}
	if w := t.When(); w != "" {
		extra = append(extra, w)
	}
	if withOwner && t.Owner != "" {
		extra = append(extra, "for "+t.Owner)
	}
	if len(extra) == 0 {
		return t.Title
	}
	return t.Title + " [" + strings.Join(extra, ", ") + "]"
}

func titles(list []tasks.Task) string {
	names := make([]string, len(list))
	for i, t := range list {
		names[i] = t.Title
	}
	return strings.Join(names, ", ")
}
