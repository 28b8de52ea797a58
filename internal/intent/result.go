// Package intent turns a chat message into a validated, typed result:
// an optional reply, new-task descriptors and operation descriptors.
package intent

import (
	"strings"

	"github.com/vthunder/chorebot/internal/tasks"
)

// Kind tags which parts of a Result are populated
type Kind int

const (
	KindReply      Kind = iota // reply text only
	KindTasks                  // new tasks (reply optional)
	KindOperations             // operations (reply optional)
	KindMixed                  // new tasks and operations
)

func (k Kind) String() string {
	switch k {
	case KindTasks:
		return "tasks"
	case KindOperations:
		return "operations"
	case KindMixed:
		return "mixed"
	default:
		return "reply"
	}
}

// OpType is an operation the resolver knows how to apply
type OpType string

const (
	OpList     OpType = "list"
	OpComplete OpType = "complete"
	OpDelete   OpType = "delete"
	OpClearAll OpType = "clear_all"
	OpEdit     OpType = "edit"
	OpSuggest  OpType = "suggest"
)

// opSynonyms folds the names models tend to invent onto OpType
var opSynonyms = map[string]OpType{
	"list":       OpList,
	"show":       OpList,
	"show_tasks": OpList,
	"list_tasks": OpList,
	"complete":   OpComplete,
	"done":       OpComplete,
	"finish":     OpComplete,
	"check":      OpComplete,
	"mark_done":  OpComplete,
	"delete":     OpDelete,
	"remove":     OpDelete,
	"drop":       OpDelete,
	"clear_all":  OpClearAll,
	"clear":      OpClearAll,
	"clearall":   OpClearAll,
	"edit":       OpEdit,
	"update":     OpEdit,
	"change":     OpEdit,
	"modify":     OpEdit,
	"suggest":    OpSuggest,
	"query":      OpSuggest,
	"recommend":  OpSuggest,
}

// ParseOpType normalizes an operation name. ok is false for unknown names.
func ParseOpType(s string) (OpType, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	op, ok := opSynonyms[key]
	return op, ok
}

// Scope selects whose tasks a list operation covers
type Scope string

const (
	ScopePersonal Scope = "personal"
	ScopeAll      Scope = "all"
)

// NewTask describes a task to create. Optional fields stay nil unless the
// message actually said something about them.
type NewTask struct {
	Title      string           `json:"title"`
	WhenText   *string          `json:"when_text,omitempty"`
	WhereText  *string          `json:"where_text,omitempty"`
	Category   tasks.Category   `json:"category,omitempty"`
	Importance tasks.Importance `json:"importance,omitempty"`
	Who        string           `json:"who,omitempty"`
}

// Details carries the fields an edit wants to change. A non-nil empty
// WhenText or WhereText clears that field.
type Details struct {
	Title      *string           `json:"title,omitempty"`
	Who        *string           `json:"who,omitempty"`
	WhenText   *string           `json:"when_text,omitempty"`
	WhereText  *string           `json:"where_text,omitempty"`
	Importance *tasks.Importance `json:"importance,omitempty"`
	Category   *tasks.Category   `json:"category,omitempty"`
}

// Empty reports whether no recognized field is present
func (d Details) Empty() bool {
	return d.Title == nil && d.Who == nil && d.WhenText == nil && d.WhereText == nil &&
		d.Importance == nil && d.Category == nil
}

// Operation is one instruction for the resolver
type Operation struct {
	Type       OpType  `json:"type"`
	Target     string  `json:"target,omitempty"`
	Details    Details `json:"details"`
	Scope      Scope   `json:"scope,omitempty"`
	MaxMinutes int     `json:"max_minutes,omitempty"`
	AtLocation string  `json:"at_location,omitempty"`
	Count      int     `json:"count,omitempty"`
}

// Result is a validated interpretation
type Result struct {
	Kind       Kind        `json:"kind"`
	Reply      string      `json:"reply,omitempty"`
	Tasks      []NewTask   `json:"new_tasks,omitempty"`
	Operations []Operation `json:"operations,omitempty"`
}

// Empty reports whether the result carries nothing at all
func (r Result) Empty() bool {
	return r.Reply == "" && len(r.Tasks) == 0 && len(r.Operations) == 0
}

// Validate repairs what it can and drops what it cannot: tasks without a
// title, operations of unknown type. Blank optional strings become nil and
// enum values are normalized. The returned Result has its Kind set.
func (r Result) Validate() Result {
	out := Result{Reply: strings.TrimSpace(r.Reply)}

	for _, t := range r.Tasks {
		t.Title = collapse(t.Title)
		if t.Title == "" {
			continue
		}
		t.WhenText = optional(t.WhenText)
		t.WhereText = optional(t.WhereText)
		t.Category = normalizeCategory(t.Category)
		t.Importance = normalizeImportance(t.Importance)
		t.Who = strings.TrimSpace(t.Who)
		out.Tasks = append(out.Tasks, t)
	}

	for _, op := range r.Operations {
		typ, ok := ParseOpType(string(op.Type))
		if !ok {
			continue
		}
		op.Type = typ
		op.Target = collapse(op.Target)
		op.AtLocation = strings.TrimSpace(op.AtLocation)
		if op.MaxMinutes < 0 {
			op.MaxMinutes = 0
		}
		if op.Count < 0 {
			op.Count = 0
		}
		switch strings.ToLower(string(op.Scope)) {
		case "all", "alle", "everyone", "global", "shared":
			op.Scope = ScopeAll
		default:
			op.Scope = ScopePersonal
		}
		op.Details = op.Details.validate()
		out.Operations = append(out.Operations, op)
	}

	switch {
	case len(out.Tasks) > 0 && len(out.Operations) > 0:
		out.Kind = KindMixed
	case len(out.Tasks) > 0:
		out.Kind = KindTasks
	case len(out.Operations) > 0:
		out.Kind = KindOperations
	default:
		out.Kind = KindReply
	}
	return out
}

func (d Details) validate() Details {
	var out Details
	if d.Title != nil {
		if title := collapse(*d.Title); title != "" {
			out.Title = &title
		}
	}
	if d.Who != nil {
		if who := strings.TrimSpace(*d.Who); who != "" {
			out.Who = &who
		}
	}
	// Empty strings survive here: they mean "clear this field"
	if d.WhenText != nil {
		v := strings.TrimSpace(*d.WhenText)
		out.WhenText = &v
	}
	if d.WhereText != nil {
		v := strings.TrimSpace(*d.WhereText)
		out.WhereText = &v
	}
	if d.Importance != nil {
		if imp, ok := tasks.ParseImportance(string(*d.Importance)); ok {
			out.Importance = &imp
		}
	}
	if d.Category != nil {
		if cat, ok := tasks.ParseCategory(string(*d.Category)); ok {
			out.Category = &cat
		}
	}
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func optional(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	switch strings.ToLower(v) {
	case "", "null", "none", "n/a":
		return nil
	}
	return &v
}

func normalizeCategory(c tasks.Category) tasks.Category {
	cat, _ := tasks.ParseCategory(string(c))
	return cat
}

func normalizeImportance(i tasks.Importance) tasks.Importance {
	imp, _ := tasks.ParseImportance(string(i))
	return imp
}
