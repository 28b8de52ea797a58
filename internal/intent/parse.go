package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/vthunder/chorebot/internal/tasks"
)

var (
	// ErrUnparseable means the model answered but nothing usable could be extracted
	ErrUnparseable = errors.New("unparseable interpretation")
	// ErrNoProvider means no language model is configured
	ErrNoProvider = errors.New("no language model provider configured")
)

// rawResult is the wire shape the model is asked to produce
type rawResult struct {
	Reply      *string   `json:"reply"`
	NewTasks   []rawTask `json:"new_tasks"`
	Tasks      []rawTask `json:"tasks"`
	Operations []rawOp   `json:"operations"`
}

type rawTask struct {
	Title      string  `json:"title"`
	WhenText   *string `json:"when_text"`
	WhereText  *string `json:"where_text"`
	Category   string  `json:"category"`
	Importance string  `json:"importance"`
	Who        string  `json:"who"`
}

type rawOp struct {
	Type       string         `json:"type"`
	Target     string         `json:"target"`
	Details    map[string]any `json:"details"`
	Scope      string         `json:"scope"`
	MaxMinutes flexInt        `json:"max_minutes"`
	AtLocation string         `json:"at_location"`
	Count      flexInt        `json:"count"`
}

// flexInt accepts 30, 30.0 and "30"
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		*f = flexInt(n)
		return nil
	}
	fl, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", data)
	}
	*f = flexInt(fl)
	return nil
}

// Parse turns raw model output into a validated Result. Code fences and
// surrounding prose are stripped; malformed JSON is salvaged field by field.
// Output without any JSON object is treated as a plain reply.
func Parse(output string) (Result, error) {
	text := strings.TrimSpace(output)
	if text == "" {
		return Result{}, ErrUnparseable
	}

	doc, ok := extractJSON(text)
	if !ok {
		return Result{Kind: KindReply, Reply: text}, nil
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		salvaged, found := salvage(doc)
		if !found {
			return Result{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
		}
		raw = salvaged
	}

	return raw.toResult().Validate(), nil
}

// extractJSON pulls the outermost JSON object out of a model response
func extractJSON(s string) (string, bool) {
	if start := strings.Index(s, "```json"); start != -1 {
		start += len("```json")
		if end := strings.Index(s[start:], "```"); end != -1 {
			s = s[start : start+end]
		}
	} else if start := strings.Index(s, "```"); start != -1 {
		start += len("```")
		if end := strings.Index(s[start:], "```"); end != -1 {
			s = s[start : start+end]
		}
	}

	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}
	end := strings.LastIndex(s, "}")
	if end < start {
		return strings.TrimSpace(s[start:]), true
	}
	return strings.TrimSpace(s[start : end+1]), true
}

// salvage reads whatever fields gjson can still locate in a broken document
func salvage(doc string) (rawResult, bool) {
	var (
		raw   rawResult
		found bool
	)
	root := gjson.Parse(doc)

	if v := root.Get("reply"); v.Exists() && v.Type == gjson.String {
		reply := v.String()
		raw.Reply = &reply
		found = true
	}

	list := root.Get("new_tasks")
	if !list.Exists() {
		list = root.Get("tasks")
	}
	if list.IsArray() {
		found = true
		for _, t := range list.Array() {
			raw.NewTasks = append(raw.NewTasks, rawTask{
				Title:      t.Get("title").String(),
				WhenText:   gjsonString(t.Get("when_text")),
				WhereText:  gjsonString(t.Get("where_text")),
				Category:   t.Get("category").String(),
				Importance: t.Get("importance").String(),
				Who:        t.Get("who").String(),
			})
		}
	}

	if ops := root.Get("operations"); ops.IsArray() {
		found = true
		for _, o := range ops.Array() {
			op := rawOp{
				Type:       o.Get("type").String(),
				Target:     o.Get("target").String(),
				Scope:      o.Get("scope").String(),
				MaxMinutes: flexInt(o.Get("max_minutes").Int()),
				AtLocation: o.Get("at_location").String(),
				Count:      flexInt(o.Get("count").Int()),
			}
			if d := o.Get("details"); d.IsObject() {
				op.Details = make(map[string]any)
				d.ForEach(func(k, v gjson.Result) bool {
					if v.Type == gjson.Null {
						op.Details[k.String()] = nil
					} else {
						op.Details[k.String()] = v.String()
					}
					return true
				})
			}
			raw.Operations = append(raw.Operations, op)
		}
	}

	return raw, found
}

func gjsonString(v gjson.Result) *string {
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	s := v.String()
	return &s
}

func (r rawResult) toResult() Result {
	var out Result
	if r.Reply != nil {
		out.Reply = *r.Reply
	}
	for _, t := range append(r.NewTasks, r.Tasks...) {
		out.Tasks = append(out.Tasks, NewTask{
			Title:      t.Title,
			WhenText:   t.WhenText,
			WhereText:  t.WhereText,
			Category:   tasks.Category(t.Category),
			Importance: tasks.Importance(t.Importance),
			Who:        t.Who,
		})
	}
	for _, o := range r.Operations {
		out.Operations = append(out.Operations, Operation{
			Type:       OpType(o.Type),
			Target:     o.Target,
			Details:    detailsFromMap(o.Details),
			Scope:      Scope(o.Scope),
			MaxMinutes: int(o.MaxMinutes),
			AtLocation: o.AtLocation,
			Count:      int(o.Count),
		})
	}
	return out
}

// detailsFromMap keeps recognized keys only. An explicit null for a when or
// where key is read as a request to clear it.
func detailsFromMap(m map[string]any) Details {
	var d Details
	for key, value := range m {
		var s *string
		if value != nil {
			v := fmt.Sprint(value)
			s = &v
		}
		switch strings.ToLower(key) {
		case "title", "name":
			d.Title = s
		case "who", "owner", "assignee":
			d.Who = s
		case "when_text", "when", "due":
			d.WhenText = clearable(s)
		case "where_text", "where", "location":
			d.WhereText = clearable(s)
		case "importance", "priority":
			if s != nil {
				imp := tasks.Importance(*s)
				d.Importance = &imp
			}
		case "category":
			if s != nil {
				cat := tasks.Category(*s)
				d.Category = &cat
			}
		}
	}
	return d
}

func clearable(s *string) *string {
	if s == nil {
		empty := ""
		return &empty
	}
	return s
}
