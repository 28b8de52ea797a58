package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/chorebot/internal/intent"
	"github.com/vthunder/chorebot/internal/logging"
	"github.com/vthunder/chorebot/internal/resolver"
	"github.com/vthunder/chorebot/internal/tasks"
)

// RegisterAll adds every tool to s
func RegisterAll(s *server.MCPServer, deps *Dependencies) {
	h := &handlers{deps: deps}

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List open household tasks, most important first."),
		mcp.WithString("owner", mcp.Required(), mcp.Description("Name of the person asking")),
		mcp.WithString("scope", mcp.Description("personal (default) or all for everyone's tasks")),
	), h.listTasks)

	s.AddTool(mcp.NewTool("add_task",
		mcp.WithDescription("Add a task. Duplicates of an open task with the same title are skipped."),
		mcp.WithString("owner", mcp.Required(), mcp.Description("Name of the person adding the task")),
		mcp.WithString("title", mcp.Required(), mcp.Description("What needs doing, e.g. \"Buy milk\"")),
		mcp.WithString("who", mcp.Description("Assign to someone else by name")),
		mcp.WithString("when", mcp.Description("Free-form time, only if the user said one")),
		mcp.WithString("where", mcp.Description("Free-form place, only if the user said one")),
		mcp.WithString("category", mcp.Description("shopping, household, work, personal or general")),
		mcp.WithString("importance", mcp.Description("urgent, normal or low")),
	), h.addTask)

	s.AddTool(mcp.NewTool("complete_task",
		mcp.WithDescription("Mark a task done by a phrase (\"milk\") or a bulk phrase (\"everything at Edeka\")."),
		mcp.WithString("owner", mcp.Required(), mcp.Description("Name of the person who did it")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Phrase naming the task")),
	), h.operation(intent.OpComplete))

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Remove a task that will not be done."),
		mcp.WithString("owner", mcp.Required(), mcp.Description("Name of the task owner")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Phrase naming the task")),
	), h.operation(intent.OpDelete))

	s.AddTool(mcp.NewTool("edit_task",
		mcp.WithDescription("Change fields of a task. An empty when or where clears it."),
		mcp.WithString("owner", mcp.Required(), mcp.Description("Name of the task owner")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Phrase naming the task")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("who", mcp.Description("New owner")),
		mcp.WithString("when", mcp.Description("New time text")),
		mcp.WithString("where", mcp.Description("New place text")),
		mcp.WithString("category", mcp.Description("New category")),
		mcp.WithString("importance", mcp.Description("New importance")),
	), h.editTask)

	s.AddTool(mcp.NewTool("suggest_tasks",
		mcp.WithDescription("Suggest tasks to do now, optionally within a time budget or at a place."),
		mcp.WithString("owner", mcp.Required(), mcp.Description("Name of the person asking")),
		mcp.WithNumber("max_minutes", mcp.Description("Time available in minutes")),
		mcp.WithString("at_location", mcp.Description("Where the person is, e.g. home or Edeka")),
		mcp.WithNumber("count", mcp.Description("How many suggestions (default 3)")),
	), h.suggestTasks)

	if deps.Reflex != nil {
		s.AddTool(mcp.NewTool("list_reflexes",
			mcp.WithDescription("List the keyword rules used when the language model is unavailable."),
		), h.listReflexes)
	}
}

type handlers struct {
	deps *Dependencies
}

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	if args == nil {
		return map[string]any{}
	}
	return args
}

func actorFrom(args map[string]any) (tasks.Actor, bool) {
	owner, _ := args["owner"].(string)
	owner = strings.TrimSpace(owner)
	return tasks.Actor{ID: owner, Name: owner}, owner != ""
}

// optional returns a pointer for keys that are present, even when empty
func optional(args map[string]any, key string) *string {
	v, ok := args[key].(string)
	if !ok {
		return nil
	}
	v = strings.TrimSpace(v)
	return &v
}

func number(args map[string]any, key string) int {
	if n, ok := args[key].(float64); ok && n > 0 {
		return int(n)
	}
	return 0
}

func text(res resolver.Result) *mcp.CallToolResult {
	if res.Outcome == resolver.OutcomeFailed {
		return mcp.NewToolResultError(res.Message())
	}
	return mcp.NewToolResultText(res.Message())
}

func (h *handlers) listTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)
	actor, ok := actorFrom(args)
	if !ok {
		return mcp.NewToolResultError("owner is required"), nil
	}
	scope, _ := args["scope"].(string)
	op := intent.Result{Operations: []intent.Operation{{Type: intent.OpList, Scope: intent.Scope(scope)}}}.Validate()
	return text(h.deps.Resolver.ApplyOne(ctx, actor, op.Operations[0])), nil
}

func (h *handlers) addTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)
	actor, ok := actorFrom(args)
	if !ok {
		return mcp.NewToolResultError("owner is required"), nil
	}
	title, _ := args["title"].(string)
	who, _ := args["who"].(string)
	category, _ := args["category"].(string)
	importance, _ := args["importance"].(string)

	result := intent.Result{Tasks: []intent.NewTask{{
		Title:      title,
		Who:        who,
		WhenText:   optional(args, "when"),
		WhereText:  optional(args, "where"),
		Category:   tasks.Category(category),
		Importance: tasks.Importance(importance),
	}}}.Validate()
	if len(result.Tasks) == 0 {
		return mcp.NewToolResultError("title is required"), nil
	}

	report, err := h.deps.Ingester.Apply(ctx, actor, result.Tasks)
	if err != nil {
		logging.Error("mcp", "add_task failed: %v", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to add task: %v", err)), nil
	}
	return mcp.NewToolResultText(report.Message()), nil
}

func (h *handlers) operation(typ intent.OpType) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := arguments(req)
		actor, ok := actorFrom(args)
		if !ok {
			return mcp.NewToolResultError("owner is required"), nil
		}
		target, _ := args["target"].(string)
		res := h.deps.Resolver.ApplyOne(ctx, actor, intent.Operation{Type: typ, Target: strings.TrimSpace(target)})
		return text(res), nil
	}
}

func (h *handlers) editTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)
	actor, ok := actorFrom(args)
	if !ok {
		return mcp.NewToolResultError("owner is required"), nil
	}
	target, _ := args["target"].(string)

	details := intent.Details{
		Title:     optional(args, "title"),
		Who:       optional(args, "who"),
		WhenText:  optional(args, "when"),
		WhereText: optional(args, "where"),
	}
	if c := optional(args, "category"); c != nil && *c != "" {
		cat := tasks.Category(*c)
		details.Category = &cat
	}
	if i := optional(args, "importance"); i != nil && *i != "" {
		imp := tasks.Importance(*i)
		details.Importance = &imp
	}

	op := intent.Result{Operations: []intent.Operation{{Type: intent.OpEdit, Target: target, Details: details}}}.Validate()
	if len(op.Operations) == 0 {
		return mcp.NewToolResultError("target is required"), nil
	}
	return text(h.deps.Resolver.ApplyOne(ctx, actor, op.Operations[0])), nil
}

func (h *handlers) suggestTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)
	actor, ok := actorFrom(args)
	if !ok {
		return mcp.NewToolResultError("owner is required"), nil
	}
	at, _ := args["at_location"].(string)
	res := h.deps.Resolver.ApplyOne(ctx, actor, intent.Operation{
		Type:       intent.OpSuggest,
		MaxMinutes: number(args, "max_minutes"),
		AtLocation: strings.TrimSpace(at),
		Count:      number(args, "count"),
	})
	return text(res), nil
}

type reflexInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority"`
	Pattern     string `json:"pattern"`
	Op          string `json:"op"`
	FireCount   int    `json:"fire_count"`
}

func (h *handlers) listReflexes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var out []reflexInfo
	for _, r := range h.deps.Reflex.Rules() {
		out = append(out, reflexInfo{
			Name:        r.Name,
			Description: r.Description,
			Priority:    r.Priority,
			Pattern:     r.Trigger.Pattern,
			Op:          r.Op.Type,
			FireCount:   r.FireCount,
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
