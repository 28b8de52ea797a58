// Package bot turns inbound chat messages into task changes and replies.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vthunder/chorebot/internal/activity"
	"github.com/vthunder/chorebot/internal/ingest"
	"github.com/vthunder/chorebot/internal/intent"
	"github.com/vthunder/chorebot/internal/logging"
	"github.com/vthunder/chorebot/internal/memory"
	"github.com/vthunder/chorebot/internal/profiling"
	"github.com/vthunder/chorebot/internal/resolver"
	"github.com/vthunder/chorebot/internal/tasks"
	"github.com/vthunder/chorebot/internal/types"
)

const (
	unsupportedReply = "Sorry, I can only read text messages. Please type what you need."
	apologyReply     = "Sorry, I didn't catch that. Could you say it another way?"
	saveFailedReply  = "Sorry, I couldn't save those tasks right now."
	shrugReply       = "🤔 I'm not sure what to do with that. Try /help."

	helpText = `I keep the household task list. Just talk to me:
• "buy milk and bread at Edeka" adds tasks
• "done with the dishes" completes one
• "everything at Edeka is done" completes a batch
• "what can I do in 20 minutes?" suggests something
Commands: /list (yours), /all (everyone's), /status, /help`
)

// Fallback produces a result without a language model
type Fallback interface {
	Match(text string) (intent.Result, bool)
}

// Deps are the collaborators a Handler needs. Interpreter, Fallback and
// Activity may be nil.
type Deps struct {
	Interpreter intent.Interpreter
	Fallback    Fallback
	Store       tasks.Store
	Memory      *memory.Sessions
	Ingester    *ingest.Ingester
	Resolver    *resolver.Resolver
	Profiler    *profiling.Profiler
	Activity    *activity.Log
}

// Handler processes messages. Messages of the same conversation are handled
// one at a time; different conversations run concurrently.
type Handler struct {
	deps    Deps
	locks   *keyedMutex
	started time.Time
	now     func() time.Time
}

// New creates a Handler
func New(deps Deps) *Handler {
	return &Handler{
		deps:    deps,
		locks:   newKeyedMutex(),
		started: time.Now(),
		now:     time.Now,
	}
}

// Handle processes one message and returns the replies to send. It never
// fails: every error path produces some text.
func (h *Handler) Handle(ctx context.Context, msg types.Message) []types.Reply {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		if msg.NonText {
			return reply(msg, unsupportedReply)
		}
		return nil
	}

	scope := memory.Scope{ChatID: msg.ChatID, UserID: msg.SenderID}
	unlock := h.locks.Lock(scope.String())
	defer unlock()

	actor := tasks.Actor{ID: msg.SenderID, Name: msg.SenderName}
	logging.Info("bot", "%s in %s: %s", actor.Owner(), msg.ChatID, logging.Truncate(text, 80))
	h.track(h.deps.Activity.LogInput(msg.ID, msg.ChatID, actor.Owner(), text))

	if msg.IsCommand() {
		return reply(msg, h.command(ctx, actor, text))
	}

	content := h.converse(ctx, msg, scope, actor, text)
	return reply(msg, content)
}

// converse runs the interpret, apply, remember cycle for one message
func (h *Handler) converse(ctx context.Context, msg types.Message, scope memory.Scope, actor tasks.Actor, text string) string {
	var history []tasks.Turn
	if h.deps.Memory != nil {
		done := h.deps.Profiler.Stage(msg.ID, "history")
		var err error
		history, err = h.deps.Memory.History(ctx, scope)
		done()
		if err != nil {
			logging.Warn("bot", "history unavailable for %s: %v", scope, err)
		}
		if err := h.deps.Memory.Record(ctx, scope, tasks.RoleUser, text); err != nil {
			logging.Warn("bot", "failed to persist user turn: %v", err)
		}
	}

	content := h.respond(ctx, msg, actor, text, history)

	if h.deps.Memory != nil {
		if err := h.deps.Memory.Record(ctx, scope, tasks.RoleAssistant, content); err != nil {
			logging.Warn("bot", "failed to persist assistant turn: %v", err)
		}
	}
	return content
}

func (h *Handler) respond(ctx context.Context, msg types.Message, actor tasks.Actor, text string, history []tasks.Turn) string {
	result, ok := h.interpret(ctx, msg, actor, text, history)
	if !ok {
		return apologyReply
	}

	var parts []string
	if r := strings.TrimSpace(result.Reply); r != "" {
		parts = append(parts, r)
	}

	if len(result.Tasks) > 0 && h.deps.Ingester != nil {
		done := h.deps.Profiler.Stage(msg.ID, "ingest")
		report, err := h.deps.Ingester.Apply(ctx, actor, result.Tasks)
		done()
		if err != nil {
			logging.Error("bot", "ingest failed: %v", err)
			h.track(h.deps.Activity.LogError(msg.ID, "ingest failed", err))
			parts = append(parts, saveFailedReply)
		} else {
			h.track(h.deps.Activity.LogIngest(msg.ID, actor.Owner(), titles(report.Inserted), report.Skipped))
			parts = append(parts, report.Message())
		}
	}

	if len(result.Operations) > 0 && h.deps.Resolver != nil {
		done := h.deps.Profiler.Stage(msg.ID, "resolve")
		for _, op := range result.Operations {
			opDone := h.deps.Profiler.Detail(msg.ID, "resolve."+string(op.Type), map[string]any{"target": op.Target})
			res := h.deps.Resolver.ApplyOne(ctx, actor, op)
			opDone()
			h.track(h.deps.Activity.LogOperation(msg.ID, actor.Owner(), string(op.Type), op.Target, res.Outcome.String(), res.Count))
			parts = append(parts, res.Message())
		}
		done()
	}

	if len(parts) == 0 {
		return shrugReply
	}
	return strings.Join(parts, "\n\n")
}

// interpret asks the model, falling back to reflex rules when it fails
func (h *Handler) interpret(ctx context.Context, msg types.Message, actor tasks.Actor, text string, history []tasks.Turn) (intent.Result, bool) {
	var reason string
	if h.deps.Interpreter != nil {
		var active []tasks.Task
		if h.deps.Store != nil {
			var err error
			if active, err = h.deps.Store.Active(ctx, ""); err != nil {
				logging.Warn("bot", "no task snapshot for prompt: %v", err)
			}
		}

		done := h.deps.Profiler.Stage(msg.ID, "interpret")
		result, err := h.deps.Interpreter.Interpret(ctx, intent.Input{
			Text:       text,
			SenderID:   actor.ID,
			SenderName: actor.Name,
			History:    history,
			Active:     active,
			Now:        h.now(),
		})
		done()
		if err == nil {
			h.track(h.deps.Activity.LogInterpret(msg.ID, false, len(result.Tasks), len(result.Operations), ""))
			return result, true
		}
		logging.Warn("bot", "interpretation failed, trying fallback: %v", err)
		reason = err.Error()
	}

	if h.deps.Fallback != nil {
		if result, ok := h.deps.Fallback.Match(text); ok {
			h.track(h.deps.Activity.LogInterpret(msg.ID, true, len(result.Tasks), len(result.Operations), reason))
			return result, true
		}
	}
	return intent.Result{}, false
}

// command handles slash commands. They do not go into conversation memory.
func (h *Handler) command(ctx context.Context, actor tasks.Actor, text string) string {
	name := strings.ToLower(strings.Fields(text)[0])
	switch name {
	case "/list", "/all":
		if h.deps.Resolver == nil {
			return "The task list is unavailable."
		}
		scope := intent.ScopePersonal
		if name == "/all" {
			scope = intent.ScopeAll
		}
		res := h.deps.Resolver.ApplyOne(ctx, actor, intent.Operation{Type: intent.OpList, Scope: scope})
		return res.Message()
	case "/status":
		return h.status(ctx, actor)
	default:
		return helpText
	}
}

func (h *Handler) status(ctx context.Context, actor tasks.Actor) string {
	var b strings.Builder
	b.WriteString("🤖 Status\n")

	stats, err := readProcessStats(h.started)
	fmt.Fprintf(&b, "Uptime: %s\n", stats.Uptime)
	if err != nil {
		logging.Warn("bot", "process stats: %v", err)
	} else {
		fmt.Fprintf(&b, "Memory: %s RSS\n", formatBytes(stats.RSSBytes))
		fmt.Fprintf(&b, "CPU: %.1f%%\n", stats.CPUPercent)
	}

	if h.deps.Store != nil {
		all, errAll := h.deps.Store.Active(ctx, "")
		mine, errMine := h.deps.Store.Active(ctx, actor.Owner())
		if errAll == nil && errMine == nil {
			fmt.Fprintf(&b, "Open tasks: %d (yours: %d)\n", len(all), len(mine))
		}
	}
	if h.deps.Memory != nil {
		fmt.Fprintf(&b, "Conversations in memory: %d\n", h.deps.Memory.Len())
	}
	return strings.TrimRight(b.String(), "\n")
}

// track logs activity write failures; they never affect the reply
func (h *Handler) track(err error) {
	if err != nil {
		logging.Warn("bot", "activity log: %v", err)
	}
}

func titles(list []tasks.Task) []string {
	out := make([]string, len(list))
	for i, t := range list {
		out[i] = t.Title
	}
	return out
}

func reply(msg types.Message, content string) []types.Reply {
	return []types.Reply{{ChatID: msg.ChatID, Content: content}}
}
