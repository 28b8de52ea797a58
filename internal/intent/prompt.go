package intent

import (
	"fmt"
	"strings"
	"time"

	"github.com/vthunder/chorebot/internal/tasks"
)

// Message is one chat message sent to a provider
type Message struct {
	Role    string // user, assistant
	Content string
}

// Request is a provider-neutral completion request
type Request struct {
	System   string
	Messages []Message
}

// Input is everything the interpreter sees for one inbound message
type Input struct {
	Text       string
	SenderID   string
	SenderName string
	History    []tasks.Turn
	Active     []tasks.Task
	Now        time.Time
}

// maxSnapshot bounds how many active tasks go into the prompt
const maxSnapshot = 40

const systemTemplate = `You manage a shared household task list in a chat. Interpret the user's message and answer with ONE JSON object, no prose around it:

{
  "reply": "short friendly reply in the user's language",
  "new_tasks": [
    {"title": "...", "when_text": null, "where_text": null, "category": "shopping|household|work|personal|general", "importance": "urgent|normal|low", "who": null}
  ],
  "operations": [
    {"type": "list|complete|delete|clear_all|edit|suggest", "target": "...", "details": {}, "scope": "personal|all", "max_minutes": null, "at_location": null, "count": null}
  ]
}

Rules:
- Split lists into one task each: "buy milk and bread" is two tasks, "Buy milk" and "Buy bread".
- A place or time said once applies to every task in the same message.
- when_text and where_text hold only what the user actually said. If they said nothing, use null. Never guess.
- "done with X", "bought X", "finished X" is a complete operation with target X. "everything at <place>" keeps the qualifier in the target.
- delete removes a task that will not be done; complete marks it done.
- edit puts only the changed fields in details (title, who, when_text, where_text, importance, category).
- suggest answers "what can I do in 20 minutes" (max_minutes) or "what can I do at home" (at_location).
- list scope is "all" only when the user asks for everyone's tasks.
- If the message is just chat, return only "reply".

The user is %s. Today is %s.
%s`

// BuildRequest assembles the system prompt, history and the new message
func BuildRequest(in Input) Request {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	name := in.SenderName
	if name == "" {
		name = in.SenderID
	}

	req := Request{
		System: fmt.Sprintf(systemTemplate, name, now.Format("Monday, 2006-01-02"), snapshot(in.Active)),
	}
	for _, turn := range in.History {
		role := turn.Role
		if role != tasks.RoleAssistant {
			role = tasks.RoleUser
		}
		req.Messages = append(req.Messages, Message{Role: role, Content: turn.Content})
	}
	req.Messages = append(req.Messages, Message{Role: tasks.RoleUser, Content: in.Text})
	return req
}

func snapshot(active []tasks.Task) string {
	if len(active) == 0 {
		return "There are no open tasks."
	}

	var b strings.Builder
	b.WriteString("Open tasks:\n")
	for i, t := range active {
		if i == maxSnapshot {
			fmt.Fprintf(&b, "- ... and %d more\n", len(active)-maxSnapshot)
			break
		}
		fmt.Fprintf(&b, "- %s (owner %s, %s, %s", t.Title, t.Owner, t.Category, t.Importance)
		if w := t.Where(); w != "" {
			fmt.Fprintf(&b, ", at %s", w)
		}
		if w := t.When(); w != "" {
			fmt.Fprintf(&b, ", %s", w)
		}
		b.WriteString(")\n")
	}
	return b.String()
}
