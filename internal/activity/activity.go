// Package activity keeps a JSONL trail of what the bot did with each message.
package activity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Type identifies what kind of activity this is
type Type string

const (
	TypeInput     Type = "input"     // message received
	TypeInterpret Type = "interpret" // model produced a result
	TypeFallback  Type = "fallback"  // reflex rule produced a result
	TypeIngest    Type = "ingest"    // new tasks stored
	TypeOperation Type = "operation" // resolver applied an operation
	TypeReply     Type = "reply"     // reply sent back
	TypeError     Type = "error"
)

// File is the activity log location relative to the state path
const File = "system/activity.jsonl"

// Entry is one activity log line
type Entry struct {
	Timestamp time.Time      `json:"ts"`
	Type      Type           `json:"type"`
	Summary   string         `json:"summary"`
	MessageID string         `json:"message_id,omitempty"`
	Chat      string         `json:"chat,omitempty"`
	Actor     string         `json:"actor,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Log is the activity logger. A nil *Log discards everything.
type Log struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// New creates an activity logger under statePath/system
func New(statePath string) *Log {
	return &Log{
		path: filepath.Join(statePath, File),
		now:  time.Now,
	}
}

// Path returns the log file path
func (l *Log) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Log appends an entry
func (l *Log) Log(entry Entry) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// LogInput logs an incoming message
func (l *Log) LogInput(messageID, chat, actor, text string) error {
	return l.Log(Entry{
		Type:      TypeInput,
		Summary:   text,
		MessageID: messageID,
		Chat:      chat,
		Actor:     actor,
	})
}

// LogInterpret logs which path produced the result for a message
func (l *Log) LogInterpret(messageID string, fallback bool, tasks, ops int, reason string) error {
	typ, summary := TypeInterpret, "model result"
	if fallback {
		typ, summary = TypeFallback, "reflex result"
	}
	data := map[string]any{"tasks": tasks, "operations": ops}
	if reason != "" {
		data["reason"] = reason
	}
	return l.Log(Entry{Type: typ, Summary: summary, MessageID: messageID, Data: data})
}

// LogOperation logs one applied operation and its outcome
func (l *Log) LogOperation(messageID, actor, op, target, outcome string, count int) error {
	return l.Log(Entry{
		Type:      TypeOperation,
		Summary:   op + " " + outcome,
		MessageID: messageID,
		Actor:     actor,
		Data: map[string]any{
			"target": target,
			"count":  count,
		},
	})
}

// LogIngest logs stored and skipped titles from one message
func (l *Log) LogIngest(messageID, actor string, added, duplicates []string) error {
	return l.Log(Entry{
		Type:      TypeIngest,
		Summary:   "stored new tasks",
		MessageID: messageID,
		Actor:     actor,
		Data: map[string]any{
			"added":      added,
			"duplicates": duplicates,
		},
	})
}

// LogReply logs a delivered reply, or the delivery failure
func (l *Log) LogReply(messageID, chat string, length int, sendErr error) error {
	entry := Entry{
		Type:      TypeReply,
		Summary:   "reply sent",
		MessageID: messageID,
		Chat:      chat,
		Data:      map[string]any{"length": length},
	}
	if sendErr != nil {
		entry.Type = TypeError
		entry.Summary = "reply failed"
		entry.Data["error"] = sendErr.Error()
	}
	return l.Log(entry)
}

// LogError logs an error
func (l *Log) LogError(messageID, summary string, err error) error {
	return l.Log(Entry{
		Type:      TypeError,
		Summary:   summary,
		MessageID: messageID,
		Data:      map[string]any{"error": err.Error()},
	})
}

// Recent returns the last n entries
func (l *Log) Recent(n int) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}
	if n >= len(entries) {
		return entries, nil
	}
	return entries[len(entries)-n:], nil
}

// Today returns entries from today
func (l *Log) Today() ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	now := l.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var result []Entry
	for _, e := range entries {
		if !e.Timestamp.Before(today) {
			result = append(result, e)
		}
	}
	return result, nil
}

// Search returns up to limit entries whose summary or data mention query,
// most recent first
func (l *Log) Search(query string, limit int) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	var result []Entry
	for i := len(entries) - 1; i >= 0 && len(result) < limit; i-- {
		e := entries[i]
		if strings.Contains(strings.ToLower(e.Summary), query) {
			result = append(result, e)
			continue
		}
		if e.Data != nil {
			dataJSON, _ := json.Marshal(e.Data)
			if strings.Contains(strings.ToLower(string(dataJSON)), query) {
				result = append(result, e)
			}
		}
	}
	return result, nil
}

// ByType returns up to limit entries of one type, most recent first
func (l *Log) ByType(t Type, limit int) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	var result []Entry
	for i := len(entries) - 1; i >= 0 && len(result) < limit; i-- {
		if entries[i].Type == t {
			result = append(result, entries[i])
		}
	}
	return result, nil
}

// ForMessage returns every entry recorded for one message, oldest first
func (l *Log) ForMessage(messageID string) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	var result []Entry
	for _, e := range entries {
		if e.MessageID == messageID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (l *Log) readAll() ([]Entry, error) {
	if l == nil {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue // skip malformed entries
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
