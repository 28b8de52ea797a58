package effectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vthunder/chorebot/internal/types"
)

// ConsoleEffector prints replies and, if a transcript path is set, appends
// each one as a JSON line
type ConsoleEffector struct {
	out            io.Writer
	transcriptPath string
	mu             sync.Mutex
}

// TranscriptEntry is one line of the transcript file
type TranscriptEntry struct {
	Timestamp time.Time `json:"timestamp"`
	ChatID    string    `json:"chat_id"`
	Content   string    `json:"content"`
}

// NewConsoleEffector writes to out. An empty statePath disables the
// transcript; otherwise it goes to statePath/system/transcript.jsonl.
func NewConsoleEffector(out io.Writer, statePath string) *ConsoleEffector {
	e := &ConsoleEffector{out: out}
	if statePath != "" {
		e.transcriptPath = filepath.Join(statePath, "system", "transcript.jsonl")
	}
	return e
}

// Send prints the reply
func (e *ConsoleEffector) Send(ctx context.Context, reply types.Reply) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := fmt.Fprintf(e.out, "%s\n\n", reply.Content); err != nil {
		return err
	}
	if e.transcriptPath == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(e.transcriptPath), 0755); err != nil {
		return fmt.Errorf("failed to create transcript dir: %w", err)
	}
	f, err := os.OpenFile(e.transcriptPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(TranscriptEntry{Timestamp: time.Now(), ChatID: reply.ChatID, Content: reply.Content})
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// StartTyping is a no-op on the console
func (e *ConsoleEffector) StartTyping(string) func() {
	return func() {}
}
