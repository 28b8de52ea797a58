package senses

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/vthunder/chorebot/internal/types"
)

// Console reads one message per line, for running without Discord
type Console struct {
	in       io.Reader
	userID   string
	userName string
	chatID   string
}

// NewConsole creates a console sense speaking as userName
func NewConsole(in io.Reader, userName string) *Console {
	if userName == "" {
		userName = "me"
	}
	return &Console{in: in, userID: "console-" + userName, userName: userName, chatID: "console"}
}

// Run calls onMessage for every non-empty line until EOF or ctx is done.
// A line of "@name text" speaks as someone else for that line.
func (c *Console) Run(ctx context.Context, onMessage func(types.Message)) error {
	scanner := bufio.NewScanner(c.in)
	n := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		n++

		id, name := c.userID, c.userName
		if strings.HasPrefix(line, "@") {
			if who, rest, ok := strings.Cut(line[1:], " "); ok && who != "" {
				id, name, line = "console-"+who, who, strings.TrimSpace(rest)
			}
		}

		onMessage(types.Message{
			ID:         fmt.Sprintf("console-%d", n),
			Source:     "cli",
			SenderID:   id,
			SenderName: name,
			ChatID:     c.chatID,
			Text:       line,
			Timestamp:  time.Now(),
		})
	}
	return scanner.Err()
}
