package effectors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/vthunder/chorebot/internal/logging"
	"github.com/vthunder/chorebot/internal/types"
)

const (
	// MaxMessageLength is Discord's per-message character limit
	MaxMessageLength = 2000

	DefaultMaxRetryDuration = 2 * time.Minute
	maxBackoff              = 60 * time.Second

	// Discord shows "typing..." for about 10s per call
	typingInterval = 8 * time.Second
)

// Effector delivers replies to a chat
type Effector interface {
	Send(ctx context.Context, reply types.Reply) error
	StartTyping(chatID string) (stop func())
}

// discordAPI is the part of *discordgo.Session the effector uses
type discordAPI interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

// DiscordEffector sends replies to Discord, splitting long ones and retrying
// transient failures with exponential backoff
type DiscordEffector struct {
	api              discordAPI
	maxRetryDuration time.Duration
	wait             func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	onRetry func(channelID string, attempt int, next time.Duration, err error)
}

// NewDiscordEffector creates an effector sharing the sense's session
func NewDiscordEffector(session *discordgo.Session) *DiscordEffector {
	return newDiscordEffector(session)
}

func newDiscordEffector(api discordAPI) *DiscordEffector {
	return &DiscordEffector{
		api:              api,
		maxRetryDuration: DefaultMaxRetryDuration,
		wait:             sleepContext,
	}
}

// SetMaxRetryDuration bounds how long one chunk is retried
func (e *DiscordEffector) SetMaxRetryDuration(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxRetryDuration = d
}

// SetOnRetry registers a callback invoked before each retry
func (e *DiscordEffector) SetOnRetry(fn func(channelID string, attempt int, next time.Duration, err error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onRetry = fn
}

// Send delivers a reply, in several messages if it is too long
func (e *DiscordEffector) Send(ctx context.Context, reply types.Reply) error {
	if strings.TrimSpace(reply.Content) == "" {
		return nil
	}
	for i, chunk := range chunkMessage(reply.Content, MaxMessageLength) {
		if err := e.sendWithRetry(ctx, reply.ChatID, chunk); err != nil {
			return fmt.Errorf("failed to send part %d to %s: %w", i+1, reply.ChatID, err)
		}
	}
	return nil
}

func (e *DiscordEffector) sendWithRetry(ctx context.Context, channelID, content string) error {
	e.mu.Lock()
	maxDuration, onRetry := e.maxRetryDuration, e.onRetry
	e.mu.Unlock()

	var waited time.Duration
	for attempt := 1; ; attempt++ {
		_, err := e.api.ChannelMessageSend(channelID, content)
		if err == nil {
			return nil
		}
		if isNonRetryableError(err) {
			return err
		}
		next := backoff(attempt)
		if waited+next > maxDuration {
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		logging.Warn("discord-effector", "send to %s failed (attempt %d), retrying in %v: %v",
			channelID, attempt, next, err)
		if onRetry != nil {
			onRetry(channelID, attempt, next, err)
		}
		if err := e.wait(ctx, next); err != nil {
			return err
		}
		waited += next
	}
}

// StartTyping shows the typing indicator until stop is called
func (e *DiscordEffector) StartTyping(channelID string) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			if err := e.api.ChannelTyping(channelID); err != nil {
				logging.Debug("discord-effector", "typing indicator failed: %v", err)
			}
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// backoff is 1s, 2s, 4s... capped at maxBackoff
func backoff(attempt int) time.Duration {
	if attempt > 6 {
		return maxBackoff
	}
	d := time.Second << (attempt - 1)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// isNonRetryableError reports client errors that will fail again
func isNonRetryableError(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		code := restErr.Response.StatusCode
		return code >= 400 && code < 500
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// chunkMessage splits content into pieces of at most maxLen bytes,
// preferring paragraph, then line, then word boundaries
func chunkMessage(content string, maxLen int) []string {
	if len(content) <= maxLen {
		return []string{content}
	}

	var chunks []string
	for len(content) > maxLen {
		pt := findSplitPoint(content, maxLen)
		chunks = append(chunks, content[:pt])
		content = content[pt:]
	}
	if content != "" {
		chunks = append(chunks, content)
	}
	return chunks
}

// findSplitPoint returns the index to cut at. Natural breaks are only used
// in the second half of the window so chunks do not get tiny.
func findSplitPoint(content string, maxLen int) int {
	if len(content) <= maxLen {
		return len(content)
	}
	window := content[:maxLen]
	for _, sep := range []string{"\n\n", "\n", " "} {
		if i := strings.LastIndex(window, sep); i >= maxLen/2 {
			return i + len(sep)
		}
	}
	// Do not cut a multi-byte rune in half
	pt := maxLen
	for pt > 0 && !isRuneStart(content[pt]) {
		pt--
	}
	if pt == 0 {
		return maxLen
	}
	return pt
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
