package senses

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/vthunder/chorebot/internal/logging"
	"github.com/vthunder/chorebot/internal/types"
)

// DiscordSense listens to Discord and emits transport-neutral messages
type DiscordSense struct {
	session   *discordgo.Session
	channelID string
	botID     string
	onMessage func(types.Message)
}

// DiscordConfig holds Discord connection settings
type DiscordConfig struct {
	Token     string
	ChannelID string // optional: only listen here (DMs are always accepted)
}

// NewDiscordSense creates a new Discord sense. Messages are delivered to the
// callback passed to Start.
func NewDiscordSense(cfg DiscordConfig) (*DiscordSense, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	sense := &DiscordSense{
		session:   session,
		channelID: cfg.ChannelID,
	}

	session.AddHandler(sense.handleMessage)
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	return sense, nil
}

// Start connects to Discord and begins delivering messages to onMessage
func (d *DiscordSense) Start(onMessage func(types.Message)) error {
	d.onMessage = onMessage
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	d.botID = d.session.State.User.ID
	logging.Info("discord-sense", "Connected as %s", d.session.State.User.Username)
	return nil
}

// Stop disconnects from Discord
func (d *DiscordSense) Stop() error {
	return d.session.Close()
}

// Session returns the underlying Discord session (for sharing with effector)
func (d *DiscordSense) Session() *discordgo.Session {
	return d.session
}

// handleMessage runs on discordgo's event goroutines, possibly concurrently
func (d *DiscordSense) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	msg, ok := d.convert(m)
	if !ok {
		return
	}
	logging.Debug("discord-sense", "message from %s: %s", msg.SenderName, logging.Truncate(msg.Text, 50))
	if d.onMessage != nil {
		d.onMessage(msg)
	}
}

// convert filters and translates a Discord event. ok is false for events
// the bot should not answer.
func (d *DiscordSense) convert(m *discordgo.MessageCreate) (types.Message, bool) {
	if m == nil || m.Message == nil || m.Author == nil {
		return types.Message{}, false
	}
	if m.Author.Bot || m.Author.ID == d.botID {
		return types.Message{}, false
	}
	isDM := m.GuildID == ""
	if d.channelID != "" && !isDM && m.ChannelID != d.channelID {
		return types.Message{}, false
	}

	text := strings.TrimSpace(d.stripMention(m.Content))
	msg := types.Message{
		ID:         m.ID,
		Source:     "discord",
		SenderID:   m.Author.ID,
		SenderName: displayName(m),
		ChatID:     m.ChannelID,
		Text:       text,
		Timestamp:  m.Timestamp,
		NonText:    text == "" && (len(m.Attachments) > 0 || len(m.StickerItems) > 0),
	}
	return msg, true
}

var mentionPattern = regexp.MustCompile(`<@!?(\d+)>`)

// stripMention removes mentions of the bot itself
func (d *DiscordSense) stripMention(content string) string {
	if d.botID == "" {
		return content
	}
	return mentionPattern.ReplaceAllStringFunc(content, func(s string) string {
		if mentionPattern.FindStringSubmatch(s)[1] == d.botID {
			return ""
		}
		return s
	})
}

// displayName prefers the server nickname, then the global name
func displayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
