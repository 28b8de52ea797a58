package senses

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/vthunder/chorebot/internal/types"
)

func event(content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		ChannelID: "chan",
		GuildID:   "guild",
		Content:   content,
		Author:    &discordgo.User{ID: "u1", Username: "alex_99"},
	}}
}

func TestConvertText(t *testing.T) {
	d := &DiscordSense{botID: "bot"}
	m := event("<@bot> buy milk")
	m.Member = &discordgo.Member{Nick: "Alex"}

	msg, ok := d.convert(m)
	if !ok {
		t.Fatal("expected message")
	}
	if msg.Text != "buy milk" || msg.SenderName != "Alex" || msg.ChatID != "chan" || msg.NonText {
		t.Errorf("unexpected conversion: %+v", msg)
	}
}

func TestConvertKeepsOtherMentions(t *testing.T) {
	d := &DiscordSense{botID: "bot"}
	msg, _ := d.convert(event("give <@123> the floor"))
	if msg.Text != "give <@123> the floor" {
		t.Errorf("got %q", msg.Text)
	}
}

func TestConvertAttachmentOnly(t *testing.T) {
	d := &DiscordSense{botID: "bot"}
	m := event("")
	m.Attachments = []*discordgo.MessageAttachment{{ID: "a1", Filename: "voice.ogg"}}

	msg, ok := d.convert(m)
	if !ok || !msg.NonText || msg.Text != "" {
		t.Errorf("expected non-text message, got %+v (%v)", msg, ok)
	}
	if msg.SenderName != "alex_99" {
		t.Errorf("fallback name = %q", msg.SenderName)
	}
}

func TestConvertFilters(t *testing.T) {
	d := &DiscordSense{botID: "bot", channelID: "chan"}

	self := event("hi")
	self.Author.ID = "bot"
	if _, ok := d.convert(self); ok {
		t.Error("own messages must be ignored")
	}

	other := event("hi")
	other.Author.Bot = true
	if _, ok := d.convert(other); ok {
		t.Error("other bots must be ignored")
	}

	elsewhere := event("hi")
	elsewhere.ChannelID = "other"
	if _, ok := d.convert(elsewhere); ok {
		t.Error("other channels must be ignored")
	}

	dm := event("hi")
	dm.GuildID = ""
	dm.ChannelID = "dm-chan"
	if _, ok := d.convert(dm); !ok {
		t.Error("DMs are always accepted")
	}
}

func TestConsole(t *testing.T) {
	in := strings.NewReader("buy milk\n\n@sam done with milk\n")
	var got []types.Message
	err := NewConsole(in, "alex").Run(context.Background(), func(m types.Message) {
		got = append(got, m)
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].SenderName != "alex" || got[0].Text != "buy milk" {
		t.Errorf("first: %+v", got[0])
	}
	if got[1].SenderName != "sam" || got[1].Text != "done with milk" || got[1].ChatID != got[0].ChatID {
		t.Errorf("second: %+v", got[1])
	}
}
