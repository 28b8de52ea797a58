package types

import "time"

// Message is an inbound chat event, independent of the transport it arrived on
type Message struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"` // discord, mcp, cli
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	ChatID     string    `json:"chat_id"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`

	// NonText is set when the message carried no text but had other content
	// (voice notes, images, stickers). These get a static reply.
	NonText bool `json:"non_text,omitempty"`
}

// IsCommand reports whether the text looks like a slash command
func (m Message) IsCommand() bool {
	return len(m.Text) > 1 && m.Text[0] == '/'
}

// Reply is one outbound text destined for the originating chat
type Reply struct {
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}
