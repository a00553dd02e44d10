package chat

import (
	"context"
	"time"
)

// ChannelType discriminates the channel kinds the bot cares about.
type ChannelType int

const (
	ChannelTypeOther ChannelType = iota
	ChannelTypeText
)

// Message is the subset of a platform message the bot reads.
type Message struct {
	ID          string
	ChannelID   string
	GuildID     string
	AuthorID    string
	AuthorIsBot bool
	Content     string
	// ReferenceID is the message this one replies to, if any.
	ReferenceID        string
	ReferenceChannelID string
	MentionIDs         []string
	CreatedAt          time.Time
}

// Mentions reports whether userID is among the message's user mentions.
func (m *Message) Mentions(userID string) bool {
	if m == nil || userID == "" {
		return false
	}
	for _, id := range m.MentionIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Channel is a guild channel as seen by the bot.
type Channel struct {
	ID      string
	GuildID string
	Name    string
	Topic   string
	Type    ChannelType
}

// History is the read-only fetch capability used to assemble context.
type History interface {
	FetchMessage(ctx context.Context, channelID, messageID string) (*Message, error)
	// RecentMessages returns up to limit of the newest messages in a channel.
	RecentMessages(ctx context.Context, channelID string, limit int) ([]*Message, error)
}

// Platform is the chat boundary: message sources, metadata and sinks.
type Platform interface {
	History
	// Self returns the bot's own user ID.
	Self() string
	Channel(ctx context.Context, channelID string) (*Channel, error)
	GuildChannels(ctx context.Context, guildID string) ([]*Channel, error)
	Reply(ctx context.Context, to *Message, content string) error
	Send(ctx context.Context, channelID, content string) error
	React(ctx context.Context, channelID, messageID, emoji string) error
	Unreact(ctx context.Context, channelID, messageID, emoji string) error
}

// Handler processes one inbound message-created event.
type Handler func(ctx context.Context, msg *Message)

// Listener delivers inbound events to a Handler until ctx is done.
type Listener interface {
	Listen(ctx context.Context, handler Handler) error
}
