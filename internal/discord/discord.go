// Package discord adapts a discordgo session to the chat boundary.
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/stupiduntilnot/nomic-lawyer/internal/chat"
)

// maxHistoryLimit is the largest page the channel messages endpoint serves.
const maxHistoryLimit = 100

// Intents are the gateway intents the bot needs to read guild messages.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

// Client is a chat.Platform and chat.Listener backed by Discord.
type Client struct {
	session *discordgo.Session
	log     zerolog.Logger
}

var (
	_ chat.Platform = (*Client)(nil)
	_ chat.Listener = (*Client)(nil)
)

// NewClient creates a session for a bot token. The gateway connection is
// opened by Listen.
func NewClient(token string, log zerolog.Logger) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = Intents
	return &Client{session: session, log: log.With().Str("component", "discord").Logger()}, nil
}

// Self returns the bot's user ID once the gateway is ready, or "".
func (c *Client) Self() string {
	if c.session.State == nil || c.session.State.User == nil {
		return ""
	}
	return c.session.State.User.ID
}

// Listen opens the gateway and dispatches message-created events to handler
// until ctx is done. discordgo runs each handler call on its own goroutine.
func (c *Client) Listen(ctx context.Context, handler chat.Handler) error {
	removeReady := c.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		c.log.Info().
			Str("user_id", r.User.ID).
			Str("username", r.User.Username).
			Int("guilds", len(r.Guilds)).
			Msg("Logged in to Discord")
	})
	defer removeReady()
	removeCreate := c.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Message == nil {
			return
		}
		handler(ctx, toMessage(m.Message))
	})
	defer removeCreate()

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	<-ctx.Done()
	if err := c.session.Close(); err != nil {
		return fmt.Errorf("close discord gateway: %w", err)
	}
	return nil
}

func (c *Client) FetchMessage(ctx context.Context, channelID, messageID string) (*chat.Message, error) {
	m, err := c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch message %s: %w", messageID, err)
	}
	return toMessage(m), nil
}

// RecentMessages returns up to limit of the newest messages, newest first.
func (c *Client) RecentMessages(ctx context.Context, channelID string, limit int) ([]*chat.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	msgs, err := c.session.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch channel %s history: %w", channelID, err)
	}
	out := make([]*chat.Message, 0, len(msgs))
	for _, m := range msgs {
		if m != nil {
			out = append(out, toMessage(m))
		}
	}
	return out, nil
}

// Channel prefers the gateway state cache and falls back to REST.
func (c *Client) Channel(ctx context.Context, channelID string) (*chat.Channel, error) {
	if c.session.State != nil {
		if ch, err := c.session.State.Channel(channelID); err == nil {
			return toChannel(ch), nil
		}
	}
	ch, err := c.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch channel %s: %w", channelID, err)
	}
	return toChannel(ch), nil
}

// GuildChannels prefers the gateway state cache and falls back to REST.
func (c *Client) GuildChannels(ctx context.Context, guildID string) ([]*chat.Channel, error) {
	var channels []*discordgo.Channel
	if c.session.State != nil {
		if g, err := c.session.State.Guild(guildID); err == nil {
			channels = g.Channels
		}
	}
	if channels == nil {
		var err error
		channels, err = c.session.GuildChannels(guildID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("fetch guild %s channels: %w", guildID, err)
		}
	}
	out := make([]*chat.Channel, 0, len(channels))
	for _, ch := range channels {
		out = append(out, toChannel(ch))
	}
	return out, nil
}

func (c *Client) Reply(ctx context.Context, to *chat.Message, content string) error {
	ref := &discordgo.MessageReference{
		MessageID: to.ID,
		ChannelID: to.ChannelID,
		GuildID:   to.GuildID,
	}
	if _, err := c.session.ChannelMessageSendReply(to.ChannelID, content, ref, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("reply to message %s: %w", to.ID, err)
	}
	return nil
}

func (c *Client) Send(ctx context.Context, channelID, content string) error {
	if _, err := c.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send to channel %s: %w", channelID, err)
	}
	return nil
}

func (c *Client) React(ctx context.Context, channelID, messageID, emoji string) error {
	if err := c.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("add reaction %s: %w", emoji, err)
	}
	return nil
}

func (c *Client) Unreact(ctx context.Context, channelID, messageID, emoji string) error {
	if err := c.session.MessageReactionRemove(channelID, messageID, emoji, "@me", discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("remove reaction %s: %w", emoji, err)
	}
	return nil
}

func toMessage(m *discordgo.Message) *chat.Message {
	msg := &chat.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		CreatedAt: m.Timestamp,
	}
	if msg.CreatedAt.IsZero() {
		if ts, err := discordgo.SnowflakeTimestamp(m.ID); err == nil {
			msg.CreatedAt = ts
		}
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorIsBot = m.Author.Bot
	}
	if ref := m.MessageReference; ref != nil {
		msg.ReferenceID = ref.MessageID
		msg.ReferenceChannelID = ref.ChannelID
	}
	for _, u := range m.Mentions {
		if u != nil {
			msg.MentionIDs = append(msg.MentionIDs, u.ID)
		}
	}
	msg.CreatedAt = msg.CreatedAt.UTC().Truncate(time.Millisecond)
	return msg
}

func toChannel(ch *discordgo.Channel) *chat.Channel {
	if ch == nil {
		return nil
	}
	out := &chat.Channel{
		ID:      ch.ID,
		GuildID: ch.GuildID,
		Name:    ch.Name,
		Topic:   ch.Topic,
		Type:    chat.ChannelTypeOther,
	}
	if ch.Type == discordgo.ChannelTypeGuildText {
		out.Type = chat.ChannelTypeText
	}
	return out
}
