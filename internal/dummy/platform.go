package dummy

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/stupiduntilnot/nomic-lawyer/internal/chat"
)

const (
	// DefaultGuildID and DefaultChannelID host scripted inbound messages.
	DefaultGuildID   = "dummy-guild"
	DefaultChannelID = "dummy-channel"
	// DefaultUserID authors scripted inbound messages.
	DefaultUserID = "dummy-user"
)

// SendKind distinguishes replies from plain channel sends.
type SendKind string

const (
	SendReply   SendKind = "reply"
	SendChannel SendKind = "send"
)

// Sent records one outbound message.
type Sent struct {
	Kind      SendKind
	ChannelID string
	ReplyToID string
	Content   string
}

// Reaction records one reaction change made by the bot.
type Reaction struct {
	Added     bool
	ChannelID string
	MessageID string
	Emoji     string
}

// Platform is an in-memory chat platform. Outbound messages are stored as
// bot-authored messages so later history fetches see them.
type Platform struct {
	mu         sync.Mutex
	self       string
	messages   map[string]*chat.Message
	order      map[string][]string
	channels   map[string]*chat.Channel
	guilds     map[string][]*chat.Channel
	fetchFail  map[string]error
	recentFail map[string]error
	send       *scriptRunner
	inbound    []action
	sent       []Sent
	reactions  []Reaction
	clock      time.Time
	nextID     int
}

var (
	_ chat.Platform = (*Platform)(nil)
	_ chat.Listener = (*Platform)(nil)
)

// NewPlatform creates a platform where selfID is the bot. sendScript drives
// Reply/Send outcomes (ok, err[:class], sleep:<ms>); inboundScript lists the
// messages Listen delivers (msg:<text>, msgb64:<text>, sleep:<ms>).
func NewPlatform(selfID, sendScript, inboundScript string) (*Platform, error) {
	send, err := newRunner(sendScript)
	if err != nil {
		return nil, fmt.Errorf("send script: %w", err)
	}
	var inbound []action
	if inboundScript != "" {
		inbound, err = parseScript(inboundScript)
		if err != nil {
			return nil, fmt.Errorf("inbound script: %w", err)
		}
	}
	p := &Platform{
		self:       selfID,
		messages:   map[string]*chat.Message{},
		order:      map[string][]string{},
		channels:   map[string]*chat.Channel{},
		guilds:     map[string][]*chat.Channel{},
		fetchFail:  map[string]error{},
		recentFail: map[string]error{},
		send:       send,
		inbound:    inbound,
		clock:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	p.AddChannel(&chat.Channel{ID: DefaultChannelID, GuildID: DefaultGuildID, Name: "general", Type: chat.ChannelTypeText})
	return p, nil
}

// AddChannel registers a guild channel.
func (p *Platform) AddChannel(ch *chat.Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := *ch
	p.channels[c.ID] = &c
	p.guilds[c.GuildID] = append(p.guilds[c.GuildID], &c)
}

// AddMessage stores msg. A zero CreatedAt is replaced by the platform clock.
func (p *Platform) AddMessage(msg *chat.Message) *chat.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addLocked(msg)
}

func (p *Platform) addLocked(msg *chat.Message) *chat.Message {
	m := *msg
	if m.ID == "" {
		p.nextID++
		m.ID = "dummy-msg-" + strconv.Itoa(p.nextID)
	}
	if m.CreatedAt.IsZero() {
		p.clock = p.clock.Add(time.Second)
		m.CreatedAt = p.clock
	}
	p.messages[m.ID] = &m
	p.order[m.ChannelID] = append(p.order[m.ChannelID], m.ID)
	return &m
}

// FailFetch makes FetchMessage of messageID return err.
func (p *Platform) FailFetch(messageID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchFail[messageID] = err
}

// FailHistory makes RecentMessages of channelID return err.
func (p *Platform) FailHistory(channelID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recentFail[channelID] = err
}

func (p *Platform) Self() string { return p.self }

func (p *Platform) FetchMessage(ctx context.Context, channelID, messageID string) (*chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fetchFail[messageID]; err != nil {
		return nil, err
	}
	m, ok := p.messages[messageID]
	if !ok || m.ChannelID != channelID {
		return nil, fmt.Errorf("dummy message not found: %s/%s", channelID, messageID)
	}
	c := *m
	return &c, nil
}

// RecentMessages returns up to limit messages, newest first.
func (p *Platform) RecentMessages(ctx context.Context, channelID string, limit int) ([]*chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.recentFail[channelID]; err != nil {
		return nil, err
	}
	ids := slices.Clone(p.order[channelID])
	slices.Reverse(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]*chat.Message, 0, len(ids))
	for _, id := range ids {
		c := *p.messages[id]
		out = append(out, &c)
	}
	return out, nil
}

func (p *Platform) Channel(ctx context.Context, channelID string) (*chat.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("dummy channel not found: %s", channelID)
	}
	c := *ch
	return &c, nil
}

func (p *Platform) GuildChannels(ctx context.Context, guildID string) ([]*chat.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*chat.Channel, 0, len(p.guilds[guildID]))
	for _, ch := range p.guilds[guildID] {
		c := *ch
		out = append(out, &c)
	}
	return out, nil
}

func (p *Platform) Reply(ctx context.Context, to *chat.Message, content string) error {
	return p.deliver(ctx, Sent{Kind: SendReply, ChannelID: to.ChannelID, ReplyToID: to.ID, Content: content})
}

func (p *Platform) Send(ctx context.Context, channelID, content string) error {
	return p.deliver(ctx, Sent{Kind: SendChannel, ChannelID: channelID, Content: content})
}

func (p *Platform) deliver(ctx context.Context, s Sent) error {
	p.mu.Lock()
	a := p.send.next()
	p.mu.Unlock()

	switch a.kind {
	case "err":
		return fmt.Errorf("dummy platform send error class=%s", emptyAs(a.arg, "chat_api"))
	case "sleep":
		if err := sleepCtx(ctx, a.arg); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, s)
	p.addLocked(&chat.Message{
		ChannelID:   s.ChannelID,
		AuthorID:    p.self,
		AuthorIsBot: true,
		Content:     s.Content,
		ReferenceID: s.ReplyToID,
	})
	return nil
}

func (p *Platform) React(ctx context.Context, channelID, messageID, emoji string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reactions = append(p.reactions, Reaction{Added: true, ChannelID: channelID, MessageID: messageID, Emoji: emoji})
	return nil
}

func (p *Platform) Unreact(ctx context.Context, channelID, messageID, emoji string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reactions = append(p.reactions, Reaction{Added: false, ChannelID: channelID, MessageID: messageID, Emoji: emoji})
	return nil
}

// Sent returns the outbound messages in send order.
func (p *Platform) Sent() []Sent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.sent)
}

// Reactions returns the reaction changes in call order.
func (p *Platform) Reactions() []Reaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.reactions)
}

// Listen delivers the scripted inbound messages to handler one at a time,
// each mentioning the bot, then waits for ctx to be done.
func (p *Platform) Listen(ctx context.Context, handler chat.Handler) error {
	for _, a := range p.inbound {
		switch a.kind {
		case "sleep":
			if err := sleepCtx(ctx, a.arg); err != nil {
				return nil
			}
		case "err":
			return fmt.Errorf("dummy platform listen error class=%s", emptyAs(a.arg, "gateway"))
		case "msg":
			msg := p.AddMessage(&chat.Message{
				ChannelID:  DefaultChannelID,
				GuildID:    DefaultGuildID,
				AuthorID:   DefaultUserID,
				Content:    fmt.Sprintf("<@%s> %s", p.self, a.arg),
				MentionIDs: []string{p.self},
			})
			handler(ctx, msg)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	<-ctx.Done()
	return nil
}
