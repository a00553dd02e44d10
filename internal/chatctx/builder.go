package chatctx

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stupiduntilnot/nomic-lawyer/internal/chat"
	"github.com/stupiduntilnot/nomic-lawyer/internal/control"
	"github.com/stupiduntilnot/nomic-lawyer/internal/format"
)

// HistoryMarker prefixes entries taken from the recent-history window so the
// model can tell background chatter from the reply thread.
const HistoryMarker = "[Historical context] "

// Options bound the context walk.
type Options struct {
	BotID string
	// MaxReplyDepth stops the walk once this many non-bot ancestors are collected.
	MaxReplyDepth int
	// MaxTraversalDepth caps the number of ancestors fetched. Defaults to
	// twice MaxReplyDepth.
	MaxTraversalDepth int
	// HistoryDepth is the size of the recent-history window.
	HistoryDepth    int
	AncestorTimeout time.Duration
	HistoryTimeout  time.Duration
}

func (o Options) traversalLimit() int {
	if o.MaxTraversalDepth > 0 {
		return o.MaxTraversalDepth
	}
	return 2 * o.MaxReplyDepth
}

// Stats describes one Build run.
type Stats struct {
	Ancestors int
	History   int
	// Truncated is set when an ancestor fetch failed and cut the chain short.
	Truncated bool
}

// Builder assembles the conversational context for a triggering message.
type Builder struct {
	source chat.History
	opts   Options
	log    zerolog.Logger
}

func NewBuilder(source chat.History, opts Options, log zerolog.Logger) *Builder {
	return &Builder{source: source, opts: opts, log: log}
}

type sourcedMessage struct {
	msg        *chat.Message
	historical bool
}

// Build returns the context entries for trigger, oldest first. The reply
// chain walk and the history fetch run concurrently; ancestor fetch failures
// truncate the chain, a history fetch failure is returned. channel may be nil.
func (b *Builder) Build(ctx context.Context, trigger *chat.Message, channel *chat.Channel) ([]Message, Stats, error) {
	if trigger == nil {
		return nil, Stats{}, fmt.Errorf("build context: nil trigger message")
	}

	var (
		ancestors []*chat.Message
		truncated bool
		recent    []*chat.Message
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ancestors, truncated = b.walkReplyChain(gctx, trigger)
		return nil
	})
	g.Go(func() error {
		var err error
		recent, err = b.fetchHistory(gctx, trigger.ChannelID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	timeline := mergeTimeline(ancestors, recent, trigger.ID)
	stats := Stats{Ancestors: len(ancestors), History: len(timeline) - len(ancestors), Truncated: truncated}

	entries := make([]Message, 0, len(timeline)+1)
	if meta, ok := ChannelMetadata(channel); ok {
		entries = append(entries, meta)
	}
	for _, item := range timeline {
		entries = append(entries, b.toEntry(item))
	}
	return entries, stats, nil
}

// walkReplyChain follows reply references from trigger and returns the
// ancestors oldest first.
func (b *Builder) walkReplyChain(ctx context.Context, trigger *chat.Message) ([]*chat.Message, bool) {
	if b.opts.MaxReplyDepth <= 0 {
		return nil, false
	}
	limit := b.opts.traversalLimit()
	var ancestors []*chat.Message
	seen := map[string]struct{}{trigger.ID: {}}
	truncated := false
	nonBot := 0

	current := trigger
	for current.ReferenceID != "" && len(ancestors) < limit {
		parent, err := b.fetchParent(ctx, current)
		if err != nil {
			b.log.Debug().Err(err).
				Str("message_id", current.ReferenceID).
				Int("depth", len(ancestors)).
				Msg("Reply chain truncated")
			truncated = true
			break
		}
		if parent == nil {
			break
		}
		if _, dup := seen[parent.ID]; dup {
			break
		}
		seen[parent.ID] = struct{}{}
		ancestors = append(ancestors, parent)
		if parent.AuthorID != b.opts.BotID {
			nonBot++
		}
		if nonBot >= b.opts.MaxReplyDepth {
			break
		}
		current = parent
	}
	slices.Reverse(ancestors)
	return ancestors, truncated
}

func (b *Builder) fetchParent(ctx context.Context, msg *chat.Message) (*chat.Message, error) {
	channelID := msg.ReferenceChannelID
	if channelID == "" {
		channelID = msg.ChannelID
	}
	fctx, cancel := control.WithTimeout(ctx, b.opts.AncestorTimeout)
	defer cancel()
	return b.source.FetchMessage(fctx, channelID, msg.ReferenceID)
}

func (b *Builder) fetchHistory(ctx context.Context, channelID string) ([]*chat.Message, error) {
	if b.opts.HistoryDepth <= 0 {
		return nil, nil
	}
	fctx, cancel := control.WithTimeout(ctx, b.opts.HistoryTimeout)
	defer cancel()
	msgs, err := b.source.RecentMessages(fctx, channelID, b.opts.HistoryDepth)
	if err != nil {
		return nil, fmt.Errorf("fetch channel history: %w", err)
	}
	return msgs, nil
}

// mergeTimeline drops history messages already present in the reply chain
// (or equal to the trigger) and orders everything by creation time. Ties keep
// ancestors first, then history in fetch order.
func mergeTimeline(ancestors, recent []*chat.Message, triggerID string) []sourcedMessage {
	seen := make(map[string]struct{}, len(ancestors)+len(recent)+1)
	seen[triggerID] = struct{}{}
	merged := make([]sourcedMessage, 0, len(ancestors)+len(recent))
	for _, m := range ancestors {
		seen[m.ID] = struct{}{}
		merged = append(merged, sourcedMessage{msg: m})
	}
	for _, m := range recent {
		if m == nil {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, sourcedMessage{msg: m, historical: true})
	}
	slices.SortStableFunc(merged, func(a, b sourcedMessage) int {
		return a.msg.CreatedAt.Compare(b.msg.CreatedAt)
	})
	return merged
}

func (b *Builder) toEntry(item sourcedMessage) Message {
	role := RoleUser
	if item.msg.AuthorID == b.opts.BotID {
		role = RoleAssistant
	}
	content := format.StripBotMentions(item.msg.Content, b.opts.BotID)
	if item.historical {
		content = HistoryMarker + content
	}
	return Message{Role: role, Content: content}
}

// ChannelMetadata describes the channel as a system entry. ok is false when
// the channel has neither a name nor a topic.
func ChannelMetadata(channel *chat.Channel) (Message, bool) {
	if channel == nil {
		return Message{}, false
	}
	var lines []string
	if name := strings.TrimSpace(channel.Name); name != "" {
		lines = append(lines, "Current channel: #"+name)
	}
	if topic := strings.TrimSpace(channel.Topic); topic != "" {
		lines = append(lines, "Channel topic: "+topic)
	}
	if len(lines) == 0 {
		return Message{}, false
	}
	return Message{Role: RoleSystem, Content: strings.Join(lines, "\n")}, true
}
