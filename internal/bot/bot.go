// Package bot handles inbound chat messages: it decides whether the bot was
// addressed, builds the completion request and relays the answer.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stupiduntilnot/nomic-lawyer/internal/chat"
	"github.com/stupiduntilnot/nomic-lawyer/internal/chatctx"
	"github.com/stupiduntilnot/nomic-lawyer/internal/control"
	"github.com/stupiduntilnot/nomic-lawyer/internal/db"
	"github.com/stupiduntilnot/nomic-lawyer/internal/docs"
	"github.com/stupiduntilnot/nomic-lawyer/internal/format"
	"github.com/stupiduntilnot/nomic-lawyer/internal/metrics"
	"github.com/stupiduntilnot/nomic-lawyer/internal/model"
	"github.com/stupiduntilnot/nomic-lawyer/internal/prompt"
)

// UnknownError is shown when a failed turn's error has no text.
const UnknownError = "Unknown error"

// Options tune the handler.
type Options struct {
	Model      string
	BasePrompt string
	Citations  format.CitationFormatter

	MaxReplyDepth     int
	MaxTraversalDepth int
	HistoryDepth      int
	MaxChunkLength    int

	ThinkingEmoji    string
	ErrorReplyPrefix string
	FallbackReply    string

	Policy control.Policy
}

// Deps are the boundaries the handler talks to. Events and Metrics may be nil.
type Deps struct {
	Platform  chat.Platform
	Provider  model.Provider
	Documents *docs.Loader
	Events    *db.Recorder
	// ProcessEventID parents every turn.started event.
	ProcessEventID *int64
	Metrics        *metrics.Collectors
	Log            zerolog.Logger
}

// Handler processes message-created events. It holds no per-turn state and
// is safe for concurrent use.
type Handler struct {
	platform  chat.Platform
	provider  model.Provider
	documents *docs.Loader
	assembler chatctx.Assembler
	events    *db.Recorder
	processID *int64
	metrics   *metrics.Collectors
	opts      Options
	log       zerolog.Logger
	now       func() time.Time
}

func New(deps Deps, opts Options) *Handler {
	if opts.BasePrompt == "" {
		opts.BasePrompt = prompt.DefaultBasePrompt
	}
	if opts.MaxChunkLength <= 0 {
		opts.MaxChunkLength = format.DefaultMaxMessageLength
	}
	return &Handler{
		platform:  deps.Platform,
		provider:  deps.Provider,
		documents: deps.Documents,
		assembler: &chatctx.StandardAssembler{},
		events:    deps.Events,
		processID: deps.ProcessEventID,
		metrics:   deps.Metrics,
		opts:      opts,
		log:       deps.Log.With().Str("component", "bot").Logger(),
		now:       time.Now,
	}
}

// HandleMessage is a chat.Handler.
func (h *Handler) HandleMessage(ctx context.Context, msg *chat.Message) {
	if msg == nil || msg.AuthorIsBot {
		return
	}
	botID := h.platform.Self()
	if botID == "" || msg.AuthorID == botID {
		return
	}
	if !h.isTrigger(ctx, msg, botID) {
		return
	}

	turnID := uuid.NewString()
	log := h.log.With().
		Str("turn_id", turnID).
		Str("channel_id", msg.ChannelID).
		Str("message_id", msg.ID).
		Logger()
	startedAt := h.now()
	turnEvent := h.events.Record(h.processID, db.EventTurnStarted, map[string]any{
		"turn_id":    turnID,
		"guild_id":   msg.GuildID,
		"channel_id": msg.ChannelID,
		"message_id": msg.ID,
		"author_id":  msg.AuthorID,
		"is_reply":   msg.ReferenceID != "",
	})
	log.Info().Msg("Turn started")

	h.react(ctx, msg, log)
	chunks, err := h.runTurn(ctx, msg, botID, turnEvent, startedAt, log)
	if err != nil {
		h.fail(ctx, msg, turnEvent, err, log)
	} else {
		h.metrics.Turn(metrics.OutcomeReplied)
		h.events.Record(turnEvent, db.EventTurnCompleted, map[string]any{
			"chunks":     chunks,
			"latency_ms": h.now().Sub(startedAt).Milliseconds(),
		})
		log.Info().Int("chunks", chunks).Dur("elapsed", h.now().Sub(startedAt)).Msg("Turn completed")
	}
	h.unreact(ctx, msg, log)
}

// isTrigger reports whether msg mentions the bot or replies to one of its
// messages. A reply target that cannot be fetched does not count.
func (h *Handler) isTrigger(ctx context.Context, msg *chat.Message, botID string) bool {
	if msg.Mentions(botID) {
		return true
	}
	if msg.ReferenceID == "" {
		return false
	}
	channelID := msg.ReferenceChannelID
	if channelID == "" {
		channelID = msg.ChannelID
	}
	fctx, cancel := control.WithTimeout(ctx, h.opts.Policy.FetchTimeout)
	defer cancel()
	parent, err := h.platform.FetchMessage(fctx, channelID, msg.ReferenceID)
	if err != nil {
		h.log.Debug().Err(err).Str("message_id", msg.ID).Msg("Reply target unavailable")
		return false
	}
	return parent != nil && parent.AuthorID == botID
}

type turnInputs struct {
	entries []chatctx.Message
	stats   chatctx.Stats
	bundle  docs.Bundle
	topic   string
}

func (h *Handler) runTurn(ctx context.Context, msg *chat.Message, botID string, turnEvent *int64, startedAt time.Time, log zerolog.Logger) (int, error) {
	ctx, cancel := control.WithTimeout(ctx, h.opts.Policy.TurnWallTime)
	defer cancel()

	in, err := h.gather(ctx, msg, botID, log)
	if err != nil {
		return 0, err
	}

	system := prompt.Compose(prompt.Sections{
		Base:    h.opts.BasePrompt,
		Topic:   in.topic,
		Rules:   in.bundle.Rules,
		Agendas: in.bundle.Agendas,
		Players: in.bundle.Players,
	})
	userContent := format.StripBotMentions(msg.Content, botID)
	messages := h.assembler.Assemble(system, in.entries, userContent)

	h.events.Record(turnEvent, db.EventContextAssembled, map[string]any{
		"ancestors":      in.stats.Ancestors,
		"history":        in.stats.History,
		"truncated":      in.stats.Truncated,
		"has_topic":      in.topic != "",
		"messages":       len(messages),
		"system_tokens":  estimateTokens(system),
		"history_tokens": estimateTokensFromMessages(in.entries),
		"user_tokens":    estimateTokens(userContent),
	})
	log.Debug().
		Int("ancestors", in.stats.Ancestors).
		Int("history", in.stats.History).
		Bool("truncated", in.stats.Truncated).
		Msg("Context assembled")

	if err := h.checkWallTime(turnEvent, startedAt); err != nil {
		return 0, err
	}

	content, err := h.complete(ctx, messages, turnEvent)
	if err != nil {
		return 0, err
	}
	if err := h.checkWallTime(turnEvent, startedAt); err != nil {
		return 0, err
	}

	chunks := format.SplitMessage(h.opts.Citations.Format(content), h.opts.MaxChunkLength)
	if err := h.send(ctx, msg, chunks); err != nil {
		return 0, err
	}
	h.events.Record(turnEvent, db.EventReplySent, map[string]any{
		"chunks": len(chunks),
		"chars":  len([]rune(content)),
	})
	return len(chunks), nil
}

// gather builds the conversational context, fetches the documents and
// resolves the main chamber topic concurrently.
func (h *Handler) gather(ctx context.Context, msg *chat.Message, botID string, log zerolog.Logger) (turnInputs, error) {
	var in turnInputs
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		channel := h.channel(gctx, msg.ChannelID, log)
		builder := chatctx.NewBuilder(h.platform, chatctx.Options{
			BotID:             botID,
			MaxReplyDepth:     h.opts.MaxReplyDepth,
			MaxTraversalDepth: h.opts.MaxTraversalDepth,
			HistoryDepth:      h.opts.HistoryDepth,
			AncestorTimeout:   h.opts.Policy.FetchTimeout,
			HistoryTimeout:    h.opts.Policy.FetchTimeout,
		}, log)
		var err error
		in.entries, in.stats, err = builder.Build(gctx, msg, channel)
		h.metrics.ObserveBoundary(metrics.BoundaryContext, time.Since(start), err)
		return err
	})
	g.Go(func() error {
		start := time.Now()
		var err error
		in.bundle, err = h.documents.Load(gctx)
		h.metrics.ObserveBoundary(metrics.BoundaryDocuments, time.Since(start), err)
		return err
	})
	g.Go(func() error {
		in.topic = h.mainChamberTopic(gctx, msg.GuildID, log)
		return nil
	})
	if err := g.Wait(); err != nil {
		return turnInputs{}, err
	}
	return in, nil
}

// channel returns the trigger's channel metadata, or nil when unavailable.
func (h *Handler) channel(ctx context.Context, channelID string, log zerolog.Logger) *chat.Channel {
	fctx, cancel := control.WithTimeout(ctx, h.opts.Policy.FetchTimeout)
	defer cancel()
	ch, err := h.platform.Channel(fctx, channelID)
	if err != nil {
		log.Debug().Err(err).Msg("Channel metadata unavailable")
		return nil
	}
	return ch
}

// mainChamberTopic returns the topic of the guild's main chamber channel, or
// "" when the guild has none or the lookup fails.
func (h *Handler) mainChamberTopic(ctx context.Context, guildID string, log zerolog.Logger) string {
	if guildID == "" {
		return ""
	}
	start := time.Now()
	fctx, cancel := control.WithTimeout(ctx, h.opts.Policy.FetchTimeout)
	defer cancel()
	channels, err := h.platform.GuildChannels(fctx, guildID)
	h.metrics.ObserveBoundary(metrics.BoundaryTopic, time.Since(start), err)
	if err != nil {
		log.Warn().Err(err).Str("guild_id", guildID).Msg("Failed to list guild channels")
		return ""
	}
	ch := chat.FindMainChamber(channels)
	if ch == nil {
		return ""
	}
	return strings.TrimSpace(ch.Topic)
}

func (h *Handler) complete(ctx context.Context, messages []chatctx.Message, turnEvent *int64) (string, error) {
	cctx, cancel := control.WithTimeout(ctx, h.opts.Policy.CompletionTimeout)
	defer cancel()

	start := time.Now()
	resp, err := h.provider.ChatCompletion(cctx, messages)
	latency := time.Since(start)
	h.metrics.ObserveBoundary(metrics.BoundaryCompletion, latency, err)
	if err != nil {
		return "", err
	}
	h.metrics.Tokens(resp.InputTokens, resp.OutputTokens)

	content := strings.TrimSpace(resp.Content)
	fallback := content == ""
	if fallback {
		content = h.opts.FallbackReply
	}
	h.events.Record(turnEvent, db.EventCompletionCompleted, map[string]any{
		"model_name":    h.opts.Model,
		"latency_ms":    latency.Milliseconds(),
		"input_tokens":  resp.InputTokens,
		"output_tokens": resp.OutputTokens,
		"fallback":      fallback,
	})
	return content, nil
}

// send delivers the first chunk as a reply to msg and the rest to the
// channel, in order.
func (h *Handler) send(ctx context.Context, msg *chat.Message, chunks []string) error {
	for i, chunk := range chunks {
		sctx, cancel := control.WithTimeout(ctx, h.opts.Policy.FetchTimeout)
		start := time.Now()
		var err error
		if i == 0 {
			err = h.platform.Reply(sctx, msg, chunk)
		} else {
			err = h.platform.Send(sctx, msg.ChannelID, chunk)
		}
		cancel()
		h.metrics.ObserveBoundary(metrics.BoundarySend, time.Since(start), err)
		if err != nil {
			return fmt.Errorf("send reply chunk %d/%d: %w", i+1, len(chunks), err)
		}
		h.metrics.ChunksSent(1)
	}
	return nil
}

func (h *Handler) checkWallTime(turnEvent *int64, startedAt time.Time) error {
	err := control.CheckWallTime(h.opts.Policy, startedAt, h.now())
	var limitErr *control.LimitError
	if errors.As(err, &limitErr) {
		h.events.Record(turnEvent, db.EventControlLimitReached, map[string]any{
			"limit_type": string(limitErr.Type),
			"value":      limitErr.Value,
			"threshold":  limitErr.Threshold,
		})
	}
	return err
}

// fail reports err back to the user as a reply to msg.
func (h *Handler) fail(ctx context.Context, msg *chat.Message, turnEvent *int64, err error, log zerolog.Logger) {
	h.metrics.Turn(metrics.OutcomeFailed)
	text := ErrorReply(h.opts.ErrorReplyPrefix, err)
	h.events.Record(turnEvent, db.EventTurnFailed, map[string]any{
		"error": truncate(err.Error(), 400),
	})
	log.Error().Err(err).Msg("Turn failed")

	if chunks := format.SplitMessage(text, h.opts.MaxChunkLength); len(chunks) > 0 {
		text = chunks[0]
	}
	rctx, cancel := control.WithTimeout(ctx, h.opts.Policy.FetchTimeout)
	defer cancel()
	if rerr := h.platform.Reply(rctx, msg, text); rerr != nil {
		log.Error().Err(rerr).Msg("Failed to deliver error reply")
	}
}

// ErrorReply renders the user-visible text for a failed turn.
func ErrorReply(prefix string, err error) string {
	text := ""
	if err != nil {
		text = err.Error()
	}
	if strings.TrimSpace(text) == "" {
		text = UnknownError
	}
	return prefix + text
}

func (h *Handler) react(ctx context.Context, msg *chat.Message, log zerolog.Logger) {
	if h.opts.ThinkingEmoji == "" {
		return
	}
	rctx, cancel := control.WithTimeout(ctx, h.opts.Policy.FetchTimeout)
	defer cancel()
	if err := h.platform.React(rctx, msg.ChannelID, msg.ID, h.opts.ThinkingEmoji); err != nil {
		log.Warn().Err(err).Msg("Failed to add thinking reaction")
	}
}

func (h *Handler) unreact(ctx context.Context, msg *chat.Message, log zerolog.Logger) {
	if h.opts.ThinkingEmoji == "" {
		return
	}
	rctx, cancel := control.WithTimeout(ctx, h.opts.Policy.FetchTimeout)
	defer cancel()
	if err := h.platform.Unreact(rctx, msg.ChannelID, msg.ID, h.opts.ThinkingEmoji); err != nil {
		log.Warn().Err(err).Msg("Failed to remove thinking reaction")
	}
}
