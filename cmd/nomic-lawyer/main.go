package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stupiduntilnot/nomic-lawyer/internal/bot"
	"github.com/stupiduntilnot/nomic-lawyer/internal/chat"
	"github.com/stupiduntilnot/nomic-lawyer/internal/config"
	"github.com/stupiduntilnot/nomic-lawyer/internal/db"
	"github.com/stupiduntilnot/nomic-lawyer/internal/discord"
	"github.com/stupiduntilnot/nomic-lawyer/internal/docs"
	"github.com/stupiduntilnot/nomic-lawyer/internal/dummy"
	"github.com/stupiduntilnot/nomic-lawyer/internal/format"
	"github.com/stupiduntilnot/nomic-lawyer/internal/metrics"
	"github.com/stupiduntilnot/nomic-lawyer/internal/model"
	"github.com/stupiduntilnot/nomic-lawyer/internal/openai"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[nomic-lawyer] %v\n", err)
		os.Exit(1)
	}
	log := newLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Bot exited")
	}
}

func newLogger(cfg config.BotConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("service", "nomic-lawyer").Logger()
}

// run wires the boundaries and serves until ctx is done.
func run(ctx context.Context, cfg config.BotConfig, log zerolog.Logger) error {
	database, err := db.OpenDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := db.InitSchema(database); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	events := db.NewRecorder(database, log)
	processEvent := events.Record(nil, db.EventProcessStarted, map[string]any{
		"role":     "bot",
		"pid":      os.Getpid(),
		"platform": cfg.Platform,
		"provider": cfg.ModelProvider,
		"model":    cfg.OpenAIModel,
		"docs":     cfg.DocsOwner + "/" + cfg.DocsRepo,
	})

	platform, listener, err := newPlatform(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to init chat platform: %w", err)
	}
	provider, err := newModelProvider(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to init model provider: %w", err)
	}
	policy := cfg.Policy()
	loader := docs.NewLoader(newDocumentFetcher(cfg), cfg.DocPaths(), policy.DocumentTimeout, log)
	collectors := metrics.New()

	handler := bot.New(bot.Deps{
		Platform:       platform,
		Provider:       provider,
		Documents:      loader,
		Events:         events,
		ProcessEventID: processEvent,
		Metrics:        collectors,
		Log:            log,
	}, bot.Options{
		Model:             cfg.OpenAIModel,
		BasePrompt:        cfg.BasePrompt,
		Citations:         format.NewCitationFormatter(cfg.DocsOwner, cfg.DocsRepo, cfg.DocsRef, cfg.DocsRulesPath),
		MaxReplyDepth:     cfg.MaxReplyDepth,
		MaxTraversalDepth: cfg.MaxTraversalDepth,
		HistoryDepth:      cfg.HistoryDepth,
		MaxChunkLength:    cfg.MaxChunkLength,
		ThinkingEmoji:     cfg.ThinkingEmoji,
		ErrorReplyPrefix:  cfg.ErrorReplyPrefix,
		FallbackReply:     cfg.FallbackReply,
		Policy:            policy,
	})

	log.Info().
		Str("platform", cfg.Platform).
		Str("provider", cfg.ModelProvider).
		Str("model", cfg.OpenAIModel).
		Str("docs", cfg.DocsOwner+"/"+cfg.DocsRepo).
		Msg("Starting bot")

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return collectors.Serve(gctx, cfg.MetricsAddr, log)
		})
	}
	g.Go(func() error {
		return listener.Listen(gctx, handler.HandleMessage)
	})
	err = g.Wait()

	events.Record(processEvent, db.EventProcessStopped, nil)
	log.Info().Msg("Bot stopped")
	return err
}

func newPlatform(cfg config.BotConfig, log zerolog.Logger) (chat.Platform, chat.Listener, error) {
	switch cfg.Platform {
	case config.PlatformDummy:
		p, err := dummy.NewPlatform(cfg.DummyBotID, cfg.DummySendScript, cfg.DummyInboundScript)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	default:
		c, err := discord.NewClient(cfg.DiscordToken, log)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	}
}

func newModelProvider(cfg config.BotConfig, log zerolog.Logger) (model.Provider, error) {
	if cfg.ModelProvider == config.ProviderDummy {
		return dummy.NewProvider(cfg.DummyProviderScript)
	}
	timeout := cfg.Policy().CompletionTimeout
	return openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, timeout, log), nil
}

func newDocumentFetcher(cfg config.BotConfig) docs.Fetcher {
	if cfg.DocsSource == config.DocsDummy {
		return dummy.NewDocuments(map[string]string{
			cfg.DocsRulesPath:   "101. All players must always abide by all the rules then in effect.",
			cfg.DocsAgendasPath: "No open proposals.",
			cfg.DocsPlayersPath: "No registered players.",
		})
	}
	return docs.NewGitHubFetcher(&http.Client{}, cfg.GitHubToken, cfg.DocsOwner, cfg.DocsRepo, cfg.DocsRef)
}
