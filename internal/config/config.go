package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/stupiduntilnot/nomic-lawyer/internal/control"
	"github.com/stupiduntilnot/nomic-lawyer/internal/docs"
	"github.com/stupiduntilnot/nomic-lawyer/internal/prompt"
)

const (
	PlatformDiscord = "discord"
	PlatformDummy   = "dummy"
	ProviderOpenAI  = "openai"
	ProviderDummy   = "dummy"
	DocsGitHub      = "github"
	DocsDummy       = "dummy"
)

// BotConfig holds configuration for the bot process. Values come from the
// optional YAML file named by BOT_CONFIG_FILE, overridden by environment
// variables.
type BotConfig struct {
	Platform      string `yaml:"platform"`
	ModelProvider string `yaml:"model_provider"`

	DiscordToken  string `yaml:"discord_token"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIModel   string `yaml:"openai_model"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	GitHubToken   string `yaml:"github_token"`

	DocsSource      string `yaml:"docs_source"`
	DocsOwner       string `yaml:"docs_owner"`
	DocsRepo        string `yaml:"docs_repo"`
	DocsRef         string `yaml:"docs_ref"`
	DocsRulesPath   string `yaml:"docs_rules_path"`
	DocsAgendasPath string `yaml:"docs_agendas_path"`
	DocsPlayersPath string `yaml:"docs_players_path"`

	MaxReplyDepth     int    `yaml:"max_reply_depth"`
	MaxTraversalDepth int    `yaml:"max_traversal_depth"`
	HistoryDepth      int    `yaml:"history_depth"`
	MaxChunkLength    int    `yaml:"max_chunk_length"`
	ThinkingEmoji     string `yaml:"thinking_emoji"`
	ErrorReplyPrefix  string `yaml:"error_reply_prefix"`
	FallbackReply     string `yaml:"fallback_reply"`
	BasePromptFile    string `yaml:"base_prompt_file"`
	// BasePrompt is DefaultBasePrompt or the contents of BasePromptFile.
	BasePrompt string `yaml:"-"`

	FetchTimeoutSeconds      int `yaml:"fetch_timeout_seconds"`
	DocsTimeoutSeconds       int `yaml:"docs_timeout_seconds"`
	CompletionTimeoutSeconds int `yaml:"completion_timeout_seconds"`
	TurnWallTimeSeconds      int `yaml:"turn_wall_time_seconds"`

	DBPath      string `yaml:"db_path"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	DummyBotID          string `yaml:"dummy_bot_id"`
	DummyProviderScript string `yaml:"dummy_provider_script"`
	DummySendScript     string `yaml:"dummy_send_script"`
	DummyInboundScript  string `yaml:"dummy_inbound_script"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() BotConfig {
	paths := docs.DefaultPaths()
	return BotConfig{
		Platform:                 PlatformDiscord,
		ModelProvider:            ProviderOpenAI,
		OpenAIModel:              "gpt-5",
		DocsSource:               DocsGitHub,
		DocsOwner:                "SirRender00",
		DocsRepo:                 "nomic",
		DocsRulesPath:            paths.Rules,
		DocsAgendasPath:          paths.Agendas,
		DocsPlayersPath:          paths.Players,
		MaxReplyDepth:            6,
		MaxTraversalDepth:        12,
		HistoryDepth:             10,
		MaxChunkLength:           2000,
		ThinkingEmoji:            "🤔",
		ErrorReplyPrefix:         "Something went wrong: ",
		FallbackReply:            "I have absolutely no idea. Try rephrasing the question.",
		FetchTimeoutSeconds:      10,
		DocsTimeoutSeconds:       20,
		CompletionTimeoutSeconds: 120,
		TurnWallTimeSeconds:      180,
		DBPath:                   "./state/events.db",
		LogLevel:                 "info",
		LogFormat:                "json",
		DummyBotID:               "dummy-bot",
		DummyProviderScript:      "ok",
		DummySendScript:          "ok",
	}
}

// Load reads the bot configuration.
func Load() (BotConfig, error) {
	cfg := Defaults()

	if path := os.Getenv("BOT_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return BotConfig{}, fmt.Errorf("BOT_CONFIG_FILE: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return BotConfig{}, fmt.Errorf("BOT_CONFIG_FILE %s: %w", path, err)
		}
	}

	cfg.Platform = envOrDefault("BOT_PLATFORM", cfg.Platform)
	cfg.ModelProvider = envOrDefault("BOT_MODEL_PROVIDER", cfg.ModelProvider)
	cfg.DiscordToken = envOrDefault("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.OpenAIAPIKey = envOrDefault("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIModel = envOrDefault("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.OpenAIBaseURL = envOrDefault("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.GitHubToken = envOrDefault("GITHUB_TOKEN", cfg.GitHubToken)
	cfg.DocsSource = envOrDefault("DOCS_SOURCE", cfg.DocsSource)
	cfg.DocsOwner = envOrDefault("DOCS_OWNER", cfg.DocsOwner)
	cfg.DocsRepo = envOrDefault("DOCS_REPO", cfg.DocsRepo)
	cfg.DocsRef = envOrDefault("DOCS_REF", cfg.DocsRef)
	cfg.DocsRulesPath = envOrDefault("DOCS_RULES_PATH", cfg.DocsRulesPath)
	cfg.DocsAgendasPath = envOrDefault("DOCS_AGENDAS_PATH", cfg.DocsAgendasPath)
	cfg.DocsPlayersPath = envOrDefault("DOCS_PLAYERS_PATH", cfg.DocsPlayersPath)
	cfg.ThinkingEmoji = envOrDefault("BOT_THINKING_EMOJI", cfg.ThinkingEmoji)
	cfg.ErrorReplyPrefix = envOrDefault("BOT_ERROR_PREFIX", cfg.ErrorReplyPrefix)
	cfg.FallbackReply = envOrDefault("BOT_FALLBACK_REPLY", cfg.FallbackReply)
	cfg.BasePromptFile = envOrDefault("BOT_BASE_PROMPT_FILE", cfg.BasePromptFile)
	cfg.DBPath = envOrDefault("BOT_DB_PATH", cfg.DBPath)
	cfg.MetricsAddr = envOrDefault("METRICS_ADDR", cfg.MetricsAddr)
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.DummyBotID = envOrDefault("BOT_DUMMY_BOT_ID", cfg.DummyBotID)
	cfg.DummyProviderScript = envOrDefault("BOT_DUMMY_PROVIDER_SCRIPT", cfg.DummyProviderScript)
	cfg.DummySendScript = envOrDefault("BOT_DUMMY_SEND_SCRIPT", cfg.DummySendScript)
	cfg.DummyInboundScript = envOrDefault("BOT_DUMMY_INBOUND_SCRIPT", cfg.DummyInboundScript)

	ints := []struct {
		key string
		dst *int
	}{
		{"BOT_MAX_REPLY_DEPTH", &cfg.MaxReplyDepth},
		{"BOT_MAX_TRAVERSAL_DEPTH", &cfg.MaxTraversalDepth},
		{"BOT_HISTORY_DEPTH", &cfg.HistoryDepth},
		{"BOT_MAX_CHUNK_LENGTH", &cfg.MaxChunkLength},
		{"BOT_FETCH_TIMEOUT_SECONDS", &cfg.FetchTimeoutSeconds},
		{"BOT_DOCS_TIMEOUT_SECONDS", &cfg.DocsTimeoutSeconds},
		{"BOT_COMPLETION_TIMEOUT_SECONDS", &cfg.CompletionTimeoutSeconds},
		{"BOT_TURN_WALL_TIME_SECONDS", &cfg.TurnWallTimeSeconds},
	}
	for _, it := range ints {
		n, err := envInt(it.key, *it.dst)
		if err != nil {
			return BotConfig{}, err
		}
		*it.dst = n
	}

	cfg.BasePrompt = prompt.DefaultBasePrompt
	if cfg.BasePromptFile != "" {
		data, err := os.ReadFile(cfg.BasePromptFile)
		if err != nil {
			return BotConfig{}, fmt.Errorf("BOT_BASE_PROMPT_FILE: %w", err)
		}
		if strings.TrimSpace(string(data)) == "" {
			return BotConfig{}, fmt.Errorf("BOT_BASE_PROMPT_FILE %s is empty", cfg.BasePromptFile)
		}
		cfg.BasePrompt = string(data)
	}

	if err := cfg.validate(); err != nil {
		return BotConfig{}, err
	}
	return cfg, nil
}

func (c BotConfig) validate() error {
	switch c.Platform {
	case PlatformDiscord:
		if c.DiscordToken == "" {
			return fmt.Errorf("DISCORD_TOKEN is required in environment when BOT_PLATFORM=discord")
		}
	case PlatformDummy:
	default:
		return fmt.Errorf("BOT_PLATFORM must be %q or %q, got %q", PlatformDiscord, PlatformDummy, c.Platform)
	}
	switch c.ModelProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required in environment when BOT_MODEL_PROVIDER=openai")
		}
	case ProviderDummy:
	default:
		return fmt.Errorf("BOT_MODEL_PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderDummy, c.ModelProvider)
	}
	if c.DocsSource != DocsGitHub && c.DocsSource != DocsDummy {
		return fmt.Errorf("DOCS_SOURCE must be %q or %q, got %q", DocsGitHub, DocsDummy, c.DocsSource)
	}
	if c.DocsOwner == "" || c.DocsRepo == "" {
		return fmt.Errorf("DOCS_OWNER and DOCS_REPO must not be empty")
	}
	nonNegative := []struct {
		key string
		v   int
	}{
		{"BOT_MAX_REPLY_DEPTH", c.MaxReplyDepth},
		{"BOT_MAX_TRAVERSAL_DEPTH", c.MaxTraversalDepth},
		{"BOT_HISTORY_DEPTH", c.HistoryDepth},
		{"BOT_FETCH_TIMEOUT_SECONDS", c.FetchTimeoutSeconds},
		{"BOT_DOCS_TIMEOUT_SECONDS", c.DocsTimeoutSeconds},
		{"BOT_COMPLETION_TIMEOUT_SECONDS", c.CompletionTimeoutSeconds},
		{"BOT_TURN_WALL_TIME_SECONDS", c.TurnWallTimeSeconds},
	}
	for _, n := range nonNegative {
		if n.v < 0 {
			return fmt.Errorf("%s must be >= 0, got %d", n.key, n.v)
		}
	}
	if c.HistoryDepth > 100 {
		return fmt.Errorf("BOT_HISTORY_DEPTH must be <= 100, got %d", c.HistoryDepth)
	}
	if c.MaxChunkLength <= 0 {
		return fmt.Errorf("BOT_MAX_CHUNK_LENGTH must be > 0, got %d", c.MaxChunkLength)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("LOG_FORMAT must be \"json\" or \"console\", got %q", c.LogFormat)
	}
	return nil
}

// Policy returns the per-boundary timeouts.
func (c BotConfig) Policy() control.Policy {
	return control.Policy{
		FetchTimeout:      seconds(c.FetchTimeoutSeconds),
		DocumentTimeout:   seconds(c.DocsTimeoutSeconds),
		CompletionTimeout: seconds(c.CompletionTimeoutSeconds),
		TurnWallTime:      seconds(c.TurnWallTimeSeconds),
	}
}

// DocPaths returns the document locations in the repository.
func (c BotConfig) DocPaths() docs.Paths {
	return docs.Paths{Rules: c.DocsRulesPath, Agendas: c.DocsAgendasPath, Players: c.DocsPlayersPath}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}
