package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stupiduntilnot/nomic-lawyer/internal/prompt"
)

func setupBotEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_TOKEN", "test-token")
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("BOT_PLATFORM", "discord")
	t.Setenv("BOT_MODEL_PROVIDER", "openai")
	t.Setenv("BOT_CONFIG_FILE", "")
}

func TestLoad_Defaults(t *testing.T) {
	setupBotEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.OpenAIModel != "gpt-5" || cfg.DocsOwner != "SirRender00" || cfg.DocsRepo != "nomic" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxReplyDepth != 6 || cfg.MaxTraversalDepth != 12 || cfg.HistoryDepth != 10 || cfg.MaxChunkLength != 2000 {
		t.Fatalf("unexpected depth defaults: %+v", cfg)
	}
	if cfg.BasePrompt != prompt.DefaultBasePrompt {
		t.Fatal("expected default base prompt")
	}
	p := cfg.Policy()
	if p.CompletionTimeout != 120*time.Second || p.TurnWallTime != 180*time.Second {
		t.Fatalf("unexpected policy: %+v", p)
	}
	if got := cfg.DocPaths(); got.Rules != "rules.md" || got.Agendas != "agendas.md" || got.Players != "players.md" {
		t.Fatalf("unexpected doc paths: %+v", got)
	}
}

func TestLoad_RequiresTokens(t *testing.T) {
	setupBotEnv(t)
	t.Setenv("DISCORD_TOKEN", "")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "DISCORD_TOKEN") {
		t.Fatalf("expected DISCORD_TOKEN error, got %v", err)
	}

	setupBotEnv(t)
	t.Setenv("OPENAI_API_KEY", "")
	_, err = Load()
	if err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("expected OPENAI_API_KEY error, got %v", err)
	}
}

func TestLoad_DummyNeedsNoSecrets(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("BOT_CONFIG_FILE", "")
	t.Setenv("BOT_PLATFORM", "dummy")
	t.Setenv("BOT_MODEL_PROVIDER", "dummy")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestLoad_InvalidValuesNameKey(t *testing.T) {
	cases := map[string]string{
		"BOT_MAX_REPLY_DEPTH":        "six",
		"BOT_HISTORY_DEPTH":          "500",
		"BOT_MAX_CHUNK_LENGTH":       "0",
		"BOT_TURN_WALL_TIME_SECONDS": "-1",
		"BOT_PLATFORM":               "telegram",
		"BOT_MODEL_PROVIDER":         "anthropic",
		"LOG_FORMAT":                 "xml",
		"LOG_LEVEL":                  "loud",
		"DOCS_SOURCE":                "gitlab",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setupBotEnv(t)
			t.Setenv(key, value)
			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
			if !strings.Contains(err.Error(), key) {
				t.Fatalf("expected %s in error, got %v", key, err)
			}
		})
	}
}

func TestLoad_YAMLFileWithEnvOverride(t *testing.T) {
	setupBotEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "bot.yaml")
	yamlText := "openai_model: gpt-4o\nhistory_depth: 25\ndocs_owner: example\ndocs_ref: dev\nthinking_emoji: \"⏳\"\n"
	if err := os.WriteFile(path, []byte(yamlText), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOT_CONFIG_FILE", path)
	t.Setenv("BOT_HISTORY_DEPTH", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.OpenAIModel != "gpt-4o" || cfg.DocsOwner != "example" || cfg.DocsRef != "dev" || cfg.ThinkingEmoji != "⏳" {
		t.Fatalf("yaml values not applied: %+v", cfg)
	}
	if cfg.HistoryDepth != 30 {
		t.Fatalf("expected env override 30, got %d", cfg.HistoryDepth)
	}
	if cfg.DocsRepo != "nomic" {
		t.Fatalf("expected default repo to survive, got %q", cfg.DocsRepo)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	setupBotEnv(t)
	path := filepath.Join(t.TempDir(), "bot.yaml")
	if err := os.WriteFile(path, []byte("history_depth: [1, 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOT_CONFIG_FILE", path)
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "BOT_CONFIG_FILE") {
		t.Fatalf("expected BOT_CONFIG_FILE error, got %v", err)
	}
}

func TestLoad_BasePromptFile(t *testing.T) {
	setupBotEnv(t)
	path := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(path, []byte("You are a judge.\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOT_BASE_PROMPT_FILE", path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.BasePrompt != "You are a judge.\n" {
		t.Fatalf("unexpected base prompt %q", cfg.BasePrompt)
	}

	t.Setenv("BOT_BASE_PROMPT_FILE", filepath.Join(t.TempDir(), "missing.txt"))
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "BOT_BASE_PROMPT_FILE") {
		t.Fatalf("expected BOT_BASE_PROMPT_FILE error, got %v", err)
	}
}
