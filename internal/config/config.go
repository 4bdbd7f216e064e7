package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port         string `env:"PORT" envDefault:"8080"`
	Environment  string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevelName string `env:"LOG_LEVEL" envDefault:"info"`
	LogLevel     slog.Level

	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`

	// NPC identity
	NPCAddress string `env:"NPC_ADDRESS" envDefault:"npc-gerald"`
	NPCName    string `env:"NPC_NAME" envDefault:"Gerald"`
	LockPlayer bool   `env:"LOCK_PLAYER" envDefault:"false"`

	// LLM
	LLMProvider         string        `env:"LLM_PROVIDER" envDefault:"anthropic"`
	AnthropicAPIKey     string        `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey        string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL       string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	ModelName           string        `env:"MODEL_NAME"`
	ExtractionModelName string        `env:"EXTRACTION_MODEL_NAME"`
	LLMTimeout          time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	ContentRating       string        `env:"CONTENT_RATING"` // G, PG and PG-13 soften profanity
	ExtractionCacheTTL  time.Duration `env:"EXTRACTION_CACHE_TTL" envDefault:"24h"`

	// Vector store
	Embedder       string `env:"EMBEDDER" envDefault:"hash"`
	EmbeddingModel string `env:"EMBEDDING_MODEL"`
	OllamaURL      string `env:"OLLAMA_URL" envDefault:"http://localhost:11434/api"`
	VectorDBPath   string `env:"VECTOR_DB_PATH"`

	// Player
	PlayerAddress string        `env:"PLAYER_ADDRESS"`
	ReplyTimeout  time.Duration `env:"REPLY_TIMEOUT" envDefault:"30s"`
}

// Load reads .env (when present) and then the process environment, and
// validates everything an NPC process needs.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadPlayer is Load for player-side tools, which never call the LLM or
// embed text.
func LoadPlayer() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if cfg.ReplyTimeout <= 0 {
		return nil, fmt.Errorf("REPLY_TIMEOUT must be positive")
	}
	return cfg, nil
}

// LoadSeed is Load for the offline seeding tool, which embeds text but
// never chats.
func LoadSeed() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateEmbedder(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)
	return cfg, nil
}

// Validate checks provider-dependent settings.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for provider %q", c.LLMProvider)
		}
	case "chatgpt":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider %q", c.LLMProvider)
		}
	case "mock":
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}

	if err := c.validateEmbedder(); err != nil {
		return err
	}

	if c.ReplyTimeout <= 0 {
		return fmt.Errorf("REPLY_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateEmbedder() error {
	switch c.Embedder {
	case "hash", "ollama":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for embedder %q", c.Embedder)
		}
	default:
		return fmt.Errorf("unsupported EMBEDDER %q", c.Embedder)
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
