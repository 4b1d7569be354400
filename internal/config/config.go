// Package config loads runtime settings from the environment and an optional
// .env file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/glimt/glimt/pkg/logging"
)

// Config holds the settings shared by every glimt command.
type Config struct {
	DBPath        string
	OllamaHost    string
	EmbedModel    string
	EmbedTimeout  time.Duration
	LogLevel      logging.Level
	QueryPrefix   string
	PassagePrefix string
	PullModels    bool
}

// Load reads .env files (missing ones are ignored) and then the GLIMT_*
// environment variables. Variables already set in the environment win over
// .env entries.
func Load(envFiles ...string) (Config, error) {
	_ = godotenv.Load(envFiles...)
	return fromEnv()
}

func fromEnv() (Config, error) {
	cfg := Config{
		DBPath:        envOrDefault("GLIMT_DB_PATH", "glimt.db"),
		OllamaHost:    envOrDefault("GLIMT_OLLAMA_HOST", "http://localhost:11434"),
		EmbedModel:    envOrDefault("GLIMT_EMBED_MODEL", "nomic-embed-text"),
		QueryPrefix:   os.Getenv("GLIMT_QUERY_PREFIX"),
		PassagePrefix: os.Getenv("GLIMT_PASSAGE_PREFIX"),
	}

	timeout, err := time.ParseDuration(envOrDefault("GLIMT_EMBED_TIMEOUT", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("GLIMT_EMBED_TIMEOUT: %w", err)
	}
	if timeout <= 0 {
		return Config{}, fmt.Errorf("GLIMT_EMBED_TIMEOUT must be positive, got %s", timeout)
	}
	cfg.EmbedTimeout = timeout

	level, err := logging.ParseLevel(envOrDefault("GLIMT_LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, fmt.Errorf("GLIMT_LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	switch v := os.Getenv("GLIMT_PULL_MODELS"); v {
	case "", "0", "false", "no":
	case "1", "true", "yes":
		cfg.PullModels = true
	default:
		return Config{}, fmt.Errorf("GLIMT_PULL_MODELS: invalid boolean %q", v)
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
