// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath string
	LogLevel     string

	// ForumFeedURL is the RSS feed of the forum section holding the
	// disclosure threads; ForumBaseURL resolves relative links.
	ForumFeedURL string
	ForumBaseURL string

	ScrapeInterval time.Duration
	RunDeadline    time.Duration
	MaxWorkers     int

	// StartDate optionally drops scraped records sent before it. Zero means
	// keep everything.
	StartDate time.Time

	HTTPAddr string

	// TelegramBotToken is optional; empty disables alerting.
	TelegramBotToken string
	TelegramChatID   int64
}

// Load reads configuration from the environment, with an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabasePath: envOrDefault("DATABASE_PATH", "./data/rofr.db"),
		LogLevel:     envOrDefault("LOG_LEVEL", "info"),
		ForumFeedURL: envOrDefault("FORUM_FEED_URL",
			"https://www.disboards.com/forums/purchasing-dvc.28/index.rss"),
		ForumBaseURL:     envOrDefault("FORUM_BASE_URL", "https://www.disboards.com/"),
		HTTPAddr:         envOrDefault("HTTP_ADDR", ":8080"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	var err error
	if cfg.ScrapeInterval, err = envDuration("SCRAPE_INTERVAL", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RunDeadline, err = envDuration("RUN_DEADLINE", 20*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MaxWorkers, err = envInt("MAX_WORKERS", 3); err != nil {
		return nil, err
	}
	if raw := os.Getenv("START_DATE"); raw != "" {
		cfg.StartDate, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("invalid START_DATE %q: %w", raw, err)
		}
	}
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		cfg.TelegramChatID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", raw, err)
		}
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}
