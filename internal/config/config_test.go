package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabasePath != "./data/rofr.db" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.ScrapeInterval != 6*time.Hour {
		t.Errorf("ScrapeInterval = %v, want 6h", cfg.ScrapeInterval)
	}
	if cfg.MaxWorkers != 3 {
		t.Errorf("MaxWorkers = %d, want 3", cfg.MaxWorkers)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SCRAPE_INTERVAL", "30m")
	t.Setenv("MAX_WORKERS", "8")
	t.Setenv("START_DATE", "2024-01-01")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("TELEGRAM_CHAT_ID", "12345")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ScrapeInterval != 30*time.Minute {
		t.Errorf("ScrapeInterval = %v, want 30m", cfg.ScrapeInterval)
	}
	if cfg.MaxWorkers != 8 {
		t.Errorf("MaxWorkers = %d, want 8", cfg.MaxWorkers)
	}
	if cfg.TelegramChatID != 12345 {
		t.Errorf("TelegramChatID = %d, want 12345", cfg.TelegramChatID)
	}
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); !cfg.StartDate.Equal(want) {
		t.Errorf("StartDate = %v, want %v", cfg.StartDate, want)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "SCRAPE_INTERVAL", "soon"},
		{"bad worker count", "MAX_WORKERS", "many"},
		{"bad start date", "START_DATE", "March 2024"},
		{"bad chat id", "TELEGRAM_CHAT_ID", "not-a-number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoadTokenRequiresChatID(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	if _, err := Load(); err == nil {
		t.Error("expected error when TELEGRAM_CHAT_ID is missing")
	}
}
