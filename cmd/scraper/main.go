package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ablyler/dvc-resale-data/internal/alert"
	"github.com/ablyler/dvc-resale-data/internal/config"
	"github.com/ablyler/dvc-resale-data/internal/fetcher"
	"github.com/ablyler/dvc-resale-data/internal/metrics"
	"github.com/ablyler/dvc-resale-data/internal/parser"
	"github.com/ablyler/dvc-resale-data/internal/scheduler"
	"github.com/ablyler/dvc-resale-data/internal/stats"
	"github.com/ablyler/dvc-resale-data/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	notifier, err := alert.NewNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, log)
	if err != nil {
		log.Error("create notifier", "error", err)
		os.Exit(1)
	}

	f := fetcher.New(http.DefaultClient)
	sched := scheduler.New(
		store,
		f,
		fetcher.NewDiscovery(f, cfg.ForumFeedURL, cfg.ForumBaseURL),
		parser.New(log),
		stats.New(log),
		notifier,
		metrics.New(prometheus.DefaultRegisterer),
		make(chan struct{}, 1),
		scheduler.Config{
			Tick:        cfg.ScrapeInterval,
			RunDeadline: cfg.RunDeadline,
			MaxWorkers:  cfg.MaxWorkers,
			StartDate:   cfg.StartDate,
		},
		log,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting scraper", "interval", cfg.ScrapeInterval, "workers", cfg.MaxWorkers)

	sched.Run(ctx)

	log.Info("scraper stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
