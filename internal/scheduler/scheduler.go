// Package scheduler orchestrates scrape runs: thread discovery, page
// fetching, extraction, persistence, and the statistics recomputation that
// follows each run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ablyler/dvc-resale-data/internal/alert"
	"github.com/ablyler/dvc-resale-data/internal/fetcher"
	"github.com/ablyler/dvc-resale-data/internal/metrics"
	"github.com/ablyler/dvc-resale-data/internal/model"
	"github.com/ablyler/dvc-resale-data/internal/parser"
	"github.com/ablyler/dvc-resale-data/internal/stats"
	"github.com/ablyler/dvc-resale-data/internal/storage"
)

// Config tunes a Scheduler.
type Config struct {
	// Tick is the interval between scrape runs; zero disables the loop
	// (RunOnce only).
	Tick time.Duration
	// RunDeadline caps the wall-clock time of one run. Work stops between
	// pages when it expires; progress up to that point is already
	// checkpointed.
	RunDeadline time.Duration
	// MaxWorkers bounds how many threads are scraped concurrently.
	MaxWorkers int
	// StartDate drops extracted records sent before it when non-zero. This
	// is an operator cutoff, never a per-thread bound: a record can
	// legitimately predate its thread's first month when the sent date
	// crossed a year boundary.
	StartDate time.Time
}

// Notifier receives scrape outcomes. Satisfied by *alert.Notifier, including
// its nil form.
type Notifier interface {
	SessionSummary(sess *model.ScrapeSession)
	Anomalies(anomalies []alert.Anomaly)
}

// Scheduler drives periodic scrape runs.
type Scheduler struct {
	store     storage.Storage
	fetcher   *fetcher.Fetcher
	discovery *fetcher.Discovery
	extractor *parser.Extractor
	calc      *stats.Calculator
	notifier  Notifier
	metrics   *metrics.Metrics
	log       *slog.Logger
	cfg       Config

	// statsGuard serializes aggregation passes across components sharing
	// the semaphore. Injected from main.
	statsGuard chan struct{}
}

// New creates a Scheduler.
func New(store storage.Storage, f *fetcher.Fetcher, d *fetcher.Discovery,
	x *parser.Extractor, calc *stats.Calculator, notifier Notifier,
	m *metrics.Metrics, statsGuard chan struct{}, cfg Config, log *slog.Logger) *Scheduler {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 3
	}
	return &Scheduler{
		store:      store,
		fetcher:    f,
		discovery:  d,
		extractor:  x,
		calc:       calc,
		notifier:   notifier,
		metrics:    m,
		log:        log,
		cfg:        cfg,
		statsGuard: statsGuard,
	}
}

// Run executes one scrape immediately and then repeats on every tick,
// blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.RunOnce(ctx)
	if s.cfg.Tick <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a full scrape run: session bookkeeping, discovery,
// per-thread scraping, statistics recomputation, and notification.
func (s *Scheduler) RunOnce(ctx context.Context) {
	started := time.Now()
	sess := &model.ScrapeSession{
		ID:        fmt.Sprintf("run-%d", started.UTC().UnixNano()),
		StartedAt: started.UTC(),
		Status:    model.SessionRunning,
	}
	if err := s.store.StartSession(ctx, sess); err != nil {
		s.log.Error("start session", "error", err)
		return
	}

	runCtx := ctx
	if s.cfg.RunDeadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.RunDeadline)
		defer cancel()
	}

	newEntries, err := s.scrapeAll(runCtx, sess)

	done := time.Now().UTC()
	sess.CompletedAt = &done
	sess.Status = model.SessionCompleted
	if err != nil {
		sess.Status = model.SessionFailed
		sess.ErrorMessage = err.Error()
		s.metrics.ScrapeErrors.Inc()
		s.log.Error("scrape run failed", "session", sess.ID, "error", err)
	}
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		s.log.Error("update session", "session", sess.ID, "error", err)
	}
	s.metrics.ScrapeDuration.Observe(time.Since(started).Seconds())

	// Aggregation and alerting run against the parent context so that an
	// expired run deadline does not block the wrap-up work.
	s.recalculateStats(ctx)
	s.notifier.SessionSummary(sess)
	s.alertOnAnomalies(ctx, newEntries)

	s.log.Info("scrape run finished",
		"session", sess.ID,
		"status", sess.Status,
		"threads", sess.TotalThreads,
		"entries", sess.TotalEntries,
		"new", sess.NewEntries,
		"updated", sess.UpdatedEntries,
		"duration", time.Since(started).Round(time.Second).String())
}

func (s *Scheduler) scrapeAll(ctx context.Context, sess *model.ScrapeSession) ([]model.Entry, error) {
	currentURL, err := s.discovery.CurrentThread(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover current thread: %w", err)
	}

	threads, err := s.discovery.ThreadsFromIndex(ctx, currentURL)
	if err != nil {
		return nil, fmt.Errorf("discover threads: %w", err)
	}
	sess.TotalThreads = len(threads)

	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		newEntries []model.Entry
		sem        = make(chan struct{}, s.cfg.MaxWorkers)
	)
	for i := range threads {
		thread := threads[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			res, added := s.scrapeThread(ctx, &thread)
			mu.Lock()
			sess.TotalEntries += res.Total
			sess.NewEntries += res.New
			sess.UpdatedEntries += res.Updated
			newEntries = append(newEntries, added...)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return newEntries, ctx.Err()
}

// scrapeThread resumes a thread from its checkpoint and walks forward page
// by page, persisting after every page so an aborted run loses nothing.
func (s *Scheduler) scrapeThread(ctx context.Context, thread *model.ThreadInfo) (storage.BatchResult, []model.Entry) {
	var total storage.BatchResult
	var added []model.Entry

	stored, err := s.store.GetThread(ctx, thread.URL)
	if err == nil {
		thread.LastScrapedPage = stored.LastScrapedPage
		thread.TotalPages = stored.TotalPages
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.log.Error("load thread checkpoint", "thread_url", thread.URL, "error", err)
	}

	page := resumePage(thread)
	for {
		if ctx.Err() != nil {
			s.log.Warn("run deadline reached, stopping thread",
				"thread_url", thread.URL, "next_page", page)
			return total, added
		}

		parsed, err := s.fetchPageWithRetry(ctx, thread.URL, page)
		if err != nil {
			s.log.Error("fetch page", "thread_url", thread.URL, "page", page, "error", err)
			s.metrics.ScrapeErrors.Inc()
			return total, added
		}
		s.metrics.PagesScraped.Inc()

		batch := s.extractPage(parsed, thread)
		res, err := s.store.BatchUpsertEntries(ctx, batch)
		if err != nil {
			s.log.Error("persist entries", "thread_url", thread.URL, "page", page, "error", err)
			s.metrics.ScrapeErrors.Inc()
			return total, added
		}
		total.Total += res.Total
		total.New += res.New
		total.Updated += res.Updated
		total.Unchanged += res.Unchanged
		s.metrics.EntriesProcessed.WithLabelValues(metrics.StatusNew).Add(float64(res.New))
		s.metrics.EntriesProcessed.WithLabelValues(metrics.StatusUpdated).Add(float64(res.Updated))
		s.metrics.EntriesProcessed.WithLabelValues(metrics.StatusUnchanged).Add(float64(res.Unchanged))
		if len(res.NewHashes) > 0 {
			isNew := make(map[string]bool, len(res.NewHashes))
			for _, h := range res.NewHashes {
				isNew[h] = true
			}
			for _, e := range batch {
				if isNew[e.EntryHash] {
					added = append(added, e)
				}
			}
		}

		thread.LastScrapedPage = page
		thread.TotalPages = parsed.TotalPages
		if thread.Title == "" {
			thread.Title = parsed.Title
		}
		if err := s.store.UpsertThread(ctx, thread); err != nil {
			s.log.Error("checkpoint thread", "thread_url", thread.URL, "error", err)
		}

		if parsed.IsLastPage || page >= parsed.TotalPages {
			return total, added
		}
		page++
	}
}

// resumePage decides where to pick a thread up. A finished thread re-checks
// its last page because outcome edits land on existing posts.
func resumePage(thread *model.ThreadInfo) int {
	switch {
	case thread.LastScrapedPage == 0:
		return 1
	case thread.TotalPages > 0 && thread.LastScrapedPage >= thread.TotalPages:
		return thread.LastScrapedPage
	default:
		return thread.LastScrapedPage + 1
	}
}

func (s *Scheduler) extractPage(page *fetcher.Page, thread *model.ThreadInfo) []model.Entry {
	var entries []model.Entry
	for _, post := range page.Posts {
		pctx := parser.Context{
			ThreadYear:      thread.StartYear,
			PostTimestamp:   post.Timestamp,
			PosterUsername:  post.Author,
			StartDateFilter: s.cfg.StartDate,
		}
		entries = append(entries, s.extractor.Extract(post.Text, thread.URL, pctx)...)
	}
	return parser.Deduplicate(entries)
}

func (s *Scheduler) fetchPageWithRetry(ctx context.Context, threadURL string, page int) (*fetcher.Page, error) {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))

	var parsed *fetcher.Page
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		parsed, err = s.fetcher.FetchPage(ctx, threadURL, page)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	return parsed, err
}

// recalculateStats recomputes and stores every statistics scope. The guard
// semaphore keeps concurrent runs (and the API's ad-hoc recomputations) from
// aggregating at the same time.
func (s *Scheduler) recalculateStats(ctx context.Context) {
	select {
	case s.statsGuard <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-s.statsGuard }()

	s.metrics.StatsInProgress.Set(1)
	defer s.metrics.StatsInProgress.Set(0)

	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		s.log.Error("list entries for stats", "error", err)
		return
	}
	snap := s.calc.CalculateAll(entries, "all")
	if err := stats.Persist(ctx, s.store, snap); err != nil {
		s.log.Error("persist stats", "error", err)
	}
}

func (s *Scheduler) alertOnAnomalies(ctx context.Context, newEntries []model.Entry) {
	if len(newEntries) == 0 {
		return
	}
	corpus, err := s.store.ListEntries(ctx)
	if err != nil {
		s.log.Error("list entries for anomaly detection", "error", err)
		return
	}
	anomalies := alert.DetectAnomalies(corpus)

	newHashes := make(map[string]bool, len(newEntries))
	for _, e := range newEntries {
		newHashes[e.EntryHash] = true
	}
	var fresh []alert.Anomaly
	for _, a := range anomalies {
		if newHashes[a.Entry.EntryHash] {
			fresh = append(fresh, a)
		}
	}
	s.notifier.Anomalies(fresh)
}
