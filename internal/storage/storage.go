// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"github.com/ablyler/dvc-resale-data/internal/model"
)

// Filter narrows and orders an entry query. Zero values mean "no constraint".
type Filter struct {
	Resort        string
	Result        string
	ExcludeResult string
	Username      string
	UseYear       string
	SentAfter     *time.Time
	SentBefore    *time.Time
	MinPrice      float64
	MaxPrice      float64
	MinPoints     int
	MaxPoints     int
	MinTotalCost  float64

	// SortBy must be one of the whitelisted column names; anything else
	// falls back to sent_date. SortOrder is "asc" or "desc".
	SortBy    string
	SortOrder string

	Limit  int
	Offset int
}

// BatchResult reports what a batch upsert did.
type BatchResult struct {
	Total     int
	New       int
	Updated   int
	Unchanged int

	// NewHashes identifies the inserted entries, in batch order.
	NewHashes []string
}

// Storage is the interface for all persistence operations.
type Storage interface {
	UpsertEntry(ctx context.Context, e *model.Entry) (wasNew, wasUpdated bool, err error)
	BatchUpsertEntries(ctx context.Context, entries []model.Entry) (BatchResult, error)
	GetEntry(ctx context.Context, hash string) (*model.Entry, error)
	QueryEntries(ctx context.Context, f Filter) ([]model.Entry, int, error)
	ListEntries(ctx context.Context) ([]model.Entry, error)
	ListResorts(ctx context.Context) ([]string, error)
	ListReporters(ctx context.Context) ([]string, error)

	GetThread(ctx context.Context, url string) (*model.ThreadInfo, error)
	UpsertThread(ctx context.Context, t *model.ThreadInfo) error
	ListThreads(ctx context.Context) ([]model.ThreadInfo, error)

	StartSession(ctx context.Context, s *model.ScrapeSession) error
	UpdateSession(ctx context.Context, s *model.ScrapeSession) error
	RecentSessions(ctx context.Context, limit int) ([]model.ScrapeSession, error)

	PutStats(ctx context.Context, kind, key string, payload []byte) error
	GetStats(ctx context.Context, kind, key string) ([]byte, error)

	Close() error
}
