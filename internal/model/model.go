// Package model defines the domain types used across the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical on-disk and on-wire date format.
const DateLayout = "2006-01-02"

// Outcome is the reported ROFR result for a disclosure.
type Outcome string

// Supported outcomes.
const (
	OutcomePending Outcome = "pending"
	OutcomePassed  Outcome = "passed"
	OutcomeTaken   Outcome = "taken"
)

// Priority orders outcomes for status-update merging: a disclosure first
// reported "pending" and later quoted as "taken" collapses to "taken".
func (o Outcome) Priority() int {
	switch o {
	case OutcomeTaken:
		return 3
	case OutcomePassed:
		return 2
	case OutcomePending:
		return 1
	}
	return 0
}

// Valid reports whether o is one of the known outcome values.
func (o Outcome) Valid() bool {
	return o == OutcomePending || o == OutcomePassed || o == OutcomeTaken
}

// Entry represents one person's reported ROFR contract disclosure.
type Entry struct {
	Username      string     `json:"username"`
	PricePerPoint float64    `json:"price_per_point"`
	TotalCost     float64    `json:"total_cost,omitempty"` // 0 means not reported
	Points        int        `json:"points"`
	Resort        string     `json:"resort"`
	UseYear       string     `json:"use_year"`
	PointsDetails string     `json:"points_details"`
	SentDate      time.Time  `json:"-"`
	Result        Outcome    `json:"result"`
	ResultDate    *time.Time `json:"-"`
	ThreadURL     string     `json:"thread_url"`
	RawEntry      string     `json:"raw_entry"`
	EntryHash     string     `json:"entry_hash"`
}

// Hash returns the deterministic content digest identifying this disclosure
// event. It covers every semantically-identifying field, so the same
// disclosure reported on the same thread always maps to the same storage key.
func (e *Entry) Hash() string {
	resultDate := ""
	if e.ResultDate != nil {
		resultDate = e.ResultDate.Format(DateLayout)
	}
	totalCost := ""
	if e.TotalCost > 0 {
		totalCost = formatAmount(e.TotalCost)
	}
	key := strings.Join([]string{
		strings.ToLower(e.Username),
		formatAmount(e.PricePerPoint),
		totalCost,
		strconv.Itoa(e.Points),
		e.Resort,
		e.UseYear,
		e.SentDate.Format(DateLayout),
		string(e.Result),
		resultDate,
		e.ThreadURL,
	}, "|")
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", sum[:16])
}

// DedupeKey returns the identity key that excludes outcome and outcome date,
// used to collapse status updates of the same disclosure across posts.
func (e *Entry) DedupeKey() string {
	totalCost := ""
	if e.TotalCost > 0 {
		totalCost = formatAmount(e.TotalCost)
	}
	return strings.Join([]string{
		strings.ToLower(e.Username),
		formatAmount(e.PricePerPoint),
		totalCost,
		strconv.Itoa(e.Points),
		e.Resort,
		e.UseYear,
		e.SentDate.Format(DateLayout),
	}, "|")
}

// formatAmount renders a monetary value with minimal digits so that equal
// values always produce identical hash input ("150" rather than "150.00").
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ThreadInfo represents a forum thread being tracked. It is created on first
// discovery and mutated after every page processed; threads are never deleted
// so incremental scraping can resume where the last run stopped.
type ThreadInfo struct {
	URL             string
	Title           string
	StartYear       int
	EndYear         int
	StartMonth      string
	EndMonth        string
	LastScrapedPage int
	TotalPages      int
	StartDate       *time.Time
	EndDate         *time.Time
}

// URLHash returns the storage key for a thread.
func (t *ThreadInfo) URLHash() string {
	sum := sha256.Sum256([]byte(t.URL))
	return fmt.Sprintf("%x", sum[:16])
}

// Session status values.
const (
	SessionRunning   = "running"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)

// ScrapeSession tracks one scheduled scrape run for monitoring.
type ScrapeSession struct {
	ID             string
	StartedAt      time.Time
	CompletedAt    *time.Time
	TotalThreads   int
	TotalEntries   int
	NewEntries     int
	UpdatedEntries int
	Status         string
	ErrorMessage   string
}
