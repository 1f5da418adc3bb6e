// Package parser extracts structured ROFR disclosure records from free-form
// forum post text. It is pure computation: no I/O, no clock access beyond the
// injectable Context.Now used for year disambiguation.
package parser

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ablyler/dvc-resale-data/internal/model"
)

// entryPattern is the disclosure grammar:
//
//	REPORTER --- $PRICE [-$TOTAL] - POINTS - RESORT [- USE_YEAR] - [BREAKDOWN] - sent DATE [, (passed|taken) DATE]
//
// The breakdown segment is intentionally permissive free text; the lazy group
// stops at the "sent" keyword. Resort codes are uppercase letters with an
// optional "(E)" expiration variant or "@LOCATION" suffix.
var entryPattern = regexp.MustCompile(
	`(?i)([a-z0-9_][a-z0-9_ .'\-]*?)\s*---\s*` +
		`\$(\d+(?:\.\d+)?)\s*` +
		`(?:-\s*\$([\d,]+(?:\.\d+)?)\s*)?` +
		`-\s*(\d+)\s*` +
		`-\s*([A-Za-z]+(?:\(E\))?(?:@[A-Za-z]+)?)\s*` +
		`(?:-\s*([A-Za-z]{3,9})\s*)?` +
		`-\s*(.*?)\s*` +
		`-?\s*sent\s+(\d+/\d+(?:/\d+)?)` +
		`(?:\s*,\s*(passed|taken)\s+(\d+/\d+(?:/\d+)?))?`,
)

// Price acceptance gate: exclusive bounds, enforced at extraction time so
// out-of-range candidates never reach storage.
const (
	maxPricePerPoint = 500
)

// Context carries per-post metadata used to validate and date candidates.
type Context struct {
	// ThreadYear is the year inferred from the thread title; 0 when unknown.
	ThreadYear int
	// PostTimestamp is the forum post's Unix timestamp as a string; the
	// preferred source for resolving two-part dates when plausible.
	PostTimestamp string
	// PosterUsername cross-checks the extracted reporter name. When empty,
	// candidates are accepted unconditionally (permissive legacy mode).
	PosterUsername string
	// StartDateFilter drops candidates sent before this date when non-zero.
	StartDateFilter time.Time
	// Now anchors the future-date correction; zero value means time.Now().
	Now time.Time
}

func (c Context) now() time.Time {
	if c.Now.IsZero() {
		return time.Now()
	}
	return c.Now
}

// Extractor turns post text into validated disclosure records.
type Extractor struct {
	log *slog.Logger
}

// New creates an Extractor. A nil logger falls back to slog.Default().
func New(log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{log: log}
}

// Extract scans text for all non-overlapping grammar matches and returns the
// candidates that survive validation. Malformed matches are skipped, never
// fatal: a single garbled entry must not abort the post.
func (x *Extractor) Extract(text, threadURL string, ctx Context) []model.Entry {
	var entries []model.Entry

	for _, m := range entryPattern.FindAllStringSubmatch(text, -1) {
		entry, ok := x.buildEntry(m, threadURL, ctx)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

func (x *Extractor) buildEntry(m []string, threadURL string, ctx Context) (model.Entry, bool) {
	username := strings.TrimSpace(m[1])
	priceStr, totalStr, pointsStr := m[2], m[3], m[4]
	resort := strings.TrimSpace(m[5])
	useYear := model.NormalizeUseYear(m[6])
	breakdownRaw := m[7]
	sentStr := m[8]
	result := model.OutcomePending
	if m[9] != "" {
		result = model.Outcome(strings.ToLower(m[9]))
	}
	resultStr := m[10]

	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil || price <= 0 || price >= maxPricePerPoint {
		x.log.Debug("rejecting entry: price out of range", "username", username, "price", priceStr)
		return model.Entry{}, false
	}

	var totalCost float64
	if totalStr != "" {
		totalCost, err = strconv.ParseFloat(strings.ReplaceAll(totalStr, ",", ""), 64)
		if err != nil || totalCost <= 0 {
			x.log.Debug("rejecting entry: bad total cost", "username", username, "total_cost", totalStr)
			return model.Entry{}, false
		}
	}

	points, err := strconv.Atoi(pointsStr)
	if err != nil || points <= 0 {
		x.log.Debug("rejecting entry: bad point count", "username", username, "points", pointsStr)
		return model.Entry{}, false
	}

	if username == "" || resort == "" {
		return model.Entry{}, false
	}

	if ctx.PosterUsername != "" && !strings.EqualFold(username, ctx.PosterUsername) {
		x.log.Debug("rejecting entry: reporter does not match poster",
			"extracted", username, "poster", ctx.PosterUsername)
		return model.Entry{}, false
	}

	sentDate, ok := resolveDate(sentStr, ctx)
	if !ok {
		x.log.Warn("skipping entry: could not resolve sent date",
			"username", username, "sent_date", sentStr)
		return model.Entry{}, false
	}

	var resultDate *time.Time
	if resultStr != "" {
		if d, ok := resolveDate(resultStr, ctx); ok {
			d = adjustResultDateRollover(sentDate, d)
			resultDate = &d
		}
	}
	if result == model.OutcomePending {
		resultDate = nil
	}

	if !ctx.StartDateFilter.IsZero() && sentDate.Before(ctx.StartDateFilter) {
		return model.Entry{}, false
	}

	breakdown := ExtractPointsBreakdown(breakdownRaw)
	if breakdown == "" {
		breakdown = strconv.Itoa(points) + " points per year (" + useYear + " UY)"
	}

	entry := model.Entry{
		Username:      username,
		PricePerPoint: price,
		TotalCost:     totalCost,
		Points:        points,
		Resort:        resort,
		UseYear:       useYear,
		PointsDetails: breakdown,
		SentDate:      sentDate,
		Result:        result,
		ResultDate:    resultDate,
		ThreadURL:     threadURL,
		RawEntry:      m[0],
	}
	entry.EntryHash = entry.Hash()
	return entry, true
}
