// Package stats aggregates stored disclosure records into the snapshot
// documents served by the API. All computation is in-memory over a record
// slice; persistence of the resulting JSON lives in the storage package.
package stats

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/ablyler/dvc-resale-data/internal/model"
)

// Prices outside this range are ignored for aggregation even though the
// record itself is kept. Wider than the parser's gate on purpose: records
// from older imports may carry values the current parser would reject.
const maxAggregatePrice = 1000

// trendPeriodDays is the lookback window for the per-resort price trend.
const trendPeriodDays = 90

// minTrendRecords is the smallest sample a trend is computed from.
const minTrendRecords = 3

// ResortCount pairs a resort code with its record count.
type ResortCount struct {
	Resort string `json:"resort"`
	Count  int    `json:"count"`
}

// GlobalStats is the corpus-wide aggregate.
type GlobalStats struct {
	TotalEntries        int            `json:"total_entries"`
	UniqueResorts       int            `json:"unique_resorts"`
	UniqueUsers         int            `json:"unique_users"`
	AvgPricePerPoint    float64        `json:"avg_price_per_point"`
	MinPricePerPoint    float64        `json:"min_price_per_point"`
	MaxPricePerPoint    float64        `json:"max_price_per_point"`
	MedianPricePerPoint float64        `json:"median_price_per_point"`
	PriceCount          int            `json:"price_count"`
	ROFRRate            float64        `json:"rofr_rate"`
	TakenCount          int            `json:"taken_count"`
	PassedCount         int            `json:"passed_count"`
	PendingCount        int            `json:"pending_count"`
	LatestEntryDate     string         `json:"latest_entry_date,omitempty"`
	ResortCounts        map[string]int `json:"resort_counts"`
	TopResorts          []ResortCount  `json:"top_resorts"`
	ActiveResorts       int            `json:"active_resorts"`
	AvgDaysToResult     float64        `json:"avg_days_to_result"`
	DaysToResultCount   int            `json:"days_to_result_count"`
	LastCalculated      string         `json:"last_calculated"`
}

// ResortStats is the per-resort aggregate.
type ResortStats struct {
	ResortCode       string  `json:"resort_code"`
	ResortName       string  `json:"resort_name"`
	TotalEntries     int     `json:"total_entries"`
	AvgPricePerPoint float64 `json:"avg_price_per_point"`
	MinPrice         float64 `json:"min_price"`
	MaxPrice         float64 `json:"max_price"`
	MedianPrice      float64 `json:"median_price"`
	PriceCount       int     `json:"price_count"`
	ROFRRate         float64 `json:"rofr_rate"`
	TakenCount       int     `json:"taken_count"`
	PassedCount      int     `json:"passed_count"`
	PendingCount     int     `json:"pending_count"`
	LatestEntryDate  string  `json:"latest_entry_date,omitempty"`
	LastCalculated   string  `json:"last_calculated"`
}

// MonthlyStats is the aggregate for one YYYY-MM sent-month bucket.
type MonthlyStats struct {
	Month            string        `json:"month"`
	TotalEntries     int           `json:"total_entries"`
	UniqueResorts    int           `json:"unique_resorts"`
	UniqueUsers      int           `json:"unique_users"`
	AvgPricePerPoint float64       `json:"avg_price_per_point"`
	MinPricePerPoint float64       `json:"min_price_per_point"`
	MaxPricePerPoint float64       `json:"max_price_per_point"`
	PriceCount       int           `json:"price_count"`
	ROFRRate         float64       `json:"rofr_rate"`
	TakenCount       int           `json:"taken_count"`
	PassedCount      int           `json:"passed_count"`
	PendingCount     int           `json:"pending_count"`
	TopResorts       []ResortCount `json:"top_resorts"`
	LastCalculated   string        `json:"last_calculated"`
}

// ResortTrend describes the recent price movement for one resort.
type ResortTrend struct {
	EntryCount      int     `json:"entry_count"`
	FirstHalfAvg    float64 `json:"first_half_avg"`
	SecondHalfAvg   float64 `json:"second_half_avg"`
	TrendDirection  string  `json:"trend_direction"`
	TrendPercentage float64 `json:"trend_percentage"`
	LatestPrice     float64 `json:"latest_price"`
	EarliestPrice   float64 `json:"earliest_price"`
}

// PriceTrends holds per-resort trends over the lookback window.
type PriceTrends struct {
	TrendPeriodDays int                    `json:"trend_period_days"`
	TotalEntries    int                    `json:"total_entries"`
	Trends          map[string]ResortTrend `json:"trends"`
	LastCalculated  string                 `json:"last_calculated"`
}

// Snapshot is the full statistics document stored per calculation run.
type Snapshot struct {
	Global                GlobalStats             `json:"global"`
	Resorts               map[string]ResortStats  `json:"resorts"`
	Monthly               map[string]MonthlyStats `json:"monthly"`
	PriceTrends           PriceTrends             `json:"price_trends"`
	CalculationTime       string                  `json:"calculation_time"`
	TotalEntriesProcessed int                     `json:"total_entries_processed"`
	TimeRange             string                  `json:"time_range"`
	OriginalEntriesCount  int                     `json:"original_entries_count"`
}

// Calculator aggregates records into snapshots. Now is injectable so tests
// can pin the trend window and time-range cutoffs.
type Calculator struct {
	log *slog.Logger

	// Now returns the aggregation reference time; nil means time.Now.
	Now func() time.Time
}

// New creates a Calculator. A nil logger falls back to slog.Default().
func New(log *slog.Logger) *Calculator {
	if log == nil {
		log = slog.Default()
	}
	return &Calculator{log: log}
}

func (c *Calculator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// CalculateAll aggregates entries into a full snapshot, optionally restricted
// to a trailing time range ("3months", "6months", "1year", "all").
func (c *Calculator) CalculateAll(entries []model.Entry, timeRange string) *Snapshot {
	now := c.now()
	filtered := c.filterByTimeRange(entries, timeRange, now)
	stamp := now.UTC().Format(time.RFC3339)

	return &Snapshot{
		Global:                c.globalStats(filtered, stamp),
		Resorts:               c.resortStats(filtered, stamp),
		Monthly:               c.monthlyStats(filtered, stamp),
		PriceTrends:           c.priceTrends(filtered, now, stamp),
		CalculationTime:       stamp,
		TotalEntriesProcessed: len(filtered),
		TimeRange:             timeRangeOrAll(timeRange),
		OriginalEntriesCount:  len(entries),
	}
}

func timeRangeOrAll(timeRange string) string {
	if timeRange == "" {
		return "all"
	}
	return timeRange
}

// FilterByTimeRange restricts entries to the trailing window named by
// timeRange, using the calculator's clock.
func (c *Calculator) FilterByTimeRange(entries []model.Entry, timeRange string) []model.Entry {
	return c.filterByTimeRange(entries, timeRange, c.now())
}

func (c *Calculator) filterByTimeRange(entries []model.Entry, timeRange string, now time.Time) []model.Entry {
	var days int
	switch timeRange {
	case "", "all":
		return entries
	case "3months":
		days = 90
	case "6months":
		days = 180
	case "1year":
		days = 365
	default:
		c.log.Warn("unknown time range, using all entries", "time_range", timeRange)
		return entries
	}

	cutoff := now.AddDate(0, 0, -days)
	filtered := make([]model.Entry, 0, len(entries))
	for _, e := range entries {
		if !e.SentDate.Before(cutoff) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// resortOf normalizes the resort for aggregation. Records can predate the
// current validation rules, so an empty resort is bucketed, not dropped.
func resortOf(e *model.Entry) string {
	if e.Resort == "" {
		return "Unknown"
	}
	return e.Resort
}

func usernameOf(e *model.Entry) string {
	if e.Username == "" {
		return "Unknown"
	}
	return e.Username
}

// outcomeOf maps unexpected stored values to pending so one bad row cannot
// skew the result split.
func (c *Calculator) outcomeOf(e *model.Entry) model.Outcome {
	if e.Result == "" {
		return model.OutcomePending
	}
	if !e.Result.Valid() {
		c.log.Warn("unexpected result value, defaulting to pending",
			"result", string(e.Result), "entry_hash", e.EntryHash)
		return model.OutcomePending
	}
	return e.Result
}

func aggregatePrice(e *model.Entry) (float64, bool) {
	if e.PricePerPoint > 0 && e.PricePerPoint < maxAggregatePrice {
		return e.PricePerPoint, true
	}
	return 0, false
}

func daysToResult(e *model.Entry) (int, bool) {
	if e.SentDate.IsZero() || e.ResultDate == nil {
		return 0, false
	}
	days := int(e.ResultDate.Sub(e.SentDate).Hours() / 24)
	if days < 0 {
		return 0, false
	}
	return days, true
}

func (c *Calculator) globalStats(entries []model.Entry, stamp string) GlobalStats {
	stats := GlobalStats{
		ResortCounts:   map[string]int{},
		TopResorts:     []ResortCount{},
		LastCalculated: stamp,
	}
	if len(entries) == 0 {
		return stats
	}

	var (
		prices      []float64
		resortOrder []string
		users       = map[string]bool{}
		daysTotal   int
		latest      time.Time
	)
	for i := range entries {
		e := &entries[i]
		resort := resortOf(e)
		if _, seen := stats.ResortCounts[resort]; !seen {
			resortOrder = append(resortOrder, resort)
		}
		stats.ResortCounts[resort]++
		users[usernameOf(e)] = true

		switch c.outcomeOf(e) {
		case model.OutcomeTaken:
			stats.TakenCount++
		case model.OutcomePassed:
			stats.PassedCount++
		default:
			stats.PendingCount++
		}

		if p, ok := aggregatePrice(e); ok {
			prices = append(prices, p)
		}
		if d, ok := daysToResult(e); ok {
			daysTotal += d
			stats.DaysToResultCount++
		}
		if e.SentDate.After(latest) {
			latest = e.SentDate
		}
	}

	stats.TotalEntries = len(entries)
	stats.UniqueResorts = len(stats.ResortCounts)
	stats.UniqueUsers = len(users)
	stats.ActiveResorts = len(stats.ResortCounts)
	stats.ROFRRate = round2(float64(stats.TakenCount) / float64(len(entries)) * 100)
	stats.TopResorts = topResorts(stats.ResortCounts, resortOrder, 10)

	avg, min, max, median, count := priceStats(prices)
	stats.AvgPricePerPoint = avg
	stats.MinPricePerPoint = min
	stats.MaxPricePerPoint = max
	stats.MedianPricePerPoint = median
	stats.PriceCount = count

	if stats.DaysToResultCount > 0 {
		stats.AvgDaysToResult = round1(float64(daysTotal) / float64(stats.DaysToResultCount))
	}
	if !latest.IsZero() {
		stats.LatestEntryDate = latest.Format(model.DateLayout)
	}
	return stats
}

func (c *Calculator) resortStats(entries []model.Entry, stamp string) map[string]ResortStats {
	type bucket struct {
		prices                []float64
		taken, passed, pending int
		latest                time.Time
	}
	buckets := map[string]*bucket{}
	for i := range entries {
		e := &entries[i]
		resort := resortOf(e)
		b := buckets[resort]
		if b == nil {
			b = &bucket{}
			buckets[resort] = b
		}
		switch c.outcomeOf(e) {
		case model.OutcomeTaken:
			b.taken++
		case model.OutcomePassed:
			b.passed++
		default:
			b.pending++
		}
		if p, ok := aggregatePrice(e); ok {
			b.prices = append(b.prices, p)
		}
		if e.SentDate.After(b.latest) {
			b.latest = e.SentDate
		}
	}

	out := make(map[string]ResortStats, len(buckets))
	for resort, b := range buckets {
		total := b.taken + b.passed + b.pending
		avg, min, max, median, count := priceStats(b.prices)
		rs := ResortStats{
			ResortCode:       resort,
			ResortName:       model.ResortName(resort),
			TotalEntries:     total,
			AvgPricePerPoint: avg,
			MinPrice:         min,
			MaxPrice:         max,
			MedianPrice:      median,
			PriceCount:       count,
			ROFRRate:         round2(float64(b.taken) / float64(total) * 100),
			TakenCount:       b.taken,
			PassedCount:      b.passed,
			PendingCount:     b.pending,
			LastCalculated:   stamp,
		}
		if !b.latest.IsZero() {
			rs.LatestEntryDate = b.latest.Format(model.DateLayout)
		}
		out[resort] = rs
	}
	return out
}

func (c *Calculator) monthlyStats(entries []model.Entry, stamp string) map[string]MonthlyStats {
	type bucket struct {
		prices                []float64
		taken, passed, pending int
		resortCounts          map[string]int
		resortOrder           []string
		users                 map[string]bool
	}
	buckets := map[string]*bucket{}
	for i := range entries {
		e := &entries[i]
		if e.SentDate.IsZero() {
			continue
		}
		key := e.SentDate.Format("2006-01")
		b := buckets[key]
		if b == nil {
			b = &bucket{resortCounts: map[string]int{}, users: map[string]bool{}}
			buckets[key] = b
		}
		resort := resortOf(e)
		if _, seen := b.resortCounts[resort]; !seen {
			b.resortOrder = append(b.resortOrder, resort)
		}
		b.resortCounts[resort]++
		b.users[usernameOf(e)] = true
		switch c.outcomeOf(e) {
		case model.OutcomeTaken:
			b.taken++
		case model.OutcomePassed:
			b.passed++
		default:
			b.pending++
		}
		if p, ok := aggregatePrice(e); ok {
			b.prices = append(b.prices, p)
		}
	}

	out := make(map[string]MonthlyStats, len(buckets))
	for month, b := range buckets {
		total := b.taken + b.passed + b.pending
		avg, min, max, _, count := priceStats(b.prices)
		out[month] = MonthlyStats{
			Month:            month,
			TotalEntries:     total,
			UniqueResorts:    len(b.resortCounts),
			UniqueUsers:      len(b.users),
			AvgPricePerPoint: avg,
			MinPricePerPoint: min,
			MaxPricePerPoint: max,
			PriceCount:       count,
			ROFRRate:         round2(float64(b.taken) / float64(total) * 100),
			TakenCount:       b.taken,
			PassedCount:      b.passed,
			PendingCount:     b.pending,
			TopResorts:       topResorts(b.resortCounts, b.resortOrder, 10),
			LastCalculated:   stamp,
		}
	}
	return out
}

// topResorts ranks by count descending. Stable sort over first-appearance
// order makes ties deterministic across runs.
func topResorts(counts map[string]int, order []string, limit int) []ResortCount {
	ranked := make([]ResortCount, 0, len(order))
	for _, resort := range order {
		ranked = append(ranked, ResortCount{Resort: resort, Count: counts[resort]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func priceStats(prices []float64) (avg, min, max, median float64, count int) {
	if len(prices) == 0 {
		return 0, 0, 0, 0, 0
	}
	sorted := make([]float64, len(prices))
	copy(sorted, prices)
	sort.Float64s(sorted)

	var sum float64
	for _, p := range sorted {
		sum += p
	}
	mid := len(sorted) / 2
	median = sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}
	return round2(sum / float64(len(sorted))), round2(sorted[0]),
		round2(sorted[len(sorted)-1]), round2(median), len(sorted)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
