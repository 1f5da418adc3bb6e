package stats

import (
	"sort"
	"time"

	"github.com/ablyler/dvc-resale-data/internal/model"
)

// priceTrends computes per-resort price movement over the trailing window.
// Each resort needs at least minTrendRecords priced records; the trend is the
// mean of the chronologically earlier half against the later half.
func (c *Calculator) priceTrends(entries []model.Entry, now time.Time, stamp string) PriceTrends {
	trends := PriceTrends{
		TrendPeriodDays: trendPeriodDays,
		Trends:          map[string]ResortTrend{},
		LastCalculated:  stamp,
	}

	type point struct {
		date  time.Time
		price float64
	}
	cutoff := now.AddDate(0, 0, -trendPeriodDays)
	byResort := map[string][]point{}
	for i := range entries {
		e := &entries[i]
		if e.SentDate.IsZero() || e.SentDate.Before(cutoff) || e.PricePerPoint <= 0 {
			continue
		}
		resort := resortOf(e)
		byResort[resort] = append(byResort[resort], point{e.SentDate, e.PricePerPoint})
		trends.TotalEntries++
	}

	for resort, points := range byResort {
		if len(points) < minTrendRecords {
			continue
		}
		sort.Slice(points, func(i, j int) bool { return points[i].date.Before(points[j].date) })

		mid := len(points) / 2
		var firstSum, secondSum float64
		for _, p := range points[:mid] {
			firstSum += p.price
		}
		for _, p := range points[mid:] {
			secondSum += p.price
		}
		firstAvg := firstSum / float64(mid)
		secondAvg := secondSum / float64(len(points)-mid)

		direction := "decreasing"
		if secondAvg > firstAvg {
			direction = "increasing"
		}
		var pct float64
		if firstAvg > 0 {
			pct = (secondAvg - firstAvg) / firstAvg * 100
		}

		trends.Trends[resort] = ResortTrend{
			EntryCount:      len(points),
			FirstHalfAvg:    round2(firstAvg),
			SecondHalfAvg:   round2(secondAvg),
			TrendDirection:  direction,
			TrendPercentage: round2(pct),
			LatestPrice:     points[len(points)-1].price,
			EarliestPrice:   points[0].price,
		}
	}
	return trends
}

// MonthlyTrendPoint is one month on the price-trends chart. Both ROFR-rate
// denominators are reported side by side: RateResolvedOnly divides taken by
// decided records, RateInclPending divides by all records. They answer
// different questions and must not be mixed.
type MonthlyTrendPoint struct {
	Month            string  `json:"month"`
	EntryCount       int     `json:"entry_count"`
	AvgPrice         float64 `json:"avg_price"`
	MinPrice         float64 `json:"min_price"`
	MaxPrice         float64 `json:"max_price"`
	TakenCount       int     `json:"taken_count"`
	PassedCount      int     `json:"passed_count"`
	PendingCount     int     `json:"pending_count"`
	RateResolvedOnly float64 `json:"rofr_rate_resolved_only"`
	RateInclPending  float64 `json:"rofr_rate_incl_pending"`
}

// MonthlyTrendPoints buckets entries by sent month, ascending. Records with
// prices outside the aggregation gate still count toward the outcome split.
func (c *Calculator) MonthlyTrendPoints(entries []model.Entry) []MonthlyTrendPoint {
	type bucket struct {
		prices                 []float64
		taken, passed, pending int
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
			b = &bucket{}
			buckets[key] = b
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
	}

	months := make([]string, 0, len(buckets))
	for m := range buckets {
		months = append(months, m)
	}
	sort.Strings(months)

	points := make([]MonthlyTrendPoint, 0, len(months))
	for _, m := range months {
		b := buckets[m]
		total := b.taken + b.passed + b.pending
		resolved := b.taken + b.passed
		avg, min, max, _, _ := priceStats(b.prices)

		p := MonthlyTrendPoint{
			Month:           m,
			EntryCount:      total,
			AvgPrice:        avg,
			MinPrice:        min,
			MaxPrice:        max,
			TakenCount:      b.taken,
			PassedCount:     b.passed,
			PendingCount:    b.pending,
			RateInclPending: round2(float64(b.taken) / float64(total) * 100),
		}
		if resolved > 0 {
			p.RateResolvedOnly = round2(float64(b.taken) / float64(resolved) * 100)
		}
		points = append(points, p)
	}
	return points
}
