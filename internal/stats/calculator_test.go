package stats

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ablyler/dvc-resale-data/internal/model"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y, m, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func entry(user string, price float64, resort string, sent time.Time, result model.Outcome) model.Entry {
	return model.Entry{
		Username:      user,
		PricePerPoint: price,
		Points:        150,
		Resort:        resort,
		UseYear:       "Aug",
		SentDate:      sent,
		Result:        result,
	}
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCalculateAllGlobal(t *testing.T) {
	now := date(2024, 6, 1)
	entries := []model.Entry{
		entry("alice", 100, "VGF", date(2024, 1, 10), model.OutcomeTaken),
		entry("bob", 110, "VGF", date(2024, 1, 11), model.OutcomeTaken),
		entry("carol", 120, "SSR", date(2024, 1, 12), model.OutcomeTaken),
		entry("alice", 130, "SSR", date(2024, 1, 13), model.OutcomePassed),
		entry("dave", 140, "SSR", date(2024, 1, 14), model.OutcomePassed),
		entry("erin", 90, "AKV", date(2024, 1, 15), model.OutcomePassed),
		entry("frank", 95, "AKV", date(2024, 1, 16), model.OutcomePassed),
		entry("grace", 105, "BLT", date(2024, 1, 17), model.OutcomePending),
		entry("heidi", 115, "BLT", date(2024, 1, 18), model.OutcomePending),
		entry("ivan", 125, "BLT", date(2024, 1, 19), model.OutcomePending),
	}

	c := New(nil)
	c.Now = fixedNow(now)
	snap := c.CalculateAll(entries, "all")

	g := snap.Global
	if g.TotalEntries != 10 {
		t.Errorf("TotalEntries = %d, want 10", g.TotalEntries)
	}
	if g.ROFRRate != 30.00 {
		t.Errorf("ROFRRate = %v, want 30.00", g.ROFRRate)
	}
	if g.TakenCount != 3 || g.PassedCount != 4 || g.PendingCount != 3 {
		t.Errorf("outcome split = %d/%d/%d, want 3/4/3",
			g.TakenCount, g.PassedCount, g.PendingCount)
	}
	if g.UniqueResorts != 4 {
		t.Errorf("UniqueResorts = %d, want 4", g.UniqueResorts)
	}
	if g.UniqueUsers != 9 {
		t.Errorf("UniqueUsers = %d, want 9", g.UniqueUsers)
	}
	if g.MedianPricePerPoint != 112.5 {
		t.Errorf("MedianPricePerPoint = %v, want 112.5", g.MedianPricePerPoint)
	}
	if g.AvgPricePerPoint != 113 {
		t.Errorf("AvgPricePerPoint = %v, want 113", g.AvgPricePerPoint)
	}
	if g.LatestEntryDate != "2024-01-19" {
		t.Errorf("LatestEntryDate = %q, want 2024-01-19", g.LatestEntryDate)
	}
	if snap.TimeRange != "all" {
		t.Errorf("TimeRange = %q, want all", snap.TimeRange)
	}
}

func TestCalculateAllDefensiveNormalization(t *testing.T) {
	now := date(2024, 6, 1)
	outOfRange := entry("alice", 1500, "VGF", date(2024, 1, 10), model.OutcomeTaken)
	noResort := entry("bob", 100, "", date(2024, 1, 11), model.OutcomePassed)
	badOutcome := entry("carol", 110, "SSR", date(2024, 1, 12), model.Outcome("withdrawn"))

	c := New(nil)
	c.Now = fixedNow(now)
	g := c.CalculateAll([]model.Entry{outOfRange, noResort, badOutcome}, "all").Global

	// The out-of-range price is excluded from price stats but the record
	// still counts toward totals and the outcome split.
	if g.TotalEntries != 3 {
		t.Errorf("TotalEntries = %d, want 3", g.TotalEntries)
	}
	if g.PriceCount != 2 {
		t.Errorf("PriceCount = %d, want 2", g.PriceCount)
	}
	if g.AvgPricePerPoint != 105 {
		t.Errorf("AvgPricePerPoint = %v, want 105", g.AvgPricePerPoint)
	}
	if g.TakenCount != 1 {
		t.Errorf("TakenCount = %d, want 1", g.TakenCount)
	}
	if g.PendingCount != 1 {
		t.Errorf("PendingCount = %d, want 1 (unknown outcome defaults to pending)", g.PendingCount)
	}
	if g.ResortCounts["Unknown"] != 1 {
		t.Errorf(`ResortCounts["Unknown"] = %d, want 1`, g.ResortCounts["Unknown"])
	}
}

func TestCalculateAllDaysToResult(t *testing.T) {
	now := date(2024, 6, 1)
	ok := entry("alice", 100, "VGF", date(2024, 1, 10), model.OutcomeTaken)
	ok.ResultDate = datePtr(2024, 2, 9) // 30 days
	negative := entry("bob", 100, "VGF", date(2024, 3, 10), model.OutcomePassed)
	negative.ResultDate = datePtr(2024, 2, 1)
	unresolved := entry("carol", 100, "VGF", date(2024, 3, 15), model.OutcomePending)

	c := New(nil)
	c.Now = fixedNow(now)
	g := c.CalculateAll([]model.Entry{ok, negative, unresolved}, "all").Global

	if g.DaysToResultCount != 1 {
		t.Errorf("DaysToResultCount = %d, want 1 (negative intervals excluded)", g.DaysToResultCount)
	}
	if g.AvgDaysToResult != 30 {
		t.Errorf("AvgDaysToResult = %v, want 30", g.AvgDaysToResult)
	}
}

func TestCalculateAllTimeRange(t *testing.T) {
	now := date(2024, 6, 1)
	recent := entry("alice", 100, "VGF", date(2024, 5, 1), model.OutcomeTaken)
	old := entry("bob", 100, "VGF", date(2023, 7, 1), model.OutcomePassed)

	c := New(nil)
	c.Now = fixedNow(now)

	tests := []struct {
		timeRange string
		want      int
	}{
		{"3months", 1},
		{"1year", 2},
		{"all", 2},
		{"bogus", 2},
	}
	for _, tt := range tests {
		t.Run(tt.timeRange, func(t *testing.T) {
			snap := c.CalculateAll([]model.Entry{recent, old}, tt.timeRange)
			if snap.Global.TotalEntries != tt.want {
				t.Errorf("TotalEntries = %d, want %d", snap.Global.TotalEntries, tt.want)
			}
			if snap.OriginalEntriesCount != 2 {
				t.Errorf("OriginalEntriesCount = %d, want 2", snap.OriginalEntriesCount)
			}
		})
	}
}

func TestTopResortsTieBreak(t *testing.T) {
	counts := map[string]int{"VGF": 2, "SSR": 2, "AKV": 3}
	order := []string{"SSR", "VGF", "AKV"}

	got := topResorts(counts, order, 10)
	want := []ResortCount{
		{Resort: "AKV", Count: 3},
		{Resort: "SSR", Count: 2},
		{Resort: "VGF", Count: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("topResorts() mismatch (-want +got):\n%s", diff)
	}
}

func TestPriceTrends(t *testing.T) {
	now := date(2024, 6, 1)
	entries := []model.Entry{
		entry("a", 100, "VGF", date(2024, 4, 1), model.OutcomePending),
		entry("b", 102, "VGF", date(2024, 4, 15), model.OutcomePending),
		entry("c", 110, "VGF", date(2024, 5, 1), model.OutcomePending),
		entry("d", 112, "VGF", date(2024, 5, 15), model.OutcomePending),
		// Two SSR records: below the minimum sample, no trend.
		entry("e", 120, "SSR", date(2024, 5, 1), model.OutcomePending),
		entry("f", 121, "SSR", date(2024, 5, 2), model.OutcomePending),
		// Outside the 90-day window.
		entry("g", 90, "VGF", date(2023, 1, 1), model.OutcomePending),
	}

	c := New(nil)
	c.Now = fixedNow(now)
	trends := c.CalculateAll(entries, "all").PriceTrends

	if trends.TotalEntries != 6 {
		t.Errorf("TotalEntries = %d, want 6", trends.TotalEntries)
	}
	if _, ok := trends.Trends["SSR"]; ok {
		t.Error("SSR should have no trend with fewer than 3 records")
	}
	vgf, ok := trends.Trends["VGF"]
	if !ok {
		t.Fatal("missing VGF trend")
	}
	want := ResortTrend{
		EntryCount:      4,
		FirstHalfAvg:    101,
		SecondHalfAvg:   111,
		TrendDirection:  "increasing",
		TrendPercentage: 9.9,
		LatestPrice:     112,
		EarliestPrice:   100,
	}
	if diff := cmp.Diff(want, vgf); diff != "" {
		t.Errorf("VGF trend mismatch (-want +got):\n%s", diff)
	}
}

func TestMonthlyTrendPointsRateVariants(t *testing.T) {
	entries := []model.Entry{
		entry("a", 100, "VGF", date(2024, 3, 1), model.OutcomeTaken),
		entry("b", 110, "VGF", date(2024, 3, 5), model.OutcomePassed),
		entry("c", 120, "VGF", date(2024, 3, 9), model.OutcomePending),
		entry("d", 130, "VGF", date(2024, 3, 13), model.OutcomePending),
	}

	c := New(nil)
	points := c.MonthlyTrendPoints(entries)
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1", len(points))
	}
	p := points[0]
	if p.Month != "2024-03" {
		t.Errorf("Month = %q, want 2024-03", p.Month)
	}
	if p.RateInclPending != 25 {
		t.Errorf("RateInclPending = %v, want 25", p.RateInclPending)
	}
	if p.RateResolvedOnly != 50 {
		t.Errorf("RateResolvedOnly = %v, want 50", p.RateResolvedOnly)
	}
}

func TestMonthlyTrendPointsOrdered(t *testing.T) {
	entries := []model.Entry{
		entry("a", 100, "VGF", date(2024, 5, 1), model.OutcomePending),
		entry("b", 100, "VGF", date(2024, 3, 1), model.OutcomePending),
		entry("c", 100, "VGF", date(2024, 4, 1), model.OutcomePending),
	}

	c := New(nil)
	points := c.MonthlyTrendPoints(entries)
	months := make([]string, len(points))
	for i, p := range points {
		months[i] = p.Month
	}
	if diff := cmp.Diff([]string{"2024-03", "2024-04", "2024-05"}, months); diff != "" {
		t.Errorf("month order mismatch (-want +got):\n%s", diff)
	}
}
