package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ablyler/dvc-resale-data/internal/model"
)

func newTestStorage(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func testEntry(user, resort string, price float64, sent time.Time) model.Entry {
	e := model.Entry{
		Username:      user,
		PricePerPoint: price,
		Points:        150,
		Resort:        resort,
		UseYear:       "Aug",
		PointsDetails: "150 points per year (Aug UY)",
		SentDate:      sent,
		Result:        model.OutcomePending,
		ThreadURL:     "https://forum.example.com/t/1",
		RawEntry:      user + " raw",
	}
	e.EntryHash = e.Hash()
	return e
}

func TestUpsertEntry(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	e := testEntry("jdoe", "VGF", 150, date(2024, 3, 15))

	wasNew, wasUpdated, err := s.UpsertEntry(ctx, &e)
	if err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}
	if !wasNew || wasUpdated {
		t.Errorf("first upsert = (%v, %v), want (true, false)", wasNew, wasUpdated)
	}

	// Identical record again: unchanged.
	wasNew, wasUpdated, err = s.UpsertEntry(ctx, &e)
	if err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}
	if wasNew || wasUpdated {
		t.Errorf("identical upsert = (%v, %v), want (false, false)", wasNew, wasUpdated)
	}

	// Same identity, refreshed breakdown text: updated.
	e.PointsDetails = "100/23, 150/24"
	wasNew, wasUpdated, err = s.UpsertEntry(ctx, &e)
	if err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}
	if wasNew || !wasUpdated {
		t.Errorf("changed upsert = (%v, %v), want (false, true)", wasNew, wasUpdated)
	}

	got, err := s.GetEntry(ctx, e.EntryHash)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if diff := cmp.Diff(&e, got); diff != "" {
		t.Errorf("GetEntry mismatch (-want +got):\n%s", diff)
	}
}

func TestGetEntryNotFound(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.GetEntry(context.Background(), "no-such-hash")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetEntry error = %v, want ErrNotFound", err)
	}
}

func TestBatchUpsertEntries(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	existing := testEntry("alice", "SSR", 100, date(2024, 1, 5))
	if _, _, err := s.UpsertEntry(ctx, &existing); err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}

	dupeA := testEntry("bob", "VGF", 150, date(2024, 2, 1))
	dupeB := dupeA
	dupeB.PointsDetails = "150/24, 150/25"
	dupeB.EntryHash = dupeA.EntryHash // same identity, later text wins
	fresh := testEntry("carol", "AKV", 120, date(2024, 2, 2))

	res, err := s.BatchUpsertEntries(ctx, []model.Entry{existing, dupeA, dupeB, fresh})
	if err != nil {
		t.Fatalf("BatchUpsertEntries: %v", err)
	}
	want := BatchResult{
		Total: 3, New: 2, Unchanged: 1,
		NewHashes: []string{dupeA.EntryHash, fresh.EntryHash},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("BatchUpsertEntries mismatch (-want +got):\n%s", diff)
	}

	got, err := s.GetEntry(ctx, dupeA.EntryHash)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if got.PointsDetails != "150/24, 150/25" {
		t.Errorf("PointsDetails = %q, want the last occurrence to win", got.PointsDetails)
	}
}

func TestQueryEntries(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	seed := []model.Entry{
		testEntry("alice", "VGF", 150, date(2024, 1, 10)),
		testEntry("bob", "VGF", 180, date(2024, 2, 10)),
		testEntry("carol", "SSR", 95, date(2024, 3, 10)),
		testEntry("dave", "SSR", 105, date(2024, 4, 10)),
	}
	taken := testEntry("erin", "AKV", 88, date(2024, 5, 10))
	taken.Result = model.OutcomeTaken
	taken.EntryHash = taken.Hash()
	seed = append(seed, taken)

	if _, err := s.BatchUpsertEntries(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tests := []struct {
		name      string
		filter    Filter
		wantUsers []string
		wantTotal int
	}{
		{
			name:      "by resort",
			filter:    Filter{Resort: "VGF", SortBy: "sent_date", SortOrder: "asc"},
			wantUsers: []string{"alice", "bob"},
			wantTotal: 2,
		},
		{
			name:      "by result",
			filter:    Filter{Result: "taken"},
			wantUsers: []string{"erin"},
			wantTotal: 1,
		},
		{
			name:      "exclude result",
			filter:    Filter{ExcludeResult: "pending"},
			wantUsers: []string{"erin"},
			wantTotal: 1,
		},
		{
			name:      "price range",
			filter:    Filter{MinPrice: 100, MaxPrice: 160, SortBy: "price_per_point", SortOrder: "asc"},
			wantUsers: []string{"dave", "alice"},
			wantTotal: 2,
		},
		{
			name:      "username case insensitive",
			filter:    Filter{Username: "ALICE"},
			wantUsers: []string{"alice"},
			wantTotal: 1,
		},
		{
			name:      "pagination keeps the unpaginated total",
			filter:    Filter{SortBy: "sent_date", SortOrder: "asc", Limit: 2, Offset: 1},
			wantUsers: []string{"bob", "carol"},
			wantTotal: 5,
		},
		{
			name:      "unknown sort falls back to sent_date desc",
			filter:    Filter{SortBy: "evil; DROP TABLE entries", Limit: 1},
			wantUsers: []string{"erin"},
			wantTotal: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, total, err := s.QueryEntries(ctx, tt.filter)
			if err != nil {
				t.Fatalf("QueryEntries: %v", err)
			}
			users := make([]string, len(entries))
			for i, e := range entries {
				users[i] = e.Username
			}
			if diff := cmp.Diff(tt.wantUsers, users); diff != "" {
				t.Errorf("users mismatch (-want +got):\n%s", diff)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
		})
	}
}

func TestListDistinct(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	seed := []model.Entry{
		testEntry("bob", "VGF", 150, date(2024, 1, 10)),
		testEntry("alice", "SSR", 100, date(2024, 1, 11)),
		testEntry("alice", "VGF", 160, date(2024, 1, 12)),
	}
	if _, err := s.BatchUpsertEntries(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	resorts, err := s.ListResorts(ctx)
	if err != nil {
		t.Fatalf("ListResorts: %v", err)
	}
	if diff := cmp.Diff([]string{"SSR", "VGF"}, resorts); diff != "" {
		t.Errorf("resorts mismatch (-want +got):\n%s", diff)
	}

	reporters, err := s.ListReporters(ctx)
	if err != nil {
		t.Fatalf("ListReporters: %v", err)
	}
	if diff := cmp.Diff([]string{"alice", "bob"}, reporters); diff != "" {
		t.Errorf("reporters mismatch (-want +got):\n%s", diff)
	}
}

func TestThreadCheckpoints(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if _, err := s.GetThread(ctx, "https://forum.example.com/t/1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetThread on empty store: %v, want ErrNotFound", err)
	}

	start := date(2024, 1, 1)
	end := date(2024, 3, 31)
	thread := model.ThreadInfo{
		URL:        "https://forum.example.com/t/1",
		Title:      "ROFR Thread Jan to March 2024",
		StartYear:  2024,
		EndYear:    2024,
		StartMonth: "January",
		EndMonth:   "March",
		TotalPages: 40,
		StartDate:  &start,
		EndDate:    &end,
	}
	if err := s.UpsertThread(ctx, &thread); err != nil {
		t.Fatalf("UpsertThread: %v", err)
	}

	thread.LastScrapedPage = 17
	if err := s.UpsertThread(ctx, &thread); err != nil {
		t.Fatalf("UpsertThread checkpoint: %v", err)
	}

	got, err := s.GetThread(ctx, thread.URL)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if diff := cmp.Diff(&thread, got); diff != "" {
		t.Errorf("GetThread mismatch (-want +got):\n%s", diff)
	}
}

func TestSessions(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	sess := model.ScrapeSession{
		ID:        "run-1",
		StartedAt: date(2024, 6, 1),
		Status:    model.SessionRunning,
	}
	if err := s.StartSession(ctx, &sess); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	done := date(2024, 6, 1).Add(10 * time.Minute)
	sess.CompletedAt = &done
	sess.TotalThreads = 3
	sess.TotalEntries = 120
	sess.NewEntries = 100
	sess.UpdatedEntries = 5
	sess.Status = model.SessionCompleted
	if err := s.UpdateSession(ctx, &sess); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	got, err := s.RecentSessions(ctx, 10)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if diff := cmp.Diff([]model.ScrapeSession{sess}, got); diff != "" {
		t.Errorf("RecentSessions mismatch (-want +got):\n%s", diff)
	}
}

func TestStatsRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if _, err := s.GetStats(ctx, "global", "overview"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetStats on empty store: %v, want ErrNotFound", err)
	}

	doc := []byte(`{"total_entries":10}`)
	if err := s.PutStats(ctx, "global", "overview", doc); err != nil {
		t.Fatalf("PutStats: %v", err)
	}
	doc2 := []byte(`{"total_entries":11}`)
	if err := s.PutStats(ctx, "global", "overview", doc2); err != nil {
		t.Fatalf("PutStats overwrite: %v", err)
	}

	got, err := s.GetStats(ctx, "global", "overview")
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if string(got) != string(doc2) {
		t.Errorf("GetStats = %s, want %s", got, doc2)
	}
}
