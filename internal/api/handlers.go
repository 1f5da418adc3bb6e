package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/ablyler/dvc-resale-data/internal/export"
	"github.com/ablyler/dvc-resale-data/internal/model"
	"github.com/ablyler/dvc-resale-data/internal/stats"
	"github.com/ablyler/dvc-resale-data/internal/storage"
)

const (
	defaultPageSize  = 100
	maxPageSize      = 500
	maxMonthlyMonths = 36
)

// handleStats serves the precomputed global statistics document.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	payload, err := s.store.GetStats(r.Context(), stats.KindGlobal, stats.KeyOverview)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "no statistics available yet; run the scraper first")
		return
	}
	if err != nil {
		s.log.Error("load stats", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to load statistics")
		return
	}
	s.respondData(w, json.RawMessage(payload))
}

// handleData serves filtered, sorted, paginated records.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, total, err := s.store.QueryEntries(r.Context(), filter)
	if err != nil {
		s.log.Error("query entries", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to query records")
		return
	}

	s.respondData(w, map[string]any{
		"entries":     toJSONEntries(entries),
		"total_count": total,
		"limit":       filter.Limit,
		"offset":      filter.Offset,
		"filters":     echoFilters(r),
	})
}

func (s *Server) handleResorts(w http.ResponseWriter, r *http.Request) {
	s.respondData(w, model.AllResorts())
}

func (s *Server) handleUsernames(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.ListReporters(r.Context())
	if err != nil {
		s.log.Error("list reporters", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to list reporters")
		return
	}
	if names == nil {
		names = []string{}
	}
	s.respondData(w, names)
}

// handleMonthlyStats serves the most recent monthly buckets from the stored
// snapshot, newest first.
func (s *Server) handleMonthlyStats(w http.ResponseWriter, r *http.Request) {
	months := defaultMonthly(r.URL.Query().Get("months"))

	payload, err := s.store.GetStats(r.Context(), stats.KindSnapshot, stats.KeyAll)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "no statistics available yet; run the scraper first")
		return
	}
	if err != nil {
		s.log.Error("load snapshot", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to load statistics")
		return
	}

	var snap stats.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		s.log.Error("decode snapshot", "error", err)
		s.respondError(w, http.StatusInternalServerError, "corrupt statistics document")
		return
	}

	keys := make([]string, 0, len(snap.Monthly))
	for k := range snap.Monthly {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if len(keys) > months {
		keys = keys[:months]
	}
	out := make([]stats.MonthlyStats, 0, len(keys))
	for _, k := range keys {
		out = append(out, snap.Monthly[k])
	}
	s.respondData(w, out)
}

func defaultMonthly(raw string) int {
	months, err := strconv.Atoi(raw)
	if err != nil || months <= 0 {
		return 24
	}
	if months > maxMonthlyMonths {
		return maxMonthlyMonths
	}
	return months
}

// handleDashboard recomputes the full snapshot for the requested window.
// Recomputation shares the aggregation guard with the scraper.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	timeRange := r.URL.Query().Get("time_range")
	switch timeRange {
	case "", "all", "3months", "6months", "1year":
	default:
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown time_range %q", timeRange))
		return
	}

	select {
	case s.statsGuard <- struct{}{}:
	case <-r.Context().Done():
		return
	}
	defer func() { <-s.statsGuard }()

	entries, err := s.store.ListEntries(r.Context())
	if err != nil {
		s.log.Error("list entries", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to load records")
		return
	}
	if len(entries) == 0 {
		s.respondError(w, http.StatusNotFound, "no records available yet")
		return
	}
	s.respondData(w, s.calc.CalculateAll(entries, timeRange))
}

// handleAnalytics serves an ad-hoc aggregate over a filtered subset.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	filter := storage.Filter{
		Resort: r.URL.Query().Get("resort"),
		Result: r.URL.Query().Get("result"),
	}
	entries, total, err := s.store.QueryEntries(r.Context(), filter)
	if err != nil {
		s.log.Error("query entries", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to query records")
		return
	}
	if total == 0 {
		s.respondError(w, http.StatusNotFound, "no records match the requested breakdown")
		return
	}
	snap := s.calc.CalculateAll(entries, "all")
	s.respondData(w, map[string]any{
		"global":  snap.Global,
		"monthly": snap.Monthly,
		"filters": echoFilters(r),
	})
}

// handlePriceTrends serves monthly trend points carrying both ROFR-rate
// variants for the filtered subset.
func (s *Server) handlePriceTrends(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.Filter{Resort: q.Get("resort")}
	var err error
	if filter.MinPrice, err = parseFloat(q.Get("minPrice")); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.MaxPrice, err = parseFloat(q.Get("maxPrice")); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, _, err := s.store.QueryEntries(r.Context(), filter)
	if err != nil {
		s.log.Error("query entries", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to query records")
		return
	}
	entries = s.calc.FilterByTimeRange(entries, q.Get("timeRange"))
	if len(entries) == 0 {
		s.respondError(w, http.StatusNotFound, "no records match the requested trend window")
		return
	}

	s.respondData(w, map[string]any{
		"points":  s.calc.MonthlyTrendPoints(entries),
		"filters": echoFilters(r),
	})
}

// handleExport streams the corpus as CSV or JSON.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	entries, err := s.store.ListEntries(r.Context())
	if err != nil {
		s.log.Error("list entries", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to load records")
		return
	}

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="rofr_data.csv"`)
		err = export.WriteCSV(w, entries)
	case "json":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="rofr_data.json"`)
		err = export.WriteJSON(w, entries, time.Now())
	default:
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q", format))
		return
	}
	if err != nil {
		s.log.Error("write export", "format", format, "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondData(w, map[string]string{"status": "ok"})
}

func filterFromQuery(r *http.Request) (storage.Filter, error) {
	q := r.URL.Query()
	f := storage.Filter{
		Resort:        q.Get("resort"),
		Result:        q.Get("result"),
		ExcludeResult: q.Get("exclude_result"),
		Username:      q.Get("username"),
		UseYear:       q.Get("use_year"),
		SortBy:        q.Get("sort_by"),
		SortOrder:     q.Get("sort_order"),
	}

	var err error
	if f.MinPrice, err = parseFloat(q.Get("min_price")); err != nil {
		return f, err
	}
	if f.MaxPrice, err = parseFloat(q.Get("max_price")); err != nil {
		return f, err
	}
	if f.MinTotalCost, err = parseFloat(q.Get("min_total_cost")); err != nil {
		return f, err
	}
	if f.MinPoints, err = parseInt(q.Get("min_points")); err != nil {
		return f, err
	}
	if f.MaxPoints, err = parseInt(q.Get("max_points")); err != nil {
		return f, err
	}
	if f.SentAfter, err = parseDate(q.Get("start_date")); err != nil {
		return f, err
	}
	if f.SentBefore, err = parseDate(q.Get("end_date")); err != nil {
		return f, err
	}

	limit, err := parseInt(q.Get("limit"))
	if err != nil {
		return f, err
	}
	switch {
	case limit <= 0:
		f.Limit = defaultPageSize
	case limit > maxPageSize:
		f.Limit = maxPageSize
	default:
		f.Limit = limit
	}
	if f.Offset, err = parseInt(q.Get("offset")); err != nil {
		return f, err
	}
	return f, nil
}

func parseFloat(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	return v, nil
}

func parseInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	return v, nil
}

func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse(model.DateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, want YYYY-MM-DD", raw)
	}
	return &d, nil
}

func echoFilters(r *http.Request) map[string]string {
	out := map[string]string{}
	for key, values := range r.URL.Query() {
		if len(values) > 0 && values[0] != "" {
			out[key] = values[0]
		}
	}
	return out
}

type jsonEntry struct {
	model.Entry
	SentDate   string `json:"sent_date"`
	ResultDate string `json:"result_date,omitempty"`
}

func toJSONEntries(entries []model.Entry) []jsonEntry {
	out := make([]jsonEntry, 0, len(entries))
	for _, e := range entries {
		je := jsonEntry{Entry: e, SentDate: e.SentDate.Format(model.DateLayout)}
		if e.ResultDate != nil {
			je.ResultDate = e.ResultDate.Format(model.DateLayout)
		}
		out = append(out, je)
	}
	return out
}
