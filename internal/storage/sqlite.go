package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"github.com/ablyler/dvc-resale-data/internal/model"
	"github.com/ablyler/dvc-resale-data/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

const entryColumns = `entry_hash, username, price_per_point, total_cost, points, resort,
	use_year, points_details, sent_date, result, result_date, thread_url, raw_entry`

// UpsertEntry writes one entry keyed by its content hash. A failed existence
// check is not fatal; the record is then counted as new even if the write
// turns out to be an overwrite.
func (s *SQLite) UpsertEntry(ctx context.Context, e *model.Entry) (bool, bool, error) {
	var storedDetails, storedRaw string
	exists := true
	err := s.db.QueryRowContext(ctx,
		`SELECT points_details, raw_entry FROM entries WHERE entry_hash = ?`, e.EntryHash,
	).Scan(&storedDetails, &storedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		exists = false
	}

	if exists && storedDetails == e.PointsDetails && storedRaw == e.RawEntry {
		return false, false, nil
	}

	now := time.Now().UTC().Format(timeLayout)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entries (`+entryColumns+`, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(entry_hash) DO UPDATE SET
		   points_details = excluded.points_details,
		   raw_entry = excluded.raw_entry,
		   updated_at = excluded.updated_at`,
		e.EntryHash, e.Username, e.PricePerPoint, nullFloat(e.TotalCost), e.Points, e.Resort,
		e.UseYear, e.PointsDetails, e.SentDate.Format(model.DateLayout), string(e.Result),
		nullDate(e.ResultDate), e.ThreadURL, e.RawEntry, now, now,
	)
	if err != nil {
		return false, false, fmt.Errorf("upsert entry: %w", err)
	}
	return !exists, exists, nil
}

// BatchUpsertEntries deduplicates the batch by hash (last occurrence wins)
// and upserts each survivor. A single failed row aborts the batch.
func (s *SQLite) BatchUpsertEntries(ctx context.Context, entries []model.Entry) (BatchResult, error) {
	byHash := make(map[string]int, len(entries))
	deduped := make([]model.Entry, 0, len(entries))
	for _, e := range entries {
		if idx, seen := byHash[e.EntryHash]; seen {
			deduped[idx] = e
			continue
		}
		byHash[e.EntryHash] = len(deduped)
		deduped = append(deduped, e)
	}

	res := BatchResult{Total: len(deduped)}
	for i := range deduped {
		wasNew, wasUpdated, err := s.UpsertEntry(ctx, &deduped[i])
		if err != nil {
			return res, fmt.Errorf("batch upsert: %w", err)
		}
		switch {
		case wasNew:
			res.New++
			res.NewHashes = append(res.NewHashes, deduped[i].EntryHash)
		case wasUpdated:
			res.Updated++
		default:
			res.Unchanged++
		}
	}
	return res, nil
}

// GetEntry returns a single entry by its content hash.
func (s *SQLite) GetEntry(ctx context.Context, hash string) (*model.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE entry_hash = ?`, hash,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// sortColumns whitelists the fields a query may order by.
var sortColumns = map[string]string{
	"sent_date":       "sent_date",
	"result_date":     "result_date",
	"price_per_point": "price_per_point",
	"total_cost":      "total_cost",
	"points":          "points",
	"resort":          "resort",
	"username":        "username",
	"created_at":      "created_at",
}

// QueryEntries returns the entries matching the filter plus the size of the
// unpaginated match set.
func (s *SQLite) QueryEntries(ctx context.Context, f Filter) ([]model.Entry, int, error) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if f.Resort != "" {
		add("resort = ?", f.Resort)
	}
	if f.Result != "" {
		add("result = ?", f.Result)
	}
	if f.ExcludeResult != "" {
		add("result != ?", f.ExcludeResult)
	}
	if f.Username != "" {
		add("username = ? COLLATE NOCASE", f.Username)
	}
	if f.UseYear != "" {
		add("use_year = ?", f.UseYear)
	}
	if f.SentAfter != nil {
		add("sent_date >= ?", f.SentAfter.Format(model.DateLayout))
	}
	if f.SentBefore != nil {
		add("sent_date <= ?", f.SentBefore.Format(model.DateLayout))
	}
	if f.MinPrice > 0 {
		add("price_per_point >= ?", f.MinPrice)
	}
	if f.MaxPrice > 0 {
		add("price_per_point <= ?", f.MaxPrice)
	}
	if f.MinPoints > 0 {
		add("points >= ?", f.MinPoints)
	}
	if f.MaxPoints > 0 {
		add("points <= ?", f.MaxPoints)
	}
	if f.MinTotalCost > 0 {
		add("total_cost >= ?", f.MinTotalCost)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count entries: %w", err)
	}

	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "sent_date"
	}
	order := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		order = "ASC"
	}
	query := `SELECT ` + entryColumns + ` FROM entries` + where +
		` ORDER BY ` + col + ` ` + order + `, entry_hash`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListEntries returns the full corpus, oldest sent first. Used by the
// statistics aggregation pass.
func (s *SQLite) ListEntries(ctx context.Context) ([]model.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries ORDER BY sent_date, entry_hash`,
	)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEntries(rows)
}

// ListResorts returns the distinct resort codes present in the corpus.
func (s *SQLite) ListResorts(ctx context.Context) ([]string, error) {
	return s.listDistinct(ctx, `SELECT DISTINCT resort FROM entries ORDER BY resort`)
}

// ListReporters returns the distinct reporter names present in the corpus.
func (s *SQLite) ListReporters(ctx context.Context) ([]string, error) {
	return s.listDistinct(ctx, `SELECT DISTINCT username FROM entries ORDER BY username COLLATE NOCASE`)
}

func (s *SQLite) listDistinct(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query distinct: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan distinct: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// GetThread returns the tracked state for a thread URL, or ErrNotFound.
func (s *SQLite) GetThread(ctx context.Context, url string) (*model.ThreadInfo, error) {
	t := model.ThreadInfo{URL: url}
	row := s.db.QueryRowContext(ctx,
		`SELECT url, title, start_year, end_year, start_month, end_month,
		        last_scraped_page, total_pages, start_date, end_date
		 FROM threads WHERE url_hash = ?`, t.URLHash(),
	)
	thread, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return thread, nil
}

// UpsertThread writes the thread checkpoint. Threads are never deleted;
// progress only moves forward through this method.
func (s *SQLite) UpsertThread(ctx context.Context, t *model.ThreadInfo) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (url_hash, url, title, start_year, end_year, start_month, end_month,
		                      last_scraped_page, total_pages, start_date, end_date, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url_hash) DO UPDATE SET
		   title = excluded.title,
		   start_year = excluded.start_year,
		   end_year = excluded.end_year,
		   start_month = excluded.start_month,
		   end_month = excluded.end_month,
		   last_scraped_page = excluded.last_scraped_page,
		   total_pages = excluded.total_pages,
		   start_date = excluded.start_date,
		   end_date = excluded.end_date,
		   updated_at = excluded.updated_at`,
		t.URLHash(), t.URL, t.Title, t.StartYear, t.EndYear, t.StartMonth, t.EndMonth,
		t.LastScrapedPage, t.TotalPages, nullDate(t.StartDate), nullDate(t.EndDate), now,
	)
	if err != nil {
		return fmt.Errorf("upsert thread: %w", err)
	}
	return nil
}

// ListThreads returns all tracked threads.
func (s *SQLite) ListThreads(ctx context.Context) ([]model.ThreadInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, title, start_year, end_year, start_month, end_month,
		        last_scraped_page, total_pages, start_date, end_date
		 FROM threads ORDER BY start_year, url`,
	)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var threads []model.ThreadInfo
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, *t)
	}
	return threads, rows.Err()
}

// StartSession inserts a new scrape session row.
func (s *SQLite) StartSession(ctx context.Context, sess *model.ScrapeSession) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scrape_sessions (id, started_at, status) VALUES (?, ?, ?)`,
		sess.ID, sess.StartedAt.UTC().Format(timeLayout), sess.Status,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// UpdateSession persists progress and final state for a session.
func (s *SQLite) UpdateSession(ctx context.Context, sess *model.ScrapeSession) error {
	var completed *string
	if sess.CompletedAt != nil {
		v := sess.CompletedAt.UTC().Format(timeLayout)
		completed = &v
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE scrape_sessions
		 SET completed_at = ?, total_threads = ?, total_entries = ?,
		     new_entries = ?, updated_entries = ?, status = ?, error_message = ?
		 WHERE id = ?`,
		completed, sess.TotalThreads, sess.TotalEntries,
		sess.NewEntries, sess.UpdatedEntries, sess.Status, sess.ErrorMessage, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// RecentSessions returns the most recently started sessions, newest first.
func (s *SQLite) RecentSessions(ctx context.Context, limit int) ([]model.ScrapeSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, completed_at, total_threads, total_entries,
		        new_entries, updated_entries, status, error_message
		 FROM scrape_sessions ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []model.ScrapeSession
	for rows.Next() {
		var sess model.ScrapeSession
		var started string
		var completed, errMsg sql.NullString
		err := rows.Scan(&sess.ID, &started, &completed, &sess.TotalThreads, &sess.TotalEntries,
			&sess.NewEntries, &sess.UpdatedEntries, &sess.Status, &errMsg)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.StartedAt, _ = time.Parse(timeLayout, started)
		if completed.Valid {
			if t, err := time.Parse(timeLayout, completed.String); err == nil {
				sess.CompletedAt = &t
			}
		}
		sess.ErrorMessage = errMsg.String
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// PutStats stores a statistics document for a (kind, key) scope.
func (s *SQLite) PutStats(ctx context.Context, kind, key string, payload []byte) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stats (kind, key, payload, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(kind, key) DO UPDATE SET
		   payload = excluded.payload,
		   updated_at = excluded.updated_at`,
		kind, key, string(payload), now,
	)
	if err != nil {
		return fmt.Errorf("put stats: %w", err)
	}
	return nil
}

// GetStats returns the stored statistics document for a scope, or ErrNotFound.
func (s *SQLite) GetStats(ctx context.Context, kind, key string) ([]byte, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM stats WHERE kind = ? AND key = ?`, kind, key,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return []byte(payload), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEntry(row scannable) (*model.Entry, error) {
	var e model.Entry
	var result, sentDate string
	var totalCost sql.NullFloat64
	var resultDate sql.NullString
	err := row.Scan(&e.EntryHash, &e.Username, &e.PricePerPoint, &totalCost, &e.Points,
		&e.Resort, &e.UseYear, &e.PointsDetails, &sentDate, &result, &resultDate,
		&e.ThreadURL, &e.RawEntry)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	e.Result = model.Outcome(result)
	e.TotalCost = totalCost.Float64
	e.SentDate, _ = time.Parse(model.DateLayout, sentDate)
	if resultDate.Valid {
		if t, err := time.Parse(model.DateLayout, resultDate.String); err == nil {
			e.ResultDate = &t
		}
	}
	return &e, nil
}

func scanEntries(rows *sql.Rows) ([]model.Entry, error) {
	var entries []model.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func scanThread(row scannable) (*model.ThreadInfo, error) {
	var t model.ThreadInfo
	var startDate, endDate sql.NullString
	err := row.Scan(&t.URL, &t.Title, &t.StartYear, &t.EndYear, &t.StartMonth, &t.EndMonth,
		&t.LastScrapedPage, &t.TotalPages, &startDate, &endDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan thread: %w", err)
	}
	if startDate.Valid {
		if d, err := time.Parse(model.DateLayout, startDate.String); err == nil {
			t.StartDate = &d
		}
	}
	if endDate.Valid {
		if d, err := time.Parse(model.DateLayout, endDate.String); err == nil {
			t.EndDate = &d
		}
	}
	return &t, nil
}

func nullDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.Format(model.DateLayout)
	return &v
}

func nullFloat(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}
