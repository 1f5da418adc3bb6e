package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/ablyler/dvc-resale-data/internal/model"
)

const monthNames = `January|February|March|April|May|June|July|August|September|October|` +
	`November|December|Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sept|Sep|Oct|Nov|Dec`

// Thread titles carry their coverage window in one of these shapes:
// "January 2024 - March 2024", "Jan to March 2024", or just a bare year.
var (
	rangePattern = regexp.MustCompile(
		`(?i)\b(` + monthNames + `)\s+(\d{4})[-\s]+(?:to[-\s]+)?(` + monthNames + `)\s+(\d{4})`)
	singleYearPattern = regexp.MustCompile(
		`(?i)\b(` + monthNames + `)(?:\s+to\s+|\s*-\s*)(` + monthNames + `)\s+(\d{4})`)
	bareYearPattern = regexp.MustCompile(`\b(20\d\d)\b`)
)

var monthsByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"jun": time.June, "jul": time.July, "aug": time.August, "sept": time.September,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// Discovery locates the current disclosure thread and its predecessors.
type Discovery struct {
	fetcher *Fetcher
	feedURL string
	baseURL string
}

// NewDiscovery creates a Discovery reading the forum section feed at feedURL.
// Relative links found in posts are resolved against baseURL.
func NewDiscovery(f *Fetcher, feedURL, baseURL string) *Discovery {
	return &Discovery{fetcher: f, feedURL: feedURL, baseURL: baseURL}
}

// CurrentThread finds the active disclosure thread via the forum section RSS
// feed. The active thread's title names it explicitly and carries posting
// instructions; lookalike discussion threads are excluded by title.
func (d *Discovery) CurrentThread(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.feedURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.fetcher.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return "", fmt.Errorf("parse feed: %w", err)
	}

	for _, item := range feed.Items {
		if isCurrentThreadTitle(item.Title) {
			return strings.TrimRight(item.Link, "/"), nil
		}
	}
	return "", fmt.Errorf("no current thread in feed %s", d.feedURL)
}

func isCurrentThreadTitle(title string) bool {
	return strings.Contains(title, "ROFR Thread") &&
		!strings.Contains(title, "Not ROFR") &&
		strings.Contains(strings.ToUpper(title), "INSTRUCTIONS")
}

// ThreadsFromIndex collects historical threads linked from the first post of
// the current thread, plus the current thread itself. The first post of each
// generation links back to its predecessors.
func (d *Discovery) ThreadsFromIndex(ctx context.Context, currentURL string) ([]model.ThreadInfo, error) {
	doc, err := d.fetcher.fetchDocument(ctx, currentURL)
	if err != nil {
		return nil, fmt.Errorf("fetch thread index: %w", err)
	}

	var threads []model.ThreadInfo
	seen := map[string]bool{}

	title := strings.TrimSpace(doc.Find("h1.p-title-value").First().Text())
	current := ParseThreadInfo(currentURL, title)
	threads = append(threads, current)
	seen[current.URL] = true

	firstPost := doc.Find("article.message").First()
	firstPost.Find(".bbWrapper a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		text := strings.TrimSpace(sel.Text())
		if !ok || href == "" || text == "" {
			return
		}
		if !strings.Contains(strings.ToLower(text), "rofr") &&
			!strings.Contains(strings.ToLower(href), "rofr") {
			return
		}
		full := d.resolveURL(href)
		if full == "" || seen[full] {
			return
		}
		seen[full] = true
		threads = append(threads, ParseThreadInfo(full, text))
	})
	return threads, nil
}

func (d *Discovery) resolveURL(href string) string {
	base, err := url.Parse(d.baseURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return strings.TrimRight(base.ResolveReference(ref).String(), "/")
}

// ParseThreadInfo infers the coverage window of a thread from its title.
// Start date is the first of the start month, end date the last day of the
// end month. Titles with only a bare year leave the months empty.
func ParseThreadInfo(threadURL, title string) model.ThreadInfo {
	info := model.ThreadInfo{
		URL:   strings.TrimRight(threadURL, "/"),
		Title: title,
	}

	if m := rangePattern.FindStringSubmatch(title); m != nil {
		info.StartMonth, info.EndMonth = m[1], m[3]
		info.StartYear, _ = strconv.Atoi(m[2])
		info.EndYear, _ = strconv.Atoi(m[4])
	} else if m := singleYearPattern.FindStringSubmatch(title); m != nil {
		info.StartMonth, info.EndMonth = m[1], m[2]
		year, _ := strconv.Atoi(m[3])
		info.StartYear, info.EndYear = year, year
	} else if m := bareYearPattern.FindStringSubmatch(title); m != nil {
		year, _ := strconv.Atoi(m[1])
		info.StartYear, info.EndYear = year, year
	}

	if start, ok := monthOf(info.StartMonth); ok && info.StartYear > 0 {
		d := time.Date(info.StartYear, start, 1, 0, 0, 0, 0, time.UTC)
		info.StartDate = &d
	}
	if end, ok := monthOf(info.EndMonth); ok && info.EndYear > 0 {
		// Day zero of the following month is the last day of this one.
		d := time.Date(info.EndYear, end+1, 0, 0, 0, 0, 0, time.UTC)
		info.EndDate = &d
	}
	return info
}

func monthOf(name string) (time.Month, bool) {
	m, ok := monthsByName[strings.ToLower(name)]
	return m, ok
}
