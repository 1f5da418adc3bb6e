// Package fetcher downloads forum thread pages and extracts posts from them.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const userAgent = "ROFRDataBot/1.0"

// maxPageBytes caps how much of a thread page is read.
const maxPageBytes = 10 * 1024 * 1024

// Post is one forum post on a thread page.
type Post struct {
	Author    string
	Timestamp string
	Text      string
}

// Page is one parsed thread page.
type Page struct {
	Title      string
	Posts      []Post
	TotalPages int
	IsLastPage bool
}

// Fetcher downloads and parses thread pages.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: 30 * time.Second,
	}
}

// PageURL returns the address of a specific page within a thread. Page 1 is
// the thread URL itself; later pages append the forum's page suffix.
func PageURL(threadURL string, page int) string {
	base := strings.TrimRight(threadURL, "/")
	if page <= 1 {
		return base
	}
	return fmt.Sprintf("%s/page-%d", base, page)
}

// FetchPage downloads one page of a thread and extracts its posts.
func (f *Fetcher) FetchPage(ctx context.Context, threadURL string, page int) (*Page, error) {
	doc, err := f.fetchDocument(ctx, PageURL(threadURL, page))
	if err != nil {
		return nil, err
	}
	return parsePage(doc), nil
}

func (f *Fetcher) fetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func parsePage(doc *goquery.Document) *Page {
	page := &Page{
		Title:      strings.TrimSpace(doc.Find("h1.p-title-value").First().Text()),
		TotalPages: totalPages(doc),
		IsLastPage: doc.Find("a.pageNav-jump--next").Length() == 0,
	}

	doc.Find("article.message").Each(func(_ int, sel *goquery.Selection) {
		body := sel.Find(".message-body .bbWrapper").First()
		if body.Length() == 0 {
			return
		}
		post := Post{
			Author: strings.TrimSpace(sel.AttrOr("data-author", "")),
			Text:   strings.TrimSpace(body.Text()),
		}
		if ts, ok := sel.Find("time.u-dt").First().Attr("data-timestamp"); ok {
			post.Timestamp = ts
		}
		page.Posts = append(page.Posts, post)
	})
	return page
}

// totalPages reads the highest page number in the pagination nav. A thread
// with no nav has exactly one page.
func totalPages(doc *goquery.Document) int {
	total := 1
	doc.Find(".pageNav-main a, .pageNav-page a").Each(func(_ int, sel *goquery.Selection) {
		if n, err := strconv.Atoi(strings.TrimSpace(sel.Text())); err == nil && n > total {
			total = n
		}
	})
	return total
}
