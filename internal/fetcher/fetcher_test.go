package fetcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ablyler/dvc-resale-data/internal/model"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
}

func (m *mockTransport) Do(_ *http.Request) (*http.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

const threadPageHTML = `<!DOCTYPE html>
<html><body>
<h1 class="p-title-value">ROFR Thread January 2024 - March 2024 *PLEASE SEE FIRST POST FOR INSTRUCTIONS*</h1>
<ul class="pageNav-main">
  <li class="pageNav-page"><a href="/threads/rofr.123/">1</a></li>
  <li class="pageNav-page"><a href="/threads/rofr.123/page-2">2</a></li>
  <li class="pageNav-page"><a href="/threads/rofr.123/page-42">42</a></li>
</ul>
<a class="pageNav-jump--next" href="/threads/rofr.123/page-2">Next</a>
<article class="message" data-author="jdoe">
  <time class="u-dt" data-timestamp="1710500000">Mar 15, 2024</time>
  <div class="message-body"><div class="bbWrapper">jdoe---$150-$32000-210-VGF-Aug- sent 3/15</div></div>
</article>
<article class="message" data-author="moderator">
  <time class="u-dt" data-timestamp="1710510000">Mar 15, 2024</time>
  <div class="message-body"><div class="bbWrapper">Welcome to the thread, read the instructions.</div></div>
</article>
</body></html>`

const lastPageHTML = `<!DOCTYPE html>
<html><body>
<h1 class="p-title-value">ROFR Thread January 2024 - March 2024</h1>
<article class="message" data-author="jdoe">
  <div class="message-body"><div class="bbWrapper">Final page chatter.</div></div>
</article>
</body></html>`

func TestFetchPage(t *testing.T) {
	tests := []struct {
		name      string
		transport *mockTransport
		want      *Page
		wantErr   bool
	}{
		{
			name:      "full page",
			transport: &mockTransport{body: threadPageHTML, statusCode: 200},
			want: &Page{
				Title:      "ROFR Thread January 2024 - March 2024 *PLEASE SEE FIRST POST FOR INSTRUCTIONS*",
				TotalPages: 42,
				IsLastPage: false,
				Posts: []Post{
					{
						Author:    "jdoe",
						Timestamp: "1710500000",
						Text:      "jdoe---$150-$32000-210-VGF-Aug- sent 3/15",
					},
					{
						Author:    "moderator",
						Timestamp: "1710510000",
						Text:      "Welcome to the thread, read the instructions.",
					},
				},
			},
		},
		{
			name:      "last page without pagination nav",
			transport: &mockTransport{body: lastPageHTML, statusCode: 200},
			want: &Page{
				Title:      "ROFR Thread January 2024 - March 2024",
				TotalPages: 1,
				IsLastPage: true,
				Posts: []Post{
					{Author: "jdoe", Text: "Final page chatter."},
				},
			},
		},
		{
			name:      "http error status",
			transport: &mockTransport{body: "gone", statusCode: 404},
			wantErr:   true,
		},
		{
			name:      "transport failure",
			transport: &mockTransport{err: errors.New("connection refused")},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.transport)
			got, err := f.FetchPage(context.Background(), "https://forum.example.com/threads/rofr.123", 1)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchPage: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FetchPage mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPageURL(t *testing.T) {
	tests := []struct {
		url  string
		page int
		want string
	}{
		{"https://forum.example.com/threads/rofr.123/", 1, "https://forum.example.com/threads/rofr.123"},
		{"https://forum.example.com/threads/rofr.123", 2, "https://forum.example.com/threads/rofr.123/page-2"},
		{"https://forum.example.com/threads/rofr.123", 17, "https://forum.example.com/threads/rofr.123/page-17"},
	}
	for _, tt := range tests {
		if got := PageURL(tt.url, tt.page); got != tt.want {
			t.Errorf("PageURL(%q, %d) = %q, want %q", tt.url, tt.page, got, tt.want)
		}
	}
}

const sectionFeedXML = `<?xml version="1.0" encoding="utf-8"?>
<rss version="2.0">
<channel>
  <title>Purchasing DVC</title>
  <item>
    <title>Great deal on SSR points, Not ROFR related</title>
    <link>https://forum.example.com/threads/deal.99/</link>
  </item>
  <item>
    <title>ROFR Thread April to June 2024 *PLEASE SEE FIRST POST FOR INSTRUCTIONS*</title>
    <link>https://forum.example.com/threads/rofr-apr-jun.456/</link>
  </item>
</channel>
</rss>`

func TestCurrentThread(t *testing.T) {
	f := New(&mockTransport{body: sectionFeedXML, statusCode: 200})
	d := NewDiscovery(f, "https://forum.example.com/forums/purchasing.28/index.rss", "https://forum.example.com/")

	got, err := d.CurrentThread(context.Background())
	if err != nil {
		t.Fatalf("CurrentThread: %v", err)
	}
	want := "https://forum.example.com/threads/rofr-apr-jun.456"
	if got != want {
		t.Errorf("CurrentThread = %q, want %q", got, want)
	}
}

func TestCurrentThreadNotFound(t *testing.T) {
	feed := `<?xml version="1.0"?><rss version="2.0"><channel><title>x</title></channel></rss>`
	f := New(&mockTransport{body: feed, statusCode: 200})
	d := NewDiscovery(f, "https://forum.example.com/index.rss", "https://forum.example.com/")

	if _, err := d.CurrentThread(context.Background()); err == nil {
		t.Fatal("expected error when the feed has no matching thread")
	}
}

const indexPageHTML = `<!DOCTYPE html>
<html><body>
<h1 class="p-title-value">ROFR Thread April to June 2024 *INSTRUCTIONS*</h1>
<article class="message" data-author="moderator">
  <div class="message-body"><div class="bbWrapper">
    Previous threads:
    <a href="/threads/rofr-jan-mar.123/">ROFR Thread January 2024 - March 2024</a>
    <a href="/threads/rofr-2023.77/">ROFR Thread 2023</a>
    <a href="/threads/unrelated.55/">Resale broker list</a>
  </div></div>
</article>
</body></html>`

func TestThreadsFromIndex(t *testing.T) {
	f := New(&mockTransport{body: indexPageHTML, statusCode: 200})
	d := NewDiscovery(f, "https://forum.example.com/index.rss", "https://forum.example.com/")

	got, err := d.ThreadsFromIndex(context.Background(), "https://forum.example.com/threads/rofr-apr-jun.456")
	if err != nil {
		t.Fatalf("ThreadsFromIndex: %v", err)
	}

	urls := make([]string, len(got))
	for i, th := range got {
		urls[i] = th.URL
	}
	want := []string{
		"https://forum.example.com/threads/rofr-apr-jun.456",
		"https://forum.example.com/threads/rofr-jan-mar.123",
		"https://forum.example.com/threads/rofr-2023.77",
	}
	if diff := cmp.Diff(want, urls); diff != "" {
		t.Errorf("thread urls mismatch (-want +got):\n%s", diff)
	}
}

func TestParseThreadInfo(t *testing.T) {
	datePtr := func(y int, m time.Month, d int) *time.Time {
		t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &t
	}

	tests := []struct {
		name  string
		title string
		want  model.ThreadInfo
	}{
		{
			name:  "two-year range",
			title: "ROFR Thread October 2023 - January 2024",
			want: model.ThreadInfo{
				StartMonth: "October", EndMonth: "January",
				StartYear: 2023, EndYear: 2024,
				StartDate: datePtr(2023, time.October, 1),
				EndDate:   datePtr(2024, time.January, 31),
			},
		},
		{
			name:  "single year range",
			title: "ROFR Thread Jan to March 2024 *INSTRUCTIONS*",
			want: model.ThreadInfo{
				StartMonth: "Jan", EndMonth: "March",
				StartYear: 2024, EndYear: 2024,
				StartDate: datePtr(2024, time.January, 1),
				EndDate:   datePtr(2024, time.March, 31),
			},
		},
		{
			name:  "bare year",
			title: "ROFR Thread 2021",
			want: model.ThreadInfo{
				StartYear: 2021, EndYear: 2021,
			},
		},
		{
			name:  "december end rolls to the last day of the year",
			title: "ROFR Thread October 2023 - December 2023",
			want: model.ThreadInfo{
				StartMonth: "October", EndMonth: "December",
				StartYear: 2023, EndYear: 2023,
				StartDate: datePtr(2023, time.October, 1),
				EndDate:   datePtr(2023, time.December, 31),
			},
		},
		{
			name:  "no dates at all",
			title: "ROFR general discussion",
			want:  model.ThreadInfo{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.want.URL = "https://forum.example.com/threads/x.1"
			tt.want.Title = tt.title
			got := ParseThreadInfo("https://forum.example.com/threads/x.1/", tt.title)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseThreadInfo mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
