// Package metrics defines the Prometheus instruments for the scraper and API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Entry processing outcome labels.
const (
	StatusNew       = "new"
	StatusUpdated   = "updated"
	StatusUnchanged = "unchanged"
)

// Metrics bundles all instruments registered for this service.
type Metrics struct {
	PagesScraped     prometheus.Counter
	EntriesProcessed *prometheus.CounterVec
	ScrapeErrors     prometheus.Counter
	ScrapeDuration   prometheus.Histogram
	StatsInProgress  prometheus.Gauge
	RequestDuration  *prometheus.HistogramVec
}

// New registers all instruments on reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		PagesScraped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rofr_scrape_pages_total",
			Help: "Thread pages fetched and parsed.",
		}),
		EntriesProcessed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "rofr_entries_processed_total",
			Help: "Disclosure records processed, by upsert outcome.",
		}, []string{"status"}),
		ScrapeErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rofr_scrape_errors_total",
			Help: "Errors encountered while scraping.",
		}),
		ScrapeDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "rofr_scrape_duration_seconds",
			Help:    "Wall-clock duration of complete scrape runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		StatsInProgress: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "rofr_stats_calculation_in_progress",
			Help: "Whether a statistics aggregation pass is running.",
		}),
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rofr_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}
