// Package metrics exposes Prometheus counters for the scraping pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchAttempts tracks adapter attempts by method.
	FetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_fetch_attempts_total",
		Help: "The total number of fetch attempts, labeled by scraping method.",
	}, []string{"method"})
	// FetchFailures tracks failed adapter attempts by method.
	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_fetch_failures_total",
		Help: "The total number of failed fetch attempts, labeled by scraping method.",
	}, []string{"method"})
	// Escalations tracks fallbacks to a heavier scraping method.
	Escalations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_escalations_total",
		Help: "The total number of escalations to the next scraping method.",
	})
	// BlockedPages tracks fetches rejected by anti-bot measures.
	BlockedPages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_blocked_pages_total",
		Help: "The total number of fetches blocked by Cloudflare, CAPTCHA or auth walls.",
	})
	// JobsCompleted tracks batch jobs by terminal status.
	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_jobs_completed_total",
		Help: "The total number of batch jobs reaching a terminal status.",
	}, []string{"status"})
	// URLsProcessed tracks per-URL outcomes inside batch jobs.
	URLsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_urls_processed_total",
		Help: "The total number of URLs processed by batch jobs, labeled by outcome.",
	}, []string{"outcome"})
)
