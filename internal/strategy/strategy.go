// Package strategy implements the fallback orchestrator: it tries fetch
// adapters in priority order and escalates to heavier ones when the
// classifier says a lighter attempt was blocked or under-rendered.
package strategy

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/govsight/procurement-crawler/internal/classify"
	"github.com/govsight/procurement-crawler/internal/fetcher"
	"github.com/govsight/procurement-crawler/internal/metrics"
	"github.com/govsight/procurement-crawler/internal/scraper"
)

// methodPriority is the fixed escalation order: cheapest first. Paid
// services only run when the direct fetch could not produce usable content.
var methodPriority = []scraper.ScrapingMethod{
	scraper.MethodHTTPFetch,
	scraper.MethodProxyService,
	scraper.MethodBrowserService,
}

// Options tunes one orchestrated scrape.
type Options struct {
	PreferredMethod scraper.ScrapingMethod
	EnableFallback  bool
	MaxRetries      int
}

// DefaultOptions returns the standard settings: start with the direct
// fetch, fall back when needed, one attempt per method.
func DefaultOptions() Options {
	return Options{
		PreferredMethod: scraper.MethodHTTPFetch,
		EnableFallback:  true,
		MaxRetries:      1,
	}
}

// Orchestrator owns the configured adapters and the escalation policy.
type Orchestrator struct {
	fetchers map[scraper.ScrapingMethod]scraper.Fetcher
	logger   *zap.Logger
}

// New constructs an Orchestrator from the available adapters.
func New(fetchers []scraper.Fetcher, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := make(map[scraper.ScrapingMethod]scraper.Fetcher, len(fetchers))
	for _, f := range fetchers {
		if f != nil {
			m[f.Method()] = f
		}
	}
	return &Orchestrator{fetchers: m, logger: logger}
}

// MethodOrder computes the dispatch order: the preferred method first, then
// the remaining priority order. Methods whose adapter is missing or not
// configured (no API key) are skipped entirely.
func (o *Orchestrator) MethodOrder(preferred scraper.ScrapingMethod) []scraper.ScrapingMethod {
	order := make([]scraper.ScrapingMethod, 0, len(methodPriority))
	appendMethod := func(m scraper.ScrapingMethod) {
		f, ok := o.fetchers[m]
		if !ok || !f.Configured() {
			return
		}
		for _, existing := range order {
			if existing == m {
				return
			}
		}
		order = append(order, m)
	}
	appendMethod(preferred)
	for _, m := range methodPriority {
		appendMethod(m)
	}
	return order
}

// ShouldEscalate decides whether a failed result warrants trying the next,
// more expensive method. A 404 never escalates: the page does not exist and
// a heavier adapter cannot change that. Everything else does, including
// blocking, under-rendering, server errors, and unclassified failures.
func ShouldEscalate(res scraper.FetchResult) bool {
	if res.StatusCode == 404 {
		return false
	}
	m := res.Metadata
	switch {
	case m.CloudflareDetected, m.CaptchaDetected, m.Blocked, m.RequiresJavaScript:
		return true
	case res.StatusCode == 401 || res.StatusCode == 403:
		return true
	case m.ExtractedTextLength <= classify.MinTextLength:
		return true
	case res.StatusCode >= 500:
		return true
	default:
		return true
	}
}

// Scrape runs the fallback algorithm for one URL.
func (o *Orchestrator) Scrape(ctx context.Context, url string, opts Options) scraper.StrategyResult {
	start := time.Now()
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if !opts.PreferredMethod.Valid() || opts.PreferredMethod == scraper.MethodFrontendBrowser {
		opts.PreferredMethod = scraper.MethodHTTPFetch
	}

	order := o.MethodOrder(opts.PreferredMethod)
	attempted := make([]scraper.ScrapingMethod, 0, len(order))

	for i, method := range order {
		f := o.fetchers[method]
		attempted = append(attempted, method)
		if i > 0 {
			metrics.Escalations.Inc()
		}

		for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
			metrics.FetchAttempts.WithLabelValues(string(method)).Inc()
			res := f.Fetch(ctx, url)
			if res.Success {
				o.logger.Debug("fetch succeeded",
					zap.String("url", url),
					zap.String("method", string(method)),
					zap.Int("attempt", attempt),
				)
				return scraper.StrategyResult{
					Result:           res,
					MethodsAttempted: attempted,
					FallbackUsed:     len(attempted) > 1,
				}
			}

			metrics.FetchFailures.WithLabelValues(string(method)).Inc()
			if res.Metadata.Blocked {
				metrics.BlockedPages.Inc()
			}
			o.logger.Debug("fetch failed",
				zap.String("url", url),
				zap.String("method", string(method)),
				zap.Int("attempt", attempt),
				zap.Int("status", res.StatusCode),
				zap.String("error", res.Error),
			)

			if !opts.EnableFallback {
				return scraper.StrategyResult{
					Result:           res,
					MethodsAttempted: attempted,
					FallbackUsed:     false,
				}
			}
			if !ShouldEscalate(res) {
				// Non-recoverable: retrying or escalating wastes paid
				// capacity on a page that is definitively gone.
				return scraper.StrategyResult{
					Result:           res,
					MethodsAttempted: attempted,
					FallbackUsed:     len(attempted) > 1,
				}
			}
		}
	}

	o.logger.Warn("all scraping methods failed", zap.String("url", url),
		zap.Int("methods_tried", len(attempted)))
	failed := fetcher.Failed(url, scraper.MethodHTTPFetch, "All scraping methods failed", time.Since(start))
	return scraper.StrategyResult{
		Result:           failed,
		MethodsAttempted: attempted,
		FallbackUsed:     len(attempted) > 1,
	}
}
