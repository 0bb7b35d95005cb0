// Package direct implements the plain-HTTP fetch strategy using gocolly.
package direct

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/govsight/procurement-crawler/internal/fetcher"
	"github.com/govsight/procurement-crawler/internal/scraper"
)

// DefaultTimeout bounds one direct fetch attempt.
const DefaultTimeout = 30 * time.Second

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	Timeout       time.Duration
	RespectRobots bool
}

// Fetcher issues direct GETs with browser-like headers. Failures are encoded
// into the returned FetchResult, never raised.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := colly.NewCollector()
	c.ParseHTTPErrorResponse = true
	c.WithTransport(newHTTPTransport())
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Method implements scraper.Fetcher.
func (f *Fetcher) Method() scraper.ScrapingMethod { return scraper.MethodHTTPFetch }

// Configured implements scraper.Fetcher; the direct strategy needs no key.
func (f *Fetcher) Configured() bool { return true }

// visitOutcome carries everything a collector run produced. The visiting
// goroutine owns it exclusively until it lands on the done channel, so an
// abandoned visit can never write into state the caller is reading.
type visitOutcome struct {
	captured bool
	finalURL string
	status   int
	ctype    string
	body     []byte
	err      error
}

// Fetch executes a single GET. Redirects are followed; the final URL, status
// and body are classified into the result.
func (f *Fetcher) Fetch(ctx context.Context, url string) scraper.FetchResult {
	start := time.Now()

	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(f.cfg.Timeout)

	fetchCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	out := f.runCollector(fetchCtx, collector, url)
	duration := time.Since(start)

	if out.captured {
		return fetcher.Build(fetcher.Params{
			URL:         url,
			FinalURL:    out.finalURL,
			Method:      scraper.MethodHTTPFetch,
			StatusCode:  out.status,
			ContentType: out.ctype,
			HTML:        string(out.body),
			Duration:    duration,
		})
	}

	err := out.err
	if err == nil {
		err = errors.New("no response received")
	}
	return fetcher.Failed(url, scraper.MethodHTTPFetch, f.errorText(err), duration)
}

// runCollector registers the capture callbacks and runs the visit on its own
// goroutine so a stuck transport cannot outlive the context. On cancellation
// the outcome is a bare context error; the abandoned visit finishes against
// its private visitOutcome and is discarded.
func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) visitOutcome {
	done := make(chan visitOutcome, 1)
	go func() {
		var out visitOutcome
		collector.OnRequest(func(r *colly.Request) {
			r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
			r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		})
		collector.OnResponse(func(r *colly.Response) {
			out.captured = true
			out.finalURL = r.Request.URL.String()
			out.status = r.StatusCode
			out.ctype = r.Headers.Get("Content-Type")
			out.body = append([]byte(nil), r.Body...)
		})
		collector.OnError(func(r *colly.Response, err error) {
			if r != nil && r.StatusCode > 0 {
				out.captured = true
				out.finalURL = r.Request.URL.String()
				out.status = r.StatusCode
				out.ctype = r.Headers.Get("Content-Type")
				out.body = append([]byte(nil), r.Body...)
				return
			}
			if out.err == nil {
				out.err = err
			}
		})
		if err := collector.Visit(url); err != nil && out.err == nil {
			out.err = err
		}
		done <- out
	}()
	select {
	case <-ctx.Done():
		return visitOutcome{err: ctx.Err()}
	case out := <-done:
		return out
	}
}

func (f *Fetcher) errorText(err error) string {
	if isTimeout(err) {
		return fmt.Sprintf("Request timeout after %g seconds", f.cfg.Timeout.Seconds())
	}
	return err.Error()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "Client.Timeout")
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
