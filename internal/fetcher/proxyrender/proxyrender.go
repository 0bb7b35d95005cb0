// Package proxyrender implements the proxy-rendering-service fetch strategy.
// The service fetches the page through its own proxy pool, executes
// JavaScript, and returns the rendered HTML.
package proxyrender

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/govsight/procurement-crawler/internal/fetcher"
	"github.com/govsight/procurement-crawler/internal/scraper"
)

// DefaultTimeout is the service-side rendering budget.
const DefaultTimeout = 60 * time.Second

const defaultBaseURL = "https://app.scrapingbee.com/api/v1/"

// Config controls one proxy-rendering client.
type Config struct {
	APIKey  string
	BaseURL string
	// DisableJSRendering turns off server-side JavaScript execution.
	// Rendering is on by default; that is the whole point of escalating here.
	DisableJSRendering bool
	PremiumProxy       bool
	CountryCode        string
	WaitSelector       string
	Screenshot         bool
	Timeout            time.Duration
}

// Fetcher calls the rendering service. A missing API key makes the adapter
// unconfigured: Fetch returns an immediate failed result without a network
// call, and the orchestrator skips it entirely.
type Fetcher struct {
	cfg    Config
	client *http.Client
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout + 10*time.Second,
		},
	}
}

// Method implements scraper.Fetcher.
func (f *Fetcher) Method() scraper.ScrapingMethod { return scraper.MethodProxyService }

// Configured implements scraper.Fetcher.
func (f *Fetcher) Configured() bool { return f.cfg.APIKey != "" }

// Fetch renders the target URL through the proxy service.
func (f *Fetcher) Fetch(ctx context.Context, target string) scraper.FetchResult {
	start := time.Now()
	if !f.Configured() {
		return fetcher.Failed(target, scraper.MethodProxyService,
			"proxy service API key not configured", time.Since(start))
	}

	req, err := f.buildRequest(ctx, target)
	if err != nil {
		return fetcher.Failed(target, scraper.MethodProxyService,
			fmt.Sprintf("build proxy request: %v", err), time.Since(start))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fetcher.Failed(target, scraper.MethodProxyService, err.Error(), time.Since(start))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetcher.Failed(target, scraper.MethodProxyService,
			fmt.Sprintf("read proxy response: %v", err), time.Since(start))
	}

	if resp.StatusCode != http.StatusOK {
		res := fetcher.Failed(target, scraper.MethodProxyService,
			fmt.Sprintf("proxy service returned status %d", resp.StatusCode), time.Since(start))
		res.StatusCode = resp.StatusCode
		return res
	}

	return fetcher.Build(fetcher.Params{
		URL:         target,
		FinalURL:    target,
		Method:      scraper.MethodProxyService,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		HTML:        string(body),
		Duration:    time.Since(start),
		Rendered:    true,
	})
}

func (f *Fetcher) buildRequest(ctx context.Context, target string) (*http.Request, error) {
	q := url.Values{}
	q.Set("api_key", f.cfg.APIKey)
	q.Set("url", target)
	q.Set("render_js", strconv.FormatBool(!f.cfg.DisableJSRendering))
	if f.cfg.PremiumProxy {
		q.Set("premium_proxy", "true")
	}
	if f.cfg.CountryCode != "" {
		q.Set("country_code", f.cfg.CountryCode)
	}
	if f.cfg.WaitSelector != "" {
		q.Set("wait_for", f.cfg.WaitSelector)
	}
	if f.cfg.Screenshot {
		q.Set("screenshot", "true")
	}
	q.Set("timeout", strconv.FormatInt(f.cfg.Timeout.Milliseconds(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	return req, nil
}
