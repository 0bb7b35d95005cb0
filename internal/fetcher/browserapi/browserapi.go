// Package browserapi implements the hosted-headless-browser fetch strategy.
// A remote browser service navigates the page with a real Chrome, waits for
// the network to settle, and returns the rendered DOM.
package browserapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/govsight/procurement-crawler/internal/fetcher"
	"github.com/govsight/procurement-crawler/internal/scraper"
)

// DefaultTimeout is the service-side navigation budget.
const DefaultTimeout = 60 * time.Second

const (
	defaultBaseURL   = "https://chrome.browserless.io"
	defaultWaitUntil = "networkidle2"
)

// waitStrategies overrides the wait-until condition for sites known to keep
// streaming XHR traffic long after first paint.
var waitStrategies = map[string]string{
	"opengov": "networkidle0",
}

// Config controls one browser-service client.
type Config struct {
	APIKey    string
	BaseURL   string
	WaitUntil string
	// DisableStealth and DisableAdBlock opt out of the defaults; both are
	// enabled unless set.
	DisableStealth bool
	DisableAdBlock bool
	Timeout        time.Duration
}

// Fetcher posts content-retrieval requests to the browser service. A missing
// API key makes the adapter unconfigured and it is skipped in method ordering.
type Fetcher struct {
	cfg    Config
	client *http.Client
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.WaitUntil == "" {
		cfg.WaitUntil = defaultWaitUntil
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
func (f *Fetcher) Method() scraper.ScrapingMethod { return scraper.MethodBrowserService }

// Configured implements scraper.Fetcher.
func (f *Fetcher) Configured() bool { return f.cfg.APIKey != "" }

type contentRequest struct {
	URL         string      `json:"url"`
	GotoOptions gotoOptions `json:"gotoOptions"`
	Stealth     bool        `json:"stealth"`
	BlockAds    bool        `json:"blockAds"`
}

type gotoOptions struct {
	WaitUntil string `json:"waitUntil"`
	Timeout   int64  `json:"timeout"`
}

// Fetch retrieves the rendered DOM for the target URL.
func (f *Fetcher) Fetch(ctx context.Context, target string) scraper.FetchResult {
	start := time.Now()
	if !f.Configured() {
		return fetcher.Failed(target, scraper.MethodBrowserService,
			"browser service API key not configured", time.Since(start))
	}

	payload := contentRequest{
		URL: target,
		GotoOptions: gotoOptions{
			WaitUntil: f.waitUntilFor(target),
			Timeout:   f.cfg.Timeout.Milliseconds(),
		},
		Stealth:  !f.cfg.DisableStealth,
		BlockAds: !f.cfg.DisableAdBlock,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fetcher.Failed(target, scraper.MethodBrowserService,
			fmt.Sprintf("marshal content request: %v", err), time.Since(start))
	}

	endpoint := fmt.Sprintf("%s/content?token=%s", strings.TrimRight(f.cfg.BaseURL, "/"), f.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fetcher.Failed(target, scraper.MethodBrowserService,
			fmt.Sprintf("build content request: %v", err), time.Since(start))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fetcher.Failed(target, scraper.MethodBrowserService, err.Error(), time.Since(start))
	}
	defer func() { _ = resp.Body.Close() }()

	html, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetcher.Failed(target, scraper.MethodBrowserService,
			fmt.Sprintf("read browser response: %v", err), time.Since(start))
	}

	if resp.StatusCode != http.StatusOK {
		res := fetcher.Failed(target, scraper.MethodBrowserService,
			fmt.Sprintf("browser service returned status %d", resp.StatusCode), time.Since(start))
		res.StatusCode = resp.StatusCode
		return res
	}

	return fetcher.Build(fetcher.Params{
		URL:         target,
		FinalURL:    target,
		Method:      scraper.MethodBrowserService,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		HTML:        string(html),
		Duration:    time.Since(start),
		Rendered:    true,
	})
}

func (f *Fetcher) waitUntilFor(target string) string {
	lower := strings.ToLower(target)
	for pattern, strategy := range waitStrategies {
		if strings.Contains(lower, pattern) {
			return strategy
		}
	}
	return f.cfg.WaitUntil
}
