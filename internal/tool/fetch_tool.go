// Package tool exposes the webpage fetch capability as a single callable for
// the upstream agent harness. The harness drives a model that decides when to
// call it; this package makes no assumptions about what the caller does with
// the content.
package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/govsight/procurement-crawler/internal/scraper"
	"github.com/govsight/procurement-crawler/internal/strategy"
)

// Strategy is the seam to the fallback orchestrator.
type Strategy interface {
	Scrape(ctx context.Context, url string, opts strategy.Options) scraper.StrategyResult
}

// FetchRequest are the arguments the agent may pass. PreferredMethod and
// EnableFallback are optional; zero values select the defaults.
type FetchRequest struct {
	URL             string `json:"url"`
	PreferredMethod string `json:"preferred_method,omitempty"`
	EnableFallback  *bool  `json:"enable_fallback,omitempty"`
}

// FetchResponse is the flat JSON object handed back to the agent: the fetch
// result, its classifier verdicts, and the orchestration trail.
type FetchResponse struct {
	Success             bool     `json:"success"`
	URL                 string   `json:"url"`
	FinalURL            string   `json:"final_url"`
	StatusCode          int      `json:"status_code"`
	ContentType         string   `json:"content_type"`
	Text                string   `json:"text"`
	HTML                string   `json:"html"`
	Method              string   `json:"method"`
	PageType            string   `json:"page_type"`
	Blocked             bool     `json:"blocked"`
	RequiresJavaScript  bool     `json:"requires_javascript"`
	RequiresAuth        bool     `json:"requires_auth"`
	CloudflareDetected  bool     `json:"cloudflare_detected"`
	CaptchaDetected     bool     `json:"captcha_detected"`
	ExtractedTextLength int      `json:"extracted_text_length"`
	Warnings            []string `json:"warnings,omitempty"`
	MethodsAttempted    []string `json:"methods_attempted"`
	FallbackUsed        bool     `json:"fallback_used"`
	DurationMs          int64    `json:"duration_ms"`
	TotalDurationMs     int64    `json:"total_duration_ms"`
	Error               string   `json:"error,omitempty"`
}

// Fetcher runs the orchestrator on behalf of the agent.
type Fetcher struct {
	strategy Strategy
}

// New builds a Fetcher over the orchestrator.
func New(strategy Strategy) *Fetcher {
	return &Fetcher{strategy: strategy}
}

// FetchWebpageContent fetches one URL with fallback and flattens the result.
func (f *Fetcher) FetchWebpageContent(ctx context.Context, req FetchRequest) (FetchResponse, error) {
	if req.URL == "" {
		return FetchResponse{}, fmt.Errorf("url is required")
	}
	opts := strategy.DefaultOptions()
	if req.PreferredMethod != "" {
		method := scraper.ScrapingMethod(req.PreferredMethod)
		if !method.Valid() {
			return FetchResponse{}, fmt.Errorf("unknown scraping method: %s", req.PreferredMethod)
		}
		opts.PreferredMethod = method
	}
	if req.EnableFallback != nil {
		opts.EnableFallback = *req.EnableFallback
	}

	start := time.Now()
	strat := f.strategy.Scrape(ctx, req.URL, opts)
	total := time.Since(start).Milliseconds()

	res := strat.Result
	methods := make([]string, 0, len(strat.MethodsAttempted))
	for _, m := range strat.MethodsAttempted {
		methods = append(methods, string(m))
	}

	return FetchResponse{
		Success:             res.Success,
		URL:                 res.URL,
		FinalURL:            res.FinalURL,
		StatusCode:          res.StatusCode,
		ContentType:         res.ContentType,
		Text:                res.Text,
		HTML:                res.HTML,
		Method:              string(res.Method),
		PageType:            string(res.Metadata.PageType),
		Blocked:             res.Metadata.Blocked,
		RequiresJavaScript:  res.Metadata.RequiresJavaScript,
		RequiresAuth:        res.Metadata.RequiresAuth,
		CloudflareDetected:  res.Metadata.CloudflareDetected,
		CaptchaDetected:     res.Metadata.CaptchaDetected,
		ExtractedTextLength: res.Metadata.ExtractedTextLength,
		Warnings:            res.Metadata.Warnings,
		MethodsAttempted:    methods,
		FallbackUsed:        strat.FallbackUsed,
		DurationMs:          res.DurationMs,
		TotalDurationMs:     total,
		Error:               res.Error,
	}, nil
}
