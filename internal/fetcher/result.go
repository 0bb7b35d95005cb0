// Package fetcher holds the result-building logic shared by every fetch
// adapter, so classification and success gating happen exactly one way.
package fetcher

import (
	"fmt"
	"time"

	"github.com/govsight/procurement-crawler/internal/classify"
	"github.com/govsight/procurement-crawler/internal/scraper"
)

// MaxStoredHTML caps raw HTML kept on a result.
const MaxStoredHTML = 100000

// Params carries everything an adapter observed for one attempt.
type Params struct {
	URL         string
	FinalURL    string
	Method      scraper.ScrapingMethod
	StatusCode  int
	ContentType string
	HTML        string
	Duration    time.Duration
	// Rendered marks HTML returned by a service that already executed
	// JavaScript and solved anti-bot challenges. Rendered results force
	// RequiresJavaScript false and gate success on extracted text alone.
	Rendered bool
}

// Build classifies the body and assembles the immutable FetchResult.
func Build(p Params) scraper.FetchResult {
	html := p.HTML
	if len(html) > MaxStoredHTML {
		html = html[:MaxStoredHTML]
	}
	text := classify.ExtractText(p.HTML, classify.DefaultMaxTextLength)
	title := classify.Title(p.HTML)

	meta := scraper.FetchMetadata{
		CloudflareDetected:  classify.IsCloudflareChallenge(p.HTML, title),
		CaptchaDetected:     classify.IsCaptcha(p.HTML),
		RequiresAuth:        classify.RequiresAuth(p.HTML, p.StatusCode),
		RequiresJavaScript:  classify.RequiresJavaScript(p.HTML, len(text)),
		RawHTMLLength:       len(p.HTML),
		ExtractedTextLength: len(text),
		PageType:            classify.DetectPageType(p.HTML, p.StatusCode, len(text), title),
	}
	if p.Rendered {
		meta.RequiresJavaScript = false
	}
	meta.Blocked = meta.CloudflareDetected || meta.CaptchaDetected || meta.RequiresAuth

	if meta.CloudflareDetected {
		meta.Warnings = append(meta.Warnings, "Cloudflare challenge detected")
	}
	if meta.CaptchaDetected {
		meta.Warnings = append(meta.Warnings, "CAPTCHA detected")
	}
	if meta.RequiresJavaScript {
		meta.Warnings = append(meta.Warnings, "Page appears to require JavaScript rendering")
	}

	var success bool
	if p.Rendered {
		success = meta.ExtractedTextLength > classify.MinTextLength
	} else {
		success = p.StatusCode >= 200 && p.StatusCode <= 299 &&
			!meta.CloudflareDetected && !meta.CaptchaDetected &&
			meta.ExtractedTextLength > classify.MinTextLength
	}

	finalURL := p.FinalURL
	if finalURL == "" {
		finalURL = p.URL
	}

	res := scraper.FetchResult{
		URL:         p.URL,
		FinalURL:    finalURL,
		StatusCode:  p.StatusCode,
		ContentType: p.ContentType,
		HTML:        html,
		Text:        text,
		Method:      p.Method,
		DurationMs:  p.Duration.Milliseconds(),
		Success:     success,
		Metadata:    meta,
	}
	if !success && res.Error == "" {
		res.Error = failureReason(res)
	}
	return res
}

// Failed produces a failed result for errors that never yielded a body.
func Failed(url string, method scraper.ScrapingMethod, errText string, duration time.Duration) scraper.FetchResult {
	return scraper.FetchResult{
		URL:        url,
		FinalURL:   url,
		Method:     method,
		DurationMs: duration.Milliseconds(),
		Success:    false,
		Error:      errText,
		Metadata:   scraper.FetchMetadata{PageType: scraper.PageTypeUnknown},
	}
}

func failureReason(res scraper.FetchResult) string {
	m := res.Metadata
	switch {
	case m.CloudflareDetected:
		return "blocked by Cloudflare challenge"
	case m.CaptchaDetected:
		return "blocked by CAPTCHA"
	case m.RequiresAuth:
		return "authentication required"
	case res.StatusCode < 200 || res.StatusCode > 299:
		return fmt.Sprintf("HTTP status %d", res.StatusCode)
	default:
		return fmt.Sprintf("insufficient content extracted (%d chars)", m.ExtractedTextLength)
	}
}
