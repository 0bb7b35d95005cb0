package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/govsight/procurement-crawler/internal/scraper"
	"github.com/govsight/procurement-crawler/internal/strategy"
)

type stubStrategy struct {
	result   scraper.StrategyResult
	lastOpts strategy.Options
}

func (s *stubStrategy) Scrape(_ context.Context, _ string, opts strategy.Options) scraper.StrategyResult {
	s.lastOpts = opts
	return s.result
}

func TestFetchWebpageContentFlattensResult(t *testing.T) {
	t.Parallel()

	strat := &stubStrategy{result: scraper.StrategyResult{
		Result: scraper.FetchResult{
			URL:         "https://procurement.example.gov/bids",
			FinalURL:    "https://procurement.example.gov/bids/open",
			StatusCode:  200,
			ContentType: "text/html",
			Text:        "Open bid opportunities for the city",
			HTML:        "<html>...</html>",
			Method:      scraper.MethodProxyService,
			DurationMs:  150,
			Success:     true,
			Metadata: scraper.FetchMetadata{
				PageType:            scraper.PageTypeProcurementList,
				ExtractedTextLength: 35,
				Warnings:            []string{"JavaScript rendering may be required"},
			},
		},
		MethodsAttempted: []scraper.ScrapingMethod{scraper.MethodHTTPFetch, scraper.MethodProxyService},
		FallbackUsed:     true,
	}}

	f := New(strat)
	resp, err := f.FetchWebpageContent(context.Background(), FetchRequest{URL: "https://procurement.example.gov/bids"})
	require.NoError(t, err)

	require.True(t, resp.Success)
	require.Equal(t, "https://procurement.example.gov/bids/open", resp.FinalURL)
	require.Equal(t, "proxy_service", resp.Method)
	require.Equal(t, "procurement-list", resp.PageType)
	require.Equal(t, []string{"http_fetch", "proxy_service"}, resp.MethodsAttempted)
	require.True(t, resp.FallbackUsed)
	require.Equal(t, int64(150), resp.DurationMs)
	require.GreaterOrEqual(t, resp.TotalDurationMs, int64(0))
}

func TestFetchWebpageContentAppliesOptions(t *testing.T) {
	t.Parallel()

	strat := &stubStrategy{}
	f := New(strat)

	off := false
	_, err := f.FetchWebpageContent(context.Background(), FetchRequest{
		URL:             "https://procurement.example.gov/bids",
		PreferredMethod: "browser_service",
		EnableFallback:  &off,
	})
	require.NoError(t, err)
	require.Equal(t, scraper.MethodBrowserService, strat.lastOpts.PreferredMethod)
	require.False(t, strat.lastOpts.EnableFallback)
}

func TestFetchWebpageContentValidatesInput(t *testing.T) {
	t.Parallel()

	f := New(&stubStrategy{})

	_, err := f.FetchWebpageContent(context.Background(), FetchRequest{})
	require.ErrorContains(t, err, "url is required")

	_, err = f.FetchWebpageContent(context.Background(), FetchRequest{
		URL:             "https://procurement.example.gov/bids",
		PreferredMethod: "carrier_pigeon",
	})
	require.ErrorContains(t, err, "unknown scraping method")
}
