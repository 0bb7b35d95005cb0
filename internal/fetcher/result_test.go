package fetcher

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/govsight/procurement-crawler/internal/scraper"
)

func page(textChars int) string {
	return "<html><body><p>" + strings.Repeat("a", textChars) + "</p></body></html>"
}

func TestBuild_SuccessGatedOnTextLength(t *testing.T) {
	t.Parallel()

	short := Build(Params{
		URL:        "https://example.com",
		Method:     scraper.MethodHTTPFetch,
		StatusCode: 200,
		HTML:       page(99),
	})
	require.False(t, short.Success)
	require.Equal(t, 99, short.Metadata.ExtractedTextLength)

	long := Build(Params{
		URL:        "https://example.com",
		Method:     scraper.MethodHTTPFetch,
		StatusCode: 200,
		HTML:       page(101),
	})
	require.True(t, long.Success)
	require.Empty(t, long.Error)
}

func TestBuild_AuthWall(t *testing.T) {
	t.Parallel()

	res := Build(Params{
		URL:        "https://example.com/portal",
		Method:     scraper.MethodHTTPFetch,
		StatusCode: 403,
		HTML:       "<html><body><p>Please sign in to view current solicitations.</p></body></html>",
	})
	require.False(t, res.Success)
	require.True(t, res.Metadata.RequiresAuth)
	require.True(t, res.Metadata.Blocked)
}

func TestBuild_CloudflareBlocksEvenWith200(t *testing.T) {
	t.Parallel()

	res := Build(Params{
		URL:        "https://example.com",
		Method:     scraper.MethodHTTPFetch,
		StatusCode: 200,
		HTML:       "<html><title>Just a moment...</title>" + page(500) + "</html>",
	})
	require.False(t, res.Success)
	require.True(t, res.Metadata.CloudflareDetected)
	require.Contains(t, res.Metadata.Warnings, "Cloudflare challenge detected")
	require.Equal(t, scraper.PageTypeCloudflare, res.Metadata.PageType)
}

func TestBuild_RenderedForcesJavaScriptFalse(t *testing.T) {
	t.Parallel()

	// An SPA shell fetched directly needs JS; the same page via a rendering
	// service is treated as fully rendered.
	spa := `<html><body><div id="root"></div></body></html>`

	direct := Build(Params{URL: "https://x", Method: scraper.MethodHTTPFetch, StatusCode: 200, HTML: spa})
	require.True(t, direct.Metadata.RequiresJavaScript)
	require.False(t, direct.Success)

	rendered := Build(Params{URL: "https://x", Method: scraper.MethodProxyService, StatusCode: 200, HTML: page(300), Rendered: true})
	require.False(t, rendered.Metadata.RequiresJavaScript)
	require.True(t, rendered.Success)
}

func TestBuild_TruncatesStoredHTML(t *testing.T) {
	t.Parallel()

	res := Build(Params{
		URL:        "https://example.com",
		Method:     scraper.MethodHTTPFetch,
		StatusCode: 200,
		HTML:       page(MaxStoredHTML + 5000),
	})
	require.Len(t, res.HTML, MaxStoredHTML)
	require.Greater(t, res.Metadata.RawHTMLLength, MaxStoredHTML)
}

func TestFailed(t *testing.T) {
	t.Parallel()

	res := Failed("https://example.com", scraper.MethodHTTPFetch, "Request timeout after 30 seconds", 30*time.Second)
	require.False(t, res.Success)
	require.Equal(t, "Request timeout after 30 seconds", res.Error)
	require.EqualValues(t, 30000, res.DurationMs)
}
