package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/govsight/procurement-crawler/internal/scraper"
)

type stubFetcher struct {
	method     scraper.ScrapingMethod
	configured bool
	results    []scraper.FetchResult
	calls      int
}

func (s *stubFetcher) Method() scraper.ScrapingMethod { return s.method }
func (s *stubFetcher) Configured() bool               { return s.configured }

func (s *stubFetcher) Fetch(_ context.Context, _ string) scraper.FetchResult {
	var res scraper.FetchResult
	if s.calls < len(s.results) {
		res = s.results[s.calls]
	} else if len(s.results) > 0 {
		res = s.results[len(s.results)-1]
	}
	s.calls++
	return res
}

func success(method scraper.ScrapingMethod) scraper.FetchResult {
	return scraper.FetchResult{
		URL: "https://example.com", Method: method, StatusCode: 200, Success: true,
		Metadata: scraper.FetchMetadata{ExtractedTextLength: 500, PageType: scraper.PageTypeProcurementList},
	}
}

func blocked(method scraper.ScrapingMethod) scraper.FetchResult {
	return scraper.FetchResult{
		URL: "https://example.com", Method: method, StatusCode: 200, Success: false,
		Error: "blocked by Cloudflare challenge",
		Metadata: scraper.FetchMetadata{
			CloudflareDetected: true, Blocked: true,
			ExtractedTextLength: 40, PageType: scraper.PageTypeCloudflare,
		},
	}
}

func TestShouldEscalate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		res  scraper.FetchResult
		want bool
	}{
		{"cloudflare", scraper.FetchResult{Metadata: scraper.FetchMetadata{CloudflareDetected: true}}, true},
		{"captcha", scraper.FetchResult{Metadata: scraper.FetchMetadata{CaptchaDetected: true}}, true},
		{"blocked flag", scraper.FetchResult{Metadata: scraper.FetchMetadata{Blocked: true, ExtractedTextLength: 5000}}, true},
		{"javascript", scraper.FetchResult{Metadata: scraper.FetchMetadata{RequiresJavaScript: true}}, true},
		{"401", scraper.FetchResult{StatusCode: 401}, true},
		{"403", scraper.FetchResult{StatusCode: 403}, true},
		{"short text", scraper.FetchResult{StatusCode: 200, Metadata: scraper.FetchMetadata{ExtractedTextLength: 50}}, true},
		{"server error", scraper.FetchResult{StatusCode: 503}, true},
		{"unclassified failure", scraper.FetchResult{Error: "weird"}, true},
		{"404 never escalates", scraper.FetchResult{StatusCode: 404}, false},
		{"404 beats block flags", scraper.FetchResult{
			StatusCode: 404,
			Metadata:   scraper.FetchMetadata{CloudflareDetected: true, Blocked: true, RequiresJavaScript: true},
		}, false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, ShouldEscalate(tc.res))
		})
	}
}

func TestMethodOrder_SkipsUnconfigured(t *testing.T) {
	t.Parallel()

	o := New([]scraper.Fetcher{
		&stubFetcher{method: scraper.MethodHTTPFetch, configured: true},
		&stubFetcher{method: scraper.MethodProxyService, configured: false},
		&stubFetcher{method: scraper.MethodBrowserService, configured: true},
	}, nil)

	order := o.MethodOrder(scraper.MethodHTTPFetch)
	require.Equal(t, []scraper.ScrapingMethod{scraper.MethodHTTPFetch, scraper.MethodBrowserService}, order)
	require.NotContains(t, order, scraper.MethodProxyService)
}

func TestMethodOrder_PreferredFirst(t *testing.T) {
	t.Parallel()

	o := New([]scraper.Fetcher{
		&stubFetcher{method: scraper.MethodHTTPFetch, configured: true},
		&stubFetcher{method: scraper.MethodProxyService, configured: true},
		&stubFetcher{method: scraper.MethodBrowserService, configured: true},
	}, nil)

	order := o.MethodOrder(scraper.MethodBrowserService)
	require.Equal(t, []scraper.ScrapingMethod{
		scraper.MethodBrowserService,
		scraper.MethodHTTPFetch,
		scraper.MethodProxyService,
	}, order)
}

func TestScrape_FirstMethodWins(t *testing.T) {
	t.Parallel()

	http := &stubFetcher{method: scraper.MethodHTTPFetch, configured: true, results: []scraper.FetchResult{success(scraper.MethodHTTPFetch)}}
	proxy := &stubFetcher{method: scraper.MethodProxyService, configured: true}

	o := New([]scraper.Fetcher{http, proxy}, nil)
	out := o.Scrape(context.Background(), "https://example.com", DefaultOptions())

	require.True(t, out.Result.Success)
	require.False(t, out.FallbackUsed)
	require.Equal(t, []scraper.ScrapingMethod{scraper.MethodHTTPFetch}, out.MethodsAttempted)
	require.Zero(t, proxy.calls)
}

func TestScrape_EscalatesOnCloudflare(t *testing.T) {
	t.Parallel()

	http := &stubFetcher{method: scraper.MethodHTTPFetch, configured: true, results: []scraper.FetchResult{blocked(scraper.MethodHTTPFetch)}}
	proxy := &stubFetcher{method: scraper.MethodProxyService, configured: true, results: []scraper.FetchResult{success(scraper.MethodProxyService)}}

	o := New([]scraper.Fetcher{http, proxy}, nil)
	out := o.Scrape(context.Background(), "https://example.com", DefaultOptions())

	require.True(t, out.Result.Success)
	require.True(t, out.FallbackUsed)
	require.Equal(t, scraper.MethodProxyService, out.Result.Method)
	require.Equal(t, []scraper.ScrapingMethod{scraper.MethodHTTPFetch, scraper.MethodProxyService}, out.MethodsAttempted)
}

func TestScrape_404StopsEscalation(t *testing.T) {
	t.Parallel()

	notFound := scraper.FetchResult{
		URL: "https://example.com/gone", Method: scraper.MethodHTTPFetch,
		StatusCode: 404, Success: false, Error: "HTTP status 404",
		Metadata: scraper.FetchMetadata{PageType: scraper.PageTypeError},
	}
	http := &stubFetcher{method: scraper.MethodHTTPFetch, configured: true, results: []scraper.FetchResult{notFound}}
	proxy := &stubFetcher{method: scraper.MethodProxyService, configured: true}

	o := New([]scraper.Fetcher{http, proxy}, nil)
	out := o.Scrape(context.Background(), "https://example.com/gone", DefaultOptions())

	require.False(t, out.Result.Success)
	require.Equal(t, 404, out.Result.StatusCode)
	require.Equal(t, []scraper.ScrapingMethod{scraper.MethodHTTPFetch}, out.MethodsAttempted)
	require.Zero(t, proxy.calls)
}

func TestScrape_FallbackDisabledReturnsFirstFailure(t *testing.T) {
	t.Parallel()

	http := &stubFetcher{method: scraper.MethodHTTPFetch, configured: true, results: []scraper.FetchResult{blocked(scraper.MethodHTTPFetch)}}
	proxy := &stubFetcher{method: scraper.MethodProxyService, configured: true}

	opts := DefaultOptions()
	opts.EnableFallback = false

	o := New([]scraper.Fetcher{http, proxy}, nil)
	out := o.Scrape(context.Background(), "https://example.com", opts)

	require.False(t, out.Result.Success)
	require.False(t, out.FallbackUsed)
	require.Zero(t, proxy.calls)
}

func TestScrape_AllMethodsExhausted(t *testing.T) {
	t.Parallel()

	http := &stubFetcher{method: scraper.MethodHTTPFetch, configured: true, results: []scraper.FetchResult{blocked(scraper.MethodHTTPFetch)}}
	proxy := &stubFetcher{method: scraper.MethodProxyService, configured: true, results: []scraper.FetchResult{blocked(scraper.MethodProxyService)}}
	browser := &stubFetcher{method: scraper.MethodBrowserService, configured: true, results: []scraper.FetchResult{blocked(scraper.MethodBrowserService)}}

	o := New([]scraper.Fetcher{http, proxy, browser}, nil)
	out := o.Scrape(context.Background(), "https://example.com", DefaultOptions())

	require.False(t, out.Result.Success)
	require.Equal(t, "All scraping methods failed", out.Result.Error)
	require.Equal(t, scraper.MethodHTTPFetch, out.Result.Method)
	require.True(t, out.FallbackUsed)
	require.Len(t, out.MethodsAttempted, 3)
}

func TestScrape_RetriesSameMethodBeforeEscalating(t *testing.T) {
	t.Parallel()

	http := &stubFetcher{method: scraper.MethodHTTPFetch, configured: true, results: []scraper.FetchResult{
		blocked(scraper.MethodHTTPFetch),
		success(scraper.MethodHTTPFetch),
	}}

	opts := DefaultOptions()
	opts.MaxRetries = 2

	o := New([]scraper.Fetcher{http}, nil)
	out := o.Scrape(context.Background(), "https://example.com", opts)

	require.True(t, out.Result.Success)
	require.Equal(t, 2, http.calls)
	require.False(t, out.FallbackUsed)
}
