package proxyrender

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/govsight/procurement-crawler/internal/scraper"
)

func renderedPage() string {
	return "<html><body><h1>Bid packet</h1><p>" +
		strings.Repeat("Solicitation line item. ", 20) + "</p></body></html>"
}

func TestFetch_MissingKeySkipsNetwork(t *testing.T) {
	t.Parallel()

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer srv.Close()

	f := New(Config{BaseURL: srv.URL})
	require.False(t, f.Configured())

	res := f.Fetch(context.Background(), "https://example.com")
	require.False(t, res.Success)
	require.Contains(t, res.Error, "API key not configured")
	require.False(t, called)
}

func TestFetch_SuccessTreatsBodyAsRendered(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "key-123", q.Get("api_key"))
		require.Equal(t, "https://example.com/bids", q.Get("url"))
		require.Equal(t, "true", q.Get("render_js"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(renderedPage()))
	}))
	defer srv.Close()

	f := New(Config{APIKey: "key-123", BaseURL: srv.URL})
	res := f.Fetch(context.Background(), "https://example.com/bids")

	require.True(t, res.Success)
	require.Equal(t, scraper.MethodProxyService, res.Method)
	require.False(t, res.Metadata.RequiresJavaScript)
	require.Equal(t, scraper.PageTypeProcurementDetail, res.Metadata.PageType)
}

func TestFetch_ServiceErrorCarriesStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := New(Config{APIKey: "key-123", BaseURL: srv.URL})
	res := f.Fetch(context.Background(), "https://example.com")

	require.False(t, res.Success)
	require.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	require.Contains(t, res.Error, "429")
}

func TestFetch_OptionalParams(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "true", q.Get("premium_proxy"))
		require.Equal(t, "us", q.Get("country_code"))
		require.Equal(t, "#results", q.Get("wait_for"))
		_, _ = w.Write([]byte(renderedPage()))
	}))
	defer srv.Close()

	f := New(Config{
		APIKey:       "key-123",
		BaseURL:      srv.URL,
		PremiumProxy: true,
		CountryCode:  "us",
		WaitSelector: "#results",
	})
	res := f.Fetch(context.Background(), "https://example.com")
	require.True(t, res.Success)
}
