package direct

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/govsight/procurement-crawler/internal/scraper"
)

func procurementPage() string {
	return "<html><head><title>Open Bids</title></head><body><h1>Current bid opportunities</h1><p>" +
		strings.Repeat("Request for proposal details. ", 20) + "</p></body></html>"
}

func TestFetch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(procurementPage()))
	}))
	defer srv.Close()

	f := New(Config{})
	res := f.Fetch(context.Background(), srv.URL)

	require.True(t, res.Success)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, scraper.MethodHTTPFetch, res.Method)
	require.Equal(t, scraper.PageTypeProcurementList, res.Metadata.PageType)
	require.Contains(t, res.ContentType, "text/html")
	require.GreaterOrEqual(t, res.DurationMs, int64(0))
}

func TestFetch_FollowsRedirects(t *testing.T) {
	t.Parallel()

	var final string
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/landing", http.StatusFound)
	})
	mux.HandleFunc("/landing", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(procurementPage()))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	final = srv.URL + "/landing"

	f := New(Config{})
	res := f.Fetch(context.Background(), srv.URL+"/start")

	require.True(t, res.Success)
	require.Equal(t, final, res.FinalURL)
}

func TestFetch_ForbiddenWithSignInBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html><body><p>Please sign in to continue.</p></body></html>"))
	}))
	defer srv.Close()

	f := New(Config{})
	res := f.Fetch(context.Background(), srv.URL)

	require.False(t, res.Success)
	require.Equal(t, http.StatusForbidden, res.StatusCode)
	require.True(t, res.Metadata.RequiresAuth)
	require.True(t, res.Metadata.Blocked)
}

func TestFetch_NetworkErrorBecomesFailedResult(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	res := f.Fetch(context.Background(), "http://127.0.0.1:1/unreachable")

	require.False(t, res.Success)
	require.NotEmpty(t, res.Error)
	require.Equal(t, scraper.MethodHTTPFetch, res.Method)
}

func TestFetch_TimeoutMessage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 50 * time.Millisecond})
	res := f.Fetch(context.Background(), srv.URL)

	require.False(t, res.Success)
	require.Equal(t, "Request timeout after 0.05 seconds", res.Error)
}

func TestErrorText_ReflectsConfiguredTimeout(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Request timeout after 30 seconds",
		New(Config{}).errorText(context.DeadlineExceeded))
	require.Equal(t, "Request timeout after 5 seconds",
		New(Config{Timeout: 5 * time.Second}).errorText(context.DeadlineExceeded))
}

func TestFetch_LateResponseDoesNotAlterTimeoutResult(t *testing.T) {
	t.Parallel()

	responded := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(procurementPage()))
		close(responded)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 50 * time.Millisecond})
	res := f.Fetch(context.Background(), srv.URL)

	require.False(t, res.Success)
	require.Zero(t, res.StatusCode)
	require.Contains(t, res.Error, "timeout")

	// Let the abandoned request complete; the returned result must not
	// pick up fields from the late response.
	select {
	case <-responded:
	case <-time.After(2 * time.Second):
		t.Fatal("server handler never finished")
	}
	require.False(t, res.Success)
	require.Zero(t, res.StatusCode)
	require.Empty(t, res.HTML)
}
