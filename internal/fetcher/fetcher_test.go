package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/aman-churiwal/fetch-gateway/internal/guard"
	"github.com/aman-churiwal/fetch-gateway/internal/target"
)

func newTestFetcher(timeout time.Duration) *Fetcher {
	return New(Config{
		Timeout:      timeout,
		UserAgent:    "FetchGateway-Test/1.0",
		MaxBodyBytes: 1024,
	})
}

func TestFetch_TextSuccess(t *testing.T) {
	t.Parallel()

	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("User-agent: *\nDisallow:\n"))
	}))
	t.Cleanup(srv.Close)

	res, err := newTestFetcher(time.Second).Fetch(context.Background(), srv.URL+"/robots.txt", target.Robots)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "User-agent: *\nDisallow:\n", res.Content)
	require.Equal(t, len(res.Content), res.Length)
	require.Contains(t, res.ContentType, "text/plain")
	require.Equal(t, srv.URL+"/robots.txt", res.FinalURL)

	h := <-headers
	require.Equal(t, "FetchGateway-Test/1.0", h.Get("User-Agent"))
	require.Contains(t, h.Get("Accept"), "text/plain")
}

func TestFetch_BinaryBodyOmitted(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	t.Cleanup(srv.Close)

	res, err := newTestFetcher(time.Second).Fetch(context.Background(), srv.URL, target.HTML)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Empty(t, res.Content)
	require.Zero(t, res.Length)
}

func TestFetch_NonSuccessIsNotAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	t.Cleanup(srv.Close)

	res, err := newTestFetcher(time.Second).Fetch(context.Background(), srv.URL, target.HTML)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, http.StatusGone, res.StatusCode)
	require.Empty(t, res.Content)
}

func TestFetch_FollowsRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title> Moved Here </title><meta name="description" content="A page"></head></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	res, err := newTestFetcher(time.Second).Fetch(context.Background(), srv.URL+"/old", target.HTML)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, srv.URL+"/old", res.URL)
	require.Equal(t, srv.URL+"/new", res.FinalURL)
	require.Equal(t, "Moved Here", res.Title)
	require.Equal(t, "A page", res.Description)
}

func TestFetch_TimeoutAbortsRequest(t *testing.T) {
	t.Parallel()

	aborted := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		close(aborted)
	}))
	t.Cleanup(srv.Close)

	start := time.Now()
	_, err := newTestFetcher(100*time.Millisecond).Fetch(context.Background(), srv.URL, target.HTML)
	require.ErrorIs(t, err, ErrTimeout)
	require.Less(t, time.Since(start), 2*time.Second)

	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream request was not aborted")
	}
}

func TestFetch_TruncatesLargeBodies(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("a", 4096)))
	}))
	t.Cleanup(srv.Close)

	res, err := newTestFetcher(time.Second).Fetch(context.Background(), srv.URL, target.LLMs)
	require.NoError(t, err)
	require.True(t, res.Truncated)
	require.Equal(t, 1024, res.Length)
}

func TestFetch_TruncationKeepsUTF8Intact(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		// the 1024 byte cap falls inside the first euro sign
		_, _ = w.Write([]byte(strings.Repeat("a", 1023) + "€€"))
	}))
	t.Cleanup(srv.Close)

	res, err := newTestFetcher(time.Second).Fetch(context.Background(), srv.URL, target.LLMs)
	require.NoError(t, err)
	require.True(t, res.Truncated)
	require.Equal(t, 1023, res.Length)
	require.True(t, utf8.ValidString(res.Content))
	require.Equal(t, strings.Repeat("a", 1023), res.Content)
}

func TestRuneBoundary(t *testing.T) {
	t.Parallel()

	body := []byte("ab€c")
	require.Equal(t, 2, runeBoundary(body, 2))
	require.Equal(t, 2, runeBoundary(body, 3))
	require.Equal(t, 2, runeBoundary(body, 4))
	require.Equal(t, 5, runeBoundary(body, 5))
	require.Equal(t, 0, runeBoundary([]byte("€"), 1))
}

func TestFetch_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := newTestFetcher(time.Second).Fetch(context.Background(), "https://%zz", target.HTML)
	require.ErrorIs(t, err, ErrUpstream)
}

func TestFetch_DialControlBlocksPrivateAddresses(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: time.Second, DialControl: guard.DialControl})
	_, err := f.Fetch(context.Background(), srv.URL, target.HTML)
	require.ErrorIs(t, err, ErrUpstream)
	require.ErrorIs(t, err, guard.ErrBlocked)
}

func TestIsTextual(t *testing.T) {
	t.Parallel()

	for _, ct := range []string{"", "text/html; charset=utf-8", "application/xml", "application/rss+xml", "application/json", "application/xhtml+xml", "text/plain"} {
		require.True(t, isTextual(ct), ct)
	}
	for _, ct := range []string{"image/png", "application/pdf", "application/octet-stream"} {
		require.False(t, isTextual(ct), ct)
	}
}
