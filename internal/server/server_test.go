package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/aman-churiwal/fetch-gateway/internal/apierror"
	"github.com/aman-churiwal/fetch-gateway/internal/config"
	"github.com/aman-churiwal/fetch-gateway/internal/fetcher"
	"github.com/aman-churiwal/fetch-gateway/internal/ratelimit"
	"github.com/aman-churiwal/fetch-gateway/internal/service"
	"github.com/aman-churiwal/fetch-gateway/internal/storage"
	"github.com/aman-churiwal/fetch-gateway/internal/target"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(mode string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:          "0",
			Environment:   "test",
			Mode:          mode,
			AllowedOrigin: "*",
			UpgradeURL:    "https://fetchgateway.dev/pricing",
		},
		Auth: config.AuthConfig{
			APIKeys: []string{"trial-key:trial", "basic-key", "pro-key:pro"},
		},
		Fetch: config.FetchConfig{
			TimeoutSeconds:      12,
			UserAgent:           "FetchGateway-Test/1.0",
			MaxBodyBytes:        1 << 20,
			AllowPrivateTargets: true,
			SitemapFromRobots:   true,
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, mutate ...func(*Deps)) (*Server, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	d := Deps{
		Config:   cfg,
		Counters: store,
		KeyCache: store,
	}
	for _, m := range mutate {
		m(&d)
	}
	return New(d), store
}

func do(s *Server, method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.GetRouter().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func robotsServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Header().Set("Content-Type", "text/plain")
			fmt.Fprint(w, "User-agent: *\nAllow: /\n")
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fetchPath(rawURL, rt, apiKey string) string {
	q := url.Values{}
	q.Set("url", rawURL)
	if rt != "" {
		q.Set("type", rt)
	}
	if apiKey != "" {
		q.Set("apiKey", apiKey)
	}
	return "/api/fetch?" + q.Encode()
}

func TestMissingURL_OpenModeReadiness(t *testing.T) {
	s, _ := newTestServer(t, testConfig(config.ModeOpen))

	for _, path := range []string{"/api/fetch", "/"} {
		rec := do(s, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		require.Equal(t, true, body["success"])
		require.Contains(t, body, "usage")
	}
}

func TestMissingURL_CommercialMode(t *testing.T) {
	s, _ := newTestServer(t, testConfig(config.ModeCommercial))

	rec := do(s, http.MethodGet, "/api/fetch?apiKey=basic-key", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	require.Equal(t, false, body["success"])
	require.Equal(t, apierror.CodeMissingURL, body["code"])
}

func TestOptionsPreflight(t *testing.T) {
	s, _ := newTestServer(t, testConfig(config.ModeCommercial))

	rec := do(s, http.MethodOptions, "/api/fetch", "", map[string]string{
		"Origin":                        "https://app.example.com",
		"Access-Control-Request-Method": "GET",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Body.String())
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "x-api-key")
}

func TestCORSOnErrors(t *testing.T) {
	cfg := testConfig(config.ModeCommercial)
	cfg.Server.AllowedOrigin = "https://app.example.com"
	s, _ := newTestServer(t, cfg)

	rec := do(s, http.MethodGet, fetchPath("example.com", "", ""), "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAPIKeyAdmission(t *testing.T) {
	s, _ := newTestServer(t, testConfig(config.ModeCommercial))

	rec := do(s, http.MethodGet, fetchPath("example.com", "robots", ""), "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, apierror.CodeMissingAPIKey, decode(t, rec)["code"])

	rec = do(s, http.MethodGet, fetchPath("example.com", "robots", "nope"), "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, apierror.CodeInvalidAPIKey, decode(t, rec)["code"])
}

func TestRobotsFetch_Commercial(t *testing.T) {
	srv := robotsServer(t)
	s, store := newTestServer(t, testConfig(config.ModeCommercial))

	rec := do(s, http.MethodGet, fetchPath(srv.URL, "robots", ""), "", map[string]string{
		"x-api-key": "trial-key",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	require.Equal(t, true, body["success"])
	require.True(t, strings.HasSuffix(body["url"].(string), "/robots.txt"))
	require.Equal(t, "robots", body["type"])
	require.Contains(t, body["content"], "User-agent: *")
	require.Equal(t, float64(len("User-agent: *\nAllow: /\n")), body["length"])

	require.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	usage, err := ratelimit.NewUsageMeter(store).Usage(context.Background(), service.Fingerprint("trial-key"), 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), usage[0].Count)
}

func TestRateLimitExceeded(t *testing.T) {
	srv := robotsServer(t)
	s, store := newTestServer(t, testConfig(config.ModeCommercial))
	path := fetchPath(srv.URL, "robots", "trial-key")

	for i := 1; i <= 10; i++ {
		rec := do(s, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}

	rec := do(s, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	body := decode(t, rec)
	require.Equal(t, apierror.CodeRateLimitExceeded, body["code"])
	require.Equal(t, "https://fetchgateway.dev/pricing", body["upgradeUrl"])
	resetAt, err := time.Parse(time.RFC3339, body["resetAt"].(string))
	require.NoError(t, err)
	require.True(t, resetAt.After(time.Now()))

	// Rejected requests are not metered
	usage, err := ratelimit.NewUsageMeter(store).Usage(context.Background(), service.Fingerprint("trial-key"), 1)
	require.NoError(t, err)
	require.Equal(t, int64(10), usage[0].Count)

	// Other keys have their own bucket
	rec = do(s, http.MethodGet, fetchPath(srv.URL, "robots", "basic-key"), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
}

type failingCounters struct{}

func (failingCounters) Incr(context.Context, string) (int64, error) {
	return 0, errors.New("dial tcp: connection refused")
}

func (failingCounters) Expire(context.Context, string, time.Duration) error {
	return errors.New("dial tcp: connection refused")
}

func (failingCounters) Count(context.Context, string) (int64, error) {
	return 0, errors.New("dial tcp: connection refused")
}

func TestCounterStoreFailure_FailsOpen(t *testing.T) {
	srv := robotsServer(t)
	s, _ := newTestServer(t, testConfig(config.ModeCommercial), func(d *Deps) {
		d.Counters = failingCounters{}
	})

	rec := do(s, http.MethodGet, fetchPath(srv.URL, "robots", "trial-key"), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, true, decode(t, rec)["success"])
}

func TestOpenMode_NoAdmission(t *testing.T) {
	srv := robotsServer(t)
	s, _ := newTestServer(t, testConfig(config.ModeOpen))

	rec := do(s, http.MethodGet, fetchPath(srv.URL, "robots", ""), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestPostJSONBody(t *testing.T) {
	srv := robotsServer(t)
	s, _ := newTestServer(t, testConfig(config.ModeCommercial))

	payload := fmt.Sprintf(`{"url":%q,"type":"robots","apiKey":"pro-key"}`, srv.URL)
	rec := do(s, http.MethodPost, "/api/fetch", payload, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "1000", rec.Header().Get("X-RateLimit-Limit"))

	// Query parameters win over the body
	rec = do(s, http.MethodPost, "/api/fetch?type=llms", payload, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, apierror.CodeFetchFailed, decode(t, rec)["code"])
}

func TestBlockedTarget(t *testing.T) {
	cfg := testConfig(config.ModeOpen)
	cfg.Fetch.AllowPrivateTargets = false
	s, _ := newTestServer(t, cfg)

	for _, host := range []string{"127.0.0.1", "10.1.2.3", "192.168.1.1", "172.16.0.5", "localhost"} {
		rec := do(s, http.MethodGet, fetchPath(host, "", ""), "", nil)
		require.Equal(t, http.StatusForbidden, rec.Code, host)
		require.Equal(t, apierror.CodeBlockedURL, decode(t, rec)["code"])
	}
}

func TestSitemapIndexFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap_index.xml" {
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprint(w, "<sitemapindex/>")
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s, _ := newTestServer(t, testConfig(config.ModeOpen))

	rec := do(s, http.MethodGet, fetchPath(srv.URL, "sitemap", ""), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, srv.URL+"/sitemap_index.xml", decode(t, rec)["url"])
}

func TestSitemapNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	s, _ := newTestServer(t, testConfig(config.ModeOpen))

	rec := do(s, http.MethodGet, fetchPath(srv.URL, "sitemap", ""), "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, apierror.CodeSitemapNotFound, decode(t, rec)["code"])
}

func TestUpstreamTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	s, _ := newTestServer(t, testConfig(config.ModeOpen), func(d *Deps) {
		d.Fetcher = fetcher.New(fetcher.Config{Timeout: 100 * time.Millisecond})
	})

	rec := do(s, http.MethodGet, fetchPath(srv.URL, "", ""), "", nil)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	require.Equal(t, apierror.CodeTimeout, decode(t, rec)["code"])
}

type panickingFetcher struct{}

func (panickingFetcher) Fetch(context.Context, string, target.ResourceType) (*fetcher.Result, error) {
	panic("boom")
}

func TestPanicRecovery(t *testing.T) {
	cfg := testConfig(config.ModeOpen)
	s, _ := newTestServer(t, cfg, func(d *Deps) {
		d.Fetcher = panickingFetcher{}
	})

	rec := do(s, http.MethodGet, fetchPath("example.com", "", ""), "", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	require.Equal(t, apierror.CodeInternal, body["code"])
	require.NotContains(t, body, "details")

	cfg = testConfig(config.ModeOpen)
	cfg.Server.Environment = "development"
	s, _ = newTestServer(t, cfg, func(d *Deps) {
		d.Fetcher = panickingFetcher{}
	})

	rec = do(s, http.MethodGet, fetchPath("example.com", "", ""), "", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, decode(t, rec)["details"], "boom")
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, testConfig(config.ModeOpen))

	rec := do(s, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "healthy", body["status"])
	require.Equal(t, "open", body["mode"])

	rec = do(s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "gateway_http_requests_total")
}

func TestAdminRoutesRequireDatabase(t *testing.T) {
	s, _ := newTestServer(t, testConfig(config.ModeCommercial))

	rec := do(s, http.MethodPost, "/admin/login", `{"email":"a@b.c","password":"x"}`, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
