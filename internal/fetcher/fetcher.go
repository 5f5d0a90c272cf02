// Package fetcher performs the single outbound GET for a proxied resource.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/aman-churiwal/fetch-gateway/internal/target"
)

var (
	// ErrTimeout is returned when the target does not answer within the timeout
	ErrTimeout = errors.New("fetch timed out")

	// ErrUpstream wraps transport-level failures (DNS, TLS, connection reset)
	ErrUpstream = errors.New("upstream request failed")
)

const maxRedirects = 10

// Result describes one fetch. A non-2xx answer is a Result with Success false,
// not an error.
type Result struct {
	URL         string
	FinalURL    string
	StatusCode  int
	Success     bool
	Content     string
	ContentType string
	Length      int
	Truncated   bool
	Title       string
	Description string
}

type Config struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	// Optional hook run before every outbound connection
	DialControl func(network, address string, c syscall.RawConn) error
}

type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	maxBody   int64
}

func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 5 * 1024 * 1024
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = "FetchGateway/1.0"
	}

	dialer := &net.Dialer{
		Timeout:   cfg.Timeout,
		KeepAlive: 30 * time.Second,
		Control:   cfg.DialControl,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = cfg.Timeout
	transport.ResponseHeaderTimeout = cfg.Timeout

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &Fetcher{
		client:    client,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxBodyBytes,
	}
}

func (f *Fetcher) Timeout() time.Duration {
	return f.timeout
}

// Fetch GETs rawURL once, following redirects. The request is cancelled when
// the fetcher's timeout elapses.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, rt target.ResourceType) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", rt.Accept())

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	result := &Result{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		Success:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		ContentType: resp.Header.Get("Content-Type"),
	}

	if !result.Success || !isTextual(result.ContentType) {
		return result, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, classify(ctx, err)
	}
	if int64(len(body)) > f.maxBody {
		body = body[:runeBoundary(body, int(f.maxBody))]
		result.Truncated = true
	}

	result.Content = string(body)
	result.Length = len(body)

	if rt == target.HTML && result.Content != "" && isHTML(result.ContentType) {
		result.Title, result.Description = extractMeta(result.Content)
	}

	return result, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrUpstream, err)
}

// Returns the largest cut <= n that does not split a UTF-8 sequence. body must
// be longer than n.
func runeBoundary(body []byte, n int) int {
	for cut := n; cut >= 0 && cut > n-utf8.UTFMax; cut-- {
		if utf8.RuneStart(body[cut]) {
			return cut
		}
	}
	return n
}

// Reports whether the body should be read as text. A missing content type
// counts as text.
func isTextual(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(contentType)
	}

	return strings.HasPrefix(mediaType, "text/") ||
		strings.Contains(mediaType, "html") ||
		strings.Contains(mediaType, "xml") ||
		strings.Contains(mediaType, "json")
}

func isHTML(contentType string) bool {
	return contentType == "" || strings.Contains(strings.ToLower(contentType), "html")
}
