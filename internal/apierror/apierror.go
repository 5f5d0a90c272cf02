// Package apierror defines the error taxonomy surfaced to gateway clients.
// Every Kind maps to one HTTP status and one machine-readable code.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindMissingInput
	KindAuthInvalid
	KindQuotaExceeded
	KindBlockedTarget
	KindUpstreamFailure
	KindTimeout
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindMissingInput:
		return "missing_input"
	case KindAuthInvalid:
		return "auth_invalid"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindBlockedTarget:
		return "blocked_target"
	case KindUpstreamFailure:
		return "upstream_failure"
	case KindTimeout:
		return "timeout"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

const (
	CodeMissingURL        = "MISSING_URL"
	CodeMissingAPIKey     = "MISSING_API_KEY"
	CodeInvalidAPIKey     = "INVALID_API_KEY"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeBlockedURL        = "BLOCKED_URL"
	CodeFetchFailed       = "FETCH_FAILED"
	CodeTimeout           = "TIMEOUT"
	CodeSitemapNotFound   = "SITEMAP_NOT_FOUND"
	CodeInternal          = "INTERNAL_ERROR"
)

// Error is a client-facing failure. Title goes to the envelope's "error"
// field, Message to "message".
type Error struct {
	Kind    Kind
	Code    string
	Status  int
	Title   string
	Message string
	Fields  map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// With attaches an extra envelope field
func (e *Error) With(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

func MissingURL() *Error {
	return &Error{
		Kind:    KindMissingInput,
		Code:    CodeMissingURL,
		Status:  http.StatusBadRequest,
		Title:   "Missing URL",
		Message: "The 'url' query parameter is required",
	}
}

func MissingAPIKey() *Error {
	return &Error{
		Kind:    KindAuthInvalid,
		Code:    CodeMissingAPIKey,
		Status:  http.StatusUnauthorized,
		Title:   "Missing API key",
		Message: "Provide an API key with the 'apiKey' query parameter or the 'x-api-key' header",
	}
}

func InvalidAPIKey() *Error {
	return &Error{
		Kind:    KindAuthInvalid,
		Code:    CodeInvalidAPIKey,
		Status:  http.StatusUnauthorized,
		Title:   "Invalid API key",
		Message: "The provided API key is not valid",
	}
}

func RateLimitExceeded(tier string, limit int) *Error {
	return &Error{
		Kind:    KindQuotaExceeded,
		Code:    CodeRateLimitExceeded,
		Status:  http.StatusTooManyRequests,
		Title:   "Rate limit exceeded",
		Message: fmt.Sprintf("The %s tier allows %d requests per hour", tier, limit),
	}
}

// BlockedURL is returned for loopback and private targets. host is empty when
// the block happened at connect time.
func BlockedURL(host string, err error) *Error {
	message := "The target resolves to an address that is not allowed"
	if host != "" {
		message = fmt.Sprintf("Requests to %q are not allowed", host)
	}
	return &Error{
		Kind:    KindBlockedTarget,
		Code:    CodeBlockedURL,
		Status:  http.StatusForbidden,
		Title:   "Blocked URL",
		Message: message,
		Err:     err,
	}
}

// FetchFailed passes the upstream status through. Transport failures with no
// upstream status become 502.
func FetchFailed(upstreamStatus int, err error) *Error {
	status := upstreamStatus
	message := fmt.Sprintf("Upstream responded with HTTP %d", upstreamStatus)
	if status < 400 || status > 599 {
		status = http.StatusBadGateway
		message = "The target could not be fetched"
	}

	e := &Error{
		Kind:    KindUpstreamFailure,
		Code:    CodeFetchFailed,
		Status:  status,
		Title:   "Fetch failed",
		Message: message,
		Err:     err,
	}
	if upstreamStatus > 0 {
		e.With("statusCode", upstreamStatus)
	}
	return e
}

func Timeout(err error) *Error {
	return &Error{
		Kind:    KindTimeout,
		Code:    CodeTimeout,
		Status:  http.StatusGatewayTimeout,
		Title:   "Timeout",
		Message: "The target did not respond in time",
		Err:     err,
	}
}

func SitemapNotFound(tried []string) *Error {
	return (&Error{
		Kind:    KindNotFound,
		Code:    CodeSitemapNotFound,
		Status:  http.StatusNotFound,
		Title:   "Sitemap not found",
		Message: "No sitemap was found at any of the candidate locations",
	}).With("tried", tried)
}

func Internal(err error) *Error {
	return &Error{
		Kind:    KindInternal,
		Code:    CodeInternal,
		Status:  http.StatusInternalServerError,
		Title:   "Internal server error",
		Message: "An unexpected error occurred",
		Err:     err,
	}
}

// From returns err as an *Error, converting anything else to Internal
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal(err)
}
