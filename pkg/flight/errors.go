package flight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Kind classifies a data source failure.
type Kind int

const (
	// KindRequest is a generic request failure (bad status, undecodable body)
	KindRequest Kind = iota
	// KindTimeout means the provider did not answer in time
	KindTimeout
	// KindConnection means the provider could not be reached
	KindConnection
	// KindAuth means the credentials were rejected
	KindAuth
	// KindRateLimit means the provider throttled the request
	KindRateLimit
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	default:
		return "request"
	}
}

// Error is a classified data source failure. Msg is shown to the user as-is.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TimeoutError wraps err as a timeout failure.
func TimeoutError(err error) *Error {
	return &Error{Kind: KindTimeout, Msg: fmt.Sprintf("Request timed out: %v", err), Err: err}
}

// ConnectionError wraps err as a connection failure.
func ConnectionError(err error) *Error {
	return &Error{Kind: KindConnection, Msg: fmt.Sprintf("Connection error: %v", err), Err: err}
}

// AuthError reports rejected credentials.
func AuthError(err error) *Error {
	return &Error{Kind: KindAuth, Msg: "Invalid API key", Err: err}
}

// RequestError wraps err as a generic request failure.
func RequestError(err error) *Error {
	return &Error{Kind: KindRequest, Msg: fmt.Sprintf("Request failed: %v", err), Err: err}
}

// HTTPError reports an unexpected HTTP status.
func HTTPError(status int, body string) *Error {
	msg := fmt.Sprintf("HTTP error: %d %s", status, http.StatusText(status))
	if body != "" {
		msg = fmt.Sprintf("%s: %s", msg, body)
	}
	return &Error{Kind: KindRequest, Msg: msg}
}

// Throttled wraps a RateLimitError so callers see the stable message.
func Throttled(rle *RateLimitError) *Error {
	return &Error{Kind: KindRateLimit, Msg: "Rate limit exceeded", Err: rle}
}

// ClassifyTransport maps an http.Client error onto an Error kind.
func ClassifyTransport(err error) *Error {
	if IsTimeout(err) {
		return TimeoutError(err)
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return ConnectionError(err)
	}

	return RequestError(err)
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// KindOf returns the classification of err and whether err was classified at all.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return KindRequest, false
}

// RateLimitError represents an HTTP 429 rate limit error with retry information.
type RateLimitError struct {
	StatusCode int
	RetryAfter time.Duration
	Message    string
	Headers    RateLimitHeaders
}

// RateLimitHeaders contains rate limit information from response headers.
type RateLimitHeaders struct {
	Limit     int       // X-Rate-Limit-Limit: Maximum requests allowed
	Remaining int       // X-Rate-Limit-Remaining: Requests remaining in current window
	Reset     time.Time // X-Rate-Limit-Reset: When the rate limit resets
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsRateLimitError checks if an error is, or wraps, a rate limit error.
func IsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// NewRateLimitError builds a RateLimitError from a throttled response.
func NewRateLimitError(resp *http.Response) *RateLimitError {
	return &RateLimitError{
		StatusCode: resp.StatusCode,
		RetryAfter: ParseRetryAfter(resp.Header),
		Message:    "Rate limit exceeded",
		Headers:    ExtractRateLimitHeaders(resp.Header),
	}
}

// ParseRetryAfter extracts the Retry-After header value.
// Returns the duration to wait, or 0 if header is not present.
// Supports both delay-seconds (integer) and HTTP-date formats.
//
// Examples:
//
//	Retry-After: 30                            -> 30 seconds
//	Retry-After: Wed, 21 Oct 2015 07:28:00 GMT -> duration until that time
func ParseRetryAfter(headers http.Header) time.Duration {
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if retryTime, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(retryTime); d > 0 {
			return d
		}
	}

	return 0
}

// ExtractRateLimitHeaders extracts common rate limit headers from the response.
// Unreported counters are -1.
func ExtractRateLimitHeaders(headers http.Header) RateLimitHeaders {
	rlh := RateLimitHeaders{
		Limit:     -1,
		Remaining: -1,
	}

	if v, ok := firstInt(headers, "X-Rate-Limit-Limit", "X-RateLimit-Limit"); ok {
		rlh.Limit = int(v)
	}
	if v, ok := firstInt(headers, "X-Rate-Limit-Remaining", "X-RateLimit-Remaining"); ok {
		rlh.Remaining = int(v)
	}
	// Unix timestamp
	if v, ok := firstInt(headers, "X-Rate-Limit-Reset", "X-RateLimit-Reset"); ok {
		rlh.Reset = time.Unix(v, 0)
	}

	return rlh
}

func firstInt(headers http.Header, names ...string) (int64, bool) {
	for _, name := range names {
		raw := headers.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		return v, err == nil
	}
	return 0, false
}
