package flight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind Kind
		msg  string
	}{
		{"Timeout", TimeoutError(context.DeadlineExceeded), KindTimeout, "Request timed out: context deadline exceeded"},
		{"Connection", ConnectionError(errors.New("dial tcp: refused")), KindConnection, "Connection error: dial tcp: refused"},
		{"Auth", AuthError(nil), KindAuth, "Invalid API key"},
		{"Rate limit", Throttled(&RateLimitError{Message: "Rate limit exceeded", RetryAfter: time.Second}), KindRateLimit, "Rate limit exceeded"},
		{"HTTP", HTTPError(500, ""), KindRequest, "HTTP error: 500 Internal Server Error"},
		{"Request", RequestError(errors.New("bad body")), KindRequest, "Request failed: bad body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("fetch light: %w", tt.err)

			kind, ok := KindOf(wrapped)
			assert.True(t, ok)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.msg, tt.err.Error())
		})
	}

	t.Run("Unclassified error", func(t *testing.T) {
		_, ok := KindOf(errors.New("boom"))
		assert.False(t, ok)
	})

	t.Run("Unwrap reaches the cause", func(t *testing.T) {
		err := TimeoutError(context.DeadlineExceeded)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("Rate limit details survive wrapping", func(t *testing.T) {
		rle := &RateLimitError{StatusCode: 429, RetryAfter: 30 * time.Second, Message: "Rate limit exceeded"}
		got, ok := IsRateLimitError(Throttled(rle))
		require.True(t, ok)
		assert.Equal(t, 30*time.Second, got.RetryAfter)
		assert.Equal(t, "Rate limit exceeded (retry after 30s)", got.Error())
	})
}

func TestParseRetryAfter(t *testing.T) {
	t.Run("Delay seconds", func(t *testing.T) {
		h := http.Header{}
		h.Set("Retry-After", "30")
		assert.Equal(t, 30*time.Second, ParseRetryAfter(h))
	})

	t.Run("HTTP date", func(t *testing.T) {
		h := http.Header{}
		h.Set("Retry-After", time.Now().Add(time.Minute).UTC().Format(http.TimeFormat))
		d := ParseRetryAfter(h)
		assert.Greater(t, d, 50*time.Second)
		assert.LessOrEqual(t, d, time.Minute)
	})

	t.Run("Missing or invalid", func(t *testing.T) {
		assert.Zero(t, ParseRetryAfter(http.Header{}))

		h := http.Header{}
		h.Set("Retry-After", "soon")
		assert.Zero(t, ParseRetryAfter(h))
	})
}

func TestExtractRateLimitHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("X-RateLimit-Limit", "10")
	h.Set("X-Rate-Limit-Remaining", "0")
	h.Set("X-Rate-Limit-Reset", "1700000000")

	rlh := ExtractRateLimitHeaders(h)
	assert.Equal(t, 10, rlh.Limit)
	assert.Equal(t, 0, rlh.Remaining)
	assert.Equal(t, time.Unix(1700000000, 0), rlh.Reset)

	empty := ExtractRateLimitHeaders(http.Header{})
	assert.Equal(t, -1, empty.Limit)
	assert.Equal(t, -1, empty.Remaining)
	assert.True(t, empty.Reset.IsZero())
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"Deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), KindTimeout},
		{"Net timeout", &url.Error{Op: "Get", URL: "http://x", Err: timeoutErr{}}, KindTimeout},
		{"Refused", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, KindConnection},
		{"DNS", &net.DNSError{Err: "no such host", Name: "api.invalid"}, KindConnection},
		{"Other", errors.New("malformed response"), KindRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyTransport(tt.err)
			assert.Equal(t, tt.kind, got.Kind)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}
