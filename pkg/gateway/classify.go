package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chmcp/companies-house-mcp/pkg/budget"
)

// The classifier is one-shot: every raw outcome maps to exactly one Error and
// nothing here retries.

// ClassifyTransport classifies a failure that happened before a response was
// obtained.
func ClassifyTransport(err error) *Error {
	msg := "network error: could not reach the Companies House API"
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		msg = "network error: the Companies House API did not respond in time"
	}
	return &Error{Kind: KindNetwork, Message: msg, cause: err}
}

// ClassifyStatus classifies an upstream response status. It returns nil for
// 2xx statuses.
func ClassifyStatus(status int, header http.Header) *Error {
	if status >= 200 && status < 300 {
		return nil
	}
	cause := fmt.Errorf("upstream status %d", status)
	switch status {
	case http.StatusUnauthorized:
		return &Error{
			Kind:    KindAuthentication,
			Message: "authentication failed: invalid Companies House API key",
			Status:  status,
			cause:   cause,
		}
	case http.StatusNotFound:
		return &Error{
			Kind:    KindNotFound,
			Message: "not found: the requested resource does not exist",
			Status:  status,
			cause:   cause,
		}
	case http.StatusTooManyRequests:
		return &Error{
			Kind:       KindRateLimit,
			Message:    "rate limit exceeded: the Companies House API is throttling requests",
			Status:     status,
			RetryAfter: parseRetryAfter(header.Get("Retry-After"), time.Now()),
			cause:      cause,
		}
	}
	if status >= http.StatusInternalServerError && status <= http.StatusGatewayTimeout {
		return &Error{
			Kind:    KindService,
			Message: fmt.Sprintf("service error: the Companies House API is unavailable (HTTP %d)", status),
			Status:  status,
			cause:   cause,
		}
	}
	return &Error{
		Kind:    KindAPI,
		Message: fmt.Sprintf("API error: unexpected response from the Companies House API (HTTP %d)", status),
		Status:  status,
		cause:   cause,
	}
}

// ClassifyDecode classifies a success response whose body could not be parsed.
func ClassifyDecode(status int, err error) *Error {
	return &Error{
		Kind:    KindAPI,
		Message: "API error: could not parse the Companies House API response",
		Status:  status,
		cause:   err,
	}
}

// Rejected reports a local admission rejection. The call never left the process.
func Rejected(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimit,
		Message:    fmt.Sprintf("rate limit exceeded: local request budget exhausted, retry in %s", retryAfter.Round(time.Millisecond)),
		RetryAfter: retryAfter,
		cause:      budget.ErrRejected,
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
