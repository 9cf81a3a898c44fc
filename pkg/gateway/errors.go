package gateway

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the closed set of failure categories a gateway call can report.
type Kind string

const (
	KindNetwork        Kind = "NetworkError"
	KindAuthentication Kind = "AuthenticationError"
	KindNotFound       Kind = "NotFoundError"
	KindRateLimit      Kind = "RateLimitError"
	KindService        Kind = "ServiceError"
	KindAPI            Kind = "ApiError"
)

// Error is a classified gateway failure. Message is always safe to show to an
// end user; the underlying cause is only reachable through Unwrap.
type Error struct {
	Kind       Kind
	Message    string
	Status     int           // upstream HTTP status, 0 when no response was obtained
	RetryAfter time.Duration // set for rate-limit errors when a hint is known
	cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Hint returns a display-safe retry hint, or "" when there is none.
func (e *Error) Hint() string {
	if e == nil || e.RetryAfter <= 0 {
		return ""
	}
	return fmt.Sprintf("retry after %s", e.RetryAfter.Round(time.Millisecond))
}

// KindOf returns the Kind of a gateway error, or "" for any other error.
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) && gerr != nil {
		return gerr.Kind
	}
	return ""
}
