// Package budget implements the admission controller that every outbound
// registry call passes through.
//
// A RateBudget is a token bucket: capacity tokens regenerate continuously over
// window, and each admitted call spends one. Admission never blocks; a caller
// that is rejected gets a retry hint and decides for itself what to do.
package budget

import (
	"errors"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/chmcp/companies-house-mcp/pkg/clock"
)

// ErrRejected is returned when no whole token is available.
var ErrRejected = errors.New("rate budget exhausted")

// Defaults match the upstream provider's published global quota.
const (
	DefaultCapacity = 500
	DefaultWindow   = 5 * time.Minute
)

// MinRetryAfter floors retry hints so callers never get a zero wait.
const MinRetryAfter = 100 * time.Millisecond

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration // zero when Allowed
}

// Err returns ErrRejected for a rejected decision and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return ErrRejected
}

// Snapshot reports the budget state at a point in time.
type Snapshot struct {
	Capacity  int           `json:"capacity"`
	Window    time.Duration `json:"window"`
	Available float64       `json:"available"`
}

// RateBudget is a token bucket shared by all operations of one gateway.
// It is safe for concurrent use.
type RateBudget struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	capacity int
	window   time.Duration
	clock    clock.Clock
}

// New creates a full RateBudget. Non-positive capacity or window fall back to
// the defaults; a nil clock uses wall time.
func New(capacity int, window time.Duration, clk clock.Clock) *RateBudget {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if clk == nil {
		clk = clock.Real{}
	}
	perSecond := rate.Limit(float64(capacity) / window.Seconds())
	return &RateBudget{
		limiter:  rate.NewLimiter(perSecond, capacity),
		capacity: capacity,
		window:   window,
		clock:    clk,
	}
}

// TryAdmit refills the bucket for the elapsed time and spends one token if a
// whole token is available. A rejected check leaves the bucket unchanged.
func (b *RateBudget) TryAdmit() Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if b.limiter.AllowN(now, 1) {
		return Decision{Allowed: true}
	}
	return Decision{RetryAfter: b.retryAfter(b.limiter.TokensAt(now))}
}

// retryAfter is the time until one whole token has accrued, rounded up to the
// millisecond and floored at MinRetryAfter.
func (b *RateBudget) retryAfter(available float64) time.Duration {
	missing := 1 - available
	if missing < 0 {
		missing = 0
	}
	ms := math.Ceil(missing * float64(b.window.Milliseconds()) / float64(b.capacity))
	wait := time.Duration(ms) * time.Millisecond
	if wait < MinRetryAfter {
		wait = MinRetryAfter
	}
	return wait
}

// Available returns the current token count without spending anything.
func (b *RateBudget) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clampedTokens(b.clock.Now())
}

// Snapshot returns capacity, window and the current token count.
func (b *RateBudget) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Capacity:  b.capacity,
		Window:    b.window,
		Available: b.clampedTokens(b.clock.Now()),
	}
}

func (b *RateBudget) clampedTokens(now time.Time) float64 {
	tokens := b.limiter.TokensAt(now)
	switch {
	case tokens < 0:
		return 0
	case tokens > float64(b.capacity):
		return float64(b.capacity)
	}
	return tokens
}
