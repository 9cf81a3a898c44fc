package gateway

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmcp/companies-house-mcp/pkg/budget"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		kind   Kind
	}{
		{401, KindAuthentication},
		{404, KindNotFound},
		{429, KindRateLimit},
		{500, KindService},
		{502, KindService},
		{503, KindService},
		{504, KindService},
		{400, KindAPI},
		{403, KindAPI},
		{418, KindAPI},
		{501, KindService},
		{505, KindAPI},
		{302, KindAPI},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			gerr := ClassifyStatus(tt.status, http.Header{})
			require.NotNil(t, gerr)
			assert.Equal(t, tt.kind, gerr.Kind)
			assert.Equal(t, tt.status, gerr.Status)
			assert.NotEmpty(t, gerr.Message)
		})
	}
}

func TestClassifyStatusSuccess(t *testing.T) {
	for _, status := range []int{200, 201, 204, 299} {
		assert.Nil(t, ClassifyStatus(status, nil))
	}
}

func TestClassifyStatusRetryAfter(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "7")
	gerr := ClassifyStatus(http.StatusTooManyRequests, h)
	assert.Equal(t, 7*time.Second, gerr.RetryAfter)
	assert.Equal(t, "retry after 7s", gerr.Hint())

	assert.Zero(t, ClassifyStatus(http.StatusTooManyRequests, http.Header{}).RetryAfter)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 30*time.Second, parseRetryAfter("30", now))
	assert.Equal(t, time.Minute, parseRetryAfter(now.Add(time.Minute).Format(http.TimeFormat), now))
	assert.Zero(t, parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
	assert.Zero(t, parseRetryAfter("-4", now))
	assert.Zero(t, parseRetryAfter("soon", now))
	assert.Zero(t, parseRetryAfter("", now))
}

func TestClassifyTransport(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	gerr := ClassifyTransport(cause)
	assert.Equal(t, KindNetwork, gerr.Kind)
	assert.Zero(t, gerr.Status)
	assert.ErrorIs(t, gerr, cause)
	assert.NotContains(t, gerr.Message, "dial tcp")

	timeout := ClassifyTransport(context.DeadlineExceeded)
	assert.Equal(t, KindNetwork, timeout.Kind)
	assert.Contains(t, timeout.Message, "did not respond in time")
}

func TestClassifyDecode(t *testing.T) {
	gerr := ClassifyDecode(200, errors.New("unexpected end of JSON input"))
	assert.Equal(t, KindAPI, gerr.Kind)
	assert.Equal(t, 200, gerr.Status)
	assert.Contains(t, gerr.Message, "could not parse")
}

func TestRejected(t *testing.T) {
	gerr := Rejected(500 * time.Millisecond)
	assert.Equal(t, KindRateLimit, gerr.Kind)
	assert.Equal(t, 500*time.Millisecond, gerr.RetryAfter)
	assert.Zero(t, gerr.Status)
	assert.ErrorIs(t, gerr, budget.ErrRejected)
	assert.Contains(t, gerr.Message, "500ms")
}

func TestKindOf(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), ClassifyStatus(404, nil))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}
