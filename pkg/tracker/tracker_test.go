package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmcp/companies-house-mcp/pkg/models"
)

func newTestTracker(t *testing.T, opts ...Option) *SQLiteTracker {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	tr, err := New(dbPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func call(op, outcome string, status int, latency int64, at time.Time) models.CallRecord {
	return models.CallRecord{
		RequestID:  "req-" + op + "-" + outcome,
		Operation:  op,
		Outcome:    outcome,
		StatusCode: status,
		LatencyMs:  latency,
		CreatedAt:  at,
	}
}

func TestRecordAndRecent(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, tr.Record(ctx, call("company_profile", models.OutcomeOK, 200, 120, now.Add(-time.Minute))))
	require.NoError(t, tr.Record(ctx, call("company_profile", models.OutcomeHit, 0, 0, now)))

	records, err := tr.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.OutcomeHit, records[0].Outcome, "newest first")
	assert.Equal(t, models.OutcomeOK, records[1].Outcome)
	assert.Equal(t, 200, records[1].StatusCode)
	assert.Equal(t, int64(120), records[1].LatencyMs)
	assert.True(t, records[1].CreatedAt.Equal(now.Add(-time.Minute)))
	assert.NotZero(t, records[0].ID)

	limited, err := tr.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSummary(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, rec := range []models.CallRecord{
		call("company_profile", models.OutcomeOK, 200, 100, now),
		call("company_profile", models.OutcomeHit, 0, 0, now),
		call("company_profile", "NotFoundError", 404, 50, now),
		call("search_companies", models.OutcomeOK, 200, 300, now),
		call("search_companies", "RateLimitError", 0, 0, now),
	} {
		require.NoError(t, tr.Record(ctx, rec))
	}

	summaries, err := tr.Summary(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	profile := summaries[0]
	assert.Equal(t, "company_profile", profile.Operation)
	assert.Equal(t, 3, profile.Calls)
	assert.Equal(t, 1, profile.CacheHits)
	assert.Equal(t, 1, profile.Upstream)
	assert.Equal(t, 1, profile.Errors)
	assert.InDelta(t, 50.0, profile.AvgLatencyMs, 0.001)

	search := summaries[1]
	assert.Equal(t, "search_companies", search.Operation)
	assert.Equal(t, 2, search.Calls)
	assert.Equal(t, 1, search.Errors)
}

func TestSummarySince(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, tr.Record(ctx, call("charges", models.OutcomeOK, 200, 10, now.Add(-48*time.Hour))))
	require.NoError(t, tr.Record(ctx, call("charges", models.OutcomeOK, 200, 10, now)))

	summaries, err := tr.Summary(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].Calls)

	empty, err := tr.Summary(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPrune(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, tr.Record(ctx, call("officers", models.OutcomeOK, 200, 10, now.AddDate(0, 0, -40))))
	require.NoError(t, tr.Record(ctx, call("officers", models.OutcomeOK, 200, 10, now)))

	n, err := tr.Prune(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	records, err := tr.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRetentionPrunesOnOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	tr, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, tr.Record(ctx, call("psc", models.OutcomeOK, 200, 10, time.Now().AddDate(0, 0, -10))))
	require.NoError(t, tr.Close())

	tr, err = New(dbPath, WithRetention(24*time.Hour))
	require.NoError(t, err)
	defer tr.Close()

	records, err := tr.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestZeroCreatedAtDefaultsToNow(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Record(ctx, models.CallRecord{RequestID: "r", Operation: "charges", Outcome: models.OutcomeOK}))
	records, err := tr.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.WithinDuration(t, time.Now(), records[0].CreatedAt, time.Minute)
}
