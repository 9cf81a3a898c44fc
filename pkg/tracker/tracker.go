// Package tracker keeps a SQLite ledger of gateway calls.
package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/chmcp/companies-house-mcp/pkg/models"
)

// Tracker records and queries gateway calls.
type Tracker interface {
	// Record stores one call record.
	Record(ctx context.Context, rec models.CallRecord) error
	// Recent returns the newest records, newest first.
	Recent(ctx context.Context, limit int) ([]models.CallRecord, error)
	// Summary aggregates records created at or after since, per operation.
	Summary(ctx context.Context, since time.Time) ([]models.OperationSummary, error)
	// Prune deletes records created before cutoff.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db        *sql.DB
	retention time.Duration
	log       zerolog.Logger
	done      chan struct{}
	wg        sync.WaitGroup
}

const createTable = `
CREATE TABLE IF NOT EXISTS gateway_calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	operation TEXT NOT NULL,
	outcome TEXT NOT NULL,
	status_code INTEGER NOT NULL DEFAULT 0,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_calls_time ON gateway_calls(created_at);
CREATE INDEX IF NOT EXISTS idx_calls_operation ON gateway_calls(operation, created_at);
`

// Option configures a SQLiteTracker.
type Option func(*SQLiteTracker)

// WithRetention prunes records older than d once at open and then hourly.
// Zero keeps records forever.
func WithRetention(d time.Duration) Option {
	return func(t *SQLiteTracker) { t.retention = d }
}

// WithLogger sets the logger used by background pruning.
func WithLogger(log zerolog.Logger) Option {
	return func(t *SQLiteTracker) { t.log = log }
}

// New opens the ledger at dbPath and runs auto-migration.
func New(dbPath string, opts ...Option) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	t := &SQLiteTracker{
		db:   db,
		log:  zerolog.Nop(),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.retention > 0 {
		t.prune()
		t.wg.Add(1)
		go t.retentionLoop()
	}
	return t, nil
}

// Record stores a call record.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.CallRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO gateway_calls (request_id, operation, outcome, status_code, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Operation, rec.Outcome, rec.StatusCode, rec.LatencyMs, created.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record call: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first. A non-positive limit
// means 50.
func (t *SQLiteTracker) Recent(ctx context.Context, limit int) ([]models.CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, request_id, operation, outcome, status_code, latency_ms, created_at
		 FROM gateway_calls ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent calls: %w", err)
	}
	defer rows.Close()

	var records []models.CallRecord
	for rows.Next() {
		var r models.CallRecord
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Operation, &r.Outcome, &r.StatusCode, &r.LatencyMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Summary returns per-operation aggregates for records created at or after
// since. A zero since covers the whole ledger.
func (t *SQLiteTracker) Summary(ctx context.Context, since time.Time) ([]models.OperationSummary, error) {
	query := `SELECT operation,
			COUNT(*),
			SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN outcome NOT IN (?, ?) THEN 1 ELSE 0 END),
			COALESCE(AVG(latency_ms), 0)
		 FROM gateway_calls`
	args := []any{models.OutcomeHit, models.OutcomeOK, models.OutcomeHit, models.OutcomeOK}
	if !since.IsZero() {
		query += ` WHERE created_at >= ?`
		args = append(args, since.UTC())
	}
	query += ` GROUP BY operation ORDER BY operation`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.OperationSummary
	for rows.Next() {
		var s models.OperationSummary
		if err := rows.Scan(&s.Operation, &s.Calls, &s.CacheHits, &s.Upstream, &s.Errors, &s.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Prune deletes records created before cutoff and returns how many were removed.
func (t *SQLiteTracker) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := t.db.ExecContext(ctx, `DELETE FROM gateway_calls WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune calls: %w", err)
	}
	return res.RowsAffected()
}

// Close stops background pruning and closes the database.
func (t *SQLiteTracker) Close() error {
	close(t.done)
	t.wg.Wait()
	return t.db.Close()
}

func (t *SQLiteTracker) prune() {
	n, err := t.Prune(context.Background(), time.Now().Add(-t.retention))
	if err != nil {
		t.log.Error().Err(err).Msg("prune call ledger")
		return
	}
	if n > 0 {
		t.log.Debug().Int64("deleted", n).Msg("pruned call ledger")
	}
}

func (t *SQLiteTracker) retentionLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.prune()
		}
	}
}
