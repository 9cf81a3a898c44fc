package models

import "time"

// Call outcomes besides error kinds.
const (
	OutcomeHit = "hit"
	OutcomeOK  = "ok"
)

// CallRecord describes one gateway operation invocation.
type CallRecord struct {
	ID         int64     `json:"id"`
	RequestID  string    `json:"request_id"`
	Operation  string    `json:"operation"`
	Outcome    string    `json:"outcome"` // OutcomeHit, OutcomeOK or an error kind
	StatusCode int       `json:"status_code,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// OperationSummary aggregates call records for one operation.
type OperationSummary struct {
	Operation    string  `json:"operation"`
	Calls        int     `json:"calls"`
	CacheHits    int     `json:"cache_hits"`
	Upstream     int     `json:"upstream"` // calls answered successfully by the registry
	Errors       int     `json:"errors"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}
