package models

// CacheStats reports response cache metrics.
type CacheStats struct {
	Entries    int64 `json:"entries"`
	MaxEntries int64 `json:"max_entries"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
}
