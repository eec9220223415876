package cache

// Metric names for stats.Tracker.
const (
	// MetricHit is a counter of fresh cache reads.
	MetricHit = "cache_hit"

	// MetricMiss is a counter of absent cache reads.
	MetricMiss = "cache_miss"

	// MetricExpired is a counter of entries removed as expired.
	MetricExpired = "cache_expired"

	// MetricWrite is a counter of cache writes.
	MetricWrite = "cache_write"

	// MetricEvict is a counter of entries removed by LRU eviction.
	MetricEvict = "cache_evict"

	// MetricInvalidate is a counter of entries removed by invalidation.
	MetricInvalidate = "cache_invalidate"

	// MetricFetch is a counter of producer invocations.
	MetricFetch = "cache_fetch"

	// MetricFetchFailed is a counter of failed producer invocations.
	MetricFetchFailed = "cache_fetch_failed"

	// MetricRefreshed is a counter of stale values served during background refresh.
	MetricRefreshed = "cache_refreshed"
)

// StoreStats is a diagnostic snapshot of store contents.
//
// It is computed on demand by Store.Stats and plays no role in eviction
// decisions.
type StoreStats struct {
	// TotalEntries is the number of entries held, stale included.
	TotalEntries int `json:"totalEntries"`

	// ExpiredEntries is the number of entries past expiration, not yet removed.
	ExpiredEntries int `json:"expiredEntries"`

	// ActiveEntries is TotalEntries minus ExpiredEntries.
	ActiveEntries int `json:"activeEntries"`

	// EstimatedSizeBytes is an approximate serialized size of stored values.
	EstimatedSizeBytes int `json:"estimatedSizeBytes"`

	// MaxEntries is the configured capacity.
	MaxEntries int `json:"maxEntries"`
}
