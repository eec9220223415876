// Package cache provides an in-memory key-value store with TTL expiration,
// LRU eviction and a cache-aware fetch coordinator on top of it.
//
// Features:
//
//   - Count-bounded capacity with least-recently-used eviction.
//   - Lazy expiration on read plus background janitor sweep.
//   - Point and glob pattern invalidation.
//   - On-demand stats snapshot with serialized size estimate.
//   - Fetch coordinator with request de-duplication and loading/error state.
//   - Stale value served during background refresh (stale-while-revalidate).
//   - Fetch failures are cached with low TTL to avoid flooding unhealthy upstream.
//   - Allows logging, stats collection.
//   - Propagates context to allow better control of backend and application components.
//   - Allows mass expiration and removal (drop cache).
package cache
