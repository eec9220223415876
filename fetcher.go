package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
)

// FetchFunc produces a value for a key, typically from a remote source.
type FetchFunc func(ctx context.Context, key string) (interface{}, error)

// TransformFunc converts a raw fetched value before it is cached.
type TransformFunc func(raw interface{}) interface{}

// FetcherConfig is optional configuration for NewFetcher.
type FetcherConfig struct {
	// Name is added to logs and stats.
	Name string

	// Store is a cache instance, in-memory created by default.
	Store *Store

	// StoreConfig is a configuration for in-memory cache instance if Store is not provided.
	StoreConfig Config

	// TTL is expiration delay for fetched values, store default is used when zero.
	TTL time.Duration

	// Disabled starts the fetcher disabled, fetch cycles are no-ops
	// until SetEnabled(ctx, true).
	Disabled bool

	// Transform converts the raw fetched value before caching, identity by default.
	Transform TransformFunc

	// RefetchOnStale serves a stale value immediately while refreshing
	// it with a background fetch (stale-while-revalidate).
	RefetchOnStale bool

	// FailedFetchTTL is ttl of failed fetch cache, default 20s, -1 disables errors cache.
	FailedFetchTTL time.Duration

	// Logger collects messages with context.
	Logger ctxd.Logger

	// Stats tracks stats.
	Stats stats.Tracker
}

// State is a snapshot of observable fetcher state.
type State struct {
	// Data is the last successfully fetched or cache-served value.
	Data interface{}

	// Loading is true while a fetch is in flight and no value was served.
	Loading bool

	// Err is the failure of the last fetch cycle, nil after a success.
	// A failed refresh keeps the previous Data visible next to Err.
	Err error

	// Stale is true when Data was served from an expired entry.
	Stale bool
}

// Fetcher wraps a single key and a producer with cache-aware fetching.
//
// A fetch cycle serves fresh cached data without invoking the producer,
// de-duplicates concurrent cycles and keeps the previous value visible
// when a refresh fails.
//
// Please use NewFetcher to create instance.
type Fetcher struct {
	// Errors caches failures of recent fetches.
	Errors *Store

	mu       sync.Mutex
	key      string
	enabled  bool
	closed   bool
	state    State
	inflight chan struct{} // Pending fetch cycle, waited on by joining cycles.

	store  *Store
	fetch  FetchFunc
	config FetcherConfig
	log    ctxd.Logger
	stat   stats.Tracker
}

// NewFetcher creates a Fetcher instance for key backed by fetch.
//
// A nil fetch is a programming error and panics immediately.
func NewFetcher(key string, fetch FetchFunc, config FetcherConfig) *Fetcher {
	if fetch == nil {
		panic("cache: nil FetchFunc")
	}

	if config.FailedFetchTTL == 0 {
		config.FailedFetchTTL = 20 * time.Second
	}

	f := &Fetcher{
		key:     key,
		enabled: !config.Disabled,
		fetch:   fetch,
		config:  config,
	}

	f.log = config.Logger
	if f.log == nil {
		f.log = ctxd.NoOpLogger{}
	}

	f.stat = config.Stats
	if f.stat == nil {
		f.stat = stats.NoOp{}
	}

	f.store = config.Store

	if f.store == nil {
		config.StoreConfig.Name = config.Name
		config.StoreConfig.Logger = config.Logger
		config.StoreConfig.Stats = config.Stats
		f.store = NewStore(config.StoreConfig)
	}

	if config.FailedFetchTTL > -1 {
		f.Errors = NewStore(Config{
			Name:       "err_" + config.Name,
			Logger:     config.Logger,
			Stats:      config.Stats,
			TimeToLive: config.FailedFetchTTL,

			// Short cleanup interval to avoid storing potentially heavy errors for long time.
			CleanupInterval: time.Minute,
		})
	}

	return f
}

// Fetch runs a fetch cycle, consulting the cache first.
//
// Fresh cached data is returned without invoking the producer. A
// context with WithSkipRead forces the producer path.
func (f *Fetcher) Fetch(ctx context.Context) (interface{}, error) {
	return f.cycle(ctx, SkipRead(ctx))
}

// Refetch forces a fetch cycle that bypasses the cache read.
func (f *Fetcher) Refetch(ctx context.Context) (interface{}, error) {
	return f.cycle(ctx, true)
}

// State returns a snapshot of observable fetcher state.
func (f *Fetcher) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.state
}

// SetKey changes the fetched key and re-runs the fetch cycle. Setting
// the currently configured key is a no-op.
func (f *Fetcher) SetKey(ctx context.Context, key string) (interface{}, error) {
	f.mu.Lock()

	if key == f.key {
		data := f.state.Data
		f.mu.Unlock()

		return data, nil
	}

	f.key = key
	f.mu.Unlock()

	return f.cycle(ctx, SkipRead(ctx))
}

// SetEnabled toggles the fetcher and re-runs the fetch cycle on the
// disabled to enabled transition only.
func (f *Fetcher) SetEnabled(ctx context.Context, enabled bool) (interface{}, error) {
	f.mu.Lock()
	was := f.enabled
	f.enabled = enabled
	data := f.state.Data
	f.mu.Unlock()

	if enabled && !was {
		return f.cycle(ctx, SkipRead(ctx))
	}

	return data, nil
}

// Close tears the fetcher down. A producer still in flight has its
// result discarded instead of applied to the dead state.
//
// Stores owned by the fetcher are closed, an injected Store is left to
// its owner.
func (f *Fetcher) Close() {
	f.mu.Lock()
	alreadyClosed := f.closed
	f.closed = true
	f.mu.Unlock()

	if alreadyClosed {
		return
	}

	if f.config.Store == nil {
		f.store.Close()
	}

	if f.Errors != nil {
		f.Errors.Close()
	}
}

func (f *Fetcher) cycle(ctx context.Context, skipCache bool) (interface{}, error) {
	f.mu.Lock()

	if f.closed || !f.enabled || f.key == "" {
		data := f.state.Data
		f.mu.Unlock()

		return data, nil
	}

	key := f.key
	f.mu.Unlock()

	if !skipCache {
		if f.config.RefetchOnStale {
			if val, err := f.store.Peek(ctx, key); errors.Is(err, ErrExpired) {
				f.serve(val, true)

				f.log.Debug(ctx, "serving stale value during background refresh",
					"name", f.config.Name,
					"key", key)
				f.stat.Add(ctx, MetricRefreshed, 1, "name", f.config.Name)

				// Revalidating in detached context, the caller is not blocked
				// and its cancellation must not abort the refresh.
				go func() {
					if _, err := f.cycle(detachedContext{ctx}, true); err != nil {
						f.log.Warn(ctx, "background refresh failed",
							"error", err,
							"name", f.config.Name,
							"key", key)
					}
				}()

				return val, nil
			}
		}

		if val, err := f.store.Get(ctx, key); err == nil {
			f.serve(val, false)

			return val, nil
		}
	}

	f.mu.Lock()

	// Joining a cycle already in flight instead of fetching twice.
	// Forced refreshes always proceed, last write wins.
	if f.inflight != nil && !skipCache {
		wait := f.inflight
		f.mu.Unlock()

		<-wait

		f.mu.Lock()
		data, err := f.state.Data, f.state.Err
		f.mu.Unlock()

		return data, err
	}

	done := make(chan struct{})
	f.inflight = done
	f.state.Loading = true
	f.state.Err = nil
	f.mu.Unlock()

	val, err := f.doFetch(ctx, key)

	f.mu.Lock()

	if f.inflight == done {
		f.inflight = nil
	}

	// A fetch completing after Close must not touch the dead state.
	if !f.closed {
		f.state.Loading = false

		if err != nil {
			f.state.Err = err
		} else {
			f.state.Data = val
			f.state.Stale = false
			f.state.Err = nil
		}
	}

	data := f.state.Data
	f.mu.Unlock()

	close(done)

	if err != nil {
		return data, err
	}

	return val, nil
}

func (f *Fetcher) doFetch(ctx context.Context, key string) (interface{}, error) {
	// Check if fetch for this key failed recently.
	if err := f.recentlyFailed(ctx, key); err != nil {
		return nil, err
	}

	f.log.Debug(ctx, "fetching value", "name", f.config.Name, "key", key)
	f.stat.Add(ctx, MetricFetch, 1, "name", f.config.Name)

	raw, err := f.fetch(ctx, key)
	if err != nil {
		f.log.Warn(ctx, "fetch failed",
			"error", err,
			"name", f.config.Name,
			"key", key)
		f.stat.Add(ctx, MetricFetchFailed, 1, "name", f.config.Name)

		if f.config.FailedFetchTTL > -1 {
			if writeErr := f.Errors.Set(ctx, key, err, DefaultTTL); writeErr != nil {
				f.log.Error(ctx, "failed to cache fetch failure",
					"error", writeErr,
					"fetchErr", err,
					"name", f.config.Name,
					"key", key)
			}
		}

		return nil, err
	}

	val := raw
	if f.config.Transform != nil {
		val = f.config.Transform(raw)
	}

	if writeErr := f.store.Set(ctx, key, val, f.config.TTL); writeErr != nil {
		return nil, ctxd.WrapError(ctx, writeErr, "failed to store fetched value")
	}

	return val, nil
}

// serve applies a cache-served value to state unless the fetcher was
// torn down.
func (f *Fetcher) serve(val interface{}, stale bool) {
	f.mu.Lock()

	if !f.closed {
		f.state.Data = val
		f.state.Stale = stale
		f.state.Loading = false
		f.state.Err = nil
	}

	f.mu.Unlock()
}

func (f *Fetcher) recentlyFailed(ctx context.Context, key string) error {
	if f.config.FailedFetchTTL > -1 {
		errVal, err := f.Errors.Get(ctx, key)
		if err == nil {
			return errVal.(error)
		}
	}

	return nil
}
