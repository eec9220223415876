package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
)

// DefaultTTL delegates entry expiration delay to context override and
// then to store configuration.
const DefaultTTL = time.Duration(0)

// Config controls store instance.
type Config struct {
	// Logger is an instance of contextualized logger, can be nil.
	Logger ctxd.Logger

	// Stats is metrics collector, can be nil.
	Stats stats.Tracker

	// Name is cache instance name, used in stats and logging.
	Name string

	// TimeToLive is delay before entry expiration, default 5m.
	TimeToLive time.Duration

	// MaxEntries is the number of entries the store may hold, default 100.
	// Least recently used entries are evicted to keep the limit.
	MaxEntries int

	// CleanupInterval is delay between two background sweeps of expired
	// entries, default 5m. Use -1 to disable background sweeping, lazy
	// expiration on read still applies.
	CleanupInterval time.Duration
}

// entry is a cache entry. The key is kept here because eviction starts
// from ledger elements.
type entry struct {
	key       string
	val       interface{}
	createdAt time.Time
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return e.expiresAt.Before(now)
}

// Store is an in-memory cache with TTL expiration and LRU eviction.
//
// A map index gives O(1) key lookup and a doubly-linked ledger maintains
// recency order, front is most recently used. Both structures mutate
// under one mutex and stay in lockstep: a key present in the index is
// always present in the ledger exactly once.
//
// Please use NewStore to create instance.
type Store struct {
	mu     sync.Mutex
	ledger *list.List
	index  map[string]*list.Element // nil index marks a closed store
	closed chan struct{}

	config Config
	log    ctxd.Logger
	stat   stats.Tracker
}

// NewStore creates an instance of store with optional configuration.
func NewStore(cfg ...Config) *Store {
	config := Config{}

	if len(cfg) >= 1 {
		config = cfg[0]
	}

	if config.TimeToLive == 0 {
		config.TimeToLive = 5 * time.Minute
	}

	if config.MaxEntries == 0 {
		config.MaxEntries = 100
	}

	if config.CleanupInterval == 0 {
		config.CleanupInterval = 5 * time.Minute
	}

	s := &Store{
		ledger: list.New(),
		index:  make(map[string]*list.Element),
		config: config,
		log:    config.Logger,
		stat:   config.Stats,
		closed: make(chan struct{}, 1),
	}

	if config.CleanupInterval > 0 {
		go s.janitor()
	}

	return s
}

// Get returns a fresh value and promotes its entry to most recently
// used. An expired entry is removed on read and reported as missing, a
// stale value is never returned.
func (s *Store) Get(ctx context.Context, key string) (interface{}, error) {
	if SkipRead(ctx) {
		return nil, ErrNotFound
	}

	s.mu.Lock()

	if s.index == nil {
		s.mu.Unlock()

		return nil, ErrClosed
	}

	el, ok := s.index[key]
	if !ok {
		s.mu.Unlock()

		s.debug(ctx, "cache miss", "key", key)
		s.count(ctx, MetricMiss, 1)

		return nil, ErrNotFound
	}

	e := el.Value.(*entry)
	if e.expired(time.Now()) {
		s.removeElement(el)
		s.mu.Unlock()

		s.debug(ctx, "cache entry expired", "key", key)
		s.count(ctx, MetricExpired, 1)

		return nil, ErrNotFound
	}

	s.ledger.MoveToFront(el)
	val := e.val
	s.mu.Unlock()

	s.debug(ctx, "cache hit", "key", key)
	s.count(ctx, MetricHit, 1)

	return val, nil
}

// Peek reads an entry without promoting it and without lazy removal.
//
// A stale entry is returned together with an error that matches
// ErrExpired and still carries the expired value, see ExpiredError.
func (s *Store) Peek(ctx context.Context, key string) (interface{}, error) {
	s.mu.Lock()

	if s.index == nil {
		s.mu.Unlock()

		return nil, ErrClosed
	}

	el, ok := s.index[key]
	if !ok {
		s.mu.Unlock()

		return nil, ErrNotFound
	}

	e := el.Value.(*entry)
	val, expiresAt := e.val, e.expiresAt
	stale := e.expired(time.Now())
	s.mu.Unlock()

	if stale {
		return val, errExpired{val: val, expiredAt: expiresAt}
	}

	return val, nil
}

// Has reports whether a fresh entry exists for key. It does not touch
// access order and never removes anything.
func (s *Store) Has(key string) bool {
	_, err := s.Peek(context.Background(), key)

	return err == nil
}

// IsStale reports whether an entry exists for key but is past its
// expiration. Absent and fresh keys report false.
func (s *Store) IsStale(key string) bool {
	_, err := s.Peek(context.Background(), key)

	return errors.Is(err, ErrExpired)
}

// Set stores a value under key and promotes it to most recently used.
//
// Zero ttl delegates to a context override (WithTTL) and then to the
// configured default. Inserting a new key at capacity first evicts least
// recently used entries; overwriting an existing key never evicts.
func (s *Store) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl == DefaultTTL {
		ttl = TTL(ctx)
	}

	if ttl == DefaultTTL {
		ttl = s.config.TimeToLive
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index == nil {
		s.debug(ctx, "writing to a closed cache", "key", key)

		return ErrClosed
	}

	now := time.Now()

	if el, ok := s.index[key]; ok {
		e := el.Value.(*entry)
		e.val = value
		e.createdAt = now
		e.expiresAt = now.Add(ttl)
		s.ledger.MoveToFront(el)
	} else {
		for len(s.index) >= s.config.MaxEntries && s.ledger.Len() > 0 {
			s.evictLRU(ctx)
		}

		s.index[key] = s.ledger.PushFront(&entry{
			key:       key,
			val:       value,
			createdAt: now,
			expiresAt: now.Add(ttl),
		})
	}

	s.debug(ctx, "wrote to cache", "key", key, "ttl", ttl)
	s.count(ctx, MetricWrite, 1)

	return nil
}

// Invalidate removes entries matching pattern and returns removed count.
//
// A pattern without the "*" wildcard is an exact key. Each "*" matches
// zero or more characters and the pattern covers the whole key, so
// "meetings:*" matches "meetings:123" but not "other:meetings:123".
func (s *Store) Invalidate(ctx context.Context, pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index == nil {
		return 0
	}

	removed := 0

	if !strings.Contains(pattern, "*") {
		if el, ok := s.index[pattern]; ok {
			s.removeElement(el)

			removed = 1
		}
	} else {
		for key, el := range s.index {
			if matchPattern(pattern, key) {
				s.removeElement(el)

				removed++
			}
		}
	}

	if removed > 0 {
		s.debug(ctx, "invalidated cache entries", "pattern", pattern, "count", removed)
		s.count(ctx, MetricInvalidate, float64(removed))
	}

	return removed
}

// Clear removes all entries and returns the number removed.
func (s *Store) Clear(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index == nil {
		return 0
	}

	removed := len(s.index)
	s.ledger.Init()
	s.index = make(map[string]*list.Element)

	s.debug(ctx, "cleared cache", "count", removed)
	s.count(ctx, MetricInvalidate, float64(removed))

	return removed
}

// ExpireAll marks all entries as expired without removing them, they
// can still serve stale reads through Peek until swept.
func (s *Store) ExpireAll() {
	now := time.Now()

	s.mu.Lock()
	for el := s.ledger.Front(); el != nil; el = el.Next() {
		el.Value.(*entry).expiresAt = now
	}
	s.mu.Unlock()
}

// CleanupExpired removes every stale entry and returns the count.
//
// The janitor invokes it on CleanupInterval; without the sweep, keys
// written once and never read again would survive until capacity
// eviction.
func (s *Store) CleanupExpired(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index == nil {
		return 0
	}

	now := time.Now()
	removed := 0

	for el := s.ledger.Front(); el != nil; {
		next := el.Next()

		if el.Value.(*entry).expired(now) {
			s.removeElement(el)

			removed++
		}

		el = next
	}

	if removed > 0 {
		s.debug(ctx, "removed expired cache entries", "count", removed)
		s.count(ctx, MetricExpired, float64(removed))
	}

	return removed
}

// Stats computes a diagnostic snapshot of store contents.
//
// EstimatedSizeBytes sums JSON-serialized sizes of stored values and is
// approximate, values that fail to marshal contribute zero.
func (s *Store) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := StoreStats{MaxEntries: s.config.MaxEntries}

	if s.index == nil {
		return st
	}

	now := time.Now()

	for el := s.ledger.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)

		st.TotalEntries++

		if e.expired(now) {
			st.ExpiredEntries++
		}

		if b, err := json.Marshal(e.val); err == nil {
			st.EstimatedSizeBytes += len(b)
		}
	}

	st.ActiveEntries = st.TotalEntries - st.ExpiredEntries

	return st
}

// Len returns number of entries in cache, stale included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.index)
}

// Walk calls walkFn for every entry, most recently used first, and
// fails on first error returned by that function.
//
// Count of processed entries is returned.
func (s *Store) Walk(walkFn func(key string, value interface{}) error) (int, error) {
	type kv struct {
		key string
		val interface{}
	}

	s.mu.Lock()
	snapshot := make([]kv, 0, len(s.index))

	for el := s.ledger.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		snapshot = append(snapshot, kv{key: e.key, val: e.val})
	}
	s.mu.Unlock()

	n := 0

	for _, e := range snapshot {
		if err := walkFn(e.key, e.val); err != nil {
			return n, err
		}

		n++
	}

	return n, nil
}

// Close stops the background janitor and deactivates the store.
// Operations on a closed store fail with ErrClosed.
func (s *Store) Close() {
	s.mu.Lock()
	alreadyClosed := s.index == nil
	s.index = nil
	s.ledger.Init()
	s.mu.Unlock()

	if !alreadyClosed {
		s.closed <- struct{}{}
	}
}

func (s *Store) janitor() {
	for {
		select {
		case <-time.After(s.config.CleanupInterval):
			s.CleanupExpired(context.Background())
		case <-s.closed:
			return
		}
	}
}

// evictLRU removes the least recently used entry. Caller must hold mu.
func (s *Store) evictLRU(ctx context.Context) {
	el := s.ledger.Back()
	if el == nil {
		return
	}

	key := el.Value.(*entry).key
	s.removeElement(el)

	s.debug(ctx, "evicted least recently used entry", "key", key)
	s.count(ctx, MetricEvict, 1)
}

// removeElement drops an element from both ledger and index. Caller
// must hold mu.
func (s *Store) removeElement(el *list.Element) {
	s.ledger.Remove(el)
	delete(s.index, el.Value.(*entry).key)
}

func (s *Store) debug(ctx context.Context, msg string, keysAndValues ...interface{}) {
	if s.log != nil {
		s.log.Debug(ctx, msg, append([]interface{}{"name", s.config.Name}, keysAndValues...)...)
	}
}

func (s *Store) count(ctx context.Context, metric string, value float64) {
	if s.stat != nil {
		s.stat.Add(ctx, metric, value, "name", s.config.Name)
	}
}

// matchPattern reports whether key matches pattern, where each "*"
// matches zero or more characters and the match is anchored at both
// ends. "*" is the only metacharacter.
func matchPattern(pattern, key string) bool {
	parts := strings.Split(pattern, "*")

	if len(parts) == 1 {
		return pattern == key
	}

	if !strings.HasPrefix(key, parts[0]) {
		return false
	}

	key = key[len(parts[0]):]
	last := len(parts) - 1

	for _, part := range parts[1:last] {
		idx := strings.Index(key, part)
		if idx < 0 {
			return false
		}

		key = key[idx+len(part):]
	}

	return strings.HasSuffix(key, parts[last])
}
