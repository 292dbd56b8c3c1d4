package cache

import (
	"container/list"
	"context"
	"errors"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	defaultMaxEntries      = 10000
	defaultCleanupInterval = time.Minute
)

// memoryEntry tracks a cached value with the bookkeeping the engine relies
// on for sliding TTLs and tag invalidation.
type memoryEntry struct {
	key         string
	value       []byte
	createdAt   time.Time
	accessedAt  time.Time
	expiresAt   time.Time
	ttl         time.Duration
	sliding     bool
	tags        []string
	accessCount int64
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is the reference in-memory Cache implementation. Entries are
// evicted least-recently-used once maxEntries is exceeded, and a background
// janitor removes expired entries. It also implements Locker, and guards
// GetOrSet with singleflight so concurrent misses for one key compute once.
type Memory struct {
	maxEntries      int
	defaultTTL      time.Duration
	cleanupInterval time.Duration

	mu       sync.Mutex
	items    map[string]*list.Element
	eviction *list.List
	tagIndex map[string]map[string]struct{}
	locks    map[string]time.Time
	hits     int64
	misses   int64
	closed   bool

	sf     singleflight.Group
	stopCh chan struct{}
}

var (
	_ Cache  = (*Memory)(nil)
	_ Locker = (*Memory)(nil)
)

// MemoryOption configures the in-memory cache.
type MemoryOption func(*Memory)

// WithMaxEntries bounds the cache size (default 10000).
func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.maxEntries = n
		}
	}
}

// WithDefaultTTL sets the TTL applied when Set is called without one.
func WithDefaultTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.defaultTTL = ttl }
}

// WithCleanupInterval sets the janitor cadence (default 1m).
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(m *Memory) {
		if d > 0 {
			m.cleanupInterval = d
		}
	}
}

// NewMemory creates a started in-memory cache. Call Close to stop the
// janitor goroutine.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		maxEntries:      defaultMaxEntries,
		cleanupInterval: defaultCleanupInterval,
		items:           make(map[string]*list.Element),
		eviction:        list.New(),
		tagIndex:        make(map[string]map[string]struct{}),
		locks:           make(map[string]time.Time),
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	go m.janitor()

	return m
}

// Get retrieves a value and refreshes its expiry when the entry was stored
// with a sliding TTL.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	elem, ok := m.items[key]
	if !ok {
		m.misses++
		return nil, ErrCacheMiss
	}

	entry := elem.Value.(*memoryEntry)
	now := time.Now()
	if entry.expired(now) {
		m.removeElement(elem)
		m.misses++
		return nil, ErrCacheMiss
	}

	entry.accessedAt = now
	entry.accessCount++
	if entry.sliding && entry.ttl > 0 {
		entry.expiresAt = now.Add(entry.ttl)
	}
	m.eviction.MoveToFront(elem)
	m.hits++

	return entry.value, nil
}

// Set stores a value, evicting the least recently used entries when the
// cache is full.
func (m *Memory) Set(_ context.Context, key string, value []byte, opts ...SetOption) error {
	o := applyOptions(opts)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.set(key, value, o)
	return nil
}

// set must be called with the lock held.
func (m *Memory) set(key string, value []byte, o options) {
	ttl := o.ttl
	if ttl == 0 {
		ttl = m.defaultTTL
	}

	now := time.Now()
	entry := &memoryEntry{
		key:        key,
		value:      value,
		createdAt:  now,
		accessedAt: now,
		ttl:        ttl,
		sliding:    o.sliding,
		tags:       o.tags,
	}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}

	if elem, ok := m.items[key]; ok {
		m.untag(elem.Value.(*memoryEntry))
		elem.Value = entry
		m.eviction.MoveToFront(elem)
	} else {
		m.items[key] = m.eviction.PushFront(entry)
		for m.eviction.Len() > m.maxEntries {
			if oldest := m.eviction.Back(); oldest != nil {
				m.removeElement(oldest)
			}
		}
	}

	for _, tag := range o.tags {
		keys, ok := m.tagIndex[tag]
		if !ok {
			keys = make(map[string]struct{})
			m.tagIndex[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

// Delete removes a key; absent keys are a no-op.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	if elem, ok := m.items[key]; ok {
		m.removeElement(elem)
	}
	return nil
}

// Exists reports whether a key is present and unexpired.
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrClosed
	}

	elem, ok := m.items[key]
	if !ok {
		return false, nil
	}
	if elem.Value.(*memoryEntry).expired(time.Now()) {
		m.removeElement(elem)
		return false, nil
	}
	return true, nil
}

// DeletePattern removes every key matching the glob pattern.
func (m *Memory) DeletePattern(_ context.Context, pattern string) (int, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return 0, errors.Join(ErrInvalidPattern, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	removed := 0
	for key, elem := range m.items {
		if ok, _ := path.Match(pattern, key); ok {
			m.removeElement(elem)
			removed++
		}
	}
	return removed, nil
}

// DeleteByTags removes every key associated with any of the tags.
func (m *Memory) DeleteByTags(_ context.Context, tags ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	removed := 0
	for _, tag := range tags {
		for key := range m.tagIndex[tag] {
			if elem, ok := m.items[key]; ok {
				m.removeElement(elem)
				removed++
			}
		}
		delete(m.tagIndex, tag)
	}
	return removed, nil
}

// GetMany retrieves multiple keys; missing keys are absent from the result.
func (m *Memory) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		value, err := m.Get(ctx, key)
		if errors.Is(err, ErrCacheMiss) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result[key] = value
	}
	return result, nil
}

// SetMany stores multiple values with shared options.
func (m *Memory) SetMany(_ context.Context, values map[string][]byte, opts ...SetOption) error {
	o := applyOptions(opts)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	for key, value := range values {
		m.set(key, value, o)
	}
	return nil
}

// Clear removes all entries. Counters survive a Clear.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.items = make(map[string]*list.Element)
	m.eviction.Init()
	m.tagIndex = make(map[string]map[string]struct{})
	return nil
}

// GetOrSet returns the cached value or computes, stores and returns it.
// Concurrent callers for the same key share a single computation.
func (m *Memory) GetOrSet(ctx context.Context, key string, factory Factory, opts ...SetOption) ([]byte, error) {
	value, err, _ := m.sf.Do(key, func() (any, error) {
		if v, err := m.Get(ctx, key); err == nil {
			return v, nil
		} else if !errors.Is(err, ErrCacheMiss) {
			return nil, err
		}

		v, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		if err := m.Set(ctx, key, v, opts...); err != nil {
			return nil, err
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]byte), nil
}

// Lock implements Locker with in-process advisory locks.
func (m *Memory) Lock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return func() {}, false, ErrClosed
	}

	now := time.Now()
	if deadline, held := m.locks[key]; held && now.Before(deadline) {
		return func() {}, false, nil
	}
	m.locks[key] = now.Add(ttl)

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.locks, key)
			m.mu.Unlock()
		})
	}
	return unlock, true, nil
}

// Stats returns hit/miss/size counters.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Hits: m.hits, Misses: m.misses, Size: int64(m.eviction.Len())}
}

// Close stops the janitor. Subsequent operations return ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.stopCh)
	return nil
}

// removeElement must be called with the lock held.
func (m *Memory) removeElement(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	m.eviction.Remove(elem)
	delete(m.items, entry.key)
	m.untag(entry)
}

// untag must be called with the lock held.
func (m *Memory) untag(entry *memoryEntry) {
	for _, tag := range entry.tags {
		if keys, ok := m.tagIndex[tag]; ok {
			delete(keys, entry.key)
			if len(keys) == 0 {
				delete(m.tagIndex, tag)
			}
		}
	}
}

func (m *Memory) janitor() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.removeExpired()
		}
	}
}

func (m *Memory) removeExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, elem := range m.items {
		if elem.Value.(*memoryEntry).expired(now) {
			m.removeElement(elem)
		}
	}
	for key, deadline := range m.locks {
		if now.After(deadline) {
			delete(m.locks, key)
		}
	}
}
