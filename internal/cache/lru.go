package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// LRU is a fixed-capacity cache with per-entry TTL, used to memoize rule
// expansions keyed by ExpansionKey. When full, the least recently used entry
// makes room for the next one. The recency list is intrusive and typed, so
// lookups never hit an interface assertion.
type LRU[T any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*entry[T]
	head     *entry[T] // most recently used
	tail     *entry[T] // least recently used

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type entry[T any] struct {
	key        string
	value      T
	expiresAt  time.Time
	prev, next *entry[T]
}

// NewLRU creates a cache holding at most capacity entries, each living for
// ttl after its last Set.
func NewLRU[T any](capacity int, ttl time.Duration) *LRU[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU[T]{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*entry[T]),
	}
}

// Get returns the cached value for key. Expired entries are removed on the
// spot and count as misses.
func (c *LRU[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		c.remove(e)
		c.misses.Add(1)
		return zero, false
	}

	c.unlink(e)
	c.pushFront(e)
	c.hits.Add(1)
	return e.value, true
}

// Set stores value under key, refreshing the TTL and recency of an existing
// entry. Inserting into a full cache evicts the least recently used entry.
func (c *LRU[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(c.ttl)
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.unlink(e)
		c.pushFront(e)
		return
	}

	e := &entry[T]{key: key, value: value, expiresAt: expiresAt}
	c.pushFront(e)
	c.entries[key] = e

	if len(c.entries) > c.capacity && c.tail != nil {
		c.remove(c.tail)
		c.evictions.Add(1)
	}
}

// Delete removes key from the cache if present.
func (c *LRU[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.remove(e)
	}
}

// CleanExpired removes every expired entry and returns how many were removed.
// The Manager calls this on its cleanup tick.
func (c *LRU[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, e := range c.entries {
		if now.After(e.expiresAt) {
			c.remove(e)
			removed++
		}
	}
	return removed
}

// Size returns the current number of entries.
func (c *LRU[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats are the cache counters surfaced on the metrics endpoint.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

func (c *LRU[T]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

func (c *LRU[T]) remove(e *entry[T]) {
	c.unlink(e)
	delete(c.entries, e.key)
}

func (c *LRU[T]) unlink(e *entry[T]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (c *LRU[T]) pushFront(e *entry[T]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}
