// Package cache stores generated narratives so identical prompts are not
// sent to the text-generation backend twice.
package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultLocalMaxSize bounds the in-process cache when no size is configured.
const DefaultLocalMaxSize = 10000

// ErrNamespaceRequired is returned when a cache call has no namespace.
var ErrNamespaceRequired = errors.New("cache namespace is required")

// Stats is a point-in-time view of an in-process cache.
type Stats struct {
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

type entryKey struct {
	namespace string
	key       string
}

type entry struct {
	id        entryKey
	value     []byte
	expiresAt time.Time
}

// LRUCache is an in-process cache bounded by entry count. Entries expire
// lazily on read; the least recently read entry is evicted first.
// It serves the community tier and the L1 side of TwoPhaseCache.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[entryKey]*list.Element
	recency  *list.List // front is most recently used
	now      func() time.Time

	hits, misses, evictions uint64
}

// NewLRUCache creates a cache holding at most capacity entries.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = DefaultLocalMaxSize
	}
	return &LRUCache{
		capacity: capacity,
		entries:  make(map[entryKey]*list.Element),
		recency:  list.New(),
		now:      time.Now,
	}
}

// Get returns the value stored under namespace and key, or nil on a miss.
func (c *LRUCache) Get(_ context.Context, namespace, key string) ([]byte, error) {
	if namespace == "" {
		return nil, ErrNamespaceRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[entryKey{namespace, key}]
	if !ok {
		c.misses++
		return nil, nil
	}
	e := elem.Value.(*entry)
	if !c.now().Before(e.expiresAt) {
		c.drop(elem)
		c.misses++
		return nil, nil
	}

	c.recency.MoveToFront(elem)
	c.hits++
	return e.value, nil
}

// Set stores value for ttl, evicting the least recently used entries once
// the cache is over capacity.
func (c *LRUCache) Set(_ context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if namespace == "" {
		return ErrNamespaceRequired
	}

	id := entryKey{namespace, key}
	expiresAt := c.now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[id]; ok {
		e := elem.Value.(*entry)
		e.value, e.expiresAt = value, expiresAt
		c.recency.MoveToFront(elem)
		return nil
	}

	c.entries[id] = c.recency.PushFront(&entry{id: id, value: value, expiresAt: expiresAt})
	for c.recency.Len() > c.capacity {
		c.drop(c.recency.Back())
		c.evictions++
	}
	return nil
}

// Ping always succeeds.
func (c *LRUCache) Ping(context.Context) error {
	return nil
}

// Close drops every entry. Counters are kept.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.recency.Init()
	return nil
}

// Stats returns the current size, capacity and hit counters.
func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      c.recency.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *LRUCache) drop(elem *list.Element) {
	c.recency.Remove(elem)
	delete(c.entries, elem.Value.(*entry).id)
}
