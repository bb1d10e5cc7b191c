// Package cache holds serialized compile results in memory, bounded by
// their total size in bytes rather than by entry count.
package cache

import (
	"sync"

	"github.com/golang/groupcache/lru"

	"asmexplorer/internal/logging"
)

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries   int    `json:"entries"`
	Bytes     int64  `json:"bytes"`
	Capacity  int64  `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// LRU is a least-recently-used cache whose capacity is the sum of key and
// value lengths. It is safe for concurrent use.
type LRU struct {
	mu       sync.Mutex
	entries  *lru.Cache
	capacity int64
	size     int64

	hits      uint64
	misses    uint64
	evictions uint64
}

// New returns a cache holding at most capacity bytes. A capacity of zero or
// less disables caching.
func New(capacity int64) *LRU {
	c := &LRU{capacity: capacity, entries: lru.New(0)}
	c.entries.OnEvicted = func(key lru.Key, value interface{}) {
		c.size -= entrySize(key.(string), value.([]byte))
	}
	return c
}

func entrySize(key string, value []byte) int64 {
	return int64(len(key) + len(value))
}

// Get returns the value stored under key and marks it recently used.
func (c *LRU) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.entries.Get(key); ok {
		c.hits++
		return v.([]byte), true
	}
	c.misses++
	return nil, false
}

// Put stores value under key, evicting least recently used entries until
// it fits. An entry larger than the whole capacity is not stored and Put
// returns false.
func (c *LRU) Put(key string, value []byte) bool {
	size := entrySize(key, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if size > c.capacity {
		logging.CacheDebug("Not caching %d-byte entry (capacity %d)", size, c.capacity)
		return false
	}

	c.entries.Remove(key)
	for c.size+size > c.capacity && c.entries.Len() > 0 {
		c.entries.RemoveOldest()
		c.evictions++
	}

	c.entries.Add(key, value)
	c.size += size
	return true
}

// Len returns the number of entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Stats returns the current counters.
func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   c.entries.Len(),
		Bytes:     c.size,
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
