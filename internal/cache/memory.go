package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"quantumquery/internal/ingest"
)

const defaultMaxEntries = 1024

// MemoryCache is an in-process LRU cache with per-entry expiry. It is the
// default when no Redis is configured; contents are lost on restart.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
	maxEntries int
	now        func() time.Time
}

type memoryEntry struct {
	key       string
	contexts  []ingest.Result
	expiresAt time.Time
}

// NewMemoryCache creates a cache holding at most maxEntries context sets.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &MemoryCache{
		entries:    make(map[string]*list.Element, maxEntries),
		order:      list.New(),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *MemoryCache) GetContexts(_ context.Context, id string) ([]ingest.Result, error) {
	if id == "" {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[id]
	if !ok {
		return nil, nil
	}
	entry := elem.Value.(*memoryEntry)
	if c.now().After(entry.expiresAt) {
		c.removeElement(elem)
		return nil, nil
	}
	c.order.MoveToFront(elem)
	return append([]ingest.Result(nil), entry.contexts...), nil
}

func (c *MemoryCache) SetContexts(_ context.Context, id string, contexts []ingest.Result, ttl time.Duration) error {
	if id == "" || ttl <= 0 {
		return nil
	}
	now := c.now()
	stored := append([]ingest.Result(nil), contexts...)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[id]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.contexts = stored
		entry.expiresAt = now.Add(ttl)
		c.order.MoveToFront(elem)
		return nil
	}

	elem := c.order.PushFront(&memoryEntry{key: id, contexts: stored, expiresAt: now.Add(ttl)})
	c.entries[id] = elem

	c.evictExpiredLocked(now)
	for len(c.entries) > c.maxEntries {
		c.removeElement(c.order.Back())
	}
	return nil
}

// Close drops all entries.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	return nil
}

func (c *MemoryCache) evictExpiredLocked(now time.Time) {
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if now.After(elem.Value.(*memoryEntry).expiresAt) {
			c.removeElement(elem)
		}
		elem = prev
	}
}

func (c *MemoryCache) removeElement(elem *list.Element) {
	delete(c.entries, elem.Value.(*memoryEntry).key)
	c.order.Remove(elem)
}
