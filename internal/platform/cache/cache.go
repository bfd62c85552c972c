package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Cache is a bounded LRU with optional per-cache TTL. It is an explicit,
// injected dependency of the services that use it; there is no package-level
// instance. A zero TTL disables expiry.
type Cache[V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	order   *list.List
	items   map[string]*list.Element

	hits   uint64
	misses uint64

	now func() time.Time
}

type entry[V any] struct {
	key     string
	value   V
	expires time.Time
}

func New[V any](maxSize int, ttl time.Duration) *Cache[V] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Cache[V]{
		maxSize: maxSize,
		ttl:     ttl,
		order:   list.New(),
		items:   make(map[string]*list.Element),
		now:     time.Now,
	}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	ent := el.Value.(*entry[V])
	if c.ttl > 0 && c.now().After(ent.expires) {
		c.order.Remove(el)
		delete(c.items, key)
		c.misses++
		return zero, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return ent.value, true
}

func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry[V])
		ent.value = value
		ent.expires = c.now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&entry[V]{key: key, value: value, expires: c.now().Add(c.ttl)})
	c.items[key] = el
	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*entry[V]).key)
	}
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns cumulative hit/miss counters.
func (c *Cache[V]) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Key derives a stable cache key from the given parts. Inference and
// embedding results are keyed on a digest of the input text plus the model
// identifier so a model swap never serves stale results.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
