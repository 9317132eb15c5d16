// Package replay implements the bounded (origin, nonce) replay/loop cache:
// a fixed-capacity FIFO set that rejects any pair it has already admitted
// and evicts the oldest entry once full.
package replay

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/samograsic/ion-dtn-dtnex/internal/wireproto"
)

// DefaultCapacity holds on the order of thousands of recent entries.
const DefaultCapacity = 4096

type key struct {
	origin uint64
	nonce  wireproto.Nonce
}

// Cache is a bounded set of (origin, nonce) pairs. It is safe for
// concurrent use, though the engine only ever touches it from the single
// inbound task.
type Cache struct {
	mu   sync.Mutex
	lru  *lru.Cache
}

// New builds a Cache with the given capacity. Eviction is pure insertion
// order: golang-lru's Cache evicts its least-recently-used entry, and
// since this cache never touches an entry after Insert (Contains does not
// promote), least-recently-used coincides exactly with oldest-inserted.
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l, err := lru.New(capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// Contains reports whether (origin, nonce) has already been admitted.
// It does not mutate recency, so it cannot itself protect an entry from
// eviction.
func (c *Cache) Contains(origin uint64, nonce wireproto.Nonce) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(key{origin, nonce})
}

// Insert admits (origin, nonce), evicting the oldest entry if the cache
// is at capacity. It is a no-op if the pair is already present.
func (c *Cache) Insert(origin uint64, nonce wireproto.Nonce) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{origin, nonce}
	if c.lru.Contains(k) {
		return
	}
	c.lru.Add(k, struct{}{})
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
