// Package poolcache keeps the newest placement snapshot of every pool and
// hands out reference-counted borrows of it.
//
// A reader borrows a snapshot with Acquire and returns it with Release. A
// writer swaps in a newer snapshot with Update; snapshots that are still
// borrowed stay alive until their last borrower lets go, so a computation in
// flight never sees its map change underneath it.
package poolcache

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	zerrors "github.com/zzenonn/zplace/internal/errors"
	"github.com/zzenonn/zplace/internal/placement"
)

type entry struct {
	pool     uuid.UUID
	strategy placement.Strategy
	refs     atomic.Int64
	// stale is set once the entry is no longer the current one.
	stale atomic.Bool
}

func (e *entry) version() uint32 {
	return e.strategy.Map().Version()
}

// Cache maps pool ids to their current snapshot.
type Cache struct {
	mu      sync.RWMutex
	current map[uuid.UUID]*entry
	// retired holds superseded entries that are still borrowed.
	retired map[*entry]struct{}
	log     log.FieldLogger
}

func New(logger log.FieldLogger) *Cache {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Cache{
		current: make(map[uuid.UUID]*entry),
		retired: make(map[*entry]struct{}),
		log:     logger,
	}
}

// Handle is one borrow of a snapshot. Release must be called exactly once;
// later calls are ignored.
type Handle struct {
	c    *Cache
	e    *entry
	once sync.Once
}

func (h *Handle) Strategy() placement.Strategy {
	return h.e.strategy
}

func (h *Handle) Pool() uuid.UUID {
	return h.e.pool
}

func (h *Handle) Version() uint32 {
	return h.e.version()
}

func (h *Handle) Release() {
	h.once.Do(func() { h.c.release(h.e) })
}

// Acquire borrows the current snapshot of pool.
func (c *Cache) Acquire(pool uuid.UUID) (*Handle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.current[pool]
	if !ok {
		return nil, zerrors.NotFoundError("pool", pool)
	}
	e.refs.Add(1)
	return &Handle{c: c, e: e}, nil
}

// Update makes s the current snapshot of pool unless the cached one is at
// least as new. It reports whether the swap happened.
func (c *Cache) Update(pool uuid.UUID, s placement.Strategy) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, ok := c.current[pool]
	if ok && old.version() >= s.Map().Version() {
		c.log.Debugf("pool %s: keeping map v%d, offered v%d", pool, old.version(), s.Map().Version())
		return false
	}

	c.current[pool] = &entry{pool: pool, strategy: s}
	if ok {
		c.retire(old)
		c.log.Infof("pool %s: map v%d replaces v%d", pool, s.Map().Version(), old.version())
	} else {
		c.log.Infof("pool %s: cached map v%d", pool, s.Map().Version())
	}
	return true
}

// Evict drops the current snapshot of pool. Borrowed handles stay valid.
func (c *Cache) Evict(pool uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.current[pool]
	if !ok {
		return zerrors.NotFoundError("pool", pool)
	}
	delete(c.current, pool)
	c.retire(e)
	return nil
}

// retire must be called with mu held.
func (c *Cache) retire(e *entry) {
	e.stale.Store(true)
	if e.refs.Load() > 0 {
		c.retired[e] = struct{}{}
	}
}

func (c *Cache) release(e *entry) {
	if e.refs.Add(-1) > 0 || !e.stale.Load() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.refs.Load() == 0 {
		delete(c.retired, e)
		c.log.Debugf("pool %s: released map v%d", e.pool, e.version())
	}
}

// Len returns the number of pools with a current snapshot.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.current)
}

// Retired returns the number of superseded snapshots still borrowed.
func (c *Cache) Retired() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.retired)
}

// Pools lists the cached pool ids.
func (c *Cache) Pools() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(c.current))
	for id := range c.current {
		out = append(out, id)
	}
	return out
}
