package checkpoint

import "sync"

// epochSyncCache is the single in-process lock guarding sync-committee
// cache insertion called out in §4.3's concurrency contract and §5's
// "shared resources" list. It is cheaper than hashicorp/golang-lru here
// since entries are never evicted mid-run (at most a handful of periods
// are touched by one checkpoint) and the cache's lifetime is the pipeline's,
// not a whole process's.
type epochSyncCache struct {
	mu      sync.Mutex
	periods map[uint64][]uint64
}

func newEpochSyncCache() *epochSyncCache {
	return &epochSyncCache{periods: make(map[uint64][]uint64)}
}

func (c *epochSyncCache) get(period uint64) ([]uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.periods[period]
	return v, ok
}

func (c *epochSyncCache) put(period uint64, members []uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.periods[period]; ok {
		return
	}
	c.periods[period] = members
}
