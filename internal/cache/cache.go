// Package cache implements the in-flight point buffer arena: a bounded
// pool of columnar buffers addressed by integer handle so that producers
// and node workers can hand buffers to each other without copying, while a
// single registry tracks how much memory is currently checked out.
package cache

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ecopia-map/octiler/internal/points"
)

// Handle addresses a buffer registered with a PointsCache.
type Handle int64

// PointsCache is a thread-safe arena of in-flight point buffers. Insertion
// and removal are guarded by a single mutex; once a caller has checked a
// buffer out via Take, it owns the buffer exclusively and may process it
// without contending on the cache's lock.
type PointsCache struct {
	mu      sync.Mutex
	next    Handle
	entries map[Handle]*points.Buffer
	bytes   int64
	limit   int64
}

// New returns a PointsCache that rejects Put calls once the sum of
// registered buffers' estimated size would exceed limitBytes. A limit of 0
// means unbounded.
func New(limitBytes int64) *PointsCache {
	return &PointsCache{
		entries: make(map[Handle]*points.Buffer),
		limit:   limitBytes,
	}
}

// Put registers buf and returns a handle to it. Returns an error if doing
// so would exceed the cache's byte budget.
func (c *PointsCache) Put(buf *points.Buffer) (Handle, error) {
	size := EstimateBufferBytes(buf)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.limit > 0 && c.bytes+size > c.limit {
		return 0, fmt.Errorf("cache: putting buffer of %d bytes would exceed limit of %d bytes (currently holding %d)", size, c.limit, c.bytes)
	}
	c.next++
	h := c.next
	c.entries[h] = buf
	c.bytes += size
	return h, nil
}

// Take removes and returns the buffer for h, or false if no such handle is
// registered (e.g. it was already taken).
func (c *PointsCache) Take(h Handle) (*points.Buffer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf, ok := c.entries[h]
	if !ok {
		return nil, false
	}
	delete(c.entries, h)
	c.bytes -= EstimateBufferBytes(buf)
	return buf, true
}

// Drain empties the cache and returns every buffer it held, oldest handle
// first, the bulk removal a flush() performs once an accumulated batch is
// ready to build (§4.4's ingest cadence). Ordering by handle rather than
// map iteration keeps a drain's result independent of Go's randomized map
// order, so a caller that concatenates the returned buffers gets the same
// point order on every run for the same sequence of Put calls.
func (c *PointsCache) Drain() []*points.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()

	handles := make([]Handle, 0, len(c.entries))
	for h := range c.entries {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	out := make([]*points.Buffer, len(handles))
	for i, h := range handles {
		out[i] = c.entries[h]
		delete(c.entries, h)
	}
	c.bytes = 0
	return out
}

// InUseBytes reports the cache's current estimated footprint.
func (c *PointsCache) InUseBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Len reports the number of buffers currently registered.
func (c *PointsCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
