// Package progress tracks named counters during a tiling run (points
// read, points written, nodes closed) behind atomics, so the many
// concurrent node workers can report progress without contending on a
// lock. cmd/octiler drives a github.com/schollz/progressbar/v3 bar off of
// these counters; the teacher's tiler instead logged raw percentages
// through glog, which this package's Snapshot/Log method still supports.
package progress

import (
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
)

// Counter is a single named, monotonically increasing progress metric.
type Counter struct {
	name  string
	value int64
	total int64
}

// Add increments the counter by delta and returns the new value.
func (c *Counter) Add(delta int64) int64 {
	return atomic.AddInt64(&c.value, delta)
}

// Value returns the counter's current value.
func (c *Counter) Value() int64 {
	return atomic.LoadInt64(&c.value)
}

// Total returns the counter's configured total, or 0 if indeterminate.
func (c *Counter) Total() int64 {
	return atomic.LoadInt64(&c.total)
}

// SetTotal fixes the counter's expected final value, used to compute a
// percentage once it's known (e.g. once the point count for a source has
// been read).
func (c *Counter) SetTotal(total int64) {
	atomic.StoreInt64(&c.total, total)
}

// FloatCounter is a single named progress metric for quantities a plain
// integer Counter can't represent faithfully, such as a running compression
// ratio. Guarded by a mutex rather than atomics since float64 has no atomic
// add on every platform and these are updated far less often than Counter.
type FloatCounter struct {
	mu    sync.Mutex
	name  string
	value float64
}

// Add increments the float counter by delta and returns the new value.
func (c *FloatCounter) Add(delta float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value += delta
	return c.value
}

// Set overwrites the float counter's current value.
func (c *FloatCounter) Set(value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
}

// Value returns the float counter's current value.
func (c *FloatCounter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Reporter is a read-mostly registry of named Counters and FloatCounters.
// The name tables are guarded by a mutex because new counters are
// registered rarely, after which every Counter update goes through its own
// atomics.
type Reporter struct {
	mu            sync.RWMutex
	counters      map[string]*Counter
	floatCounters map[string]*FloatCounter
}

// New returns an empty Reporter.
func New() *Reporter {
	return &Reporter{counters: make(map[string]*Counter), floatCounters: make(map[string]*FloatCounter)}
}

// Counter returns the named integer counter, creating it on first use.
func (r *Reporter) Counter(name string) *Counter {
	r.mu.RLock()
	c, ok := r.counters[name]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c = &Counter{name: name}
	r.counters[name] = c
	return c
}

// FloatCounter returns the named float counter, creating it on first use.
func (r *Reporter) FloatCounter(name string) *FloatCounter {
	r.mu.RLock()
	c, ok := r.floatCounters[name]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.floatCounters[name]; ok {
		return c
	}
	c = &FloatCounter{name: name}
	r.floatCounters[name] = c
	return c
}

// Snapshot returns the current value of every registered integer counter.
func (r *Reporter) Snapshot() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int64, len(r.counters))
	for name, c := range r.counters {
		out[name] = c.Value()
	}
	return out
}

// SnapshotFloat returns the current value of every registered float
// counter.
func (r *Reporter) SnapshotFloat() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]float64, len(r.floatCounters))
	for name, c := range r.floatCounters {
		out[name] = c.Value()
	}
	return out
}

// Log writes each counter's current percentage, and each float counter's
// current value, to glog at Info level, matching the teacher's
// percent-complete logging convention.
func (r *Reporter) Log() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, c := range r.counters {
		total := c.Total()
		if total <= 0 {
			glog.Infof("%s: %d", name, c.Value())
			continue
		}
		pct := int(100 * float64(c.Value()) / float64(total))
		glog.Infof("%s: %d%%", name, pct)
	}
	for name, c := range r.floatCounters {
		glog.Infof("%s: %.3f", name, c.Value())
	}
}
