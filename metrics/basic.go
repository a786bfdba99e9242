package metrics

import (
	"sync"
	"sync/atomic"
)

// Basic is a concurrency-safe in-memory Provider. Instruments are created on
// first use and reused by name; descriptors are retained for introspection.
type Basic struct {
	mu          sync.Mutex
	counters    map[string]*BasicCounter
	updowns     map[string]*BasicUpDownCounter
	histograms  map[string]*BasicHistogram
	descriptors map[string]Descriptor
}

// NewBasic constructs an empty in-memory provider.
func NewBasic() *Basic {
	return &Basic{
		counters:    make(map[string]*BasicCounter),
		updowns:     make(map[string]*BasicUpDownCounter),
		histograms:  make(map[string]*BasicHistogram),
		descriptors: make(map[string]Descriptor),
	}
}

// Counter returns the monotonic counter registered under name.
func (b *Basic) Counter(name string, opts ...Option) Counter {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.counters[name]
	if !ok {
		c = &BasicCounter{}
		b.counters[name] = c
		b.descriptors[name] = describe(opts)
	}
	return c
}

// UpDownCounter returns the up/down counter registered under name.
func (b *Basic) UpDownCounter(name string, opts ...Option) UpDownCounter {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.updowns[name]
	if !ok {
		u = &BasicUpDownCounter{}
		b.updowns[name] = u
		b.descriptors[name] = describe(opts)
	}
	return u
}

// Histogram returns the histogram registered under name.
func (b *Basic) Histogram(name string, opts ...Option) Histogram {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.histograms[name]
	if !ok {
		h = &BasicHistogram{}
		b.histograms[name] = h
		b.descriptors[name] = describe(opts)
	}
	return h
}

// Describe returns the descriptor stored for name, if any.
func (b *Basic) Describe(name string) (Descriptor, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.descriptors[name]
	return d, ok
}

// BasicCounter is a lock-free monotonic counter.
type BasicCounter struct {
	val atomic.Int64
}

func (c *BasicCounter) Add(n int64) { c.val.Add(n) }

// Value returns the current count.
func (c *BasicCounter) Value() int64 { return c.val.Load() }

// BasicUpDownCounter is a lock-free bidirectional counter.
type BasicUpDownCounter struct {
	val atomic.Int64
}

func (u *BasicUpDownCounter) Add(n int64) { u.val.Add(n) }

// Value returns the current level.
func (u *BasicUpDownCounter) Value() int64 { return u.val.Load() }

// BasicHistogram aggregates count, sum, min and max without buckets.
type BasicHistogram struct {
	mu    sync.Mutex
	count int64
	sum   float64
	min   float64
	max   float64
}

func (h *BasicHistogram) Record(v float64) {
	h.mu.Lock()
	if h.count == 0 || v < h.min {
		h.min = v
	}
	if h.count == 0 || v > h.max {
		h.max = v
	}
	h.count++
	h.sum += v
	h.mu.Unlock()
}

// HistogramSnapshot is an immutable view of a BasicHistogram.
type HistogramSnapshot struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
	Mean  float64
}

// Snapshot copies the histogram state at the time of the call.
func (h *BasicHistogram) Snapshot() HistogramSnapshot {
	h.mu.Lock()
	s := HistogramSnapshot{Count: h.count, Sum: h.sum, Min: h.min, Max: h.max}
	h.mu.Unlock()
	if s.Count > 0 {
		s.Mean = s.Sum / float64(s.Count)
	}
	return s
}
