// Package metrics defines the instrument surface the scheduler records into.
// It ships an in-memory implementation for tests and lightweight apps and a
// no-op default; heavier backends can satisfy Provider with thin adapters.
package metrics

// Provider hands out named instruments. The same name always yields the same
// instrument. Implementations must be safe for concurrent use.
type Provider interface {
	Counter(name string, opts ...Option) Counter
	UpDownCounter(name string, opts ...Option) UpDownCounter
	Histogram(name string, opts ...Option) Histogram
}

// Counter records monotonic counts.
type Counter interface {
	Add(n int64)
}

// UpDownCounter records values that move both ways, such as current in-flight.
type UpDownCounter interface {
	Add(n int64)
}

// Histogram records a distribution of float64 measurements.
type Histogram interface {
	Record(v float64)
}

// Descriptor carries advisory instrument metadata. Implementations may ignore it.
type Descriptor struct {
	Description string
	Unit        string
}

// Option mutates a Descriptor at instrument creation.
type Option func(*Descriptor)

// WithDescription sets an advisory description for the instrument.
func WithDescription(d string) Option {
	return func(desc *Descriptor) { desc.Description = d }
}

// WithUnit sets an advisory unit for the instrument, e.g. "1" or "seconds".
func WithUnit(u string) Option {
	return func(desc *Descriptor) { desc.Unit = u }
}

func describe(opts []Option) Descriptor {
	var d Descriptor
	for _, o := range opts {
		if o != nil {
			o(&d)
		}
	}
	return d
}
