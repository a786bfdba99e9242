package metrics

// Noop discards all measurements. It is the default provider.
type Noop struct{}

// NewNoop constructs a Provider that performs no work.
func NewNoop() Noop { return Noop{} }

func (Noop) Counter(_ string, _ ...Option) Counter             { return noopCounter{} }
func (Noop) UpDownCounter(_ string, _ ...Option) UpDownCounter { return noopUpDownCounter{} }
func (Noop) Histogram(_ string, _ ...Option) Histogram         { return noopHistogram{} }

type noopCounter struct{}

func (noopCounter) Add(_ int64) {}

type noopUpDownCounter struct{}

func (noopUpDownCounter) Add(_ int64) {}

type noopHistogram struct{}

func (noopHistogram) Record(_ float64) {}
