package taskpool

import "context"

// RunEach executes one distinct payload per envelope on a scheduler built
// from opts, owning its whole lifecycle: construct, start, submit, close.
// Results come back in payload order inside the report.
func RunEach[P, R any](ctx context.Context, unit Unit[P, R], payloads []P, opts ...Option) (*BatchReport[R], error) {
	s, err := New[R](opts...)
	if err != nil {
		return nil, err
	}
	s.Start(ctx)
	defer s.Close()

	return s.SubmitBatch(ctx, Batch(unit, payloads))
}
