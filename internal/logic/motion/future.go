package motion

import (
	"context"

	"github.com/cjeanneret/LensGo/internal/logic/axis"
)

// Future is the pending result of an axis operation. The motion itself
// cannot be interrupted; giving up on Wait only stops waiting.
type Future struct {
	done   chan struct{}
	report axis.Report
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func resolved(r axis.Report, err error) *Future {
	f := newFuture()
	f.resolve(r, err)
	return f
}

func (f *Future) resolve(r axis.Report, err error) {
	f.report = r
	f.err = err
	close(f.done)
}

// Done is closed when the operation has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait returns the operation result, or ctx.Err() if ctx ends first.
func (f *Future) Wait(ctx context.Context) (axis.Report, error) {
	select {
	case <-f.done:
		return f.report, f.err
	case <-ctx.Done():
		return axis.Report{}, ctx.Err()
	}
}
