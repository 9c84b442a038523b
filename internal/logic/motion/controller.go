package motion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/LensGo/internal/debug"
	"github.com/cjeanneret/LensGo/internal/hw/stepper"
	"github.com/cjeanneret/LensGo/internal/logic/axis"
)

// ErrUnknownAxis is returned when a name matches neither ring.
var ErrUnknownAxis = errors.New("unknown axis")

const (
	FocusAxis    = "focus"
	ApertureAxis = "aperture"
)

// Indicator is told when a calibration starts and ends, so it can
// render progress. It must not block.
type Indicator interface {
	Calibrating(axis string)
	Calibrated(axis string, r axis.Report, err error)
}

type nopIndicator struct{}

func (nopIndicator) Calibrating(string)                    {}
func (nopIndicator) Calibrated(string, axis.Report, error) {}

// Controller owns both lens axes and the guard they share. It sits
// between the request layer and the axes: names are resolved here and
// every motion runs on its own goroutine so callers can wait on a Future.
type Controller struct {
	focus     *axis.Axis
	aperture  *axis.Axis
	guard     *axis.Guard
	indicator Indicator
	settle    time.Duration

	inflight sync.WaitGroup
}

// NewController wires the two axes. settle is the pause between the two
// calibrations of the startup sequence.
func NewController(focus, aperture *axis.Axis, guard *axis.Guard, settle time.Duration) *Controller {
	return &Controller{
		focus:     focus,
		aperture:  aperture,
		guard:     guard,
		indicator: nopIndicator{},
		settle:    settle,
	}
}

// SetIndicator installs the calibration progress renderer.
func (c *Controller) SetIndicator(ind Indicator) {
	if ind == nil {
		ind = nopIndicator{}
	}
	c.indicator = ind
}

// Resolve maps a loose axis name to an axis. Any name containing
// "focus" selects focus; otherwise any name containing "aperture"
// selects aperture.
func (c *Controller) Resolve(name string) (*axis.Axis, error) {
	switch {
	case strings.Contains(name, FocusAxis):
		return c.focus, nil
	case strings.Contains(name, ApertureAxis):
		return c.aperture, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAxis, name)
	}
}

// Axes returns both axes, focus first.
func (c *Controller) Axes() []*axis.Axis {
	return []*axis.Axis{c.focus, c.aperture}
}

// Active returns the name of the axis currently in motion, or "".
func (c *Controller) Active() string {
	return c.guard.Holder()
}

// Status returns the bookkeeping of the named axis.
func (c *Controller) Status(name string) (axis.Snapshot, error) {
	a, err := c.Resolve(name)
	if err != nil {
		return axis.Snapshot{}, err
	}
	return a.Snapshot(), nil
}

// Calibrate starts a calibration of the named axis.
func (c *Controller) Calibrate(ctx context.Context, name string) *Future {
	a, err := c.Resolve(name)
	if err != nil {
		return resolved(axis.Report{}, err)
	}
	return c.run(func() (axis.Report, error) {
		return c.calibrate(ctx, a)
	})
}

// Move starts a bounded move of the named axis.
func (c *Controller) Move(ctx context.Context, name string, steps int, dir stepper.Direction) *Future {
	a, err := c.Resolve(name)
	if err != nil {
		return resolved(axis.Report{}, err)
	}
	return c.run(func() (axis.Report, error) {
		return a.Move(ctx, steps, dir)
	})
}

// CalibrateAll runs the startup sequence: aperture first, a settle
// pause, then focus. Both are attempted even if the first fails.
func (c *Controller) CalibrateAll(ctx context.Context) error {
	debug.Summary("Startup calibration")

	var errs []error
	for i, a := range []*axis.Axis{c.aperture, c.focus} {
		if i > 0 && c.settle > 0 {
			select {
			case <-time.After(c.settle):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if _, err := c.Calibrate(ctx, a.Name()).Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until every started operation has finished.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

func (c *Controller) calibrate(ctx context.Context, a *axis.Axis) (axis.Report, error) {
	c.indicator.Calibrating(a.Name())
	r, err := a.Calibrate(ctx)
	c.indicator.Calibrated(a.Name(), r, err)
	return r, err
}

func (c *Controller) run(op func() (axis.Report, error)) *Future {
	f := newFuture()
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		f.resolve(op())
	}()
	return f
}
