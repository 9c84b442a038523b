// Package axis turns an open-loop stepper and a shared current shunt into
// a lens ring with known travel. Hard stops are found by stalling the ring
// against them and watching the supply current; ordinary moves are then
// clamped to soft limits kept strictly inside those stops.
package axis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cjeanneret/LensGo/internal/debug"
	"github.com/cjeanneret/LensGo/internal/hw/current"
	"github.com/cjeanneret/LensGo/internal/hw/stepper"
)

// Actuator is the pulse interface of one stepper driver.
type Actuator interface {
	Enable() error
	Disable() error
	Step(count uint, dir stepper.Direction) error
}

// Config holds the per-axis calibration and safety parameters.
type Config struct {
	OvercurrentThresholdMA float64 // stall threshold, above no-load draw
	BackoffMargin          uint    // steps retreated from a hard stop
	ProbeQuantum           uint    // steps between two current samples
	ProbeCeiling           uint    // max quanta searched per hard stop
}

// Validate checks the parameters that would make calibration meaningless.
func (c Config) Validate() error {
	if c.OvercurrentThresholdMA <= 0 {
		return errors.New("overcurrent threshold must be > 0")
	}
	if c.ProbeQuantum == 0 {
		return errors.New("probe quantum must be > 0")
	}
	if c.ProbeCeiling == 0 {
		return errors.New("probe ceiling must be > 0")
	}
	return nil
}

// Axis is one lens ring. It owns its actuator; the sensor and guard are
// shared with the other axis.
type Axis struct {
	name   string
	act    Actuator
	sensor current.Sensor
	guard  *Guard
	cfg    Config

	mu         sync.Mutex
	calibrated bool
	maxSteps   uint
	position   uint
	lastStatus Status
}

// New builds an uncalibrated axis.
func New(name string, act Actuator, sensor current.Sensor, guard *Guard, cfg Config) (*Axis, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("axis %s: %w", name, err)
	}
	return &Axis{
		name:   name,
		act:    act,
		sensor: sensor,
		guard:  guard,
		cfg:    cfg,
	}, nil
}

// Name returns the axis name.
func (a *Axis) Name() string {
	return a.name
}

// Config returns the axis parameters.
func (a *Axis) Config() Config {
	return a.cfg
}

// Snapshot returns the current bookkeeping. It may be called while an
// operation is running; a move exposes each completed increment.
func (a *Axis) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		Axis:       a.name,
		Calibrated: a.calibrated,
		MaxSteps:   a.maxSteps,
		Position:   a.position,
		LastStatus: a.lastStatus,
		Active:     a.guard.Holder() == a.name,
	}
}

// Calibrate re-homes the axis: it finds the lower hard stop, defines the
// origin one backoff margin above it, then finds the upper hard stop and
// parks at the upper soft limit. Any failure leaves the axis uncalibrated.
func (a *Axis) Calibrate(ctx context.Context) (Report, error) {
	if err := a.guard.Acquire(ctx, a.name); err != nil {
		return a.report(AxisBusy, 0), err
	}
	defer a.guard.Release()

	debug.Section("Calibrating " + a.name)

	a.mu.Lock()
	a.calibrated = false
	a.maxSteps = 0
	a.position = 0
	a.mu.Unlock()

	maxSteps, err := a.calibrate()
	if err != nil {
		debug.Error(err)
		a.mu.Lock()
		a.lastStatus = StatusOf(err)
		a.mu.Unlock()
		return a.report(StatusOf(err), 0), err
	}

	a.mu.Lock()
	a.calibrated = true
	a.maxSteps = maxSteps
	a.position = maxSteps - a.cfg.BackoffMargin
	a.lastStatus = Ok
	a.mu.Unlock()

	r := a.report(Ok, 0)
	debug.Calibrated(a.name, r.MaxSteps, r.Position, r.Status.String())
	return r, nil
}

func (a *Axis) calibrate() (uint, error) {
	margin := a.cfg.BackoffMargin

	if err := a.act.Enable(); err != nil {
		return 0, fmt.Errorf("%w: enable %s driver: %v", ErrHardwareFault, a.name, err)
	}

	ma, err := a.sample()
	if err != nil {
		return 0, err
	}
	if ma >= a.cfg.OvercurrentThresholdMA {
		return 0, fmt.Errorf("%w: %s reads %.1f mA at rest (threshold %.1f mA)",
			ErrHardwareFault, a.name, ma, a.cfg.OvercurrentThresholdMA)
	}

	lower, upper := stepper.CCW, stepper.CW

	debug.Step(1, "seek lower hard stop")
	if _, err := a.seek(lower, "lower"); err != nil {
		return 0, err
	}
	if err := a.step(margin, lower.Opposite()); err != nil {
		return 0, err
	}

	debug.Step(2, "seek upper hard stop")
	travel, err := a.seek(upper, "upper")
	if err != nil {
		return 0, err
	}
	if err := a.step(margin, upper.Opposite()); err != nil {
		return 0, err
	}
	if travel < 3*margin {
		return 0, fmt.Errorf("%w: %s travel of %d steps leaves no room inside a %d step margin",
			ErrHardwareFault, a.name, travel, margin)
	}
	maxSteps := travel - margin

	debug.Step(3, "park at upper soft limit")
	if err := a.step(margin, upper.Opposite()); err != nil {
		return 0, err
	}
	return maxSteps, nil
}

// seek steps toward a hard stop one quantum at a time and returns the
// number of steps taken when the current threshold is reached.
func (a *Axis) seek(dir stepper.Direction, side string) (uint, error) {
	var steps uint
	for i := uint(0); i < a.cfg.ProbeCeiling; i++ {
		if err := a.step(a.cfg.ProbeQuantum, dir); err != nil {
			return 0, err
		}
		steps += a.cfg.ProbeQuantum

		ma, err := a.sample()
		if err != nil {
			return 0, err
		}
		if ma >= a.cfg.OvercurrentThresholdMA {
			debug.Limit(a.name, side, ma)
			return steps, nil
		}
	}
	return 0, fmt.Errorf("%w: no %s hard stop on %s within %d steps",
		ErrHardwareFault, side, a.name, steps)
}

// Move steps the ring by requested steps in dir, clamped to the soft
// limits. Motion already performed is kept in the bookkeeping even when
// the move stops early.
func (a *Axis) Move(ctx context.Context, requested int, dir stepper.Direction) (Report, error) {
	if !a.Snapshot().Calibrated {
		return a.refuse(Uncalibrated, fmt.Errorf("%w: %s", ErrUncalibrated, a.name))
	}
	if requested < 0 {
		return a.refuse(OutOfRange, fmt.Errorf("%w: negative step count %d", ErrOutOfRange, requested))
	}
	if dir != stepper.CW && dir != stepper.CCW {
		return a.refuse(OutOfRange, fmt.Errorf("%w: unknown direction %d", ErrOutOfRange, dir))
	}

	if err := a.guard.Acquire(ctx, a.name); err != nil {
		return a.report(AxisBusy, 0), err
	}
	defer a.guard.Release()

	a.mu.Lock()
	calibrated, pos, maxSteps := a.calibrated, a.position, a.maxSteps
	a.mu.Unlock()
	if !calibrated {
		return a.refuse(Uncalibrated, fmt.Errorf("%w: %s", ErrUncalibrated, a.name))
	}

	target, err := a.clamp(pos, maxSteps, requested, dir)
	if err != nil {
		return a.refuse(OutOfRange, err)
	}

	effective := target - pos
	moveDir := stepper.CW
	if target < pos {
		effective = pos - target
		moveDir = stepper.CCW
	}
	if effective == 0 {
		a.setLastStatus(Ok)
		return a.report(Ok, 0), nil
	}

	debug.Live("Axis %s: %d -> %d (%d steps %s)", a.name, pos, target, effective, moveDir)

	if err := a.act.Enable(); err != nil {
		err = fmt.Errorf("%w: enable %s driver: %v", ErrHardwareFault, a.name, err)
		return a.refuse(HardwareFault, err)
	}

	var moved uint
	for moved < effective {
		n := a.cfg.ProbeQuantum
		if left := effective - moved; left < n {
			n = left
		}
		if err := a.step(n, moveDir); err != nil {
			return a.finish(HardwareFault, moved, err)
		}
		moved += n
		a.advance(n, moveDir)

		ma, err := a.sample()
		if err != nil {
			return a.finish(HardwareFault, moved, err)
		}
		if ma >= a.cfg.OvercurrentThresholdMA {
			err := fmt.Errorf("%w: %s drew %.1f mA after %d of %d steps",
				ErrOverCurrent, a.name, ma, moved, effective)
			if derr := a.act.Disable(); derr != nil {
				// The ring may still be pushing against a stop.
				err = errors.Join(err, fmt.Errorf("%w: disable %s driver: %v", ErrHardwareFault, a.name, derr))
			}
			return a.finish(OverCurrent, moved, err)
		}
	}

	return a.finish(Ok, moved, nil)
}

// clamp computes the soft-limited target of a move.
func (a *Axis) clamp(pos, maxSteps uint, requested int, dir stepper.Direction) (uint, error) {
	margin := a.cfg.BackoffMargin
	if maxSteps < 2*margin {
		return 0, fmt.Errorf("%w: %s soft band is empty (max %d, margin %d)", ErrOutOfRange, a.name, maxSteps, margin)
	}
	lo, hi := int64(margin), int64(maxSteps-margin)

	target := int64(pos)
	if dir == stepper.CW {
		target += int64(requested)
	} else {
		target -= int64(requested)
	}
	if target < lo {
		target = lo
	}
	if target > hi {
		target = hi
	}
	return uint(target), nil
}

func (a *Axis) advance(n uint, dir stepper.Direction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if dir == stepper.CW {
		a.position += n
	} else {
		a.position -= n
	}
}

func (a *Axis) step(n uint, dir stepper.Direction) error {
	if err := a.act.Step(n, dir); err != nil {
		return fmt.Errorf("%w: %s step %d %s: %v", ErrHardwareFault, a.name, n, dir, err)
	}
	return nil
}

func (a *Axis) sample() (float64, error) {
	ma, err := a.sensor.Current()
	if err != nil {
		return 0, fmt.Errorf("%w: read current for %s: %v", ErrHardwareFault, a.name, err)
	}
	debug.Sample(a.name, ma, a.cfg.OvercurrentThresholdMA)
	return ma, nil
}

func (a *Axis) finish(status Status, moved uint, err error) (Report, error) {
	a.setLastStatus(status)
	if err != nil {
		debug.Error(err)
	}
	return a.report(status, moved), err
}

func (a *Axis) refuse(status Status, err error) (Report, error) {
	return a.finish(status, 0, err)
}

func (a *Axis) setLastStatus(s Status) {
	a.mu.Lock()
	a.lastStatus = s
	a.mu.Unlock()
}

func (a *Axis) report(status Status, steps uint) Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Report{
		Axis:       a.name,
		Status:     status,
		Calibrated: a.calibrated,
		MaxSteps:   a.maxSteps,
		Position:   a.position,
		Steps:      steps,
	}
}
