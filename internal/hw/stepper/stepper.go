package stepper

import (
	"errors"
	"sync"
	"time"

	"github.com/cjeanneret/LensGo/internal/debug"
	"github.com/cjeanneret/LensGo/internal/hw/gpio"
)

// ErrDisabled is returned by Step when the driver has no holding torque.
var ErrDisabled = errors.New("stepper is disabled")

// DefaultPulseFreq is used when Config.PulseFreqHz is not set.
const DefaultPulseFreq = 500

// Direction is the rotation sense of a lens ring.
type Direction int

const (
	CCW Direction = iota
	CW
)

func (d Direction) String() string {
	if d == CW {
		return "cw"
	}
	return "ccw"
}

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	if d == CW {
		return CCW
	}
	return CW
}

// Config holds the hardware configuration for a stepper motor.
type Config struct {
	Name        string
	StepPin     int
	DirPin      int
	EnablePin   int // A4988 ENABLE pin (BCM). 0 = not used. Active LOW (LOW=enabled).
	PulseFreqHz int // step pulses per second
}

// Stepper drives one motor through a STEP/DIR/ENABLE driver.
// Pulses are emitted at a fixed frequency; Step blocks for the
// whole pulse train and cannot be interrupted.
type Stepper struct {
	gpio  gpio.Driver
	cfg   Config
	delay time.Duration // half period of the STEP pulse

	mu        sync.Mutex
	enabled   bool
	direction Direction
	dirSet    bool
}

// NewStepper creates a new stepper motor controller. The driver is
// enabled on creation, like the A4988 default.
func NewStepper(g gpio.Driver, cfg Config) *Stepper {
	_ = g.SetupPin(cfg.StepPin, gpio.Output)
	_ = g.SetupPin(cfg.DirPin, gpio.Output)

	if cfg.PulseFreqHz <= 0 {
		cfg.PulseFreqHz = DefaultPulseFreq
	}

	s := &Stepper{
		gpio:    g,
		cfg:     cfg,
		delay:   HalfPeriod(cfg.PulseFreqHz),
		enabled: true,
	}

	// A4988 ENABLE: active LOW. LOW = enabled, HIGH = disabled.
	if cfg.EnablePin > 0 {
		_ = g.SetupPin(cfg.EnablePin, gpio.Output)
		_ = g.WritePin(cfg.EnablePin, gpio.Low)
	}

	return s
}

// HalfPeriod converts a pulse frequency to the delay per half-cycle.
func HalfPeriod(freqHz int) time.Duration {
	if freqHz <= 0 {
		freqHz = DefaultPulseFreq
	}
	d := time.Second / time.Duration(2*freqHz)
	if d <= 0 {
		d = time.Nanosecond
	}
	return d
}

// Name returns the configured motor name.
func (s *Stepper) Name() string {
	return s.cfg.Name
}

// Enabled reports whether the driver currently holds torque.
func (s *Stepper) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Step emits count pulses in direction dir. Zero pulses is a no-op.
func (s *Stepper) Step(count uint, dir Direction) error {
	if count == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return ErrDisabled
	}

	debug.Move(s.cfg.Name, count, dir.String())

	if !s.dirSet || s.direction != dir {
		level := gpio.Low
		if dir == CW {
			level = gpio.High
		}
		if err := s.gpio.WritePin(s.cfg.DirPin, level); err != nil {
			return err
		}
		s.direction = dir
		s.dirSet = true
	}

	for i := uint(0); i < count; i++ {
		if err := s.stepPulse(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stepper) stepPulse() error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(s.delay)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(s.delay)
	return nil
}

// Enable turns on the motor driver (A4988 ENABLE=LOW). Motors hold position.
func (s *Stepper) Enable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.EnablePin > 0 {
		if err := s.gpio.WritePin(s.cfg.EnablePin, gpio.Low); err != nil {
			return err
		}
	}
	s.enabled = true
	return nil
}

// Disable turns off the motor driver (A4988 ENABLE=HIGH). The ring
// freewheels, so the open-loop position is no longer guaranteed.
func (s *Stepper) Disable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.EnablePin > 0 {
		if err := s.gpio.WritePin(s.cfg.EnablePin, gpio.High); err != nil {
			return err
		}
	}
	s.enabled = false
	return nil
}
