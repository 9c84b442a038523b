// Package sim models the lens rig on a development machine: two rings
// with hard stops, their STEP/DIR/ENABLE drivers and the shared current
// shunt. A Rig is both a gpio.Driver and a current.Sensor.
package sim

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/LensGo/internal/debug"
	"github.com/cjeanneret/LensGo/internal/hw/gpio"
)

// Motor describes one simulated ring.
type Motor struct {
	Name        string
	StepPin     int
	DirPin      int
	EnablePin   int
	TravelSteps int // distance between the two hard stops
	StartSteps  int // initial position; negative means mid travel
}

// Config is the electrical model shared by all motors.
type Config struct {
	IdleMA    float64 // board quiescent draw
	HoldingMA float64 // per energised motor
	StallMA   float64 // extra draw of a motor pushing against a stop
	Motors    []Motor

	// Pins stores the pin levels written through the rig. Nil means a
	// fresh gpio.MockDriver.
	Pins gpio.Driver
}

type motor struct {
	Motor
	pos     int
	dirHigh bool
	enabled bool
	stalled bool
	step    gpio.Level
}

// Rig is a thread-safe simulation of the whole lens head.
type Rig struct {
	mu       sync.Mutex
	cfg      Config
	motors   []*motor
	byPin    map[int]*motor
	pins     gpio.Driver
	stuck    *float64
	failRead error
	record   bool
	pulses   []string
}

// NewRig builds a rig; pins must be unique across motors.
func NewRig(cfg Config) (*Rig, error) {
	r := &Rig{
		cfg:   cfg,
		byPin: make(map[int]*motor),
		pins:  cfg.Pins,
	}
	if r.pins == nil {
		r.pins = &gpio.MockDriver{}
	}
	for _, mm := range cfg.Motors {
		if mm.TravelSteps <= 0 {
			return nil, fmt.Errorf("sim motor %s: travel must be > 0", mm.Name)
		}
		m := &motor{Motor: mm, pos: mm.StartSteps, enabled: true}
		if m.pos < 0 || m.pos > mm.TravelSteps {
			m.pos = mm.TravelSteps / 2
		}
		for _, pin := range []int{mm.StepPin, mm.DirPin, mm.EnablePin} {
			if pin == 0 {
				continue
			}
			if _, dup := r.byPin[pin]; dup {
				return nil, fmt.Errorf("sim motor %s: pin %d already in use", mm.Name, pin)
			}
			r.byPin[pin] = m
		}
		r.motors = append(r.motors, m)
	}
	debug.Info("Using SIMULATED rig (%d motors)", len(r.motors))
	return r, nil
}

func (r *Rig) SetupPin(pin int, mode gpio.PinMode) error {
	return r.pins.SetupPin(pin, mode)
}

func (r *Rig) WritePin(pin int, level gpio.Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.pins.WritePin(pin, level); err != nil {
		return err
	}
	m, ok := r.byPin[pin]
	if !ok {
		return nil
	}

	switch pin {
	case m.DirPin:
		m.dirHigh = level == gpio.High
	case m.EnablePin:
		m.enabled = level == gpio.Low
		if !m.enabled {
			m.stalled = false
		}
	case m.StepPin:
		rising := m.step == gpio.Low && level == gpio.High
		m.step = level
		if rising && m.enabled {
			r.pulse(m)
		}
	}
	return nil
}

// pulse advances one motor by a single step, stalling at the stops.
func (r *Rig) pulse(m *motor) {
	if r.record {
		r.pulses = append(r.pulses, m.Name)
	}
	next := m.pos - 1
	if m.dirHigh {
		next = m.pos + 1
	}
	if next < 0 || next > m.TravelSteps {
		m.stalled = true
		return
	}
	m.pos = next
	m.stalled = false
}

func (r *Rig) ReadPin(pin int) (gpio.Level, error) {
	return r.pins.ReadPin(pin)
}

func (r *Rig) Close() error {
	debug.Trace("Closing simulated rig")
	return r.pins.Close()
}

// Current returns the modelled shunt current in mA.
func (r *Rig) Current() (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failRead != nil {
		return 0, r.failRead
	}
	if r.stuck != nil {
		return *r.stuck, nil
	}

	ma := r.cfg.IdleMA
	for _, m := range r.motors {
		if !m.enabled {
			continue
		}
		ma += r.cfg.HoldingMA
		if m.stalled {
			ma += r.cfg.StallMA
		}
	}
	return ma, nil
}

// Stick freezes the sensor at a fixed reading, like a shorted shunt amp.
func (r *Rig) Stick(ma float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stuck = &ma
}

// Unstick restores the modelled reading.
func (r *Rig) Unstick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stuck = nil
}

// FailReads makes every Current call return err; nil clears it.
func (r *Rig) FailReads(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failRead = err
}

// Position returns the physical position of a motor, counted from its
// lower hard stop.
func (r *Rig) Position(name string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.motors {
		if m.Name == name {
			return m.pos, true
		}
	}
	return 0, false
}

// SetTravel moves a hard stop, e.g. to simulate a jammed ring.
func (r *Rig) SetTravel(name string, travel int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.motors {
		if m.Name == name {
			m.TravelSteps = travel
			if m.pos > travel {
				m.pos = travel
			}
		}
	}
}

// Record starts or stops logging the owner of every step pulse.
func (r *Rig) Record(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record = on
	if on {
		r.pulses = nil
	}
}

// Pulses returns the recorded pulse owners in emission order.
func (r *Rig) Pulses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.pulses))
	copy(out, r.pulses)
	return out
}
