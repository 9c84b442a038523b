package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/LensGo/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// rpiPin is a configured BCM line and the mode it was set to.
type rpiPin struct {
	pin  rpio.Pin
	mode PinMode
}

// RPi drives the stepper and enable lines through /dev/gpiomem.
type RPi struct {
	mu   sync.Mutex
	pins map[int]rpiPin
}

// NewRPi maps GPIO memory. It needs a Raspberry Pi and access to
// /dev/gpiomem (or root).
func NewRPi() (*RPi, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	debug.Verbose("GPIO memory mapped")

	return &RPi{pins: make(map[int]rpiPin)}, nil
}

func (r *RPi) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.line(pin, mode, true)
	return err
}

func (r *RPi) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	r.mu.Lock()
	p, err := r.line(pin, Output, false)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if p.mode != Output {
		return fmt.Errorf("write pin %d: configured as input", pin)
	}

	if level == High {
		p.pin.High()
	} else {
		p.pin.Low()
	}
	return nil
}

// ReadPin returns the line level. Output lines are read back without
// being reconfigured, so a held ENABLE stays driven.
func (r *RPi) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	r.mu.Lock()
	p, err := r.line(pin, Input, false)
	r.mu.Unlock()
	if err != nil {
		return Low, err
	}

	if p.pin.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

// line returns the configured pin, setting it up with mode when it is
// new or when force is set. Callers hold r.mu.
func (r *RPi) line(pin int, mode PinMode, force bool) (rpiPin, error) {
	if p, ok := r.pins[pin]; ok && !force {
		return p, nil
	}

	p := rpiPin{pin: rpio.Pin(pin), mode: mode}
	switch mode {
	case Input:
		p.pin.Input()
	case Output:
		p.pin.Output()
	default:
		return rpiPin{}, fmt.Errorf("setup pin %d: unknown mode %d", pin, mode)
	}
	r.pins[pin] = p
	return p, nil
}

// Close releases the GPIO memory map. Pins are left as they are:
// the stepper drivers keep holding torque until power is removed.
func (r *RPi) Close() error {
	debug.Trace("GPIO Close (real driver)")
	return rpio.Close()
}
