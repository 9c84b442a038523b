package stepper

import (
	"errors"
	"testing"
	"time"

	"github.com/cjeanneret/LensGo/internal/hw/gpio"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	calls   []gpioCall
	failPin int
}

type gpioCall struct {
	op    string // "setup", "write"
	pin   int
	level gpio.Level
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	if d.failPin != 0 && pin == d.failPin {
		return errors.New("bus error")
	}
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	return nil
}

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) {
	return gpio.Low, nil
}

func (d *recordingDriver) Close() error {
	return nil
}

func (d *recordingDriver) writeCalls() []gpioCall {
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "write" {
			result = append(result, c)
		}
	}
	return result
}

func (d *recordingDriver) writeCallsForPin(pin int) []gpioCall {
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "write" && c.pin == pin {
			result = append(result, c)
		}
	}
	return result
}

func testConfig() Config {
	return Config{
		Name:        "focus",
		StepPin:     17,
		DirPin:      27,
		EnablePin:   5,
		PulseFreqHz: 1_000_000,
	}
}

func countPulses(writes []gpioCall, stepPin int) int {
	n := 0
	for _, c := range writes {
		if c.pin == stepPin && c.level == gpio.High {
			n++
		}
	}
	return n
}

func TestStepper_StepClockwise(t *testing.T) {
	drv := &recordingDriver{}
	cfg := testConfig()
	s := NewStepper(drv, cfg)
	drv.calls = nil // reset after init

	if err := s.Step(10, CW); err != nil {
		t.Fatalf("Step: %v", err)
	}

	writes := drv.writeCalls()
	if len(writes) == 0 {
		t.Fatal("expected GPIO write calls")
	}
	if writes[0].pin != cfg.DirPin || writes[0].level != gpio.High {
		t.Errorf("first write should set dir pin HIGH, got pin=%d level=%v", writes[0].pin, writes[0].level)
	}
	if n := countPulses(writes, cfg.StepPin); n != 10 {
		t.Errorf("expected 10 step pulses, got %d", n)
	}
}

func TestStepper_StepCounterClockwise(t *testing.T) {
	drv := &recordingDriver{}
	cfg := testConfig()
	s := NewStepper(drv, cfg)
	drv.calls = nil

	if err := s.Step(5, CCW); err != nil {
		t.Fatalf("Step: %v", err)
	}

	writes := drv.writeCalls()
	if len(writes) == 0 {
		t.Fatal("expected GPIO write calls")
	}
	if writes[0].pin != cfg.DirPin || writes[0].level != gpio.Low {
		t.Errorf("first write should set dir pin LOW, got pin=%d level=%v", writes[0].pin, writes[0].level)
	}
	if n := countPulses(writes, cfg.StepPin); n != 5 {
		t.Errorf("expected 5 step pulses, got %d", n)
	}
}

func TestStepper_DirectionWrittenOnlyOnChange(t *testing.T) {
	drv := &recordingDriver{}
	cfg := testConfig()
	s := NewStepper(drv, cfg)
	drv.calls = nil

	_ = s.Step(3, CW)
	_ = s.Step(3, CW)
	_ = s.Step(3, CCW)

	dirWrites := drv.writeCallsForPin(cfg.DirPin)
	if len(dirWrites) != 2 {
		t.Fatalf("expected 2 DIR writes, got %d", len(dirWrites))
	}
	if dirWrites[0].level != gpio.High || dirWrites[1].level != gpio.Low {
		t.Errorf("DIR writes = %v, want HIGH then LOW", dirWrites)
	}
}

func TestStepper_StepZero(t *testing.T) {
	drv := &recordingDriver{}
	s := NewStepper(drv, testConfig())
	drv.calls = nil

	if err := s.Step(0, CW); err != nil {
		t.Fatalf("Step: %v", err)
	}

	if len(drv.calls) != 0 {
		t.Errorf("zero steps should produce no GPIO calls, got %d", len(drv.calls))
	}
}

func TestStepper_NoPulsesWhileDisabled(t *testing.T) {
	drv := &recordingDriver{}
	cfg := testConfig()
	s := NewStepper(drv, cfg)

	if err := s.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	drv.calls = nil

	if err := s.Step(10, CW); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Step while disabled: err = %v, want ErrDisabled", err)
	}
	if len(drv.writeCallsForPin(cfg.StepPin)) != 0 {
		t.Error("disabled stepper must not pulse the step pin")
	}

	if err := s.Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if err := s.Step(2, CW); err != nil {
		t.Fatalf("Step after Enable: %v", err)
	}
}

func TestStepper_EnableDisable(t *testing.T) {
	drv := &recordingDriver{}
	s := NewStepper(drv, testConfig())
	drv.calls = nil

	if err := s.Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	enableCalls := drv.writeCallsForPin(5)
	if len(enableCalls) != 1 || enableCalls[0].level != gpio.Low {
		t.Errorf("Enable should write LOW to enable pin, got %v", enableCalls)
	}
	if !s.Enabled() {
		t.Error("Enabled() = false after Enable")
	}

	drv.calls = nil
	if err := s.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	disableCalls := drv.writeCallsForPin(5)
	if len(disableCalls) != 1 || disableCalls[0].level != gpio.High {
		t.Errorf("Disable should write HIGH to enable pin, got %v", disableCalls)
	}
	if s.Enabled() {
		t.Error("Enabled() = true after Disable")
	}
}

func TestStepper_EnableDisable_NoEnablePin(t *testing.T) {
	drv := &recordingDriver{}
	cfg := testConfig()
	cfg.EnablePin = 0
	s := NewStepper(drv, cfg)
	drv.calls = nil

	if err := s.Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if err := s.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}

	if len(drv.calls) != 0 {
		t.Errorf("with EnablePin=0, Enable/Disable should produce no GPIO calls, got %d", len(drv.calls))
	}
	if err := s.Step(1, CW); !errors.Is(err, ErrDisabled) {
		t.Errorf("enable state must be tracked without a pin, got %v", err)
	}
}

func TestStepper_DefaultPulseFreq(t *testing.T) {
	drv := &recordingDriver{}
	cfg := testConfig()
	cfg.PulseFreqHz = 0
	s := NewStepper(drv, cfg)
	if s.delay != time.Millisecond {
		t.Errorf("default delay = %v, want 1ms", s.delay)
	}
}

func TestHalfPeriod(t *testing.T) {
	cases := []struct {
		freq int
		want time.Duration
	}{
		{1000, 500 * time.Microsecond},
		{500, time.Millisecond},
		{0, time.Millisecond},
		{2_000_000_000, time.Nanosecond},
	}
	for _, tc := range cases {
		if got := HalfPeriod(tc.freq); got != tc.want {
			t.Errorf("HalfPeriod(%d) = %v, want %v", tc.freq, got, tc.want)
		}
	}
}

func TestStepper_StepPulsePattern(t *testing.T) {
	drv := &recordingDriver{}
	cfg := testConfig()
	s := NewStepper(drv, cfg)
	drv.calls = nil

	_ = s.Step(1, CW)

	stepCalls := drv.writeCallsForPin(cfg.StepPin)
	if len(stepCalls) != 2 {
		t.Fatalf("single step should produce 2 writes on step pin, got %d", len(stepCalls))
	}
	if stepCalls[0].level != gpio.High {
		t.Error("first pulse should be HIGH")
	}
	if stepCalls[1].level != gpio.Low {
		t.Error("second pulse should be LOW")
	}
}

func TestStepper_WriteErrorStopsTrain(t *testing.T) {
	drv := &recordingDriver{}
	cfg := testConfig()
	s := NewStepper(drv, cfg)
	drv.failPin = cfg.StepPin

	if err := s.Step(10, CW); err == nil {
		t.Fatal("expected error from failing step pin")
	}
}

func TestDirection_Opposite(t *testing.T) {
	if CW.Opposite() != CCW || CCW.Opposite() != CW {
		t.Error("Opposite should swap CW and CCW")
	}
	if CW.String() != "cw" || CCW.String() != "ccw" {
		t.Errorf("String: got %q/%q", CW.String(), CCW.String())
	}
}
