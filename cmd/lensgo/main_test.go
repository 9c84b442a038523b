package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cjeanneret/LensGo/internal/config"
	"github.com/cjeanneret/LensGo/internal/hw/sim"
	"github.com/cjeanneret/LensGo/internal/hw/stepper"
	"github.com/cjeanneret/LensGo/internal/logic/axis"
	"github.com/cjeanneret/LensGo/internal/logic/motion"
)

// ---------- webPortFlag ----------

func TestWebPortFlag_EmptyString(t *testing.T) {
	w := &webPortFlag{defaultPort: 8080}
	if err := w.Set(""); err != nil {
		t.Fatalf("Set(\"\") error: %v", err)
	}
	if w.port() != 8080 {
		t.Errorf("expected default port 8080, got %d", w.port())
	}
}

func TestWebPortFlag_ValidPorts(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"8080", 8080},
		{"1", 1},
		{"65535", 65535},
		{"3000", 3000},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(tc.input); err != nil {
				t.Fatalf("Set(%q) error: %v", tc.input, err)
			}
			if w.port() != tc.want {
				t.Errorf("port() = %d, want %d", w.port(), tc.want)
			}
		})
	}
}

func TestWebPortFlag_InvalidPorts(t *testing.T) {
	cases := []string{"0", "65536", "-1", "abc", "8080.5"}
	for _, input := range cases {
		t.Run(input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(input); err == nil {
				t.Errorf("Set(%q) should fail, got nil", input)
			}
		})
	}
}

func TestWebPortFlag_String(t *testing.T) {
	w := &webPortFlag{val: 0}
	if s := w.String(); s != "0" {
		t.Errorf("String() = %q, want \"0\"", s)
	}
	w.val = 9090
	if s := w.String(); s != "9090" {
		t.Errorf("String() = %q, want \"9090\"", s)
	}
}

// ---------- wiring ----------

const mockYAML = `
focus_stepper:
  step_pin: 17
  dir_pin: 27
  enable_pin: 5
aperture_stepper:
  step_pin: 22
  dir_pin: 23
  enable_pin: 6
focus_axis:
  overcurrent_threshold_ma: 700
  backoff_margin: 20
  probe_quantum: 10
  probe_ceiling: 200
aperture_axis:
  overcurrent_threshold_ma: 650
  backoff_margin: 20
  probe_quantum: 10
  probe_ceiling: 200
simulator:
  focus_travel_steps: 400
  aperture_travel_steps: 300
defaults:
  pulse_freq_hz: 2000000000
  busy_wait_ms: 250
  mock_gpio: true
`

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(mockYAML))
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}
	return cfg
}

func newTestBench(t *testing.T) (*bench, *hardware) {
	t.Helper()
	cfg := newTestConfig(t)
	hw, err := openHardware(cfg)
	if err != nil {
		t.Fatalf("openHardware: %v", err)
	}
	t.Cleanup(func() { hw.Close() })

	ctrl, err := newController(cfg, hw.driver, hw.sensor)
	if err != nil {
		t.Fatalf("newController: %v", err)
	}
	return &bench{ctx: context.Background(), ctrl: ctrl}, hw
}

func TestOpenHardware_Mock(t *testing.T) {
	cfg := newTestConfig(t)
	hw, err := openHardware(cfg)
	if err != nil {
		t.Fatalf("openHardware: %v", err)
	}
	defer hw.Close()

	rig, ok := hw.driver.(*sim.Rig)
	if !ok {
		t.Fatalf("driver = %T, want *sim.Rig", hw.driver)
	}
	if hw.sensor != rig {
		t.Error("mock sensor should be the rig itself")
	}
	if pos, ok := rig.Position(motion.FocusAxis); !ok || pos != 200 {
		t.Errorf("focus starts at %d (%t), want mid travel 200", pos, ok)
	}
	if pos, ok := rig.Position(motion.ApertureAxis); !ok || pos != 150 {
		t.Errorf("aperture starts at %d (%t), want mid travel 150", pos, ok)
	}
}

func TestNewController_UsesAxisConfig(t *testing.T) {
	b, _ := newTestBench(t)

	focus, _ := b.ctrl.Resolve("focus")
	aperture, _ := b.ctrl.Resolve("aperture")
	if got := focus.Config().OvercurrentThresholdMA; got != 700 {
		t.Errorf("focus threshold = %v, want 700", got)
	}
	if got := aperture.Config().OvercurrentThresholdMA; got != 650 {
		t.Errorf("aperture threshold = %v, want 650", got)
	}
	if got := focus.Config().BackoffMargin; got != 20 {
		t.Errorf("focus margin = %d, want 20", got)
	}
}

// ---------- bench shell commands ----------

func TestBench_AxesAndStatus(t *testing.T) {
	b, _ := newTestBench(t)

	var out bytes.Buffer
	if err := b.axes(&out, nil); err != nil {
		t.Fatalf("axes: %v", err)
	}
	if !strings.Contains(out.String(), "focus") || !strings.Contains(out.String(), "aperture") {
		t.Errorf("axes output = %q", out.String())
	}

	out.Reset()
	if err := b.status(&out, []string{"aperture"}); err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out.String(), "calibrated=false") {
		t.Errorf("status output = %q", out.String())
	}

	if err := b.status(&out, nil); !errors.Is(err, errUsage) {
		t.Errorf("status without axis: err = %v, want usage", err)
	}
	if err := b.status(&out, []string{"zoom"}); !errors.Is(err, motion.ErrUnknownAxis) {
		t.Errorf("status zoom: err = %v, want unknown axis", err)
	}
}

func TestBench_CalibrateAndMove(t *testing.T) {
	b, _ := newTestBench(t)

	var out bytes.Buffer
	if err := b.calibrate(&out, []string{"focus"}); err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if !strings.Contains(out.String(), "focus: ok") || !strings.Contains(out.String(), "calibrated=true") {
		t.Errorf("calibrate output = %q", out.String())
	}

	before := b.ctrl.Axes()[0].Snapshot().Position
	out.Reset()
	if err := b.move(&out, []string{"focus", "50", "ccw"}); err != nil {
		t.Fatalf("move: %v", err)
	}
	if !strings.Contains(out.String(), "steps=50") {
		t.Errorf("move output = %q", out.String())
	}
	if after := b.ctrl.Axes()[0].Snapshot().Position; after != before-50 {
		t.Errorf("position = %d, want %d", after, before-50)
	}

	out.Reset()
	err := b.move(&out, []string{"aperture", "10", "cw"})
	if !errors.Is(err, axis.ErrUncalibrated) || !strings.Contains(out.String(), "aperture: uncalibrated") {
		t.Errorf("uncalibrated move output = %q, err = %v", out.String(), err)
	}
}

func TestBench_MoveUsage(t *testing.T) {
	b, _ := newTestBench(t)
	var out bytes.Buffer

	for _, args := range [][]string{
		{"focus"},
		{"focus", "ten", "cw"},
		{"focus", "10", "up"},
	} {
		if err := b.move(&out, args); !errors.Is(err, errUsage) {
			t.Errorf("move %v: err = %v, want usage", args, err)
		}
	}

	out.Reset()
	if err := b.move(&out, []string{"zoom", "10", "cw"}); !errors.Is(err, motion.ErrUnknownAxis) {
		t.Errorf("move zoom: err = %v, want unknown axis", err)
	}
	if out.Len() != 0 {
		t.Errorf("unknown axis should print no report, got %q", out.String())
	}
}

func TestParseDirection(t *testing.T) {
	cases := map[string]stepper.Direction{
		"cw":  stepper.CW,
		"1":   stepper.CW,
		"ccw": stepper.CCW,
		"0":   stepper.CCW,
	}
	for in, want := range cases {
		got, err := parseDirection(in)
		if err != nil || got != want {
			t.Errorf("parseDirection(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := parseDirection("CW"); err == nil {
		t.Error("parseDirection is case sensitive")
	}
}
