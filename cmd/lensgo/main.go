package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cjeanneret/LensGo/internal/config"
	"github.com/cjeanneret/LensGo/internal/debug"
	"github.com/cjeanneret/LensGo/internal/hw/current"
	"github.com/cjeanneret/LensGo/internal/hw/gpio"
	"github.com/cjeanneret/LensGo/internal/hw/sim"
	"github.com/cjeanneret/LensGo/internal/hw/stepper"
	"github.com/cjeanneret/LensGo/internal/logic/axis"
	"github.com/cjeanneret/LensGo/internal/logic/motion"
	"github.com/cjeanneret/LensGo/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	shell := flag.Bool("shell", false, "start the interactive bench shell")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if webPort.port() == 0 {
		webPort.val = cfg.Defaults.WebPort
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", debug.Level())
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)

	debug.Step(1, "Opening hardware")
	hw, err := openHardware(cfg)
	if err != nil {
		log.Fatalf("init hardware failed: %v", err)
	}
	defer func() {
		if err := hw.Close(); err != nil {
			log.Printf("closing hardware failed: %v", err)
		}
	}()

	debug.Step(2, "Building lens axes")
	ctrl, err := newController(cfg, hw.driver, hw.sensor)
	if err != nil {
		log.Fatalf("init axes failed: %v", err)
	}
	defer ctrl.Wait()

	broadcaster := web.NewStatusBroadcaster()
	ctrl.SetIndicator(broadcaster)
	if webPort.port() > 0 {
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	}

	startup := func() {
		if !cfg.Defaults.CalibrateOnStart {
			return
		}
		debug.Step(3, "Calibrating axes")
		if err := ctrl.CalibrateAll(ctx); err != nil {
			log.Printf("startup calibration: %v", err)
		}
	}

	switch {
	case *shell:
		startup()
		if port := webPort.port(); port > 0 {
			srv := web.NewServer(fmt.Sprintf(":%d", port), ctrl, broadcaster)
			go func() {
				if err := srv.Run(ctx); err != nil {
					log.Printf("web server: %v", err)
				}
			}()
		}
		runShell(ctx, ctrl)

	case webPort.port() > 0:
		// Calibrate in the background so progress shows on the status stream.
		go startup()
		srv := web.NewServer(fmt.Sprintf(":%d", webPort.port()), ctrl, broadcaster)
		if err := srv.Run(ctx); err != nil {
			log.Fatalf("web server: %v", err)
		}

	default:
		startup()
		printStatus(os.Stdout, ctrl)
	}
}

// hardware bundles the pin driver and the shared current sensor.
type hardware struct {
	driver gpio.Driver
	sensor current.Sensor
	closer []io.Closer
}

func (h *hardware) Close() error {
	var errs []error
	for i := len(h.closer) - 1; i >= 0; i-- {
		if err := h.closer[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openHardware selects real GPIO and the INA219, or the simulated rig
// on top of the mock driver when mock_gpio is set.
func openHardware(cfg *config.Config) (*hardware, error) {
	driver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return nil, fmt.Errorf("init GPIO: %w", err)
	}

	if cfg.Defaults.MockGPIO {
		rig, err := sim.NewRig(simConfig(cfg, driver))
		if err != nil {
			driver.Close()
			return nil, fmt.Errorf("init simulated rig: %w", err)
		}
		return &hardware{driver: rig, sensor: rig, closer: []io.Closer{rig}}, nil
	}

	sensor, err := current.OpenINA219(current.INA219Config{
		Bus:          cfg.CurrentSensor.Bus,
		Address:      cfg.CurrentSensor.Address,
		ShuntOhms:    cfg.CurrentSensor.ShuntOhms,
		MaxCurrentMA: cfg.CurrentSensor.MaxCurrentMA,
	})
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("init current sensor: %w", err)
	}
	return &hardware{driver: driver, sensor: sensor, closer: []io.Closer{driver, sensor}}, nil
}

func simConfig(cfg *config.Config, pins gpio.Driver) sim.Config {
	motor := func(name string, s config.StepperConfig, travel int) sim.Motor {
		return sim.Motor{
			Name:        name,
			StepPin:     s.StepPin,
			DirPin:      s.DirPin,
			EnablePin:   s.EnablePin,
			TravelSteps: travel,
			StartSteps:  -1,
		}
	}
	return sim.Config{
		IdleMA:    cfg.Simulator.IdleMA,
		HoldingMA: cfg.Simulator.HoldingMA,
		StallMA:   cfg.Simulator.StallMA,
		Pins:      pins,
		Motors: []sim.Motor{
			motor(motion.FocusAxis, cfg.FocusStepper, cfg.Simulator.FocusTravelSteps),
			motor(motion.ApertureAxis, cfg.ApertureStepper, cfg.Simulator.ApertureTravelSteps),
		},
	}
}

func axisConfig(a config.AxisConfig) axis.Config {
	return axis.Config{
		OvercurrentThresholdMA: a.OvercurrentThresholdMA,
		BackoffMargin:          a.BackoffMargin,
		ProbeQuantum:           a.ProbeQuantum,
		ProbeCeiling:           a.ProbeCeiling,
	}
}

// newController builds both axes around one guard and one sensor.
func newController(cfg *config.Config, driver gpio.Driver, sensor current.Sensor) (*motion.Controller, error) {
	guard := axis.NewGuard(cfg.BusyWait())

	build := func(name string, s config.StepperConfig, a config.AxisConfig) (*axis.Axis, error) {
		st := stepper.NewStepper(driver, stepper.Config{
			Name:        name,
			StepPin:     s.StepPin,
			DirPin:      s.DirPin,
			EnablePin:   s.EnablePin,
			PulseFreqHz: cfg.Defaults.PulseFreqHz,
		})
		debug.PrintStruct(name+" stepper config", s)
		debug.PrintStruct(name+" axis config", a)
		return axis.New(name, st, sensor, guard, axisConfig(a))
	}

	focus, err := build(motion.FocusAxis, cfg.FocusStepper, cfg.FocusAxis)
	if err != nil {
		return nil, err
	}
	aperture, err := build(motion.ApertureAxis, cfg.ApertureStepper, cfg.ApertureAxis)
	if err != nil {
		return nil, err
	}
	return motion.NewController(focus, aperture, guard, cfg.SettleDelay()), nil
}

func printStatus(w io.Writer, ctrl *motion.Controller) {
	for _, a := range ctrl.Axes() {
		s := a.Snapshot()
		fmt.Fprintf(w, "%-8s calibrated=%-5t max=%-6d position=%-6d last=%s\n",
			s.Axis, s.Calibrated, s.MaxSteps, s.Position, s.LastStatus)
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
