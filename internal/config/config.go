package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// StepperConfig holds the wiring of one STEP/DIR driver.
type StepperConfig struct {
	StepPin   int `yaml:"step_pin"`
	DirPin    int `yaml:"dir_pin"`
	EnablePin int `yaml:"enable_pin"` // A4988 ENABLE pin (BCM). 0 = not used. Active LOW.
}

// AxisConfig holds the calibration and safety parameters of one ring.
type AxisConfig struct {
	OvercurrentThresholdMA float64 `yaml:"overcurrent_threshold_ma"` // stall threshold
	BackoffMargin          uint    `yaml:"backoff_margin"`           // steps kept away from each hard stop
	ProbeQuantum           uint    `yaml:"probe_quantum"`            // steps between two current samples
	ProbeCeiling           uint    `yaml:"probe_ceiling"`            // max quanta searched per hard stop
}

// CurrentSensorConfig describes the INA219 shared by both motors.
type CurrentSensorConfig struct {
	Bus           string  `yaml:"bus" env:"LENSGO_I2C_BUS"` // I2C bus name, "" = first available
	Address       int     `yaml:"address"`                  // 7-bit address (default 0x40)
	ShuntOhms     float64 `yaml:"shunt_ohms"`               // shunt resistor value
	MaxCurrentMA  float64 `yaml:"max_current_ma"`           // full-scale current
	IdleCurrentMA float64 `yaml:"idle_current_ma"`          // optional: measured no-load draw
}

// SimulatorConfig models the rig when mock_gpio is set.
type SimulatorConfig struct {
	FocusTravelSteps    int     `yaml:"focus_travel_steps"`
	ApertureTravelSteps int     `yaml:"aperture_travel_steps"`
	IdleMA              float64 `yaml:"idle_ma"`
	HoldingMA           float64 `yaml:"holding_ma"`
	StallMA             float64 `yaml:"stall_ma"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	PulseFreqHz      int  `yaml:"pulse_freq_hz"`                                      // step pulses per second
	SettleMs         int  `yaml:"settle_ms"`                                          // pause between startup calibrations
	BusyWaitMs       int  `yaml:"busy_wait_ms" env:"LENSGO_BUSY_WAIT_MS"`             // 0 = refuse at once when another axis moves
	CalibrateOnStart bool `yaml:"calibrate_on_start" env:"LENSGO_CALIBRATE_ON_START"` // run the startup calibration sequence
	DebugLevel       int  `yaml:"debug_level" env:"LENSGO_DEBUG"`                     // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO         bool `yaml:"mock_gpio" env:"LENSGO_MOCK_GPIO"`                   // simulated rig instead of real hardware
	WebPort          int  `yaml:"web_port" env:"LENSGO_WEB_PORT"`                     // 0 = no web server unless -web is given
}

// Config aggregates all application configuration.
type Config struct {
	FocusStepper    StepperConfig       `yaml:"focus_stepper"`
	ApertureStepper StepperConfig       `yaml:"aperture_stepper"`
	FocusAxis       AxisConfig          `yaml:"focus_axis"`
	ApertureAxis    AxisConfig          `yaml:"aperture_axis"`
	CurrentSensor   CurrentSensorConfig `yaml:"current_sensor"`
	Simulator       SimulatorConfig     `yaml:"simulator"`
	Defaults        DefaultsConfig      `yaml:"defaults"`
}

// MaxConfigFileBytes bounds the size of a configuration file.
const MaxConfigFileBytes = 64 << 10

// Load reads a YAML file, applies environment overrides and defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Defaults.PulseFreqHz <= 0 {
		c.Defaults.PulseFreqHz = 500
	}
	if c.Defaults.SettleMs <= 0 {
		c.Defaults.SettleMs = 1000 // original firmware pauses 1s between rings
	}
	if c.CurrentSensor.Address == 0 {
		c.CurrentSensor.Address = 0x40
	}
	if c.CurrentSensor.ShuntOhms <= 0 {
		c.CurrentSensor.ShuntOhms = 0.1
	}
	if c.CurrentSensor.MaxCurrentMA <= 0 {
		c.CurrentSensor.MaxCurrentMA = 2000
	}
	for _, a := range []*AxisConfig{&c.FocusAxis, &c.ApertureAxis} {
		if a.BackoffMargin == 0 {
			a.BackoffMargin = 50
		}
		if a.ProbeQuantum == 0 {
			a.ProbeQuantum = 10
		}
		if a.ProbeCeiling == 0 {
			a.ProbeCeiling = 1000
		}
	}
	if c.Simulator.FocusTravelSteps <= 0 {
		c.Simulator.FocusTravelSteps = 4100
	}
	if c.Simulator.ApertureTravelSteps <= 0 {
		c.Simulator.ApertureTravelSteps = 1800
	}
	if c.Simulator.IdleMA <= 0 {
		c.Simulator.IdleMA = 80
	}
	if c.Simulator.HoldingMA <= 0 {
		c.Simulator.HoldingMA = 120
	}
	if c.Simulator.StallMA <= 0 {
		c.Simulator.StallMA = 900
	}
}

// Validate checks the values defaults cannot fix.
func (c *Config) Validate() error {
	axes := map[string]AxisConfig{"focus_axis": c.FocusAxis, "aperture_axis": c.ApertureAxis}
	for name, a := range axes {
		if a.OvercurrentThresholdMA <= 0 {
			return fmt.Errorf("%s.overcurrent_threshold_ma must be > 0", name)
		}
		if idle := c.CurrentSensor.IdleCurrentMA; idle > 0 && a.OvercurrentThresholdMA <= idle {
			return fmt.Errorf("%s.overcurrent_threshold_ma (%.1f) must be above current_sensor.idle_current_ma (%.1f)",
				name, a.OvercurrentThresholdMA, idle)
		}
	}

	steppers := map[string]StepperConfig{"focus_stepper": c.FocusStepper, "aperture_stepper": c.ApertureStepper}
	used := make(map[int]string)
	for name, s := range steppers {
		if s.StepPin <= 0 || s.DirPin <= 0 {
			return fmt.Errorf("%s: step_pin and dir_pin are required", name)
		}
		for _, pin := range []int{s.StepPin, s.DirPin, s.EnablePin} {
			if pin == 0 {
				continue
			}
			if other, ok := used[pin]; ok {
				return fmt.Errorf("%s: pin %d already used by %s", name, pin, other)
			}
			used[pin] = name
		}
	}

	if c.Defaults.BusyWaitMs < 0 {
		return fmt.Errorf("busy_wait_ms must be >= 0, got %d", c.Defaults.BusyWaitMs)
	}
	if c.Defaults.WebPort < 0 || c.Defaults.WebPort > 65535 {
		return fmt.Errorf("web_port must be 0-65535, got %d", c.Defaults.WebPort)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be 0-4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// ValidateConfigPath accepts only .yaml files inside a configs/ directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config file must have a .yaml extension: %s", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config file must live in a configs/ directory: %s", path)
	}
	return nil
}

// SettleDelay returns the pause between the two startup calibrations.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Defaults.SettleMs) * time.Millisecond
}

// BusyWait returns how long a request waits for the other axis.
func (c *Config) BusyWait() time.Duration {
	return time.Duration(c.Defaults.BusyWaitMs) * time.Millisecond
}
