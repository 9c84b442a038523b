package current

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/LensGo/internal/debug"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ina219"
	"periph.io/x/host/v3"
)

// INA219Config describes the INA219 wiring.
type INA219Config struct {
	Bus          string  // I2C bus name, "" for the first one found
	Address      int     // 7-bit address, 0x40 by default
	ShuntOhms    float64 // shunt resistor value
	MaxCurrentMA float64 // full scale used to compute the calibration register
}

// INA219 is a Sensor backed by a TI INA219 on I2C.
type INA219 struct {
	mu  sync.Mutex
	bus i2c.BusCloser
	dev *ina219.Dev
}

// OpenINA219 initialises periph, opens the bus and calibrates the chip.
// It must be called once at startup before the first sample.
func OpenINA219(cfg INA219Config) (*INA219, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}

	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("open I2C bus %q: %w", cfg.Bus, err)
	}

	opts := ina219.DefaultOpts
	if cfg.Address != 0 {
		opts.Address = cfg.Address
	}
	if cfg.ShuntOhms > 0 {
		opts.SenseResistor = physic.ElectricResistance(cfg.ShuntOhms * float64(physic.Ohm))
	}
	if cfg.MaxCurrentMA > 0 {
		opts.MaxCurrent = physic.ElectricCurrent(cfg.MaxCurrentMA * float64(physic.MilliAmpere))
	}

	dev, err := ina219.New(bus, &opts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("configure INA219 at 0x%02x: %w", opts.Address, err)
	}

	debug.Info("INA219 ready on bus %q address 0x%02x (shunt %v, max %v)",
		cfg.Bus, opts.Address, opts.SenseResistor, opts.MaxCurrent)

	return &INA219{bus: bus, dev: dev}, nil
}

// Current samples the shunt once.
func (s *INA219) Current() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pm, err := s.dev.Sense()
	if err != nil {
		return 0, fmt.Errorf("INA219 sense: %w", err)
	}
	return MilliAmps(pm.Current), nil
}

// Close releases the I2C bus.
func (s *INA219) Close() error {
	return s.bus.Close()
}
