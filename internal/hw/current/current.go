// Package current reads the motor supply current shared by both lens
// ring drivers.
package current

import (
	"math"

	"periph.io/x/conn/v3/physic"
)

// Sensor returns one instantaneous motor current sample in mA.
// Both axes draw through the same shunt, so a reading taken while two
// motors are energised cannot be attributed to either of them.
type Sensor interface {
	Current() (float64, error)
}

// MilliAmps converts a periph current value to mA, ignoring shunt polarity.
func MilliAmps(c physic.ElectricCurrent) float64 {
	return math.Abs(float64(c) / float64(physic.MilliAmpere))
}
