package axis

import (
	"errors"
	"fmt"
)

var (
	// ErrHardwareFault means no hard stop was found within the probe
	// ceiling, or the sensor or driver misbehaved.
	ErrHardwareFault = errors.New("hardware fault")
	// ErrOverCurrent means the stall threshold was reached during a move.
	ErrOverCurrent = errors.New("over current")
	// ErrUncalibrated means a move was requested before calibration.
	ErrUncalibrated = errors.New("axis not calibrated")
	// ErrAxisBusy means another operation holds the motion guard.
	ErrAxisBusy = errors.New("axis busy")
	// ErrOutOfRange means the requested or clamped target is invalid.
	ErrOutOfRange = errors.New("out of range")
)

// Status is the outcome of the last axis operation.
type Status int

const (
	Ok Status = iota
	HardwareFault
	OverCurrent
	Uncalibrated
	AxisBusy
	OutOfRange
)

var statusNames = map[Status]string{
	Ok:            "ok",
	HardwareFault: "hardware_fault",
	OverCurrent:   "over_current",
	Uncalibrated:  "uncalibrated",
	AxisBusy:      "axis_busy",
	OutOfRange:    "out_of_range",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StatusOf maps an error returned by an axis operation to its Status.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return Ok
	case errors.Is(err, ErrOverCurrent):
		return OverCurrent
	case errors.Is(err, ErrUncalibrated):
		return Uncalibrated
	case errors.Is(err, ErrAxisBusy):
		return AxisBusy
	case errors.Is(err, ErrOutOfRange):
		return OutOfRange
	default:
		return HardwareFault
	}
}

// Report is the bookkeeping returned by every axis operation. It is
// filled in on failure too, so partial motion is never hidden.
type Report struct {
	Axis       string `json:"axis"`
	Status     Status `json:"status"`
	Calibrated bool   `json:"calibrated"`
	MaxSteps   uint   `json:"max_steps"`
	Position   uint   `json:"position"`
	Steps      uint   `json:"steps"` // pulses actually emitted by a move
}

// Snapshot is the observable state of an axis.
type Snapshot struct {
	Axis       string `json:"axis"`
	Calibrated bool   `json:"calibrated"`
	MaxSteps   uint   `json:"max_steps"`
	Position   uint   `json:"position"`
	LastStatus Status `json:"last_status"`
	Active     bool   `json:"active"`
}
