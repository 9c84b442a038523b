package current

import (
	"testing"

	"periph.io/x/conn/v3/physic"
)

func TestMilliAmps(t *testing.T) {
	cases := []struct {
		name string
		in   physic.ElectricCurrent
		want float64
	}{
		{"zero", 0, 0},
		{"one_amp", physic.Ampere, 1000},
		{"milli", 250 * physic.MilliAmpere, 250},
		{"reversed_shunt", -420 * physic.MilliAmpere, 420},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MilliAmps(tc.in); got != tc.want {
				t.Errorf("MilliAmps(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
