package calibrate

import (
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/config"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/types"
)

// Apply adds the device offsets to a decoded reading. The temperature offset
// is in the reporting unit: with Fahrenheit it is added on the Fahrenheit
// scale and the result converted back, so the reading stays in Celsius.
func Apply(r types.Reading, dev config.Device, unit types.Unit) types.Reading {
	if r.Temperature != nil && dev.CalibrateTemp != 0 {
		t := *r.Temperature
		if unit == types.Fahrenheit {
			t = FToC(CToF(t) + dev.CalibrateTemp)
		} else {
			t += dev.CalibrateTemp
		}
		r.Temperature = &t
	}
	if r.Humidity != nil && dev.CalibrateHumidity != 0 {
		h := *r.Humidity + dev.CalibrateHumidity
		r.Humidity = &h
	}
	return r
}

// CToF converts Celsius to Fahrenheit.
func CToF(c float64) float64 {
	return c*9.0/5.0 + 32.0
}

// FToC converts Fahrenheit to Celsius.
func FToC(f float64) float64 {
	return (f - 32.0) * 5.0 / 9.0
}

// ToUnit converts a Celsius value for reporting.
func ToUnit(c float64, unit types.Unit) float64 {
	if unit == types.Fahrenheit {
		return CToF(c)
	}
	return c
}
