// Package outlier keeps implausible temperatures out of aggregation.
package outlier

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/SteveOnorato/moat-temp-hum-ble/internal/types"
)

// Bounds is the admissible temperature range in Celsius, inclusive.
type Bounds struct {
	MinC float64
	MaxC float64
}

// Accept reports whether the reading's temperature may be aggregated. A
// reading without temperature has nothing to reject.
func (b Bounds) Accept(r types.Reading) bool {
	if r.Temperature == nil {
		return true
	}
	return b.contains(*r.Temperature)
}

func (b Bounds) contains(c float64) bool {
	return c >= b.MinC && c <= b.MaxC
}

// Filter applies Bounds and reports what it rejects.
type Filter struct {
	bounds    Bounds
	logSpikes bool
	onReject  func(types.Rejection)
	rejected  atomic.Int64
}

// NewFilter returns a filter that calls onReject for every rejected sample
// when logSpikes is set. Rejections are counted either way.
func NewFilter(bounds Bounds, logSpikes bool, onReject func(types.Rejection)) *Filter {
	return &Filter{bounds: bounds, logSpikes: logSpikes, onReject: onReject}
}

// Check is Accept of the calibrated reading r plus reporting. decoded is the
// same reading before calibration; its temperature is reported as Raw.
func (f *Filter) Check(r, decoded types.Reading) bool {
	if f.bounds.Accept(r) {
		return true
	}
	f.rejected.Add(1)
	if f.logSpikes && f.onReject != nil {
		at := r.Timestamp
		if at.IsZero() {
			at = time.Now()
		}
		raw := *r.Temperature
		if decoded.Temperature != nil {
			raw = *decoded.Temperature
		}
		f.onReject(types.Rejection{
			Address:  r.Address,
			Quantity: types.QuantityTemperature,
			Value:    *r.Temperature,
			Raw:      raw,
			Reason:   fmt.Sprintf("temperature spike: %.2f °C outside [%g, %g]", *r.Temperature, f.bounds.MinC, f.bounds.MaxC),
			At:       at,
		})
	}
	return false
}

// Rejected returns the number of samples rejected since start.
func (f *Filter) Rejected() int64 {
	return f.rejected.Load()
}
