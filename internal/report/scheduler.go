// Package report closes aggregation periods and hands the results to sinks.
package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SteveOnorato/moat-temp-hum-ble/internal/calibrate"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/config"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/registry"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/types"
)

// Scheduler reduces every device window once per tick. The tick source is
// supplied by the caller, so Tick can be driven by a ticker, a test or any
// other clock.
type Scheduler struct {
	reg      *registry.Registry
	settings config.Settings
	sink     Sink
	logger   *slog.Logger
}

func NewScheduler(reg *registry.Registry, settings config.Settings, sink Sink, logger *slog.Logger) *Scheduler {
	return &Scheduler{reg: reg, settings: settings, sink: sink, logger: logger}
}

// Run calls Tick for every value received from ticks until ctx is done or
// ticks is closed.
func (s *Scheduler) Run(ctx context.Context, ticks <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now, ok := <-ticks:
			if !ok {
				return nil
			}
			s.Tick(now)
		}
	}
}

// Tick closes the open period of every device at now and emits the updates
// of the enabled quantities. Windows of disabled quantities are reduced too
// so they never carry samples into the next period.
func (s *Scheduler) Tick(now time.Time) {
	for _, dev := range s.reg.Devices() {
		c := dev.ClosePeriod(now)

		attrs := s.attributes(&c)
		for _, q := range s.enabled() {
			u, emit := s.update(dev, q, &c, attrs, now)
			if !emit {
				continue
			}
			if err := s.sink.HandleUpdate(u); err != nil {
				s.logger.Warn("report: sink failed",
					"addr", u.Address,
					"quantity", string(u.Quantity),
					"error", err,
				)
			}
		}
	}
}

func (s *Scheduler) enabled() []types.Quantity {
	e := s.settings.Entities
	var qs []types.Quantity
	if e.Temperature {
		qs = append(qs, types.QuantityTemperature)
	}
	if e.Humidity {
		qs = append(qs, types.QuantityHumidity)
	}
	if e.Battery {
		qs = append(qs, types.QuantityBattery)
	}
	if e.RSSI {
		qs = append(qs, types.QuantityRSSI)
	}
	if e.NumSamples {
		qs = append(qs, types.QuantitySamples)
	}
	return qs
}

func (s *Scheduler) attributes(c *registry.Closed) types.Attributes {
	attrs := types.Attributes{
		Samples:  c.Frames,
		Rejected: c.Rejected,
		LastRaw:  c.LastRaw,
	}
	if p, ok := c.Period(types.QuantityRSSI); ok {
		attrs.RSSI = roundInt(p.Mean)
	}
	if p, ok := c.Period(types.QuantityBattery); ok {
		attrs.Battery = roundInt(p.Mean)
	}
	if p, ok := c.Period(types.QuantityBatteryMillivolts); ok {
		attrs.BatteryMillivolts = roundInt(p.Mean)
	}
	return attrs
}

func (s *Scheduler) update(dev *registry.Device, q types.Quantity, c *registry.Closed, attrs types.Attributes, now time.Time) (types.Update, bool) {
	u := types.Update{
		Address:    dev.Config.MAC,
		Name:       dev.Config.DisplayName(),
		Quantity:   q,
		Unit:       s.unitOf(q),
		Attributes: attrs,
		PeriodEnd:  now,
	}

	if q == types.QuantitySamples {
		// A period without frames has no sample count to report either.
		if c.Frames == 0 {
			return u, s.settings.UpdateWhenUnavailable
		}
		v := float64(c.Frames)
		u.Available = true
		u.Value = &v
		return u, true
	}

	p, ok := c.Period(q)
	if !ok {
		return u, s.settings.UpdateWhenUnavailable
	}

	conv, places := s.presentation(q)
	rec := &types.Record{
		Address:     dev.Config.MAC,
		Quantity:    q,
		Mean:        s.round(conv(p.Mean), places),
		Median:      s.round(conv(p.Median), places),
		Min:         s.round(conv(p.Min), places),
		Max:         s.round(conv(p.Max), places),
		Count:       p.Count,
		PeriodStart: p.Start,
		PeriodEnd:   p.End,
	}
	v := rec.Mean
	if s.settings.UseMedian {
		v = rec.Median
	}
	u.Available = true
	u.Value = &v
	u.Record = rec
	return u, true
}

func (s *Scheduler) unitOf(q types.Quantity) string {
	switch q {
	case types.QuantityTemperature:
		return s.settings.Unit().String()
	case types.QuantityHumidity, types.QuantityBattery:
		return "%"
	case types.QuantityBatteryMillivolts:
		return "mV"
	case types.QuantityRSSI:
		return "dBm"
	default:
		return ""
	}
}

// presentation returns the conversion and the decimal places of q. A
// negative place count leaves the value unrounded.
func (s *Scheduler) presentation(q types.Quantity) (func(float64) float64, int) {
	places := -1
	if s.settings.Rounding {
		places = s.settings.Decimals
	}
	switch q {
	case types.QuantityTemperature:
		unit := s.settings.Unit()
		return func(c float64) float64 { return calibrate.ToUnit(c, unit) }, places
	case types.QuantityHumidity:
		return identity, places
	default:
		return identity, 0
	}
}

func (s *Scheduler) round(v float64, places int) float64 {
	if places < 0 {
		return v
	}
	return Round(v, places)
}

// Round rounds v half away from zero to the given decimal places.
func Round(v float64, places int) float64 {
	return decimal.NewFromFloat(v).Round(int32(places)).InexactFloat64()
}

func roundInt(v float64) *int {
	n := int(decimal.NewFromFloat(v).Round(0).IntPart())
	return &n
}

func identity(v float64) float64 { return v }
