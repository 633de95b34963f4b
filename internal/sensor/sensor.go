// Package sensor turns advertisement frames into window samples.
package sensor

import (
	"log/slog"
	"time"

	"github.com/SteveOnorato/moat-temp-hum-ble/internal/calibrate"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/config"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/decoder"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/outlier"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/registry"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/types"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/utils"
)

// Pipeline runs decode, calibration and outlier filtering for each frame and
// feeds the accepted values into the device windows. OnFrame is safe for
// concurrent use with the scheduler reducing the same windows.
type Pipeline struct {
	reg      *registry.Registry
	unit     types.Unit
	filter   *outlier.Filter
	onReject func(types.Rejection)
	logger   *slog.Logger
	now      func() time.Time
}

// NewPipeline returns a pipeline over reg. onReject, if not nil, receives the
// rejected temperatures when spike logging is enabled.
func NewPipeline(reg *registry.Registry, settings config.Settings, onReject func(types.Rejection), logger *slog.Logger) *Pipeline {
	p := &Pipeline{
		reg:      reg,
		unit:     settings.Unit(),
		onReject: onReject,
		logger:   logger,
		now:      time.Now,
	}
	bounds := outlier.Bounds{MinC: settings.TempRangeMinC, MaxC: settings.TempRangeMaxC}
	p.filter = outlier.NewFilter(bounds, settings.LogSpikes, p.rejected)
	return p
}

// OnFrame processes one advertisement. Frames from unconfigured addresses and
// payloads that do not decode contribute nothing except the RSSI sample of a
// known device.
func (p *Pipeline) OnFrame(f types.Frame) {
	dev, ok := p.reg.Resolve(f.Address)
	if !ok {
		return
	}
	dev.Ingest(func() { p.ingest(dev, f) })
}

func (p *Pipeline) ingest(dev *registry.Device, f types.Frame) {
	at := f.ReceivedAt
	if at.IsZero() {
		at = p.now()
	}
	dev.Seen(at)

	if f.RSSI < 0 {
		dev.Add(types.QuantityRSSI, float64(f.RSSI))
	}

	decoded, err := decoder.Decode(dev.Config.Vendor, f.VendorBytes)
	if err != nil {
		p.logger.Debug("sensor: drop undecodable payload",
			"addr", dev.Config.MAC,
			"vendor", dev.Config.Vendor.String(),
			"data", utils.BytesToHex(f.VendorBytes),
			"error", err,
		)
		return
	}
	decoded.Address = dev.Config.MAC
	decoded.Timestamp = at
	if f.RSSI < 0 {
		rssi := f.RSSI
		decoded.RSSI = &rssi
	}
	dev.CountFrame(decoded.Raw)

	r := calibrate.Apply(decoded, dev.Config, p.unit)

	if r.Temperature != nil {
		if p.filter.Check(r, decoded) {
			dev.Add(types.QuantityTemperature, *r.Temperature)
		} else {
			dev.CountRejected()
		}
	}
	if r.Humidity != nil {
		dev.Add(types.QuantityHumidity, *r.Humidity)
	}
	if r.Battery != nil {
		dev.Add(types.QuantityBattery, float64(*r.Battery))
	}
	if r.BatteryMillivolts != nil {
		dev.Add(types.QuantityBatteryMillivolts, float64(*r.BatteryMillivolts))
	}

	p.logger.Debug("sensor: reading",
		"addr", r.Address,
		"model", r.Model,
		"rssi", f.RSSI,
		"raw", r.Raw,
	)
}

// Rejected returns the number of temperatures rejected since start.
func (p *Pipeline) Rejected() int64 {
	return p.filter.Rejected()
}

func (p *Pipeline) rejected(rej types.Rejection) {
	p.logger.Warn("sensor: temperature spike rejected",
		"addr", rej.Address,
		"value_c", rej.Value,
		"raw_c", rej.Raw,
		"reason", rej.Reason,
	)
	if p.onReject != nil {
		p.onReject(rej)
	}
}
