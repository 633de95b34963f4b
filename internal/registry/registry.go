// Package registry maps configured device addresses to their identity and
// per-quantity aggregation windows.
package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/SteveOnorato/moat-temp-hum-ble/internal/aggregate"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/config"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/types"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/utils"
)

// Windowed lists the quantities that own an aggregation window, in report
// order. The samples quantity is derived from the frame counter instead.
var Windowed = [...]types.Quantity{
	types.QuantityTemperature,
	types.QuantityHumidity,
	types.QuantityBattery,
	types.QuantityBatteryMillivolts,
	types.QuantityRSSI,
}

// windowCapacity covers a minute of advertisements at one per second.
const windowCapacity = 64

// Device is the runtime state of one configured sensor. Windows are created
// with the device and live for the process lifetime.
type Device struct {
	Config config.Device

	windows [len(Windowed)]*aggregate.Window

	// period is held shared by Ingest and exclusively by ClosePeriod, so the
	// samples and counters of one frame always land in the same period.
	period sync.RWMutex

	frames   atomic.Int64
	rejected atomic.Int64
	lastSeen atomic.Int64 // unix nanos

	mu      sync.Mutex
	lastRaw string
}

// Closed is the reduction of one device's period.
type Closed struct {
	Periods  [len(Windowed)]aggregate.Period
	OK       [len(Windowed)]bool
	Frames   int
	Rejected int
	LastRaw  string
}

// Period returns the reduction of q; ok is false for an empty or
// unwindowed quantity.
func (c *Closed) Period(q types.Quantity) (aggregate.Period, bool) {
	for i, w := range Windowed {
		if w == q {
			return c.Periods[i], c.OK[i]
		}
	}
	return aggregate.Period{}, false
}

func newDevice(cfg config.Device, start time.Time) *Device {
	d := &Device{Config: cfg}
	for i := range d.windows {
		d.windows[i] = aggregate.NewWindow(start, windowCapacity)
	}
	return d
}

// Window returns the window of q, or nil when q is not windowed.
func (d *Device) Window(q types.Quantity) *aggregate.Window {
	for i, w := range Windowed {
		if w == q {
			return d.windows[i]
		}
	}
	return nil
}

// Add appends v to the window of q. Quantities without a window are ignored.
func (d *Device) Add(q types.Quantity, v float64) {
	if w := d.Window(q); w != nil {
		w.Add(v)
	}
}

// Seen records that the device was heard at t.
func (d *Device) Seen(t time.Time) {
	d.lastSeen.Store(t.UnixNano())
}

// LastSeen returns when the device was last heard, or the zero time.
func (d *Device) LastSeen() time.Time {
	n := d.lastSeen.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// CountFrame counts one decoded frame and remembers its raw measurement
// bytes.
func (d *Device) CountFrame(raw string) {
	d.frames.Add(1)
	if raw == "" {
		return
	}
	d.mu.Lock()
	d.lastRaw = raw
	d.mu.Unlock()
}

// CountRejected counts one sample kept out of aggregation.
func (d *Device) CountRejected() {
	d.rejected.Add(1)
}

// LastRaw returns the raw measurement bytes of the latest decoded frame of
// the open period.
func (d *Device) LastRaw() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastRaw
}

// Pending returns the frame and rejection counts of the open period.
func (d *Device) Pending() (frames, rejected int) {
	return int(d.frames.Load()), int(d.rejected.Load())
}

// Ingest runs fn with the open period pinned. Everything fn adds to the
// device is reported by the same ClosePeriod.
func (d *Device) Ingest(fn func()) {
	d.period.RLock()
	defer d.period.RUnlock()
	fn()
}

// ClosePeriod reduces every window at now and resets the frame and
// rejection counters and the last raw data.
func (d *Device) ClosePeriod(now time.Time) Closed {
	d.period.Lock()
	defer d.period.Unlock()

	var c Closed
	for i, w := range d.windows {
		c.Periods[i], c.OK[i] = w.Reduce(now)
	}
	c.Frames = int(d.frames.Swap(0))
	c.Rejected = int(d.rejected.Swap(0))
	d.mu.Lock()
	c.LastRaw, d.lastRaw = d.lastRaw, ""
	d.mu.Unlock()
	return c
}

// Registry is the fixed set of configured devices.
type Registry struct {
	devices []*Device
	byAddr  map[string]*Device
	unknown atomic.Int64
}

// New builds a registry from the configured devices. Windows of every device
// start their first period at start.
func New(devices []config.Device, start time.Time) *Registry {
	r := &Registry{
		devices: make([]*Device, 0, len(devices)),
		byAddr:  make(map[string]*Device, len(devices)),
	}
	for _, cfg := range devices {
		cfg.MAC = utils.NormalizeMAC(cfg.MAC)
		if _, dup := r.byAddr[cfg.MAC]; dup {
			continue
		}
		d := newDevice(cfg, start)
		r.devices = append(r.devices, d)
		r.byAddr[cfg.MAC] = d
	}
	return r
}

// Resolve looks up a device by address in any case. Misses are counted.
func (r *Registry) Resolve(addr string) (*Device, bool) {
	d, ok := r.byAddr[utils.NormalizeMAC(addr)]
	if !ok {
		r.unknown.Add(1)
	}
	return d, ok
}

// Lookup is Resolve without counting misses, for queries that do not come
// from the radio.
func (r *Registry) Lookup(addr string) (*Device, bool) {
	d, ok := r.byAddr[utils.NormalizeMAC(addr)]
	return d, ok
}

// Devices returns the devices in configuration order.
func (r *Registry) Devices() []*Device {
	return r.devices
}

// Unknown returns how many frames came from unconfigured addresses.
func (r *Registry) Unknown() int64 {
	return r.unknown.Load()
}
