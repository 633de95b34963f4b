package sensor

import (
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SteveOnorato/moat-temp-hum-ble/internal/config"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/decoder"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/registry"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/types"
)

const (
	goveeAddr = "A4:C1:38:5D:12:7F"
	moatAddr  = "E3:60:59:21:80:65"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// h5074 builds a Govee H5074 payload (company id EC88 in front).
func h5074(tempC, hum float64, battery byte) []byte {
	b := []byte{0x88, 0xEC, 0x00, 0, 0, 0, 0, battery, 0x02}
	binary.LittleEndian.PutUint16(b[3:5], uint16(int16(math.Round(tempC*100))))
	binary.LittleEndian.PutUint16(b[5:7], uint16(math.Round(hum*100)))
	return b
}

func newTestPipeline(t *testing.T, settings config.Settings, devs ...config.Device) (*Pipeline, *registry.Registry, *[]types.Rejection) {
	t.Helper()
	if len(devs) == 0 {
		devs = []config.Device{
			{MAC: goveeAddr, Vendor: decoder.Govee},
			{MAC: moatAddr, Vendor: decoder.Moat},
		}
	}
	reg := registry.New(devs, t0)
	var rejections []types.Rejection
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewPipeline(reg, settings, func(r types.Rejection) { rejections = append(rejections, r) }, logger)
	return p, reg, &rejections
}

func frame(addr string, data []byte, rssi int) types.Frame {
	return types.Frame{Address: addr, VendorBytes: data, RSSI: rssi, ReceivedAt: t0.Add(time.Second)}
}

func device(t *testing.T, reg *registry.Registry, addr string) *registry.Device {
	t.Helper()
	d, ok := reg.Resolve(addr)
	require.True(t, ok)
	return d
}

func TestOnFrame_TwoFramesSameWindow(t *testing.T) {
	p, reg, _ := newTestPipeline(t, config.DefaultSettings())

	p.OnFrame(frame(goveeAddr, h5074(20, 40, 90), -60))
	p.OnFrame(frame("a4:c1:38:5d:12:7f", h5074(22, 42, 90), -70))

	d := device(t, reg, goveeAddr)
	per, ok := d.Window(types.QuantityTemperature).Reduce(t0.Add(time.Minute))
	require.True(t, ok)
	assert.Equal(t, 2, per.Count)
	assert.InDelta(t, 21.0, per.Mean, 1e-9)

	hum, ok := d.Window(types.QuantityHumidity).Reduce(t0.Add(time.Minute))
	require.True(t, ok)
	assert.InDelta(t, 41.0, hum.Mean, 1e-9)

	rssi, ok := d.Window(types.QuantityRSSI).Reduce(t0.Add(time.Minute))
	require.True(t, ok)
	assert.InDelta(t, -65.0, rssi.Mean, 1e-9)

	frames, _ := d.Pending()
	assert.Equal(t, 2, frames)
	assert.True(t, d.LastSeen().Equal(t0.Add(time.Second)))
}

func TestOnFrame_UnconfiguredAddressContributesNothing(t *testing.T) {
	p, reg, _ := newTestPipeline(t, config.DefaultSettings())

	p.OnFrame(frame("11:22:33:44:55:66", h5074(20, 40, 90), -60))

	for _, d := range reg.Devices() {
		for _, q := range registry.Windowed {
			assert.Zero(t, d.Window(q).Len(), "%s %s", d.Config.MAC, q)
		}
		frames, _ := d.Pending()
		assert.Zero(t, frames)
	}
	assert.EqualValues(t, 1, reg.Unknown())
}

func TestOnFrame_SpikeRejectsOnlyTemperature(t *testing.T) {
	p, reg, rejections := newTestPipeline(t, config.DefaultSettings())

	p.OnFrame(frame(goveeAddr, h5074(-100, 40, 90), -60))
	p.OnFrame(frame(goveeAddr, h5074(25, 44, 90), -60))

	d := device(t, reg, goveeAddr)
	temp, ok := d.Window(types.QuantityTemperature).Reduce(t0)
	require.True(t, ok)
	assert.Equal(t, 1, temp.Count)
	assert.InDelta(t, 25.0, temp.Mean, 1e-9)

	hum, ok := d.Window(types.QuantityHumidity).Reduce(t0)
	require.True(t, ok)
	assert.Equal(t, 2, hum.Count, "humidity of the spiking frame still aggregates")

	_, rejected := d.Pending()
	assert.Equal(t, 1, rejected)
	assert.EqualValues(t, 1, p.Rejected())

	require.Len(t, *rejections, 1)
	rej := (*rejections)[0]
	assert.Equal(t, goveeAddr, rej.Address)
	assert.Equal(t, types.QuantityTemperature, rej.Quantity)
	assert.InDelta(t, -100.0, rej.Value, 1e-9)
}

func TestOnFrame_SpikeLoggingDisabledStillCounts(t *testing.T) {
	st := config.DefaultSettings()
	st.LogSpikes = false
	p, reg, rejections := newTestPipeline(t, st)

	p.OnFrame(frame(goveeAddr, h5074(90, 40, 90), -60))

	assert.Empty(t, *rejections)
	_, rejected := device(t, reg, goveeAddr).Pending()
	assert.Equal(t, 1, rejected)
}

func TestOnFrame_CalibratesBeforeFiltering(t *testing.T) {
	st := config.DefaultSettings()
	st.TempRangeMaxC = 21
	p, reg, _ := newTestPipeline(t, st, config.Device{MAC: goveeAddr, Vendor: decoder.GoveeH5074, CalibrateTemp: 2.2, CalibrateHumidity: -1})

	p.OnFrame(frame(goveeAddr, h5074(20, 40, 90), -60))

	d := device(t, reg, goveeAddr)
	assert.Zero(t, d.Window(types.QuantityTemperature).Len(), "22.2 is above the 21 bound")
	hum, ok := d.Window(types.QuantityHumidity).Reduce(t0)
	require.True(t, ok)
	assert.InDelta(t, 39.0, hum.Mean, 1e-9)
}

func TestOnFrame_RejectionReportsDecodedTemperature(t *testing.T) {
	st := config.DefaultSettings()
	st.TempRangeMaxC = 21
	p, _, rejections := newTestPipeline(t, st, config.Device{MAC: goveeAddr, Vendor: decoder.GoveeH5074, CalibrateTemp: 2})

	p.OnFrame(frame(goveeAddr, h5074(20, 40, 90), -60))

	require.Len(t, *rejections, 1)
	rej := (*rejections)[0]
	assert.InDelta(t, 22.0, rej.Value, 1e-9)
	assert.InDelta(t, 20.0, rej.Raw, 1e-9)
}

func TestOnFrame_FrameAndSamplesShareAPeriod(t *testing.T) {
	p, reg, _ := newTestPipeline(t, config.DefaultSettings())
	d := device(t, reg, goveeAddr)

	const frames = 500
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < frames; i++ {
			p.OnFrame(frame(goveeAddr, h5074(20, 40, 90), -60))
		}
	}()

	total := 0
	check := func(c registry.Closed) {
		temp, _ := c.Period(types.QuantityTemperature)
		hum, _ := c.Period(types.QuantityHumidity)
		assert.Equal(t, c.Frames, temp.Count)
		assert.Equal(t, c.Frames, hum.Count)
		total += c.Frames
	}
	now := t0
	for {
		select {
		case <-done:
			check(d.ClosePeriod(now.Add(time.Second)))
			assert.Equal(t, frames, total)
			return
		default:
			now = now.Add(time.Second)
			check(d.ClosePeriod(now))
		}
	}
}

func TestOnFrame_UndecodablePayloadKeepsRSSI(t *testing.T) {
	p, reg, _ := newTestPipeline(t, config.DefaultSettings())

	p.OnFrame(frame(moatAddr, []byte{0x00, 0x10, 0x01}, -80))
	p.OnFrame(frame(moatAddr, []byte{0x00, 0x10, 0x01}, 0))

	d := device(t, reg, moatAddr)
	assert.Equal(t, 1, d.Window(types.QuantityRSSI).Len(), "only negative rssi is recorded")
	assert.Zero(t, d.Window(types.QuantityTemperature).Len())
	frames, _ := d.Pending()
	assert.Zero(t, frames)
}

func TestOnFrame_MoatFillsBatteryWindows(t *testing.T) {
	p, reg, _ := newTestPipeline(t, config.DefaultSettings())

	data := make([]byte, 20)
	data[0], data[1] = 0x00, 0x10
	tempC, hum := 25.0, 50.0
	binary.LittleEndian.PutUint16(data[12:14], uint16((tempC+46.85)/175.72*65536))
	binary.LittleEndian.PutUint16(data[14:16], uint16((hum+6)/125*65536))
	binary.LittleEndian.PutUint16(data[16:18], 2800)
	p.OnFrame(frame(moatAddr, data, -55))

	d := device(t, reg, moatAddr)
	mv, ok := d.Window(types.QuantityBatteryMillivolts).Reduce(t0)
	require.True(t, ok)
	assert.InDelta(t, 2800.0, mv.Mean, 1e-9)
	batt, ok := d.Window(types.QuantityBattery).Reduce(t0)
	require.True(t, ok)
	assert.InDelta(t, 67.0, batt.Mean, 1e-9)
	assert.NotEmpty(t, d.LastRaw())
}
