package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SteveOnorato/moat-temp-hum-ble/internal/decoder"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/types"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/utils"
)

// Settings are the reporting options shared by all devices.
type Settings struct {
	ReportFahrenheit      bool
	Rounding              bool
	Decimals              int
	Period                time.Duration
	LogSpikes             bool
	UpdateWhenUnavailable bool
	UseMedian             bool
	TempRangeMinC         float64
	TempRangeMaxC         float64
	Entities              Entities
}

// Entities selects which quantities are reported per device.
type Entities struct {
	Temperature bool
	Humidity    bool
	Battery     bool
	RSSI        bool
	NumSamples  bool
}

// Device is one configured sensor.
type Device struct {
	MAC               string
	Name              string
	Vendor            decoder.Vendor
	CalibrateTemp     float64
	CalibrateHumidity float64
}

// DisplayName returns the configured name or the MAC address.
func (d Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.MAC
}

// Sensors is the content of the sensors file.
type Sensors struct {
	Settings Settings
	Devices  []Device
}

// Unit returns the reporting unit for temperatures.
func (s Settings) Unit() types.Unit {
	if s.ReportFahrenheit {
		return types.Fahrenheit
	}
	return types.Celsius
}

func DefaultSettings() Settings {
	return Settings{
		ReportFahrenheit:      false,
		Rounding:              true,
		Decimals:              2,
		Period:                60 * time.Second,
		LogSpikes:             true,
		UpdateWhenUnavailable: true,
		UseMedian:             false,
		TempRangeMinC:         -45.0,
		TempRangeMaxC:         70.0,
		Entities: Entities{
			Temperature: true,
			Humidity:    true,
		},
	}
}

type sensorsFile struct {
	ReportFahrenheit      *bool    `yaml:"report_fahrenheit"`
	Rounding              *bool    `yaml:"rounding"`
	Decimals              *int     `yaml:"decimals"`
	PeriodSecs            *int     `yaml:"period_secs"`
	LogSpikes             *bool    `yaml:"log_spikes"`
	UpdateWhenUnavailable *bool    `yaml:"update_when_unavailable"`
	UseMedian             *bool    `yaml:"use_median"`
	TempRangeMinC         *float64 `yaml:"temp_range_min_celsius"`
	TempRangeMaxC         *float64 `yaml:"temp_range_max_celsius"`
	TemperatureEntities   *bool    `yaml:"temperature_entities"`
	HumidityEntities      *bool    `yaml:"humidity_entities"`
	BatteryEntities       *bool    `yaml:"battery_entities"`
	RSSIEntities          *bool    `yaml:"rssi_entities"`
	NumSamplesEntities    *bool    `yaml:"num_samples_entities"`

	MoatDevices  []deviceEntry `yaml:"moat_devices"`
	GoveeDevices []deviceEntry `yaml:"govee_devices"`
}

type deviceEntry struct {
	MAC               string  `yaml:"mac"`
	Name              string  `yaml:"name"`
	Model             string  `yaml:"model"`
	CalibrateTemp     float64 `yaml:"calibrate_temp"`
	CalibrateHumidity float64 `yaml:"calibrate_humidity"`
}

var macRe = regexp.MustCompile(`^([0-9A-F]{2}:){5}[0-9A-F]{2}$`)

// LoadSensors reads and validates the sensors file at path.
func LoadSensors(path string) (Sensors, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Sensors{}, fmt.Errorf("read sensors file: %w", err)
	}
	s, err := ParseSensors(data)
	if err != nil {
		return Sensors{}, fmt.Errorf("sensors file %s: %w", path, err)
	}
	return s, nil
}

// ParseSensors decodes a sensors file. Unknown keys are an error.
func ParseSensors(data []byte) (Sensors, error) {
	var f sensorsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return Sensors{}, fmt.Errorf("parse yaml: %w", err)
	}

	st := DefaultSettings()
	setIf(&st.ReportFahrenheit, f.ReportFahrenheit)
	setIf(&st.Rounding, f.Rounding)
	setIf(&st.Decimals, f.Decimals)
	setIf(&st.LogSpikes, f.LogSpikes)
	setIf(&st.UpdateWhenUnavailable, f.UpdateWhenUnavailable)
	setIf(&st.UseMedian, f.UseMedian)
	setIf(&st.TempRangeMinC, f.TempRangeMinC)
	setIf(&st.TempRangeMaxC, f.TempRangeMaxC)
	setIf(&st.Entities.Temperature, f.TemperatureEntities)
	setIf(&st.Entities.Humidity, f.HumidityEntities)
	setIf(&st.Entities.Battery, f.BatteryEntities)
	setIf(&st.Entities.RSSI, f.RSSIEntities)
	setIf(&st.Entities.NumSamples, f.NumSamplesEntities)
	if f.PeriodSecs != nil {
		if *f.PeriodSecs <= 0 {
			return Sensors{}, fmt.Errorf("period_secs must be positive, got %d", *f.PeriodSecs)
		}
		st.Period = time.Duration(*f.PeriodSecs) * time.Second
	}
	if st.Decimals < 0 {
		return Sensors{}, fmt.Errorf("decimals must not be negative, got %d", st.Decimals)
	}
	if st.TempRangeMinC >= st.TempRangeMaxC {
		return Sensors{}, fmt.Errorf("temp_range_min_celsius (%g) must be below temp_range_max_celsius (%g)", st.TempRangeMinC, st.TempRangeMaxC)
	}

	var devices []Device
	seen := make(map[string]bool)
	add := func(e deviceEntry, family decoder.Vendor) error {
		dev, err := e.toDevice(family)
		if err != nil {
			return err
		}
		if seen[dev.MAC] {
			return fmt.Errorf("duplicate device %s", dev.MAC)
		}
		seen[dev.MAC] = true
		devices = append(devices, dev)
		return nil
	}
	for _, e := range f.MoatDevices {
		if err := add(e, decoder.Moat); err != nil {
			return Sensors{}, fmt.Errorf("moat_devices: %w", err)
		}
	}
	for _, e := range f.GoveeDevices {
		if err := add(e, decoder.Govee); err != nil {
			return Sensors{}, fmt.Errorf("govee_devices: %w", err)
		}
	}

	return Sensors{Settings: st, Devices: devices}, nil
}

func (e deviceEntry) toDevice(family decoder.Vendor) (Device, error) {
	mac := utils.NormalizeMAC(e.MAC)
	if !macRe.MatchString(mac) {
		return Device{}, fmt.Errorf("invalid mac %q", e.MAC)
	}

	vendor := family
	if e.Model != "" {
		v, err := decoder.ParseVendor(e.Model)
		if err != nil {
			return Device{}, fmt.Errorf("device %s: %w", mac, err)
		}
		if (family == decoder.Moat) != (v == decoder.Moat) {
			return Device{}, fmt.Errorf("device %s: model %q does not belong to %s", mac, e.Model, family)
		}
		vendor = v
	}

	return Device{
		MAC:               mac,
		Name:              e.Name,
		Vendor:            vendor,
		CalibrateTemp:     e.CalibrateTemp,
		CalibrateHumidity: e.CalibrateHumidity,
	}, nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
