package types

import "time"

// Frame is one advertisement heard by the scanner. VendorBytes holds the
// AD structure payload with its little-endian company id (or 16-bit service
// UUID) still in front of the packed measurement fields.
type Frame struct {
	Address     string
	VendorBytes []byte
	RSSI        int
	ReceivedAt  time.Time
}

// Reading is a decoded advertisement. Absent fields are nil. Temperature is
// always Celsius, whatever the reporting unit.
type Reading struct {
	Address           string    `json:"address"`
	Timestamp         time.Time `json:"timestamp"`
	Model             string    `json:"model,omitempty"`
	Temperature       *float64  `json:"temperature_c,omitempty"`
	Humidity          *float64  `json:"humidity_pct,omitempty"`
	Battery           *int      `json:"battery_pct,omitempty"`
	BatteryMillivolts *int      `json:"battery_mv,omitempty"`
	RSSI              *int      `json:"rssi,omitempty"`
	Raw               string    `json:"raw,omitempty"`
}

// Unit selects how temperatures are reported.
type Unit int

const (
	Celsius Unit = iota
	Fahrenheit
)

func (u Unit) String() string {
	if u == Fahrenheit {
		return "°F"
	}
	return "°C"
}

// Quantity names one aggregated stream of a device.
type Quantity string

const (
	QuantityTemperature       Quantity = "temperature"
	QuantityHumidity          Quantity = "humidity"
	QuantityBattery           Quantity = "battery"
	QuantityBatteryMillivolts Quantity = "battery_mv"
	QuantityRSSI              Quantity = "rssi"
	QuantitySamples           Quantity = "samples"
)

// Rejection describes a sample the outlier filter kept out of aggregation.
// Value is the calibrated Celsius value compared against the bounds; Raw is
// the decoded value before calibration.
type Rejection struct {
	Address  string    `json:"address"`
	Quantity Quantity  `json:"quantity"`
	Value    float64   `json:"value"`
	Raw      float64   `json:"raw"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}
