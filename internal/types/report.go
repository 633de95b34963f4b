package types

import "time"

// Stats is the reduction of one aggregation window.
type Stats struct {
	Mean   float64
	Median float64
	Min    float64
	Max    float64
	Count  int
}

// Record is the aggregated result of one device quantity for one period.
type Record struct {
	Address     string    `json:"address"`
	Quantity    Quantity  `json:"quantity"`
	Mean        float64   `json:"mean"`
	Median      float64   `json:"median"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Count       int       `json:"count"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// Attributes are device-wide values attached to every update of a period.
type Attributes struct {
	RSSI              *int   `json:"rssi,omitempty"`
	Battery           *int   `json:"battery_pct,omitempty"`
	BatteryMillivolts *int   `json:"battery_mv,omitempty"`
	Samples           int    `json:"samples"`
	Rejected          int    `json:"rejected"`
	LastRaw           string `json:"last_raw,omitempty"`
}

// Update is what a sink receives for one device quantity when a period
// closes. Record is nil when Available is false.
type Update struct {
	Address    string     `json:"address"`
	Name       string     `json:"name"`
	Quantity   Quantity   `json:"quantity"`
	Unit       string     `json:"unit,omitempty"`
	Available  bool       `json:"available"`
	Value      *float64   `json:"value,omitempty"`
	Record     *Record    `json:"record,omitempty"`
	Attributes Attributes `json:"attributes"`
	PeriodEnd  time.Time  `json:"period_end"`
}
