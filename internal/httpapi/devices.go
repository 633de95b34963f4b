package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/SteveOnorato/moat-temp-hum-ble/internal/registry"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/store"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/types"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/utils"
)

const (
	defaultHistoryLimit = 60
	maxHistoryLimit     = 1000
)

// DeviceStatus is the live view of one configured device.
type DeviceStatus struct {
	Address  string     `json:"address"`
	Name     string     `json:"name"`
	Vendor   string     `json:"vendor"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
	LastRaw  string     `json:"last_raw,omitempty"`
	// Frames and Rejected count the open period.
	Frames   int            `json:"frames"`
	Rejected int            `json:"rejected"`
	Pending  map[string]int `json:"pending_samples"`
}

type deviceController struct {
	reg  *registry.Registry
	repo store.ReportRepository
}

func registerDevices(mux *http.ServeMux, reg *registry.Registry, repo store.ReportRepository) {
	c := &deviceController{reg: reg, repo: repo}
	mux.HandleFunc("GET /api/v1/devices", c.handleDevices)
	mux.HandleFunc("GET /api/v1/devices/{mac}/reports", c.handleReports)
	mux.HandleFunc("GET /api/v1/devices/{mac}/rejections", c.handleRejections)
}

func (c *deviceController) handleDevices(w http.ResponseWriter, r *http.Request) {
	devs := c.reg.Devices()
	out := make([]DeviceStatus, 0, len(devs))
	for _, d := range devs {
		out = append(out, deviceStatus(d))
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

func deviceStatus(d *registry.Device) DeviceStatus {
	frames, rejected := d.Pending()
	st := DeviceStatus{
		Address:  d.Config.MAC,
		Name:     d.Config.DisplayName(),
		Vendor:   d.Config.Vendor.String(),
		LastRaw:  d.LastRaw(),
		Frames:   frames,
		Rejected: rejected,
		Pending:  make(map[string]int, len(registry.Windowed)),
	}
	if seen := d.LastSeen(); !seen.IsZero() {
		st.LastSeen = &seen
	}
	for _, q := range registry.Windowed {
		st.Pending[string(q)] = d.Window(q).Len()
	}
	return st
}

// resolve answers 404 for unconfigured devices and 503 without history.
func (c *deviceController) resolve(w http.ResponseWriter, r *http.Request) (*registry.Device, bool) {
	d, ok := c.reg.Lookup(r.PathValue("mac"))
	if !ok {
		utils.WriteError(w, http.StatusNotFound, "unknown device")
		return nil, false
	}
	if c.repo == nil {
		utils.WriteError(w, http.StatusServiceUnavailable, "report history is disabled")
		return nil, false
	}
	return d, true
}

func (c *deviceController) handleReports(w http.ResponseWriter, r *http.Request) {
	d, ok := c.resolve(w, r)
	if !ok {
		return
	}
	limit, err := utils.QueryLimit(r, defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	quantity := types.Quantity(r.URL.Query().Get("quantity"))
	if quantity != "" && !knownQuantity(quantity) {
		utils.WriteError(w, http.StatusBadRequest, "unknown 'quantity'")
		return
	}

	reports, err := c.repo.LatestReports(d.Config.MAC, quantity, limit)
	if err != nil {
		slog.Error("reports: query failed", "addr", d.Config.MAC, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load reports")
		return
	}
	if reports == nil {
		reports = []store.Report{}
	}
	utils.WriteJSON(w, http.StatusOK, reports)
}

func (c *deviceController) handleRejections(w http.ResponseWriter, r *http.Request) {
	d, ok := c.resolve(w, r)
	if !ok {
		return
	}
	limit, err := utils.QueryLimit(r, defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rejections, err := c.repo.LatestRejections(d.Config.MAC, limit)
	if err != nil {
		slog.Error("rejections: query failed", "addr", d.Config.MAC, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load rejections")
		return
	}
	if rejections == nil {
		rejections = []types.Rejection{}
	}
	utils.WriteJSON(w, http.StatusOK, rejections)
}

func knownQuantity(q types.Quantity) bool {
	switch q {
	case types.QuantityTemperature, types.QuantityHumidity, types.QuantityBattery,
		types.QuantityBatteryMillivolts, types.QuantityRSSI, types.QuantitySamples:
		return true
	}
	return false
}
