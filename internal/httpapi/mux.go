package httpapi

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/SteveOnorato/moat-temp-hum-ble/internal/registry"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/store"
)

// NewMux wires the health check and the device API. repo may be nil when
// no history is kept; the history routes then answer 503.
func NewMux(db *sql.DB, reg *registry.Registry, repo store.ReportRepository) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db)
	registerDevices(mux, reg, repo)
	return mux
}

func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
