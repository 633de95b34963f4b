// Package ble scans for advertisements and hands their manufacturer data to
// the ingest pipeline.
package ble

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/SteveOnorato/moat-temp-hum-ble/internal/utils"
)

// Match is one manufacturer data element of one advertisement.
type Match struct {
	Address   string
	RSSI      int16
	LocalName string
	CompanyID uint16
	Data      []byte
	SeenAt    time.Time
}

// Filter narrows what the listener reports. Zero values match everything.
type Filter struct {
	CompanyIDs []uint16
	Addresses  []string
}

type Options struct {
	Adapter string // "hci0" by default
	Filter  Filter
}

// Listener wraps BlueZ scanning with context cancellation.
type Listener struct {
	adapter *bluetooth.Adapter
	opts    Options
	addrs   map[string]bool
	logger  *slog.Logger
}

func NewListener(opts Options, logger *slog.Logger) *Listener {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}

	var addrs map[string]bool
	if len(opts.Filter.Addresses) > 0 {
		addrs = make(map[string]bool, len(opts.Filter.Addresses))
		for _, a := range opts.Filter.Addresses {
			addrs[utils.NormalizeMAC(a)] = true
		}
	}

	return &Listener{
		adapter: newAdapter(opts.Adapter),
		opts:    opts,
		addrs:   addrs,
		logger:  logger,
	}
}

// Run scans until ctx is canceled. onMatch is called from the scan goroutine
// once per manufacturer data element that passes the filter.
func (l *Listener) Run(ctx context.Context, onMatch func(Match)) error {
	l.logger.Info("ble: enabling adapter", "adapter", l.opts.Adapter)
	if err := l.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w", l.opts.Adapter, err)
	}
	l.logger.Info("ble: adapter enabled", "adapter", l.opts.Adapter)

	go func() {
		<-ctx.Done()
		_ = l.adapter.StopScan()
	}()

	companies := make([]string, 0, len(l.opts.Filter.CompanyIDs))
	for _, id := range l.opts.Filter.CompanyIDs {
		companies = append(companies, "0x"+utils.Hex4(id))
	}
	l.logger.Info("ble: scanning started",
		"filter_companies", strings.Join(companies, ","),
		"filter_addresses", len(l.addrs),
	)

	// adapter.Scan blocks until StopScan() or error.
	err := l.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		addr := utils.NormalizeMAC(r.Address.String())
		if l.addrs != nil && !l.addrs[addr] {
			return
		}

		seen := time.Now()
		for _, md := range r.ManufacturerData() {
			if !l.wantCompany(md.CompanyID) {
				continue
			}
			if onMatch != nil {
				onMatch(Match{
					Address:   addr,
					RSSI:      r.RSSI,
					LocalName: r.LocalName(),
					CompanyID: md.CompanyID,
					Data:      append([]byte(nil), md.Data...),
					SeenAt:    seen,
				})
			}
		}
	})

	// If ctx canceled, treat as clean shutdown.
	if ctx.Err() != nil {
		l.logger.Info("ble: scanning stopped (context canceled)")
		return nil
	}

	if err != nil {
		return fmt.Errorf("ble scan: %w", err)
	}

	l.logger.Info("ble: scanning stopped")
	return nil
}

func (l *Listener) wantCompany(id uint16) bool {
	return len(l.opts.Filter.CompanyIDs) == 0 || slices.Contains(l.opts.Filter.CompanyIDs, id)
}
