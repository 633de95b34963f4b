package ble

import (
	"context"
	"log/slog"

	"github.com/SteveOnorato/moat-temp-hum-ble/internal/types"
)

// Known company ids of the supported sensors, as they appear on air.
const (
	CompanyMoat       uint16 = 0x1000
	CompanyGovee      uint16 = 0xEC88
	CompanyGoveeH5102 uint16 = 0x0001
)

// FrameHandler forwards scan matches to the ingest pipeline as frames.
type FrameHandler struct {
	onFrame func(types.Frame)
	logger  *slog.Logger
}

// NewFrameHandler creates a handler that calls onFrame for every match.
func NewFrameHandler(onFrame func(types.Frame), logger *slog.Logger) *FrameHandler {
	return &FrameHandler{onFrame: onFrame, logger: logger}
}

// HandleMatch rebuilds the vendor bytes of m and passes them on.
func (h *FrameHandler) HandleMatch(m Match) {
	h.onFrame(FrameFromMatch(m))
}

// StartListener runs listener in the background. A listener that cannot
// start is logged and the gateway keeps running without BLE.
func (h *FrameHandler) StartListener(ctx context.Context, listener *Listener) {
	go func() {
		err := listener.Run(ctx, h.HandleMatch)
		if err != nil {
			h.logger.Warn("ble listener could not be initialized; gateway continues without BLE",
				"error", err,
			)
		}
	}()
}

// FrameFromMatch puts the company id back in front of the manufacturer data,
// little-endian as it was broadcast.
func FrameFromMatch(m Match) types.Frame {
	vb := make([]byte, 0, 2+len(m.Data))
	vb = append(vb, byte(m.CompanyID), byte(m.CompanyID>>8))
	vb = append(vb, m.Data...)
	return types.Frame{
		Address:     m.Address,
		VendorBytes: vb,
		RSSI:        int(m.RSSI),
		ReceivedAt:  m.SeenAt,
	}
}
