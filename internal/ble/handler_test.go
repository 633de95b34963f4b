package ble

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SteveOnorato/moat-temp-hum-ble/internal/types"
)

func TestFrameFromMatch(t *testing.T) {
	seen := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		company uint16
		data    []byte
		want    []byte
	}{
		{name: "govee", company: CompanyGovee, data: []byte{0x00, 0x03, 0xA4, 0x5E, 0x64, 0x00}, want: []byte{0x88, 0xEC, 0x00, 0x03, 0xA4, 0x5E, 0x64, 0x00}},
		{name: "moat", company: CompanyMoat, data: []byte{0xAA}, want: []byte{0x00, 0x10, 0xAA}},
		{name: "h5102", company: CompanyGoveeH5102, data: nil, want: []byte{0x01, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := FrameFromMatch(Match{Address: "A4:C1:38:5D:12:7F", RSSI: -71, CompanyID: tt.company, Data: tt.data, SeenAt: seen})

			assert.Equal(t, tt.want, f.VendorBytes)
			assert.Equal(t, -71, f.RSSI)
			assert.Equal(t, "A4:C1:38:5D:12:7F", f.Address)
			assert.True(t, f.ReceivedAt.Equal(seen))
		})
	}
}

func TestFrameFromMatch_DoesNotAliasData(t *testing.T) {
	data := []byte{0x01, 0x02}
	f := FrameFromMatch(Match{CompanyID: CompanyGovee, Data: data})
	data[0] = 0xFF

	assert.Equal(t, byte(0x01), f.VendorBytes[2])
}

func TestHandleMatch(t *testing.T) {
	var got []types.Frame
	h := NewFrameHandler(func(f types.Frame) { got = append(got, f) }, slog.New(slog.NewTextHandler(io.Discard, nil)))

	h.HandleMatch(Match{Address: "E3:60:59:21:80:65", CompanyID: CompanyMoat, Data: []byte{0x01}})

	require.Len(t, got, 1)
	assert.Equal(t, "E3:60:59:21:80:65", got[0].Address)
}
