// Package decoder turns the manufacturer data of supported thermometer and
// hygrometer advertisements into readings.
//
// Every supported model is one variant with a fixed payload length, an
// optional two byte marker and a pure decode function. Payloads are checked
// for format only; physically implausible values are returned as decoded and
// left to the outlier filter.
package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/SteveOnorato/moat-temp-hum-ble/internal/types"
)

var (
	// ErrTooShort is returned when a payload is shorter than the layout needs.
	ErrTooShort = errors.New("payload too short")
	// ErrUnrecognizedFormat is returned when a payload does not carry the
	// expected length or marker.
	ErrUnrecognizedFormat = errors.New("unrecognized payload format")
)

// Vendor identifies a payload layout. Govee is the family tag and tries all
// Govee variants.
type Vendor int

const (
	VendorUnknown Vendor = iota
	Moat
	Govee
	GoveeH5072
	GoveeH5102
	GoveeH5074
	GoveeH5051
)

var vendorNames = map[Vendor]string{
	Moat:       "moat",
	Govee:      "govee",
	GoveeH5072: "govee_h5072",
	GoveeH5102: "govee_h5102",
	GoveeH5074: "govee_h5074",
	GoveeH5051: "govee_h5051",
}

func (v Vendor) String() string {
	if s, ok := vendorNames[v]; ok {
		return s
	}
	return fmt.Sprintf("vendor(%d)", int(v))
}

// ParseVendor maps a configuration name to a Vendor. H5075 and H5101 share
// the layouts of H5072 and H5102.
func ParseVendor(s string) (Vendor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "moat", "moat_s2":
		return Moat, nil
	case "govee":
		return Govee, nil
	case "govee_h5072", "govee_h5075":
		return GoveeH5072, nil
	case "govee_h5101", "govee_h5102":
		return GoveeH5102, nil
	case "govee_h5074":
		return GoveeH5074, nil
	case "govee_h5051":
		return GoveeH5051, nil
	default:
		return VendorUnknown, fmt.Errorf("unknown vendor %q", s)
	}
}

type variant struct {
	model  string
	length int
	marker []byte
	decode func(data []byte) types.Reading
}

var variants = map[Vendor]variant{
	Moat: {
		model:  "Moat S2",
		length: moatPayloadLen,
		marker: []byte{0x00, 0x10},
		decode: decodeMoatS2,
	},
	GoveeH5072: {
		model:  "Govee H5072/H5075",
		length: 8,
		marker: []byte{0x88, 0xEC},
		decode: func(data []byte) types.Reading { return decodeGoveePacked(data, 3, 6) },
	},
	GoveeH5102: {
		model:  "Govee H5101/H5102",
		length: 8,
		marker: []byte{0x01, 0x00},
		decode: func(data []byte) types.Reading { return decodeGoveePacked(data, 4, 7) },
	},
	GoveeH5074: {
		model:  "Govee H5074",
		length: 9,
		decode: decodeGoveeLE,
	},
	GoveeH5051: {
		model:  "Govee H5051",
		length: 11,
		decode: decodeGoveeLE,
	},
}

// goveeOrder is the order layouts are tried in for the Govee family tag.
var goveeOrder = []Vendor{GoveeH5072, GoveeH5102, GoveeH5074, GoveeH5051}

// Decode parses data with the layout of vendor. Address, timestamp and RSSI
// are left for the caller to fill in.
func Decode(vendor Vendor, data []byte) (types.Reading, error) {
	if vendor == Govee {
		return decodeGovee(data)
	}
	v, ok := variants[vendor]
	if !ok {
		return types.Reading{}, fmt.Errorf("%w: no layout for %s", ErrUnrecognizedFormat, vendor)
	}
	if err := v.check(data); err != nil {
		return types.Reading{}, err
	}
	return v.read(data), nil
}

func decodeGovee(data []byte) (types.Reading, error) {
	shortest := variants[goveeOrder[0]].length
	for _, vendor := range goveeOrder {
		v := variants[vendor]
		shortest = min(shortest, v.length)
		if v.check(data) == nil {
			return v.read(data), nil
		}
	}
	if len(data) < shortest {
		return types.Reading{}, fmt.Errorf("%w: govee payload len %d, want at least %d", ErrTooShort, len(data), shortest)
	}
	return types.Reading{}, fmt.Errorf("%w: govee payload len %d (% X)", ErrUnrecognizedFormat, len(data), data)
}

func (v variant) check(data []byte) error {
	if len(data) < v.length {
		return fmt.Errorf("%w: %s payload len %d, want %d", ErrTooShort, v.model, len(data), v.length)
	}
	if len(data) != v.length {
		return fmt.Errorf("%w: %s payload len %d, want %d", ErrUnrecognizedFormat, v.model, len(data), v.length)
	}
	if len(v.marker) > 0 && !bytes.HasPrefix(data, v.marker) {
		return fmt.Errorf("%w: %s marker % X, want % X", ErrUnrecognizedFormat, v.model, data[:len(v.marker)], v.marker)
	}
	return nil
}

func (v variant) read(data []byte) types.Reading {
	r := v.decode(data)
	r.Model = v.model
	return r
}
