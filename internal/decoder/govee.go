package decoder

import (
	"encoding/binary"

	"github.com/SteveOnorato/moat-temp-hum-ble/internal/types"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/utils"
)

// goveeSignBit marks a negative temperature in the packed 24-bit field.
const goveeSignBit = 0x800000

// decodeGoveePacked reads the H5072/H5075/H5101/H5102 layout: a 24-bit big
// endian value at data[off:off+3] holding temperature*10000 + humidity*10,
// sign in the top bit, followed by battery percent at data[batt].
func decodeGoveePacked(data []byte, off, batt int) types.Reading {
	packed := uint32(data[off])<<16 | uint32(data[off+1])<<8 | uint32(data[off+2])
	temp, hum := unpackGovee(packed)
	battery := int(data[batt])

	return types.Reading{
		Temperature: &temp,
		Humidity:    &hum,
		Battery:     &battery,
		Raw:         utils.BytesToHex(data[off : off+3]),
	}
}

func unpackGovee(packed uint32) (temp, hum float64) {
	v := packed &^ goveeSignBit
	// the last three decimal digits are humidity
	temp = float64(v/1000) / 10.0
	if packed&goveeSignBit != 0 {
		temp = -temp
	}
	hum = float64(v%1000) / 10.0
	return temp, hum
}

// decodeGoveeLE reads the H5074/H5051 layout: int16 LE temperature in
// centidegrees at [3:5], uint16 LE humidity in centipercent at [5:7],
// battery percent at [7].
func decodeGoveeLE(data []byte) types.Reading {
	temp := float64(int16(binary.LittleEndian.Uint16(data[3:5]))) / 100.0
	hum := float64(binary.LittleEndian.Uint16(data[5:7])) / 100.0
	battery := int(data[7])

	return types.Reading{
		Temperature: &temp,
		Humidity:    &hum,
		Battery:     &battery,
		Raw:         utils.BytesToHex(data[3:7]),
	}
}
