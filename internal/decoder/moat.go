package decoder

import (
	"encoding/binary"

	"github.com/SteveOnorato/moat-temp-hum-ble/internal/types"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/utils"
)

// Moat S2 payload (20 bytes): [0:2] marker 00 10, [8:12] device timestamp,
// [12:14] temperature uint16 LE, [14:16] humidity uint16 LE,
// [16:18] battery millivolts uint16 LE.
const (
	moatPayloadLen = 20

	moatBatteryEmptyMV = 2760
	moatBatteryFullMV  = 2820
)

func decodeMoatS2(data []byte) types.Reading {
	rawTemp := binary.LittleEndian.Uint16(data[12:14])
	rawHum := binary.LittleEndian.Uint16(data[14:16])
	mv := int(binary.LittleEndian.Uint16(data[16:18]))

	temp := -46.85 + 175.72*(float64(rawTemp)/65536.0)
	hum := -6.0 + 125.0*(float64(rawHum)/65536.0)
	battery := int(moatBatteryPercent(mv))

	return types.Reading{
		Temperature:       &temp,
		Humidity:          &hum,
		Battery:           &battery,
		BatteryMillivolts: &mv,
		Raw:               utils.BytesToHex(data[8:18]),
	}
}

// moatBatteryPercent maps the cell voltage linearly onto 1..100 %. The
// discharge curve is not linear; the range only separates full from empty.
func moatBatteryPercent(mv int) float64 {
	return rescaleClamped(float64(mv), moatBatteryEmptyMV, moatBatteryFullMV, 1, 100)
}

func rescaleClamped(v, inMin, inMax, outMin, outMax float64) float64 {
	switch {
	case v >= inMax:
		return outMax
	case v <= inMin:
		return outMin
	default:
		return outMin + (outMax-outMin)*(v-inMin)/(inMax-inMin)
	}
}
