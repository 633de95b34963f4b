//go:build !linux

package ble

import "tinygo.org/x/bluetooth"

// Only BlueZ lets us pick an adapter by name.
func newAdapter(_ string) *bluetooth.Adapter {
	return bluetooth.DefaultAdapter
}
