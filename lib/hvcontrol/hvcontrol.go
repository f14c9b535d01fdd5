// Package hvcontrol is the device layer of the console: a registry of HV
// boards keyed by serial number with getters and setters for named channel
// parameters, and an in-memory simulation of the same interface.
package hvcontrol

import (
	"errors"

	"github.com/gotmc/caenhv"
)

var (
	// ErrNoDevices is returned by Open when no board could be reached.
	ErrNoDevices = errors.New("no CAEN devices found")
	// ErrUnknownDevice is returned for a serial number not in the registry.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrReadOnly is returned when setting a measured or status parameter.
	ErrReadOnly = caenhv.ErrReadOnly
)

// Controller gives access to the channels of one or more HV boards.
type Controller interface {
	// DeviceNumbers returns the serial numbers of the known devices in
	// ascending order.
	DeviceNumbers() []int
	// ChannelsPerDevice returns the number of channels of a device.
	ChannelsPerDevice(dev int) int
	GetChannelParameter(dev, ch int, p caenhv.Param) (float64, error)
	SetChannelParameter(dev, ch int, p caenhv.Param, v float64) error
	Close() error
}
