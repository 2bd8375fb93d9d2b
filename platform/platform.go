package platform

import (
	"lautenbacher.net/adxld/adxl"
	u "lautenbacher.net/adxld/util"
)

// Platform defines the interface for abstracting away the real hardware
// from the simulation.
type Platform interface {
	// Start opens the buses, attaches every configured accelerometer and
	// starts sampling.
	Start() error

	// Stop stops sampling, detaches all devices and releases the buses.
	Stop()

	// Ready is closed once Start has attached the devices.
	Ready() <-chan bool

	// Devices returns the attached devices ordered by minor number.
	Devices() []*adxl.Device

	// Samples returns the latest sample of every sampled device, keyed by
	// logical device name.
	Samples() *u.AtomicMapEvent[adxl.Sample]

	// SetSampleViewer attaches a TUI viewer. Must be called before Start.
	SetSampleViewer(v *SampleViewer)
}
