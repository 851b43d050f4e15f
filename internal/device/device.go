// Package device holds the status state machine, the cache-with-timeout
// policy, and the acquisition device implementations shared by every bus
// backend.
package device

// Device is one addressable sensor or actuator exposing named parameters.
// Implementations compose State for the status machine and value cache.
type Device interface {
	Name() string
	Status() Status
	SetStatus(Status)

	// Initialize performs all operations that can fail against physical
	// hardware. It must be called once before Update.
	Initialize() error

	// Update is called every polling tick while the device is ACTIVE. It is
	// cheap and non-blocking; "no data yet" is not an error.
	Update() error

	// GetData returns the cached value for key, or nil when the key is
	// unknown or stale.
	GetData(key string) any

	// Parameters lists every key ever cached, in first-seen order.
	Parameters() []string

	Close() error
}

// Interface is a shared physical transport plus the set of Devices
// multiplexed on it.
type Interface interface {
	Name() string
	Status() Status
	SetStatus(Status)
	Initialize() error
	Update() error
	Close() error

	// DeviceNames lists owned devices in registration order.
	DeviceNames() []string

	// Device returns the named device, or nil if this interface does not
	// own it.
	Device(name string) Device
}
