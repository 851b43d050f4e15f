// Package ddsio is the top-level orchestrator: it owns every interface,
// runs the polling tick, routes parameter lookups by device name, and
// aggregates the active warnings.
package ddsio

import (
	"fmt"

	"github.com/openfsae/dds-backend/internal/device"
	"github.com/openfsae/dds-backend/internal/monitor"
	"github.com/openfsae/dds-backend/internal/telemetry"
)

// Sentinels returned to callers instead of errors. The UI and the pit
// client render these directly, so a lookup can never crash a consumer.
const (
	UnknownDevice  = "UNKNOWN_DEVICE"
	DeviceDisabled = "DISABLED"
	DeviceError    = "ERROR"
	NotInitialized = "NOT_INITIALIZED"
	NoData         = "NO_DATA"
)

// IO coordinates the polling loop across all registered interfaces.
type IO struct {
	log  *telemetry.Logger
	mon  *monitor.Monitor
	demo *demoSource

	interfaces []device.Interface
}

// New creates an orchestrator. A non-nil demo source answers every lookup
// with synthetic values and leaves the real interfaces untouched.
func New(log *telemetry.Logger, mon *monitor.Monitor, demoMode bool) *IO {
	io := &IO{log: log, mon: mon}
	if demoMode {
		io.demo = newDemoSource()
		log.Infof("ddsio", "demo mode enabled, hardware interfaces bypassed")
	}
	return io
}

// Register adds an interface to the polling set. Device names must be
// unique across the whole system so lookup by name alone is unambiguous.
func (io *IO) Register(iface device.Interface) error {
	seen := make(map[string]bool)
	for _, existing := range io.interfaces {
		for _, name := range existing.DeviceNames() {
			seen[name] = true
		}
	}
	for _, name := range iface.DeviceNames() {
		if seen[name] {
			return fmt.Errorf("ddsio: duplicate device name %q", name)
		}
	}
	io.interfaces = append(io.interfaces, iface)
	return nil
}

// Initialize brings up every registered interface. A failing interface is
// forced to ERROR with one warning; the rest still come up.
func (io *IO) Initialize() {
	if io.demo != nil {
		return
	}
	for _, iface := range io.interfaces {
		io.safeInitialize(iface)
	}
}

func (io *IO) safeInitialize(iface device.Interface) {
	if err := iface.Initialize(); err != nil {
		io.log.Criticalf("ddsio", "interface %s failed to initialize: %v", iface.Name(), err)
		iface.SetStatus(device.StatusError)
		io.mon.CreateWarning(monitor.Warning{
			Param:   iface.Name(),
			Value:   iface.Status().String(),
			Message: fmt.Sprintf("interface %s is %s", iface.Name(), iface.Status()),
		})
	}
}

// Update runs one polling tick: every ACTIVE interface in registration
// order, then validation of each device's fresh values. An interface whose
// update fails is forced to ERROR and skipped until ReinitializeErrored.
func (io *IO) Update() {
	if io.demo != nil {
		return
	}
	for _, iface := range io.interfaces {
		if iface.Status() != device.Active {
			continue
		}
		if err := iface.Update(); err != nil {
			io.log.Errorf("ddsio", "interface %s update failed: %v", iface.Name(), err)
			iface.SetStatus(device.StatusError)
			continue
		}
		io.checkInterface(iface)
	}
}

// checkInterface runs the monitor over every currently-cached value of the
// interface's devices. Stale (nil) values are skipped; absence of data is
// the cache timeout's concern, not a limit violation.
func (io *IO) checkInterface(iface device.Interface) {
	for _, name := range iface.DeviceNames() {
		d := iface.Device(name)
		if d.Status() != device.Active {
			continue
		}
		for _, param := range d.Parameters() {
			if v := d.GetData(param); v != nil {
				io.mon.CheckValue(param, v)
			}
		}
	}
}

// GetDeviceData looks up one parameter by device name. callerTag names the
// consumer for log attribution. Returns the cached value or a sentinel
// string; it never panics.
func (io *IO) GetDeviceData(deviceName, param, callerTag string) any {
	if io.demo != nil {
		return io.demo.value(deviceName, param)
	}

	d := io.findDevice(deviceName)
	if d == nil {
		io.log.Warnf("ddsio", "%s requested unknown device %s", callerTag, deviceName)
		return UnknownDevice
	}
	switch d.Status() {
	case device.Disabled:
		return DeviceDisabled
	case device.StatusError:
		return DeviceError
	case device.NotInitialized:
		return NotInitialized
	}
	if v := d.GetData(param); v != nil {
		return v
	}
	return NoData
}

func (io *IO) findDevice(name string) device.Device {
	for _, iface := range io.interfaces {
		if d := iface.Device(name); d != nil {
			return d
		}
	}
	return nil
}

// DeviceNames lists every device across all interfaces in registration
// order.
func (io *IO) DeviceNames() []string {
	if io.demo != nil {
		return io.demo.deviceNames()
	}
	var out []string
	for _, iface := range io.interfaces {
		out = append(out, iface.DeviceNames()...)
	}
	return out
}

// DeviceParameters lists the named device's parameters, or nil for an
// unknown device.
func (io *IO) DeviceParameters(deviceName string) []string {
	if io.demo != nil {
		return io.demo.parameters(deviceName)
	}
	d := io.findDevice(deviceName)
	if d == nil {
		return nil
	}
	return d.Parameters()
}

// Warnings returns the active warnings as display strings, in creation
// order.
func (io *IO) Warnings() []string {
	warnings := io.mon.Warnings()
	out := make([]string, len(warnings))
	for i, w := range warnings {
		out[i] = w.String()
	}
	return out
}

// ReinitializeErrored retries initialization of every interface currently
// in ERROR. This is the explicit maintenance pass; the polling tick never
// retries on its own.
func (io *IO) ReinitializeErrored() {
	if io.demo != nil {
		return
	}
	for _, iface := range io.interfaces {
		if iface.Status() != device.StatusError {
			continue
		}
		io.log.Infof("ddsio", "re-initializing interface %s", iface.Name())
		iface.SetStatus(device.NotInitialized)
		io.safeInitialize(iface)
		if iface.Status() == device.Active {
			io.mon.ClearWarning(iface.Name())
		}
	}
}

// Shutdown closes every interface in registration order.
func (io *IO) Shutdown() {
	if io.demo != nil {
		return
	}
	for _, iface := range io.interfaces {
		if err := iface.Close(); err != nil {
			io.log.Errorf("ddsio", "interface %s close failed: %v", iface.Name(), err)
		}
	}
}
