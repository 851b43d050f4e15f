package i2c

import (
	"fmt"

	"github.com/openfsae/dds-backend/internal/device"
	"github.com/openfsae/dds-backend/internal/telemetry"
)

// I2CInterface is one /dev/i2c-N bus plus the devices multiplexed on it.
// A device that fails to initialize goes to ERROR on its own; the interface
// stays ACTIVE as long as the bus itself opened.
type I2CInterface struct {
	*device.State
	log     *telemetry.Logger
	bus     Bus
	names   []string
	devices map[string]device.Device
}

// NewInterface creates an I2C interface owning devices, in the given order.
func NewInterface(name string, log *telemetry.Logger, bus Bus, devices []device.Device) *I2CInterface {
	i := &I2CInterface{
		State:   device.NewState(name, log),
		log:     log,
		bus:     bus,
		devices: make(map[string]device.Device, len(devices)),
	}
	for _, d := range devices {
		i.names = append(i.names, d.Name())
		i.devices[d.Name()] = d
	}
	return i
}

// Initialize brings up every owned device. A device failure marks that
// device ERROR and moves on; the interface only fails when no device at all
// could be brought up.
func (i *I2CInterface) Initialize() error {
	var up int
	for _, name := range i.names {
		d := i.devices[name]
		if err := d.Initialize(); err != nil {
			i.log.Criticalf(i.Name(), "device %s failed to initialize: %v", name, err)
			d.SetStatus(device.StatusError)
			continue
		}
		up++
	}
	if up == 0 && len(i.names) > 0 {
		return fmt.Errorf("i2c %s: no devices initialized", i.Name())
	}
	i.SetStatus(device.Active)
	return nil
}

// Update fans the polling tick out to every ACTIVE device. A device whose
// update fails goes to ERROR and is skipped until re-initialized.
func (i *I2CInterface) Update() error {
	for _, name := range i.names {
		d := i.devices[name]
		if d.Status() != device.Active {
			continue
		}
		if err := d.Update(); err != nil {
			i.log.Errorf(i.Name(), "device %s update failed: %v", name, err)
			d.SetStatus(device.StatusError)
		}
	}
	return nil
}

// Close shuts down every device, then the bus.
func (i *I2CInterface) Close() error {
	for _, name := range i.names {
		i.devices[name].Close()
	}
	i.SetStatus(device.Disabled)
	if i.bus != nil {
		return i.bus.Close()
	}
	return nil
}

// DeviceNames lists owned devices in registration order.
func (i *I2CInterface) DeviceNames() []string {
	out := make([]string, len(i.names))
	copy(out, i.names)
	return out
}

// Device returns the named device, or nil.
func (i *I2CInterface) Device(name string) device.Device {
	return i.devices[name]
}
