package ddsio

import (
	"math"
	"math/rand"
	"sync"
)

// demoSource generates simulated values for development without hardware.
// It answers every lookup itself and never touches a real interface.
type demoSource struct {
	mu sync.Mutex
	t  float64 // virtual time accumulator
}

// demoDevices enumerates the simulated device tree, matching the shape of
// a typical car configuration.
var demoDevices = map[string][]string{
	"canMain":       {"rpm", "coolantTemp", "oilPressure", "batteryVoltage", "throttlePosition"},
	"coolingLoop":   {"coolantInletTemp", "coolantOutletTemp"},
	"accelerometer": {"accelX", "accelY", "accelZ"},
	"gpsReceiver":   {"latitude", "longitude", "speedKph", "heading"},
}

var demoDeviceOrder = []string{"canMain", "coolingLoop", "accelerometer", "gpsReceiver"}

func newDemoSource() *demoSource {
	return &demoSource{}
}

func (d *demoSource) deviceNames() []string {
	out := make([]string, len(demoDeviceOrder))
	copy(out, demoDeviceOrder)
	return out
}

func (d *demoSource) parameters(deviceName string) []string {
	params, ok := demoDevices[deviceName]
	if !ok {
		return nil
	}
	out := make([]string, len(params))
	copy(out, params)
	return out
}

// value synthesizes a plausible reading for any known parameter. Unknown
// devices still answer with the sentinel so demo mode exercises the same
// caller paths as hardware mode.
func (d *demoSource) value(deviceName, param string) any {
	if _, ok := demoDevices[deviceName]; !ok {
		return UnknownDevice
	}

	d.mu.Lock()
	d.t += 0.05
	t := d.t
	d.mu.Unlock()

	switch param {
	case "rpm":
		return 850 + 4000*math.Sin(t*0.3)*math.Sin(t*0.3) + rand.Float64()*50
	case "coolantTemp", "coolantInletTemp":
		return 85 + rand.Float64()*5
	case "coolantOutletTemp":
		return 92 + rand.Float64()*5
	case "oilPressure":
		return 3.5 + 0.5*math.Sin(t*0.2)
	case "batteryVoltage":
		return 13.8 + rand.Float64()*0.4
	case "throttlePosition":
		return math.Abs(100 * math.Sin(t*0.15))
	case "accelX":
		return 0.3 * math.Sin(t*0.4)
	case "accelY":
		return 0.8 * math.Cos(t*0.4)
	case "accelZ":
		return 1 + rand.Float64()*0.05
	case "latitude":
		return 43.6532 + 0.005*math.Sin(t*0.1)
	case "longitude":
		return -79.3832 + 0.005*math.Cos(t*0.1)
	case "speedKph":
		return 50 + 30*math.Sin(t*0.3) + rand.Float64()*5
	case "heading":
		return math.Mod(t*10, 360)
	}
	return NoData
}
