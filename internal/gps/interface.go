package gps

import (
	"fmt"

	"github.com/openfsae/dds-backend/internal/device"
	"github.com/openfsae/dds-backend/internal/telemetry"
)

// GPSInterface wraps a Receiver as a polled interface that is also its own
// single device. ReadFix blocks on the serial port, so acquisition runs on
// the shared collector and Update only dequeues.
type GPSInterface struct {
	*device.State
	log      *telemetry.Logger
	receiver Receiver
	col      *device.Collector[*Fix]
}

// NewInterface creates a GPS interface over receiver.
func NewInterface(name string, log *telemetry.Logger, receiver Receiver) *GPSInterface {
	return &GPSInterface{
		State:    device.NewState(name, log),
		log:      log,
		receiver: receiver,
	}
}

// Initialize connects the receiver and starts the acquisition worker. A
// fresh collector per start keeps re-initialization after a fault possible.
func (g *GPSInterface) Initialize() error {
	if err := g.receiver.Connect(); err != nil {
		return fmt.Errorf("gps %s: %w", g.Name(), err)
	}
	g.SetStatus(device.Active)
	g.col = device.NewCollector(g.Name(), g.log, g.receiver.ReadFix,
		func() bool { return g.Status() == device.Active },
		func() { g.SetStatus(device.StatusError) })
	g.col.Start()
	return nil
}

// Update caches the newest fix if one arrived. An invalid fix still counts
// as a successful read; its position fields are simply not trusted by
// consumers, which check fixValid.
func (g *GPSInterface) Update() error {
	fix, ok := g.col.Latest()
	if !ok {
		g.CheckTimeout()
		return nil
	}

	g.Put("latitude", fix.Latitude)
	g.Put("longitude", fix.Longitude)
	g.Put("speedKph", fix.Speed)
	g.Put("heading", fix.Heading)
	g.Put("altitude", fix.Altitude)
	g.Put("satellites", fix.Satellites)
	g.Put("fixValid", fix.Valid)
	g.MarkFresh()

	g.log.Telemetry(g.Name(), "latitude", fix.Latitude, "deg")
	g.log.Telemetry(g.Name(), "longitude", fix.Longitude, "deg")
	g.log.Telemetry(g.Name(), "speedKph", fix.Speed, "km/h")
	g.log.Telemetry(g.Name(), "heading", fix.Heading, "deg")
	g.log.Telemetry(g.Name(), "altitude", fix.Altitude, "m")
	g.log.Telemetry(g.Name(), "satellites", fix.Satellites, "count")
	g.log.Telemetry(g.Name(), "fixValid", fix.Valid, "")
	return nil
}

// Close stops the worker and closes the port. The worker is stopped before
// the status flips so it never mistakes shutdown for a fault.
func (g *GPSInterface) Close() error {
	if g.col != nil {
		g.col.Close()
	}
	g.SetStatus(device.Disabled)
	return g.receiver.Close()
}

// DeviceNames reports the receiver as its own single device.
func (g *GPSInterface) DeviceNames() []string { return []string{g.Name()} }

// Device returns the interface itself when name matches.
func (g *GPSInterface) Device(name string) device.Device {
	if name == g.Name() {
		return g
	}
	return nil
}
