package device

import (
	"fmt"

	"github.com/openfsae/dds-backend/internal/telemetry"
)

// AccelReader is the hardware beneath an Accelerometer device.
type AccelReader interface {
	// Setup configures range, sample rate and measurement mode.
	Setup() error
	// ReadAcceleration performs the blocking read and returns [x, y, z]
	// acceleration in g.
	ReadAcceleration() ([]float64, error)
}

var accelAxes = []string{"accelX", "accelY", "accelZ"}

// Accelerometer is a 3-axis threaded-acquisition device (ADXL343-style).
// It caches one key per axis plus a combined 3-element array under the
// "acceleration" key.
type Accelerometer struct {
	*State
	log    *telemetry.Logger
	reader AccelReader
	col    *Collector[[]float64]
}

// NewAccelerometer creates an accelerometer device over reader.
func NewAccelerometer(name string, log *telemetry.Logger, reader AccelReader) *Accelerometer {
	a := &Accelerometer{
		State:  NewState(name, log),
		log:    log,
		reader: reader,
	}
	a.col = NewCollector(name, log, reader.ReadAcceleration,
		func() bool { return a.Status() == Active },
		func() { a.SetStatus(StatusError) })
	return a
}

// Initialize configures the sensor and starts the acquisition worker.
func (a *Accelerometer) Initialize() error {
	if err := a.reader.Setup(); err != nil {
		return fmt.Errorf("accelerometer %s: %w", a.Name(), err)
	}
	a.SetStatus(Active)
	a.col.Start()
	return nil
}

// Update dequeues the newest reading without blocking. A reading missing
// any axis is discarded whole.
func (a *Accelerometer) Update() error {
	accel, ok := a.col.Latest()
	if !ok {
		a.CheckTimeout()
		return nil
	}
	if len(accel) != len(accelAxes) || anyNaN(accel) {
		a.CheckTimeout()
		return nil
	}

	for i, axis := range accelAxes {
		a.Put(axis, accel[i])
		a.log.Telemetry(a.Name(), axis, accel[i], "g")
	}
	a.Put("acceleration", accel)
	a.log.Telemetry(a.Name(), "acceleration", accel, "g")
	a.MarkFresh()
	return nil
}

// Close stops the acquisition worker and joins it.
func (a *Accelerometer) Close() error {
	a.col.Close()
	a.SetStatus(Disabled)
	return nil
}
