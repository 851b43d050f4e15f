package device

import (
	"fmt"
	"math"

	"github.com/openfsae/dds-backend/internal/telemetry"
)

// VoltageReader is the hardware beneath an ADC device: a multi-channel
// analog-to-digital converter whose reads are slow enough to need the
// threaded-acquisition pattern.
type VoltageReader interface {
	// Setup configures the converter. Called once from Initialize.
	Setup() error
	// ReadVoltages performs the blocking read of every channel, in channel
	// order. An unavailable channel is reported as NaN.
	ReadVoltages() ([]float64, error)
}

// ADC is a multi-channel analog acquisition device (ADS1015-style). Each
// physical channel is described by an AnalogChannel that maps the measured
// voltage into engineering units.
type ADC struct {
	*State
	log      *telemetry.Logger
	reader   VoltageReader
	channels []*AnalogChannel
	col      *Collector[[]float64]
}

// NewADC creates an ADC device over reader with one AnalogChannel per
// physical pin.
func NewADC(name string, log *telemetry.Logger, reader VoltageReader, channels []*AnalogChannel) *ADC {
	a := &ADC{
		State:    NewState(name, log),
		log:      log,
		reader:   reader,
		channels: channels,
	}
	a.col = NewCollector(name, log, reader.ReadVoltages,
		func() bool { return a.Status() == Active },
		func() { a.SetStatus(StatusError) })
	return a
}

// Initialize configures the converter and starts the acquisition worker.
func (a *ADC) Initialize() error {
	if err := a.reader.Setup(); err != nil {
		return fmt.Errorf("adc %s: %w", a.Name(), err)
	}
	// The worker only runs while ACTIVE, so flip status before starting it.
	a.SetStatus(Active)
	a.col.Start()
	return nil
}

// Update dequeues the newest reading without blocking. A reading with any
// unavailable channel is discarded whole.
func (a *ADC) Update() error {
	voltages, ok := a.col.Latest()
	if !ok {
		a.CheckTimeout()
		return nil
	}
	if len(voltages) != len(a.channels) || anyNaN(voltages) {
		a.CheckTimeout()
		return nil
	}

	for i, ch := range a.channels {
		voltage := voltages[i]
		var value float64
		if !ch.InTolerance(voltage) {
			value = ch.Convert(voltage)
			a.log.Warnf(a.Name(), "%s out of tolerable range! voltage: %.3fv, value: %.2f%s",
				ch.Name, voltage, value, ch.Units)
		} else {
			value = ch.Convert(ch.Clamp(voltage))
		}
		a.Put(ch.Name, value)
		a.log.Telemetry(a.Name(), ch.Name, value, ch.Units)
	}
	a.MarkFresh()
	return nil
}

// Close stops the acquisition worker and joins it. The worker is stopped
// before the status flips so it never mistakes shutdown for a fault.
func (a *ADC) Close() error {
	a.col.Close()
	a.SetStatus(Disabled)
	return nil
}

func anyNaN(vals []float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
