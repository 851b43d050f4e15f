package device

import (
	"fmt"
	"sort"
)

// Mapper converts a measured voltage into an engineering-unit value.
type Mapper interface {
	// VoltageToValue converts an input voltage to the output value.
	VoltageToValue(voltage float64) float64
	// VoltageRange returns the valid input span [min, max].
	VoltageRange() (min, max float64)
}

// LinearMapper interpolates linearly from a voltage range to an output
// range, e.g. a 0.5-4.5V pressure transducer mapping to 0-17 bar.
type LinearMapper struct {
	minVoltage, maxVoltage float64
	minOutput, maxOutput   float64
}

// NewLinearMapper builds a mapper for the given voltage and output ranges.
func NewLinearMapper(voltageRange, outputRange [2]float64) (*LinearMapper, error) {
	if voltageRange[1] <= voltageRange[0] {
		return nil, fmt.Errorf("mapper: voltage range [%v, %v] is not increasing", voltageRange[0], voltageRange[1])
	}
	return &LinearMapper{
		minVoltage: voltageRange[0],
		maxVoltage: voltageRange[1],
		minOutput:  outputRange[0],
		maxOutput:  outputRange[1],
	}, nil
}

func (m *LinearMapper) VoltageToValue(voltage float64) float64 {
	normalized := (voltage - m.minVoltage) / (m.maxVoltage - m.minVoltage)
	return normalized*(m.maxOutput-m.minOutput) + m.minOutput
}

func (m *LinearMapper) VoltageRange() (float64, float64) {
	return m.minVoltage, m.maxVoltage
}

// VoltageToResistance converts an ADC voltage reading to the sensor's
// resistance using the voltage-divider formula. fixedResistor is the known
// resistor in Ohms; supplyVoltage the divider supply.
func VoltageToResistance(adcVoltage, supplyVoltage, fixedResistor float64) float64 {
	return (adcVoltage * fixedResistor) / (supplyVoltage - adcVoltage)
}

// TableMapper maps voltages to output values for resistance-based
// non-linear sensors (NTC thermistors): the voltage is first converted to a
// resistance through the divider, then interpolated against a calibration
// table. Values outside the table are extrapolated from the end segments.
type TableMapper struct {
	resistances   []float64 // ascending
	outputs       []float64
	supplyVoltage float64
	fixedResistor float64

	minVoltage, maxVoltage float64
}

// NewTableMapper builds a mapper from a resistance/output calibration table
// and the divider circuit parameters. The table pairs are sorted by
// resistance; both slices must be the same non-zero length.
func NewTableMapper(resistances, outputs []float64, supplyVoltage, fixedResistor float64) (*TableMapper, error) {
	if len(resistances) == 0 || len(resistances) != len(outputs) {
		return nil, fmt.Errorf("mapper: resistance and output tables must have the same non-zero length (%d vs %d)",
			len(resistances), len(outputs))
	}
	if supplyVoltage <= 0 || fixedResistor <= 0 {
		return nil, fmt.Errorf("mapper: supply voltage and fixed resistor must be positive")
	}

	type pair struct{ r, o float64 }
	pairs := make([]pair, len(resistances))
	for i := range resistances {
		pairs[i] = pair{resistances[i], outputs[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].r < pairs[j].r })

	m := &TableMapper{
		resistances:   make([]float64, len(pairs)),
		outputs:       make([]float64, len(pairs)),
		supplyVoltage: supplyVoltage,
		fixedResistor: fixedResistor,
	}
	for i, p := range pairs {
		m.resistances[i] = p.r
		m.outputs[i] = p.o
	}

	// The divider output voltage grows with sensor resistance, so the table
	// endpoints bound the valid voltage span.
	m.minVoltage = dividerVoltage(m.resistances[0], supplyVoltage, fixedResistor)
	m.maxVoltage = dividerVoltage(m.resistances[len(m.resistances)-1], supplyVoltage, fixedResistor)
	return m, nil
}

func dividerVoltage(resistance, supplyVoltage, fixedResistor float64) float64 {
	return supplyVoltage * (resistance / (resistance + fixedResistor))
}

func (m *TableMapper) VoltageToValue(voltage float64) float64 {
	resistance := VoltageToResistance(voltage, m.supplyVoltage, m.fixedResistor)
	return m.ResistanceToValue(resistance)
}

// ResistanceToValue interpolates the calibration table directly.
func (m *TableMapper) ResistanceToValue(resistance float64) float64 {
	n := len(m.resistances)
	if n == 1 {
		return m.outputs[0]
	}

	// Find the segment; clamp the index so out-of-table resistances
	// extrapolate along the first or last segment.
	i := sort.SearchFloat64s(m.resistances, resistance)
	if i == 0 {
		i = 1
	} else if i >= n {
		i = n - 1
	}

	r0, r1 := m.resistances[i-1], m.resistances[i]
	o0, o1 := m.outputs[i-1], m.outputs[i]
	t := (resistance - r0) / (r1 - r0)
	return o0 + t*(o1-o0)
}

func (m *TableMapper) VoltageRange() (float64, float64) {
	return m.minVoltage, m.maxVoltage
}
