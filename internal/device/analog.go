package device

// AnalogChannel is one named analog input behind a Mapper: a physical ADC
// pin wired to a sensor, carrying the tolerance policy for out-of-range
// voltages.
type AnalogChannel struct {
	Name   string
	Units  string
	Mapper Mapper
	// Tolerance widens the mapper's valid voltage span by this fraction
	// (0.1 = 10%) before a reading is considered out of physical range.
	Tolerance float64
}

// InTolerance reports whether voltage lies inside the mapper's valid span
// expanded by the tolerance fraction (half on each end).
func (c *AnalogChannel) InTolerance(voltage float64) bool {
	min, max := c.Mapper.VoltageRange()
	slack := (max - min) * c.Tolerance / 2
	return voltage > min-slack && voltage < max+slack
}

// Clamp forces voltage into the mapper's valid span. This prevents
// artifacts like negative pressures when a loop is unpressurized.
func (c *AnalogChannel) Clamp(voltage float64) float64 {
	min, max := c.Mapper.VoltageRange()
	if voltage < min {
		return min
	}
	if voltage > max {
		return max
	}
	return voltage
}

// Convert applies the mapper to a voltage.
func (c *AnalogChannel) Convert(voltage float64) float64 {
	return c.Mapper.VoltageToValue(voltage)
}
