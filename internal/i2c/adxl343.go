package i2c

import (
	"fmt"
)

// ADXL343 register map.
const (
	adxlRegBWRate     = 0x2C
	adxlRegPowerCtl   = 0x2D
	adxlRegDataFormat = 0x31
	adxlRegDataX0     = 0x32

	adxlMeasure = 0x08 // POWER_CTL measure bit
)

// adxlValidAddresses are the two strap-selectable addresses of the part.
var adxlValidAddresses = []uint16{0x1D, 0x53}

// adxlRangeSettings maps a ±g range to its bit depth, sensitivity (LSB/g)
// and DATA_FORMAT range bits.
var adxlRangeSettings = map[int]struct {
	bitDepth    int
	sensitivity float64
	config      uint8
}{
	2:  {10, 256, 0x00},
	4:  {11, 128, 0x01},
	8:  {12, 64, 0x02},
	16: {13, 32, 0x03},
}

// adxlRateCodes maps a sample rate in Hz to the BW_RATE code.
var adxlRateCodes = map[int]uint8{
	3200: 0x0F, 1600: 0x0E, 800: 0x0D, 400: 0x0C,
	200: 0x0B, 100: 0x0A, 50: 0x09, 25: 0x08,
}

// ADXL343 drives the 3-axis accelerometer: range and rate configuration at
// setup, then 6-byte burst reads of the axis registers.
type ADXL343 struct {
	bus        Bus
	addr       uint16
	gRange     int
	sampleRate int
}

// NewADXL343 creates a driver for the accelerometer at addr. The address
// must be one of the part's two strap options (0x1D or 0x53).
func NewADXL343(bus Bus, addr uint16, gRange, sampleRate int) (*ADXL343, error) {
	valid := false
	for _, a := range adxlValidAddresses {
		if a == addr {
			valid = true
		}
	}
	if !valid {
		return nil, fmt.Errorf("adxl343: i2c address 0x%02x is not valid for this part", addr)
	}
	if _, ok := adxlRangeSettings[gRange]; !ok {
		return nil, fmt.Errorf("adxl343: ±%dg range not supported", gRange)
	}
	if _, ok := adxlRateCodes[sampleRate]; !ok {
		return nil, fmt.Errorf("adxl343: %d Hz sample rate not supported", sampleRate)
	}
	return &ADXL343{bus: bus, addr: addr, gRange: gRange, sampleRate: sampleRate}, nil
}

// Setup configures range and sample rate, then enables measurement mode.
func (a *ADXL343) Setup() error {
	// Range bits live in DATA_FORMAT[1:0]; preserve the rest.
	format, err := a.bus.ReadReg(a.addr, adxlRegDataFormat)
	if err != nil {
		return fmt.Errorf("adxl343: read DATA_FORMAT: %w", err)
	}
	format = (format &^ 0x03) | adxlRangeSettings[a.gRange].config
	if err := a.bus.WriteReg(a.addr, adxlRegDataFormat, format); err != nil {
		return fmt.Errorf("adxl343: write DATA_FORMAT: %w", err)
	}

	// Rate code lives in BW_RATE[3:0].
	rate, err := a.bus.ReadReg(a.addr, adxlRegBWRate)
	if err != nil {
		return fmt.Errorf("adxl343: read BW_RATE: %w", err)
	}
	rate = (rate &^ 0x0F) | adxlRateCodes[a.sampleRate]
	if err := a.bus.WriteReg(a.addr, adxlRegBWRate, rate); err != nil {
		return fmt.Errorf("adxl343: write BW_RATE: %w", err)
	}

	// Standby first, then measurement mode, per the datasheet bring-up.
	if err := a.bus.WriteReg(a.addr, adxlRegPowerCtl, adxlMeasure); err != nil {
		return fmt.Errorf("adxl343: enable measurement: %w", err)
	}
	return nil
}

// ReadAcceleration burst-reads the six axis bytes and converts each pair to
// acceleration in g using the configured range's sensitivity.
func (a *ADXL343) ReadAcceleration() ([]float64, error) {
	raw, err := a.bus.ReadBlock(a.addr, adxlRegDataX0, 6)
	if err != nil {
		return nil, fmt.Errorf("adxl343: read axis data: %w", err)
	}
	settings := adxlRangeSettings[a.gRange]
	out := make([]float64, 3)
	for axis := 0; axis < 3; axis++ {
		out[axis] = convertAxis(raw[axis*2], raw[axis*2+1], settings.bitDepth, settings.sensitivity)
	}
	return out, nil
}

// convertAxis combines an LSB/MSB pair into a signed value of bitDepth bits
// and scales it to g.
func convertAxis(lsb, msb uint8, bitDepth int, sensitivity float64) float64 {
	msbBits := bitDepth - 8
	msbMask := uint16(1<<msbBits) - 1
	combined := (uint16(msb)&msbMask)<<8 | uint16(lsb)

	signed := int32(combined)
	if combined >= 1<<(bitDepth-1) {
		signed -= 1 << bitDepth
	}
	return float64(signed) / sensitivity
}
