package i2c

import (
	"fmt"
	"math"
	"time"
)

// ADS1015 register map.
const (
	adsRegConversion = 0x00
	adsRegConfig     = 0x01

	// Config register fields.
	adsOSSingle   = 0x8000 // start a single conversion / conversion ready
	adsModeSingle = 0x0100
	adsGain6V144  = 0x0000 // FSR ±6.144V, must exceed the highest voltage measured
	adsRate1600   = 0x0080 // 1600 SPS
	adsCompDis    = 0x0003 // comparator disabled

	// MUX settings for single-ended channels AIN0..AIN3.
	adsMuxAIN0 = 0x4000
)

// adsFullScale is the FSR in volts matching adsGain6V144.
const adsFullScale = 6.144

// ADS1015 drives the 4-channel 12-bit converter in single-shot mode. A full
// read sweeps all four mux channels, which is why devices built on it use
// the threaded-acquisition pattern.
type ADS1015 struct {
	bus      Bus
	addr     uint16
	channels int
}

// NewADS1015 creates a driver for the converter at addr reading the first
// channels single-ended inputs.
func NewADS1015(bus Bus, addr uint16, channels int) *ADS1015 {
	if channels <= 0 || channels > 4 {
		channels = 4
	}
	return &ADS1015{bus: bus, addr: addr, channels: channels}
}

// Setup verifies the chip responds by reading back the config register.
func (a *ADS1015) Setup() error {
	if _, err := a.bus.ReadWord(a.addr, adsRegConfig); err != nil {
		return fmt.Errorf("ads1015: config read: %w", err)
	}
	return nil
}

// ReadVoltages performs one single-shot conversion per channel and returns
// the measured voltages in channel order. A channel whose conversion fails
// is reported as NaN; the consumer treats the whole sweep as absent.
func (a *ADS1015) ReadVoltages() ([]float64, error) {
	voltages := make([]float64, a.channels)
	for ch := 0; ch < a.channels; ch++ {
		v, err := a.readChannel(ch)
		if err != nil {
			// Occasional bus hiccups happen over I2C; discard the sweep
			// rather than mix stale channels.
			voltages[ch] = math.NaN()
			continue
		}
		voltages[ch] = v
	}
	return voltages, nil
}

func (a *ADS1015) readChannel(ch int) (float64, error) {
	mux := uint16(adsMuxAIN0 + ch*0x1000)
	config := uint16(adsOSSingle) | mux | adsGain6V144 | adsModeSingle | adsRate1600 | adsCompDis
	if err := a.bus.WriteWord(a.addr, adsRegConfig, config); err != nil {
		return 0, err
	}

	// Poll the OS bit until the conversion completes (~0.6ms at 1600 SPS).
	deadline := time.Now().Add(10 * time.Millisecond)
	for {
		status, err := a.bus.ReadWord(a.addr, adsRegConfig)
		if err != nil {
			return 0, err
		}
		if status&adsOSSingle != 0 {
			break
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("ads1015: conversion timeout on channel %d", ch)
		}
		time.Sleep(100 * time.Microsecond)
	}

	raw, err := a.bus.ReadWord(a.addr, adsRegConversion)
	if err != nil {
		return 0, err
	}
	// 12-bit result left-aligned in the 16-bit register, two's complement.
	value := int16(raw) >> 4
	return float64(value) * adsFullScale / 2048, nil
}
