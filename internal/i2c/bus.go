// Package i2c provides the I2C transport used by the analog and inertial
// sensor devices, plus the register-level drivers for the chips on the bus.
package i2c

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Bus abstracts one I2C bus. Devices depend on this interface only, so
// tests substitute fakes for the kernel device node.
type Bus interface {
	// ReadReg reads one byte from an 8-bit register of the addressed chip.
	ReadReg(addr uint16, reg uint8) (uint8, error)
	// ReadBlock reads n consecutive bytes starting at reg.
	ReadBlock(addr uint16, reg uint8, n int) ([]byte, error)
	// WriteReg writes one byte to a register.
	WriteReg(addr uint16, reg uint8, value uint8) error
	// WriteWord writes a 16-bit big-endian word to a register.
	WriteWord(addr uint16, reg uint8, value uint16) error
	// ReadWord reads a 16-bit big-endian word from a register.
	ReadWord(addr uint16, reg uint8) (uint16, error)
	Close() error
}

// i2cSlave is the I2C_SLAVE ioctl request on Linux.
const i2cSlave = 0x0703

// DevBus talks to a Linux /dev/i2c-N character device through plain
// read/write after selecting the slave address with the I2C_SLAVE ioctl.
type DevBus struct {
	path string
	file *os.File
}

// Open opens the bus device node, e.g. "/dev/i2c-2".
func Open(path string) (*DevBus, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("i2c: open %s: %w", path, err)
	}
	return &DevBus{path: path, file: f}, nil
}

func (b *DevBus) setAddr(addr uint16) error {
	if err := unix.IoctlSetInt(int(b.file.Fd()), i2cSlave, int(addr)); err != nil {
		return fmt.Errorf("i2c: select address 0x%02x on %s: %w", addr, b.path, err)
	}
	return nil
}

func (b *DevBus) ReadReg(addr uint16, reg uint8) (uint8, error) {
	block, err := b.ReadBlock(addr, reg, 1)
	if err != nil {
		return 0, err
	}
	return block[0], nil
}

func (b *DevBus) ReadBlock(addr uint16, reg uint8, n int) ([]byte, error) {
	if err := b.setAddr(addr); err != nil {
		return nil, err
	}
	if _, err := b.file.Write([]byte{reg}); err != nil {
		return nil, fmt.Errorf("i2c: write register pointer 0x%02x: %w", reg, err)
	}
	buf := make([]byte, n)
	if _, err := b.file.Read(buf); err != nil {
		return nil, fmt.Errorf("i2c: read %d bytes from 0x%02x: %w", n, reg, err)
	}
	return buf, nil
}

func (b *DevBus) WriteReg(addr uint16, reg uint8, value uint8) error {
	if err := b.setAddr(addr); err != nil {
		return err
	}
	if _, err := b.file.Write([]byte{reg, value}); err != nil {
		return fmt.Errorf("i2c: write 0x%02x to register 0x%02x: %w", value, reg, err)
	}
	return nil
}

func (b *DevBus) WriteWord(addr uint16, reg uint8, value uint16) error {
	if err := b.setAddr(addr); err != nil {
		return err
	}
	if _, err := b.file.Write([]byte{reg, byte(value >> 8), byte(value)}); err != nil {
		return fmt.Errorf("i2c: write word 0x%04x to register 0x%02x: %w", value, reg, err)
	}
	return nil
}

func (b *DevBus) ReadWord(addr uint16, reg uint8) (uint16, error) {
	block, err := b.ReadBlock(addr, reg, 2)
	if err != nil {
		return 0, err
	}
	return uint16(block[0])<<8 | uint16(block[1]), nil
}

func (b *DevBus) Close() error {
	return b.file.Close()
}
