// Package i2c provides register access to devices on an I2C bus.
package i2c

import (
	"fmt"
	"sync"
)

// Bus reads and writes device registers. Implementations must be safe for concurrent use.
type Bus interface {
	WriteReg(addr uint16, reg byte, data []byte) error
	ReadReg(addr uint16, reg byte, buf []byte) error
	Close() error
}

// WriteByte writes a single register.
func WriteByte(b Bus, addr uint16, reg byte, v byte) error {
	return b.WriteReg(addr, reg, []byte{v})
}

// ReadByte reads a single register.
func ReadByte(b Bus, addr uint16, reg byte) (byte, error) {
	var buf [1]byte
	if err := b.ReadReg(addr, reg, buf[:]); err != nil {
		return 0, err
	}

	return buf[0], nil
}

// MemBus is a register file per device address, used by simulations and tests.
type MemBus struct {
	mu     sync.Mutex
	regs   map[uint16]*[256]byte
	writes int
}

var _ Bus = (*MemBus)(nil)

// NewMemBus creates an empty MemBus.
func NewMemBus() *MemBus {
	return &MemBus{regs: make(map[uint16]*[256]byte)}
}

func (b *MemBus) device(addr uint16) *[256]byte {
	d, ok := b.regs[addr]
	if !ok {
		d = new([256]byte)
		b.regs[addr] = d
	}

	return d
}

// WriteReg implements Bus, consecutive bytes go to consecutive registers.
func (b *MemBus) WriteReg(addr uint16, reg byte, data []byte) error {
	if int(reg)+len(data) > 256 {
		return fmt.Errorf("i2c 0x%02x: write of %d bytes at 0x%02x exceeds register space", addr, len(data), reg)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	copy(b.device(addr)[reg:], data)
	b.writes++

	return nil
}

// ReadReg implements Bus.
func (b *MemBus) ReadReg(addr uint16, reg byte, buf []byte) error {
	if int(reg)+len(buf) > 256 {
		return fmt.Errorf("i2c 0x%02x: read of %d bytes at 0x%02x exceeds register space", addr, len(buf), reg)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	copy(buf, b.device(addr)[reg:])

	return nil
}

// Reg returns the current value of a register.
func (b *MemBus) Reg(addr uint16, reg byte) byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.device(addr)[reg]
}

// Writes returns the number of register writes.
func (b *MemBus) Writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.writes
}

// Close implements Bus.
func (b *MemBus) Close() error { return nil }
