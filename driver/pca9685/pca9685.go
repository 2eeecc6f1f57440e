// Package pca9685 drives the NXP PCA9685 16-channel 12-bit PWM controller.
package pca9685

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/arloliu/go-rclink/driver"
	"github.com/arloliu/go-rclink/driver/i2c"
)

// DefaultAddr is the bus address with all address pins low.
const DefaultAddr uint16 = 0x40

const (
	regMode1     = 0x00
	regMode2     = 0x01
	regLED0OnL   = 0x06
	regAllLEDOnL = 0xFA
	regPrescale  = 0xFE

	mode1Restart = 0x80
	mode1Sleep   = 0x10
	mode1AutoInc = 0x20
	mode1AllCall = 0x01
	mode2OutDrv  = 0x04

	// fullBit in the ON_H or OFF_H register switches the output fully on or off.
	fullBit = 0x10

	oscillatorHz = 25_000_000

	// NumChannels is the number of PWM outputs.
	NumChannels = 16
	// MaxTicks is the largest on-time.
	MaxTicks = 4095
)

// Device is a PCA9685 on an I2C bus. It implements driver.Actuator and is safe for
// concurrent use.
type Device struct {
	mu   sync.Mutex
	bus  i2c.Bus
	addr uint16
}

var _ driver.Actuator = (*Device)(nil)

// New returns a device at addr on bus. Call Init before use.
func New(bus i2c.Bus, addr uint16) *Device {
	return &Device{bus: bus, addr: addr}
}

// Init switches every output off, selects totem-pole outputs and register auto increment,
// wakes the oscillator and sets the PWM frequency.
func (d *Device) Init(freqHz float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// register auto increment is still off, one register per write
	for i := range byte(4) {
		if err := i2c.WriteByte(d.bus, d.addr, regAllLEDOnL+i, 0); err != nil {
			return fmt.Errorf("pca9685: reset outputs: %w", err)
		}
	}
	if err := i2c.WriteByte(d.bus, d.addr, regMode2, mode2OutDrv); err != nil {
		return fmt.Errorf("pca9685: mode2: %w", err)
	}
	if err := i2c.WriteByte(d.bus, d.addr, regMode1, mode1AllCall|mode1AutoInc); err != nil {
		return fmt.Errorf("pca9685: mode1: %w", err)
	}
	time.Sleep(5 * time.Millisecond)

	mode1, err := i2c.ReadByte(d.bus, d.addr, regMode1)
	if err != nil {
		return fmt.Errorf("pca9685: read mode1: %w", err)
	}
	if err := i2c.WriteByte(d.bus, d.addr, regMode1, mode1&^mode1Sleep); err != nil {
		return fmt.Errorf("pca9685: wake: %w", err)
	}
	time.Sleep(5 * time.Millisecond)

	return d.setFrequency(freqHz)
}

// Prescale returns the prescaler value for freqHz.
func Prescale(freqHz float64) byte {
	p := math.Round(oscillatorHz/(4096*freqHz)) - 1
	return byte(min(max(p, 3), 255))
}

// setFrequency must be called with mu held.
func (d *Device) setFrequency(freqHz float64) error {
	if freqHz <= 0 {
		return fmt.Errorf("pca9685: invalid frequency %v", freqHz)
	}

	oldMode, err := i2c.ReadByte(d.bus, d.addr, regMode1)
	if err != nil {
		return fmt.Errorf("pca9685: read mode1: %w", err)
	}

	// the prescaler can only be written while the oscillator sleeps
	steps := []struct {
		reg byte
		val byte
	}{
		{regMode1, (oldMode &^ mode1Restart) | mode1Sleep},
		{regPrescale, Prescale(freqHz)},
		{regMode1, oldMode},
	}
	for _, s := range steps {
		if err := i2c.WriteByte(d.bus, d.addr, s.reg, s.val); err != nil {
			return fmt.Errorf("pca9685: set frequency: %w", err)
		}
	}
	time.Sleep(5 * time.Millisecond)

	if err := i2c.WriteByte(d.bus, d.addr, regMode1, oldMode|mode1Restart); err != nil {
		return fmt.Errorf("pca9685: restart: %w", err)
	}

	return nil
}

// SetPWM implements driver.Actuator. The output turns on at tick 0 and off at ticks.
func (d *Device) SetPWM(ch int, ticks uint16) error {
	if ch < 0 || ch >= NumChannels {
		return fmt.Errorf("pca9685: invalid channel %d", ch)
	}
	ticks = min(ticks, MaxTicks)

	return d.writeLED(ch, [4]byte{0, 0, byte(ticks), byte(ticks >> 8)})
}

// SetDigital implements driver.Actuator using the full-on and full-off bits.
func (d *Device) SetDigital(ch int, on bool) error {
	if ch < 0 || ch >= NumChannels {
		return fmt.Errorf("pca9685: invalid channel %d", ch)
	}

	if on {
		return d.writeLED(ch, [4]byte{0, fullBit, 0, 0})
	}

	return d.writeLED(ch, [4]byte{0, 0, 0, fullBit})
}

func (d *Device) writeLED(ch int, regs [4]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	reg := byte(regLED0OnL + 4*ch)
	if err := d.bus.WriteReg(d.addr, reg, regs[:]); err != nil {
		return fmt.Errorf("pca9685: channel %d: %w", ch, err)
	}

	return nil
}
