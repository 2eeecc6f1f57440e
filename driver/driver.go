// Package driver defines the hardware collaborators of the rclink nodes.
//
// The receiver drives actuators through an Actuator (a 16-channel PWM chip) and reads its
// supply voltage through a Sensor (an ADC). The transmitter reads a handheld controller
// through an InputDevice. Implementations live in the sub packages: pca9685 and ads1115 for
// the receiver hardware on an I2C bus, evdev for Linux input devices and sim for simulated
// hardware used on a PC and in tests.
package driver

import (
	"errors"
	"time"
)

// ErrClosed is returned by drivers used after Close.
var ErrClosed = errors.New("driver closed")

// Actuator sets the outputs of the PWM chip. Implementations must be safe for concurrent use.
type Actuator interface {
	// SetPWM sets the on-time of channel ch in PWM ticks [0, 4095]. The pulse always starts at
	// tick 0 of the period, ticks is the off tick; phase-shifted pulses are not supported.
	SetPWM(ch int, ticks uint16) error
	// SetDigital switches channel ch fully on or fully off.
	SetDigital(ch int, on bool) error
}

// Sensor reads the analog sensor of the receiver.
type Sensor interface {
	// ReadVolts returns the measured voltage.
	ReadVolts() (float64, error)
}

// EventType is the kind of an input event.
type EventType uint16

const (
	EventSync EventType = 0x00
	EventKey  EventType = 0x01
	EventAbs  EventType = 0x03
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventSync:
		return "sync"
	case EventKey:
		return "key"
	case EventAbs:
		return "abs"
	default:
		return "other"
	}
}

// Event is one input event: a button press or release (EventKey, value 1 or 0) or a new axis
// position (EventAbs).
type Event struct {
	Time  time.Time
	Type  EventType
	Code  uint16
	Value int32
}

// InputDevice is a source of input events.
type InputDevice interface {
	// ReadEvent blocks until the next event is available.
	ReadEvent() (Event, error)
	// Close releases the device, a blocked ReadEvent returns an error.
	Close() error
}
