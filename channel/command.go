package channel

import (
	"fmt"

	"github.com/arloliu/go-rclink/telegram"
)

// MaxTicks is the largest PWM value of the 12-bit PWM driver.
const MaxTicks = 4095

// Direction is the rotation direction of an H-bridge channel.
type Direction int8

const (
	Stop    Direction = 0
	Forward Direction = 1
	Back    Direction = -1
)

// String returns the name of the direction.
func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Back:
		return "reverse"
	default:
		return "stop"
	}
}

// Actuator is the output side a Command is applied to. Implementations must be safe for
// concurrent use, commands are applied from the IO goroutine and from the watchdog goroutine.
type Actuator interface {
	// SetPWM sets the on-time of channel ch in PWM ticks [0, 4095]. The pulse always starts at
	// tick 0 of the period, ticks is the off tick; phase-shifted pulses are not supported.
	SetPWM(ch int, ticks uint16) error
	// SetDigital switches channel ch fully on or off.
	SetDigital(ch int, on bool) error
}

// Command is the actuator output computed for one channel value.
type Command struct {
	Channel int
	Mode    Mode
	// Value is the control value after shaping and filtering.
	Value uint8
	// Ticks is the servo pulse or the H-bridge duty, in PWM ticks.
	Ticks uint16
	// On is the state of a digital output.
	On bool
	// Direction is the H-bridge direction.
	Direction Direction
}

// Apply drives cmd on a.
//
// An H-bridge command sets the duty on Channel, then the forward line on Channel+1 and the
// reverse line on Channel+2. Apply stops at the first actuator error.
func (cmd Command) Apply(a Actuator) error {
	switch cmd.Mode {
	case ModeServo:
		return a.SetPWM(cmd.Channel, cmd.Ticks)

	case ModeDigital:
		return a.SetDigital(cmd.Channel, cmd.On)

	case ModeHBridge:
		if err := a.SetPWM(cmd.Channel, cmd.Ticks); err != nil {
			return err
		}
		if err := a.SetDigital(cmd.Channel+1, cmd.Direction == Forward); err != nil {
			return err
		}
		return a.SetDigital(cmd.Channel+2, cmd.Direction == Back)

	default:
		return fmt.Errorf("%w: channel %d: unknown mode %d", ErrInvalidConfig, cmd.Channel, cmd.Mode)
	}
}

// ApplyAll drives all commands on a and returns the first error, after trying every command.
func ApplyAll(a Actuator, cmds []Command) error {
	var firstErr error
	for _, cmd := range cmds {
		if err := cmd.Apply(a); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// directionLines marks the channels used as direction lines by H-bridge channels.
func directionLines(modeOf func(ch int) Mode) [telegram.NumChannels]bool {
	var lines [telegram.NumChannels]bool
	for ch := range telegram.NumChannels {
		if modeOf(ch) != ModeHBridge {
			continue
		}
		for _, line := range []int{ch + 1, ch + 2} {
			if line < telegram.NumChannels {
				lines[line] = true
			}
		}
	}

	return lines
}
