package channel

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode selects how a channel value is turned into actuator output.
type Mode uint8

const (
	// ModeServo drives a servo with a pulse width between center-rate and center+rate.
	ModeServo Mode = iota
	// ModeDigital drives a digital output, value 0 is off and any other value is on.
	ModeDigital
	// ModeHBridge drives an H-bridge: PWM duty on the channel, direction on the two
	// following channels (channel+1 forward, channel+2 reverse).
	ModeHBridge
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeServo:
		return "servo"
	case ModeDigital:
		return "digital"
	case ModeHBridge:
		return "hbridge"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode parses a mode name. "dio" and "l298" are accepted as aliases of
// "digital" and "hbridge".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "servo":
		return ModeServo, nil
	case "digital", "dio":
		return ModeDigital, nil
	case "hbridge", "l298":
		return ModeHBridge, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *Mode) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	mode, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = mode

	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (m Mode) MarshalYAML() (any, error) {
	return m.String(), nil
}
