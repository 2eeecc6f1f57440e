package node

import (
	"math"

	"github.com/arloliu/go-rclink/config"
	"github.com/arloliu/go-rclink/driver"
	"github.com/arloliu/go-rclink/telegram"
)

// InputKind classifies an input event.
type InputKind uint8

const (
	InputNone InputKind = iota
	// InputAnalog is a new stick position.
	InputAnalog
	// InputTrim is a trim button press.
	InputTrim
	// InputDualRate is a dual-rate button press.
	InputDualRate
	// InputShutdown is a press of the shutdown button.
	InputShutdown
)

// String returns the kind name.
func (k InputKind) String() string {
	switch k {
	case InputAnalog:
		return "analog"
	case InputTrim:
		return "trim"
	case InputDualRate:
		return "dual-rate"
	case InputShutdown:
		return "shutdown"
	default:
		return "none"
	}
}

// Input is an input event mapped onto a channel.
type Input struct {
	Kind    InputKind
	Channel uint8
	// Value is the control value of an InputAnalog, in [0, 254].
	Value uint8
	// Step is the trim change of an InputTrim.
	Step int
}

// InputMap maps device events to channel inputs according to the transmitter bindings.
type InputMap struct {
	analog   map[uint16]config.AnalogBinding
	trim     map[uint16]config.TrimBinding
	dualRate map[uint16]uint8
	shutdown uint16
	channels []uint8
}

// NewInputMap creates the map of the bindings in cfg.
func NewInputMap(cfg config.TransmitterConfig) *InputMap {
	m := &InputMap{
		analog:   make(map[uint16]config.AnalogBinding, len(cfg.Analog)),
		trim:     make(map[uint16]config.TrimBinding, len(cfg.Trim)),
		dualRate: make(map[uint16]uint8, len(cfg.DualRate)),
		shutdown: cfg.ShutdownCode,
	}

	seen := make(map[uint8]bool)
	for _, b := range cfg.Analog {
		m.analog[b.Code] = b
		if !seen[b.Channel] {
			seen[b.Channel] = true
			m.channels = append(m.channels, b.Channel)
		}
	}
	for _, b := range cfg.Trim {
		m.trim[b.Code] = b
	}
	for _, b := range cfg.DualRate {
		m.dualRate[b.Code] = b.Channel
	}

	return m
}

// Channels returns the channels driven by analog bindings, in binding order.
func (m *InputMap) Channels() []uint8 {
	return m.channels
}

// Map classifies ev. Axis events are matched against the analog bindings, button presses
// against the trim, dual-rate and shutdown codes. Button releases and unbound codes map to
// InputNone.
func (m *InputMap) Map(ev driver.Event) Input {
	switch ev.Type {
	case driver.EventAbs:
		if b, ok := m.analog[ev.Code]; ok {
			return Input{Kind: InputAnalog, Channel: b.Channel, Value: ScaleAnalog(b, ev.Value)}
		}
	case driver.EventKey:
		if ev.Value != 1 {
			return Input{}
		}
		if b, ok := m.trim[ev.Code]; ok {
			return Input{Kind: InputTrim, Channel: b.Channel, Step: b.Step}
		}
		if ch, ok := m.dualRate[ev.Code]; ok {
			return Input{Kind: InputDualRate, Channel: ch}
		}
		if ev.Code == m.shutdown {
			return Input{Kind: InputShutdown}
		}
	}

	return Input{}
}

// ScaleAnalog maps an axis position in [b.Min, b.Max] linearly onto [0, 254], reversed when
// b.Invert is set. Positions outside the range are clamped.
func ScaleAnalog(b config.AnalogBinding, v int32) uint8 {
	v = min(max(v, b.Min), b.Max)
	scaled := math.Round((float64(v) - float64(b.Min)) * telegram.MaxValue / (float64(b.Max) - float64(b.Min)))
	if b.Invert {
		scaled = telegram.MaxValue - scaled
	}

	return uint8(scaled)
}
