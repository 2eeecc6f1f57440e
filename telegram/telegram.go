package telegram

import (
	"net/netip"
	"strconv"
)

const (
	// StartMarker opens every frame.
	StartMarker byte = 0x02
	// EndMarker closes every frame.
	EndMarker byte = 0x0D

	// MaxChannel is the highest channel index.
	MaxChannel = 15
	// NumChannels is the number of channels of a receiver.
	NumChannels = MaxChannel + 1
	// MaxValue is the highest control value, 127 is the neutral position.
	MaxValue = 254
	// CenterValue is the neutral control value.
	CenterValue = 127
	// MaxTrim is the highest trim value, 25 is the neutral trim.
	MaxTrim = 50
	// CenterTrim is the neutral trim value.
	CenterTrim = 25

	// MaxFrameSize is large enough for any telegram this package produces.
	MaxFrameSize = 1024
)

// Type is the type byte of a frame.
type Type uint8

const (
	IdentifyReceiverType    Type = 1
	ValuesType              Type = 2
	IdentifyTransmitterType Type = 3
	ScreenStatusType        Type = 4
	IdentifyScreenType      Type = 5
	HeartbeatType           Type = 6
)

// String returns the name of the telegram type.
func (t Type) String() string {
	switch t {
	case IdentifyReceiverType:
		return "identify-receiver"
	case ValuesType:
		return "values"
	case IdentifyTransmitterType:
		return "identify-transmitter"
	case ScreenStatusType:
		return "screen-status"
	case IdentifyScreenType:
		return "identify-screen"
	case HeartbeatType:
		return "heartbeat"
	default:
		return "type(" + strconv.Itoa(int(t)) + ")"
	}
}

// Record kinds of a ValuesType frame.
const (
	KindShutdown byte = 100
	KindTrim     byte = 127
	KindControl  byte = 255
)

// Telegram is one application message. The concrete types are Control, Trim, Shutdown,
// IdentifyReceiver, IdentifyTransmitter, IdentifyScreen, Heartbeat and ScreenStatus.
type Telegram interface {
	// Type returns the frame type the telegram is sent as.
	Type() Type
}

// ChannelValue is one (channel, value) pair.
type ChannelValue struct {
	Channel uint8
	Value   uint8
}

// Control carries stick positions, Value in [0, 254].
type Control struct {
	Values []ChannelValue
}

// Trim carries trim settings, Value in [0, 50].
type Trim struct {
	Values []ChannelValue
}

// Shutdown asks the receiver to shut down when Value is 0.
type Shutdown struct {
	Channel uint8
	Value   uint8
}

// IdentifyReceiver is the receiver's discovery beacon.
type IdentifyReceiver struct {
	Addr netip.Addr
}

// IdentifyTransmitter is the transmitter's discovery beacon.
type IdentifyTransmitter struct {
	Addr netip.Addr
}

// IdentifyScreen is the status screen's discovery beacon.
type IdentifyScreen struct {
	Addr netip.Addr
}

// Heartbeat is sent periodically by the receiver with its analog sensor reading.
type Heartbeat struct {
	Centivolts uint16
}

// Volts returns the sensor reading in volts.
func (h Heartbeat) Volts() float64 { return float64(h.Centivolts) / 100 }

// ChannelStatus is the per-channel part of a ScreenStatus.
type ChannelStatus struct {
	Channel  uint8
	DualRate uint8 // percent of full deflection, 100 when dual-rate is off
	Trim     uint8
	Value    uint8
}

// ScreenStatus is the transmitter's telemetry for the status screen.
type ScreenStatus struct {
	Receiver   netip.Addr
	Link       uint8 // status colour, see watchdog.Color
	Centivolts uint16
	Channels   []ChannelStatus
}

func (Control) Type() Type             { return ValuesType }
func (Trim) Type() Type                { return ValuesType }
func (Shutdown) Type() Type            { return ValuesType }
func (IdentifyReceiver) Type() Type    { return IdentifyReceiverType }
func (IdentifyTransmitter) Type() Type { return IdentifyTransmitterType }
func (IdentifyScreen) Type() Type      { return IdentifyScreenType }
func (Heartbeat) Type() Type           { return HeartbeatType }
func (ScreenStatus) Type() Type        { return ScreenStatusType }

// Centivolts converts a voltage to the heartbeat representation, clamped to the uint16 range.
func Centivolts(volts float64) uint16 {
	switch cv := volts*100 + 0.5; {
	case cv <= 0:
		return 0
	case cv >= 65535:
		return 65535
	default:
		return uint16(cv)
	}
}
