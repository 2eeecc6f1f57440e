package telegram

import (
	"fmt"
	"net/netip"
)

// symbolBase is the symbol of nibble 0, nibble 15 is '?'.
const symbolBase byte = '0'

// EncodeByte returns the two symbols representing v.
//
// It returns an error wrapping ErrValueRange if v is outside [0, 255].
func EncodeByte(v int) ([2]byte, error) {
	if v < 0 || v > 255 {
		return [2]byte{}, fmt.Errorf("%w: %d", ErrValueRange, v)
	}
	b := byte(v)

	return [2]byte{symbolBase + b>>4, symbolBase + b&0x0F}, nil
}

func appendByte(dst []byte, b byte) []byte {
	return append(dst, symbolBase+b>>4, symbolBase+b&0x0F)
}

// Encode serializes t into a complete frame.
//
// It returns an error wrapping ErrInvalidTelegram if t holds values outside the protocol ranges.
func Encode(t Telegram) ([]byte, error) {
	return AppendEncode(make([]byte, 0, 64), t)
}

// AppendEncode appends the frame of t to dst and returns the extended buffer.
// On error dst is returned unchanged.
func AppendEncode(dst []byte, t Telegram) ([]byte, error) {
	if err := validate(t); err != nil {
		return dst, err
	}

	out := append(dst, StartMarker)
	out = appendByte(out, byte(t.Type()))

	switch v := deref(t).(type) {
	case Control:
		out = appendRecords(out, KindControl, v.Values)
	case Trim:
		out = appendRecords(out, KindTrim, v.Values)
	case Shutdown:
		out = appendRecords(out, KindShutdown, []ChannelValue{{Channel: v.Channel, Value: v.Value}})
	case IdentifyReceiver:
		out = appendAddr(out, v.Addr)
	case IdentifyTransmitter:
		out = appendAddr(out, v.Addr)
	case IdentifyScreen:
		out = appendAddr(out, v.Addr)
	case Heartbeat:
		out = appendUint16(out, v.Centivolts)
	case ScreenStatus:
		out = appendAddr(out, v.Receiver)
		out = appendByte(out, v.Link)
		out = appendUint16(out, v.Centivolts)
		for _, ch := range v.Channels {
			out = appendByte(out, ch.Channel)
			out = appendByte(out, ch.DualRate)
			out = appendByte(out, ch.Trim)
			out = appendByte(out, ch.Value)
		}
	}

	return append(out, EndMarker), nil
}

func appendRecords(dst []byte, kind byte, values []ChannelValue) []byte {
	for _, cv := range values {
		dst = appendByte(dst, kind)
		dst = appendByte(dst, cv.Channel)
		dst = appendByte(dst, cv.Value)
	}

	return dst
}

func appendAddr(dst []byte, addr netip.Addr) []byte {
	for _, b := range addr.Unmap().As4() {
		dst = appendByte(dst, b)
	}

	return dst
}

func appendUint16(dst []byte, v uint16) []byte {
	dst = appendByte(dst, byte(v>>8))
	return appendByte(dst, byte(v))
}

// deref turns pointer telegrams into values, a nil pointer stays nil.
func deref(t Telegram) Telegram {
	switch v := t.(type) {
	case *Control:
		if v != nil {
			return *v
		}
	case *Trim:
		if v != nil {
			return *v
		}
	case *Shutdown:
		if v != nil {
			return *v
		}
	case *IdentifyReceiver:
		if v != nil {
			return *v
		}
	case *IdentifyTransmitter:
		if v != nil {
			return *v
		}
	case *IdentifyScreen:
		if v != nil {
			return *v
		}
	case *Heartbeat:
		if v != nil {
			return *v
		}
	case *ScreenStatus:
		if v != nil {
			return *v
		}
	default:
		return t
	}

	return nil
}

func validate(t Telegram) error {
	switch v := deref(t).(type) {
	case nil:
		return invalid("nil telegram")
	case Control:
		return validateValues("control", v.Values, MaxValue)
	case Trim:
		return validateValues("trim", v.Values, MaxTrim)
	case Shutdown:
		if v.Channel > MaxChannel {
			return invalid("shutdown channel %d out of range [0, %d]", v.Channel, MaxChannel)
		}
	case IdentifyReceiver:
		return validateAddr(v.Addr)
	case IdentifyTransmitter:
		return validateAddr(v.Addr)
	case IdentifyScreen:
		return validateAddr(v.Addr)
	case Heartbeat:
	case ScreenStatus:
		if err := validateAddr(v.Receiver); err != nil {
			return err
		}
		for _, ch := range v.Channels {
			switch {
			case ch.Channel > MaxChannel:
				return invalid("status channel %d out of range [0, %d]", ch.Channel, MaxChannel)
			case ch.DualRate > 100:
				return invalid("status dual-rate %d out of range [0, 100]", ch.DualRate)
			case ch.Trim > MaxTrim:
				return invalid("status trim %d out of range [0, %d]", ch.Trim, MaxTrim)
			case ch.Value > MaxValue:
				return invalid("status value %d out of range [0, %d]", ch.Value, MaxValue)
			}
		}
	default:
		return invalid("unsupported telegram %T", t)
	}

	return nil
}

func validateValues(name string, values []ChannelValue, maxValue uint8) error {
	if len(values) == 0 {
		return invalid("%s telegram without values", name)
	}

	for _, cv := range values {
		if cv.Channel > MaxChannel {
			return invalid("%s channel %d out of range [0, %d]", name, cv.Channel, MaxChannel)
		}
		if cv.Value > maxValue {
			return invalid("%s value %d out of range [0, %d]", name, cv.Value, maxValue)
		}
	}

	return nil
}

func validateAddr(addr netip.Addr) error {
	if !addr.Unmap().Is4() {
		return invalid("address %v is not IPv4", addr)
	}

	return nil
}
