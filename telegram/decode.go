package telegram

import (
	"net/netip"
)

const (
	recordSize       = 3
	addrSize         = 4
	heartbeatSize    = 2
	statusHeaderSize = addrSize + 1 + 2
	statusEntrySize  = 4
)

// Decode parses one frame.
//
// data must hold exactly one frame, from the start marker to the end marker. It returns the
// decoded telegram as a value type (Control, Trim, ...), or an error wrapping ErrMalformed.
func Decode(data []byte) (Telegram, error) {
	if len(data) < 4 {
		return nil, malformed("frame too short: %d bytes", len(data))
	}
	if data[0] != StartMarker {
		return nil, malformed("missing start marker, got 0x%02x", data[0])
	}
	if data[len(data)-1] != EndMarker {
		return nil, malformed("missing end marker")
	}

	body := data[1 : len(data)-1]
	if len(body)%2 != 0 {
		return nil, malformed("odd symbol count %d", len(body))
	}

	raw := make([]byte, len(body)/2)
	for i := range raw {
		hi, ok1 := nibble(body[2*i])
		lo, ok2 := nibble(body[2*i+1])
		if !ok1 || !ok2 {
			return nil, malformed("invalid symbol at offset %d", 1+2*i)
		}
		raw[i] = hi<<4 | lo
	}

	typ, payload := Type(raw[0]), raw[1:]
	switch typ {
	case ValuesType:
		return decodeValues(payload)

	case IdentifyReceiverType:
		addr, err := decodeAddrPayload(typ, payload)
		if err != nil {
			return nil, err
		}
		return IdentifyReceiver{Addr: addr}, nil

	case IdentifyTransmitterType:
		addr, err := decodeAddrPayload(typ, payload)
		if err != nil {
			return nil, err
		}
		return IdentifyTransmitter{Addr: addr}, nil

	case IdentifyScreenType:
		addr, err := decodeAddrPayload(typ, payload)
		if err != nil {
			return nil, err
		}
		return IdentifyScreen{Addr: addr}, nil

	case HeartbeatType:
		if len(payload) != heartbeatSize {
			return nil, malformed("heartbeat payload is %d bytes, want %d", len(payload), heartbeatSize)
		}
		return Heartbeat{Centivolts: uint16(payload[0])<<8 | uint16(payload[1])}, nil

	case ScreenStatusType:
		return decodeScreenStatus(payload)

	default:
		return nil, malformed("unknown telegram type %d", typ)
	}
}

func nibble(c byte) (byte, bool) {
	if c < symbolBase || c > symbolBase+0x0F {
		return 0, false
	}

	return c - symbolBase, true
}

func decodeValues(payload []byte) (Telegram, error) {
	if len(payload) == 0 {
		return nil, malformed("values telegram without records")
	}
	if len(payload)%recordSize != 0 {
		return nil, malformed("values payload of %d bytes is not a multiple of %d", len(payload), recordSize)
	}

	kind := payload[0]
	values := make([]ChannelValue, 0, len(payload)/recordSize)
	for i := 0; i < len(payload); i += recordSize {
		if payload[i] != kind {
			return nil, malformed("mixed record kinds %d and %d", kind, payload[i])
		}
		cv := ChannelValue{Channel: payload[i+1], Value: payload[i+2]}
		if cv.Channel > MaxChannel {
			return nil, malformed("channel %d out of range [0, %d]", cv.Channel, MaxChannel)
		}
		values = append(values, cv)
	}

	switch kind {
	case KindControl:
		for _, cv := range values {
			if cv.Value > MaxValue {
				return nil, malformed("control value %d out of range [0, %d]", cv.Value, MaxValue)
			}
		}
		return Control{Values: values}, nil

	case KindTrim:
		for _, cv := range values {
			if cv.Value > MaxTrim {
				return nil, malformed("trim value %d out of range [0, %d]", cv.Value, MaxTrim)
			}
		}
		return Trim{Values: values}, nil

	case KindShutdown:
		if len(values) != 1 {
			return nil, malformed("shutdown telegram with %d records", len(values))
		}
		return Shutdown{Channel: values[0].Channel, Value: values[0].Value}, nil

	default:
		return nil, malformed("unknown record kind %d", kind)
	}
}

func decodeAddrPayload(typ Type, payload []byte) (netip.Addr, error) {
	if len(payload) != addrSize {
		return netip.Addr{}, malformed("%s payload is %d bytes, want %d", typ, len(payload), addrSize)
	}

	return decodeAddr(payload), nil
}

func decodeAddr(b []byte) netip.Addr {
	return netip.AddrFrom4([4]byte{b[0], b[1], b[2], b[3]})
}

func decodeScreenStatus(payload []byte) (Telegram, error) {
	if len(payload) < statusHeaderSize || (len(payload)-statusHeaderSize)%statusEntrySize != 0 {
		return nil, malformed("screen status payload of %d bytes", len(payload))
	}

	st := ScreenStatus{
		Receiver:   decodeAddr(payload[:addrSize]),
		Link:       payload[addrSize],
		Centivolts: uint16(payload[addrSize+1])<<8 | uint16(payload[addrSize+2]),
	}

	entries := payload[statusHeaderSize:]
	if len(entries) > 0 {
		st.Channels = make([]ChannelStatus, 0, len(entries)/statusEntrySize)
	}
	for i := 0; i < len(entries); i += statusEntrySize {
		ch := ChannelStatus{
			Channel:  entries[i],
			DualRate: entries[i+1],
			Trim:     entries[i+2],
			Value:    entries[i+3],
		}
		if ch.Channel > MaxChannel || ch.DualRate > 100 || ch.Trim > MaxTrim || ch.Value > MaxValue {
			return nil, malformed("screen status entry %d out of range", i/statusEntrySize)
		}
		st.Channels = append(st.Channels, ch)
	}

	return st, nil
}
