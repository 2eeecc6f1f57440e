// Package telegram implements the wire format spoken between the transmitter, the receiver and
// the status screen of an rclink installation.
//
// Frame layout:
//
//	0x02 | type (2 symbols) | payload (2 symbols per byte) | 0x0D
//
// Every byte, including the type byte, is written as two symbols of the alphabet
// "0123456789:;<=>?", high nibble first (symbol = '0' + nibble). All characters are printable
// and none collides with the markers.
//
// Telegram Types:
//   - IdentifyReceiverType (01): receiver beacon, payload is the receiver's IPv4 address.
//   - ValuesType (02): records of (kind, channel, value). A frame carries only one kind:
//     Control (kind 255), Trim (kind 127) or Shutdown (kind 100, exactly one record).
//   - IdentifyTransmitterType (03): transmitter beacon with its IPv4 address.
//   - ScreenStatusType (04): telemetry for the status screen.
//   - IdentifyScreenType (05): screen beacon with its IPv4 address.
//   - HeartbeatType (06): receiver heartbeat carrying the analog sensor reading in centivolts.
//
// Decode never panics. Any frame it cannot accept is reported with an error wrapping ErrMalformed,
// which callers log and drop. Encode rejects values outside the protocol ranges with an error
// wrapping ErrInvalidTelegram; those are programming errors, not wire conditions.
package telegram
