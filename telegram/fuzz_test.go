package telegram

import (
	"bytes"
	"testing"
)

// FuzzDecode fuzzes the frame decoder with arbitrary input.
//
// The invariants are: Decode must never panic, and every frame it accepts re-encodes to the
// same bytes.
func FuzzDecode(f *testing.F) {
	// Seed: control frame
	f.Add([]byte("\x0202??007?\r"))

	// Seed: trim frame
	f.Add([]byte("\x02027?0219\r"))

	// Seed: shutdown frame
	f.Add([]byte("\x0202640300\r"))

	// Seed: identify receiver
	f.Add([]byte("\x0201<0:8010:\r"))

	// Seed: heartbeat
	f.Add([]byte("\x020604=2\r"))

	// Seed: screen status with one channel
	f.Add([]byte("\x02040:0000010104<0006419?>\r"))

	// Seed: empty and marker-only input
	f.Add([]byte{})
	f.Add([]byte{StartMarker, EndMarker})

	// Seed: odd symbol count
	f.Add([]byte("\x0202??007\r"))

	f.Fuzz(func(t *testing.T, data []byte) {
		msg, err := Decode(data)
		if err != nil {
			if msg != nil {
				t.Fatal("Decode returned a telegram together with an error")
			}
			return
		}
		if msg == nil {
			t.Fatal("Decode returned nil telegram and nil error")
		}

		frame, err := Encode(msg)
		if err != nil {
			t.Fatalf("decoded telegram does not re-encode: %v", err)
		}
		if !bytes.Equal(frame, data) {
			t.Fatalf("re-encoded frame %q differs from input %q", frame, data)
		}
	})
}
