// Package evdev reads Linux input devices (/dev/input/eventN).
package evdev

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
	"unsafe"

	"github.com/arloliu/go-rclink/driver"
)

// EventSize is the size of struct input_event on this platform: a struct timeval followed by
// type (u16), code (u16) and value (s32).
const EventSize = 2*wordSize + 8

const wordSize = int(unsafe.Sizeof(uintptr(0)))

// Decode parses one input_event record.
func Decode(b []byte) (driver.Event, error) {
	if len(b) < EventSize {
		return driver.Event{}, fmt.Errorf("evdev: short event record of %d bytes", len(b))
	}

	order := binary.NativeEndian
	var sec, usec int64
	if wordSize == 8 {
		sec = int64(order.Uint64(b[0:8]))
		usec = int64(order.Uint64(b[8:16]))
	} else {
		sec = int64(int32(order.Uint32(b[0:4])))
		usec = int64(int32(order.Uint32(b[4:8])))
	}
	rest := b[2*wordSize:]

	return driver.Event{
		Time:  time.Unix(sec, usec*1000),
		Type:  driver.EventType(order.Uint16(rest[0:2])),
		Code:  order.Uint16(rest[2:4]),
		Value: int32(order.Uint32(rest[4:8])),
	}, nil
}

// Device is an open evdev character device. It implements driver.InputDevice.
type Device struct {
	f   *os.File
	buf []byte
}

var _ driver.InputDevice = (*Device)(nil)

// Open opens the device at path, e.g. /dev/input/event0.
func Open(path string) (*Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("evdev: %w", err)
	}

	return &Device{f: f, buf: make([]byte, EventSize)}, nil
}

// NewReader reads events from r, used for recorded event streams.
func NewReader(r io.Reader) driver.InputDevice {
	return &streamDevice{r: r, buf: make([]byte, EventSize)}
}

// ReadEvent implements driver.InputDevice.
func (d *Device) ReadEvent() (driver.Event, error) {
	if _, err := io.ReadFull(d.f, d.buf); err != nil {
		if errors.Is(err, os.ErrClosed) {
			return driver.Event{}, driver.ErrClosed
		}
		return driver.Event{}, fmt.Errorf("evdev: read: %w", err)
	}

	return Decode(d.buf)
}

// Close implements driver.InputDevice.
func (d *Device) Close() error {
	return d.f.Close()
}

type streamDevice struct {
	r   io.Reader
	buf []byte
}

func (d *streamDevice) ReadEvent() (driver.Event, error) {
	if _, err := io.ReadFull(d.r, d.buf); err != nil {
		return driver.Event{}, err
	}

	return Decode(d.buf)
}

func (d *streamDevice) Close() error {
	if c, ok := d.r.(io.Closer); ok {
		return c.Close()
	}

	return nil
}
