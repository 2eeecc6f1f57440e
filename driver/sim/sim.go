// Package sim provides simulated hardware for running the nodes on a PC and in tests.
package sim

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-rclink/driver"
	"github.com/puzpuzpuz/xsync/v3"
)

// OutputKind tells how a simulated channel was last driven.
type OutputKind uint8

const (
	OutputNone OutputKind = iota
	OutputPWM
	OutputDigital
)

// Output is the last value written to a channel.
type Output struct {
	Kind  OutputKind
	Ticks uint16
	On    bool
}

// Actuator records the outputs of a simulated PWM chip. It is safe for concurrent use.
type Actuator struct {
	outputs *xsync.MapOf[int, Output]
	writes  atomic.Uint64
	hook    atomic.Pointer[func(ch int, out Output)]
}

var _ driver.Actuator = (*Actuator)(nil)

// NewActuator creates an actuator with all channels undriven.
func NewActuator() *Actuator {
	return &Actuator{outputs: xsync.NewMapOf[int, Output]()}
}

// OnWrite installs fn to be called after every write.
func (a *Actuator) OnWrite(fn func(ch int, out Output)) {
	a.hook.Store(&fn)
}

func (a *Actuator) store(ch int, out Output) error {
	if ch < 0 || ch > 15 {
		return fmt.Errorf("sim actuator: invalid channel %d", ch)
	}

	a.outputs.Store(ch, out)
	a.writes.Add(1)
	if fn := a.hook.Load(); fn != nil {
		(*fn)(ch, out)
	}

	return nil
}

// SetPWM implements driver.Actuator.
func (a *Actuator) SetPWM(ch int, ticks uint16) error {
	return a.store(ch, Output{Kind: OutputPWM, Ticks: ticks})
}

// SetDigital implements driver.Actuator.
func (a *Actuator) SetDigital(ch int, on bool) error {
	return a.store(ch, Output{Kind: OutputDigital, On: on})
}

// Output returns the last output of channel ch.
func (a *Actuator) Output(ch int) (Output, bool) {
	return a.outputs.Load(ch)
}

// Outputs returns a copy of all channel outputs.
func (a *Actuator) Outputs() map[int]Output {
	out := make(map[int]Output, a.outputs.Size())
	a.outputs.Range(func(ch int, o Output) bool {
		out[ch] = o
		return true
	})

	return out
}

// Writes returns the number of writes so far.
func (a *Actuator) Writes() uint64 {
	return a.writes.Load()
}

// Sensor is a simulated analog sensor.
type Sensor struct {
	mu    sync.Mutex
	volts float64
	err   error
	reads int
}

var _ driver.Sensor = (*Sensor)(nil)

// NewSensor creates a sensor that reads volts.
func NewSensor(volts float64) *Sensor {
	return &Sensor{volts: volts}
}

// Set changes the reading and the error returned by ReadVolts.
func (s *Sensor) Set(volts float64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volts, s.err = volts, err
}

// ReadVolts implements driver.Sensor.
func (s *Sensor) ReadVolts() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++

	if s.err != nil {
		return 0, s.err
	}

	return s.volts, nil
}

// Reads returns the number of ReadVolts calls.
func (s *Sensor) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reads
}

// InputDevice is a simulated input device fed by Inject.
type InputDevice struct {
	events    chan driver.Event
	closeOnce sync.Once
	closed    chan struct{}
}

var _ driver.InputDevice = (*InputDevice)(nil)

// NewInputDevice creates a device buffering up to size injected events.
func NewInputDevice(size int) *InputDevice {
	return &InputDevice{
		events: make(chan driver.Event, size),
		closed: make(chan struct{}),
	}
}

// Inject queues an event and reports whether it fit into the buffer.
func (d *InputDevice) Inject(typ driver.EventType, code uint16, value int32) bool {
	select {
	case d.events <- driver.Event{Time: time.Now(), Type: typ, Code: code, Value: value}:
		return true
	default:
		return false
	}
}

// Press injects a key press followed by its release.
func (d *InputDevice) Press(code uint16) bool {
	return d.Inject(driver.EventKey, code, 1) && d.Inject(driver.EventKey, code, 0)
}

// ReadEvent implements driver.InputDevice. It returns io.EOF after Close.
func (d *InputDevice) ReadEvent() (driver.Event, error) {
	select {
	case <-d.closed:
		return driver.Event{}, io.EOF
	default:
	}

	select {
	case ev := <-d.events:
		return ev, nil
	case <-d.closed:
		return driver.Event{}, io.EOF
	}
}

// Close implements driver.InputDevice.
func (d *InputDevice) Close() error {
	d.closeOnce.Do(func() { close(d.closed) })
	return nil
}
