// Package watchdog tracks whether a link peer is alive.
//
// A Watchdog starts in Unknown. Every valid telegram from the peer is reported with Mark,
// which moves the state to Connected. Check compares the time since the last Mark against the
// timeout and moves a Connected link to Lost. The next Mark after that reconnects the link.
//
// State change handlers run synchronously in the goroutine that calls Mark or Check, once per
// transition.
package watchdog

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-rclink/logger"
)

// ErrInvalidTimeout is returned by New for a non-positive timeout.
var ErrInvalidTimeout = errors.New("invalid watchdog timeout")

// State is the link state reported by a Watchdog. The numeric value is sent to the status
// screen.
type State uint32

const (
	// Unknown is the initial state, nothing has been received yet.
	Unknown State = iota
	// Connected indicates that the peer was heard within the timeout.
	Connected
	// Lost indicates that the peer was not heard for longer than the timeout.
	Lost
)

// IsConnected returns if the state is Connected.
func (s State) IsConnected() bool { return s == Connected }

// IsLost returns if the state is Lost.
func (s State) IsLost() bool { return s == Lost }

// String returns string representation of the state.
func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Connected:
		return "connected"
	case Lost:
		return "lost"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// Color is the status colour shown for a link state.
type Color uint8

const (
	Yellow Color = iota
	Green
	Red
)

// String returns the colour name.
func (c Color) String() string {
	switch c {
	case Green:
		return "green"
	case Red:
		return "red"
	default:
		return "yellow"
	}
}

// Color returns the status colour of the state: Unknown is yellow, Connected green and Lost red.
func (s State) Color() Color {
	switch s {
	case Connected:
		return Green
	case Lost:
		return Red
	default:
		return Yellow
	}
}

// StateChangeHandler is invoked on every state transition.
//
// Note: the handler is invoked in blocking mode from the goroutine calling Mark or Check, with
// the watchdog locked. It may call State but must not call Mark, Check or LastSeen.
type StateChangeHandler func(prevState State, newState State)

// Watchdog is the link state machine of one peer.
type Watchdog struct {
	mu       sync.Mutex
	name     string
	timeout  time.Duration
	state    atomic.Uint32
	lastSeen time.Time
	handlers []StateChangeHandler
	logger   logger.Logger
}

// New creates a watchdog in the Unknown state.
//
// name identifies the watched peer in log messages. It returns ErrInvalidTimeout if timeout is
// not positive.
func New(name string, timeout time.Duration, l logger.Logger, handlers ...StateChangeHandler) (*Watchdog, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTimeout, timeout)
	}
	if l == nil {
		l = logger.GetLogger()
	}

	w := &Watchdog{
		name:     name,
		timeout:  timeout,
		logger:   l.With("watchdog", name),
		handlers: make([]StateChangeHandler, 0, len(handlers)),
	}
	w.AddHandler(handlers...)

	return w, nil
}

// AddHandler adds one or more handlers to be invoked on state changes.
func (w *Watchdog) AddHandler(handlers ...StateChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			w.handlers = append(w.handlers, h)
		}
	}
}

// OnLost adds a handler that runs once per transition into Lost.
func (w *Watchdog) OnLost(fn func()) {
	w.AddHandler(func(_ State, newState State) {
		if newState == Lost {
			fn()
		}
	})
}

// Timeout returns the configured timeout.
func (w *Watchdog) Timeout() time.Duration { return w.timeout }

// State returns the current state.
func (w *Watchdog) State() State {
	return State(w.state.Load())
}

// LastSeen returns the time of the last Mark, zero if the peer was never seen.
func (w *Watchdog) LastSeen() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.lastSeen
}

// Mark records a valid telegram from the peer at now.
func (w *Watchdog) Mark(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if now.After(w.lastSeen) {
		w.lastSeen = now
	}

	if cur := w.State(); cur != Connected {
		w.transition(cur, Connected)
	}
}

// Check evaluates the timeout at now and returns the resulting state.
//
// A Connected link whose last Mark is more than the timeout before now becomes Lost. Unknown
// stays Unknown: a link that never connected cannot be lost.
func (w *Watchdog) Check(now time.Time) State {
	w.mu.Lock()
	defer w.mu.Unlock()

	cur := w.State()
	if cur == Connected && now.Sub(w.lastSeen) > w.timeout {
		w.transition(cur, Lost)
		return Lost
	}

	return cur
}

// transition must be called with mu held.
func (w *Watchdog) transition(prevState State, newState State) {
	w.state.Store(uint32(newState))

	if newState == Lost {
		w.logger.Warn("link lost", "last_seen", w.lastSeen, "timeout", w.timeout)
	} else {
		w.logger.Info("link state changed", "prev_state", prevState, "new_state", newState)
	}

	for _, h := range w.handlers {
		h(prevState, newState)
	}
}
