package logger

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Throttled is a Logger that lets at most a burst of messages through per interval and drops the rest.
//
// It is meant for diagnostics emitted on the control path (malformed frames, queue overflow, failed
// sends) which may fire on every 30 ms cycle while a fault persists. The number of dropped messages
// is attached to the next message that passes as the "suppressed" key.
//
// Fatal is never throttled.
type Throttled struct {
	next       Logger
	limiter    *rate.Limiter
	suppressed *atomic.Uint64
}

var _ Logger = (*Throttled)(nil)

// NewThrottled wraps l so that at most burst messages are written per interval.
func NewThrottled(l Logger, interval time.Duration, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}

	return &Throttled{
		next:       l,
		limiter:    rate.NewLimiter(rate.Every(interval), burst),
		suppressed: &atomic.Uint64{},
	}
}

// Suppressed returns the number of messages dropped since the last message that went through.
func (t *Throttled) Suppressed() uint64 {
	return t.suppressed.Load()
}

func (t *Throttled) Debug(msg string, keysAndValues ...any) {
	if kv, ok := t.allow(keysAndValues); ok {
		t.next.Debug(msg, kv...)
	}
}

func (t *Throttled) Info(msg string, keysAndValues ...any) {
	if kv, ok := t.allow(keysAndValues); ok {
		t.next.Info(msg, kv...)
	}
}

func (t *Throttled) Warn(msg string, keysAndValues ...any) {
	if kv, ok := t.allow(keysAndValues); ok {
		t.next.Warn(msg, kv...)
	}
}

func (t *Throttled) Error(msg string, keysAndValues ...any) {
	if kv, ok := t.allow(keysAndValues); ok {
		t.next.Error(msg, kv...)
	}
}

func (t *Throttled) Fatal(msg string, keysAndValues ...any) {
	t.next.Fatal(msg, keysAndValues...)
}

// With returns a child that shares the limiter of its parent.
func (t *Throttled) With(keyValues ...any) Logger {
	return &Throttled{
		next:       t.next.With(keyValues...),
		limiter:    t.limiter,
		suppressed: t.suppressed,
	}
}

func (t *Throttled) Level() Level { return t.next.Level() }

func (t *Throttled) SetLevel(level Level) { t.next.SetLevel(level) }

func (t *Throttled) allow(keysAndValues []any) ([]any, bool) {
	if !t.limiter.Allow() {
		t.suppressed.Add(1)
		return nil, false
	}

	if n := t.suppressed.Swap(0); n > 0 {
		kv := make([]any, 0, len(keysAndValues)+2)
		kv = append(kv, keysAndValues...)
		return append(kv, "suppressed", n), true
	}

	return keysAndValues, true
}
