package queue

import "sync/atomic"

// LatestQueue is a bounded last-in-wins queue for continuously sampled values such as stick
// positions, sensor readings and link state snapshots.
//
// Push never blocks: when the queue is full the oldest item is discarded to make room, so the
// newest value is always retained. Latest drains the queue and returns only the most recently
// pushed item.
type LatestQueue[T any] struct {
	q           *fifo[T]
	overwritten atomic.Uint64
}

// NewLatestQueue creates a LatestQueue holding at most capacity items.
func NewLatestQueue[T any](capacity int) *LatestQueue[T] {
	return &LatestQueue[T]{q: newFIFO[T](capacity)}
}

// Push adds item, discarding the oldest items while the queue is full.
func (l *LatestQueue[T]) Push(item T) {
	for !l.q.enqueue(item) {
		if _, ok := l.q.dequeue(); ok {
			l.overwritten.Add(1)
		}
	}
}

// Latest drains the queue and returns the newest item. The boolean is false when the queue was empty.
func (l *LatestQueue[T]) Latest() (T, bool) {
	var (
		last  T
		found bool
	)

	for {
		item, ok := l.q.dequeue()
		if !ok {
			return last, found
		}
		last, found = item, true
	}
}

// Len returns the number of queued items.
func (l *LatestQueue[T]) Len() int { return l.q.len() }

// IsEmpty returns true if the queue is empty.
func (l *LatestQueue[T]) IsEmpty() bool { return l.q.len() == 0 }

// Overwritten returns the number of items discarded by Push because the queue was full.
func (l *LatestQueue[T]) Overwritten() uint64 { return l.overwritten.Load() }
