package queue

import "sync/atomic"

// EventQueue is a bounded first-in-first-out queue for discrete events such as button presses.
//
// Each item is consumed at most once. When the queue is full, TryPush drops the new item,
// counts it and calls the drop handler; it never blocks the producer.
type EventQueue[T any] struct {
	q       *fifo[T]
	dropped atomic.Uint64
	onDrop  func(T)
}

// NewEventQueue creates an EventQueue holding at most capacity items.
//
// onDrop, if not nil, is called from the producer goroutine for every dropped item.
func NewEventQueue[T any](capacity int, onDrop func(T)) *EventQueue[T] {
	return &EventQueue[T]{q: newFIFO[T](capacity), onDrop: onDrop}
}

// TryPush appends item and reports whether it was accepted.
func (e *EventQueue[T]) TryPush(item T) bool {
	if e.q.enqueue(item) {
		return true
	}

	e.dropped.Add(1)
	if e.onDrop != nil {
		e.onDrop(item)
	}

	return false
}

// TryPop removes and returns the oldest item. The boolean is false when the queue is empty.
func (e *EventQueue[T]) TryPop() (T, bool) {
	return e.q.dequeue()
}

// Drain pops every queued item in order and passes it to fn.
func (e *EventQueue[T]) Drain(fn func(T)) int {
	n := 0
	for {
		item, ok := e.q.dequeue()
		if !ok {
			return n
		}
		fn(item)
		n++
	}
}

// Len returns the number of queued items.
func (e *EventQueue[T]) Len() int { return e.q.len() }

// IsEmpty returns true if the queue is empty.
func (e *EventQueue[T]) IsEmpty() bool { return e.q.len() == 0 }

// Cap returns the capacity of the queue.
func (e *EventQueue[T]) Cap() int { return int(e.q.capacity) }

// Dropped returns the number of items rejected because the queue was full.
func (e *EventQueue[T]) Dropped() uint64 { return e.dropped.Load() }
