// Package queue provides the bounded, non-blocking hand-off queues that connect the goroutines
// of a node: EventQueue for discrete events and LatestQueue for continuously sampled values.
//
// Both are built on a bounded lock-free FIFO, so a producer never waits for a consumer and
// never takes a lock.
package queue

import (
	"sync/atomic"
)

// node represents a node in the lock-free list.
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// fifo is a bounded lock-free multi-producer multi-consumer queue.
//
// The capacity is enforced by reserving a slot in length before the node is linked, so length
// may briefly over-count but never lets more than capacity items in.
type fifo[T any] struct {
	head     atomic.Pointer[node[T]]
	tail     atomic.Pointer[node[T]]
	length   atomic.Int32
	capacity int32
}

func newFIFO[T any](capacity int) *fifo[T] {
	if capacity < 1 {
		capacity = 1
	}

	q := &fifo[T]{capacity: int32(capacity)} //nolint:gosec
	sentinel := &node[T]{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	return q
}

// reserve claims one slot, it returns false when the queue is full.
func (q *fifo[T]) reserve() bool {
	for {
		n := q.length.Load()
		if n >= q.capacity {
			return false
		}
		if q.length.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// enqueue adds an item to the tail of the queue. It returns false without blocking if the queue is full.
func (q *fifo[T]) enqueue(item T) bool {
	if !q.reserve() {
		return false
	}

	n := &node[T]{value: item}
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		// Are tail and next consistent?
		if tail != q.tail.Load() {
			continue
		}

		if next == nil {
			// Try to link node at the end of the linked list.
			if tail.next.CompareAndSwap(nil, n) {
				// Try to swing tail to the inserted node.
				q.tail.CompareAndSwap(tail, n)
				return true
			}
		} else {
			// tail was not pointing to the last node, try to swing it to the next node.
			q.tail.CompareAndSwap(tail, next)
		}
	}
}

// dequeue removes and returns the item at the head of the queue.
func (q *fifo[T]) dequeue() (T, bool) {
	var zero T
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()

		// Are head, tail, and next consistent?
		if head != q.head.Load() {
			continue
		}

		if head == tail {
			if next == nil {
				return zero, false
			}
			// tail is falling behind, try to advance it.
			q.tail.CompareAndSwap(tail, next)
			continue
		}

		// Read value before CAS, otherwise another dequeue might move past next.
		value := next.value
		if q.head.CompareAndSwap(head, next) {
			q.length.Add(-1)

			return value, true
		}
	}
}

func (q *fifo[T]) len() int {
	return int(q.length.Load())
}
