package queue

import "errors"

// ErrFull is returned by Enqueue when the queue already holds as many
// elements as its capacity allows. The queue is left unchanged.
var ErrFull = errors.New("queue: capacity exceeded")

// ErrEmpty is returned by Dequeue when no element is available.
// The queue is left unchanged.
var ErrEmpty = errors.New("queue: empty")

// Interface is a *type constraint* that ensures any type Q has these
// methods. We never store Q in a runtime interface—we only use Interface
// at compile time to ensure matching signatures.
//
// Every operation is non-blocking: it returns immediately with a value or
// with ErrFull/ErrEmpty, and callers decide whether to retry, back off,
// or drop the item.
type Interface[T any] interface {
	// Enqueue adds an element to the queue.
	// It returns ErrFull if the queue is at capacity.
	Enqueue(T) error

	// Dequeue removes and returns the oldest element.
	// It returns ErrEmpty if no element is available.
	Dequeue() (T, error)

	// Size returns how many elements are currently queued.
	// The value is a snapshot and may be stale by the time the caller acts on it.
	Size() uint64

	// FreeSlots returns how many more elements can be enqueued before the
	// queue is full. Same snapshot caveat as Size.
	FreeSlots() uint64
}
