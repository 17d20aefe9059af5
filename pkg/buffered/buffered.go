// Package buffered is the baseline implementation: a buffered Go channel
// behind the fail-fast queue API. It exists mostly as the reference point
// the ring buffers are measured against.
package buffered

import "github.com/i5heu/GoBoundedQueue/pkg/queue"

type BufferedQueue[T any] struct {
	ch chan T
}

func New[T any](bufferSize uint64) *BufferedQueue[T] {
	// Enforce minimum capacity of 1 to ensure proper bounded buffer semantics.
	// A zero-capacity Go channel is an unbuffered synchronization primitive,
	// not a zero-capacity buffer, which would cause unexpected behavior.
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &BufferedQueue[T]{
		ch: make(chan T, bufferSize),
	}
}

func (q *BufferedQueue[T]) Enqueue(val T) error {
	select {
	case q.ch <- val:
		return nil
	default:
		return queue.ErrFull
	}
}

func (q *BufferedQueue[T]) Dequeue() (val T, err error) {
	select {
	case val = <-q.ch:
		return val, nil
	default:
		return val, queue.ErrEmpty
	}
}

func (q *BufferedQueue[T]) Size() uint64 {
	return uint64(len(q.ch))
}

func (q *BufferedQueue[T]) FreeSlots() uint64 {
	return uint64(cap(q.ch) - len(q.ch))
}
