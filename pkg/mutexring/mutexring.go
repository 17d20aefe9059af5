// Package mutexring wraps the bounded ring layout in a mutex, trading the
// lock-free SPSC contract for safety under any number of producers and
// consumers. Operations stay fail-fast; only the bookkeeping is serialized.
package mutexring

import (
	"sync"

	"github.com/i5heu/GoBoundedQueue/pkg/queue"
)

// MutexRing is a bounded MPMC FIFO ring buffer guarded by a mutex.
type MutexRing[T any] struct {
	mu       sync.Mutex
	storage  []T
	tail     uint64 // next slot to write
	count    uint64 // live elements; head = (tail - count) mod capacity
	capacity uint64
}

// New creates an empty MutexRing with the given capacity.
func New[T any](capacity uint64) *MutexRing[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &MutexRing[T]{
		storage:  make([]T, capacity),
		capacity: capacity,
	}
}

// Enqueue adds item to the queue, or returns queue.ErrFull.
func (q *MutexRing[T]) Enqueue(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == q.capacity {
		return queue.ErrFull
	}
	q.storage[q.tail] = item
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	return nil
}

// Dequeue removes and returns the oldest element, or returns queue.ErrEmpty.
func (q *MutexRing[T]) Dequeue() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		var zero T
		return zero, queue.ErrEmpty
	}
	head := (q.tail + q.capacity - q.count) % q.capacity
	item := q.storage[head]
	q.count--
	return item, nil
}

// Size returns the number of queued elements.
func (q *MutexRing[T]) Size() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// FreeSlots returns how many elements can still be enqueued.
func (q *MutexRing[T]) FreeSlots() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity - q.count
}
