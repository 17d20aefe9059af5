// Package spscring provides a fixed-capacity, fail-fast FIFO ring buffer
// for exactly one producer goroutine and one consumer goroutine.
//
// The queue never blocks: Enqueue on a full queue returns queue.ErrFull,
// Dequeue on an empty queue returns queue.ErrEmpty, and callers layer any
// waiting (retry, backoff, drop) on top.
package spscring

import (
	"sync/atomic"

	"github.com/i5heu/GoBoundedQueue/pkg/queue"
)

// countBits is the width of the count half of the packed state word.
const countBits = 32

// maxCapacity bounds capacity so tail and count each fit in one half of
// the state word.
const maxCapacity = 1<<countBits - 1

// BoundedQueue is a bounded SPSC FIFO ring buffer.
//
// Shared state is the backing storage plus a single 64-bit word packing
// the tail index (next slot to write, high 32 bits) and the element count
// (low 32 bits). The head index is never stored; it is derived as
// (tail - count) mod capacity. Packing both counters into one word keeps
// every (tail, count) snapshot consistent: an enqueue advances tail and
// count together, so the derived head never tears.
//
// The capacity check in Enqueue and the slot write that follows are still
// two separate steps. Two goroutines enqueueing concurrently can both pass
// the check and write the same slot, and the same hazard applies to
// concurrent dequeuers racing on the derived head. The contract is
// therefore strictly single-producer/single-consumer: at most one
// goroutine may call Enqueue and at most one (other) goroutine may call
// Dequeue at any time. Multi-producer or multi-consumer use needs external
// mutual exclusion (see the mutexring and casring packages).
type BoundedQueue[T any] struct {
	_pad0    [8]uint64
	state    uint64 // tail<<countBits | count
	_pad1    [8]uint64
	storage  []T
	capacity uint64
}

// New creates an empty BoundedQueue with the given capacity.
// The capacity is fixed for the queue's lifetime.
func New[T any](capacity uint64) *BoundedQueue[T] {
	// Enforce minimum capacity of 1: a zero-capacity queue could never
	// accept an element and every operation would fail.
	if capacity < 1 {
		capacity = 1
	}
	if capacity > maxCapacity {
		panic("spscring: capacity exceeds 1<<32 - 1")
	}
	return &BoundedQueue[T]{
		storage:  make([]T, capacity),
		capacity: capacity,
	}
}

func pack(tail, count uint64) uint64 {
	return tail<<countBits | count
}

func unpack(s uint64) (tail, count uint64) {
	return s >> countBits, s & maxCapacity
}

// Enqueue writes item into the next free slot.
// It returns queue.ErrFull, without mutating the queue, if all capacity
// slots are occupied. Producer side only.
func (q *BoundedQueue[T]) Enqueue(item T) error {
	s := atomic.LoadUint64(&q.state)
	tail, count := unpack(s)
	if count == q.capacity {
		return queue.ErrFull
	}
	q.storage[tail] = item
	next := pack((tail+1)%q.capacity, count+1)
	for !atomic.CompareAndSwapUint64(&q.state, s, next) {
		// Under the SPSC contract only the consumer can race us here,
		// and it only ever decrements count. Tail and the slot we just
		// wrote are still ours; recompute with the smaller count.
		s = atomic.LoadUint64(&q.state)
		_, count = unpack(s)
		next = pack((tail+1)%q.capacity, count+1)
	}
	return nil
}

// Dequeue copies out and returns the oldest element.
// It returns queue.ErrEmpty, without mutating the queue, if the queue
// holds no elements. The vacated slot is not cleared; it simply stops
// being counted until a future Enqueue overwrites it. Consumer side only.
func (q *BoundedQueue[T]) Dequeue() (T, error) {
	for {
		s := atomic.LoadUint64(&q.state)
		tail, count := unpack(s)
		if count == 0 {
			var zero T
			return zero, queue.ErrEmpty
		}
		head := (tail + q.capacity - count) % q.capacity
		item := q.storage[head]
		if atomic.CompareAndSwapUint64(&q.state, s, pack(tail, count-1)) {
			return item, nil
		}
		// The producer enqueued between our load and the CAS. An enqueue
		// advances tail and count together, so the head slot and its
		// contents are unchanged; reload and try again.
	}
}

// Size returns the number of queued elements. Advisory snapshot.
func (q *BoundedQueue[T]) Size() uint64 {
	_, count := unpack(atomic.LoadUint64(&q.state))
	return count
}

// FreeSlots returns how many elements can still be enqueued. Advisory snapshot.
func (q *BoundedQueue[T]) FreeSlots() uint64 {
	_, count := unpack(atomic.LoadUint64(&q.state))
	return q.capacity - count
}
