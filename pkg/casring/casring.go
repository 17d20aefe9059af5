// Package casring is a bounded MPMC FIFO ring buffer with CAS-based slot
// reservation: separate enqueue/dequeue cursors plus a per-cell sequence
// number, so producers and consumers claim slots without locks. Unlike the
// SPSC ring it is safe under many producers and many consumers, at the
// cost of a CAS per operation.
package casring

import (
	"runtime"
	"sync/atomic"

	"github.com/i5heu/GoBoundedQueue/pkg/queue"
)

// cell represents one slot in the ring buffer.
type cell[T any] struct {
	sequence uint64
	value    T
}

// CASRing is a bounded, lock-free, multi-producer/multi-consumer queue.
type CASRing[T any] struct {
	buffer     []cell[T]
	mask       uint64
	capacity   uint64
	enqueuePos uint64
	dequeuePos uint64
}

// New creates a new CASRing with the given capacity (rounded up to a power of 2).
func New[T any](capacity uint64) *CASRing[T] {
	if capacity < 1 {
		capacity = 1
	}
	if capacity&(capacity-1) != 0 {
		capPow := uint64(1)
		for capPow < capacity {
			capPow <<= 1
		}
		capacity = capPow
	}
	q := &CASRing[T]{
		buffer:   make([]cell[T], capacity),
		mask:     capacity - 1,
		capacity: capacity,
	}
	for i := uint64(0); i < capacity; i++ {
		q.buffer[i].sequence = i
	}
	return q
}

// Enqueue inserts a value into the queue.
// It returns queue.ErrFull once the ring holds capacity elements; a cell
// that is merely mid-publication by another producer is retried.
func (q *CASRing[T]) Enqueue(val T) error {
	for {
		pos := atomic.LoadUint64(&q.enqueuePos)
		cell := &q.buffer[pos&q.mask]
		seq := atomic.LoadUint64(&cell.sequence)
		// The cell is free to write when its sequence equals pos.
		if seq == pos {
			if atomic.CompareAndSwapUint64(&q.enqueuePos, pos, pos+1) {
				cell.value = val
				atomic.StoreUint64(&cell.sequence, pos+1)
				return nil
			}
			continue
		}
		// Cell still occupied by an element a full lap behind: the ring is full.
		if pos-atomic.LoadUint64(&q.dequeuePos) >= q.capacity {
			return queue.ErrFull
		}
		// A consumer is mid-release, yield and retry.
		runtime.Gosched()
	}
}

// Dequeue removes and returns the oldest value.
// It returns queue.ErrEmpty when no element is available. An element that
// another producer has reserved but not yet published counts as not
// available after a bounded number of retries.
func (q *CASRing[T]) Dequeue() (T, error) {
	const maxRetries = 16
	for retry := 0; retry < maxRetries; retry++ {
		pos := atomic.LoadUint64(&q.dequeuePos)
		cell := &q.buffer[pos&q.mask]
		seq := atomic.LoadUint64(&cell.sequence)
		// The cell holds a published element when its sequence equals pos+1.
		if seq == pos+1 {
			if atomic.CompareAndSwapUint64(&q.dequeuePos, pos, pos+1) {
				ret := cell.value
				// Mark the cell as free by setting sequence to pos + capacity.
				atomic.StoreUint64(&cell.sequence, pos+q.capacity)
				return ret, nil
			}
			continue
		}
		// No producer has claimed this position: the queue is empty.
		if atomic.LoadUint64(&q.enqueuePos) == pos {
			var zero T
			return zero, queue.ErrEmpty
		}
		// A producer reserved the slot but has not published yet.
		runtime.Gosched()
	}
	var zero T
	return zero, queue.ErrEmpty
}

// Size returns an approximate count of queued elements.
func (q *CASRing[T]) Size() uint64 {
	enq := atomic.LoadUint64(&q.enqueuePos)
	deq := atomic.LoadUint64(&q.dequeuePos)
	if enq < deq {
		return 0
	}
	return enq - deq
}

// FreeSlots returns an approximate count of free slots.
func (q *CASRing[T]) FreeSlots() uint64 {
	used := q.Size()
	if used > q.capacity {
		return 0
	}
	return q.capacity - used
}
