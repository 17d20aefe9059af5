package mutexring

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/GoBoundedQueue/pkg/queue"
)

var _ queue.Interface[int] = (*MutexRing[int])(nil)

func TestFIFOWithWraparound(t *testing.T) {
	q := New[int](3)
	require.NoError(t, q.Enqueue(0))
	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))

	for want := 0; want < 2; want++ {
		v, err := q.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
	require.NoError(t, q.Enqueue(3))
	require.NoError(t, q.Enqueue(4))
	for want := 2; want <= 4; want++ {
		v, err := q.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
}

func TestFullAndEmptyRejection(t *testing.T) {
	q := New[string](2)
	require.NoError(t, q.Enqueue("a"))
	require.NoError(t, q.Enqueue("b"))
	assert.True(t, errors.Is(q.Enqueue("c"), queue.ErrFull))
	assert.Equal(t, uint64(2), q.Size())
	assert.Equal(t, uint64(0), q.FreeSlots())

	for range [2]struct{}{} {
		_, err := q.Dequeue()
		require.NoError(t, err)
	}
	_, err := q.Dequeue()
	assert.True(t, errors.Is(err, queue.ErrEmpty))
	assert.Equal(t, uint64(2), q.FreeSlots())
}

// TestConcurrentMPMC verifies that many producers and consumers neither
// lose nor duplicate items.
func TestConcurrentMPMC(t *testing.T) {
	const producers = 8
	const consumers = 8
	const perProducer = 2000
	const total = producers * perProducer

	q := New[int](64)
	seen := make([]atomic.Int32, total)
	var consumed atomic.Int64

	var prodWg sync.WaitGroup
	prodWg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer prodWg.Done()
			for i := 0; i < perProducer; i++ {
				v := p*perProducer + i
				for q.Enqueue(v) != nil {
					runtime.Gosched()
				}
			}
		}(p)
	}

	var consWg sync.WaitGroup
	consWg.Add(consumers)
	done := make(chan struct{})
	for c := 0; c < consumers; c++ {
		go func() {
			defer consWg.Done()
			for {
				v, err := q.Dequeue()
				if err != nil {
					select {
					case <-done:
						// Drain whatever is left before exiting.
						if v, err := q.Dequeue(); err == nil {
							seen[v].Add(1)
							consumed.Add(1)
							continue
						}
						return
					default:
						runtime.Gosched()
						continue
					}
				}
				seen[v].Add(1)
				consumed.Add(1)
			}
		}()
	}

	prodWg.Wait()
	close(done)
	consWg.Wait()

	require.Equal(t, int64(total), consumed.Load())
	for v := range seen {
		if n := seen[v].Load(); n != 1 {
			t.Fatalf("value %d consumed %d times", v, n)
		}
	}
}
