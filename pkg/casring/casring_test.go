package casring

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

var _ queue.Interface[int] = (*CASRing[int])(nil)

func TestCapacityRounding(t *testing.T) {
	q := New[int](3)
	// 3 rounds up to 4.
	for i := 0; i < 4; i++ {
		require.NoError(t, q.Enqueue(i))
	}
	assert.True(t, errors.Is(q.Enqueue(4), queue.ErrFull))
	assert.Equal(t, uint64(4), q.Size())
	assert.Equal(t, uint64(0), q.FreeSlots())
}

func TestFIFOSingleThreaded(t *testing.T) {
	q := New[int](8)
	for i := 0; i < 8; i++ {
		require.NoError(t, q.Enqueue(i))
	}
	for i := 0; i < 8; i++ {
		v, err := q.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	_, err := q.Dequeue()
	assert.True(t, errors.Is(err, queue.ErrEmpty))
}

func TestWraparoundManyLaps(t *testing.T) {
	q := New[int](4)
	next := 0
	for lap := 0; lap < 100; lap++ {
		require.NoError(t, q.Enqueue(lap*2))
		require.NoError(t, q.Enqueue(lap*2+1))
		for i := 0; i < 2; i++ {
			v, err := q.Dequeue()
			require.NoError(t, err)
			require.Equal(t, next, v)
			next++
		}
	}
}

// TestConcurrentMPMC drives many producers and consumers and verifies no
// item is lost or duplicated.
func TestConcurrentMPMC(t *testing.T) {
	const producers = 8
	const consumers = 8
	const perProducer = 2000
	const total = producers * perProducer

	q := New[int](128)
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
				if err == nil {
					seen[v].Add(1)
					consumed.Add(1)
					continue
				}
				select {
				case <-done:
					// Producers are finished, so ErrEmpty is now accurate.
					if v, err := q.Dequeue(); err == nil {
						seen[v].Add(1)
						consumed.Add(1)
						continue
					}
					return
				default:
					runtime.Gosched()
				}
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
