package main

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i5heu/GoBoundedQueue/pkg/queue"
)

// progressWatchdog monitors progress and fails the test if no progress is made for 15 seconds.
type progressWatchdog struct {
	t            *testing.T
	label        string
	lastProgress atomic.Int64
	done         chan struct{}
}

func newWatchdog(t *testing.T, label string) *progressWatchdog {
	wd := &progressWatchdog{
		t:     t,
		label: label,
		done:  make(chan struct{}),
	}
	wd.lastProgress.Store(time.Now().UnixNano())
	return wd
}

func (wd *progressWatchdog) Start() {
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				last := wd.lastProgress.Load()
				elapsed := time.Since(time.Unix(0, last))
				if elapsed > 15*time.Second {
					wd.t.Errorf("No progress in the last 15 seconds (%s test likely stuck).", wd.label)
					return
				}
			case <-wd.done:
				return
			}
		}
	}()
}

func (wd *progressWatchdog) Progress() {
	wd.lastProgress.Store(time.Now().UnixNano())
}

func (wd *progressWatchdog) Stop() {
	close(wd.done)
}

type testQueueInterface = queue.Interface[*int]

// withAllQueues is a test helper that loops over all implementations
// and calls your test function for each one.
// NOTE: Feature filtering is done inside the subtest to avoid skipping at parent level.
func withAllQueues(t *testing.T, scenarioName string, testedFeatures []string, fn func(t *testing.T, impl Implementation[*int, testQueueInterface])) {
	t.Helper()
	impls := getImplementations()
	for _, impl := range impls {
		impl := impl // capture range variable

		t.Run(impl.name, func(t *testing.T) {
			if impl.newQueue == nil {
				t.Skipf("Skipping stub implementation %q", impl.name)
				return
			}

			// Check if the test tests a feature that the implementation does not support
			if testedFeatures != nil {
				for _, feature := range testedFeatures {
					if !impl.hasFeature(feature) {
						t.Skipf("Skipping: missing feature %q", feature)
						return
					}
				}
			}

			fn(t, impl)
		})
	}
}

func logTestStart(t *testing.T, name string, impl Implementation[*int, testQueueInterface]) {
	t.Helper()
	t.Logf("=== %s: %s (%s)", name, impl.name, impl.pkgName)
}

// enqueueRetry pushes p into q, yielding while the queue reports ErrFull.
func enqueueRetry(t *testing.T, q testQueueInterface, p *int, wd *progressWatchdog) {
	t.Helper()
	for {
		err := q.Enqueue(p)
		if err == nil {
			wd.Progress()
			return
		}
		if !errors.Is(err, queue.ErrFull) {
			t.Fatalf("unexpected enqueue error: %v", err)
		}
		time.Sleep(1 * time.Microsecond)
	}
}

// dequeueRetry pops from q, yielding while the queue reports ErrEmpty.
func dequeueRetry(t *testing.T, q testQueueInterface, wd *progressWatchdog) *int {
	t.Helper()
	for {
		v, err := q.Dequeue()
		if err == nil {
			wd.Progress()
			return v
		}
		if !errors.Is(err, queue.ErrEmpty) {
			t.Fatalf("unexpected dequeue error: %v", err)
		}
		time.Sleep(1 * time.Microsecond)
	}
}

// TestBasicFIFO enqueues a short sequence and expects it back in order.
func TestBasicFIFO(t *testing.T) {
	withAllQueues(t, "BasicFIFO", []string{"FIFO"}, func(t *testing.T, impl Implementation[*int, testQueueInterface]) {
		logTestStart(t, "BasicFIFO", impl)
		q := impl.newQueue(1024)
		wd := newWatchdog(t, "BasicFIFO")
		wd.Start()
		defer wd.Stop()

		const n = 512
		pointers := make([]*int, n)
		for i := 0; i < n; i++ {
			p := new(int)
			*p = i
			pointers[i] = p
			enqueueRetry(t, q, p, wd)
		}
		for i := 0; i < n; i++ {
			got := dequeueRetry(t, q, wd)
			if got != pointers[i] {
				t.Fatalf("FIFO violation at index %d: expected %p, got %p", i, pointers[i], got)
			}
		}
		if q.Size() != 0 {
			t.Fatalf("queue not empty after test: Size=%d", q.Size())
		}
	})
}

// TestEmptyQueue verifies that dequeuing an empty queue fails with ErrEmpty
// and leaves the accounting untouched.
func TestEmptyQueue(t *testing.T) {
	withAllQueues(t, "EmptyQueue", nil, func(t *testing.T, impl Implementation[*int, testQueueInterface]) {
		logTestStart(t, "EmptyQueue", impl)
		q := impl.newQueue(16)

		for i := 0; i < 3; i++ {
			if _, err := q.Dequeue(); !errors.Is(err, queue.ErrEmpty) {
				t.Fatalf("expected ErrEmpty from empty queue, got %v", err)
			}
		}
		if q.Size() != 0 {
			t.Fatalf("failed dequeue mutated queue: Size=%d", q.Size())
		}
	})
}

// TestFullQueue verifies that enqueuing into a full queue fails with
// ErrFull and leaves the contents intact.
func TestFullQueue(t *testing.T) {
	withAllQueues(t, "FullQueue", nil, func(t *testing.T, impl Implementation[*int, testQueueInterface]) {
		logTestStart(t, "FullQueue", impl)
		const capacity = 16 // power of 2 so casring does not round
		q := impl.newQueue(capacity)
		wd := newWatchdog(t, "FullQueue")
		wd.Start()
		defer wd.Stop()

		for i := 0; i < capacity; i++ {
			p := new(int)
			*p = i
			enqueueRetry(t, q, p, wd)
		}

		sizeBefore := q.Size()
		p := new(int)
		*p = 999
		if err := q.Enqueue(p); !errors.Is(err, queue.ErrFull) {
			t.Fatalf("expected ErrFull from full queue, got %v", err)
		}
		if q.Size() != sizeBefore {
			t.Fatalf("failed enqueue mutated queue: Size went %d -> %d", sizeBefore, q.Size())
		}

		got := dequeueRetry(t, q, wd)
		if *got != 0 {
			t.Fatalf("rejected enqueue corrupted head: expected 0, got %d", *got)
		}
	})
}

// TestCapacityAccounting checks Size + FreeSlots == capacity after each operation.
func TestCapacityAccounting(t *testing.T) {
	withAllQueues(t, "CapacityAccounting", nil, func(t *testing.T, impl Implementation[*int, testQueueInterface]) {
		logTestStart(t, "CapacityAccounting", impl)
		const capacity = 32
		q := impl.newQueue(capacity)
		wd := newWatchdog(t, "CapacityAccounting")
		wd.Start()
		defer wd.Stop()

		check := func() {
			if got := q.Size() + q.FreeSlots(); got != capacity {
				t.Fatalf("accounting broken: Size+FreeSlots=%d, want %d", got, capacity)
			}
		}

		check()
		for i := 0; i < capacity; i++ {
			p := new(int)
			*p = i
			enqueueRetry(t, q, p, wd)
			check()
		}
		for i := 0; i < capacity; i++ {
			dequeueRetry(t, q, wd)
			check()
		}
	})
}
