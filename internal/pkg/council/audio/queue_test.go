package audio

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueueRespectsConcurrencyCeiling(t *testing.T) {
	const limit = 3
	q := NewQueue(limit, nil)

	var (
		running int32
		peak    int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		q.Submit(1, func() func() {
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return func() { wg.Done() }
		})
	}
	wg.Wait()

	if p := atomic.LoadInt32(&peak); p > limit {
		t.Errorf("concurrency ceiling exceeded: peak %d > limit %d", p, limit)
	}
}

func TestQueueResolvesInSubmissionOrderPerMeeting(t *testing.T) {
	q := NewQueue(4, nil)

	const n = 12
	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		q.Submit(7, func() func() {
			// Invert latencies so late submissions finish first.
			time.Sleep(time.Duration(n-i) * 2 * time.Millisecond)
			return func() {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				wg.Done()
			}
		})
	}
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("resolution out of order at %d: %v", i, order)
		}
	}
}

func TestQueueMeetingsDoNotBlockEachOther(t *testing.T) {
	q := NewQueue(2, nil)

	slowDone := make(chan struct{})
	fastDone := make(chan struct{})

	block := make(chan struct{})
	q.Submit(1, func() func() {
		<-block
		return func() { close(slowDone) }
	})
	q.Submit(2, func() func() {
		return func() { close(fastDone) }
	})

	select {
	case <-fastDone:
	case <-time.After(time.Second):
		t.Fatal("meeting 2 blocked behind meeting 1")
	}

	close(block)
	select {
	case <-slowDone:
	case <-time.After(time.Second):
		t.Fatal("meeting 1 never resolved")
	}
}

func TestQueueDepth(t *testing.T) {
	q := NewQueue(1, nil)

	block := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		q.Submit(1, func() func() {
			<-block
			return func() { wg.Done() }
		})
	}

	// One in flight, two backlogged.
	if d := q.Depth(); d != 3 {
		t.Errorf("expected depth 3, got %d", d)
	}

	close(block)
	wg.Wait()

	deadline := time.Now().Add(time.Second)
	for q.Depth() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected depth 0, got %d", q.Depth())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestQueueForget(t *testing.T) {
	q := NewQueue(2, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	q.Submit(9, func() func() {
		return func() { wg.Done() }
	})
	wg.Wait()

	q.Forget(9)

	// New work after Forget still resolves.
	wg.Add(1)
	q.Submit(9, func() func() {
		return func() { wg.Done() }
	})
	wg.Wait()
}
