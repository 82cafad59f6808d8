package audio

import (
	"log/slog"
	"sync"
)

// Queue bounds synthesis parallelism and orders result publication.
//
// Tasks are admitted strictly in submission order with at most `limit` in
// flight; the rest wait in a FIFO backlog. Finishing a task (success or
// terminal failure) frees its slot and admits the next backlog entry.
//
// Publication ordering is per meeting: a task's resolve callback is withheld
// until every earlier-submitted task for the same meeting has resolved,
// regardless of how provider latency reorders completions. Withheld resolves
// do not hold an admission slot, so gating can never starve the pool.
type Queue struct {
	mu       sync.Mutex
	limit    int
	inflight int
	backlog  []*job
	meetings map[int64]*meetingOrder
	log      *slog.Logger
}

type job struct {
	meetingID int64
	seq       uint64
	run       func() func()
}

type meetingOrder struct {
	tail     uint64            // next sequence number to hand out
	next     uint64            // next sequence number allowed to resolve
	ready    map[uint64]func() // finished tasks waiting on predecessors
	draining bool              // one goroutine at a time runs the resolves
}

// NewQueue builds a queue with the given concurrency ceiling.
func NewQueue(limit int, log *slog.Logger) *Queue {
	if limit <= 0 {
		limit = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		limit:    limit,
		meetings: make(map[int64]*meetingOrder),
		log:      log,
	}
}

// Submit enqueues work for the given meeting. run executes the synthesis
// pipeline and returns a resolve closure; the queue invokes resolve closures
// for one meeting strictly in submission order. run must not be nil and must
// return a non-nil resolve even on failure.
func (q *Queue) Submit(meetingID int64, run func() func()) {
	q.mu.Lock()
	mo := q.meetings[meetingID]
	if mo == nil {
		mo = &meetingOrder{ready: make(map[uint64]func())}
		q.meetings[meetingID] = mo
	}
	seq := mo.tail
	mo.tail++
	q.backlog = append(q.backlog, &job{meetingID: meetingID, seq: seq, run: run})
	q.dispatchLocked()
	q.mu.Unlock()
}

// Depth reports backlog plus in-flight tasks.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog) + q.inflight
}

// Forget drops ordering state for a finished meeting. Safe to call while
// tasks are still pending; their resolves then run unordered, which only
// happens after the meeting was torn down.
func (q *Queue) Forget(meetingID int64) {
	q.mu.Lock()
	delete(q.meetings, meetingID)
	q.mu.Unlock()
}

func (q *Queue) dispatchLocked() {
	for q.inflight < q.limit && len(q.backlog) > 0 {
		j := q.backlog[0]
		q.backlog = q.backlog[1:]
		q.inflight++
		go q.work(j)
	}
}

func (q *Queue) work(j *job) {
	resolve := j.run()

	q.mu.Lock()
	q.inflight--
	q.dispatchLocked()

	mo := q.meetings[j.meetingID]
	if mo == nil {
		q.mu.Unlock()
		if resolve != nil {
			resolve()
		}
		return
	}
	mo.ready[j.seq] = resolve
	if mo.draining {
		q.mu.Unlock()
		return
	}
	mo.draining = true

	// Drain one resolve at a time so callbacks for a meeting never interleave,
	// even when several workers finish while we are mid-drain.
	for {
		fn, ok := mo.ready[mo.next]
		if !ok {
			mo.draining = false
			q.mu.Unlock()
			return
		}
		delete(mo.ready, mo.next)
		mo.next++
		q.mu.Unlock()

		if fn != nil {
			fn()
		}
		q.mu.Lock()
	}
}
