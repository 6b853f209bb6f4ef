package fanout

import "sync"

// Queue runs delivery jobs one at a time in push order.
//
// Owners push a job while holding the lock that guards the mutation it
// reports, then call Drain after releasing that lock. A Drain that finds
// another drain in progress returns at once and leaves its jobs to the
// running drain, so a callback that triggers a new notification (on the
// same goroutine or another) never blocks: the nested job runs after the
// current one finishes. Jobs must not panic; wrap callbacks with Call.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	running bool
}

// Push appends job to the queue.
func (q *Queue) Push(job func()) {
	q.mu.Lock()
	q.pending = append(q.pending, job)
	q.mu.Unlock()
}

// Drain runs queued jobs until the queue is empty, unless a drain is
// already in progress.
func (q *Queue) Drain() {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	for len(q.pending) > 0 {
		next := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()
		next()
		q.mu.Lock()
	}
	q.running = false
	q.mu.Unlock()
}
