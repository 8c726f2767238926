package event

import (
	"sync"
	"time"
)

// asyncRequest is a deferred ScheduleEvent call.
type asyncRequest struct {
	ev          Event
	delay       time.Duration
	requestedAt time.Time
}

// ingestQueue stages asynchronous schedule requests for the consumer goroutine.
// Many producers may Push concurrently; only the consumer calls Drain. It has its
// own lock so staging never waits on heap work done under the scheduler mutex.
type ingestQueue struct {
	mu      sync.Mutex
	pending []asyncRequest
}

// Push stages req. It never blocks on the scheduler.
func (q *ingestQueue) Push(req asyncRequest) {
	q.mu.Lock()
	q.pending = append(q.pending, req)
	q.mu.Unlock()
}

// Drain returns all staged requests in FIFO order and empties the queue.
func (q *ingestQueue) Drain() []asyncRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	out := q.pending
	q.pending = nil
	return out
}

// Len returns the number of staged requests.
func (q *ingestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
