package poller

import (
	"sync"

	"github.com/unklstewy/flight-display/pkg/flight"
)

// Result is the outcome of one poll cycle: either a flight list or an error
// message, never both.
type Result struct {
	Flights []flight.Record
	Err     string
}

// OK reports whether the cycle succeeded.
func (r Result) OK() bool {
	return r.Err == ""
}

// Handlers receive drained results on the consumer's goroutine.
type Handlers struct {
	OnUpdate func(flights []flight.Record)
	OnError  func(msg string)
}

// Queue is an unbounded FIFO of cycle results. Push never blocks, so a slow
// consumer can never stall the poll loop.
type Queue struct {
	mu    sync.Mutex
	items []Result
	ready chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Push appends r and wakes a waiting consumer.
func (q *Queue) Push(r Result) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Ready is signaled after a push. Consumers that do not run on a timer can
// select on it and then Drain.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of pending results.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// take removes and returns every pending result in arrival order.
func (q *Queue) take() []Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Drain dispatches every pending result, oldest first, and returns how many
// were handled. It never blocks waiting for new results. Handlers run on the
// calling goroutine and a nil handler skips its results.
func (q *Queue) Drain(h Handlers) int {
	items := q.take()
	for _, r := range items {
		if r.OK() {
			if h.OnUpdate != nil {
				h.OnUpdate(r.Flights)
			}
		} else if h.OnError != nil {
			h.OnError(r.Err)
		}
	}
	return len(items)
}
