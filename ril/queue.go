package ril

import (
	"container/list"
	"context"
	"sync"
	"time"

	"i4.energy/across/mbmril/modem"
)

// EventFunc is a deferred callback. It runs on a lane worker with that
// lane's channel.
type EventFunc func(ctx context.Context, ch *modem.Channel)

type event struct {
	fn       EventFunc
	deadline time.Time
}

// Queue is one lane's work: a FIFO of requests and a list of events kept
// sorted by deadline.
type Queue struct {
	mu       sync.Mutex
	requests []Request
	events   *list.List
	closed   bool
	// wake is closed and replaced to broadcast a change to waiters.
	wake chan struct{}
}

// NewQueue returns an open, empty queue.
func NewQueue() *Queue {
	return &Queue{
		events: list.New(),
		wake:   make(chan struct{}),
	}
}

// Push appends a request. It fails with ErrLaneClosed while the queue is
// closed.
func (q *Queue) Push(req Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrLaneClosed
	}
	q.requests = append(q.requests, req)
	q.broadcast()
	return nil
}

// Schedule inserts fn to run after delay. Events with equal deadlines run
// in the order they were scheduled. Events are accepted while the queue is
// closed and run once it is reopened.
func (q *Queue) Schedule(fn EventFunc, delay time.Duration) {
	e := &event{fn: fn, deadline: time.Now().Add(delay)}

	q.mu.Lock()
	defer q.mu.Unlock()

	el := q.events.Back()
	for el != nil && el.Value.(*event).deadline.After(e.deadline) {
		el = el.Prev()
	}
	if el == nil {
		q.events.PushFront(e)
	} else {
		q.events.InsertAfter(e, el)
	}
	q.broadcast()
}

// Close marks the queue closed, wakes every waiter and returns the
// requests that were still queued. The caller owns their completion.
func (q *Queue) Close() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	dropped := q.requests
	q.requests = nil
	q.broadcast()
	return dropped
}

// Reopen accepts requests again.
func (q *Queue) Reopen() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = false
	q.broadcast()
}

// Closed reports whether the queue is closed.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued requests and events.
func (q *Queue) Len() (requests, events int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests), q.events.Len()
}

// broadcast must be called with mu held.
func (q *Queue) broadcast() {
	close(q.wake)
	q.wake = make(chan struct{})
}

// next blocks until an event is due or a request is queued, then pops at
// most one of each. It returns ErrLaneClosed once the queue is closed and
// ctx.Err() when ctx ends.
func (q *Queue) next(ctx context.Context) (*event, *Request, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, nil, ErrLaneClosed
		}

		now := time.Now()
		var e *event
		if front := q.events.Front(); front != nil && !front.Value.(*event).deadline.After(now) {
			e = q.events.Remove(front).(*event)
		}
		var r *Request
		if len(q.requests) > 0 {
			req := q.requests[0]
			q.requests[0] = Request{}
			q.requests = q.requests[1:]
			r = &req
		}
		if e != nil || r != nil {
			q.mu.Unlock()
			return e, r, nil
		}

		wake := q.wake
		var timer *time.Timer
		var fire <-chan time.Time
		if front := q.events.Front(); front != nil {
			timer = time.NewTimer(front.Value.(*event).deadline.Sub(now))
			fire = timer.C
		}
		q.mu.Unlock()

		select {
		case <-wake:
		case <-fire:
		case <-ctx.Done():
		}
		if timer != nil {
			timer.Stop()
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
	}
}
