// Package limits – RequestQueue.
//
// This file implements the bounded-concurrency admission gate that caps how
// many orchestrator operations run at once. It is not a FIFO work queue:
// admission order is not guaranteed, only the concurrency bound is.
package limits

import (
	"context"
	"sync"
)

// RequestQueue bounds the number of concurrently executing operations.
//
// Slots are modeled as a buffered channel acting as a counting semaphore.
// Tickets are reference-counted per id, so the same logical ticket can be in
// flight from multiple callers without a mismatched Release ever freeing a
// slot twice: each successful Acquire consumes exactly one slot and bumps
// the ticket's count, and each Release decrements the count and frees
// exactly one slot.
type RequestQueue struct {
	slots chan struct{}

	mu     sync.Mutex
	active map[string]int // ticket id -> in-flight count
}

// NewRequestQueue constructs a RequestQueue with the given slot count.
// maxConcurrent <= 0 is coerced to 1.
func NewRequestQueue(maxConcurrent int) *RequestQueue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &RequestQueue{
		slots:  make(chan struct{}, maxConcurrent),
		active: make(map[string]int),
	}
}

// Acquire blocks until an execution slot is free, then records ticket as
// active. It returns ctx.Err() if the context is cancelled while waiting,
// in which case no slot is consumed.
func (q *RequestQueue) Acquire(ctx context.Context, ticket string) error {
	select {
	case q.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	q.mu.Lock()
	q.active[ticket]++
	q.mu.Unlock()
	return nil
}

// Release frees one slot held by ticket. Releasing a ticket that holds no
// slot is a no-op.
func (q *RequestQueue) Release(ticket string) {
	q.mu.Lock()
	n, ok := q.active[ticket]
	if !ok {
		q.mu.Unlock()
		return
	}
	if n <= 1 {
		delete(q.active, ticket)
	} else {
		q.active[ticket] = n - 1
	}
	q.mu.Unlock()

	<-q.slots
}

// ActiveCount returns the number of slots currently held.
func (q *RequestQueue) ActiveCount() int {
	return len(q.slots)
}

// ActiveTickets returns the number of distinct ticket ids in flight.
// Exposed for observability and tests.
func (q *RequestQueue) ActiveTickets() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}
