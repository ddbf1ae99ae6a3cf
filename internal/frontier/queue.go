package frontier

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Queue is the shared frontier of URLs waiting for a crawl attempt.
// Duplicates are allowed; dedup happens when a worker claims a URL.
type Queue struct {
	mu          sync.Mutex
	elements    []string
	totalQueued int
	strategy    Strategy
	rng         *rand.Rand

	// wake is closed and replaced on every Push so that all blocked
	// Pop calls re-check the queue.
	wake chan struct{}
}

func NewQueue(s Strategy) *Queue {
	return &Queue{
		elements: make([]string, 0),
		strategy: s,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		wake:     make(chan struct{}),
	}
}

// Push adds a candidate URL. It never blocks.
func (q *Queue) Push(u string) {
	q.mu.Lock()
	q.elements = append(q.elements, u)
	q.totalQueued++
	close(q.wake)
	q.wake = make(chan struct{})
	q.mu.Unlock()
}

// Pop waits up to timeout for an entry. ("", false) means nothing showed up
// in time, or ctx ended.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (string, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if u, ok := q.takeLocked(); ok {
			q.mu.Unlock()
			return u, true
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-wake:
		case <-timer.C:
			return "", false
		case <-ctx.Done():
			return "", false
		}
	}
}

// takeLocked pops from front or back according to the strategy.
func (q *Queue) takeLocked() (string, bool) {
	n := len(q.elements)
	if n == 0 {
		return "", false
	}
	if q.strategy.popBack(q.rng) {
		u := q.elements[n-1]
		q.elements = q.elements[:n-1]
		return u, true
	}
	u := q.elements[0]
	q.elements[0] = ""
	q.elements = q.elements[1:]
	return u, true
}

// Clear drops every pending entry and reports how many there were.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.elements)
	q.elements = make([]string, 0)
	return n
}

func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.elements)
}

func (q *Queue) TotalQueued() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totalQueued
}
