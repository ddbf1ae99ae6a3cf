package crawler

import (
	"math"
	"sync"

	"search-crawler/internal/frontier"
	"search-crawler/internal/index"
	"search-crawler/internal/parser"
)

type claimResult int

const (
	claimed claimResult = iota
	claimDuplicate
	claimStopped
	claimLimit
)

// state is everything the workers share. Every read-compare-write of count,
// stop and the index happens under mu, together with the visited claim, so
// "one page = one increment" and exactly-once claims hold across workers.
type state struct {
	mu       sync.Mutex
	frontier *frontier.Queue
	visited  *frontier.Visited
	index    *index.Index
	count    int
	limit    int
	stop     bool
	inflight int
	dropped  int

	// onStop runs once, under mu, when the stop flag flips.
	onStop func()
}

func newState(q *frontier.Queue, limit int) *state {
	if limit <= 0 {
		limit = math.MaxInt
	}
	return &state{
		frontier: q,
		visited:  frontier.NewVisited(),
		index:    index.New(),
		limit:    limit,
	}
}

// claim decides whether the caller may process u.
func (s *state) claim(u string) claimResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop {
		return claimStopped
	}
	if s.count >= s.limit {
		s.tripLocked()
		return claimLimit
	}
	if !s.visited.TryClaim(u) {
		return claimDuplicate
	}
	s.inflight++
	return claimed
}

// release marks a claimed URL as finished, whatever the outcome.
func (s *state) release() {
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
}

// publish merges rec into the index, queues unseen links and bumps the
// counter. It refuses once the limit has been reached, so a page fetched by
// a worker that claimed just before the limit tripped is dropped.
func (s *state) publish(rec parser.PageRecord, links []string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop || s.count >= s.limit {
		return -1, false
	}
	id := s.index.Add(rec, links)
	for _, l := range links {
		if !s.visited.Has(l) {
			s.frontier.Push(l)
		}
	}
	s.count++
	if s.count >= s.limit {
		s.tripLocked()
	}
	return id, true
}

// tripLocked sets the stop flag and empties the frontier. One-shot.
func (s *state) tripLocked() {
	if s.stop {
		return
	}
	s.stop = true
	s.dropped = s.frontier.Clear()
	if s.onStop != nil {
		s.onStop()
	}
}

func (s *state) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop
}

// idle reports whether no worker is processing a claimed URL.
func (s *state) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight == 0
}

// droppedAtStop is how many queued URLs the limit trip discarded.
func (s *state) droppedAtStop() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *state) pages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
