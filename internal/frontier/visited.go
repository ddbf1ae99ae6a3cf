package frontier

import (
	"hash/fnv"
	"sync"
)

// Visited is the set of URLs already claimed by some worker.
// Entries are permanent for the lifetime of a crawl.
type Visited struct {
	set map[uint64]struct{}
	mu  sync.Mutex
}

func NewVisited() *Visited {
	return &Visited{
		set: make(map[uint64]struct{}),
	}
}

func hash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// TryClaim inserts u if absent and reports whether this call did the insert.
// Check and insert happen under one lock, so exactly one caller wins per URL.
func (v *Visited) TryClaim(u string) bool {
	k := hash(u)
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.set[k]; ok {
		return false
	}
	v.set[k] = struct{}{}
	return true
}

func (v *Visited) Has(u string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.set[hash(u)]
	return ok
}

func (v *Visited) Size() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.set)
}
