// Package index holds the inverted index and document table built during a
// crawl. Index is not safe for concurrent use; the crawler mutates it only
// while holding its shared-state lock.
package index

import (
	"slices"
	"sort"

	"search-crawler/internal/parser"
)

// Document is one row of the document table.
type Document struct {
	ID          int
	URL         string
	Title       string
	Description string
	Rank        float64
	Tokens      []string
}

// Posting is one inverted index row: a word and the documents holding it.
type Posting struct {
	Word   string
	DocIDs []int
}

// Snapshot is a sorted, self-contained copy of the index for persistence.
type Snapshot struct {
	Postings  []Posting
	Documents []Document
}

type Index struct {
	postings map[string]map[int]struct{}
	docs     []Document
	byURL    map[string]int
	links    [][]string
}

func New() *Index {
	return &Index{
		postings: make(map[string]map[int]struct{}),
		byURL:    make(map[string]int),
	}
}

// Add stores rec under the next document ID and returns that ID. links are
// the page's outbound URLs, kept for ranking.
func (ix *Index) Add(rec parser.PageRecord, links []string) int {
	id := len(ix.docs)
	ix.docs = append(ix.docs, Document{
		ID:          id,
		URL:         rec.URL,
		Title:       rec.Title,
		Description: rec.Description,
		Tokens:      rec.Tokens,
	})
	ix.links = append(ix.links, links)
	if _, seen := ix.byURL[rec.URL]; !seen {
		ix.byURL[rec.URL] = id
	}
	for _, w := range rec.Tokens {
		set, ok := ix.postings[w]
		if !ok {
			set = make(map[int]struct{})
			ix.postings[w] = set
		}
		set[id] = struct{}{}
	}
	return id
}

func (ix *Index) Len() int { return len(ix.docs) }

// Words reports how many distinct words are indexed.
func (ix *Index) Words() int { return len(ix.postings) }

// Lookup returns the sorted IDs of documents containing word.
func (ix *Index) Lookup(word string) []int {
	set := ix.postings[word]
	if len(set) == 0 {
		return nil
	}
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Doc returns the document with the given ID.
func (ix *Index) Doc(id int) (Document, bool) {
	if id < 0 || id >= len(ix.docs) {
		return Document{}, false
	}
	return ix.docs[id], true
}

// ComputeRanks runs PageRank over links between indexed documents and stores
// the scores on each document. Scores sum to 1.
func (ix *Index) ComputeRanks(damping float64, iterations int) {
	n := len(ix.docs)
	if n == 0 {
		return
	}

	out := make([][]int, n)
	for from, links := range ix.links {
		seen := make(map[int]struct{})
		for _, l := range links {
			to, ok := ix.byURL[l]
			if !ok || to == from {
				continue
			}
			if _, dup := seen[to]; dup {
				continue
			}
			seen[to] = struct{}{}
			out[from] = append(out[from], to)
		}
	}

	rank := make([]float64, n)
	for i := range rank {
		rank[i] = 1 / float64(n)
	}
	next := make([]float64, n)
	for it := 0; it < iterations; it++ {
		dangling := 0.0
		for i, targets := range out {
			if len(targets) == 0 {
				dangling += rank[i]
			}
		}
		base := (1-damping)/float64(n) + damping*dangling/float64(n)
		for i := range next {
			next[i] = base
		}
		for i, targets := range out {
			if len(targets) == 0 {
				continue
			}
			share := damping * rank[i] / float64(len(targets))
			for _, to := range targets {
				next[to] += share
			}
		}
		rank, next = next, rank
	}

	for i := range ix.docs {
		ix.docs[i].Rank = rank[i]
	}
}

// Snapshot copies the index with postings sorted by word and documents by ID.
func (ix *Index) Snapshot() Snapshot {
	snap := Snapshot{
		Postings:  make([]Posting, 0, len(ix.postings)),
		Documents: slices.Clone(ix.docs),
	}
	for w := range ix.postings {
		snap.Postings = append(snap.Postings, Posting{Word: w, DocIDs: ix.Lookup(w)})
	}
	sort.Slice(snap.Postings, func(i, j int) bool {
		return snap.Postings[i].Word < snap.Postings[j].Word
	})
	return snap
}
