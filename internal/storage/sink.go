// Package storage persists the crawl's index artifact: the word -> docIDs
// table and the docID -> page table.
package storage

import (
	"context"
	"errors"

	"search-crawler/internal/index"
)

// Sink writes an index snapshot somewhere durable.
type Sink interface {
	Save(ctx context.Context, snap index.Snapshot) error
	Close() error
}

type multi []Sink

// Multi fans a snapshot out to every sink. Errors from all sinks are joined.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Save(ctx context.Context, snap index.Snapshot) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
