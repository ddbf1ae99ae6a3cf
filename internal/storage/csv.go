package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"search-crawler/internal/index"
)

const (
	InvertedIndexFile = "invertedIndex.csv"
	PageInfoFile      = "pageInfo.csv"
)

// CSVSink writes the two tables the search service loads at startup.
type CSVSink struct {
	Dir string
}

func NewCSVSink(dir string) *CSVSink {
	return &CSVSink{Dir: dir}
}

func (s *CSVSink) Save(_ context.Context, snap index.Snapshot) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create csv dir: %w", err)
	}

	postings := make([][]string, 0, len(snap.Postings)+1)
	postings = append(postings, []string{"word", "docIDs"})
	for _, p := range snap.Postings {
		postings = append(postings, []string{p.Word, FormatDocIDs(p.DocIDs)})
	}
	if err := writeCSV(filepath.Join(s.Dir, InvertedIndexFile), postings); err != nil {
		return err
	}

	docs := make([][]string, 0, len(snap.Documents)+1)
	docs = append(docs, []string{"docID", "url", "title", "description", "pageRank"})
	for _, d := range snap.Documents {
		docs = append(docs, []string{
			strconv.Itoa(d.ID),
			d.URL,
			d.Title,
			d.Description,
			strconv.FormatFloat(d.Rank, 'g', -1, 64),
		})
	}
	return writeCSV(filepath.Join(s.Dir, PageInfoFile), docs)
}

func (s *CSVSink) Close() error { return nil }

// FormatDocIDs renders IDs as "[1, 2, 3]".
func FormatDocIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// writeCSV writes to a temp file and renames it into place.
func writeCSV(path string, rows [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
