package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-crawler/internal/index"
	"search-crawler/internal/logging"
)

func sampleSnapshot() index.Snapshot {
	return index.Snapshot{
		Postings: []index.Posting{
			{Word: "ship", DocIDs: []int{0, 1}},
			{Word: "whale", DocIDs: []int{0}},
		},
		Documents: []index.Document{
			{ID: 0, URL: "https://a/", Title: "A, with comma", Description: "first \"quoted\"", Rank: 0.6},
			{ID: 1, URL: "https://b/", Title: "B", Description: "", Rank: 0.4},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	rows, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "csv")
	sink := NewCSVSink(dir)
	require.NoError(t, sink.Save(context.Background(), sampleSnapshot()))
	require.NoError(t, sink.Close())

	assert.Equal(t, [][]string{
		{"word", "docIDs"},
		{"ship", "[0, 1]"},
		{"whale", "[0]"},
	}, readCSV(t, filepath.Join(dir, InvertedIndexFile)))

	assert.Equal(t, [][]string{
		{"docID", "url", "title", "description", "pageRank"},
		{"0", "https://a/", "A, with comma", "first \"quoted\"", "0.6"},
		{"1", "https://b/", "B", "", "0.4"},
	}, readCSV(t, filepath.Join(dir, PageInfoFile)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temp files are cleaned up")
}

func TestFormatDocIDs(t *testing.T) {
	assert.Equal(t, "[]", FormatDocIDs(nil))
	assert.Equal(t, "[5]", FormatDocIDs([]int{5}))
	assert.Equal(t, "[3, 7]", FormatDocIDs([]int{3, 7}))
}

func TestSQLiteSink(t *testing.T) {
	ctx := context.Background()
	sink, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Save(ctx, sampleSnapshot()))

	ids, err := sink.Lookup(ctx, "ship")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, ids)

	doc, err := sink.Document(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "A, with comma", doc.Title)
	assert.InDelta(t, 0.6, doc.Rank, 1e-12)

	// A second save replaces the first.
	next := index.Snapshot{
		Documents: []index.Document{{ID: 0, URL: "https://c/", Title: "C"}},
		Postings:  []index.Posting{{Word: "sea", DocIDs: []int{0}}},
	}
	require.NoError(t, sink.Save(ctx, next))
	ids, err = sink.Lookup(ctx, "ship")
	require.NoError(t, err)
	assert.Empty(t, ids)
	doc, err = sink.Document(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "https://c/", doc.URL)

	_, err = sink.Document(ctx, 9)
	assert.Error(t, err)
}

func TestSQLiteSinkRollsBackOnBadPosting(t *testing.T) {
	ctx := context.Background()
	sink, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer sink.Close()
	require.NoError(t, sink.Save(ctx, sampleSnapshot()))

	bad := index.Snapshot{
		Documents: []index.Document{{ID: 0, URL: "https://z/"}},
		Postings:  []index.Posting{{Word: "orphan", DocIDs: []int{42}}},
	}
	require.Error(t, sink.Save(ctx, bad))

	doc, err := sink.Document(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "https://a/", doc.URL, "failed save left previous contents intact")
}

func TestMongoStoreNoop(t *testing.T) {
	store, err := NewMongoStore(context.Background(), "", "db", "pages", "run-1", logging.Discard())
	require.NoError(t, err)
	assert.False(t, store.Enabled())
	assert.NoError(t, store.Save(context.Background(), sampleSnapshot()))
	assert.NoError(t, store.Close())
}

func TestPageDocs(t *testing.T) {
	docs := pageDocs("run-1", sampleSnapshot().Documents)
	require.Len(t, docs, 2)
	postings := postingDocs("run-1", sampleSnapshot().Postings)
	require.Len(t, postings, 2)
}

type failingSink struct{ err error }

func (f failingSink) Save(context.Context, index.Snapshot) error { return f.err }
func (f failingSink) Close() error                               { return nil }

func TestMultiJoinsErrors(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	dir := t.TempDir()

	m := Multi(failingSink{errA}, NewCSVSink(dir), failingSink{errB})
	err := m.Save(context.Background(), sampleSnapshot())
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.FileExists(t, filepath.Join(dir, PageInfoFile), "healthy sinks still run")
	assert.NoError(t, m.Close())
}
