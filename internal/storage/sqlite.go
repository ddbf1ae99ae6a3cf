package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"search-crawler/internal/index"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id      INTEGER PRIMARY KEY,
	url         TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL,
	page_rank   REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS postings (
	word   TEXT NOT NULL,
	doc_id INTEGER NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
	PRIMARY KEY (word, doc_id)
);

CREATE INDEX IF NOT EXISTS idx_postings_doc ON postings(doc_id);
`

// SQLiteSink stores the index in a single SQLite file. Each Save replaces
// the previous contents.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// ":memory:" works for tests.
func OpenSQLite(ctx context.Context, path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps ":memory:" databases alive across calls
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Save(ctx context.Context, snap index.Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM postings"); err != nil {
		return fmt.Errorf("clear postings: %w", err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM documents"); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}

	docStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO documents (doc_id, url, title, description, page_rank) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare documents: %w", err)
	}
	defer docStmt.Close()
	for _, d := range snap.Documents {
		if _, err = docStmt.ExecContext(ctx, d.ID, d.URL, d.Title, d.Description, d.Rank); err != nil {
			return fmt.Errorf("insert document %d: %w", d.ID, err)
		}
	}

	postStmt, err := tx.PrepareContext(ctx, "INSERT INTO postings (word, doc_id) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("prepare postings: %w", err)
	}
	defer postStmt.Close()
	for _, p := range snap.Postings {
		for _, id := range p.DocIDs {
			if _, err = postStmt.ExecContext(ctx, p.Word, id); err != nil {
				return fmt.Errorf("insert posting %q/%d: %w", p.Word, id, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Lookup returns the IDs of documents containing word, ascending.
func (s *SQLiteSink) Lookup(ctx context.Context, word string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT doc_id FROM postings WHERE word = ? ORDER BY doc_id", word)
	if err != nil {
		return nil, fmt.Errorf("query postings: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Document loads one row of the document table.
func (s *SQLiteSink) Document(ctx context.Context, id int) (index.Document, error) {
	d := index.Document{ID: id}
	err := s.db.QueryRowContext(ctx,
		"SELECT url, title, description, page_rank FROM documents WHERE doc_id = ?", id).
		Scan(&d.URL, &d.Title, &d.Description, &d.Rank)
	if err != nil {
		return index.Document{}, fmt.Errorf("load document %d: %w", id, err)
	}
	return d, nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
