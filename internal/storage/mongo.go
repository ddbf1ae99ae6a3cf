package storage

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"search-crawler/internal/index"
)

// MongoStore keeps pages and postings in two collections. Without a URI it
// runs in no-op mode so crawls work with no database around.
type MongoStore struct {
	Client   *mongo.Client
	Pages    *mongo.Collection
	Postings *mongo.Collection
	runID    string
	logger   *slog.Logger
}

// NewMongoStore connects when uri is set; pages go to <collection>, postings
// to <collection>_postings.
func NewMongoStore(ctx context.Context, uri, database, collection, runID string, logger *slog.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MongoStore{runID: runID, logger: logger}
	if uri == "" {
		logger.Info("MongoDB access disabled, running in no-op mode")
		return s, nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	db := client.Database(database)
	s.Client = client
	s.Pages = db.Collection(collection)
	s.Postings = db.Collection(collection + "_postings")
	return s, nil
}

// Enabled reports whether the store talks to a real database.
func (s *MongoStore) Enabled() bool { return s.Client != nil }

// Save replaces this run's documents with the snapshot.
func (s *MongoStore) Save(ctx context.Context, snap index.Snapshot) error {
	if !s.Enabled() {
		s.logger.Debug("skipping mongo save: no client")
		return nil
	}
	filter := bson.M{"runID": s.runID}
	if _, err := s.Pages.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("clear pages: %w", err)
	}
	if _, err := s.Postings.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("clear postings: %w", err)
	}

	if docs := pageDocs(s.runID, snap.Documents); len(docs) > 0 {
		res, err := s.Pages.InsertMany(ctx, docs)
		if err != nil {
			return fmt.Errorf("insert pages: %w", err)
		}
		s.logger.Info("mongo pages inserted", "count", len(res.InsertedIDs))
	}
	if docs := postingDocs(s.runID, snap.Postings); len(docs) > 0 {
		if _, err := s.Postings.InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("insert postings: %w", err)
		}
	}
	return nil
}

func (s *MongoStore) Close() error {
	if s.Client == nil {
		return nil
	}
	return s.Client.Disconnect(context.Background())
}

func pageDocs(runID string, docs []index.Document) []any {
	out := make([]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, bson.M{
			"runID":       runID,
			"docID":       d.ID,
			"url":         d.URL,
			"title":       d.Title,
			"description": d.Description,
			"pageRank":    d.Rank,
			"wordCount":   len(d.Tokens),
		})
	}
	return out
}

func postingDocs(runID string, postings []index.Posting) []any {
	out := make([]any, 0, len(postings))
	for _, p := range postings {
		out = append(out, bson.M{
			"runID":  runID,
			"word":   p.Word,
			"docIDs": p.DocIDs,
		})
	}
	return out
}
