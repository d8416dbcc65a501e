package mongo

import (
	"context"
	"fmt"
	"regexp"

	"github.com/infinityplans/portal/docstore"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.vocdoni.io/dvote/log"
)

// Export implements docstore.Dumper. Only the documents under prefix are
// returned; an empty prefix exports the whole database.
func (s *Store) Export(ctx context.Context, prefix string) (map[string]docstore.Document, error) {
	filter := bson.M{}
	if prefix != "" {
		quoted := regexp.QuoteMeta(prefix)
		filter = bson.M{"_id": primitive.Regex{Pattern: "^" + quoted + "(/|$)"}}
	}
	cursor, err := s.documents.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, mapError(err)
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Warnw("error closing cursor", "error", err)
		}
	}()
	docs := map[string]docstore.Document{}
	for cursor.Next(ctx) {
		var doc stored
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("cannot decode document: %w", err)
		}
		data, err := toDocument(doc.Data)
		if err != nil {
			return nil, err
		}
		docs[doc.Path] = data
	}
	return docs, cursor.Err()
}

// Import implements docstore.Dumper. Documents are upserted one by one; a
// failure is logged and the import goes on with the next one.
func (s *Store) Import(ctx context.Context, docs map[string]docstore.Document) error {
	log.Infow("importing documents", "count", len(docs))
	failed := 0
	for path, data := range docs {
		ref, err := docstore.Doc(path)
		if err != nil {
			log.Warnw("skipping document with invalid path", "path", path, "error", err)
			failed++
			continue
		}
		if err := s.Set(ctx, ref, data); err != nil {
			log.Warnw("error upserting document", "path", path, "error", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents could not be imported", failed, len(docs))
	}
	log.Infow("imported documents", "count", len(docs))
	return nil
}
