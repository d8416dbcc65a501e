// Package mongo implements docstore.Store over MongoDB. Every document lives
// in a single collection, keyed by its full path, next to the path of the
// collection it belongs to. Real-time subscriptions use change streams, so
// the server must run as a replica set.
package mongo

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/migrations"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.vocdoni.io/dvote/log"
)

const (
	// connectTimeout bounds the initial connection and ping.
	connectTimeout = 10 * time.Second
	// ResetEnv drops the stored documents at startup when set.
	ResetEnv = "PORTAL_MONGO_RESET_DB"
)

// Store is a docstore.Store backed by a MongoDB database.
type Store struct {
	client     *mongo.Client
	database   string
	documents  *mongo.Collection
	migrations *mongo.Collection

	mu       sync.Mutex
	watchers map[int]context.CancelFunc
	nextID   int
	closed   bool
}

// stored is the persisted form of a document.
type stored struct {
	Path      string    `bson:"_id"`
	Parent    string    `bson:"parent"`
	Data      bson.Raw  `bson:"data"`
	UpdatedAt time.Time `bson:"updatedAt,omitempty"`
}

// New connects to the database and applies the pending migrations.
func New(url, database string) (*Store, error) {
	if url == "" {
		return nil, fmt.Errorf("mongo URL is not defined")
	}
	if database == "" {
		return nil, fmt.Errorf("mongo database is not defined")
	}
	log.Infow("connecting to mongodb", "database", database)
	opts := options.Client()
	opts.ApplyURI(url)
	opts.SetMaxConnecting(200)
	timeout := connectTimeout
	opts.ConnectTimeout = &timeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongodb: %w", err)
	}
	ctx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("cannot connect to mongodb: %w", err)
	}
	s := &Store{
		client:     client,
		database:   database,
		documents:  client.Database(database).Collection(migrations.DocumentsCollection),
		migrations: client.Database(database).Collection(migrations.MigrationsCollection),
		watchers:   make(map[int]context.CancelFunc),
	}
	if reset := os.Getenv(ResetEnv); reset != "" {
		if err := s.Reset(); err != nil {
			return nil, err
		}
	}
	if err := s.RunMigrationsUp(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reset drops every stored document and the migration records. The next
// RunMigrationsUp recreates the collections.
func (s *Store) Reset() error {
	log.Infow("resetting database", "database", s.database)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.documents.Drop(ctx); err != nil {
		return err
	}
	return s.migrations.Drop(ctx)
}

// Close stops the subscriptions and disconnects from the server.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	for id, cancel := range s.watchers {
		cancel()
		delete(s.watchers, id)
	}
	s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, ref *docstore.DocRef) (*docstore.Snapshot, error) {
	var doc stored
	err := s.documents.FindOne(ctx, bson.M{"_id": ref.Path()}).Decode(&doc)
	if goerrors.Is(err, mongo.ErrNoDocuments) {
		return &docstore.Snapshot{Ref: ref}, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	data, err := toDocument(doc.Data)
	if err != nil {
		return nil, err
	}
	return &docstore.Snapshot{Ref: ref, Exists: true, Data: data}, nil
}

// Set implements docstore.Store.
func (s *Store) Set(ctx context.Context, ref *docstore.DocRef, data docstore.Document) error {
	doc, err := docstore.Normalize(data)
	if err != nil {
		return err
	}
	replacement := bson.M{
		"_id":       ref.Path(),
		"parent":    ref.Parent().Path(),
		"data":      map[string]any(doc),
		"updatedAt": time.Now().UTC(),
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.documents.ReplaceOne(ctx, bson.M{"_id": ref.Path()}, replacement, opts); err != nil {
		return mapError(err)
	}
	return nil
}

// Update implements docstore.Store.
func (s *Store) Update(ctx context.Context, ref *docstore.DocRef, fields docstore.Document) error {
	patch, err := docstore.Normalize(fields)
	if err != nil {
		return err
	}
	set := bson.M{"updatedAt": time.Now().UTC()}
	for k, v := range patch {
		set["data."+k] = v
	}
	res, err := s.documents.UpdateOne(ctx, bson.M{"_id": ref.Path()}, bson.M{"$set": set})
	if err != nil {
		return mapError(err)
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

// Delete implements docstore.Store.
func (s *Store) Delete(ctx context.Context, ref *docstore.DocRef) error {
	if _, err := s.documents.DeleteOne(ctx, bson.M{"_id": ref.Path()}); err != nil {
		return mapError(err)
	}
	return nil
}

// List implements docstore.Store.
func (s *Store) List(ctx context.Context, q *docstore.Query) ([]*docstore.Snapshot, error) {
	filter := bson.D{{Key: "parent", Value: q.Collection().Path()}}
	for _, f := range q.Filters() {
		filter = append(filter, bson.E{Key: "data." + f.Field, Value: f.Value})
	}
	direction := 1
	field, descending := q.Order()
	if descending {
		direction = -1
	}
	sort := bson.D{{Key: "_id", Value: direction}}
	if field != "" {
		sort = bson.D{{Key: "data." + field, Value: direction}, {Key: "_id", Value: 1}}
	}
	opts := options.Find().SetSort(sort)
	if q.Max() > 0 {
		opts.SetLimit(int64(q.Max()))
	}
	cursor, err := s.documents.Find(ctx, filter, opts)
	if err != nil {
		return nil, mapError(err)
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Warnw("error closing cursor", "error", err)
		}
	}()
	snaps := []*docstore.Snapshot{}
	for cursor.Next(ctx) {
		var doc stored
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("cannot decode document: %w", err)
		}
		ref, err := docstore.Doc(doc.Path)
		if err != nil {
			log.Warnw("skipping document with invalid path", "path", doc.Path)
			continue
		}
		data, err := toDocument(doc.Data)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, &docstore.Snapshot{Ref: ref, Exists: true, Data: data})
	}
	if err := cursor.Err(); err != nil {
		return nil, mapError(err)
	}
	return snaps, nil
}

// toDocument converts the stored BSON content into JSON types.
func toDocument(raw bson.Raw) (docstore.Document, error) {
	if len(raw) == 0 {
		return docstore.Document{}, nil
	}
	ext, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("cannot decode document: %w", err)
	}
	doc := docstore.Document{}
	if err := json.Unmarshal(ext, &doc); err != nil {
		return nil, fmt.Errorf("cannot decode document: %w", err)
	}
	return doc, nil
}

// mapError translates driver errors into the docstore taxonomy.
func mapError(err error) error {
	var cmdErr mongo.CommandError
	if goerrors.As(err, &cmdErr) && (cmdErr.Code == 13 || cmdErr.Name == "Unauthorized") {
		return fmt.Errorf("%w: %v", docstore.ErrPermissionDenied, err)
	}
	var writeErr mongo.WriteException
	if goerrors.As(err, &writeErr) {
		for _, we := range writeErr.WriteErrors {
			if we.Code == 13 {
				return fmt.Errorf("%w: %v", docstore.ErrPermissionDenied, err)
			}
		}
	}
	if goerrors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("%w: %v", docstore.ErrClosed, err)
	}
	return err
}
