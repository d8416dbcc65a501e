// Package firestore implements docstore.Store over Cloud Firestore using the
// Firebase Admin SDK. Real-time subscriptions are backed by snapshot
// iterators.
package firestore

import (
	"context"
	goerrors "errors"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/infinityplans/portal/docstore"
	"go.vocdoni.io/dvote/log"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Store wraps a Firestore client.
type Store struct {
	client *firestore.Client

	mu       sync.Mutex
	watchers map[int]context.CancelFunc
	nextID   int
	closed   bool
}

// New initializes a Firebase app and returns a store over its Firestore
// database. An empty credentials file uses the application default
// credentials. When FIRESTORE_EMULATOR_HOST is set the client talks to the
// emulator.
func New(ctx context.Context, projectID, credentialsFile string) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}
	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get firestore client: %w", err)
	}
	log.Infow("connected to firestore", "project", projectID)
	return NewWithClient(client), nil
}

// NewWithClient returns a store using an existing client. Closing the store
// closes the client.
func NewWithClient(client *firestore.Client) *Store {
	return &Store{client: client, watchers: make(map[int]context.CancelFunc)}
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, ref *docstore.DocRef) (*docstore.Snapshot, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	snap, err := s.client.Doc(ref.Path()).Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return nil, mapError(err)
	}
	return toSnapshot(ref, snap)
}

// Set implements docstore.Store.
func (s *Store) Set(ctx context.Context, ref *docstore.DocRef, data docstore.Document) error {
	if err := s.check(); err != nil {
		return err
	}
	doc, err := docstore.Normalize(data)
	if err != nil {
		return err
	}
	_, err = s.client.Doc(ref.Path()).Set(ctx, map[string]any(doc))
	return mapError(err)
}

// Update implements docstore.Store. Field names are used as single path
// segments, so names containing dots are not split.
func (s *Store) Update(ctx context.Context, ref *docstore.DocRef, fields docstore.Document) error {
	if err := s.check(); err != nil {
		return err
	}
	patch, err := docstore.Normalize(fields)
	if err != nil {
		return err
	}
	if len(patch) == 0 {
		snap, err := s.Get(ctx, ref)
		if err != nil {
			return err
		}
		if !snap.Exists {
			return docstore.ErrNotFound
		}
		return nil
	}
	updates := make([]firestore.Update, 0, len(patch))
	for k, v := range patch {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
	}
	_, err = s.client.Doc(ref.Path()).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return docstore.ErrNotFound
	}
	return mapError(err)
}

// Delete implements docstore.Store.
func (s *Store) Delete(ctx context.Context, ref *docstore.DocRef) error {
	if err := s.check(); err != nil {
		return err
	}
	_, err := s.client.Doc(ref.Path()).Delete(ctx)
	return mapError(err)
}

// List implements docstore.Store.
func (s *Store) List(ctx context.Context, q *docstore.Query) ([]*docstore.Snapshot, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	docs, err := s.query(q).Documents(ctx).GetAll()
	if err != nil {
		return nil, mapError(err)
	}
	return toSnapshots(q, docs)
}

// Close stops every subscription and closes the client.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, cancel := range s.watchers {
		cancel()
		delete(s.watchers, id)
	}
	s.mu.Unlock()
	return s.client.Close()
}

func (s *Store) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}
	return nil
}

// query translates q into a native Firestore query.
func (s *Store) query(q *docstore.Query) firestore.Query {
	fq := s.client.Collection(q.Collection().Path()).Query
	for _, f := range q.Filters() {
		fq = fq.Where(f.Field, "==", f.Value)
	}
	field, descending := q.Order()
	dir := firestore.Asc
	if descending {
		dir = firestore.Desc
	}
	if field != "" {
		fq = fq.OrderBy(field, dir)
		if descending {
			fq = fq.OrderBy(firestore.DocumentID, firestore.Desc)
		}
	} else {
		fq = fq.OrderBy(firestore.DocumentID, dir)
	}
	if q.Max() > 0 {
		fq = fq.Limit(q.Max())
	}
	return fq
}

func toSnapshot(ref *docstore.DocRef, snap *firestore.DocumentSnapshot) (*docstore.Snapshot, error) {
	res := &docstore.Snapshot{Ref: ref}
	if snap == nil || !snap.Exists() {
		return res, nil
	}
	data, err := docstore.Normalize(snap.Data())
	if err != nil {
		return nil, err
	}
	res.Exists, res.Data = true, data
	return res, nil
}

func toSnapshots(q *docstore.Query, docs []*firestore.DocumentSnapshot) ([]*docstore.Snapshot, error) {
	snaps := make([]*docstore.Snapshot, 0, len(docs))
	for _, d := range docs {
		ref, err := q.Collection().Doc(d.Ref.ID)
		if err != nil {
			return nil, err
		}
		snap, err := toSnapshot(ref, d)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// mapError translates gRPC status codes into docstore errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("%w: %v", docstore.ErrPermissionDenied, err)
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %v", docstore.ErrInvalidPath, err)
	}
	return err
}

// stopped reports whether an iterator error only means the subscription was
// torn down.
func stopped(ctx context.Context, err error) bool {
	return goerrors.Is(err, iterator.Done) || ctx.Err() != nil || status.Code(err) == codes.Canceled
}
