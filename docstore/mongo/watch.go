package mongo

import (
	"context"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/infinityplans/portal/docstore"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.vocdoni.io/dvote/log"
)

// Watch implements docstore.Store. The current state is delivered before
// Watch returns; later changes arrive from a change stream goroutine.
func (s *Store) Watch(ctx context.Context, ref *docstore.DocRef, fn docstore.DocListener) (docstore.Unsubscribe, error) {
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.D{
		{Key: "documentKey._id", Value: ref.Path()},
	}}}}
	return s.subscribe(ctx, ref.Path(), pipeline,
		func(ctx context.Context) (func(), error) {
			snap, err := s.Get(ctx, ref)
			if err != nil {
				return nil, err
			}
			return func() { fn(snap, nil) }, nil
		},
		func(err error) { fn(nil, err) },
	)
}

// WatchQuery implements docstore.Store. Any change in the collection runs
// the query again.
func (s *Store) WatchQuery(ctx context.Context, q *docstore.Query, fn docstore.QueryListener) (docstore.Unsubscribe, error) {
	pattern := "^" + regexp.QuoteMeta(q.Collection().Path()) + "/[^/]+$"
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.D{
		{Key: "documentKey._id", Value: primitive.Regex{Pattern: pattern}},
	}}}}
	return s.subscribe(ctx, q.String(), pipeline,
		func(ctx context.Context) (func(), error) {
			snaps, err := s.List(ctx, q)
			if err != nil {
				return nil, err
			}
			return func() { fn(snaps, nil) }, nil
		},
		func(err error) { fn(nil, err) },
	)
}

// subscribe opens a change stream before the first read, so no change
// between the read and the stream start is lost. read loads the current
// state and returns the function that hands it to the listener.
func (s *Store) subscribe(ctx context.Context, target string, pipeline mongo.Pipeline,
	read func(context.Context) (func(), error), fail func(error),
) (docstore.Unsubscribe, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, docstore.ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	id := s.nextID
	s.nextID++
	s.watchers[id] = cancel
	s.mu.Unlock()

	var active atomic.Bool
	active.Store(true)
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			active.Store(false)
			cancel()
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}

	stream, err := s.documents.Watch(ctx, pipeline)
	if err != nil {
		unsub()
		return nil, mapError(err)
	}
	deliver, err := read(ctx)
	if err != nil {
		unsub()
		closeStream(stream)
		return nil, err
	}
	deliver()

	go func() {
		defer closeStream(stream)
		for stream.Next(ctx) {
			deliver, err := read(ctx)
			if !active.Load() {
				return
			}
			if err != nil {
				active.Store(false)
				fail(err)
				unsub()
				return
			}
			deliver()
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil && active.Load() {
			log.Warnw("change stream failed", "target", target, "error", err)
			active.Store(false)
			fail(mapError(err))
			unsub()
		}
	}()
	return unsub, nil
}

func closeStream(stream *mongo.ChangeStream) {
	if err := stream.Close(context.Background()); err != nil {
		log.Debugw("error closing change stream", "error", err)
	}
}
