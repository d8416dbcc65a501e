package firestore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/infinityplans/portal/docstore"
	"go.vocdoni.io/dvote/log"
)

// Watch implements docstore.Store. The first snapshot is delivered before
// Watch returns.
func (s *Store) Watch(ctx context.Context, ref *docstore.DocRef, fn docstore.DocListener) (docstore.Unsubscribe, error) {
	return s.subscribe(ctx, ref.Path(), func(ctx context.Context) (func() (func(), error), func()) {
		it := s.client.Doc(ref.Path()).Snapshots(ctx)
		next := func() (func(), error) {
			fsnap, err := it.Next()
			if err != nil {
				return nil, err
			}
			snap, err := toSnapshot(ref, fsnap)
			if err != nil {
				return nil, err
			}
			return func() { fn(snap, nil) }, nil
		}
		return next, it.Stop
	}, func(err error) { fn(nil, err) })
}

// WatchQuery implements docstore.Store.
func (s *Store) WatchQuery(ctx context.Context, q *docstore.Query, fn docstore.QueryListener) (docstore.Unsubscribe, error) {
	return s.subscribe(ctx, q.String(), func(ctx context.Context) (func() (func(), error), func()) {
		it := s.query(q).Snapshots(ctx)
		next := func() (func(), error) {
			qs, err := it.Next()
			if err != nil {
				return nil, err
			}
			docs, err := qs.Documents.GetAll()
			if err != nil {
				return nil, err
			}
			snaps, err := toSnapshots(q, docs)
			if err != nil {
				return nil, err
			}
			return func() { fn(snaps, nil) }, nil
		}
		return next, it.Stop
	}, func(err error) { fn(nil, err) })
}

// iterate opens a snapshot iterator and returns its next function, which
// blocks until the following state is available, together with its stop
// function.
type iterate func(ctx context.Context) (next func() (func(), error), stop func())

func (s *Store) subscribe(ctx context.Context, target string, open iterate, fail func(error)) (docstore.Unsubscribe, error) {
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

	next, stop := open(ctx)
	deliver, err := next()
	if err != nil {
		stop()
		unsub()
		return nil, mapError(err)
	}
	deliver()

	go func() {
		defer stop()
		for {
			deliver, err := next()
			if !active.Load() {
				return
			}
			if err != nil {
				if !stopped(ctx, err) {
					log.Warnw("firestore listener failed", "target", target, "error", err)
					active.Store(false)
					fail(mapError(err))
				}
				unsub()
				return
			}
			deliver()
		}
	}()
	return unsub, nil
}

// Subscriptions returns the number of active listeners.
func (s *Store) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

var _ docstore.Store = (*Store)(nil)
