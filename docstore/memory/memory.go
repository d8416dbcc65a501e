// Package memory implements an in-process docstore.Store. Listeners are
// called synchronously from the goroutine that performs the write, which
// makes it the backend of choice for tests and for the development server.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/infinityplans/portal/docstore"
)

// Store keeps every document in a map keyed by its full path.
type Store struct {
	mu       sync.Mutex
	docs     map[string]docstore.Document
	version  int64
	nextID   int
	watchers map[int]*watcher
	closed   bool
}

type watcher struct {
	ref     *docstore.DocRef
	query   *docstore.Query
	onDoc   docstore.DocListener
	onQuery docstore.QueryListener
	last    atomic.Int64
	active  atomic.Bool
	done    chan struct{}
}

// New returns an empty store.
func New() *Store {
	return &Store{
		docs:     make(map[string]docstore.Document),
		watchers: make(map[int]*watcher),
	}
}

// Get implements docstore.Store.
func (s *Store) Get(_ context.Context, ref *docstore.DocRef) (*docstore.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, docstore.ErrClosed
	}
	return s.snapshotLocked(ref), nil
}

// Set implements docstore.Store.
func (s *Store) Set(_ context.Context, ref *docstore.DocRef, data docstore.Document) error {
	doc, err := docstore.Normalize(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return docstore.ErrClosed
	}
	s.docs[ref.Path()] = doc
	s.notifyLocked(ref)
	return nil
}

// Update implements docstore.Store.
func (s *Store) Update(_ context.Context, ref *docstore.DocRef, fields docstore.Document) error {
	patch, err := docstore.Normalize(fields)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return docstore.ErrClosed
	}
	doc, ok := s.docs[ref.Path()]
	if !ok {
		s.mu.Unlock()
		return docstore.ErrNotFound
	}
	merged := make(docstore.Document, len(doc)+len(patch))
	for k, v := range doc {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	s.docs[ref.Path()] = merged
	s.notifyLocked(ref)
	return nil
}

// Delete implements docstore.Store.
func (s *Store) Delete(_ context.Context, ref *docstore.DocRef) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return docstore.ErrClosed
	}
	if _, ok := s.docs[ref.Path()]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.docs, ref.Path())
	s.notifyLocked(ref)
	return nil
}

// List implements docstore.Store.
func (s *Store) List(_ context.Context, q *docstore.Query) ([]*docstore.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, docstore.ErrClosed
	}
	return s.queryLocked(q), nil
}

// Watch implements docstore.Store. The current state of the document is
// delivered before Watch returns.
func (s *Store) Watch(ctx context.Context, ref *docstore.DocRef, fn docstore.DocListener) (docstore.Unsubscribe, error) {
	w := &watcher{ref: ref, onDoc: fn}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, docstore.ErrClosed
	}
	unsub := s.registerLocked(ctx, w)
	version, snap := s.version, s.snapshotLocked(ref)
	s.mu.Unlock()
	w.deliverDoc(version, snap)
	return unsub, nil
}

// WatchQuery implements docstore.Store.
func (s *Store) WatchQuery(ctx context.Context, q *docstore.Query, fn docstore.QueryListener) (docstore.Unsubscribe, error) {
	w := &watcher{query: q, onQuery: fn}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, docstore.ErrClosed
	}
	unsub := s.registerLocked(ctx, w)
	version, snaps := s.version, s.queryLocked(q)
	s.mu.Unlock()
	w.deliverQuery(version, snaps)
	return unsub, nil
}

// Close drops every watcher. Further calls fail with docstore.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, w := range s.watchers {
		w.stop()
		delete(s.watchers, id)
	}
	return nil
}

// Watchers returns the number of active subscriptions.
func (s *Store) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

// Paths returns the sorted paths of every stored document under the given
// prefix. An empty prefix returns everything.
func (s *Store) Paths(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := []string{}
	for p := range s.docs {
		if prefix == "" || p == prefix || strings.HasPrefix(p, prefix+"/") {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

// Export implements docstore.Dumper.
func (s *Store) Export(_ context.Context, prefix string) (map[string]docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, docstore.ErrClosed
	}
	docs := map[string]docstore.Document{}
	for p, doc := range s.docs {
		if prefix == "" || p == prefix || strings.HasPrefix(p, prefix+"/") {
			docs[p], _ = docstore.Normalize(doc)
		}
	}
	return docs, nil
}

// Import implements docstore.Dumper. Watchers are notified once per
// document.
func (s *Store) Import(ctx context.Context, docs map[string]docstore.Document) error {
	for path, data := range docs {
		ref, err := docstore.Doc(path)
		if err != nil {
			return err
		}
		if err := s.Set(ctx, ref, data); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) registerLocked(ctx context.Context, w *watcher) docstore.Unsubscribe {
	id := s.nextID
	s.nextID++
	w.last.Store(-1)
	w.active.Store(true)
	w.done = make(chan struct{})
	s.watchers[id] = w
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
			w.stop()
		})
	}
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				unsub()
			case <-w.done:
			}
		}()
	}
	return unsub
}

func (s *Store) snapshotLocked(ref *docstore.DocRef) *docstore.Snapshot {
	snap := &docstore.Snapshot{Ref: ref}
	if doc, ok := s.docs[ref.Path()]; ok {
		snap.Exists = true
		snap.Data, _ = docstore.Normalize(doc)
	}
	return snap
}

func (s *Store) queryLocked(q *docstore.Query) []*docstore.Snapshot {
	parent := q.Collection().Path()
	snaps := []*docstore.Snapshot{}
	for path, doc := range s.docs {
		i := strings.LastIndex(path, "/")
		if i < 0 || path[:i] != parent {
			continue
		}
		ref, err := docstore.Doc(path)
		if err != nil {
			continue
		}
		data, _ := docstore.Normalize(doc)
		snaps = append(snaps, &docstore.Snapshot{Ref: ref, Exists: true, Data: data})
	}
	return q.Apply(snaps)
}

// notifyLocked bumps the store version, collects the affected watchers and
// releases the lock before calling them.
func (s *Store) notifyLocked(ref *docstore.DocRef) {
	s.version++
	version := s.version
	type delivery struct {
		w     *watcher
		snap  *docstore.Snapshot
		snaps []*docstore.Snapshot
	}
	var pending []delivery
	for _, w := range s.watchers {
		switch {
		case w.ref != nil && w.ref.Equal(ref):
			pending = append(pending, delivery{w: w, snap: s.snapshotLocked(ref)})
		case w.query != nil && w.query.Collection().Path() == ref.Parent().Path():
			pending = append(pending, delivery{w: w, snaps: s.queryLocked(w.query)})
		}
	}
	s.mu.Unlock()
	for _, d := range pending {
		if d.w.onDoc != nil {
			d.w.deliverDoc(version, d.snap)
		} else {
			d.w.deliverQuery(version, d.snaps)
		}
	}
}

// accept drops deliveries older than the last one handed to the listener.
func (w *watcher) accept(version int64) bool {
	for {
		last := w.last.Load()
		if version <= last {
			return false
		}
		if w.last.CompareAndSwap(last, version) {
			return true
		}
	}
}

func (w *watcher) deliverDoc(version int64, snap *docstore.Snapshot) {
	if w.active.Load() && w.accept(version) {
		w.onDoc(snap, nil)
	}
}

func (w *watcher) deliverQuery(version int64, snaps []*docstore.Snapshot) {
	if w.active.Load() && w.accept(version) {
		w.onQuery(snaps, nil)
	}
}

func (w *watcher) stop() {
	if w.active.CompareAndSwap(true, false) {
		close(w.done)
	}
}
