package jsonfile

import (
	"context"
	goerrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/infinityplans/portal/docstore"
	"go.vocdoni.io/dvote/log"
)

// subscription follows either one file or every document file of a
// directory. Until dir exists the deepest existing directory above it is
// watched instead, so reads never create directories.
type subscription struct {
	dir     string
	file    string // empty for queries
	watched string

	// mu serializes deliveries, each of which reads the current state, so
	// the last delivery always carries the latest content
	mu      sync.Mutex
	active  atomic.Bool
	deliver func() error
	fail    func(error)
	stop    func()
}

// Watch implements docstore.Store. The current state is delivered before
// Watch returns.
func (s *Store) Watch(ctx context.Context, ref *docstore.DocRef, fn docstore.DocListener) (docstore.Unsubscribe, error) {
	file := s.file(ref.Path())
	sub := &subscription{
		dir:  filepath.Dir(file),
		file: file,
		deliver: func() error {
			snap, err := s.read(ref)
			if err != nil {
				return err
			}
			fn(snap, nil)
			return nil
		},
		fail: func(err error) { fn(nil, err) },
	}
	return s.subscribe(ctx, sub)
}

// WatchQuery implements docstore.Store.
func (s *Store) WatchQuery(ctx context.Context, q *docstore.Query, fn docstore.QueryListener) (docstore.Unsubscribe, error) {
	sub := &subscription{
		dir: s.dir(q.Collection().Path()),
		deliver: func() error {
			snaps, err := s.list(q)
			if err != nil {
				return err
			}
			fn(snaps, nil)
			return nil
		},
		fail: func(err error) { fn(nil, err) },
	}
	return s.subscribe(ctx, sub)
}

func (s *Store) subscribe(ctx context.Context, sub *subscription) (docstore.Unsubscribe, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, docstore.ErrClosed
	}
	if _, err := s.armLocked(sub); err != nil {
		if sub.watched != "" {
			s.unwatchLocked(sub.watched)
		}
		s.mu.Unlock()
		return nil, mapError(err)
	}
	id := s.nextID
	s.nextID++
	sub.active.Store(true)
	s.subs[id] = sub
	s.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			sub.active.Store(false)
			close(done)
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[id]; !ok {
				return
			}
			delete(s.subs, id)
			s.unwatchLocked(sub.watched)
		})
	}

	sub.stop = unsub

	sub.mu.Lock()
	err := sub.deliver()
	sub.mu.Unlock()
	if err != nil {
		unsub()
		return nil, err
	}
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				unsub()
			case <-done:
			}
		}()
	}
	return unsub, nil
}

// dispatch routes file events to the subscriptions they affect until the
// watcher is closed.
func (s *Store) dispatch() {
	defer close(s.done)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if _, ok := docID(filepath.Base(ev.Name)); !ok {
				// directories appearing or vanishing on the way to a
				// watched one
				for _, sub := range s.rearm(ev.Name) {
					sub.notify()
				}
				continue
			}
			for _, sub := range s.affected(ev.Name) {
				sub.notify()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			if goerrors.Is(err, fsnotify.ErrEventOverflow) {
				// events were lost, refresh everyone
				log.Warnw("file watcher overflow, refreshing subscriptions")
				for _, sub := range s.affected("") {
					sub.notify()
				}
				continue
			}
			log.Warnw("file watcher error", "error", err)
		}
	}
}

// affected returns the subscriptions interested in the named file, or every
// subscription when name is empty.
func (s *Store) affected(name string) []*subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	var subs []*subscription
	for _, sub := range s.subs {
		switch {
		case name == "":
		case sub.file != "" && sub.file != name:
			continue
		case sub.file == "" && filepath.Dir(name) != sub.dir:
			continue
		}
		subs = append(subs, sub)
	}
	return subs
}

// rearm moves the watches of the subscriptions whose directory is name or
// lies below it, and returns the ones that moved.
func (s *Store) rearm(name string) []*subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	var moved []*subscription
	for _, sub := range s.subs {
		if sub.dir != name && !strings.HasPrefix(sub.dir, name+string(filepath.Separator)) {
			continue
		}
		ok, err := s.armLocked(sub)
		if err != nil {
			log.Warnw("cannot move directory watch", "dir", sub.dir, "error", err)
		}
		if ok {
			moved = append(moved, sub)
		}
	}
	return moved
}

// armLocked points the watch of sub at the deepest existing directory on
// the way to sub.dir. It reports whether the watch moved.
func (s *Store) armLocked(sub *subscription) (bool, error) {
	moved := false
	for {
		dir := s.existingAncestor(sub.dir)
		if dir == sub.watched {
			return moved, nil
		}
		if err := s.watchLocked(dir); err != nil {
			return moved, err
		}
		if sub.watched != "" {
			s.unwatchLocked(sub.watched)
		}
		sub.watched = dir
		moved = true
	}
}

// existingAncestor returns dir, or its closest parent that exists, stopping
// at the root.
func (s *Store) existingAncestor(dir string) string {
	for d := dir; ; d = filepath.Dir(d) {
		if d == s.root || !strings.HasPrefix(d, s.root+string(filepath.Separator)) {
			return s.root
		}
		if fi, err := os.Stat(d); err == nil && fi.IsDir() {
			return d
		}
	}
}

func (s *Store) watchLocked(dir string) error {
	if s.dirs[dir] == 0 {
		if err := s.watcher.Add(dir); err != nil {
			return err
		}
	}
	s.dirs[dir]++
	return nil
}

func (s *Store) unwatchLocked(dir string) {
	s.dirs[dir]--
	if s.dirs[dir] > 0 {
		return
	}
	delete(s.dirs, dir)
	// removed directories drop their watch on their own
	if err := s.watcher.Remove(dir); err != nil {
		log.Debugw("cannot stop watching directory", "dir", dir, "error", err)
	}
}

func (sub *subscription) notify() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.active.Load() {
		return
	}
	if err := sub.deliver(); err != nil {
		log.Warnw("cannot read watched documents", "dir", sub.dir, "error", err)
		// a file caught halfway through an external edit is read again on
		// the next event
		if !docstore.IsPermissionDenied(err) {
			return
		}
		if sub.active.CompareAndSwap(true, false) {
			sub.fail(err)
			sub.stop()
		}
	}
}
