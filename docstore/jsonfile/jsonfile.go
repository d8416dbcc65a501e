// Package jsonfile implements docstore.Store over a directory of JSON files,
// one file per document: the document users/INF001 lives in
// <root>/users/INF001.json. Writes replace whole files, so the last writer
// wins. Subscriptions follow the files through filesystem notifications,
// which also picks up fixtures edited by hand.
package jsonfile

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/infinityplans/portal/docstore"
	"go.vocdoni.io/dvote/log"
)

const ext = ".json"

// Store keeps the documents under root.
type Store struct {
	root    string
	watcher *fsnotify.Watcher

	// writeMu serializes read-modify-write cycles of this process
	writeMu sync.Mutex

	mu     sync.Mutex
	subs   map[int]*subscription
	dirs   map[string]int
	nextID int
	closed bool
	done   chan struct{}
}

// New opens a store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create fixture directory: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("cannot start file watcher: %w", err)
	}
	s := &Store{
		root:    root,
		watcher: w,
		subs:    make(map[int]*subscription),
		dirs:    make(map[string]int),
		done:    make(chan struct{}),
	}
	go s.dispatch()
	log.Infow("json fixture store ready", "root", root)
	return s, nil
}

// Root returns the absolute directory of the store.
func (s *Store) Root() string { return s.root }

// Get implements docstore.Store.
func (s *Store) Get(_ context.Context, ref *docstore.DocRef) (*docstore.Snapshot, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.read(ref)
}

// Set implements docstore.Store.
func (s *Store) Set(_ context.Context, ref *docstore.DocRef, data docstore.Document) error {
	if err := s.check(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.write(ref, data)
}

// Update implements docstore.Store.
func (s *Store) Update(_ context.Context, ref *docstore.DocRef, fields docstore.Document) error {
	if err := s.check(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	snap, err := s.read(ref)
	if err != nil {
		return err
	}
	if !snap.Exists {
		return docstore.ErrNotFound
	}
	for k, v := range fields {
		snap.Data[k] = v
	}
	return s.write(ref, snap.Data)
}

// Delete implements docstore.Store.
func (s *Store) Delete(_ context.Context, ref *docstore.DocRef) error {
	if err := s.check(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := os.Remove(s.file(ref.Path())); err != nil && !goerrors.Is(err, fs.ErrNotExist) {
		return mapError(err)
	}
	return nil
}

// List implements docstore.Store.
func (s *Store) List(_ context.Context, q *docstore.Query) ([]*docstore.Snapshot, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.list(q)
}

// Close stops the file watcher and every subscription.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stops := make([]func(), 0, len(s.subs))
	for _, sub := range s.subs {
		sub.active.Store(false)
		if sub.stop != nil {
			stops = append(stops, sub.stop)
		}
	}
	s.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
	err := s.watcher.Close()
	<-s.done
	return err
}

func (s *Store) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}
	return nil
}

// file returns the file holding the document at path.
func (s *Store) file(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path)) + ext
}

// dir returns the directory holding the documents of a collection.
func (s *Store) dir(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

func (s *Store) read(ref *docstore.DocRef) (*docstore.Snapshot, error) {
	snap := &docstore.Snapshot{Ref: ref}
	raw, err := os.ReadFile(s.file(ref.Path()))
	if goerrors.Is(err, fs.ErrNotExist) {
		return snap, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	doc := docstore.Document{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%s: invalid JSON document: %w", ref.Path(), err)
	}
	snap.Exists, snap.Data = true, doc
	return snap, nil
}

// write replaces the file atomically through a temporary file in the same
// directory.
func (s *Store) write(ref *docstore.DocRef, data docstore.Document) error {
	doc, err := docstore.Normalize(data)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	file := s.file(ref.Path())
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return mapError(err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(file), "."+filepath.Base(file)+".*")
	if err != nil {
		return mapError(err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return mapError(os.Rename(tmp.Name(), file))
}

func (s *Store) list(q *docstore.Query) ([]*docstore.Snapshot, error) {
	entries, err := os.ReadDir(s.dir(q.Collection().Path()))
	if goerrors.Is(err, fs.ErrNotExist) {
		return []*docstore.Snapshot{}, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	snaps := []*docstore.Snapshot{}
	for _, e := range entries {
		id, ok := docID(e.Name())
		if !ok || e.IsDir() {
			continue
		}
		ref, err := q.Collection().Doc(id)
		if err != nil {
			continue
		}
		snap, err := s.read(ref)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return q.Apply(snaps), nil
}

// walk returns the sorted paths of every document under the given path
// prefix, which may be a collection or a document.
func (s *Store) walk(prefix string) ([]string, error) {
	paths := []string{}
	if _, err := docstore.Doc(prefix); err == nil {
		if _, err := os.Stat(s.file(prefix)); err == nil {
			paths = append(paths, prefix)
		}
	}
	base := s.dir(prefix)
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if goerrors.Is(err, fs.ErrNotExist) && p == base {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := docID(d.Name()); !ok {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		path := strings.TrimSuffix(filepath.ToSlash(rel), ext)
		if _, err := docstore.Doc(path); err == nil {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil && !goerrors.Is(err, fs.SkipDir) {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// docID returns the document id stored in the named file. Hidden and
// temporary files are skipped.
func docID(name string) (string, bool) {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
		return "", false
	}
	id := strings.TrimSuffix(name, ext)
	return id, id != ""
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if goerrors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %v", docstore.ErrPermissionDenied, err)
	}
	return err
}

var (
	_ docstore.Store         = (*Store)(nil)
	_ docstore.FixtureWriter = (*Store)(nil)
	_ docstore.Dumper        = (*Store)(nil)
)
