package jsonfile

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/infinityplans/portal/docstore"
	"go.vocdoni.io/dvote/log"
)

// WriteFixture implements docstore.FixtureWriter. The fixture name is a top
// level collection that must already exist; its documents, subcollections
// included, are replaced by docs.
func (s *Store) WriteFixture(_ context.Context, name string, docs map[string]docstore.Document) error {
	if err := s.check(); err != nil {
		return err
	}
	col, err := docstore.Collection(name)
	if err != nil {
		return err
	}
	if col.Parent() != nil {
		return fmt.Errorf("%w: fixture %q is not a top level collection", docstore.ErrInvalidPath, name)
	}
	refs := make(map[string]*docstore.DocRef, len(docs))
	for path := range docs {
		ref, err := docstore.Doc(path)
		if err != nil {
			return err
		}
		if !strings.HasPrefix(ref.Path(), col.Path()+"/") {
			return fmt.Errorf("%w: %q is not part of fixture %q", docstore.ErrInvalidPath, path, name)
		}
		refs[ref.Path()] = ref
	}
	if info, err := os.Stat(s.dir(col.Path())); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: fixture %q", docstore.ErrNotFound, name)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	existing, err := s.walk(col.Path())
	if err != nil {
		return err
	}
	for path, ref := range refs {
		if err := s.write(ref, docs[path]); err != nil {
			return err
		}
	}
	removed := 0
	for _, path := range existing {
		if _, ok := refs[path]; ok {
			continue
		}
		if err := os.Remove(s.file(path)); err != nil && !os.IsNotExist(err) {
			return mapError(err)
		}
		removed++
	}
	log.Debugw("fixture written", "name", name, "written", len(refs), "removed", removed)
	return nil
}

// Export implements docstore.Dumper.
func (s *Store) Export(_ context.Context, prefix string) (map[string]docstore.Document, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	prefix = strings.Trim(prefix, "/")
	paths, err := s.walk(prefix)
	if err != nil {
		return nil, err
	}
	docs := make(map[string]docstore.Document, len(paths))
	for _, path := range paths {
		ref, err := docstore.Doc(path)
		if err != nil {
			return nil, err
		}
		snap, err := s.read(ref)
		if err != nil {
			return nil, err
		}
		if snap.Exists {
			docs[path] = snap.Data
		}
	}
	return docs, nil
}

// Import implements docstore.Dumper.
func (s *Store) Import(_ context.Context, docs map[string]docstore.Document) error {
	if err := s.check(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for path, data := range docs {
		ref, err := docstore.Doc(path)
		if err != nil {
			return err
		}
		if err := s.write(ref, data); err != nil {
			return err
		}
	}
	return nil
}
