package firestore

import (
	"context"
	goerrors "errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/infinityplans/portal/docstore"
	"go.vocdoni.io/dvote/log"
	"google.golang.org/api/iterator"
)

// Export implements docstore.Dumper. The prefix may be empty, a collection
// path or a document path; subcollections are walked recursively.
func (s *Store) Export(ctx context.Context, prefix string) (map[string]docstore.Document, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	docs := map[string]docstore.Document{}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return docs, s.exportCollections(ctx, "", s.client.Collections(ctx), docs)
	}
	if _, err := docstore.Doc(prefix); err == nil {
		return docs, s.exportDoc(ctx, prefix, s.client.Doc(prefix), docs)
	}
	if _, err := docstore.Collection(prefix); err != nil {
		return nil, err
	}
	return docs, s.exportCollection(ctx, prefix, s.client.Collection(prefix), docs)
}

func (s *Store) exportCollections(ctx context.Context, parent string, it *firestore.CollectionIterator,
	docs map[string]docstore.Document,
) error {
	for {
		col, err := it.Next()
		if goerrors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return mapError(err)
		}
		path := col.ID
		if parent != "" {
			path = parent + "/" + col.ID
		}
		if err := s.exportCollection(ctx, path, col, docs); err != nil {
			return err
		}
	}
}

func (s *Store) exportCollection(ctx context.Context, path string, col *firestore.CollectionRef,
	docs map[string]docstore.Document,
) error {
	// DocumentRefs also lists missing documents that hold subcollections
	it := col.DocumentRefs(ctx)
	for {
		dr, err := it.Next()
		if goerrors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return mapError(err)
		}
		if err := s.exportDoc(ctx, path+"/"+dr.ID, dr, docs); err != nil {
			return err
		}
	}
}

func (s *Store) exportDoc(ctx context.Context, path string, dr *firestore.DocumentRef,
	docs map[string]docstore.Document,
) error {
	ref, err := docstore.Doc(path)
	if err != nil {
		return err
	}
	snap, err := s.Get(ctx, ref)
	if err != nil {
		return err
	}
	if snap.Exists {
		docs[path] = snap.Data
	}
	return s.exportCollections(ctx, path, dr.Collections(ctx), docs)
}

// Import implements docstore.Dumper using a bulk writer. Every document is
// attempted; the error reports how many failed.
func (s *Store) Import(ctx context.Context, docs map[string]docstore.Document) error {
	if err := s.check(); err != nil {
		return err
	}
	bw := s.client.BulkWriter(ctx)
	jobs := make(map[string]*firestore.BulkWriterJob, len(docs))
	for path, data := range docs {
		if _, err := docstore.Doc(path); err != nil {
			bw.End()
			return err
		}
		doc, err := docstore.Normalize(data)
		if err != nil {
			bw.End()
			return fmt.Errorf("%s: %w", path, err)
		}
		job, err := bw.Set(s.client.Doc(path), map[string]any(doc))
		if err != nil {
			bw.End()
			return mapError(err)
		}
		jobs[path] = job
	}
	bw.End()
	failed := 0
	for path, job := range jobs {
		if _, err := job.Results(); err != nil {
			log.Warnw("failed to import document", "path", path, "error", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to import %d of %d documents", failed, len(docs))
	}
	return nil
}
