// Package docstore defines the document database abstraction used by the
// portal: path based references, whole-document reads and writes, one-shot
// queries and real-time subscriptions. Backends live in the subpackages.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when an operation requires an existing document.
	ErrNotFound = fmt.Errorf("document not found")
	// ErrPermissionDenied is returned when the store rejects the operation.
	ErrPermissionDenied = fmt.Errorf("permission denied")
	// ErrInvalidPath is returned for malformed document or collection paths.
	ErrInvalidPath = fmt.Errorf("invalid path")
	// ErrClosed is returned by stores that have been closed.
	ErrClosed = fmt.Errorf("store closed")
)

// Op identifies the kind of access attempted on a path. The values match the
// operation names reported by permission errors.
type Op string

const (
	OpGet    Op = "get"
	OpList   Op = "list"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// IsRead reports whether the operation only reads data.
func (o Op) IsRead() bool {
	return o == OpGet || o == OpList
}

// Unsubscribe tears down a real-time subscription. It is safe to call more
// than once.
type Unsubscribe func()

// DocListener receives the snapshots of a watched document. Once it is called
// with a non-nil error the subscription is over and no more calls follow.
type DocListener func(snap *Snapshot, err error)

// QueryListener receives the full result set of a watched query every time it
// changes. As with DocListener, an error ends the subscription.
type QueryListener func(snaps []*Snapshot, err error)

// Store is the contract every backend implements.
type Store interface {
	// Get reads a document once. A missing document is returned as a
	// snapshot with Exists set to false, not as an error.
	Get(ctx context.Context, ref *DocRef) (*Snapshot, error)
	// Set overwrites the whole document, creating it if needed.
	Set(ctx context.Context, ref *DocRef, data Document) error
	// Update merges the given top level fields into an existing document.
	// It returns ErrNotFound if the document does not exist.
	Update(ctx context.Context, ref *DocRef, fields Document) error
	// Delete removes the document. Deleting a missing document is not an
	// error.
	Delete(ctx context.Context, ref *DocRef) error
	// List runs the query once.
	List(ctx context.Context, q *Query) ([]*Snapshot, error)
	// Watch subscribes to the document. The listener is called with the
	// current state and then on every change until the returned function is
	// called, the context is done or an error is delivered.
	Watch(ctx context.Context, ref *DocRef, fn DocListener) (Unsubscribe, error)
	// WatchQuery subscribes to the result set of the query.
	WatchQuery(ctx context.Context, q *Query, fn QueryListener) (Unsubscribe, error)
	// Close releases the backend resources.
	Close() error
}

// splitPath validates a slash separated path and returns its segments.
func splitPath(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	segments := strings.Split(path, "/")
	for _, s := range segments {
		if s == "" || s == "." || s == ".." {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return segments, nil
}

// IsPermissionDenied reports whether err is, or wraps, ErrPermissionDenied.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// FixtureWriter is implemented by stores backed by fixture files, which can
// replace the content of a whole file at once.
type FixtureWriter interface {
	// WriteFixture replaces the documents of the named fixture. Keys are
	// document paths.
	WriteFixture(ctx context.Context, name string, docs map[string]Document) error
}

// Dumper is implemented by stores that can export and import their whole
// content at once. Keys are document paths.
type Dumper interface {
	Export(ctx context.Context, prefix string) (map[string]Document, error)
	Import(ctx context.Context, docs map[string]Document) error
}
