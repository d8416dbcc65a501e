package docstore

import (
	"fmt"
	"strings"
)

// DocRef points to exactly one document. Its path has an even number of
// segments: collection/id[/collection/id...].
type DocRef struct {
	segments []string
}

// CollectionRef points to a collection. Its path has an odd number of
// segments.
type CollectionRef struct {
	segments []string
}

// Doc parses a document path.
func Doc(path string) (*DocRef, error) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if len(segments)%2 != 0 {
		return nil, fmt.Errorf("%w: %q is a collection path", ErrInvalidPath, path)
	}
	return &DocRef{segments: segments}, nil
}

// MustDoc is like Doc but panics on malformed paths. Use it only with
// constant paths.
func MustDoc(path string) *DocRef {
	ref, err := Doc(path)
	if err != nil {
		panic(err)
	}
	return ref
}

// Collection parses a collection path.
func Collection(path string) (*CollectionRef, error) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if len(segments)%2 != 1 {
		return nil, fmt.Errorf("%w: %q is a document path", ErrInvalidPath, path)
	}
	return &CollectionRef{segments: segments}, nil
}

// MustCollection is like Collection but panics on malformed paths.
func MustCollection(path string) *CollectionRef {
	ref, err := Collection(path)
	if err != nil {
		panic(err)
	}
	return ref
}

// Path returns the slash separated path of the document.
func (r *DocRef) Path() string { return strings.Join(r.segments, "/") }

// ID returns the last segment of the path.
func (r *DocRef) ID() string { return r.segments[len(r.segments)-1] }

// Parent returns the collection that contains the document.
func (r *DocRef) Parent() *CollectionRef {
	return &CollectionRef{segments: r.segments[:len(r.segments)-1]}
}

// Collection returns a subcollection of the document.
func (r *DocRef) Collection(name string) (*CollectionRef, error) {
	return Collection(r.Path() + "/" + name)
}

// Equal reports whether both references point to the same document. Two nil
// references are equal.
func (r *DocRef) Equal(other *DocRef) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.Path() == other.Path()
}

func (r *DocRef) String() string { return r.Path() }

// Path returns the slash separated path of the collection.
func (c *CollectionRef) Path() string { return strings.Join(c.segments, "/") }

// ID returns the collection name.
func (c *CollectionRef) ID() string { return c.segments[len(c.segments)-1] }

// Parent returns the document that contains the collection, or nil for root
// collections.
func (c *CollectionRef) Parent() *DocRef {
	if len(c.segments) == 1 {
		return nil
	}
	return &DocRef{segments: c.segments[:len(c.segments)-1]}
}

// Doc returns a reference to the document with the given id inside the
// collection.
func (c *CollectionRef) Doc(id string) (*DocRef, error) {
	return Doc(c.Path() + "/" + id)
}

// Query returns a query that matches every document of the collection.
func (c *CollectionRef) Query() *Query {
	return &Query{collection: c}
}

func (c *CollectionRef) String() string { return c.Path() }
