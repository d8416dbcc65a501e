package docstore

import (
	"encoding/json"
	"fmt"
)

// Document is the content of a stored document. Values are restricted to what
// JSON can represent: strings, float64 numbers, booleans, nil, []any and
// map[string]any.
type Document map[string]any

// Snapshot is the state of a document at the time it was read.
type Snapshot struct {
	Ref    *DocRef
	Exists bool
	Data   Document
}

// DataTo decodes the snapshot data into v. It fails with ErrNotFound if the
// document does not exist.
func (s *Snapshot) DataTo(v any) error {
	if s == nil || !s.Exists {
		return ErrNotFound
	}
	return Decode(s.Data, v)
}

// Encode converts any JSON serializable value into a Document.
func Encode(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cannot encode document: %w", err)
	}
	doc := Document{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("value is not an object: %w", err)
	}
	return doc, nil
}

// Decode fills v with the content of the document.
func Decode(doc Document, v any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("cannot decode document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("cannot decode document: %w", err)
	}
	return nil
}

// Normalize returns a deep copy of the document restricted to JSON types.
// Backends call it on every write so callers cannot share mutable state with
// the store.
func Normalize(doc Document) (Document, error) {
	if doc == nil {
		return Document{}, nil
	}
	return Encode(doc)
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := &Snapshot{Ref: s.Ref, Exists: s.Exists}
	if s.Data != nil {
		// data already went through Normalize, so this cannot fail
		c.Data, _ = Normalize(s.Data)
	}
	return c
}
