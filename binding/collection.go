package binding

import (
	"encoding/json"

	"github.com/infinityplans/portal/docstore"
)

// Entry is one document of a bound collection.
type Entry[T any] struct {
	ID    string
	Value T
}

// MarshalJSON renders the entry as the document fields plus an "id" field.
func (e Entry[T]) MarshalJSON() ([]byte, error) {
	doc, err := docstore.Encode(e.Value)
	if err != nil {
		return nil, err
	}
	doc["id"] = e.ID
	return json.Marshal(doc)
}

// Collection binds the result set of a query to a slice of T.
type Collection[T any] struct {
	store docstore.Store
	b     *binder[[]Entry[T]]
}

// NewCollection returns an unbound collection binding.
func NewCollection[T any](store docstore.Store, opts ...Option) *Collection[T] {
	return &Collection[T]{store: store, b: newBinder[[]Entry[T]](docstore.OpList, opts)}
}

// Bind points the binding to q. Queries are compared by their string form;
// failures are reported with the path of the queried collection.
func (c *Collection[T]) Bind(q *docstore.Query) {
	if q == nil {
		c.b.bind("", "", nil)
		return
	}
	c.b.bind(q.String(), q.Collection().Path(), func(settle func([]Entry[T], error, bool)) (docstore.Unsubscribe, error) {
		return c.store.WatchQuery(c.b.opts.ctx, q, func(snaps []*docstore.Snapshot, err error) {
			if err != nil {
				settle(nil, err, true)
				return
			}
			entries := make([]Entry[T], 0, len(snaps))
			for _, snap := range snaps {
				var v T
				if err := snap.DataTo(&v); err != nil {
					settle(nil, err, false)
					return
				}
				entries = append(entries, Entry[T]{ID: snap.Ref.ID(), Value: v})
			}
			settle(entries, nil, false)
		})
	})
}

// State returns the current state.
func (c *Collection[T]) State() State[[]Entry[T]] { return c.b.current() }

// Subscribe calls fn with the current state and then on every change.
func (c *Collection[T]) Subscribe(fn func(State[[]Entry[T]])) (unsubscribe func()) {
	return c.b.subscribe(fn)
}

// Close tears down the subscription.
func (c *Collection[T]) Close() { c.b.close() }
