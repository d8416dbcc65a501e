package binding

import (
	"github.com/infinityplans/portal/docstore"
)

// Doc binds a single document to a value of type T.
type Doc[T any] struct {
	store docstore.Store
	b     *binder[*T]
}

// NewDoc returns an unbound document binding.
func NewDoc[T any](store docstore.Store, opts ...Option) *Doc[T] {
	return &Doc[T]{store: store, b: newBinder[*T](docstore.OpGet, opts)}
}

// Bind points the binding to ref. A nil ref settles the state to empty
// without subscribing. Binding the reference already bound does nothing.
func (d *Doc[T]) Bind(ref *docstore.DocRef) {
	if ref == nil {
		d.b.bind("", "", nil)
		return
	}
	d.b.bind(ref.Path(), ref.Path(), func(settle func(*T, error, bool)) (docstore.Unsubscribe, error) {
		return d.store.Watch(d.b.opts.ctx, ref, func(snap *docstore.Snapshot, err error) {
			switch {
			case err != nil:
				settle(nil, err, true)
			case !snap.Exists:
				settle(nil, nil, false)
			default:
				v := new(T)
				if err := snap.DataTo(v); err != nil {
					settle(nil, err, false)
					return
				}
				settle(v, nil, false)
			}
		})
	})
}

// State returns the current state. Data is nil while loading, when the
// document does not exist and after a failure.
func (d *Doc[T]) State() State[*T] { return d.b.current() }

// Subscribe calls fn with the current state and then on every change.
func (d *Doc[T]) Subscribe(fn func(State[*T])) (unsubscribe func()) {
	return d.b.subscribe(fn)
}

// Close tears down the subscription. The binding cannot be reused.
func (d *Doc[T]) Close() { d.b.close() }
