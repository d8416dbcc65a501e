// Package binding keeps Go values in sync with documents of a docstore.
//
// A binding owns at most one real-time subscription at a time. Binding a new
// reference tears the previous subscription down before the next one is
// established, and callbacks still in flight for an old subscription are
// ignored. Failures are terminal: the binding keeps the error until it is
// bound to a different reference.
package binding

import (
	"context"
	"sync"

	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/emitter"
)

// State is what a binding currently knows about its target.
type State[V any] struct {
	Data    V
	Loading bool
	Err     error
}

// Option configures a binding.
type Option func(*options)

type options struct {
	ctx     context.Context
	emitter *emitter.Emitter
}

// WithContext sets the context passed to the store subscriptions. It
// carries the principal checked by access rules.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

// WithEmitter sets the emitter subscription failures are reported to. It
// defaults to emitter.Default().
func WithEmitter(e *emitter.Emitter) Option {
	return func(o *options) { o.emitter = e }
}

func newOptions(opts []Option) options {
	o := options{ctx: context.Background()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.emitter == nil {
		o.emitter = emitter.Default()
	}
	return o
}

// watchFunc establishes a subscription. settle must be called with every
// update; fail marks a subscription failure. Failures caused by a permission
// denial are reported to the emitter.
type watchFunc[V any] func(settle func(data V, err error, fail bool)) (docstore.Unsubscribe, error)

// binder holds the subscription bookkeeping shared by Doc and Collection.
// bindMu serializes Bind and Close, notifyMu keeps listener calls in the
// order states were produced and mu guards the fields.
type binder[V any] struct {
	opts options
	op   docstore.Op

	bindMu   sync.Mutex
	notifyMu sync.Mutex
	mu       sync.Mutex

	bound   bool
	key     string
	gen     uint64
	unsub   docstore.Unsubscribe
	state   State[V]
	subs    map[int]func(State[V])
	nextSub int
	closed  bool
}

func newBinder[V any](op docstore.Op, opts []Option) *binder[V] {
	return &binder[V]{
		opts: newOptions(opts),
		op:   op,
		subs: make(map[int]func(State[V])),
	}
}

// bind switches the binding to a new target. key identifies the target and
// an empty key stands for a nil reference. path is the document or
// collection path reported with permission errors.
func (b *binder[V]) bind(key, path string, watch watchFunc[V]) {
	b.bindMu.Lock()
	defer b.bindMu.Unlock()

	b.notifyMu.Lock()
	b.mu.Lock()
	if b.closed || (b.bound && b.key == key) {
		b.mu.Unlock()
		b.notifyMu.Unlock()
		return
	}
	b.gen++
	gen := b.gen
	prev := b.unsub
	b.unsub = nil
	b.bound = true
	b.key = key
	var zero V
	b.state = State[V]{Data: zero, Loading: key != ""}
	st, subs := b.state, b.listenersLocked()
	b.mu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
	b.notifyMu.Unlock()

	if prev != nil {
		prev()
	}
	if key == "" {
		return
	}

	unsub, err := watch(func(data V, err error, fail bool) {
		b.settle(gen, path, data, err, fail)
	})
	if err != nil {
		b.settle(gen, path, zero, err, true)
		return
	}
	b.mu.Lock()
	if b.gen != gen || b.closed {
		b.mu.Unlock()
		unsub()
		return
	}
	b.unsub = unsub
	b.mu.Unlock()
}

func (b *binder[V]) settle(gen uint64, path string, data V, err error, fail bool) {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()
	b.mu.Lock()
	if gen != b.gen || b.closed {
		b.mu.Unlock()
		return
	}
	if err != nil {
		var zero V
		data = zero
	}
	b.state = State[V]{Data: data, Loading: false, Err: err}
	st, subs := b.state, b.listenersLocked()
	b.mu.Unlock()

	if fail && docstore.IsPermissionDenied(err) {
		b.opts.emitter.Emit(&emitter.PermissionError{Path: path, Operation: b.op, Err: err})
	}
	for _, fn := range subs {
		fn(st)
	}
}

func (b *binder[V]) listenersLocked() []func(State[V]) {
	subs := make([]func(State[V]), 0, len(b.subs))
	for i := 0; i < b.nextSub; i++ {
		if fn, ok := b.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	return subs
}

func (b *binder[V]) current() State[V] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// subscribe registers fn and calls it with the current state. Listeners run
// with the notification lock held, so they must not call Bind.
func (b *binder[V]) subscribe(fn func(State[V])) func() {
	b.notifyMu.Lock()
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	st := b.state
	b.mu.Unlock()
	fn(st)
	b.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

func (b *binder[V]) close() {
	b.bindMu.Lock()
	defer b.bindMu.Unlock()
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.gen++
	unsub := b.unsub
	b.unsub = nil
	b.subs = map[int]func(State[V]){}
	b.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}
