package binding

import (
	"context"
	"fmt"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/docstore/memory"
	"github.com/infinityplans/portal/emitter"
)

// mockStore records subscriptions and lets the test drive the listeners.
type mockStore struct {
	docstore.Store

	mu          sync.Mutex
	subscribed  int
	unsubscribe int
	active      map[string]int
	docFns      map[string]docstore.DocListener
	queryFns    map[string]docstore.QueryListener
	watchErr    error
}

func newMockStore() *mockStore {
	return &mockStore{
		active:   map[string]int{},
		docFns:   map[string]docstore.DocListener{},
		queryFns: map[string]docstore.QueryListener{},
	}
}

func (m *mockStore) track(key string) docstore.Unsubscribe {
	m.subscribed++
	m.active[key]++
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.unsubscribe++
			m.active[key]--
			if m.active[key] == 0 {
				delete(m.active, key)
			}
		})
	}
}

func (m *mockStore) Watch(_ context.Context, ref *docstore.DocRef, fn docstore.DocListener) (docstore.Unsubscribe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watchErr != nil {
		return nil, m.watchErr
	}
	m.docFns[ref.Path()] = fn
	return m.track(ref.Path()), nil
}

func (m *mockStore) WatchQuery(_ context.Context, q *docstore.Query, fn docstore.QueryListener) (docstore.Unsubscribe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryFns[q.Collection().Path()] = fn
	return m.track(q.Collection().Path()), nil
}

func (m *mockStore) activeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.active {
		n += v
	}
	return n
}

func (m *mockStore) fire(path string, data docstore.Document, err error) {
	m.mu.Lock()
	fn := m.docFns[path]
	m.mu.Unlock()
	if err != nil {
		fn(nil, err)
		return
	}
	fn(&docstore.Snapshot{Ref: docstore.MustDoc(path), Exists: data != nil, Data: data}, nil)
}

type policy struct {
	PolicyNumber string `json:"policyNumber"`
}

func TestSubscriptionLifecycle(t *testing.T) {
	c := qt.New(t)
	store := newMockStore()
	d := NewDoc[policy](store, WithEmitter(emitter.New()))

	r1 := docstore.MustDoc("users/INF001/accidental-insurance/details")
	r2 := docstore.MustDoc("users/INF002/accidental-insurance/details")
	r3 := docstore.MustDoc("users/INF003/accidental-insurance/details")

	maxActive := 0
	for _, ref := range []*docstore.DocRef{r1, r2, nil, r3} {
		d.Bind(ref)
		if n := store.activeCount(); n > maxActive {
			maxActive = n
		}
	}
	c.Assert(maxActive, qt.Equals, 1)
	c.Assert(store.subscribed, qt.Equals, 3)
	c.Assert(store.unsubscribe, qt.Equals, 2)
	c.Assert(store.active, qt.DeepEquals, map[string]int{r3.Path(): 1})

	// rebinding the same path keeps the subscription
	d.Bind(docstore.MustDoc(r3.Path()))
	c.Assert(store.subscribed, qt.Equals, 3)

	d.Close()
	c.Assert(store.subscribed, qt.Equals, store.unsubscribe)
	c.Assert(store.activeCount(), qt.Equals, 0)
}

func TestNilReference(t *testing.T) {
	c := qt.New(t)
	store := newMockStore()
	d := NewDoc[policy](store, WithEmitter(emitter.New()))
	d.Bind(nil)
	c.Assert(d.State(), qt.DeepEquals, State[*policy]{})
	c.Assert(store.subscribed, qt.Equals, 0)
}

func TestUpdates(t *testing.T) {
	c := qt.New(t)
	store := newMockStore()
	d := NewDoc[policy](store, WithEmitter(emitter.New()))
	ref := docstore.MustDoc("users/INF001/accidental-insurance/details")

	var states []State[*policy]
	unsub := d.Subscribe(func(s State[*policy]) { states = append(states, s) })
	defer unsub()

	d.Bind(ref)
	c.Assert(d.State().Loading, qt.IsTrue)

	store.fire(ref.Path(), docstore.Document{"policyNumber": "POL1"}, nil)
	st := d.State()
	c.Assert(st.Loading, qt.IsFalse)
	c.Assert(st.Err, qt.IsNil)
	c.Assert(st.Data.PolicyNumber, qt.Equals, "POL1")

	store.fire(ref.Path(), nil, nil)
	c.Assert(d.State(), qt.DeepEquals, State[*policy]{})

	// initial, bound, first snapshot, deletion
	c.Assert(states, qt.HasLen, 4)
	c.Assert(states[1].Loading, qt.IsTrue)
}

func TestStaleCallbacksIgnored(t *testing.T) {
	c := qt.New(t)
	store := newMockStore()
	d := NewDoc[policy](store, WithEmitter(emitter.New()))
	r1 := docstore.MustDoc("users/INF001/accidental-insurance/details")
	r2 := docstore.MustDoc("users/INF002/accidental-insurance/details")

	d.Bind(r1)
	stale := store.docFns[r1.Path()]
	d.Bind(r2)
	stale(&docstore.Snapshot{Ref: r1, Exists: true, Data: docstore.Document{"policyNumber": "OLD"}}, nil)
	c.Assert(d.State().Loading, qt.IsTrue)
	c.Assert(d.State().Data, qt.IsNil)
}

func TestPermissionErrorSurfacing(t *testing.T) {
	c := qt.New(t)
	store := newMockStore()
	em := emitter.New()
	var events []*emitter.PermissionError
	off := em.On(func(perr *emitter.PermissionError) { events = append(events, perr) })
	defer off()

	d := NewDoc[policy](store, WithEmitter(em))
	ref := docstore.MustDoc("users/INF001/accidental-insurance/details")
	d.Bind(ref)
	store.fire(ref.Path(), docstore.Document{"policyNumber": "POL1"}, nil)

	denied := fmt.Errorf("%w: get on %s", docstore.ErrPermissionDenied, ref.Path())
	store.fire(ref.Path(), nil, denied)

	st := d.State()
	c.Assert(st.Err, qt.Equals, denied)
	c.Assert(st.Data, qt.IsNil)
	c.Assert(st.Loading, qt.IsFalse)
	c.Assert(events, qt.HasLen, 1)
	c.Assert(events[0].Path, qt.Equals, ref.Path())
	c.Assert(events[0].Operation, qt.Equals, docstore.OpGet)
	c.Assert(events[0], qt.ErrorIs, docstore.ErrPermissionDenied)
}

func TestWatchErrorIsTerminal(t *testing.T) {
	c := qt.New(t)
	store := newMockStore()
	store.watchErr = docstore.ErrClosed
	em := emitter.New()
	count := 0
	em.On(func(*emitter.PermissionError) { count++ })

	d := NewDoc[policy](store, WithEmitter(em))
	ref := docstore.MustDoc("settings/site")
	d.Bind(ref)
	d.Bind(ref)
	c.Assert(d.State().Err, qt.Equals, docstore.ErrClosed)
	// only permission denials are published
	c.Assert(count, qt.Equals, 0)

	store.watchErr = fmt.Errorf("%w: watch on users/INF001", docstore.ErrPermissionDenied)
	d.Bind(docstore.MustDoc("users/INF001"))
	c.Assert(d.State().Err, qt.ErrorIs, docstore.ErrPermissionDenied)
	c.Assert(count, qt.Equals, 1)
}

type document struct {
	Name string `json:"name"`
}

func TestCollection(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := memory.New()
	em := emitter.New()
	var events []*emitter.PermissionError
	em.On(func(perr *emitter.PermissionError) { events = append(events, perr) })

	docs := docstore.MustCollection("users/INF001/documents")
	for _, id := range []string{"b", "a"} {
		ref, err := docs.Doc(id)
		c.Assert(err, qt.IsNil)
		c.Assert(store.Set(ctx, ref, docstore.Document{"name": id + ".pdf"}), qt.IsNil)
	}

	col := NewCollection[document](store, WithEmitter(em))
	col.Bind(docs.Query())
	st := col.State()
	c.Assert(st.Loading, qt.IsFalse)
	c.Assert(st.Data, qt.DeepEquals, []Entry[document]{
		{ID: "a", Value: document{Name: "a.pdf"}},
		{ID: "b", Value: document{Name: "b.pdf"}},
	})
	c.Assert(store.Watchers(), qt.Equals, 1)

	raw, err := st.Data[0].MarshalJSON()
	c.Assert(err, qt.IsNil)
	c.Assert(string(raw), qt.Equals, `{"id":"a","name":"a.pdf"}`)

	c.Assert(store.Delete(ctx, docstore.MustDoc("users/INF001/documents/a")), qt.IsNil)
	c.Assert(col.State().Data, qt.HasLen, 1)

	col.Bind(nil)
	c.Assert(store.Watchers(), qt.Equals, 0)
	c.Assert(col.State().Data, qt.IsNil)

	mock := newMockStore()
	failing := NewCollection[document](mock, WithEmitter(em))
	failing.Bind(docs.Query().Where("name", "a.pdf").Limit(1))
	mock.queryFns[docs.Path()](nil, docstore.ErrPermissionDenied)
	c.Assert(failing.State().Err, qt.ErrorIs, docstore.ErrPermissionDenied)
	c.Assert(events, qt.HasLen, 1)
	c.Assert(events[0].Operation, qt.Equals, docstore.OpList)
	c.Assert(events[0].Path, qt.Equals, docs.Path())
}
