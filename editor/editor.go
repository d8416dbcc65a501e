// Package editor implements the record editing workflow shared by every
// record kind: find the member, load the record into a local draft, apply
// local edits and write the whole draft back.
//
//	idle -> searching -> found | not-found
//	found -> editing -> saving -> saved | save-error
//
// Saves overwrite the stored document. Concurrent editors of the same record
// are not detected: the last save wins.
package editor

import (
	"context"
	"fmt"
	"sync"

	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/records"
	"go.vocdoni.io/dvote/log"
)

// Status is the state of an editor.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusSearching Status = "searching"
	StatusFound     Status = "found"
	StatusNotFound  Status = "not-found"
	StatusEditing   Status = "editing"
	StatusSaving    Status = "saving"
	StatusSaved     Status = "saved"
	StatusSaveError Status = "save-error"
)

var (
	// ErrBusy is returned when a search or save is already in progress.
	ErrBusy = fmt.Errorf("editor busy")
	// ErrNoRecord is returned by Edit and Save before a record is loaded.
	ErrNoRecord = fmt.Errorf("no record loaded")
)

// UserLookup finds members by registration id. It must return an error
// wrapping docstore.ErrNotFound for unknown members.
type UserLookup interface {
	Profile(ctx context.Context, regID string) (*records.UserProfile, error)
}

// State is a read-only view of an editor.
type State struct {
	Status Status `json:"status"`
	Target string `json:"target,omitempty"`
	Path   string `json:"path,omitempty"`
	// Exists is false when the draft started from the empty record.
	Exists bool   `json:"exists"`
	Error  string `json:"error,omitempty"`
}

// Editor edits one record of type T.
type Editor[T any] struct {
	store docstore.Store
	users UserLookup
	kind  records.Kind

	mu     sync.Mutex
	status Status
	target string
	ref    *docstore.DocRef
	draft  *T
	exists bool
	// base is the stored document the draft was decoded from. Fields the
	// record type does not model are written back from it.
	base docstore.Document
	err  error
}

// New returns an idle editor for records of the given kind. T must be the
// type records.New returns for that kind.
func New[T any](store docstore.Store, users UserLookup, kind records.Kind) (*Editor[T], error) {
	rec, err := records.New(kind)
	if err != nil {
		return nil, err
	}
	if _, ok := rec.(*T); !ok {
		return nil, fmt.Errorf("%s records are %T, not %T", kind, rec, new(T))
	}
	return &Editor[T]{store: store, users: users, kind: kind, status: StatusIdle}, nil
}

// Kind returns the record kind the editor works on.
func (e *Editor[T]) Kind() records.Kind { return e.kind }

// begin moves the editor to a transient status unless another operation is
// running.
func (e *Editor[T]) begin(status Status) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == StatusSearching || e.status == StatusSaving {
		return ErrBusy
	}
	e.status = status
	e.err = nil
	return nil
}

// Search looks the member up and loads its record. When the member has no
// record yet the draft starts from the empty record of the kind. Any
// failure ends in the not-found status.
func (e *Editor[T]) Search(ctx context.Context, regID string) error {
	if err := e.begin(StatusSearching); err != nil {
		return err
	}
	if _, err := e.users.Profile(ctx, regID); err != nil {
		return e.notFound(regID, fmt.Errorf("member %s: %w", regID, err))
	}
	ref, err := records.RefFor(e.kind, regID)
	if err != nil {
		return e.notFound(regID, err)
	}
	return e.load(ctx, regID, ref)
}

// Open loads the record stored at ref without looking up a member. It is
// used for records that belong to no member, such as the site settings.
func (e *Editor[T]) Open(ctx context.Context, ref *docstore.DocRef) error {
	if err := e.begin(StatusSearching); err != nil {
		return err
	}
	return e.load(ctx, "", ref)
}

func (e *Editor[T]) load(ctx context.Context, target string, ref *docstore.DocRef) error {
	snap, err := e.store.Get(ctx, ref)
	if err != nil {
		return e.notFound(target, err)
	}
	draft, err := e.empty()
	if err != nil {
		return e.notFound(target, err)
	}
	if snap.Exists {
		if err := snap.DataTo(draft); err != nil {
			return e.notFound(target, err)
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = StatusFound
	e.target = target
	e.ref = ref
	e.draft = draft
	e.exists = snap.Exists
	e.base = snap.Data
	return nil
}

func (e *Editor[T]) empty() (*T, error) {
	rec, err := records.New(e.kind)
	if err != nil {
		return nil, err
	}
	return rec.(*T), nil
}

func (e *Editor[T]) notFound(target string, err error) error {
	log.Debugw("editor search failed", "kind", e.kind, "target", target, "error", err)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = StatusNotFound
	e.target = target
	e.ref = nil
	e.draft = nil
	e.exists = false
	e.base = nil
	e.err = err
	return err
}

// Edit applies fn to a copy of the draft. The draft is replaced only when
// fn succeeds. Nothing is written to the store.
func (e *Editor[T]) Edit(fn func(*T) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.status {
	case StatusFound, StatusEditing, StatusSaved, StatusSaveError:
	case StatusSearching, StatusSaving:
		return ErrBusy
	default:
		return ErrNoRecord
	}
	next, err := clone(e.draft)
	if err != nil {
		return err
	}
	if err := fn(next); err != nil {
		return err
	}
	e.draft = next
	e.status = StatusEditing
	e.err = nil
	return nil
}

// Save validates the draft and overwrites the stored record with it. On
// failure the draft is kept so the save can be retried.
func (e *Editor[T]) Save(ctx context.Context) error {
	e.mu.Lock()
	switch e.status {
	case StatusFound, StatusEditing, StatusSaved, StatusSaveError:
	case StatusSearching, StatusSaving:
		e.mu.Unlock()
		return ErrBusy
	default:
		e.mu.Unlock()
		return ErrNoRecord
	}
	e.status = StatusSaving
	e.err = nil
	ref, draft, base := e.ref, e.draft, e.base
	e.mu.Unlock()

	doc, err := write(ctx, e.store, ref, base, draft)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		log.Warnw("record save failed", "kind", e.kind, "path", ref.Path(), "error", err)
		e.status = StatusSaveError
		e.err = err
		return err
	}
	e.status = StatusSaved
	e.exists = true
	e.base = doc
	return nil
}

func write[T any](ctx context.Context, store docstore.Store, ref *docstore.DocRef, base docstore.Document, draft *T) (docstore.Document, error) {
	if err := records.Validate(draft); err != nil {
		return nil, err
	}
	doc, err := docstore.EncodeOver(base, draft)
	if err != nil {
		return nil, err
	}
	if err := store.Set(ctx, ref, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Draft returns a copy of the current draft, or nil when no record is
// loaded.
func (e *Editor[T]) Draft() *T {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.draft == nil {
		return nil
	}
	c, err := clone(e.draft)
	if err != nil {
		return nil
	}
	return c
}

// State returns the current status of the editor.
func (e *Editor[T]) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := State{Status: e.status, Target: e.target, Exists: e.exists}
	if e.ref != nil {
		st.Path = e.ref.Path()
	}
	if e.err != nil {
		st.Error = e.err.Error()
	}
	return st
}

// Err returns the error of the last failed search or save.
func (e *Editor[T]) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func clone[T any](v *T) (*T, error) {
	doc, err := docstore.Encode(v)
	if err != nil {
		return nil, err
	}
	c := new(T)
	if err := docstore.Decode(doc, c); err != nil {
		return nil, err
	}
	return c, nil
}
