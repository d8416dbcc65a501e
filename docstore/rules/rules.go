// Package rules wraps a docstore.Store with the portal access rules. The
// wrapper rejects operations the caller is not allowed to perform with
// docstore.ErrPermissionDenied, the same way a hosted document database
// enforces its security rules.
package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/infinityplans/portal/docstore"
)

// Principal is the identity operations are checked against.
type Principal struct {
	// ID is the registration id of the member, e.g. INF001.
	ID    string
	Admin bool
}

type principalKey struct{}

// WithPrincipal attaches the principal to the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal attached to the context, or nil.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// Rule decides whether the principal may perform op on path.
type Rule func(p *Principal, op docstore.Op, path string) bool

// Portal is the default rule set:
//
//	settings/**            read: anyone       write: admin
//	users                  list: admin
//	users/{id}             read: owner, admin write: owner, admin
//	users/{id}/**          read: owner, admin write: admin
//	credentials/**         never
//	anything else          admin
func Portal(p *Principal, op docstore.Op, path string) bool {
	segments := strings.Split(path, "/")
	switch segments[0] {
	case "settings":
		return op.IsRead() || (p != nil && p.Admin)
	case "credentials":
		return false
	}
	if p == nil {
		return false
	}
	if p.Admin {
		return true
	}
	if segments[0] != "users" || len(segments) < 2 || segments[1] != p.ID {
		return false
	}
	if op.IsRead() {
		return true
	}
	return len(segments) == 2 && op != docstore.OpDelete
}

// Store enforces a Rule on top of another store.
type Store struct {
	next docstore.Store
	rule Rule
}

// Wrap returns a store that checks every operation with the given rule. A nil
// rule means Portal.
func Wrap(next docstore.Store, rule Rule) *Store {
	if rule == nil {
		rule = Portal
	}
	return &Store{next: next, rule: rule}
}

func (s *Store) check(ctx context.Context, op docstore.Op, path string) error {
	if s.rule(PrincipalFrom(ctx), op, path) {
		return nil
	}
	return fmt.Errorf("%w: %s on %s", docstore.ErrPermissionDenied, op, path)
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, ref *docstore.DocRef) (*docstore.Snapshot, error) {
	if err := s.check(ctx, docstore.OpGet, ref.Path()); err != nil {
		return nil, err
	}
	return s.next.Get(ctx, ref)
}

// Set implements docstore.Store. Writing a missing document counts as create.
func (s *Store) Set(ctx context.Context, ref *docstore.DocRef, data docstore.Document) error {
	op := docstore.OpUpdate
	if snap, err := s.next.Get(ctx, ref); err == nil && !snap.Exists {
		op = docstore.OpCreate
	}
	if err := s.check(ctx, op, ref.Path()); err != nil {
		return err
	}
	return s.next.Set(ctx, ref, data)
}

// Update implements docstore.Store.
func (s *Store) Update(ctx context.Context, ref *docstore.DocRef, fields docstore.Document) error {
	if err := s.check(ctx, docstore.OpUpdate, ref.Path()); err != nil {
		return err
	}
	return s.next.Update(ctx, ref, fields)
}

// Delete implements docstore.Store.
func (s *Store) Delete(ctx context.Context, ref *docstore.DocRef) error {
	if err := s.check(ctx, docstore.OpDelete, ref.Path()); err != nil {
		return err
	}
	return s.next.Delete(ctx, ref)
}

// List implements docstore.Store.
func (s *Store) List(ctx context.Context, q *docstore.Query) ([]*docstore.Snapshot, error) {
	if err := s.check(ctx, docstore.OpList, q.Collection().Path()); err != nil {
		return nil, err
	}
	return s.next.List(ctx, q)
}

// Watch implements docstore.Store. A denied subscription is reported
// through the listener, as a remote store would do.
func (s *Store) Watch(ctx context.Context, ref *docstore.DocRef, fn docstore.DocListener) (docstore.Unsubscribe, error) {
	if err := s.check(ctx, docstore.OpGet, ref.Path()); err != nil {
		fn(nil, err)
		return func() {}, nil
	}
	return s.next.Watch(ctx, ref, fn)
}

// WatchQuery implements docstore.Store.
func (s *Store) WatchQuery(ctx context.Context, q *docstore.Query, fn docstore.QueryListener) (docstore.Unsubscribe, error) {
	if err := s.check(ctx, docstore.OpList, q.Collection().Path()); err != nil {
		fn(nil, err)
		return func() {}, nil
	}
	return s.next.WatchQuery(ctx, q, fn)
}

// Close closes the wrapped store.
func (s *Store) Close() error { return s.next.Close() }
