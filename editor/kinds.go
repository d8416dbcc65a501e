package editor

import (
	"context"
	"fmt"

	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/records"
)

// RecordEditor is an Editor seen through its record kind, for callers that
// handle every kind the same way.
type RecordEditor interface {
	Kind() records.Kind
	Search(ctx context.Context, regID string) error
	Open(ctx context.Context, ref *docstore.DocRef) error
	// EditRecord calls fn with a pointer to a copy of the draft.
	EditRecord(fn func(record any) error) error
	Save(ctx context.Context) error
	Record() any
	State() State
}

// EditRecord implements RecordEditor.
func (e *Editor[T]) EditRecord(fn func(record any) error) error {
	return e.Edit(func(draft *T) error { return fn(draft) })
}

// Record implements RecordEditor.
func (e *Editor[T]) Record() any {
	if d := e.Draft(); d != nil {
		return d
	}
	return nil
}

// ForKind returns an idle editor for the given kind.
func ForKind(store docstore.Store, users UserLookup, kind records.Kind) (RecordEditor, error) {
	switch kind {
	case records.KindProfile:
		return New[records.UserProfile](store, users, kind)
	case records.KindAccidentalInsurance:
		return New[records.AccidentalInsurance](store, users, kind)
	case records.KindScholarship:
		return New[records.Scholarship](store, users, kind)
	case records.KindInterestFund:
		return New[records.InterestFund](store, users, kind)
	case records.KindMaturityFund:
		return New[records.MaturityFund](store, users, kind)
	case records.KindJoiningGift:
		return New[records.JoiningGift](store, users, kind)
	case records.KindSiteSettings:
		return New[records.SiteSettings](store, users, kind)
	}
	return nil, fmt.Errorf("no editor for %s records", kind)
}
