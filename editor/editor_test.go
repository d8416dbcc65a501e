package editor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/docstore/memory"
	"github.com/infinityplans/portal/records"
)

type fakeUsers map[string]*records.UserProfile

func (f fakeUsers) Profile(_ context.Context, regID string) (*records.UserProfile, error) {
	if p, ok := f[regID]; ok {
		return p, nil
	}
	return nil, docstore.ErrNotFound
}

var members = fakeUsers{"INF001": {RegistrationID: "INF001", Email: "asha@example.com"}}

// recordingStore keeps the JSON payload of every Set call.
type recordingStore struct {
	*memory.Store
	mu     sync.Mutex
	writes [][]byte
	fail   error
}

func (r *recordingStore) Set(ctx context.Context, ref *docstore.DocRef, data docstore.Document) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.writes = append(r.writes, raw)
	fail := r.fail
	r.mu.Unlock()
	if fail != nil {
		return fail
	}
	return r.Store.Set(ctx, ref, data)
}

func TestInsuranceScenario(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := memory.New()
	ref := docstore.MustDoc("users/INF001/accidental-insurance/details")
	c.Assert(store.Set(ctx, ref, docstore.Document{
		"policyNumber": "POL1",
		"statements":   []any{map[string]any{"id": 1, "status": "Active"}},
	}), qt.IsNil)

	ed, err := New[records.AccidentalInsurance](store, members, records.KindAccidentalInsurance)
	c.Assert(err, qt.IsNil)
	c.Assert(ed.State().Status, qt.Equals, StatusIdle)

	c.Assert(ed.Search(ctx, "INF001"), qt.IsNil)
	st := ed.State()
	c.Assert(st.Status, qt.Equals, StatusFound)
	c.Assert(st.Path, qt.Equals, ref.Path())
	c.Assert(st.Exists, qt.IsTrue)

	var added records.ItemID
	c.Assert(ed.Edit(func(r *records.AccidentalInsurance) error {
		added, err = r.AddEntry("statements", []byte(`{"status":"Pending","amount":250,"date":"2024-07-01"}`))
		return err
	}), qt.IsNil)
	c.Assert(ed.Edit(func(r *records.AccidentalInsurance) error {
		removed, err := r.RemoveEntry("statements", "1")
		if err == nil && !removed {
			err = fmt.Errorf("statement 1 not found")
		}
		return err
	}), qt.IsNil)
	c.Assert(ed.State().Status, qt.Equals, StatusEditing)

	// nothing is written before Save
	snap, err := store.Get(ctx, ref)
	c.Assert(err, qt.IsNil)
	c.Assert(snap.Data["statements"], qt.HasLen, 1)

	c.Assert(ed.Save(ctx), qt.IsNil)
	c.Assert(ed.State().Status, qt.Equals, StatusSaved)

	var stored records.AccidentalInsurance
	snap, err = store.Get(ctx, ref)
	c.Assert(err, qt.IsNil)
	c.Assert(snap.DataTo(&stored), qt.IsNil)
	c.Assert(stored.PolicyNumber, qt.Equals, "POL1")
	c.Assert(stored.Statements, qt.HasLen, 1)
	c.Assert(stored.Statements[0].ID, qt.Equals, added)
	c.Assert(stored.Statements[0].ID, qt.Not(qt.Equals), records.ItemID("1"))
}

func TestSaveIsIdempotent(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := &recordingStore{Store: memory.New()}
	ref := docstore.MustDoc("users/INF001/scholarship/details")
	c.Assert(store.Store.Set(ctx, ref, docstore.Document{
		"programName": "Edu",
		"children":    []any{map[string]any{"id": "c1", "name": "Asha", "dateOfBirth": "2015-01-02"}},
		"statements":  []any{},
	}), qt.IsNil)

	ed, err := New[records.Scholarship](store, members, records.KindScholarship)
	c.Assert(err, qt.IsNil)
	c.Assert(ed.Search(ctx, "INF001"), qt.IsNil)
	c.Assert(ed.Save(ctx), qt.IsNil)
	c.Assert(ed.Save(ctx), qt.IsNil)
	c.Assert(store.writes, qt.HasLen, 2)
	c.Assert(string(store.writes[0]), qt.Equals, string(store.writes[1]))

	// reload yields the same record
	again, err := New[records.Scholarship](store, members, records.KindScholarship)
	c.Assert(err, qt.IsNil)
	c.Assert(again.Search(ctx, "INF001"), qt.IsNil)
	c.Assert(again.Draft(), qt.DeepEquals, ed.Draft())
}

func TestSaveKeepsUnknownFields(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := memory.New()
	ref := docstore.MustDoc("users/INF001/accidental-insurance/details")
	c.Assert(store.Set(ctx, ref, docstore.Document{
		"policyNumber": "POL1",
		"sumAssured":   500000,
		"statements": []any{
			map[string]any{"id": 1, "status": "Completed", "date": "2024-01-15T10:30", "remarks": "first"},
			map[string]any{"id": "s2", "status": "Active", "remarks": "second"},
		},
	}), qt.IsNil)

	ed, err := New[records.AccidentalInsurance](store, members, records.KindAccidentalInsurance)
	c.Assert(err, qt.IsNil)
	c.Assert(ed.Search(ctx, "INF001"), qt.IsNil)
	c.Assert(ed.Save(ctx), qt.IsNil)

	snap, err := store.Get(ctx, ref)
	c.Assert(err, qt.IsNil)
	c.Assert(snap.Data["sumAssured"], qt.Equals, float64(500000))
	statements := snap.Data["statements"].([]any)
	c.Assert(statements, qt.HasLen, 2)
	c.Assert(statements[0].(map[string]any)["remarks"], qt.Equals, "first")
	c.Assert(statements[0].(map[string]any)["date"], qt.Equals, "2024-01-15T10:30")
	c.Assert(statements[1].(map[string]any)["remarks"], qt.Equals, "second")

	// modeled fields follow the draft, removed entries take their extras along
	c.Assert(ed.Edit(func(r *records.AccidentalInsurance) error {
		r.Statements[1].Status = ""
		_, err := r.RemoveEntry("statements", "1")
		return err
	}), qt.IsNil)
	c.Assert(ed.Save(ctx), qt.IsNil)
	snap, err = store.Get(ctx, ref)
	c.Assert(err, qt.IsNil)
	c.Assert(snap.Data["sumAssured"], qt.Equals, float64(500000))
	statements = snap.Data["statements"].([]any)
	c.Assert(statements, qt.HasLen, 1)
	c.Assert(statements[0], qt.DeepEquals, map[string]any{
		"id": "s2", "amount": float64(0), "date": "", "remarks": "second",
	})

	// reload yields the same record
	again, err := New[records.AccidentalInsurance](store, members, records.KindAccidentalInsurance)
	c.Assert(err, qt.IsNil)
	c.Assert(again.Search(ctx, "INF001"), qt.IsNil)
	c.Assert(again.Draft(), qt.DeepEquals, ed.Draft())
}

func TestAddRemoveThroughEditor(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	ed, err := New[records.JoiningGift](memory.New(), members, records.KindJoiningGift)
	c.Assert(err, qt.IsNil)
	c.Assert(ed.Search(ctx, "INF001"), qt.IsNil)
	c.Assert(ed.State().Exists, qt.IsFalse)

	const n, m = 8, 5
	var ids []records.ItemID
	for i := 0; i < n; i++ {
		c.Assert(ed.Edit(func(r *records.JoiningGift) error {
			id, err := r.AddEntry("items", []byte(fmt.Sprintf(`{"name":"gift %d"}`, i)))
			ids = append(ids, id)
			return err
		}), qt.IsNil)
	}
	for i := 0; i < m; i++ {
		c.Assert(ed.Edit(func(r *records.JoiningGift) error {
			_, err := r.RemoveEntry("items", ids[i])
			return err
		}), qt.IsNil)
	}
	c.Assert(ed.Save(ctx), qt.IsNil)
	items := ed.Draft().Items
	c.Assert(items, qt.HasLen, n-m)
	seen := map[records.ItemID]bool{}
	for _, it := range items {
		c.Assert(seen[it.ID], qt.IsFalse)
		seen[it.ID] = true
	}
}

func TestSearchNotFound(t *testing.T) {
	c := qt.New(t)
	ed, err := New[records.InterestFund](memory.New(), members, records.KindInterestFund)
	c.Assert(err, qt.IsNil)
	err = ed.Search(context.Background(), "INF404")
	c.Assert(err, qt.ErrorIs, docstore.ErrNotFound)
	st := ed.State()
	c.Assert(st.Status, qt.Equals, StatusNotFound)
	c.Assert(st.Error, qt.Not(qt.Equals), "")
	c.Assert(ed.Edit(func(*records.InterestFund) error { return nil }), qt.ErrorIs, ErrNoRecord)
	c.Assert(ed.Save(context.Background()), qt.ErrorIs, ErrNoRecord)
}

func TestSaveErrorKeepsDraft(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := &recordingStore{Store: memory.New()}
	ed, err := New[records.MaturityFund](store, members, records.KindMaturityFund)
	c.Assert(err, qt.IsNil)
	c.Assert(ed.Search(ctx, "INF001"), qt.IsNil)
	c.Assert(ed.Edit(func(r *records.MaturityFund) error {
		r.PlanName = "Gold 10Y"
		return nil
	}), qt.IsNil)

	store.fail = docstore.ErrPermissionDenied
	c.Assert(ed.Save(ctx), qt.ErrorIs, docstore.ErrPermissionDenied)
	c.Assert(ed.State().Status, qt.Equals, StatusSaveError)
	c.Assert(ed.Draft().PlanName, qt.Equals, "Gold 10Y")

	store.fail = nil
	c.Assert(ed.Save(ctx), qt.IsNil)
	c.Assert(ed.State().Status, qt.Equals, StatusSaved)
}

func TestInvalidDraftIsNotSaved(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := &recordingStore{Store: memory.New()}
	ed, err := New[records.MaturityFund](store, members, records.KindMaturityFund)
	c.Assert(err, qt.IsNil)
	c.Assert(ed.Search(ctx, "INF001"), qt.IsNil)
	c.Assert(ed.Edit(func(r *records.MaturityFund) error {
		r.MaturityDate = "someday"
		return nil
	}), qt.IsNil)
	c.Assert(ed.Save(ctx), qt.IsNotNil)
	c.Assert(store.writes, qt.HasLen, 0)
	c.Assert(ed.State().Status, qt.Equals, StatusSaveError)
}

func TestFailedEditLeavesDraft(t *testing.T) {
	c := qt.New(t)
	ed, err := New[records.InterestFund](memory.New(), members, records.KindInterestFund)
	c.Assert(err, qt.IsNil)
	c.Assert(ed.Search(context.Background(), "INF001"), qt.IsNil)
	err = ed.Edit(func(r *records.InterestFund) error {
		r.AccountNumber = "half-done"
		return fmt.Errorf("boom")
	})
	c.Assert(err, qt.ErrorMatches, "boom")
	c.Assert(ed.Draft().AccountNumber, qt.Equals, "")
	c.Assert(ed.State().Status, qt.Equals, StatusFound)
}

func TestForKindAndOpen(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := memory.New()
	ed, err := ForKind(store, members, records.KindSiteSettings)
	c.Assert(err, qt.IsNil)
	c.Assert(ed.Open(ctx, records.SettingsRef), qt.IsNil)
	c.Assert(ed.EditRecord(func(rec any) error {
		_, err := rec.(records.ListRecord).AddEntry("heroSlides", []byte(`{"title":"Welcome"}`))
		return err
	}), qt.IsNil)
	c.Assert(ed.Save(ctx), qt.IsNil)
	snap, err := store.Get(ctx, records.SettingsRef)
	c.Assert(err, qt.IsNil)
	c.Assert(snap.Data["heroSlides"], qt.HasLen, 1)

	_, err = ForKind(store, members, records.KindDocuments)
	c.Assert(err, qt.IsNotNil)
	_, err = New[records.Scholarship](store, members, records.KindJoiningGift)
	c.Assert(err, qt.IsNotNil)
}
