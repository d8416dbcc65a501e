package session

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/infinityplans/portal/auth"
	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/records"
)

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*records.UserProfile
	calls    []string
	gate     chan struct{}
}

func (f *fakeProfiles) Profile(_ context.Context, regID string) (*records.UserProfile, error) {
	f.mu.Lock()
	f.calls = append(f.calls, regID)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[regID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, fmt.Errorf("%s: %w", regID, docstore.ErrNotFound)
}

// switchAuth is an AuthSource the test signs in and out of.
type switchAuth struct {
	mu        sync.Mutex
	listeners []func(*auth.Identity)
}

func (s *switchAuth) OnAuthStateChanged(fn func(*auth.Identity)) func() {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.listeners = nil
		s.mu.Unlock()
	}
}

func (s *switchAuth) set(id *auth.Identity) {
	s.mu.Lock()
	listeners := append(([]func(*auth.Identity))(nil), s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(id)
	}
}

func newProfiles() *fakeProfiles {
	return &fakeProfiles{profiles: map[string]*records.UserProfile{
		"INF001": {RegistrationID: "INF001", Email: "asha@example.com"},
		"INF002": {RegistrationID: "INF002", Email: "ravi@example.com"},
	}}
}

func wait(c *qt.C, tr *Tracker) State {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := tr.Wait(ctx)
	c.Assert(err, qt.IsNil)
	return st
}

func TestAdminViewOverride(t *testing.T) {
	c := qt.New(t)
	profiles := newProfiles()
	signedIn := StaticAuth{Identity: &auth.Identity{UID: "admin", RegistrationID: "INF002", Admin: true}}

	tr := NewTracker(context.Background(), signedIn, profiles, url.Values{ImpersonateParam: {"INF001"}})
	defer tr.Close()
	st := wait(c, tr)
	c.Assert(st.IsAdminView, qt.IsTrue)
	c.Assert(st.User, qt.IsNil)
	c.Assert(st.Err, qt.IsNil)
	c.Assert(st.Profile, qt.DeepEquals, profiles.profiles["INF001"])
	c.Assert(profiles.calls, qt.DeepEquals, []string{"INF001"})
}

func TestNormalMode(t *testing.T) {
	c := qt.New(t)
	profiles := newProfiles()
	source := &switchAuth{}
	tr := NewTracker(context.Background(), source, profiles, url.Values{})
	defer tr.Close()

	// waiting for the auth check
	c.Assert(tr.State().Loading, qt.IsTrue)

	source.set(&auth.Identity{UID: "u1", RegistrationID: "INF001"})
	st := wait(c, tr)
	c.Assert(st.IsAdminView, qt.IsFalse)
	c.Assert(st.User.UID, qt.Equals, "u1")
	c.Assert(st.Profile.Email, qt.Equals, "asha@example.com")

	source.set(nil)
	st = wait(c, tr)
	c.Assert(st.User, qt.IsNil)
	c.Assert(st.Profile, qt.IsNil)
	c.Assert(st.Loading, qt.IsFalse)
}

func TestProfileFetchFailure(t *testing.T) {
	c := qt.New(t)
	tr := NewTracker(context.Background(), StaticAuth{Identity: &auth.Identity{UID: "u9", RegistrationID: "INF009"}}, newProfiles(), nil)
	defer tr.Close()
	st := wait(c, tr)
	c.Assert(st.Err, qt.ErrorIs, docstore.ErrNotFound)
	c.Assert(st.Profile, qt.IsNil)
	c.Assert(st.User.UID, qt.Equals, "u9")
}

func TestRefreshProfile(t *testing.T) {
	c := qt.New(t)
	profiles := newProfiles()
	tr := NewTracker(context.Background(), StaticAuth{Identity: &auth.Identity{RegistrationID: "INF001"}}, profiles, nil)
	defer tr.Close()
	wait(c, tr)

	profiles.mu.Lock()
	profiles.profiles["INF001"].Status = "blocked"
	profiles.mu.Unlock()
	c.Assert(tr.State().Profile.Status, qt.Equals, "")

	tr.RefreshProfile()
	st := wait(c, tr)
	c.Assert(st.Profile.Status, qt.Equals, "blocked")
	c.Assert(profiles.calls, qt.DeepEquals, []string{"INF001", "INF001"})
}

func TestLateFetchAfterClose(t *testing.T) {
	c := qt.New(t)
	profiles := newProfiles()
	profiles.gate = make(chan struct{})
	tr := NewTracker(context.Background(), StaticAuth{}, profiles, url.Values{ImpersonateParam: {"INF001"}})

	changes := 0
	tr.Subscribe(func(State) { changes++ })
	c.Assert(tr.State().Loading, qt.IsTrue)
	tr.Close()
	close(profiles.gate)

	// give the fetch goroutine time to finish
	time.Sleep(20 * time.Millisecond)
	st := tr.State()
	c.Assert(st.Loading, qt.IsTrue)
	c.Assert(st.Profile, qt.IsNil)
	c.Assert(changes, qt.Equals, 0)
}
