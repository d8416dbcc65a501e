// Package session combines the authentication state with the member profile
// it belongs to. In admin view the tracker ignores the authentication state
// and loads the profile of the member named in the impersonation parameter.
package session

import (
	"context"
	"net/url"
	"sync"

	"github.com/infinityplans/portal/auth"
	"github.com/infinityplans/portal/records"
	"go.vocdoni.io/dvote/log"
)

// ImpersonateParam is the query parameter selecting admin view.
const ImpersonateParam = "impersonate"

// AuthSource reports authentication state changes. The listener receives nil
// when nobody is signed in.
type AuthSource interface {
	OnAuthStateChanged(fn func(*auth.Identity)) (unsubscribe func())
}

// StaticAuth is an AuthSource whose state never changes, such as the
// identity carried by a request token.
type StaticAuth struct {
	Identity *auth.Identity
}

// OnAuthStateChanged reports the identity right away.
func (s StaticAuth) OnAuthStateChanged(fn func(*auth.Identity)) func() {
	fn(s.Identity)
	return func() {}
}

// ProfileFetcher loads profiles by registration id.
type ProfileFetcher interface {
	Profile(ctx context.Context, regID string) (*records.UserProfile, error)
}

// State is the combined session state.
type State struct {
	User        *auth.Identity       `json:"user"`
	Profile     *records.UserProfile `json:"profile"`
	Loading     bool                 `json:"loading"`
	Err         error                `json:"-"`
	IsAdminView bool                 `json:"isAdminView"`
}

// Tracker follows the session of one consumer until Close.
type Tracker struct {
	profiles ProfileFetcher
	ctx      context.Context
	cancel   context.CancelFunc
	unsub    func()

	mu             sync.Mutex
	adminView      bool
	target         string
	user           *auth.Identity
	profile        *records.UserProfile
	err            error
	authLoading    bool
	profileLoading bool
	fetchGen       uint64
	closed         bool
	changed        chan struct{}
	nextSub        int
	subs           map[int]func(State)
}

// NewTracker starts tracking. With the impersonation parameter set the
// auth source is not consulted at all.
func NewTracker(ctx context.Context, source AuthSource, profiles ProfileFetcher, params url.Values) *Tracker {
	ctx, cancel := context.WithCancel(ctx)
	t := &Tracker{
		profiles: profiles,
		ctx:      ctx,
		cancel:   cancel,
		changed:  make(chan struct{}),
		subs:     make(map[int]func(State)),
	}
	if target := params.Get(ImpersonateParam); target != "" {
		t.mu.Lock()
		t.adminView = true
		t.target = target
		t.fetchLocked()
		return t
	}
	t.mu.Lock()
	t.authLoading = true
	t.mu.Unlock()
	t.unsub = source.OnAuthStateChanged(t.onAuth)
	return t
}

func (t *Tracker) onAuth(id *auth.Identity) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.authLoading = false
	t.user = id
	t.err = nil
	if id == nil {
		t.target = ""
		t.profile = nil
		t.profileLoading = false
		t.fetchGen++
		t.changedLocked()
		return
	}
	t.target = id.RegistrationID
	t.fetchLocked()
}

// fetchLocked starts a one-shot profile fetch for the current target and
// unlocks t.mu. Results of superseded fetches are dropped.
func (t *Tracker) fetchLocked() {
	t.fetchGen++
	gen, target := t.fetchGen, t.target
	t.profileLoading = true
	t.changedLocked()

	go func() {
		profile, err := t.profiles.Profile(t.ctx, target)
		t.mu.Lock()
		if t.closed || gen != t.fetchGen {
			t.mu.Unlock()
			return
		}
		if err != nil {
			log.Warnw("profile fetch failed", "registrationId", target, "error", err)
			profile = nil
		}
		t.profile = profile
		t.err = err
		t.profileLoading = false
		t.changedLocked()
	}()
}

// changedLocked wakes up waiters and calls listeners. It unlocks t.mu.
func (t *Tracker) changedLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
	st := t.stateLocked()
	subs := make([]func(State), 0, len(t.subs))
	for i := 0; i < t.nextSub; i++ {
		if fn, ok := t.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	t.mu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
}

func (t *Tracker) stateLocked() State {
	st := State{
		Profile:     t.profile,
		Loading:     t.authLoading || t.profileLoading,
		Err:         t.err,
		IsAdminView: t.adminView,
	}
	if !t.adminView {
		st.User = t.user
	}
	return st
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

// RefreshProfile fetches the profile of the active member again.
func (t *Tracker) RefreshProfile() {
	t.mu.Lock()
	if t.closed || t.target == "" {
		t.mu.Unlock()
		return
	}
	t.fetchLocked()
}

// Subscribe registers fn for state changes and returns the function that
// removes it.
func (t *Tracker) Subscribe(fn func(State)) (unsubscribe func()) {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
		})
	}
}

// Wait blocks until nothing is loading and returns the state.
func (t *Tracker) Wait(ctx context.Context) (State, error) {
	for {
		t.mu.Lock()
		st, changed := t.stateLocked(), t.changed
		t.mu.Unlock()
		if !st.Loading {
			return st, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

// Close stops tracking. Fetches still in flight are discarded.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.subs = map[int]func(State){}
	unsub := t.unsub
	t.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	t.cancel()
}
