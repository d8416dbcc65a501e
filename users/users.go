// Package users manages member profiles: lookups by registration id, uid,
// email or mobile, and the allocation of registration ids on sign up.
package users

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/internal"
	"github.com/infinityplans/portal/records"
	"go.vocdoni.io/dvote/log"
)

// RegistrationPrefix is prepended to the member sequence number.
const RegistrationPrefix = "INF"

// ErrEmailTaken is returned by Create when another profile uses the email.
var ErrEmailTaken = fmt.Errorf("email already registered")

var counterRef = docstore.MustDoc("counters/registrations")

// Criteria selects profiles in Find. Empty fields are ignored; at least one
// must be set.
type Criteria struct {
	RegistrationID string
	Email          string
	Mobile         string
}

// IsEmpty reports whether no criteria is set.
func (c Criteria) IsEmpty() bool {
	return c.RegistrationID == "" && c.Email == "" && c.Mobile == ""
}

// Directory reads and writes profiles in the users collection.
type Directory struct {
	store docstore.Store
	// createLock serializes registration id allocation.
	createLock sync.Mutex
}

// New returns a directory backed by store. The store is used without access
// rules.
func New(store docstore.Store) *Directory {
	return &Directory{store: store}
}

// Profile returns the profile with the given registration id.
func (d *Directory) Profile(ctx context.Context, regID string) (*records.UserProfile, error) {
	ref, err := records.ProfileRef(regID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", docstore.ErrNotFound, err)
	}
	snap, err := d.store.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	profile := &records.UserProfile{}
	if err := snap.DataTo(profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// ProfileByUID returns the profile linked to an authentication uid.
func (d *Directory) ProfileByUID(ctx context.Context, uid string) (*records.UserProfile, error) {
	return d.first(ctx, "uid", uid)
}

// ProfileByEmail returns the profile registered with the email.
func (d *Directory) ProfileByEmail(ctx context.Context, email string) (*records.UserProfile, error) {
	return d.first(ctx, "email", internal.NormalizeEmail(email))
}

func (d *Directory) first(ctx context.Context, field, value string) (*records.UserProfile, error) {
	snaps, err := d.store.List(ctx, records.UsersCollection.Query().Where(field, value).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, docstore.ErrNotFound
	}
	profile := &records.UserProfile{}
	if err := snaps[0].DataTo(profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// Find returns the profiles matching every non-empty criteria.
func (d *Directory) Find(ctx context.Context, c Criteria) ([]*records.UserProfile, error) {
	if c.IsEmpty() {
		return nil, fmt.Errorf("no search criteria")
	}
	if c.RegistrationID != "" {
		p, err := d.Profile(ctx, strings.ToUpper(strings.TrimSpace(c.RegistrationID)))
		if docstore.IsNotFound(err) {
			return []*records.UserProfile{}, nil
		}
		if err != nil {
			return nil, err
		}
		if (c.Email != "" && p.Email != internal.NormalizeEmail(c.Email)) || (c.Mobile != "" && p.Mobile != normalizeMobile(c.Mobile)) {
			return []*records.UserProfile{}, nil
		}
		return []*records.UserProfile{p}, nil
	}
	q := records.UsersCollection.Query()
	if c.Email != "" {
		q = q.Where("email", internal.NormalizeEmail(c.Email))
	}
	if c.Mobile != "" {
		q = q.Where("mobile", normalizeMobile(c.Mobile))
	}
	return d.list(ctx, q)
}

// List returns the profiles ordered by registration id, up to limit when
// limit is positive.
func (d *Directory) List(ctx context.Context, limit int) ([]*records.UserProfile, error) {
	q := records.UsersCollection.Query()
	if limit > 0 {
		q = q.Limit(limit)
	}
	return d.list(ctx, q)
}

func (d *Directory) list(ctx context.Context, q *docstore.Query) ([]*records.UserProfile, error) {
	snaps, err := d.store.List(ctx, q)
	if err != nil {
		return nil, err
	}
	profiles := make([]*records.UserProfile, 0, len(snaps))
	for _, snap := range snaps {
		p := &records.UserProfile{}
		if err := snap.DataTo(p); err != nil {
			log.Warnw("skipping malformed profile", "path", snap.Ref.Path(), "error", err)
			continue
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// Create stores a new profile with the next free registration id. The email
// and mobile are normalized, and the status and role get their defaults.
func (d *Directory) Create(ctx context.Context, p *records.UserProfile) (*records.UserProfile, error) {
	d.createLock.Lock()
	defer d.createLock.Unlock()

	p.Email = internal.NormalizeEmail(p.Email)
	if p.Mobile != "" {
		p.Mobile = normalizeMobile(p.Mobile)
	}
	if _, err := d.ProfileByEmail(ctx, p.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !docstore.IsNotFound(err) {
		return nil, err
	}

	regID, next, err := d.nextRegistrationID(ctx)
	if err != nil {
		return nil, err
	}
	p.RegistrationID = regID
	if p.Status == "" {
		p.Status = "active"
	}
	if p.Role == "" {
		p.Role = records.RoleMember
	}
	if p.CreatedAt == "" {
		p.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if err := d.SaveProfile(ctx, p); err != nil {
		return nil, err
	}
	// the counter only moves once the profile is stored
	if err := d.store.Set(ctx, counterRef, docstore.Document{"next": next}); err != nil {
		return nil, err
	}
	log.Infow("member registered", "registrationId", regID, "email", p.Email)
	return p, nil
}

// SaveProfile validates and overwrites the profile document, keeping the
// stored fields the profile type does not model.
func (d *Directory) SaveProfile(ctx context.Context, p *records.UserProfile) error {
	if err := records.Validate(p); err != nil {
		return err
	}
	ref, err := records.ProfileRef(p.RegistrationID)
	if err != nil {
		return err
	}
	current, err := d.store.Get(ctx, ref)
	if err != nil {
		return err
	}
	doc, err := docstore.EncodeOver(current.Data, p)
	if err != nil {
		return err
	}
	return d.store.Set(ctx, ref, doc)
}

// nextRegistrationID returns the next free registration id and the counter
// value that follows it, skipping ids already in use by profiles imported
// without going through Create.
func (d *Directory) nextRegistrationID(ctx context.Context) (string, int, error) {
	snap, err := d.store.Get(ctx, counterRef)
	if err != nil {
		return "", 0, err
	}
	var counter struct {
		Next int `json:"next"`
	}
	if snap.Exists {
		if err := snap.DataTo(&counter); err != nil {
			return "", 0, err
		}
	}
	if counter.Next < 1 {
		counter.Next = 1
	}
	for {
		regID := FormatRegistrationID(counter.Next)
		counter.Next++
		ref, err := records.ProfileRef(regID)
		if err != nil {
			return "", 0, err
		}
		existing, err := d.store.Get(ctx, ref)
		if err != nil {
			return "", 0, err
		}
		if existing.Exists {
			continue
		}
		return regID, counter.Next, nil
	}
}

// FormatRegistrationID renders a sequence number as a registration id.
func FormatRegistrationID(n int) string {
	return fmt.Sprintf("%s%03d", RegistrationPrefix, n)
}

func normalizeMobile(mobile string) string {
	if m, err := internal.SanitizeAndVerifyPhoneNumber(mobile); err == nil {
		return m
	}
	return strings.TrimSpace(mobile)
}
