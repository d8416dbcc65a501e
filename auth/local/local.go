// Package local implements auth.Provider with bcrypt password hashes kept in
// the document store under credentials/{email}.
package local

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/infinityplans/portal/auth"
	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/internal"
	"go.vocdoni.io/dvote/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	// ResetCodeLength is the number of digits of a password reset code.
	ResetCodeLength = 8
	// DefaultResetTTL is how long a reset code is accepted.
	DefaultResetTTL = 5 * time.Minute
	// MaxResetAttempts is the number of wrong codes after which the pending
	// reset is cancelled.
	MaxResetAttempts = 5
)

var credentials = docstore.MustCollection("credentials")

// credential is the stored account.
type credential struct {
	UID            string    `json:"uid"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"passwordHash"`
	RegistrationID string    `json:"registrationId"`
	Admin          bool      `json:"admin"`
	ResetCodeHash  string    `json:"resetCodeHash,omitempty"`
	ResetExpiry    time.Time `json:"resetExpiry,omitempty"`
	ResetAttempts  int       `json:"resetAttempts,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Provider is the local authentication provider.
type Provider struct {
	store    docstore.Store
	cost     int
	resetTTL time.Duration
	now      func() time.Time
}

// Option configures the provider.
type Option func(*Provider)

// WithBcryptCost overrides bcrypt.DefaultCost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option { return func(p *Provider) { p.cost = cost } }

// WithResetTTL sets the lifetime of reset codes.
func WithResetTTL(ttl time.Duration) Option { return func(p *Provider) { p.resetTTL = ttl } }

// New returns a provider storing credentials in store. The store must not be
// wrapped with access rules.
func New(store docstore.Store, opts ...Option) *Provider {
	p := &Provider{store: store, cost: bcrypt.DefaultCost, resetTTL: DefaultResetTTL, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) load(ctx context.Context, email string) (*docstore.DocRef, *credential, error) {
	ref, err := credentials.Doc(internal.NormalizeEmail(email))
	if err != nil {
		return nil, nil, auth.ErrInvalidCredentials
	}
	snap, err := p.store.Get(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	if !snap.Exists {
		return ref, nil, nil
	}
	cred := &credential{}
	if err := snap.DataTo(cred); err != nil {
		return nil, nil, err
	}
	return ref, cred, nil
}

func (p *Provider) save(ctx context.Context, ref *docstore.DocRef, cred *credential) error {
	cred.UpdatedAt = p.now().UTC()
	doc, err := docstore.Encode(cred)
	if err != nil {
		return err
	}
	return p.store.Set(ctx, ref, doc)
}

func (p *Provider) identity(cred *credential) *auth.Identity {
	return &auth.Identity{
		UID:            cred.UID,
		Email:          cred.Email,
		RegistrationID: cred.RegistrationID,
		Admin:          cred.Admin,
		AuthTime:       p.now().UTC(),
	}
}

// SignIn implements auth.Provider.
func (p *Provider) SignIn(ctx context.Context, creds auth.Credentials) (*auth.Identity, error) {
	_, cred, err := p.load(ctx, creds.Email)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, auth.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(creds.Password)); err != nil {
		return nil, auth.ErrInvalidCredentials
	}
	return p.identity(cred), nil
}

// Register implements auth.Provider.
func (p *Provider) Register(ctx context.Context, creds auth.Credentials, regID string, admin bool) (*auth.Identity, error) {
	ref, cred, err := p.load(ctx, creds.Email)
	if err != nil {
		return nil, err
	}
	if cred != nil {
		return nil, auth.ErrEmailExists
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), p.cost)
	if err != nil {
		return nil, fmt.Errorf("cannot hash password: %w", err)
	}
	cred = &credential{
		UID:            uuid.NewString(),
		Email:          internal.NormalizeEmail(creds.Email),
		PasswordHash:   string(hash),
		RegistrationID: regID,
		Admin:          admin,
	}
	if err := p.save(ctx, ref, cred); err != nil {
		return nil, err
	}
	return p.identity(cred), nil
}

// Verify implements auth.Provider. Local accounts authenticate with the
// tokens issued by the API, so there is nothing to verify here.
func (*Provider) Verify(context.Context, string) (*auth.Identity, error) {
	return nil, auth.ErrNotSupported
}

// RequestPasswordReset implements auth.Provider. The returned code is sent
// to the member; only its hash is stored.
func (p *Provider) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	ref, cred, err := p.load(ctx, email)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", docstore.ErrNotFound
	}
	code := internal.RandomDigits(ResetCodeLength)
	cred.ResetCodeHash = internal.HashVerificationCode(cred.Email, code)
	cred.ResetExpiry = p.now().UTC().Add(p.resetTTL)
	cred.ResetAttempts = 0
	if err := p.save(ctx, ref, cred); err != nil {
		return "", err
	}
	return code, nil
}

// ResetPassword implements auth.Provider. Every wrong code counts against
// the pending reset, which is dropped after MaxResetAttempts failures.
func (p *Provider) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	ref, cred, err := p.load(ctx, email)
	if err != nil {
		return err
	}
	if cred == nil || cred.ResetCodeHash == "" || p.now().After(cred.ResetExpiry) {
		return auth.ErrResetCode
	}
	if cred.ResetCodeHash != internal.HashVerificationCode(cred.Email, code) {
		cred.ResetAttempts++
		if cred.ResetAttempts >= MaxResetAttempts {
			clearReset(cred)
			log.Warnw("password reset cancelled after failed attempts", "uid", cred.UID)
		}
		if err := p.save(ctx, ref, cred); err != nil {
			return err
		}
		return auth.ErrResetCode
	}
	return p.setPassword(ctx, ref, cred, newPassword)
}

func clearReset(cred *credential) {
	cred.ResetCodeHash = ""
	cred.ResetExpiry = time.Time{}
	cred.ResetAttempts = 0
}

// ChangePassword implements auth.Provider.
func (p *Provider) ChangePassword(ctx context.Context, id *auth.Identity, current, newPassword string) error {
	ref, cred, err := p.load(ctx, id.Email)
	if err != nil {
		return err
	}
	if cred == nil {
		return auth.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(current)); err != nil {
		return auth.ErrRecentLoginRequired
	}
	return p.setPassword(ctx, ref, cred, newPassword)
}

func (p *Provider) setPassword(ctx context.Context, ref *docstore.DocRef, cred *credential, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return fmt.Errorf("cannot hash password: %w", err)
	}
	cred.PasswordHash = string(hash)
	clearReset(cred)
	if err := p.save(ctx, ref, cred); err != nil {
		return err
	}
	log.Infow("password updated", "uid", cred.UID)
	return nil
}

// SignOut implements auth.Provider. Issued tokens are revoked by the API.
func (*Provider) SignOut(context.Context, *auth.Identity) error {
	return nil
}
