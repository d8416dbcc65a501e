// Package firebase implements auth.Provider on top of Firebase
// Authentication. Members sign in on the client side and present their ID
// token, which the provider verifies.
package firebase

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"github.com/infinityplans/portal/auth"
	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/internal"
	"go.vocdoni.io/dvote/log"
	"google.golang.org/api/option"
)

const (
	claimRegistrationID = "registrationId"
	claimAdmin          = "admin"

	// RecentLogin is how old the last sign in of an identity may be for
	// ChangePassword to accept it.
	RecentLogin = 5 * time.Minute
)

// Client is the subset of *auth.Client the provider uses.
type Client interface {
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*fbauth.Token, error)
	CreateUser(ctx context.Context, user *fbauth.UserToCreate) (*fbauth.UserRecord, error)
	SetCustomUserClaims(ctx context.Context, uid string, claims map[string]interface{}) error
	PasswordResetLink(ctx context.Context, email string) (string, error)
	UpdateUser(ctx context.Context, uid string, user *fbauth.UserToUpdate) (*fbauth.UserRecord, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

// Provider is the Firebase authentication provider.
type Provider struct {
	client Client
	now    func() time.Time
}

// New initializes a Firebase app from the credentials file and returns a
// provider using its auth client. An empty path uses the application default
// credentials.
func New(ctx context.Context, projectID, credentialsFile string) (*Provider, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}
	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get auth client: %w", err)
	}
	return NewWithClient(client), nil
}

// NewWithClient returns a provider using client.
func NewWithClient(client Client) *Provider {
	return &Provider{client: client, now: time.Now}
}

// SignIn implements auth.Provider. Password sign in happens on the client.
func (*Provider) SignIn(context.Context, auth.Credentials) (*auth.Identity, error) {
	return nil, auth.ErrNotSupported
}

// Register implements auth.Provider. The registration id and the admin flag
// are stored as custom claims.
func (p *Provider) Register(ctx context.Context, creds auth.Credentials, regID string, admin bool) (*auth.Identity, error) {
	email := internal.NormalizeEmail(creds.Email)
	user, err := p.client.CreateUser(ctx, (&fbauth.UserToCreate{}).Email(email).Password(creds.Password))
	if err != nil {
		if fbauth.IsEmailAlreadyExists(err) {
			return nil, auth.ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	claims := map[string]interface{}{claimRegistrationID: regID, claimAdmin: admin}
	if err := p.client.SetCustomUserClaims(ctx, user.UID, claims); err != nil {
		return nil, fmt.Errorf("failed to set claims: %w", err)
	}
	return &auth.Identity{
		UID:            user.UID,
		Email:          email,
		RegistrationID: regID,
		Admin:          admin,
		AuthTime:       p.now().UTC(),
	}, nil
}

// Verify implements auth.Provider.
func (p *Provider) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	tok, err := p.client.VerifyIDTokenAndCheckRevoked(ctx, token)
	if err != nil {
		log.Debugw("rejected firebase token", "error", err)
		return nil, auth.ErrInvalidToken
	}
	id := &auth.Identity{
		UID:      tok.UID,
		AuthTime: time.Unix(tok.AuthTime, 0).UTC(),
	}
	if email, ok := tok.Claims["email"].(string); ok {
		id.Email = email
	}
	if regID, ok := tok.Claims[claimRegistrationID].(string); ok {
		id.RegistrationID = regID
	}
	if admin, ok := tok.Claims[claimAdmin].(bool); ok {
		id.Admin = admin
	}
	return id, nil
}

// RequestPasswordReset implements auth.Provider. The secret is the reset
// link generated by Firebase.
func (p *Provider) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	link, err := p.client.PasswordResetLink(ctx, internal.NormalizeEmail(email))
	if err != nil {
		if fbauth.IsUserNotFound(err) {
			return "", docstore.ErrNotFound
		}
		return "", fmt.Errorf("failed to generate reset link: %w", err)
	}
	return link, nil
}

// ResetPassword implements auth.Provider. Reset links are consumed by the
// Firebase hosted page.
func (*Provider) ResetPassword(context.Context, string, string, string) error {
	return auth.ErrNotSupported
}

// ChangePassword implements auth.Provider. The current password was already
// checked by the client when signing in, so the sign in must be recent.
func (p *Provider) ChangePassword(ctx context.Context, id *auth.Identity, _, newPassword string) error {
	if id.AuthTime.IsZero() || p.now().Sub(id.AuthTime) > RecentLogin {
		return auth.ErrRecentLoginRequired
	}
	if _, err := p.client.UpdateUser(ctx, id.UID, (&fbauth.UserToUpdate{}).Password(newPassword)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// SignOut implements auth.Provider by revoking the refresh tokens.
func (p *Provider) SignOut(ctx context.Context, id *auth.Identity) error {
	if err := p.client.RevokeRefreshTokens(ctx, id.UID); err != nil {
		return fmt.Errorf("failed to revoke tokens: %w", err)
	}
	return nil
}
