// Package auth defines the authentication provider used by the portal and
// the identity it produces. Implementations live in the local and firebase
// subpackages.
package auth

import (
	"context"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned when the email or password is wrong.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	// ErrEmailExists is returned by Register for emails already in use.
	ErrEmailExists = fmt.Errorf("email already registered")
	// ErrInvalidToken is returned by Verify for unknown or expired tokens.
	ErrInvalidToken = fmt.Errorf("invalid token")
	// ErrResetCode is returned for unknown or expired password reset codes.
	ErrResetCode = fmt.Errorf("invalid or expired reset code")
	// ErrRecentLoginRequired is returned by ChangePassword when the caller
	// did not reauthenticate.
	ErrRecentLoginRequired = fmt.Errorf("recent login required")
	// ErrNotSupported is returned for operations a provider cannot do.
	ErrNotSupported = fmt.Errorf("operation not supported by the provider")
)

// Identity is an authenticated account.
type Identity struct {
	UID            string    `json:"uid"`
	Email          string    `json:"email"`
	RegistrationID string    `json:"registrationId,omitempty"`
	Admin          bool      `json:"admin"`
	AuthTime       time.Time `json:"authTime"`
}

// Credentials are the email and password of an account.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// Provider is the external authentication collaborator.
type Provider interface {
	// SignIn checks the credentials and returns the identity.
	SignIn(ctx context.Context, creds Credentials) (*Identity, error)
	// Register creates an account bound to a registration id.
	Register(ctx context.Context, creds Credentials, regID string, admin bool) (*Identity, error)
	// Verify resolves a token issued by the provider into an identity. Only
	// providers that issue their own tokens support it.
	Verify(ctx context.Context, token string) (*Identity, error)
	// RequestPasswordReset returns the secret to deliver to the member: a
	// short code or a reset link, depending on the provider.
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	// ResetPassword sets a new password using the secret from
	// RequestPasswordReset.
	ResetPassword(ctx context.Context, email, secret, newPassword string) error
	// ChangePassword reauthenticates with the current password and sets the
	// new one.
	ChangePassword(ctx context.Context, id *Identity, current, newPassword string) error
	// SignOut revokes the sessions of the account on the provider side.
	SignOut(ctx context.Context, id *Identity) error
}
