package users

import (
	"context"
	goerrors "errors"
	"fmt"

	"github.com/infinityplans/portal/auth"
	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/records"
	"go.vocdoni.io/dvote/log"
)

// ErrNotAdmin is returned by EnsureAdmin when the email belongs to a member.
var ErrNotAdmin = fmt.Errorf("email belongs to a member profile")

// EnsureAdmin makes sure an administrator with the given email exists,
// registering both the profile and the account when missing. It is used to
// bootstrap empty deployments.
func (d *Directory) EnsureAdmin(ctx context.Context, provider auth.Provider, creds auth.Credentials) (*records.UserProfile, error) {
	existing, err := d.ProfileByEmail(ctx, creds.Email)
	switch {
	case err == nil && existing.Role == records.RoleAdmin:
		return existing, nil
	case err == nil:
		return nil, ErrNotAdmin
	case !docstore.IsNotFound(err):
		return nil, err
	}

	profile, err := d.Create(ctx, &records.UserProfile{Email: creds.Email, Role: records.RoleAdmin})
	if err != nil {
		return nil, err
	}
	id, err := provider.Register(ctx, creds, profile.RegistrationID, true)
	if goerrors.Is(err, auth.ErrEmailExists) {
		// the account survived a lost profile, reuse it
		id, err = provider.SignIn(ctx, creds)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot register admin account: %w", err)
	}
	profile.UID = id.UID
	if err := d.SaveProfile(ctx, profile); err != nil {
		return nil, err
	}
	log.Infow("administrator created", "registrationId", profile.RegistrationID, "email", profile.Email)
	return profile, nil
}
