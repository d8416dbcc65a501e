package local

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/infinityplans/portal/auth"
	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/docstore/memory"
	"golang.org/x/crypto/bcrypt"
)

func newTestProvider() *Provider {
	return New(memory.New(), WithBcryptCost(bcrypt.MinCost))
}

func TestRegisterAndSignIn(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	p := newTestProvider()

	id, err := p.Register(ctx, auth.Credentials{Email: "Asha@Example.com", Password: "password123"}, "INF001", false)
	c.Assert(err, qt.IsNil)
	c.Assert(id.Email, qt.Equals, "asha@example.com")
	c.Assert(id.UID, qt.Not(qt.Equals), "")

	_, err = p.Register(ctx, auth.Credentials{Email: "asha@example.com", Password: "other-password"}, "INF002", false)
	c.Assert(err, qt.ErrorIs, auth.ErrEmailExists)

	signed, err := p.SignIn(ctx, auth.Credentials{Email: "ASHA@example.com", Password: "password123"})
	c.Assert(err, qt.IsNil)
	c.Assert(signed.UID, qt.Equals, id.UID)
	c.Assert(signed.RegistrationID, qt.Equals, "INF001")

	_, err = p.SignIn(ctx, auth.Credentials{Email: "asha@example.com", Password: "wrong-password"})
	c.Assert(err, qt.ErrorIs, auth.ErrInvalidCredentials)
	_, err = p.SignIn(ctx, auth.Credentials{Email: "nobody@example.com", Password: "password123"})
	c.Assert(err, qt.ErrorIs, auth.ErrInvalidCredentials)

	_, err = p.Verify(ctx, "token")
	c.Assert(err, qt.ErrorIs, auth.ErrNotSupported)
}

func TestPasswordReset(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	p := newTestProvider()
	_, err := p.Register(ctx, auth.Credentials{Email: "asha@example.com", Password: "password123"}, "INF001", false)
	c.Assert(err, qt.IsNil)

	_, err = p.RequestPasswordReset(ctx, "nobody@example.com")
	c.Assert(err, qt.ErrorIs, docstore.ErrNotFound)

	code, err := p.RequestPasswordReset(ctx, "asha@example.com")
	c.Assert(err, qt.IsNil)
	c.Assert(code, qt.HasLen, ResetCodeLength)

	wrong := "00000000"
	if code == wrong {
		wrong = "11111111"
	}
	c.Assert(p.ResetPassword(ctx, "asha@example.com", wrong, "new-password"), qt.ErrorIs, auth.ErrResetCode)
	c.Assert(p.ResetPassword(ctx, "asha@example.com", code, "new-password"), qt.IsNil)
	// codes are single use
	c.Assert(p.ResetPassword(ctx, "asha@example.com", code, "another-password"), qt.ErrorIs, auth.ErrResetCode)

	_, err = p.SignIn(ctx, auth.Credentials{Email: "asha@example.com", Password: "new-password"})
	c.Assert(err, qt.IsNil)
}

func TestPasswordResetExpires(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	p := newTestProvider()
	now := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	_, err := p.Register(ctx, auth.Credentials{Email: "asha@example.com", Password: "password123"}, "INF001", false)
	c.Assert(err, qt.IsNil)

	code, err := p.RequestPasswordReset(ctx, "asha@example.com")
	c.Assert(err, qt.IsNil)
	now = now.Add(DefaultResetTTL + time.Second)
	c.Assert(p.ResetPassword(ctx, "asha@example.com", code, "new-password"), qt.ErrorIs, auth.ErrResetCode)
}

func TestPasswordResetAttemptsLimit(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	p := newTestProvider()
	_, err := p.Register(ctx, auth.Credentials{Email: "asha@example.com", Password: "password123"}, "INF001", false)
	c.Assert(err, qt.IsNil)

	code, err := p.RequestPasswordReset(ctx, "asha@example.com")
	c.Assert(err, qt.IsNil)
	wrong := "00000000"
	if code == wrong {
		wrong = "11111111"
	}
	for i := 0; i < MaxResetAttempts-1; i++ {
		c.Assert(p.ResetPassword(ctx, "asha@example.com", wrong, "new-password"), qt.ErrorIs, auth.ErrResetCode)
	}
	_, cred, err := p.load(ctx, "asha@example.com")
	c.Assert(err, qt.IsNil)
	c.Assert(cred.ResetAttempts, qt.Equals, MaxResetAttempts-1)

	// the last allowed failure cancels the pending reset, so the right code
	// no longer works
	c.Assert(p.ResetPassword(ctx, "asha@example.com", wrong, "new-password"), qt.ErrorIs, auth.ErrResetCode)
	c.Assert(p.ResetPassword(ctx, "asha@example.com", code, "new-password"), qt.ErrorIs, auth.ErrResetCode)
	_, err = p.SignIn(ctx, auth.Credentials{Email: "asha@example.com", Password: "password123"})
	c.Assert(err, qt.IsNil)

	// a new request starts a fresh count
	code, err = p.RequestPasswordReset(ctx, "asha@example.com")
	c.Assert(err, qt.IsNil)
	c.Assert(p.ResetPassword(ctx, "asha@example.com", code+"0", "new-password"), qt.ErrorIs, auth.ErrResetCode)
	c.Assert(p.ResetPassword(ctx, "asha@example.com", code, "new-password"), qt.IsNil)
	_, cred, err = p.load(ctx, "asha@example.com")
	c.Assert(err, qt.IsNil)
	c.Assert(cred.ResetAttempts, qt.Equals, 0)
	c.Assert(cred.ResetCodeHash, qt.Equals, "")
}

func TestChangePasswordRequiresReauth(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	p := newTestProvider()
	id, err := p.Register(ctx, auth.Credentials{Email: "asha@example.com", Password: "password123"}, "INF001", false)
	c.Assert(err, qt.IsNil)

	c.Assert(p.ChangePassword(ctx, id, "not-the-password", "new-password"), qt.ErrorIs, auth.ErrRecentLoginRequired)
	c.Assert(p.ChangePassword(ctx, id, "password123", "new-password"), qt.IsNil)
	_, err = p.SignIn(ctx, auth.Credentials{Email: "asha@example.com", Password: "password123"})
	c.Assert(err, qt.ErrorIs, auth.ErrInvalidCredentials)
	_, err = p.SignIn(ctx, auth.Credentials{Email: "asha@example.com", Password: "new-password"})
	c.Assert(err, qt.IsNil)
	c.Assert(p.SignOut(ctx, id), qt.IsNil)
}
