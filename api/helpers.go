package api

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/infinityplans/portal/api/apicommon"
	"github.com/infinityplans/portal/auth"
	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/errors"
	"github.com/infinityplans/portal/notifications"
	"github.com/infinityplans/portal/records"
	"github.com/infinityplans/portal/validator"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.vocdoni.io/dvote/log"
)

// JWT private claims.
const (
	userIDClaim         = "userId"
	emailClaim          = "email"
	registrationIDClaim = "registrationId"
	adminClaim          = "admin"
	authTimeClaim       = "authTime"
)

// buildLoginResponse creates a JWT token for the given identity.
// The token is signed with the API secret, following the JWT specification.
// The token is valid for the period specified on JWTExpiration constant.
func (a *API) buildLoginResponse(id *auth.Identity) (*apicommon.LoginResponse, error) {
	now := time.Now()
	authTime := id.AuthTime
	if authTime.IsZero() {
		authTime = now
	}
	lr := &apicommon.LoginResponse{
		Expirity: now.Add(apicommon.JWTExpiration),
		Identity: id,
	}
	j := jwt.New()
	for k, v := range map[string]any{
		userIDClaim:         id.UID,
		emailClaim:          id.Email,
		registrationIDClaim: id.RegistrationID,
		adminClaim:          id.Admin,
		authTimeClaim:       authTime.Unix(),
		jwt.JwtIDKey:        uuid.NewString(),
		jwt.IssuedAtKey:     now,
		jwt.ExpirationKey:   lr.Expirity,
	} {
		if err := j.Set(k, v); err != nil {
			return nil, err
		}
	}
	jmap, err := j.AsMap(context.Background())
	if err != nil {
		return nil, err
	}
	if _, lr.Token, err = a.jwt.Encode(jmap); err != nil {
		return nil, err
	}
	return lr, nil
}

// identityFromClaims rebuilds the identity encoded by buildLoginResponse.
func identityFromClaims(claims map[string]any) *auth.Identity {
	id := &auth.Identity{}
	id.UID, _ = claims[userIDClaim].(string)
	id.Email, _ = claims[emailClaim].(string)
	id.RegistrationID, _ = claims[registrationIDClaim].(string)
	id.Admin, _ = claims[adminClaim].(bool)
	switch t := claims[authTimeClaim].(type) {
	case float64:
		id.AuthTime = time.Unix(int64(t), 0)
	case int64:
		id.AuthTime = time.Unix(t, 0)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			id.AuthTime = time.Unix(n, 0)
		}
	}
	return id
}

// validatedModel returns the request body decoded and validated by the
// validator middleware.
func validatedModel[T any](r *http.Request) (*T, bool) {
	model, ok := validator.GetValidatedModel(r.Context())
	if !ok {
		return nil, false
	}
	v, ok := model.(*T)
	return v, ok
}

// kindFromRequest parses the record kind URL parameter.
func kindFromRequest(r *http.Request) (records.Kind, error) {
	return records.ParseKind(chi.URLParam(r, "kind"))
}

// storeError maps document store, validation and record errors onto API
// errors.
func storeError(err error) errors.Error {
	var verrs validator.ValidationErrors
	switch {
	case docstore.IsPermissionDenied(err):
		return errors.ErrForbidden.WithErr(err)
	case docstore.IsNotFound(err):
		return errors.ErrRecordNotFound.WithErr(err)
	case goerrors.As(err, &verrs):
		return errors.ErrInvalidRecordData.WithErr(err).WithData(verrs)
	case goerrors.Is(err, records.ErrUnknownList):
		return errors.ErrMalformedURLParam.WithErr(err)
	case goerrors.Is(err, records.ErrUnknownSection):
		return errors.ErrUnknownSection.WithErr(err)
	case goerrors.Is(err, docstore.ErrInvalidPath):
		return errors.ErrMalformedURLParam.WithErr(err)
	}
	return errors.ErrInternalStorageError.WithErr(err)
}

// sendNotification sends the notification through the service, if any,
// bounded by the notification timeout.
func (*API) sendNotification(ctx context.Context, service notifications.NotificationService, n *notifications.Notification) error {
	if service == nil {
		log.Debugw("notification not sent, no service configured", "to", n.ToAddress+n.ToNumber)
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, apicommon.NotificationTimeout)
	defer cancel()
	if err := service.SendNotification(ctx, n); err != nil {
		return fmt.Errorf("could not send notification: %w", err)
	}
	return nil
}

// webAppLink returns the absolute link to a web app page.
func (a *API) webAppLink(uri string) string {
	return a.webAppURL + uri
}

// displayName returns the name to greet a member with.
func displayName(p *records.UserProfile, fallback string) string {
	if p == nil {
		return fallback
	}
	if name := p.PersonalInfo.FirstName; name != "" {
		return name
	}
	return fallback
}
