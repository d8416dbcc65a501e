package api

import (
	"context"
	goerrors "errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/infinityplans/portal/api/apicommon"
	"github.com/infinityplans/portal/auth"
	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/errors"
	"github.com/infinityplans/portal/notifications/mailtemplates"
	"github.com/infinityplans/portal/records"
	"go.vocdoni.io/dvote/log"
)

// authLoginHandler godoc
//
//	@Summary		Login to get a JWT token
//	@Description	Authenticate a member with email and password and get a JWT token
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		auth.Credentials	true	"Login credentials"
//	@Success		200		{object}	apicommon.LoginResponse
//	@Failure		400		{object}	errors.Error
//	@Failure		401		{object}	errors.Error
//	@Router			/auth/login [post]
func (a *API) authLoginHandler(w http.ResponseWriter, r *http.Request) {
	creds, ok := validatedModel[auth.Credentials](r)
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	id, err := a.auth.SignIn(r.Context(), *creds)
	if err != nil {
		switch {
		case goerrors.Is(err, auth.ErrInvalidCredentials):
			errors.ErrInvalidCredentials.Write(w)
		case goerrors.Is(err, auth.ErrNotSupported):
			errors.ErrNotSupported.With("sign in with the identity provider and use " + authFirebaseEndpoint).Write(w)
		default:
			errors.ErrGenericInternalServerError.WithErr(err).Write(w)
		}
		return
	}
	a.writeLogin(w, id)
}

// authFirebaseHandler godoc
//
//	@Summary		Exchange a Firebase ID token
//	@Description	Verify a Firebase ID token and get a JWT token of the API
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		apicommon.FirebaseLoginRequest	true	"Firebase ID token"
//	@Success		200		{object}	apicommon.LoginResponse
//	@Failure		400		{object}	errors.Error
//	@Failure		401		{object}	errors.Error
//	@Router			/auth/firebase [post]
func (a *API) authFirebaseHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := validatedModel[apicommon.FirebaseLoginRequest](r)
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	id, err := a.auth.Verify(r.Context(), req.IDToken)
	if err != nil {
		if goerrors.Is(err, auth.ErrNotSupported) {
			errors.ErrNotSupported.Write(w)
			return
		}
		errors.ErrUnauthorized.WithErr(err).Write(w)
		return
	}
	// accounts created outside the portal have no claims, link them by uid
	if id.RegistrationID == "" {
		if profile, err := a.directory.ProfileByUID(r.Context(), id.UID); err == nil {
			id.RegistrationID = profile.RegistrationID
			id.Admin = id.Admin || profile.IsAdmin()
		}
	}
	a.writeLogin(w, id)
}

func (a *API) writeLogin(w http.ResponseWriter, id *auth.Identity) {
	res, err := a.buildLoginResponse(id)
	if err != nil {
		errors.ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	log.Debugw("member signed in", "uid", id.UID, "registrationId", id.RegistrationID)
	apicommon.HTTPWriteJSON(w, res)
}

// refreshTokenHandler godoc
//
//	@Summary		Refresh JWT token
//	@Description	Refresh the JWT token for an authenticated member
//	@Tags			auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	apicommon.LoginResponse
//	@Failure		401	{object}	errors.Error
//	@Router			/auth/refresh [post]
func (a *API) refreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := apicommon.IdentityFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	res, err := a.buildLoginResponse(id)
	if err != nil {
		errors.ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, res)
}

// logoutHandler godoc
//
//	@Summary		Logout
//	@Description	Revoke the JWT token and the sessions held by the identity provider
//	@Tags			auth
//	@Security		BearerAuth
//	@Success		200	{string}	string	"OK"
//	@Failure		401	{object}	errors.Error
//	@Router			/auth/logout [post]
func (a *API) logoutHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := apicommon.IdentityFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	if tokenID, ok := r.Context().Value(apicommon.TokenIDMetadataKey).(string); ok && tokenID != "" {
		a.revoked.Add(tokenID, struct{}{})
	}
	if err := a.auth.SignOut(r.Context(), id); err != nil {
		log.Warnw("could not sign out from the identity provider", "uid", id.UID, "error", err)
	}
	apicommon.HTTPWriteOK(w)
}

// changePasswordHandler godoc
//
//	@Summary		Change the password
//	@Description	Change the password of the signed-in member. The current password is required.
//	@Tags			auth
//	@Accept			json
//	@Security		BearerAuth
//	@Param			request	body		apicommon.ChangePasswordRequest	true	"Current and new password"
//	@Success		200		{string}	string							"OK"
//	@Failure		400		{object}	errors.Error
//	@Failure		401		{object}	errors.Error
//	@Router			/auth/password [put]
func (a *API) changePasswordHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := apicommon.IdentityFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	req, ok := validatedModel[apicommon.ChangePasswordRequest](r)
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	if err := a.auth.ChangePassword(r.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case goerrors.Is(err, auth.ErrRecentLoginRequired), goerrors.Is(err, auth.ErrInvalidCredentials):
			errors.ErrInvalidCredentials.With("reauthentication failed").Write(w)
		case goerrors.Is(err, auth.ErrNotSupported):
			errors.ErrNotSupported.Write(w)
		default:
			errors.ErrGenericInternalServerError.WithErr(err).Write(w)
		}
		return
	}
	apicommon.HTTPWriteOK(w)
}

// recoverPasswordHandler godoc
//
//	@Summary		Request a password reset
//	@Description	Send a password reset code by mail, or by SMS when requested and the member has a mobile
//	@Description	number. The response does not reveal whether the email is registered.
//	@Tags			auth
//	@Accept			json
//	@Param			request	body		apicommon.PasswordRecoveryRequest	true	"Account email"
//	@Success		200		{string}	string								"OK"
//	@Failure		400		{object}	errors.Error
//	@Failure		500		{object}	errors.Error
//	@Router			/auth/password/recovery [post]
func (a *API) recoverPasswordHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := validatedModel[apicommon.PasswordRecoveryRequest](r)
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	secret, err := a.auth.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		if docstore.IsNotFound(err) {
			log.Debugw("password reset requested for unknown email", "email", req.Email)
			apicommon.HTTPWriteOK(w)
			return
		}
		errors.ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	profile, err := a.directory.ProfileByEmail(r.Context(), req.Email)
	if err != nil && !docstore.IsNotFound(err) {
		log.Warnw("could not load profile for password reset", "email", req.Email, "error", err)
	}
	if err := a.sendResetSecret(r.Context(), req.Email, profile, secret, req.BySMS); err != nil {
		errors.ErrNotificationFailure.WithErr(err).Write(w)
		return
	}
	apicommon.HTTPWriteOK(w)
}

// sendResetSecret delivers a reset code or link. Links are always mailed.
func (a *API) sendResetSecret(ctx context.Context, email string, profile *records.UserProfile,
	secret string, bySMS bool,
) error {
	isLink := strings.HasPrefix(secret, "http://") || strings.HasPrefix(secret, "https://")
	if bySMS && !isLink && a.sms != nil && profile != nil && profile.Mobile != "" {
		n, err := mailtemplates.ExecPlain(mailtemplates.PasswordResetSMS, struct{ Code string }{secret})
		if err != nil {
			return err
		}
		n.ToNumber = profile.Mobile
		return a.sendNotification(ctx, a.sms, n)
	}
	data := struct {
		Name string
		Code string
		Link string
	}{Name: displayName(profile, email)}
	if isLink {
		data.Link = secret
	} else {
		data.Code = secret
		data.Link = a.webAppLink(mailtemplates.PasswordResetNotification.WebAppURI) +
			"?" + url.Values{"email": {email}, "code": {secret}}.Encode()
	}
	n, err := mailtemplates.PasswordResetNotification.ExecTemplate(data)
	if err != nil {
		return err
	}
	n.ToAddress = email
	n.ToName = data.Name
	return a.sendNotification(ctx, a.mail, n)
}

// resetPasswordHandler godoc
//
//	@Summary		Reset the password
//	@Description	Set a new password with the code received by mail or SMS
//	@Tags			auth
//	@Accept			json
//	@Param			request	body		apicommon.PasswordResetRequest	true	"Email, code and new password"
//	@Success		200		{string}	string							"OK"
//	@Failure		400		{object}	errors.Error
//	@Failure		401		{object}	errors.Error
//	@Router			/auth/password/reset [post]
func (a *API) resetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := validatedModel[apicommon.PasswordResetRequest](r)
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	if err := a.auth.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		switch {
		case goerrors.Is(err, auth.ErrResetCode), docstore.IsNotFound(err):
			errors.ErrResetCodeInvalid.Write(w)
		case goerrors.Is(err, auth.ErrNotSupported):
			errors.ErrNotSupported.With("use the link received by mail").Write(w)
		default:
			errors.ErrGenericInternalServerError.WithErr(err).Write(w)
		}
		return
	}
	apicommon.HTTPWriteOK(w)
}
