package api

import (
	"context"
	goerrors "errors"
	"net/http"
	"strconv"

	"github.com/infinityplans/portal/api/apicommon"
	"github.com/infinityplans/portal/auth"
	"github.com/infinityplans/portal/errors"
	"github.com/infinityplans/portal/notifications/mailtemplates"
	"github.com/infinityplans/portal/records"
	"github.com/infinityplans/portal/users"
	"github.com/infinityplans/portal/validator"
	"go.vocdoni.io/dvote/log"
)

// defaultListLimit is the number of profiles listed when no limit is given.
const defaultListLimit = 50

// registerHandler godoc
//
//	@Summary		Register a member
//	@Description	Create the account and the profile of a new member. The profile gets the next
//	@Description	registration id and a welcome mail is sent.
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		apicommon.RegisterRequest	true	"Member information"
//	@Success		200		{object}	apicommon.RegisterResponse
//	@Failure		400		{object}	errors.Error
//	@Failure		403		{object}	errors.Error	"Admin role required"
//	@Failure		409		{object}	errors.Error	"Email already registered"
//	@Router			/users [post]
func (a *API) registerHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := validatedModel[apicommon.RegisterRequest](r)
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	profile := &records.UserProfile{
		Email:        req.Email,
		Mobile:       req.Mobile,
		Role:         records.RoleMember,
		PersonalInfo: req.PersonalInfo,
	}
	if req.Admin {
		profile.Role = records.RoleAdmin
	}
	created, err := a.directory.Create(r.Context(), profile)
	if err != nil {
		var verrs validator.ValidationErrors
		switch {
		case goerrors.Is(err, users.ErrEmailTaken):
			errors.ErrDuplicateConflict.With("email already registered").Write(w)
		case goerrors.As(err, &verrs):
			errors.ErrInvalidUserData.WithErr(err).WithData(verrs).Write(w)
		default:
			errors.ErrInternalStorageError.WithErr(err).Write(w)
		}
		return
	}
	id, err := a.auth.Register(r.Context(), auth.Credentials{Email: req.Email, Password: req.Password},
		created.RegistrationID, req.Admin)
	if err != nil {
		a.discardProfile(r.Context(), created)
		if goerrors.Is(err, auth.ErrEmailExists) {
			errors.ErrDuplicateConflict.With("email already registered").Write(w)
			return
		}
		errors.ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	created.UID = id.UID
	if err := a.directory.SaveProfile(r.Context(), created); err != nil {
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	if err := a.sendWelcome(r.Context(), created); err != nil {
		log.Warnw("could not send welcome mail", "registrationId", created.RegistrationID, "error", err)
	}
	apicommon.HTTPWriteJSON(w, &apicommon.RegisterResponse{
		RegistrationID: created.RegistrationID,
		Profile:        created,
	})
}

// discardProfile removes a profile whose account could not be created.
func (a *API) discardProfile(ctx context.Context, p *records.UserProfile) {
	ref, err := records.ProfileRef(p.RegistrationID)
	if err != nil {
		return
	}
	if err := a.store.Delete(ctx, ref); err != nil {
		log.Warnw("could not remove orphan profile", "registrationId", p.RegistrationID, "error", err)
	}
}

func (a *API) sendWelcome(ctx context.Context, p *records.UserProfile) error {
	data := struct {
		Name           string
		RegistrationID string
		Link           string
	}{
		Name:           displayName(p, p.Email),
		RegistrationID: p.RegistrationID,
		Link:           a.webAppLink(mailtemplates.WelcomeNotification.WebAppURI),
	}
	n, err := mailtemplates.WelcomeNotification.ExecTemplate(data)
	if err != nil {
		return err
	}
	n.ToAddress = p.Email
	n.ToName = data.Name
	return a.sendNotification(ctx, a.mail, n)
}

// searchUsersHandler godoc
//
//	@Summary		Search members
//	@Description	Find members by registration id, email or mobile. Every given criteria must
//	@Description	match. With all=true and no criteria, list the members up to limit.
//	@Tags			users
//	@Produce		json
//	@Security		BearerAuth
//	@Param			registrationId	query		string	false	"Registration id"
//	@Param			email			query		string	false	"Email"
//	@Param			mobile			query		string	false	"Mobile number"
//	@Param			all				query		bool	false	"List every member"
//	@Param			limit			query		int		false	"Maximum number of members listed"
//	@Success		200				{object}	apicommon.UserSearchResponse
//	@Failure		400				{object}	errors.Error
//	@Failure		403				{object}	errors.Error
//	@Router			/admin/users [get]
func (a *API) searchUsersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := users.Criteria{
		RegistrationID: q.Get("registrationId"),
		Email:          q.Get("email"),
		Mobile:         q.Get("mobile"),
	}
	var (
		found []*records.UserProfile
		err   error
	)
	switch {
	case !criteria.IsEmpty():
		found, err = a.directory.Find(r.Context(), criteria)
	case q.Get("all") == "true":
		limit := defaultListLimit
		if s := q.Get("limit"); s != "" {
			if limit, err = strconv.Atoi(s); err != nil || limit < 1 {
				errors.ErrMalformedURLParam.With("invalid limit").Write(w)
				return
			}
		}
		found, err = a.directory.List(r.Context(), limit)
	default:
		errors.ErrNoSearchCriteria.Write(w)
		return
	}
	if err != nil {
		storeError(err).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, &apicommon.UserSearchResponse{Users: found})
}
