package api

import (
	"net/http"

	"github.com/infinityplans/portal/api/apicommon"
	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/errors"
	"github.com/infinityplans/portal/session"
	"github.com/infinityplans/portal/users"
)

// sessionHandler godoc
//
//	@Summary		Get the session
//	@Description	Get the signed-in member along with their profile. With the impersonate query
//	@Description	parameter an administrator gets the profile of that member instead, in admin
//	@Description	view.
//	@Tags			auth
//	@Produce		json
//	@Security		BearerAuth
//	@Param			impersonate	query		string	false	"Registration id of the member to view as"
//	@Success		200			{object}	apicommon.SessionResponse
//	@Failure		401			{object}	errors.Error
//	@Failure		403			{object}	errors.Error
//	@Router			/session [get]
func (a *API) sessionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := apicommon.IdentityFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	tracker := session.NewTracker(r.Context(), session.StaticAuth{Identity: id},
		users.New(a.guarded), r.URL.Query())
	defer tracker.Close()
	st, err := tracker.Wait(r.Context())
	if err != nil {
		errors.ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	if st.Err != nil && docstore.IsPermissionDenied(st.Err) {
		errors.ErrForbidden.WithErr(st.Err).Write(w)
		return
	}
	res := &apicommon.SessionResponse{
		User:        st.User,
		Profile:     st.Profile,
		IsAdminView: st.IsAdminView,
	}
	if st.Err != nil {
		res.Error = st.Err.Error()
	}
	apicommon.HTTPWriteJSON(w, res)
}
