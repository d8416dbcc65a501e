package objectstorage

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/infinityplans/portal/api/apicommon"
	"github.com/infinityplans/portal/errors"
)

// isObjectNameRgx is a regular expression to match object names.
var isObjectNameRgx = regexp.MustCompile(`^[a-f0-9]{24}\.(jpeg|png|pdf)$`)

// DownloadHandler godoc
//
//	@Summary		Download a stored file
//	@Description	Download a file inline. Members can only download their own files.
//	@Tags			storage
//	@Produce		application/pdf,image/jpeg,image/png
//	@Security		BearerAuth
//	@Param			owner		path		string			true	"Registration id of the owner"
//	@Param			objectName	path		string			true	"Object name"
//	@Success		200			{file}		binary			"File content"
//	@Failure		400			{object}	errors.Error	"Invalid object name"
//	@Failure		403			{object}	errors.Error	"Not the owner"
//	@Failure		404			{object}	errors.Error	"Object not found"
//	@Router			/storage/{owner}/{objectName} [get]
func (osc *Client) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := apicommon.IdentityFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	owner := chi.URLParam(r, "owner")
	objectName := chi.URLParam(r, "objectName")
	if owner == "" || !isObjectNameRgx.MatchString(objectName) {
		errors.ErrMalformedURLParam.With("invalid object name").Write(w)
		return
	}
	if !apicommon.CanAccess(id, owner) {
		errors.ErrForbidden.Write(w)
		return
	}
	object, err := osc.Get(r.Context(), owner+"/"+objectName)
	if err != nil {
		if err == ErrorObjectNotFound {
			errors.ErrFileNotFound.Write(w)
			return
		}
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", object.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(object.Data)))
	w.Header().Set("Content-Disposition", "inline")
	if _, err := w.Write(object.Data); err != nil {
		errors.ErrInternalStorageError.Withf("cannot write object %v", err).Write(w)
		return
	}
}

// objectURL returns the URL for the object with the given key.
func objectURL(baseURL, key string) string {
	return fmt.Sprintf("%s/storage/%s", baseURL, key)
}
