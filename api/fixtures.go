package api

import (
	"encoding/json"
	goerrors "errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/infinityplans/portal/api/apicommon"
	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/errors"
	"go.vocdoni.io/dvote/log"
)

// fixturesHandler godoc
//
//	@Summary		Replace fixture documents
//	@Description	Replace every document under a top level collection of the JSON fixture store.
//	@Description	The body maps document paths, all under the named collection, to their
//	@Description	content. Only available with the jsonfile store.
//	@Tags			diagnostics
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			name	path		string							true	"Top level collection"
//	@Param			request	body		map[string]docstore.Document	true	"Documents by path"
//	@Success		200		{object}	apicommon.FixtureResponse
//	@Failure		400		{object}	errors.Error
//	@Failure		404		{object}	errors.Error
//	@Router			/fixtures/{name} [post]
func (a *API) fixturesHandler(w http.ResponseWriter, r *http.Request) {
	writer, ok := a.store.(docstore.FixtureWriter)
	if !ok {
		errors.ErrNotSupported.With("the document store has no fixture files").Write(w)
		return
	}
	name := chi.URLParam(r, "name")
	if name == "" || strings.ContainsAny(name, "/.") {
		errors.ErrMalformedURLParam.With("invalid fixture name").Write(w)
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	docs := map[string]docstore.Document{}
	if err := json.Unmarshal(body, &docs); err != nil {
		errors.ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if err := writer.WriteFixture(r.Context(), name, docs); err != nil {
		switch {
		case docstore.IsNotFound(err):
			errors.ErrFixtureNotFound.Withf("fixture %s", name).Write(w)
		case goerrors.Is(err, docstore.ErrInvalidPath):
			errors.ErrMalformedBody.WithErr(err).Write(w)
		default:
			errors.ErrInternalStorageError.WithErr(err).Write(w)
		}
		return
	}
	log.Infow("fixture replaced", "name", name, "documents", len(docs))
	apicommon.HTTPWriteJSON(w, &apicommon.FixtureResponse{Name: name, Paths: len(docs)})
}
