package api

import (
	goerrors "errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/infinityplans/portal/api/apicommon"
	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/errors"
	"github.com/infinityplans/portal/objectstorage"
	"github.com/infinityplans/portal/records"
	"go.vocdoni.io/dvote/log"
)

// uploadDocumentHandler godoc
//
//	@Summary		Upload a document
//	@Description	Upload a file for a member as multipart form data, with the file in the "file"
//	@Description	field and its display name in the "name" field. JPEG, PNG and PDF files are
//	@Description	accepted.
//	@Tags			records
//	@Accept			mpfd
//	@Produce		json
//	@Security		BearerAuth
//	@Param			regId	path		string	true	"Registration id"
//	@Param			file	formData	file	true	"File to upload"
//	@Param			name	formData	string	false	"Display name"
//	@Success		200		{object}	records.Document
//	@Failure		400		{object}	errors.Error
//	@Failure		403		{object}	errors.Error
//	@Failure		404		{object}	errors.Error
//	@Router			/users/{regId}/documents [post]
func (a *API) uploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if a.objectStorage == nil {
		errors.ErrNotSupported.With("object storage not configured").Write(w)
		return
	}
	regID := chi.URLParam(r, "regId")
	coll, err := records.DocumentsCollection(regID)
	if err != nil {
		errors.ErrMalformedURLParam.WithErr(err).Write(w)
		return
	}
	if _, err := a.directory.Profile(r.Context(), regID); err != nil {
		if docstore.IsNotFound(err) {
			errors.ErrUserNotFound.Withf("registration id %s", regID).Write(w)
			return
		}
		storeError(err).Write(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, objectstorage.MaxObjectSize+1<<20)
	if err := r.ParseMultipartForm(objectstorage.MaxObjectSize); err != nil {
		errors.ErrStorageInvalidFile.WithErr(err).Write(w)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		errors.ErrStorageInvalidFile.With("file field required").Write(w)
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			log.Warnw("cannot close uploaded file", "error", err)
		}
	}()
	obj, err := a.objectStorage.Put(r.Context(), file, regID)
	if err != nil {
		switch {
		case goerrors.Is(err, objectstorage.ErrorFileTypeNotSupported),
			goerrors.Is(err, objectstorage.ErrorFileTooLarge),
			goerrors.Is(err, objectstorage.ErrorInvalidObjectID):
			errors.ErrStorageInvalidFile.WithErr(err).Write(w)
		default:
			errors.ErrInternalStorageError.WithErr(err).Write(w)
		}
		return
	}
	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	meta := records.NewDocument(regID, name)
	meta.URL = a.objectStorage.URL(obj.Key)
	meta.ContentType = obj.ContentType
	meta.Size = int64(len(obj.Data))
	meta.ObjectKey = obj.Key
	if err := records.Validate(meta); err != nil {
		errors.ErrInvalidRecordData.WithErr(err).Write(w)
		return
	}
	ref, err := coll.Doc(meta.ID)
	if err != nil {
		errors.ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	doc, err := docstore.Encode(meta)
	if err != nil {
		errors.ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	if err := a.guarded.Set(r.Context(), ref, doc); err != nil {
		storeError(err).Write(w)
		return
	}
	log.Infow("document uploaded", "registrationId", regID, "document", meta.ID, "key", obj.Key)
	apicommon.HTTPWriteJSON(w, meta)
}

// deleteDocumentHandler godoc
//
//	@Summary		Remove a document
//	@Description	Remove the metadata of a document of a member. The stored content is removed too
//	@Description	once no other document of the member refers to it, since identical uploads share it.
//	@Tags			records
//	@Security		BearerAuth
//	@Param			regId	path		string	true	"Registration id"
//	@Param			docId	path		string	true	"Document id"
//	@Success		200		{string}	string	"OK"
//	@Failure		403		{object}	errors.Error
//	@Failure		404		{object}	errors.Error
//	@Router			/users/{regId}/documents/{docId} [delete]
func (a *API) deleteDocumentHandler(w http.ResponseWriter, r *http.Request) {
	coll, err := records.DocumentsCollection(chi.URLParam(r, "regId"))
	if err != nil {
		errors.ErrMalformedURLParam.WithErr(err).Write(w)
		return
	}
	ref, err := coll.Doc(chi.URLParam(r, "docId"))
	if err != nil {
		errors.ErrMalformedURLParam.WithErr(err).Write(w)
		return
	}
	snap, err := a.guarded.Get(r.Context(), ref)
	if err != nil {
		storeError(err).Write(w)
		return
	}
	if !snap.Exists {
		errors.ErrDocumentNotFound.Write(w)
		return
	}
	if err := a.guarded.Delete(r.Context(), ref); err != nil {
		storeError(err).Write(w)
		return
	}
	var meta records.Document
	if err := snap.DataTo(&meta); err != nil {
		log.Warnw("cannot decode removed document", "path", ref.Path(), "error", err)
	} else if err := a.releaseObject(r, coll, &meta); err != nil {
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	apicommon.HTTPWriteOK(w)
}

// releaseObject deletes the stored content of a removed document when no
// other document of the same member still points at it.
func (a *API) releaseObject(r *http.Request, coll *docstore.CollectionRef, meta *records.Document) error {
	key := meta.ObjectKey
	if a.objectStorage == nil || key == "" || objectstorage.OwnerOf(key) != meta.UserID {
		return nil
	}
	others, err := a.guarded.List(r.Context(), coll.Query().Where("objectKey", key).Limit(1))
	if err != nil {
		return err
	}
	if len(others) > 0 {
		log.Debugw("stored content still in use", "key", key)
		return nil
	}
	if err := a.objectStorage.Delete(r.Context(), key); err != nil && !goerrors.Is(err, objectstorage.ErrorObjectNotFound) {
		return err
	}
	log.Infow("document content removed", "registrationId", meta.UserID, "key", key)
	return nil
}

// storageDownloadHandler serves uploaded files.
func (a *API) storageDownloadHandler(w http.ResponseWriter, r *http.Request) {
	if a.objectStorage == nil {
		errors.ErrNotSupported.With("object storage not configured").Write(w)
		return
	}
	a.objectStorage.DownloadHandler(w, r)
}
