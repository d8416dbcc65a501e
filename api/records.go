package api

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"io"
	"net/http"
	"reflect"

	"github.com/go-chi/chi/v5"
	"github.com/infinityplans/portal/api/apicommon"
	"github.com/infinityplans/portal/binding"
	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/editor"
	"github.com/infinityplans/portal/errors"
	"github.com/infinityplans/portal/records"
	"github.com/infinityplans/portal/validator"
)

// maxBodySize bounds the JSON bodies read by the record handlers.
const maxBodySize = 1 << 20

var errItemNotFound = fmt.Errorf("item not found")

// memberKind parses the kind URL parameter, accepting only the kinds stored
// under a member.
func memberKind(r *http.Request) (records.Kind, bool) {
	kind, err := kindFromRequest(r)
	if err != nil || kind == records.KindSiteSettings {
		return "", false
	}
	return kind, true
}

// recordHandler godoc
//
//	@Summary		Read a record
//	@Description	Read a record of a member: profile, accidental-insurance, scholarship,
//	@Description	interest-fund, maturity-fund, joining-gift or documents. A member without the
//	@Description	record gets the empty record with exists set to false. Members can only read
//	@Description	their own records.
//	@Tags			records
//	@Produce		json
//	@Security		BearerAuth
//	@Param			regId	path		string	true	"Registration id"
//	@Param			kind	path		string	true	"Record kind"
//	@Success		200		{object}	apicommon.RecordResponse
//	@Failure		400		{object}	errors.Error
//	@Failure		403		{object}	errors.Error
//	@Failure		404		{object}	errors.Error	"Member not found"
//	@Router			/users/{regId}/records/{kind} [get]
func (a *API) recordHandler(w http.ResponseWriter, r *http.Request) {
	kind, ok := memberKind(r)
	if !ok {
		errors.ErrUnknownRecordKind.Write(w)
		return
	}
	regID := chi.URLParam(r, "regId")
	res, err := a.readRecord(r.Context(), kind, regID)
	if err != nil {
		storeError(err).Write(w)
		return
	}
	if !res.Exists && kind != records.KindDocuments {
		// the read was allowed, tell a missing member from a missing record
		if _, err := a.directory.Profile(r.Context(), regID); err != nil {
			if docstore.IsNotFound(err) {
				errors.ErrUserNotFound.Withf("registration id %s", regID).Write(w)
				return
			}
			storeError(err).Write(w)
			return
		}
	}
	apicommon.HTTPWriteJSON(w, res)
}

// readRecord reads a record through a binding over the guarded store, so a
// denied read is reported to the emitter like any other subscription.
func (a *API) readRecord(ctx context.Context, kind records.Kind, regID string) (*apicommon.RecordResponse, error) {
	opts := []binding.Option{binding.WithContext(ctx), binding.WithEmitter(a.emitter)}
	if kind == records.KindDocuments {
		coll, err := records.DocumentsCollection(regID)
		if err != nil {
			return nil, err
		}
		b := binding.NewCollection[records.Document](a.guarded, opts...)
		defer b.Close()
		b.Bind(coll.Query())
		st, err := firstSettled(ctx, b.Subscribe)
		if err != nil {
			return nil, err
		}
		if st.Err != nil {
			return nil, st.Err
		}
		return &apicommon.RecordResponse{
			Kind:   kind,
			Exists: true,
			Path:   coll.Path(),
			Record: documentList(st.Data),
		}, nil
	}
	ref, err := records.RefFor(kind, regID)
	if err != nil {
		return nil, err
	}
	b := binding.NewDoc[docstore.Document](a.guarded, opts...)
	defer b.Close()
	b.Bind(ref)
	st, err := firstSettled(ctx, b.Subscribe)
	if err != nil {
		return nil, err
	}
	if st.Err != nil {
		return nil, st.Err
	}
	rec, err := decodeRecord(kind, st.Data)
	if err != nil {
		return nil, err
	}
	return &apicommon.RecordResponse{
		Kind:   kind,
		Exists: st.Data != nil,
		Path:   ref.Path(),
		Record: rec,
	}, nil
}

// firstSettled waits for the first state of a bound binding that is not
// loading. It must be called after Bind.
func firstSettled[V any](ctx context.Context, subscribe func(func(binding.State[V])) func()) (binding.State[V], error) {
	ch := make(chan binding.State[V], 1)
	unsubscribe := subscribe(func(st binding.State[V]) {
		if st.Loading {
			return
		}
		select {
		case ch <- st:
		default:
		}
	})
	defer unsubscribe()
	select {
	case st := <-ch:
		return st, nil
	case <-ctx.Done():
		return binding.State[V]{}, ctx.Err()
	}
}

// decodeRecord converts stored data into the record type of the kind. Nil
// data yields the empty record.
func decodeRecord(kind records.Kind, data *docstore.Document) (any, error) {
	rec, err := records.New(kind)
	if err != nil {
		return nil, err
	}
	if data != nil {
		if err := docstore.Decode(*data, rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func documentList(entries []binding.Entry[records.Document]) []*records.Document {
	docs := make([]*records.Document, 0, len(entries))
	for _, e := range entries {
		doc := e.Value
		doc.ID = e.ID
		docs = append(docs, &doc)
	}
	return docs
}

// replaceRecordHandler godoc
//
//	@Summary		Overwrite a record
//	@Description	Replace a record of a member with the request body. The whole document is
//	@Description	written and the last save wins.
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			regId	path		string	true	"Registration id"
//	@Param			kind	path		string	true	"Record kind"
//	@Success		200		{object}	apicommon.RecordResponse
//	@Failure		400		{object}	errors.Error
//	@Failure		403		{object}	errors.Error
//	@Failure		404		{object}	errors.Error
//	@Router			/users/{regId}/records/{kind} [put]
func (a *API) replaceRecordHandler(w http.ResponseWriter, r *http.Request) {
	kind, ok := memberKind(r)
	if !ok || kind == records.KindDocuments {
		errors.ErrUnknownRecordKind.Write(w)
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	regID := chi.URLParam(r, "regId")
	ed, ok := a.runEditor(w, r, kind, searchMember(regID), func(rec any) error {
		return replaceRecord(kind, rec, body)
	})
	if !ok {
		return
	}
	apicommon.HTTPWriteJSON(w, editorResponse(ed))
}

// replaceRecord overwrites rec with the record decoded from body. The
// identity fields of a profile are kept.
func replaceRecord(kind records.Kind, rec any, body []byte) error {
	fresh, err := records.New(kind)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, fresh); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	if current, ok := rec.(*records.UserProfile); ok {
		p := fresh.(*records.UserProfile)
		p.UID = current.UID
		p.RegistrationID = current.RegistrationID
		p.CreatedAt = current.CreatedAt
	}
	reflect.ValueOf(rec).Elem().Set(reflect.ValueOf(fresh).Elem())
	return nil
}

// updateProfileSectionHandler godoc
//
//	@Summary		Update a profile section
//	@Description	Replace one section of a profile: personal_info, address, bank_details or
//	@Description	nominee_details. Members can update their own profile.
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			regId	path		string	true	"Registration id"
//	@Param			section	path		string	true	"Profile section"
//	@Success		200		{object}	apicommon.RecordResponse
//	@Failure		400		{object}	errors.Error
//	@Failure		403		{object}	errors.Error
//	@Failure		404		{object}	errors.Error
//	@Router			/users/{regId}/profile/{section} [put]
func (a *API) updateProfileSectionHandler(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	regID := chi.URLParam(r, "regId")
	section := records.Section(chi.URLParam(r, "section"))
	ed, ok := a.runEditor(w, r, records.KindProfile, searchMember(regID), func(rec any) error {
		return rec.(*records.UserProfile).ApplySection(section, body)
	})
	if !ok {
		return
	}
	apicommon.HTTPWriteJSON(w, editorResponse(ed))
}

// addEntryHandler godoc
//
//	@Summary		Add a statement or item
//	@Description	Append an entry to a list of a record, such as the statements of an insurance
//	@Description	or the children of a scholarship. The entry gets a new id.
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			regId	path		string	true	"Registration id"
//	@Param			kind	path		string	true	"Record kind"
//	@Param			list	path		string	true	"List name"
//	@Success		200		{object}	apicommon.AddEntryResponse
//	@Failure		400		{object}	errors.Error
//	@Failure		403		{object}	errors.Error
//	@Failure		404		{object}	errors.Error
//	@Router			/users/{regId}/records/{kind}/{list} [post]
func (a *API) addEntryHandler(w http.ResponseWriter, r *http.Request) {
	kind, ok := memberKind(r)
	if !ok || kind == records.KindDocuments {
		errors.ErrUnknownRecordKind.Write(w)
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	list := chi.URLParam(r, "list")
	var id records.ItemID
	ed, ok := a.runEditor(w, r, kind, searchMember(chi.URLParam(r, "regId")), func(rec any) (err error) {
		id, err = addEntry(rec, list, body)
		return err
	})
	if !ok {
		return
	}
	apicommon.HTTPWriteJSON(w, &apicommon.AddEntryResponse{ID: id, Record: ed.Record()})
}

// removeEntryHandler godoc
//
//	@Summary		Remove a statement or item
//	@Description	Remove the entry with the given id from a list of a record.
//	@Tags			records
//	@Produce		json
//	@Security		BearerAuth
//	@Param			regId	path		string	true	"Registration id"
//	@Param			kind	path		string	true	"Record kind"
//	@Param			list	path		string	true	"List name"
//	@Param			itemId	path		string	true	"Entry id"
//	@Success		200		{object}	apicommon.RecordResponse
//	@Failure		400		{object}	errors.Error
//	@Failure		403		{object}	errors.Error
//	@Failure		404		{object}	errors.Error
//	@Router			/users/{regId}/records/{kind}/{list}/{itemId} [delete]
func (a *API) removeEntryHandler(w http.ResponseWriter, r *http.Request) {
	kind, ok := memberKind(r)
	if !ok || kind == records.KindDocuments {
		errors.ErrUnknownRecordKind.Write(w)
		return
	}
	list := chi.URLParam(r, "list")
	itemID := records.ItemID(chi.URLParam(r, "itemId"))
	ed, ok := a.runEditor(w, r, kind, searchMember(chi.URLParam(r, "regId")), func(rec any) error {
		return removeEntry(rec, list, itemID)
	})
	if !ok {
		return
	}
	apicommon.HTTPWriteJSON(w, editorResponse(ed))
}

func addEntry(rec any, list string, body []byte) (records.ItemID, error) {
	lr, ok := rec.(records.ListRecord)
	if !ok {
		return "", fmt.Errorf("%w %q", records.ErrUnknownList, list)
	}
	return lr.AddEntry(list, body)
}

func removeEntry(rec any, list string, id records.ItemID) error {
	lr, ok := rec.(records.ListRecord)
	if !ok {
		return fmt.Errorf("%w %q", records.ErrUnknownList, list)
	}
	removed, err := lr.RemoveEntry(list, id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: %s", errItemNotFound, id)
	}
	return nil
}

// searchMember opens the record of the member with the given registration
// id.
func searchMember(regID string) func(context.Context, editor.RecordEditor) error {
	return func(ctx context.Context, ed editor.RecordEditor) error {
		return ed.Search(ctx, regID)
	}
}

// runEditor runs the editing workflow of one request: open the record, apply
// edit to the draft and save it. It writes the error response and returns
// false on failure.
func (a *API) runEditor(w http.ResponseWriter, r *http.Request, kind records.Kind,
	open func(context.Context, editor.RecordEditor) error, edit func(rec any) error,
) (editor.RecordEditor, bool) {
	ed, err := editor.ForKind(a.guarded, a.directory, kind)
	if err != nil {
		errors.ErrUnknownRecordKind.WithErr(err).Write(w)
		return nil, false
	}
	if err := open(r.Context(), ed); err != nil {
		if docstore.IsNotFound(err) {
			errors.ErrUserNotFound.WithErr(err).Write(w)
			return nil, false
		}
		storeError(err).Write(w)
		return nil, false
	}
	if err := ed.EditRecord(edit); err != nil {
		editError(err).Write(w)
		return nil, false
	}
	if err := ed.Save(r.Context()); err != nil {
		storeError(err).Write(w)
		return nil, false
	}
	return ed, true
}

// editError maps the errors of a draft edit. Anything unknown is a bad
// request body.
func editError(err error) errors.Error {
	var verrs validator.ValidationErrors
	switch {
	case goerrors.Is(err, errItemNotFound):
		return errors.ErrItemNotFound.WithErr(err)
	case goerrors.Is(err, records.ErrUnknownList):
		return errors.ErrMalformedURLParam.WithErr(err)
	case goerrors.Is(err, records.ErrUnknownSection):
		return errors.ErrUnknownSection.WithErr(err)
	case goerrors.As(err, &verrs):
		return errors.ErrInvalidRecordData.WithErr(err).WithData(verrs)
	}
	return errors.ErrInvalidRecordData.WithErr(err)
}

func editorResponse(ed editor.RecordEditor) *apicommon.RecordResponse {
	st := ed.State()
	return &apicommon.RecordResponse{
		Kind:   ed.Kind(),
		Exists: st.Exists,
		Path:   st.Path,
		Status: string(st.Status),
		Record: ed.Record(),
	}
}

// readBody reads a bounded request body. It writes the error response and
// returns false on failure.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		errors.ErrMalformedBody.WithErr(err).Write(w)
		return nil, false
	}
	if len(body) > maxBodySize {
		errors.ErrMalformedBody.With("body too large").Write(w)
		return nil, false
	}
	return body, true
}
