package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/infinityplans/portal/api/apicommon"
	"github.com/infinityplans/portal/binding"
	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/errors"
	"github.com/infinityplans/portal/records"
	"go.vocdoni.io/dvote/log"
)

// sseHeartbeat is the interval between keep-alive comments on event streams.
const sseHeartbeat = 30 * time.Second

// sseWriter writes server-sent events.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter starts an event stream on w. It writes the error response and
// returns nil when the writer cannot flush.
func newSSEWriter(w http.ResponseWriter) *sseWriter {
	flusher, ok := w.(http.Flusher)
	if !ok {
		errors.ErrStreamingNotSupported.Write(w)
		return nil
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}
}

func (s *sseWriter) event(name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) heartbeat() error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// watchRecordHandler godoc
//
//	@Summary		Watch a record
//	@Description	Stream the state of a record as server-sent "state" events. A new event is sent
//	@Description	every time the stored record changes. The stream ends after an error event, such
//	@Description	as a permission denial.
//	@Tags			records
//	@Produce		text/event-stream
//	@Security		BearerAuth
//	@Param			regId	path		string	true	"Registration id"
//	@Param			kind	path		string	true	"Record kind"
//	@Success		200		{object}	apicommon.WatchEvent
//	@Failure		400		{object}	errors.Error
//	@Router			/users/{regId}/records/{kind}/watch [get]
func (a *API) watchRecordHandler(w http.ResponseWriter, r *http.Request) {
	kind, ok := memberKind(r)
	if !ok {
		errors.ErrUnknownRecordKind.Write(w)
		return
	}
	regID := chi.URLParam(r, "regId")
	opts := []binding.Option{binding.WithContext(r.Context()), binding.WithEmitter(a.emitter)}

	var (
		current   func() apicommon.WatchEvent
		bind      func()
		subscribe func(func()) func()
		closer    func()
	)
	if kind == records.KindDocuments {
		coll, err := records.DocumentsCollection(regID)
		if err != nil {
			errors.ErrMalformedURLParam.WithErr(err).Write(w)
			return
		}
		b := binding.NewCollection[records.Document](a.guarded, opts...)
		current = func() apicommon.WatchEvent {
			st := b.State()
			return watchEvent(st.Loading, st.Err, func() (any, error) { return documentList(st.Data), nil })
		}
		bind = func() { b.Bind(coll.Query()) }
		subscribe = func(fn func()) func() {
			return b.Subscribe(func(binding.State[[]binding.Entry[records.Document]]) { fn() })
		}
		closer = b.Close
	} else {
		ref, err := records.RefFor(kind, regID)
		if err != nil {
			errors.ErrMalformedURLParam.WithErr(err).Write(w)
			return
		}
		b := binding.NewDoc[docstore.Document](a.guarded, opts...)
		current = func() apicommon.WatchEvent {
			st := b.State()
			return watchEvent(st.Loading, st.Err, func() (any, error) { return decodeRecord(kind, st.Data) })
		}
		bind = func() { b.Bind(ref) }
		subscribe = func(fn func()) func() {
			return b.Subscribe(func(binding.State[*docstore.Document]) { fn() })
		}
		closer = b.Close
	}
	defer closer()

	sse := newSSEWriter(w)
	if sse == nil {
		return
	}
	// listeners only signal, the state is read again on this goroutine
	changed := make(chan struct{}, 1)
	bind()
	unsubscribe := subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := sse.heartbeat(); err != nil {
				return
			}
		case <-changed:
			ev := current()
			if err := sse.event("state", ev); err != nil {
				log.Debugw("watch stream closed", "path", r.URL.Path, "error", err)
				return
			}
			if ev.Error != "" {
				return
			}
		}
	}
}

// watchEvent builds the event for a binding state. data is only called for
// settled states without error.
func watchEvent(loading bool, err error, data func() (any, error)) apicommon.WatchEvent {
	ev := apicommon.WatchEvent{Loading: loading}
	if err != nil {
		ev.Error = err.Error()
		return ev
	}
	if loading {
		return ev
	}
	v, err := data()
	if err == nil {
		ev.Data, err = json.Marshal(v)
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// diagnosticsStreamHandler godoc
//
//	@Summary		Stream permission errors
//	@Description	Stream the permission errors raised by real-time subscriptions as server-sent
//	@Description	"permission-error" events. The retained recent errors are sent first.
//	@Tags			diagnostics
//	@Produce		text/event-stream
//	@Security		BearerAuth
//	@Success		200	{object}	emitter.PermissionError
//	@Failure		403	{object}	errors.Error
//	@Router			/diagnostics/errors [get]
func (a *API) diagnosticsStreamHandler(w http.ResponseWriter, r *http.Request) {
	events, disconnect := a.diagnostics.Connect()
	defer disconnect()
	sse := newSSEWriter(w)
	if sse == nil {
		return
	}
	for _, perr := range a.diagnostics.Recent() {
		if err := sse.event("permission-error", perr); err != nil {
			return
		}
	}
	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := sse.heartbeat(); err != nil {
				return
			}
		case perr := <-events:
			if err := sse.event("permission-error", perr); err != nil {
				return
			}
		}
	}
}

// diagnosticsRecentHandler godoc
//
//	@Summary		Recent permission errors
//	@Description	List the last permission errors raised by real-time subscriptions, oldest first
//	@Tags			diagnostics
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	apicommon.DiagnosticsResponse
//	@Failure		403	{object}	errors.Error
//	@Router			/diagnostics/errors/recent [get]
func (a *API) diagnosticsRecentHandler(w http.ResponseWriter, _ *http.Request) {
	apicommon.HTTPWriteJSON(w, &apicommon.DiagnosticsResponse{Errors: a.diagnostics.Recent()})
}
