package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/infinityplans/portal/api/apicommon"
	"github.com/infinityplans/portal/editor"
	"github.com/infinityplans/portal/errors"
	"github.com/infinityplans/portal/notifications"
	"github.com/infinityplans/portal/notifications/mailtemplates"
	smtpmail "github.com/infinityplans/portal/notifications/smtp"
	"github.com/infinityplans/portal/records"
	"go.vocdoni.io/dvote/log"
)

// defaultSMTPPort is used when the site settings relay has no port.
const defaultSMTPPort = 587

// openSettings opens the site settings singleton in an editor.
func openSettings(ctx context.Context, ed editor.RecordEditor) error {
	return ed.Open(ctx, records.SettingsRef)
}

// settingsHandler godoc
//
//	@Summary		Get the site settings
//	@Description	Get the public site settings: hero slides, ad slots and features. The SMTP relay
//	@Description	configuration is only returned to administrators.
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	records.SiteSettings
//	@Router			/settings [get]
func (a *API) settingsHandler(w http.ResponseWriter, r *http.Request) {
	current := a.settings.Current()
	if id, ok := a.optionalIdentity(r); ok && id.Admin {
		apicommon.HTTPWriteJSON(w, current)
		return
	}
	apicommon.HTTPWriteJSON(w, current.Public())
}

// replaceSettingsHandler godoc
//
//	@Summary		Overwrite the site settings
//	@Description	Replace the site settings with the request body
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		records.SiteSettings	true	"Site settings"
//	@Success		200		{object}	apicommon.RecordResponse
//	@Failure		400		{object}	errors.Error
//	@Failure		403		{object}	errors.Error
//	@Router			/settings [put]
func (a *API) replaceSettingsHandler(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	ed, ok := a.runEditor(w, r, records.KindSiteSettings, openSettings, func(rec any) error {
		return replaceRecord(records.KindSiteSettings, rec, body)
	})
	if !ok {
		return
	}
	apicommon.HTTPWriteJSON(w, editorResponse(ed))
}

// addSettingsEntryHandler godoc
//
//	@Summary		Add a hero slide, ad slot or feature
//	@Description	Append an entry to a list of the site settings: heroSlides, adSlots or features
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			list	path		string	true	"List name"
//	@Success		200		{object}	apicommon.AddEntryResponse
//	@Failure		400		{object}	errors.Error
//	@Failure		403		{object}	errors.Error
//	@Router			/settings/{list} [post]
func (a *API) addSettingsEntryHandler(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	list := chi.URLParam(r, "list")
	var id records.ItemID
	ed, ok := a.runEditor(w, r, records.KindSiteSettings, openSettings, func(rec any) (err error) {
		id, err = addEntry(rec, list, body)
		return err
	})
	if !ok {
		return
	}
	apicommon.HTTPWriteJSON(w, &apicommon.AddEntryResponse{ID: id, Record: ed.Record()})
}

// removeSettingsEntryHandler godoc
//
//	@Summary		Remove a hero slide, ad slot or feature
//	@Description	Remove the entry with the given id from a list of the site settings
//	@Tags			settings
//	@Produce		json
//	@Security		BearerAuth
//	@Param			list	path		string	true	"List name"
//	@Param			itemId	path		string	true	"Entry id"
//	@Success		200		{object}	apicommon.RecordResponse
//	@Failure		403		{object}	errors.Error
//	@Failure		404		{object}	errors.Error
//	@Router			/settings/{list}/{itemId} [delete]
func (a *API) removeSettingsEntryHandler(w http.ResponseWriter, r *http.Request) {
	list := chi.URLParam(r, "list")
	itemID := records.ItemID(chi.URLParam(r, "itemId"))
	ed, ok := a.runEditor(w, r, records.KindSiteSettings, openSettings, func(rec any) error {
		return removeEntry(rec, list, itemID)
	})
	if !ok {
		return
	}
	apicommon.HTTPWriteJSON(w, editorResponse(ed))
}

// contactHandler godoc
//
//	@Summary		Send a contact request
//	@Description	Relay a message of the public contact form to the contact address of the site
//	@Description	settings, through the SMTP relay of the settings when one is configured.
//	@Tags			settings
//	@Accept			json
//	@Param			request	body		apicommon.ContactRequest	true	"Contact request"
//	@Success		200		{string}	string						"OK"
//	@Failure		400		{object}	errors.Error
//	@Failure		500		{object}	errors.Error
//	@Router			/contact [post]
func (a *API) contactHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := validatedModel[apicommon.ContactRequest](r)
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	relay := a.settings.Current().SMTP
	if relay == nil || relay.ContactAddress == "" {
		errors.ErrNotSupported.With("no contact address configured").Write(w)
		return
	}
	service, err := a.contactService(relay)
	if err != nil {
		errors.ErrNotificationFailure.WithErr(err).Write(w)
		return
	}
	if service == nil {
		errors.ErrNotSupported.With("no mail service configured").Write(w)
		return
	}
	n, err := mailtemplates.ContactNotification.ExecTemplate(req)
	if err != nil {
		errors.ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	n.ToAddress = relay.ContactAddress
	n.ReplyTo = req.Email
	if err := a.sendNotification(r.Context(), service, n); err != nil {
		errors.ErrNotificationFailure.WithErr(err).Write(w)
		return
	}
	log.Infow("contact request relayed", "from", req.Email, "to", relay.ContactAddress)
	apicommon.HTTPWriteOK(w)
}

// contactService returns the mail service relaying contact requests: the
// relay of the site settings when it has a host, the platform mail service
// otherwise. It returns nil when there is neither.
func (a *API) contactService(relay *records.SMTPSettings) (notifications.NotificationService, error) {
	if relay.Host == "" {
		return a.mail, nil
	}
	port := relay.Port
	if port == 0 {
		port = defaultSMTPPort
	}
	from := relay.From
	if from == "" {
		from = relay.ContactAddress
	}
	service := new(smtpmail.Email)
	if err := service.New(&smtpmail.Config{
		FromName:     "Contact form",
		FromAddress:  from,
		SMTPUsername: relay.Username,
		SMTPPassword: relay.Password,
		SMTPServer:   relay.Host,
		SMTPPort:     port,
	}); err != nil {
		return nil, err
	}
	return service, nil
}
