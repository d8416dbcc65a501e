// Package api provides the HTTP API of the plan portal
//
//	@title						Plan Portal API
//	@version					1.0
//	@description				Member dashboard and admin console of the plan portal
//
//	@host						localhost:8080
//	@BasePath					/
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and the JWT token.
//
//	@tag.name					auth
//	@tag.description			Authentication operations
//
//	@tag.name					users
//	@tag.description			Member registration and search
//
//	@tag.name					records
//	@tag.description			Member records: profile, plans and documents
//
//	@tag.name					settings
//	@tag.description			Site settings and contact form
//
//	@tag.name					storage
//	@tag.description			Object storage operations
//
//	@tag.name					diagnostics
//	@tag.description			Permission error diagnostics
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/infinityplans/portal/api/apicommon"
	"github.com/infinityplans/portal/auth"
	"github.com/infinityplans/portal/docstore"
	"github.com/infinityplans/portal/docstore/rules"
	"github.com/infinityplans/portal/emitter"
	"github.com/infinityplans/portal/notifications"
	"github.com/infinityplans/portal/objectstorage"
	"github.com/infinityplans/portal/settings"
	"github.com/infinityplans/portal/users"
	"github.com/infinityplans/portal/validator"
	"go.vocdoni.io/dvote/log"
)

const (
	// revokedTokensSize bounds the number of revoked tokens remembered until
	// they expire.
	revokedTokensSize = 10000
	// recentErrors is the number of permission errors kept for diagnostics.
	recentErrors = 100
	// requestTimeout bounds every request but the streaming ones.
	requestTimeout = 45 * time.Second
)

// Config holds the API dependencies. Store is the document store without
// access rules; the API wraps it with rules.Portal for every request made on
// behalf of a member.
type Config struct {
	Host   string
	Port   int
	Secret string
	Store  docstore.Store
	Auth   auth.Provider
	// Settings follows the site settings document.
	Settings    *settings.Service
	MailService notifications.NotificationService
	SMSService  notifications.NotificationService
	// ObjectStorage keeps uploaded documents. Uploads are disabled without it.
	ObjectStorage *objectstorage.Client
	// Emitter receives the permission errors of the bindings run by the API.
	// It defaults to emitter.Default().
	Emitter   *emitter.Emitter
	WebAppURL string
	ServerURL string
}

// API type represents the API HTTP server with JWT authentication capabilities.
type API struct {
	store         docstore.Store
	guarded       *rules.Store
	directory     *users.Directory
	auth          auth.Provider
	jwt           *jwtauth.JWTAuth
	revoked       *expirable.LRU[string, struct{}]
	settings      *settings.Service
	mail          notifications.NotificationService
	sms           notifications.NotificationService
	objectStorage *objectstorage.Client
	emitter       *emitter.Emitter
	diagnostics   *emitter.Diagnostics
	validator     *validator.Validator
	host          string
	port          int
	webAppURL     string
	serverURL     string
	router        *chi.Mux
}

// New creates a new API HTTP server. It does not start the server. Use Start() for that.
func New(conf *Config) *API {
	if conf == nil || conf.Store == nil || conf.Auth == nil || conf.Settings == nil {
		return nil
	}
	em := conf.Emitter
	if em == nil {
		em = emitter.Default()
	}
	// set the ServerURL for the object storage download links
	if conf.ObjectStorage != nil && conf.ServerURL != "" {
		conf.ObjectStorage.ServerURL = conf.ServerURL
	}
	return &API{
		store:         conf.Store,
		guarded:       rules.Wrap(conf.Store, rules.Portal),
		directory:     users.New(conf.Store),
		auth:          conf.Auth,
		jwt:           jwtauth.New("HS256", []byte(conf.Secret), nil),
		revoked:       expirable.NewLRU[string, struct{}](revokedTokensSize, nil, apicommon.JWTExpiration),
		settings:      conf.Settings,
		mail:          conf.MailService,
		sms:           conf.SMSService,
		objectStorage: conf.ObjectStorage,
		emitter:       em,
		diagnostics:   emitter.NewDiagnostics(em, recentErrors),
		validator:     validator.Default(),
		host:          conf.Host,
		port:          conf.Port,
		webAppURL:     conf.WebAppURL,
		serverURL:     conf.ServerURL,
	}
}

// Start starts the API HTTP server (non blocking).
func (a *API) Start() {
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", a.host, a.port), a.Router()); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
}

// Router returns the HTTP handler of the API, building it on first use.
func (a *API) Router() http.Handler {
	if a.router == nil {
		a.router = a.initRouter()
	}
	return a.router
}

// Close detaches the diagnostics listener from the emitter.
func (a *API) Close() {
	a.diagnostics.Close()
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() *chi.Mux {
	// Create the router with a basic middleware stack
	r := chi.NewRouter()
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Throttle(100))
	r.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))

	// protected routes
	r.Group(func(r chi.Router) {
		// seek, verify and validate JWT tokens
		r.Use(jwtauth.Verifier(a.jwt))
		// handle valid JWT tokens
		r.Use(a.authenticator)

		// streams are not bound by the request timeout
		log.Infow("new route", "method", "GET", "path", userRecordWatchEndpoint)
		r.Get(userRecordWatchEndpoint, a.watchRecordHandler)
		log.Infow("new route", "method", "GET", "path", diagnosticsErrorsEndpoint)
		r.With(a.adminOnly).Get(diagnosticsErrorsEndpoint, a.diagnosticsStreamHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			// refresh the token
			log.Infow("new route", "method", "POST", "path", authRefreshTokenEndpoint)
			r.Post(authRefreshTokenEndpoint, a.refreshTokenHandler)
			// revoke the token
			log.Infow("new route", "method", "POST", "path", authLogoutEndpoint)
			r.Post(authLogoutEndpoint, a.logoutHandler)
			// change the password
			log.Infow("new route", "method", "PUT", "path", authPasswordEndpoint)
			r.With(a.validator.ValidateMiddleware(apicommon.ChangePasswordRequest{})).
				Put(authPasswordEndpoint, a.changePasswordHandler)
			// session state, optionally impersonating a member
			log.Infow("new route", "method", "GET", "path", sessionEndpoint)
			r.Get(sessionEndpoint, a.sessionHandler)
			// read a record
			log.Infow("new route", "method", "GET", "path", userRecordEndpoint)
			r.Get(userRecordEndpoint, a.recordHandler)
			// update a profile section
			log.Infow("new route", "method", "PUT", "path", userProfileSectionEndpoint)
			r.Put(userProfileSectionEndpoint, a.updateProfileSectionHandler)
			// download an uploaded file
			log.Infow("new route", "method", "GET", "path", storageObjectEndpoint)
			r.Get(storageObjectEndpoint, a.storageDownloadHandler)

			// admin routes
			r.Group(func(r chi.Router) {
				r.Use(a.adminOnly)
				// register a member
				log.Infow("new route", "method", "POST", "path", usersEndpoint)
				r.With(a.validator.ValidateMiddleware(apicommon.RegisterRequest{})).
					Post(usersEndpoint, a.registerHandler)
				// search members
				log.Infow("new route", "method", "GET", "path", adminUsersEndpoint)
				r.Get(adminUsersEndpoint, a.searchUsersHandler)
				// overwrite a record
				log.Infow("new route", "method", "PUT", "path", userRecordEndpoint)
				r.Put(userRecordEndpoint, a.replaceRecordHandler)
				// add a statement or item
				log.Infow("new route", "method", "POST", "path", userRecordListEndpoint)
				r.Post(userRecordListEndpoint, a.addEntryHandler)
				// remove a statement or item
				log.Infow("new route", "method", "DELETE", "path", userRecordItemEndpoint)
				r.Delete(userRecordItemEndpoint, a.removeEntryHandler)
				// upload a document
				log.Infow("new route", "method", "POST", "path", userDocumentsEndpoint)
				r.Post(userDocumentsEndpoint, a.uploadDocumentHandler)
				// remove a document
				log.Infow("new route", "method", "DELETE", "path", userDocumentEndpoint)
				r.Delete(userDocumentEndpoint, a.deleteDocumentHandler)
				// overwrite the site settings
				log.Infow("new route", "method", "PUT", "path", settingsEndpoint)
				r.Put(settingsEndpoint, a.replaceSettingsHandler)
				// add a settings entry
				log.Infow("new route", "method", "POST", "path", settingsListEndpoint)
				r.Post(settingsListEndpoint, a.addSettingsEntryHandler)
				// remove a settings entry
				log.Infow("new route", "method", "DELETE", "path", settingsItemEndpoint)
				r.Delete(settingsItemEndpoint, a.removeSettingsEntryHandler)
				// recent permission errors
				log.Infow("new route", "method", "GET", "path", diagnosticsRecentEndpoint)
				r.Get(diagnosticsRecentEndpoint, a.diagnosticsRecentHandler)
				// replace fixture documents
				log.Infow("new route", "method", "POST", "path", fixturesEndpoint)
				r.Post(fixturesEndpoint, a.fixturesHandler)
			})
		})
	})

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Get(pingEndpoint, func(w http.ResponseWriter, _ *http.Request) {
			if _, err := w.Write([]byte(".")); err != nil {
				log.Warnw("failed to write ping response", "error", err)
			}
		})
		// login
		log.Infow("new route", "method", "POST", "path", authLoginEndpoint)
		r.With(a.validator.ValidateMiddleware(auth.Credentials{})).
			Post(authLoginEndpoint, a.authLoginHandler)
		// login with a Firebase ID token
		log.Infow("new route", "method", "POST", "path", authFirebaseEndpoint)
		r.With(a.validator.ValidateMiddleware(apicommon.FirebaseLoginRequest{})).
			Post(authFirebaseEndpoint, a.authFirebaseHandler)
		// request a password reset
		log.Infow("new route", "method", "POST", "path", authRecoveryEndpoint)
		r.With(a.validator.ValidateMiddleware(apicommon.PasswordRecoveryRequest{})).
			Post(authRecoveryEndpoint, a.recoverPasswordHandler)
		// reset the password
		log.Infow("new route", "method", "POST", "path", authResetEndpoint)
		r.With(a.validator.ValidateMiddleware(apicommon.PasswordResetRequest{})).
			Post(authResetEndpoint, a.resetPasswordHandler)
		// public site settings
		log.Infow("new route", "method", "GET", "path", settingsEndpoint)
		r.Get(settingsEndpoint, a.settingsHandler)
		// contact form
		log.Infow("new route", "method", "POST", "path", contactEndpoint)
		r.With(a.validator.ValidateMiddleware(apicommon.ContactRequest{})).
			Post(contactEndpoint, a.contactHandler)
	})
	return r
}
