package api

const (
	// GET /ping to check the server is alive
	pingEndpoint = "/ping"

	// auth routes

	// POST /auth/login to sign in with email and password and get a JWT token
	authLoginEndpoint = "/auth/login"
	// POST /auth/firebase to exchange a Firebase ID token for a JWT token
	authFirebaseEndpoint = "/auth/firebase"
	// POST /auth/refresh to refresh the JWT token
	authRefreshTokenEndpoint = "/auth/refresh"
	// POST /auth/logout to revoke the JWT token
	authLogoutEndpoint = "/auth/logout"
	// PUT /auth/password to change the password of the signed-in account
	authPasswordEndpoint = "/auth/password"
	// POST /auth/password/recovery to request a password reset code
	authRecoveryEndpoint = "/auth/password/recovery"
	// POST /auth/password/reset to set a new password with a reset code
	authResetEndpoint = "/auth/password/reset"

	// session routes

	// GET /session to get the signed-in identity and profile, or the profile
	// of the member named by the impersonate query parameter
	sessionEndpoint = "/session"

	// user routes

	// POST /users to register a new member (admin)
	usersEndpoint = "/users"
	// GET /admin/users to search members by registration id, email or mobile
	adminUsersEndpoint = "/admin/users"
	// GET /users/{regId}/records/{kind} to read a record
	// PUT /users/{regId}/records/{kind} to overwrite a record (admin)
	userRecordEndpoint = "/users/{regId}/records/{kind}"
	// GET /users/{regId}/records/{kind}/watch to follow a record as a stream
	// of server-sent events
	userRecordWatchEndpoint = "/users/{regId}/records/{kind}/watch"
	// POST /users/{regId}/records/{kind}/{list} to add a statement or item
	userRecordListEndpoint = "/users/{regId}/records/{kind}/{list}"
	// DELETE /users/{regId}/records/{kind}/{list}/{itemId} to remove one
	userRecordItemEndpoint = "/users/{regId}/records/{kind}/{list}/{itemId}"
	// PUT /users/{regId}/profile/{section} to update a profile section
	userProfileSectionEndpoint = "/users/{regId}/profile/{section}"
	// POST /users/{regId}/documents to upload a document (admin)
	userDocumentsEndpoint = "/users/{regId}/documents"
	// DELETE /users/{regId}/documents/{docId} to remove a document (admin)
	userDocumentEndpoint = "/users/{regId}/documents/{docId}"

	// storage routes

	// GET /storage/{owner}/{objectName} to download an uploaded file
	storageObjectEndpoint = "/storage/{owner}/{objectName}"

	// site settings routes

	// GET /settings to get the public site settings
	// PUT /settings to overwrite the site settings (admin)
	settingsEndpoint = "/settings"
	// POST /settings/{list} to add a hero slide, ad slot or feature (admin)
	settingsListEndpoint = "/settings/{list}"
	// DELETE /settings/{list}/{itemId} to remove one (admin)
	settingsItemEndpoint = "/settings/{list}/{itemId}"
	// POST /contact to send a message through the contact form
	contactEndpoint = "/contact"

	// diagnostics routes

	// GET /diagnostics/errors to stream permission errors as server-sent
	// events (admin)
	diagnosticsErrorsEndpoint = "/diagnostics/errors"
	// GET /diagnostics/errors/recent to list the last permission errors
	diagnosticsRecentEndpoint = "/diagnostics/errors/recent"

	// POST /fixtures/{name} to replace a set of JSON fixture documents (admin)
	fixturesEndpoint = "/fixtures/{name}"
)
