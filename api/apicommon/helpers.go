package apicommon

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/infinityplans/portal/auth"
	"go.vocdoni.io/dvote/log"
)

// IdentityFromContext retrieves the identity from the context provided,
// expected to be the context of a request handled by the authenticator
// middleware.
func IdentityFromContext(ctx context.Context) (*auth.Identity, bool) {
	id, ok := ctx.Value(IdentityMetadataKey).(*auth.Identity)
	return id, ok && id != nil
}

// WithIdentity returns a copy of ctx carrying the identity.
func WithIdentity(ctx context.Context, id *auth.Identity) context.Context {
	return context.WithValue(ctx, IdentityMetadataKey, id)
}

// CanAccess reports whether the identity may read the records of the member
// with the given registration id.
func CanAccess(id *auth.Identity, regID string) bool {
	return id != nil && (id.Admin || (id.RegistrationID != "" && id.RegistrationID == regID))
}

// HTTPWriteJSON helper function allows to write a JSON response.
func HTTPWriteJSON(w http.ResponseWriter, data any) {
	HTTPWriteJSONStatus(w, http.StatusOK, data)
}

// HTTPWriteJSONStatus writes a JSON response with the given status code.
func HTTPWriteJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// HTTPWriteOK helper function allows to write an OK response.
func HTTPWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}
