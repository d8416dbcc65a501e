package api

import (
	"context"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
	"github.com/infinityplans/portal/api/apicommon"
	"github.com/infinityplans/portal/auth"
	"github.com/infinityplans/portal/docstore/rules"
	"github.com/infinityplans/portal/errors"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// authenticator is a middleware that checks the JWT token verified by
// jwtauth.Verifier. If the token is valid and not revoked, it decodes the
// identity from its claims and adds it to the request context, along with
// the principal the document store access rules are checked against.
func (a *API) authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			errors.ErrUnauthorized.Write(w)
			return
		}
		if token == nil || jwt.Validate(token, jwt.WithRequiredClaim(userIDClaim)) != nil {
			errors.ErrUnauthorized.Withf("userId claim not found in JWT token").Write(w)
			return
		}
		if a.revoked.Contains(token.JwtID()) {
			errors.ErrUnauthorized.With("token revoked").Write(w)
			return
		}
		id := identityFromClaims(claims)
		ctx := apicommon.WithIdentity(r.Context(), id)
		ctx = context.WithValue(ctx, apicommon.TokenIDMetadataKey, token.JwtID())
		ctx = rules.WithPrincipal(ctx, &rules.Principal{ID: id.RegistrationID, Admin: id.Admin})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminOnly rejects requests of members without the admin role. It must run
// after the authenticator.
func (*API) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := apicommon.IdentityFromContext(r.Context())
		if !ok {
			errors.ErrUnauthorized.Write(w)
			return
		}
		if !id.Admin {
			errors.ErrAdminRequired.Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// optionalIdentity returns the identity of the request token on routes
// without the authenticator. Missing, invalid and revoked tokens yield no
// identity.
func (a *API) optionalIdentity(r *http.Request) (*auth.Identity, bool) {
	token, err := jwtauth.VerifyRequest(a.jwt, r, jwtauth.TokenFromHeader)
	if err != nil || token == nil || jwt.Validate(token, jwt.WithRequiredClaim(userIDClaim)) != nil {
		return nil, false
	}
	if a.revoked.Contains(token.JwtID()) {
		return nil, false
	}
	claims, err := token.AsMap(r.Context())
	if err != nil {
		return nil, false
	}
	return identityFromClaims(claims), true
}
