package middleware

import (
	"context"
	"net/http"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/transport"
	"github.com/frahmantamala/orgtree/pkg/logger"
)

// Authenticator turns a bearer access token into the acting identity.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (internal.Actor, error)
	RenewAccess(ctx context.Context, accessToken string) (string, error)
}

// Authenticate rejects requests without a valid access token and stores the
// actor in the request context. The request logger gains the actor id. A
// token inside its renew window is replaced and the new one is returned in
// the authorization header.
func Authenticate(authn Authenticator, base *transport.BaseHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accessToken := base.ExtractTokenFromHeader(r)
			if accessToken == "" {
				base.WriteError(w, r, internal.ErrMissingToken)
				return
			}

			actor, err := authn.Authenticate(r.Context(), accessToken)
			if err != nil {
				base.WriteError(w, r, err)
				return
			}

			renewed, err := authn.RenewAccess(r.Context(), accessToken)
			if err != nil {
				base.WriteError(w, r, err)
				return
			}
			if renewed != accessToken {
				base.SetTokenHeaders(w, renewed, "")
				r.Header.Set(transport.HeaderAuthorization, "Bearer "+renewed)
			}

			ctx := internal.ContextWithActor(r.Context(), actor)
			ctx = logger.With(ctx, "actorID", actor.ID, "role", string(actor.Role))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
