package middleware

import (
	"net/http"
	"slices"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/transport"
	"github.com/frahmantamala/orgtree/pkg/logger"
)

// RequireRoles lets a request through only when the authenticated actor holds
// one of roles. It must run after Authenticate.
func RequireRoles(base *transport.BaseHandler, roles ...internal.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := internal.ActorFromContext(r.Context())
			if !ok {
				base.WriteError(w, r, internal.ErrMissingToken)
				return
			}

			if !slices.Contains(roles, actor.Role) {
				logger.From(r.Context()).Warn("access denied: role not permitted",
					"actor_id", actor.ID,
					"role", actor.Role,
					"required_roles", roles)
				base.WriteError(w, r, internal.ErrRoleNotPermitted)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
