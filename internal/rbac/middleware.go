package rbac

import (
	"log/slog"
	"net/http"

	"github.com/meridian-admin/meridian-admin/internal/platform/httpx"
)

// Middleware wires authorization checks for HTTP handlers. The principal
// is resolved upstream by the authentication middleware; here it is only
// evaluated, never mutated.
type Middleware struct {
	Enforcer *Enforcer
	Logger   *slog.Logger
}

// Require ensures the current principal may invoke the operation declared
// by code. Denials are logged at this boundary and rendered as problem
// documents; nothing propagates past it.
func (m Middleware) Require(code string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if !m.Enforcer.Authorize(principal, code) {
				if m.Logger != nil {
					m.Logger.Warn("authorization denied",
						slog.Int64("user_id", principal.UserID),
						slog.String("code", code),
						slog.String("path", r.URL.Path))
				}
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
