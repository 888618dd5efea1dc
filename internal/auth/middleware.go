package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/meridian-admin/meridian-admin/internal/rbac"
)

// PrincipalSource resolves the full claims of a user: role memberships
// plus derived permission codes. Satisfied by the RBAC service.
type PrincipalSource interface {
	Principal(ctx context.Context, userID int64) (*rbac.Principal, error)
}

// Middleware resolves the bearer token of each request into a principal.
// Requests without a usable token pass through unauthenticated; protected
// routes reject them downstream.
type Middleware struct {
	Tokens     *TokenManager
	Principals PrincipalSource
	Logger     *slog.Logger
}

// Authenticate attaches the resolved principal to the request context.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := m.Tokens.Resolve(r.Context(), token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := m.Principals.Principal(r.Context(), userID)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("resolve principal", slog.Int64("user_id", userID), slog.Any("error", err))
			}
			next.ServeHTTP(w, r)
			return
		}
		ctx := rbac.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
