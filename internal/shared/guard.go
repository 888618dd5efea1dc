package shared

import "net/http"

// Guard wraps a route group with a required permission code. Handlers take
// a Guard instead of the authorization middleware itself so feature
// packages stay decoupled from the enforcer.
type Guard func(code string) func(http.Handler) http.Handler

// AllowAll is a no-op Guard for tests and unprotected mounts.
func AllowAll(string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}
