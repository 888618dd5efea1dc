package rbac

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func guardedRequest(t *testing.T, mw Middleware, code string, principal *Principal) *httptest.ResponseRecorder {
	t.Helper()
	handler := mw.Require(code)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	if principal != nil {
		req = req.WithContext(ContextWithPrincipal(req.Context(), principal))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRequireWithoutPrincipal(t *testing.T) {
	mw := Middleware{Enforcer: NewEnforcer(NewResolver(""), slog.Default(), nil), Logger: slog.Default()}
	rec := guardedRequest(t, mw, "users:view", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireDeniesMissingCode(t *testing.T) {
	mw := Middleware{Enforcer: NewEnforcer(NewResolver(""), slog.Default(), nil), Logger: slog.Default()}
	principal := NewPrincipal(5, []string{"viewer"}, []string{"reports:view"})
	rec := guardedRequest(t, mw, "users:edit", principal)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireAllowsGrantedCode(t *testing.T) {
	mw := Middleware{Enforcer: NewEnforcer(NewResolver(""), slog.Default(), nil), Logger: slog.Default()}
	principal := NewPrincipal(5, []string{"viewer"}, []string{"users:view"})
	rec := guardedRequest(t, mw, "users:view", principal)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestRequireSuperAdmin(t *testing.T) {
	mw := Middleware{Enforcer: NewEnforcer(NewResolver("admin"), slog.Default(), nil), Logger: slog.Default()}
	principal := NewPrincipal(1, []string{"admin"}, nil)
	rec := guardedRequest(t, mw, "users:edit", principal)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}
