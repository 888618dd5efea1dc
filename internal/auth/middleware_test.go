package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-admin/meridian-admin/internal/rbac"
)

type stubPrincipals struct {
	principal *rbac.Principal
}

func (s stubPrincipals) Principal(ctx context.Context, userID int64) (*rbac.Principal, error) {
	return s.principal, nil
}

func TestAuthenticateAttachesPrincipal(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	tokens := NewTokenManager(client, time.Hour)

	token, err := tokens.Issue(context.Background(), 5)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	mw := Middleware{
		Tokens:     tokens,
		Principals: stubPrincipals{principal: rbac.NewPrincipal(5, []string{"viewer"}, []string{"users:view"})},
		Logger:     slog.Default(),
	}

	var seen *rbac.Principal
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = rbac.PrincipalFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen == nil || seen.UserID != 5 {
		t.Fatalf("expected principal for user 5, got %+v", seen)
	}

	// No token: the request continues unauthenticated.
	seen = nil
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if seen != nil {
		t.Fatalf("expected no principal without token")
	}

	// Unknown token behaves the same as none.
	seen = nil
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != nil {
		t.Fatalf("expected no principal for unknown token")
	}
}
