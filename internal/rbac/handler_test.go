package rbac

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-admin/meridian-admin/internal/resource"
	"github.com/meridian-admin/meridian-admin/internal/shared"
)

type stubTrees struct {
	keys []int64
}

func (s stubTrees) CheckedKeys(ctx context.Context, kind resource.Kind, roleID int64) ([]int64, error) {
	return s.keys, nil
}

type stubCodes struct {
	codes []string
}

func (s stubCodes) AllPermissionCodes(ctx context.Context) ([]string, error) {
	return s.codes, nil
}

func newTestRouter(t *testing.T, store *mockStore, leaves map[int64]struct{}) chi.Router {
	t.Helper()
	svc, _, _ := newTestService(t, store, leaves)
	handler := NewHandler(slog.Default(), svc, stubTrees{keys: []int64{1, 2}}, stubCodes{codes: []string{"users:view"}}, shared.AllowAll)
	router := chi.NewRouter()
	handler.MountRoutes(router)
	return router
}

func putJSON(t *testing.T, router chi.Router, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPut, path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCheckedKeysEndpoint(t *testing.T) {
	router := newTestRouter(t, newMockStore(), nil)
	req := httptest.NewRequest(http.MethodGet, "/roles/1/resources/menu/checked-keys", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Keys []int64 `json:"keys"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", resp.Keys)
	}
}

func TestCheckedKeysRejectsUnknownKind(t *testing.T) {
	router := newTestRouter(t, newMockStore(), nil)
	req := httptest.NewRequest(http.MethodGet, "/roles/1/resources/gadget/checked-keys", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAssignGrantEndpoint(t *testing.T) {
	store := newMockStore()
	router := newTestRouter(t, store, map[int64]struct{}{10: {}, 11: {}})
	rec := putJSON(t, router, "/roles/1/resources/menu", map[string][]int64{"ids": {10, 11}})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if !store.replaceCalled {
		t.Fatalf("expected grant replaced")
	}
}

func TestAssignGrantReportsOffenders(t *testing.T) {
	router := newTestRouter(t, newMockStore(), map[int64]struct{}{10: {}})
	rec := putJSON(t, router, "/roles/1/resources/menu", map[string][]int64{"ids": {10, 42}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("42")) {
		t.Fatalf("expected offender id in response, got %s", rec.Body.String())
	}
}

func TestAssignGrantConflict(t *testing.T) {
	store := newMockStore()
	store.replaceErr = ErrConflict
	router := newTestRouter(t, store, map[int64]struct{}{10: {}})
	rec := putJSON(t, router, "/roles/1/resources/menu", map[string][]int64{"ids": {10}})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestAssignUserRolesEndpoint(t *testing.T) {
	store := newMockStore()
	router := newTestRouter(t, store, nil)
	rec := putJSON(t, router, "/users/5/roles", map[string][]int64{"ids": {1, 2}})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.replacedUserID != 5 {
		t.Fatalf("expected user 5, got %d", store.replacedUserID)
	}
}

func TestAssignUserRolesRejectsNonPositiveIDs(t *testing.T) {
	router := newTestRouter(t, newMockStore(), nil)
	rec := putJSON(t, router, "/users/5/roles", map[string][]int64{"ids": {0}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListPermissionCodes(t *testing.T) {
	router := newTestRouter(t, newMockStore(), nil)
	req := httptest.NewRequest(http.MethodGet, "/permissions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("users:view")) {
		t.Fatalf("expected code list, got %s", rec.Body.String())
	}
}
