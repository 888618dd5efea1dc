package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-admin/meridian-admin/internal/platform/httpx"
	"github.com/meridian-admin/meridian-admin/internal/resource"
	"github.com/meridian-admin/meridian-admin/internal/shared"
)

// TreeReader is the slice of the resource service the handler needs for
// the checked-keys read path.
type TreeReader interface {
	CheckedKeys(ctx context.Context, kind resource.Kind, roleID int64) ([]int64, error)
}

// CodeLister enumerates the declared permission codes.
type CodeLister interface {
	AllPermissionCodes(ctx context.Context) ([]string, error)
}

// Handler exposes grant assignment and the permission catalog.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	trees    TreeReader
	codes    CodeLister
	validate *validator.Validate
	guard    shared.Guard
}

// NewHandler constructs the assignment and catalog handler.
func NewHandler(logger *slog.Logger, service *Service, trees TreeReader, codes CodeLister, guard shared.Guard) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		trees:    trees,
		codes:    codes,
		validate: validator.New(),
		guard:    guard,
	}
}

type assignRequest struct {
	IDs []int64 `json:"ids" validate:"dive,gt=0"`
}

// MountRoutes registers assignment and catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard(shared.PermRolesView))
		r.Get("/roles/{roleID}/resources/{kind}/checked-keys", h.checkedKeys)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard(shared.PermRolesEdit))
		r.Put("/roles/{roleID}/resources/{kind}", h.assignGrant)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard(shared.PermUsersEdit))
		r.Put("/users/{userID}/roles", h.assignUserRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard(shared.PermPermissionsView))
		r.Get("/permissions", h.listPermissionCodes)
	})
}

func (h *Handler) checkedKeys(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	kind, err := resource.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	keys, err := h.trees.CheckedKeys(r.Context(), kind, roleID)
	if err != nil {
		h.respondError(w, "checked keys", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (h *Handler) assignGrant(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	kind, err := resource.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AssignGrant(r.Context(), roleID, kind, req.IDs); err != nil {
		h.respondError(w, "assign grant", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) assignUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AssignUserRoles(r.Context(), userID, req.IDs); err != nil {
		h.respondError(w, "assign user roles", err)
		return
	}
	httpx.NoContent(w)
}

// listPermissionCodes returns the catalog: built-in platform codes plus every
// code declared on an api leaf.
func (h *Handler) listPermissionCodes(w http.ResponseWriter, r *http.Request) {
	derived, err := h.codes.AllPermissionCodes(r.Context())
	if err != nil {
		h.respondError(w, "list permission codes", err)
		return
	}
	seen := make(map[string]struct{})
	codes := make([]string, 0, len(derived)+8)
	for _, code := range append(shared.CoreScopes(), derived...) {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	sort.Strings(codes)
	httpx.JSON(w, http.StatusOK, map[string]any{"codes": codes})
}

// respondError maps RBAC and resource errors onto problem documents.
func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, resource.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, resource.ErrIntegrity):
		httpx.Problem(w, http.StatusInternalServerError, "Data Integrity", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error(op, slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}
