package resource

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-admin/meridian-admin/internal/platform/httpx"
	"github.com/meridian-admin/meridian-admin/internal/shared"
)

// Handler exposes hierarchy reads and node administration.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	guard    shared.Guard
}

// NewHandler constructs the resource HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, guard shared.Guard) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), guard: guard}
}

type nodeRequest struct {
	ParentID  int64  `json:"parentId" validate:"gte=0"`
	Name      string `json:"name" validate:"required,max=128"`
	Status    string `json:"status" validate:"omitempty,oneof=enabled disabled"`
	SortOrder int    `json:"sortOrder"`
	Code      string `json:"code" validate:"omitempty,max=128"`
}

// MountRoutes registers resource routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard(shared.PermResourcesView))
		r.Get("/resources/summary", h.summary)
		r.Get("/resources/{kind}/tree", h.tree)
		r.Get("/resources/{kind}/expanded-keys", h.expandedKeys)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard(shared.PermResourcesEdit))
		r.Post("/resources/{kind}", h.createNode)
		r.Put("/resources/{kind}/{id}", h.updateNode)
		r.Delete("/resources/{kind}/{id}", h.deleteNode)
	})
}

// treeOptions parses rootId/name/status query filters.
func treeOptions(r *http.Request) (TreeOptions, error) {
	var opts TreeOptions
	query := r.URL.Query()
	if raw := query.Get("rootId"); raw != "" {
		rootID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || rootID < 0 {
			return opts, errors.New("invalid rootId")
		}
		opts.RootID = rootID
	}
	opts.Name = query.Get("name")
	if raw := query.Get("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			return opts, err
		}
		opts.Status = &status
	}
	return opts, nil
}

func (h *Handler) tree(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	opts, err := treeOptions(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	forest, err := h.service.Tree(r.Context(), kind, opts)
	if err != nil {
		h.respondError(w, "build tree", err)
		return
	}
	if forest == nil {
		forest = []*Node{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tree": forest})
}

func (h *Handler) expandedKeys(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	opts, err := treeOptions(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	keys, err := h.service.ExpandedKeys(r.Context(), kind, opts)
	if err != nil {
		h.respondError(w, "expanded keys", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context())
	if err != nil {
		h.respondError(w, "resource summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) createNode(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rec, ok := h.decodeNode(w, r)
	if !ok {
		return
	}
	created, err := h.service.CreateNode(r.Context(), kind, rec)
	if err != nil {
		h.respondError(w, "create node", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateNode(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	rec, ok := h.decodeNode(w, r)
	if !ok {
		return
	}
	rec.ID = id
	updated, err := h.service.UpdateNode(r.Context(), kind, rec)
	if err != nil {
		h.respondError(w, "update node", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteNode(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	if err := h.service.DeleteNode(r.Context(), kind, id); err != nil {
		h.respondError(w, "delete node", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) decodeNode(w http.ResponseWriter, r *http.Request) (Record, bool) {
	var req nodeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return Record{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return Record{}, false
	}
	return Record{
		ParentID:  req.ParentID,
		Name:      req.Name,
		Status:    Status(req.Status),
		SortOrder: req.SortOrder,
		Code:      req.Code,
	}, true
}

// respondError maps resource errors onto problem documents.
func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrHasChildren):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrIntegrity):
		// Corrupted source data, not a transient condition.
		httpx.Problem(w, http.StatusInternalServerError, "Data Integrity", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error(op, slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
