// Package handler serves the cloud list/item API under /v1.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/basket/internal/auth"
	"github.com/dukerupert/basket/internal/cloud/store"
	"github.com/dukerupert/basket/internal/remote"
)

const maxBodySize = 1 << 20

type Handler struct {
	store  *store.Store
	logger *slog.Logger
}

func New(s *store.Store, logger *slog.Logger) *Handler {
	return &Handler{store: s, logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, remote.Error{Code: code, Message: msg})
}

func (h *Handler) internal(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, "error", err)
	writeError(w, http.StatusInternalServerError, remote.CodeInternal, op+" failed")
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, remote.CodeInvalidArgument, "invalid JSON")
		return false
	}
	return true
}

func blank(p *string) bool {
	return p != nil && strings.TrimSpace(*p) == ""
}

// ListLists handles GET /v1/lists
func (h *Handler) ListLists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.store.ListAll(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.internal(w, "list lists", err)
		return
	}
	if lists == nil {
		lists = []remote.ListDoc{}
	}
	writeJSON(w, http.StatusOK, lists)
}

// CreateList handles POST /v1/lists
func (h *Handler) CreateList(w http.ResponseWriter, r *http.Request) {
	var doc remote.ListDoc
	if !decode(w, r, &doc) {
		return
	}
	if strings.TrimSpace(doc.Name) == "" {
		writeError(w, http.StatusBadRequest, remote.CodeInvalidArgument, "name is required")
		return
	}
	created, err := h.store.CreateList(r.Context(), auth.UserID(r.Context()), doc)
	if err != nil {
		h.internal(w, "create list", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// UpdateList handles PATCH /v1/lists/{id}
func (h *Handler) UpdateList(w http.ResponseWriter, r *http.Request) {
	var patch remote.ListPatch
	if !decode(w, r, &patch) {
		return
	}
	if blank(patch.Name) {
		writeError(w, http.StatusBadRequest, remote.CodeInvalidArgument, "name cannot be empty")
		return
	}
	id := r.PathValue("id")
	updated, err := h.store.UpdateList(r.Context(), auth.UserID(r.Context()), id, patch)
	if err != nil {
		h.internal(w, "update list", err)
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, remote.CodeNotFound, "list "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteList handles DELETE /v1/lists/{id}
func (h *Handler) DeleteList(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteList(r.Context(), auth.UserID(r.Context()), r.PathValue("id")); err != nil {
		h.internal(w, "delete list", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateItem handles POST /v1/lists/{id}/items
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var doc remote.ItemDoc
	if !decode(w, r, &doc) {
		return
	}
	if strings.TrimSpace(doc.Name) == "" {
		writeError(w, http.StatusBadRequest, remote.CodeInvalidArgument, "name is required")
		return
	}
	listID := r.PathValue("id")
	created, err := h.store.CreateItem(r.Context(), auth.UserID(r.Context()), listID, doc)
	if err != nil {
		h.internal(w, "create item", err)
		return
	}
	if created == nil {
		writeError(w, http.StatusNotFound, remote.CodeNotFound, "list "+listID+" not found")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// UpdateItem handles PATCH /v1/items/{id}
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var patch remote.ItemPatch
	if !decode(w, r, &patch) {
		return
	}
	if blank(patch.Name) {
		writeError(w, http.StatusBadRequest, remote.CodeInvalidArgument, "name cannot be empty")
		return
	}
	if patch.Quantity != nil && *patch.Quantity < 1 {
		writeError(w, http.StatusBadRequest, remote.CodeInvalidArgument, "quantity must be at least 1")
		return
	}
	id := r.PathValue("id")
	updated, err := h.store.UpdateItem(r.Context(), auth.UserID(r.Context()), id, patch)
	if err != nil {
		h.internal(w, "update item", err)
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, remote.CodeNotFound, "item "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteItem handles DELETE /v1/items/{id}
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteItem(r.Context(), auth.UserID(r.Context()), r.PathValue("id")); err != nil {
		h.internal(w, "delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
