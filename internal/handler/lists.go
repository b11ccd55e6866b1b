package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/basket/internal/capture"
	"github.com/dukerupert/basket/internal/model"
	"github.com/dukerupert/basket/internal/shopping"
)

const maxCaptureSize = 10 << 20

type ListHandler struct {
	svc      *shopping.Service
	capturer *capture.Capturer
	logger   *slog.Logger
}

func NewListHandler(svc *shopping.Service, capturer *capture.Capturer, logger *slog.Logger) *ListHandler {
	return &ListHandler{svc: svc, capturer: capturer, logger: logger}
}

// List handles GET /api/lists
func (h *ListHandler) List(w http.ResponseWriter, r *http.Request) {
	lists := h.svc.Lists()
	if lists == nil {
		lists = []model.ShoppingList{}
	}
	writeJSON(w, http.StatusOK, lists)
}

type createListRequest struct {
	Name string `json:"name"`
}

// Create handles POST /api/lists
func (h *ListHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createListRequest
	if !decode(w, r, &req) {
		return
	}
	list, err := h.svc.CreateList(req.Name)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

// Update handles PUT /api/lists/{id}
func (h *ListHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req shopping.ListUpdate
	if !decode(w, r, &req) {
		return
	}
	list, err := h.svc.UpdateList(r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Delete handles DELETE /api/lists/{id}
func (h *ListHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteList(r.PathValue("id")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddItem handles POST /api/lists/{id}/items
func (h *ListHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req shopping.ItemInput
	if !decode(w, r, &req) {
		return
	}
	item, err := h.svc.AddItem(r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

type batchRequest struct {
	Items []shopping.ItemInput `json:"items"`
}

// AddItems handles POST /api/lists/{id}/items/batch
func (h *ListHandler) AddItems(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decode(w, r, &req) {
		return
	}
	items, err := h.svc.AddItems(r.PathValue("id"), req.Items)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, items)
}

// UpdateItem handles PUT /api/lists/{id}/items/{item_id}
func (h *ListHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req shopping.ItemUpdate
	if !decode(w, r, &req) {
		return
	}
	item, err := h.svc.UpdateItem(r.PathValue("id"), r.PathValue("item_id"), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// DeleteItem handles DELETE /api/lists/{id}/items/{item_id}
func (h *ListHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteItem(r.PathValue("id"), r.PathValue("item_id")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleItem handles POST /api/lists/{id}/items/{item_id}/toggle
func (h *ListHandler) ToggleItem(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ToggleItem(r.PathValue("id"), r.PathValue("item_id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type reorderRequest struct {
	From *int `json:"from"`
	To   *int `json:"to"`
}

// Reorder handles POST /api/lists/{id}/reorder
func (h *ListHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if !decode(w, r, &req) {
		return
	}
	if req.From == nil || req.To == nil {
		writeErr(w, http.StatusBadRequest, "from and to are required")
		return
	}
	list, err := h.svc.ReorderItems(r.PathValue("id"), *req.From, *req.To)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Undo handles POST /api/undo
func (h *ListHandler) Undo(w http.ResponseWriter, r *http.Request) {
	restored, err := h.svc.Undo()
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, restored)
}

type textCapture struct {
	Text string `json:"text"`
}

// Capture handles POST /api/lists/{id}/capture/{kind}. Text may be sent as
// {"text": ...} or as a plain body; voice and image captures send the raw
// recording or photo.
func (h *ListHandler) Capture(w http.ResponseWriter, r *http.Request) {
	kind, err := capture.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCaptureSize))
	if err != nil {
		writeErr(w, http.StatusRequestEntityTooLarge, "capture too large")
		return
	}
	if kind == capture.KindText && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req textCapture
		if err := json.Unmarshal(body, &req); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		body = []byte(req.Text)
	}

	res, err := h.capturer.Capture(r.Context(), kind, r.PathValue("id"), body)
	if err != nil {
		if errors.Is(err, capture.ErrUnknownKind) {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
		writeServiceError(w, h.logger, err)
		return
	}
	status := http.StatusCreated
	if len(res.Items) == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}
