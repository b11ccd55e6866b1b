package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/basket/internal/identity"
	"github.com/dukerupert/basket/internal/shopping"
	"github.com/dukerupert/basket/internal/syncqueue"
)

type SessionHandler struct {
	identity *identity.Handler
	svc      *shopping.Service
	queue    *syncqueue.Queue
	logger   *slog.Logger
}

func NewSessionHandler(ih *identity.Handler, svc *shopping.Service, q *syncqueue.Queue, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{identity: ih, svc: svc, queue: q, logger: logger}
}

type sessionResponse struct {
	Authenticated bool              `json:"authenticated"`
	UserID        string            `json:"user_id,omitempty"`
	Namespace     string            `json:"namespace"`
	SyncEnabled   bool              `json:"sync_enabled"`
	Sync          syncqueue.Status  `json:"sync"`
	Undo          *shopping.Deleted `json:"undo,omitempty"`
}

func (h *SessionHandler) session() sessionResponse {
	authenticated, userID := h.svc.Identity()
	return sessionResponse{
		Authenticated: authenticated,
		UserID:        userID,
		Namespace:     h.svc.Namespace(),
		SyncEnabled:   h.svc.SyncEnabled(),
		Sync:          h.queue.Status(),
		Undo:          h.svc.LastDeleted(),
	}
}

// Get handles GET /api/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session())
}

type loginRequest struct {
	UserID string `json:"user_id"`
}

type loginResponse struct {
	sessionResponse
	Login identity.Outcome `json:"login"`
}

// Login handles POST /api/session/login. Authentication itself happens
// elsewhere; the caller reports the signed-in user.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := h.identity.Login(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrMissingUser) {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("login", "error", err)
		writeErr(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{sessionResponse: h.session(), Login: out})
}

// Logout handles POST /api/session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.identity.Logout(r.Context())
	writeJSON(w, http.StatusOK, h.session())
}

type networkRequest struct {
	Online *bool `json:"online"`
}

// Network handles POST /api/network, the UI's online and offline events.
func (h *SessionHandler) Network(w http.ResponseWriter, r *http.Request) {
	var req networkRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Online == nil {
		writeErr(w, http.StatusBadRequest, "online is required")
		return
	}
	h.queue.SetOnline(*req.Online)
	writeJSON(w, http.StatusOK, h.queue.Status())
}
