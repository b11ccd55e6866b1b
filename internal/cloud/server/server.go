// Package server wires the cloud list/item service.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/basket/internal/cloud/handler"
	"github.com/dukerupert/basket/internal/cloud/store"
	"github.com/dukerupert/basket/internal/middleware"
)

const cleanupInterval = 5 * time.Minute

type Server struct {
	handler     *handler.Handler
	token       string
	rateLimit   int
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

// New builds the service. rateLimit is requests per minute per user; zero
// disables limiting.
func New(db *sql.DB, token string, rateLimit int, logger *slog.Logger) *Server {
	return &Server{
		handler:     handler.New(store.New(db), logger.With("component", "cloud_handler")),
		token:       token,
		rateLimit:   rateLimit,
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// RunCleanup prunes expired rate limit windows until ctx is done.
func (s *Server) RunCleanup(ctx context.Context) {
	s.rateLimiter.RunCleanup(ctx, cleanupInterval)
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()
	outerMux.HandleFunc("GET /health", s.healthHandler)

	api := http.NewServeMux()
	api.HandleFunc("GET /v1/lists", s.handler.ListLists)
	api.HandleFunc("POST /v1/lists", s.handler.CreateList)
	api.HandleFunc("PATCH /v1/lists/{id}", s.handler.UpdateList)
	api.HandleFunc("DELETE /v1/lists/{id}", s.handler.DeleteList)
	api.HandleFunc("POST /v1/lists/{id}/items", s.handler.CreateItem)
	api.HandleFunc("PATCH /v1/items/{id}", s.handler.UpdateItem)
	api.HandleFunc("DELETE /v1/items/{id}", s.handler.DeleteItem)

	var protected http.Handler = api
	if s.rateLimit > 0 {
		protected = middleware.RateLimit(s.rateLimiter, middleware.ByUser, s.rateLimit, time.Minute)(protected)
	}
	outerMux.Handle("/v1/", middleware.RequireToken(s.token)(protected))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
