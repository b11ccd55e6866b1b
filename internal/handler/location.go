package handler

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/basket/internal/geo"
	"github.com/dukerupert/basket/internal/model"
	"github.com/dukerupert/basket/internal/proximity"
	"github.com/dukerupert/basket/internal/store"
)

type LocationHandler struct {
	feed         *proximity.Feed
	tracker      *proximity.Tracker
	supermarkets *store.SupermarketStore
	cache        *geo.DistanceCache
	threshold    float64
	logger       *slog.Logger
}

func NewLocationHandler(feed *proximity.Feed, tracker *proximity.Tracker, ss *store.SupermarketStore, cache *geo.DistanceCache, threshold float64, logger *slog.Logger) *LocationHandler {
	return &LocationHandler{feed: feed, tracker: tracker, supermarkets: ss, cache: cache, threshold: threshold, logger: logger}
}

func validCoordinates(lat, lon float64) bool {
	return !math.IsNaN(lat) && !math.IsNaN(lon) && lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Report handles POST /api/location, a position fix from the UI's
// geolocation watch.
func (h *LocationHandler) Report(w http.ResponseWriter, r *http.Request) {
	var pos model.Position
	if !decode(w, r, &pos) {
		return
	}
	if !validCoordinates(pos.Latitude, pos.Longitude) {
		writeErr(w, http.StatusBadRequest, "invalid coordinates")
		return
	}
	h.feed.Update(pos)
	w.WriteHeader(http.StatusAccepted)
}

type trackingRequest struct {
	Enabled *bool `json:"enabled"`
}

// Tracking handles POST /api/location/tracking, starting or stopping the
// proximity session.
func (h *LocationHandler) Tracking(w http.ResponseWriter, r *http.Request) {
	var req trackingRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeErr(w, http.StatusBadRequest, "enabled is required")
		return
	}
	if *req.Enabled {
		if err := h.tracker.Start(context.WithoutCancel(r.Context()), h.feed); err != nil && !errors.Is(err, proximity.ErrRunning) {
			h.logger.Error("start tracking", "error", err)
			writeErr(w, http.StatusInternalServerError, "failed to start tracking")
			return
		}
	} else {
		h.tracker.Stop()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"tracking": h.tracker.Running()})
}

// Nearby handles GET /api/supermarkets/nearby?lat=&lon=&radius=
func (h *LocationHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil || !validCoordinates(lat, lon) {
		writeErr(w, http.StatusBadRequest, "lat and lon are required")
		return
	}
	radius := h.threshold
	if s := q.Get("radius"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			writeErr(w, http.StatusBadRequest, "invalid radius")
			return
		}
		radius = v
	}

	stores, err := h.supermarkets.List(r.Context())
	if err != nil {
		h.logger.Error("list supermarkets", "error", err)
		writeErr(w, http.StatusInternalServerError, "failed to list supermarkets")
		return
	}
	nearby := geo.NearbyStores(h.cache, model.Position{Latitude: lat, Longitude: lon}, stores, radius)
	if nearby == nil {
		nearby = []geo.NearbyStore{}
	}
	writeJSON(w, http.StatusOK, nearby)
}

// ListSupermarkets handles GET /api/supermarkets
func (h *LocationHandler) ListSupermarkets(w http.ResponseWriter, r *http.Request) {
	stores, err := h.supermarkets.List(r.Context())
	if err != nil {
		h.logger.Error("list supermarkets", "error", err)
		writeErr(w, http.StatusInternalServerError, "failed to list supermarkets")
		return
	}
	if stores == nil {
		stores = []model.Supermarket{}
	}
	writeJSON(w, http.StatusOK, stores)
}

type supermarketRequest struct {
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// CreateSupermarket handles POST /api/supermarkets
func (h *LocationHandler) CreateSupermarket(w http.ResponseWriter, r *http.Request) {
	var req supermarketRequest
	if !decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeErr(w, http.StatusBadRequest, "name is required")
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		writeErr(w, http.StatusBadRequest, "latitude and longitude must be given together")
		return
	}
	if req.Latitude != nil && !validCoordinates(*req.Latitude, *req.Longitude) {
		writeErr(w, http.StatusBadRequest, "invalid coordinates")
		return
	}

	s, err := h.supermarkets.Create(r.Context(), req.Name, strings.TrimSpace(req.Address), req.Latitude, req.Longitude)
	if err != nil {
		h.logger.Error("create supermarket", "error", err)
		writeErr(w, http.StatusInternalServerError, "failed to create supermarket")
		return
	}
	writeJSON(w, http.StatusCreated, s)
}
