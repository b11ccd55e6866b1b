package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	detourFactor   = 1.3
	minutesPerKm   = 12.0
	routeTimeout   = 5 * time.Second
	routingProfile = "foot"
)

// Route is a walking distance and time estimate between two points.
type Route struct {
	DistanceKm float64 `json:"distance_km"`
	Minutes    float64 `json:"minutes"`
	Routed     bool    `json:"routed"`
}

// Estimate derives a walking route from a straight-line distance.
func Estimate(meters float64) Route {
	km := meters / 1000 * detourFactor
	return Route{
		DistanceKm: math.Round(km*100) / 100,
		Minutes:    math.Round(km*minutesPerKm*10) / 10,
	}
}

// RouteClient asks an OSRM-compatible routing API for walking routes. Route
// never fails: any problem falls back to Estimate.
type RouteClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewRouteClient creates a client for baseURL. An empty baseURL always
// estimates.
func NewRouteClient(baseURL string, logger *slog.Logger) *RouteClient {
	return &RouteClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: routeTimeout},
		logger:  logger,
	}
}

// Route returns the walking route from (lat1, lon1) to (lat2, lon2).
func (c *RouteClient) Route(ctx context.Context, lat1, lon1, lat2, lon2 float64) Route {
	fallback := Estimate(Distance(lat1, lon1, lat2, lon2))
	if c == nil || c.baseURL == "" {
		return fallback
	}

	route, err := c.fetch(ctx, lat1, lon1, lat2, lon2)
	if err != nil {
		c.logger.Warn("routing failed, using estimate", "error", err)
		return fallback
	}
	return route
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
	} `json:"routes"`
}

func (c *RouteClient) fetch(ctx context.Context, lat1, lon1, lat2, lon2 float64) (Route, error) {
	ctx, cancel := context.WithTimeout(ctx, routeTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?overview=false",
		c.baseURL, routingProfile, lon1, lat1, lon2, lat2)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Route{}, fmt.Errorf("build route request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Route{}, fmt.Errorf("route request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Route{}, fmt.Errorf("routing API returned status %d", resp.StatusCode)
	}

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Route{}, fmt.Errorf("decode route response: %w", err)
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return Route{}, fmt.Errorf("routing API returned code %q with %d routes", body.Code, len(body.Routes))
	}

	r := body.Routes[0]
	if r.Distance < 0 || r.Duration < 0 {
		return Route{}, fmt.Errorf("routing API returned negative route")
	}
	return Route{
		DistanceKm: math.Round(r.Distance/1000*100) / 100,
		Minutes:    math.Round(r.Duration/60*10) / 10,
		Routed:     true,
	}, nil
}
