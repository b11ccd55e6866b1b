package geo

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/basket/internal/model"
)

func metersToLatDegrees(m float64) float64 {
	return m / (earthRadiusMeters * math.Pi / 180)
}

func ptr(v float64) *float64 { return &v }

func TestDistance(t *testing.T) {
	if d := Distance(52.52, 13.405, 52.52, 13.405); d != 0 {
		t.Errorf("distance to self = %v, want 0", d)
	}

	// Berlin to Paris is roughly 878 km.
	d := Distance(52.52, 13.405, 48.8566, 2.3522)
	if d < 870000 || d > 885000 {
		t.Errorf("Berlin-Paris = %.0f m, want about 878 km", d)
	}

	a, b := Distance(1, 2, 3, 4), Distance(3, 4, 1, 2)
	if math.Abs(a-b) > 1e-6 {
		t.Errorf("distance not symmetric: %v vs %v", a, b)
	}
}

func TestDistanceCacheRounding(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cache := NewDistanceCache().WithClock(func() time.Time { return now })

	first := cache.Distance(52.520001, 13.405001, 52.53, 13.41, "rewe|")
	second := cache.Distance(52.520004, 13.405004, 52.53, 13.41, "rewe|")
	if first != second {
		t.Errorf("expected cached distance, got %v then %v", first, second)
	}
	if cache.Len() != 1 {
		t.Errorf("cache entries = %d, want 1", cache.Len())
	}

	// A different store gets its own entry.
	cache.Distance(52.520001, 13.405001, 52.60, 13.50, "aldi|")
	if cache.Len() != 2 {
		t.Errorf("cache entries = %d, want 2", cache.Len())
	}
}

func TestDistanceCacheExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cache := NewDistanceCache().WithClock(func() time.Time { return now })

	cache.Distance(52.52, 13.405, 52.53, 13.41, "rewe|")
	now = now.Add(29 * time.Second)
	if cache.Len() != 1 {
		t.Fatal("entry expired before 30s")
	}
	now = now.Add(2 * time.Second)
	if cache.Len() != 0 {
		t.Error("entry survived past 30s")
	}
}

func TestNearbyStoresThreshold(t *testing.T) {
	lat, lon := 52.52, 13.405
	stores := []model.Supermarket{
		{ID: 1, Name: "Far", Latitude: ptr(lat + metersToLatDegrees(51)), Longitude: ptr(lon)},
		{ID: 2, Name: "Near", Latitude: ptr(lat + metersToLatDegrees(49)), Longitude: ptr(lon)},
		{ID: 3, Name: "Unknown"},
		{ID: 4, Name: "Closest", Latitude: ptr(lat + metersToLatDegrees(10)), Longitude: ptr(lon)},
	}

	got := NearbyStores(NewDistanceCache(), model.Position{Latitude: lat, Longitude: lon}, stores, 50)
	if len(got) != 2 {
		t.Fatalf("nearby = %+v, want 2 stores", got)
	}
	if got[0].Store.Name != "Closest" || got[1].Store.Name != "Near" {
		t.Errorf("order = %s, %s; want Closest, Near", got[0].Store.Name, got[1].Store.Name)
	}
	if math.Abs(got[1].Meters-49) > 0.01 {
		t.Errorf("near distance = %v, want 49", got[1].Meters)
	}
}

func TestNearbyStoresDefaultThreshold(t *testing.T) {
	stores := []model.Supermarket{
		{Name: "Near", Latitude: ptr(metersToLatDegrees(45)), Longitude: ptr(0)},
	}
	if got := NearbyStores(nil, model.Position{}, stores, 0); len(got) != 1 {
		t.Errorf("default threshold excluded a store at 45 m")
	}
}

func TestEstimate(t *testing.T) {
	r := Estimate(1000)
	if r.DistanceKm != 1.3 {
		t.Errorf("distance = %v, want 1.3", r.DistanceKm)
	}
	if r.Minutes != 15.6 {
		t.Errorf("minutes = %v, want 15.6", r.Minutes)
	}
	if r.Routed {
		t.Error("estimate marked as routed")
	}
}

func TestRouteClientSuccess(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{
			"code":   "Ok",
			"routes": []map[string]float64{{"distance": 2500, "duration": 1800}},
		})
	}))
	defer server.Close()

	c := NewRouteClient(server.URL, slog.Default())
	r := c.Route(context.Background(), 52.52, 13.405, 52.53, 13.41)
	if !r.Routed || r.DistanceKm != 2.5 || r.Minutes != 30 {
		t.Errorf("route = %+v, want routed 2.5 km / 30 min", r)
	}
	if !strings.HasPrefix(gotPath, "/route/v1/foot/13.405000,52.520000;") {
		t.Errorf("path = %q, want lon,lat ordering", gotPath)
	}
}

func TestRouteClientFallback(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}},
		{"malformed", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("{not json"))
		}},
		{"no routes", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"code":"NoRoute","routes":[]}`))
		}},
	}

	want := Estimate(Distance(52.52, 13.405, 52.53, 13.41))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			r := NewRouteClient(server.URL, slog.Default()).Route(context.Background(), 52.52, 13.405, 52.53, 13.41)
			if r != want {
				t.Errorf("route = %+v, want estimate %+v", r, want)
			}
		})
	}
}

func TestRouteClientUnconfigured(t *testing.T) {
	r := NewRouteClient("", slog.Default()).Route(context.Background(), 0, 0, 0, 0)
	if r.Routed || r.DistanceKm != 0 {
		t.Errorf("route = %+v, want zero estimate", r)
	}
}
