// Package geo computes straight-line and walking distances between a shopper
// and known supermarkets.
package geo

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/dukerupert/basket/internal/model"
)

const (
	earthRadiusMeters = 6371000.0

	// DefaultThreshold is the radius within which a store counts as nearby.
	DefaultThreshold = 50.0

	cacheTTL = 30 * time.Second
)

// Distance returns the haversine distance in meters between two points.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

type cacheEntry struct {
	meters  float64
	expires time.Time
}

// DistanceCache memoizes distances for frequent, nearly identical positions.
// User coordinates are rounded to four decimals before keying.
type DistanceCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewDistanceCache returns a cache with the default 30 second TTL.
func NewDistanceCache() *DistanceCache {
	return &DistanceCache{
		entries: make(map[string]cacheEntry),
		ttl:     cacheTTL,
		now:     time.Now,
	}
}

// WithClock replaces the cache clock. Used by tests.
func (c *DistanceCache) WithClock(now func() time.Time) *DistanceCache {
	c.now = now
	return c
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func cacheKey(lat, lon float64, storeKey string) string {
	return fmt.Sprintf("%.4f,%.4f|%s", round4(lat), round4(lon), storeKey)
}

// Distance returns the cached distance from the user to the store identified
// by storeKey, computing it on a miss.
func (c *DistanceCache) Distance(userLat, userLon, storeLat, storeLon float64, storeKey string) float64 {
	key := cacheKey(userLat, userLon, storeKey)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && now.Before(e.expires) {
		return e.meters
	}

	meters := Distance(round4(userLat), round4(userLon), storeLat, storeLon)
	c.entries[key] = cacheEntry{meters: meters, expires: now.Add(c.ttl)}
	c.evictLocked(now)
	return meters
}

// Len reports the number of live entries.
func (c *DistanceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked(c.now())
	return len(c.entries)
}

func (c *DistanceCache) evictLocked(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
}

// NearbyStore pairs a store with its distance from the user.
type NearbyStore struct {
	Store  model.Supermarket `json:"store"`
	Meters float64           `json:"meters"`
}

// NearbyStores returns the stores within threshold meters of pos, closest
// first. Stores without coordinates are skipped. A nil cache computes every
// distance directly.
func NearbyStores(cache *DistanceCache, pos model.Position, stores []model.Supermarket, threshold float64) []NearbyStore {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	var nearby []NearbyStore
	for _, s := range stores {
		if !s.HasCoordinates() {
			continue
		}
		var meters float64
		if cache != nil {
			meters = cache.Distance(pos.Latitude, pos.Longitude, *s.Latitude, *s.Longitude, s.Key())
		} else {
			meters = Distance(pos.Latitude, pos.Longitude, *s.Latitude, *s.Longitude)
		}
		if meters <= threshold {
			nearby = append(nearby, NearbyStore{Store: s, Meters: meters})
		}
	}

	sort.SliceStable(nearby, func(i, j int) bool {
		return nearby[i].Meters < nearby[j].Meters
	})
	return nearby
}
