package model

import (
	"strings"
	"time"
	"unicode"
)

// Supermarket is a store location that can trigger a proximity reminder.
// Coordinates are optional; stores without them are never considered nearby.
type Supermarket struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	CreatedAt time.Time `json:"created_at"`
}

// HasCoordinates reports whether both latitude and longitude are known.
func (s Supermarket) HasCoordinates() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// Key is the normalized store identifier used for distance caching and
// notification throttling.
func (s Supermarket) Key() string {
	return NormalizeStoreKey(s.Name, s.Address)
}

// NormalizeStoreKey lower-cases name and address and collapses every run of
// non-alphanumeric characters into a single dash.
func NormalizeStoreKey(name, address string) string {
	return normalizePart(name) + "|" + normalizePart(address)
}

func normalizePart(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Position is a single geolocation fix.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}
