// Package throttle decides whether a proximity reminder for a store may fire,
// based on the history of reminders already sent.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dukerupert/basket/internal/model"
)

// Reasons reported in a Decision.
const (
	ReasonAllowed              = "allowed"
	ReasonCooldown             = "cooldown"
	ReasonSpamLimit            = "spam_limit"
	ReasonListRecentlyNotified = "list_recently_notified"
)

// ErrNotShown wraps the error of a reminder that could not be displayed.
var ErrNotShown = errors.New("reminder not shown")

// Log persists firing records.
type Log interface {
	Append(ctx context.Context, rec model.NotificationRecord) error
	// Since returns records for storeKey fired at or after since.
	Since(ctx context.Context, storeKey string, since time.Time) ([]model.NotificationRecord, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type Config struct {
	Cooldown   time.Duration
	SpamWindow time.Duration
	SpamLimit  int
	ListWindow time.Duration
	Retention  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Cooldown:   30 * time.Minute,
		SpamWindow: 4 * time.Hour,
		SpamLimit:  5,
		ListWindow: 2 * time.Hour,
		Retention:  24 * time.Hour,
	}
}

// Decision is the outcome of a Check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

type Throttle struct {
	cfg    Config
	log    Log
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex // serializes Allow so check and record are atomic
}

// New creates a Throttle. Zero fields in cfg take their defaults.
func New(cfg Config, log Log, logger *slog.Logger) *Throttle {
	def := DefaultConfig()
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.SpamWindow <= 0 {
		cfg.SpamWindow = def.SpamWindow
	}
	if cfg.SpamLimit <= 0 {
		cfg.SpamLimit = def.SpamLimit
	}
	if cfg.ListWindow <= 0 {
		cfg.ListWindow = def.ListWindow
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	return &Throttle{cfg: cfg, log: log, logger: logger, now: time.Now}
}

// WithClock replaces the throttle clock. Used by tests.
func (t *Throttle) WithClock(now func() time.Time) *Throttle {
	t.now = now
	return t
}

func (t *Throttle) history(ctx context.Context, storeKey string, now time.Time) []model.NotificationRecord {
	if _, err := t.log.Prune(ctx, now.Add(-t.cfg.Retention)); err != nil {
		t.logger.Warn("prune notification log", "error", err)
	}

	window := max(t.cfg.Cooldown, t.cfg.SpamWindow, t.cfg.ListWindow)
	records, err := t.log.Since(ctx, storeKey, now.Add(-window))
	if err != nil {
		t.logger.Warn("read notification log", "store", storeKey, "error", err)
		return nil
	}
	return records
}

// Check reports whether a reminder for storeKey about listIDs may fire now.
func (t *Throttle) Check(ctx context.Context, storeKey string, listIDs []string) Decision {
	now := t.now()
	records := t.history(ctx, storeKey, now)

	candidates := make(map[string]bool, len(listIDs))
	for _, id := range listIDs {
		candidates[id] = true
	}

	spamCount := 0
	for _, rec := range records {
		age := now.Sub(rec.FiredAt)
		if age < t.cfg.Cooldown {
			return Decision{Reason: ReasonCooldown}
		}
		if age < t.cfg.SpamWindow {
			spamCount++
		}
	}
	if spamCount >= t.cfg.SpamLimit {
		return Decision{Reason: ReasonSpamLimit}
	}

	for _, rec := range records {
		if now.Sub(rec.FiredAt) >= t.cfg.ListWindow {
			continue
		}
		for _, id := range rec.ListIDs {
			if candidates[id] {
				return Decision{Reason: ReasonListRecentlyNotified}
			}
		}
	}

	return Decision{Allowed: true, Reason: ReasonAllowed}
}

// Record appends a firing for storeKey about listIDs.
func (t *Throttle) Record(ctx context.Context, storeKey string, listIDs []string) error {
	ids := append([]string(nil), listIDs...)
	sort.Strings(ids)
	return t.log.Append(ctx, model.NotificationRecord{
		StoreKey: storeKey,
		ListIDs:  ids,
		FiredAt:  t.now(),
	})
}

// Allow checks and, when permitted, records the firing in one step.
func (t *Throttle) Allow(ctx context.Context, storeKey string, listIDs []string) (Decision, error) {
	return t.Fire(ctx, storeKey, listIDs, nil)
}

// Fire checks, runs show when permitted, and records the firing only if show
// succeeds. A show error is returned with the permitting decision and
// leaves the log untouched.
func (t *Throttle) Fire(ctx context.Context, storeKey string, listIDs []string, show func() error) (Decision, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d := t.Check(ctx, storeKey, listIDs)
	if !d.Allowed {
		return d, nil
	}
	if show != nil {
		if err := show(); err != nil {
			return d, fmt.Errorf("%w: %w", ErrNotShown, err)
		}
	}
	if err := t.Record(ctx, storeKey, listIDs); err != nil {
		return d, err
	}
	return d, nil
}

// MemoryLog is an in-process Log.
type MemoryLog struct {
	mu      sync.Mutex
	records []model.NotificationRecord
	nextID  int64
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (m *MemoryLog) Append(_ context.Context, rec model.NotificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	rec.ListIDs = append([]string(nil), rec.ListIDs...)
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryLog) Since(_ context.Context, storeKey string, since time.Time) ([]model.NotificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.NotificationRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		rec := m.records[i]
		if rec.StoreKey == storeKey && !rec.FiredAt.Before(since) {
			rec.ListIDs = append([]string(nil), rec.ListIDs...)
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MemoryLog) Prune(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	var removed int64
	for _, rec := range m.records {
		if rec.FiredAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	m.records = kept
	return removed, nil
}

// Len reports the number of stored records.
func (m *MemoryLog) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
