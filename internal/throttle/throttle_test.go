package throttle

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukerupert/basket/internal/database"
	"github.com/dukerupert/basket/internal/model"
	"github.com/dukerupert/basket/internal/store"
)

type clock struct{ t time.Time }

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newThrottle(c *clock, log Log) *Throttle {
	return New(DefaultConfig(), log, slog.Default()).WithClock(c.now)
}

func TestCooldown(t *testing.T) {
	tests := []struct {
		name    string
		gap     time.Duration
		allowed bool
	}{
		{"10 minutes apart", 10 * time.Minute, false},
		{"31 minutes apart", 31 * time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClock()
			th := newThrottle(c, NewMemoryLog())
			ctx := context.Background()

			if d, _ := th.Allow(ctx, "rewe|", []string{"l1"}); !d.Allowed {
				t.Fatalf("first firing suppressed: %+v", d)
			}
			c.advance(tt.gap)
			// A different list so the same-list rule cannot interfere.
			d, err := th.Allow(ctx, "rewe|", []string{"l2"})
			if err != nil {
				t.Fatalf("allow: %v", err)
			}
			if d.Allowed != tt.allowed {
				t.Errorf("allowed = %v (%s), want %v", d.Allowed, d.Reason, tt.allowed)
			}
			if !tt.allowed && d.Reason != ReasonCooldown {
				t.Errorf("reason = %q, want %q", d.Reason, ReasonCooldown)
			}
		})
	}
}

func TestCooldownIsPerStore(t *testing.T) {
	c := newClock()
	th := newThrottle(c, NewMemoryLog())
	ctx := context.Background()

	th.Allow(ctx, "rewe|", []string{"l1"})
	c.advance(time.Minute)
	if d, _ := th.Allow(ctx, "aldi|", []string{"l2"}); !d.Allowed {
		t.Errorf("other store suppressed: %+v", d)
	}
}

func TestSpamLimit(t *testing.T) {
	c := newClock()
	th := newThrottle(c, NewMemoryLog())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, _ := th.Allow(ctx, "rewe|", []string{string(rune('a' + i))})
		if !d.Allowed {
			t.Fatalf("firing %d suppressed: %+v", i, d)
		}
		c.advance(31 * time.Minute)
	}
	d, _ := th.Allow(ctx, "rewe|", []string{"z"})
	if d.Allowed || d.Reason != ReasonSpamLimit {
		t.Errorf("sixth firing = %+v, want spam_limit", d)
	}

	// Once the oldest firing leaves the 4h window the store is allowed again.
	c.advance(4*time.Hour - 5*31*time.Minute + time.Minute)
	if d, _ := th.Allow(ctx, "rewe|", []string{"z"}); !d.Allowed {
		t.Errorf("firing after window = %+v, want allowed", d)
	}
}

func TestListRecentlyNotified(t *testing.T) {
	c := newClock()
	th := newThrottle(c, NewMemoryLog())
	ctx := context.Background()

	th.Allow(ctx, "rewe|", []string{"l1", "l2"})
	c.advance(time.Hour)

	d, _ := th.Allow(ctx, "rewe|", []string{"l3", "l2"})
	if d.Allowed || d.Reason != ReasonListRecentlyNotified {
		t.Errorf("decision = %+v, want list_recently_notified", d)
	}

	c.advance(61 * time.Minute)
	if d, _ := th.Allow(ctx, "rewe|", []string{"l2"}); !d.Allowed {
		t.Errorf("decision after 2h = %+v, want allowed", d)
	}
}

func TestCheckDoesNotRecord(t *testing.T) {
	c := newClock()
	log := NewMemoryLog()
	th := newThrottle(c, log)

	th.Check(context.Background(), "rewe|", []string{"l1"})
	if log.Len() != 0 {
		t.Errorf("check recorded %d entries", log.Len())
	}
}

func TestFireRecordsOnlyShownReminders(t *testing.T) {
	c := newClock()
	log := NewMemoryLog()
	th := newThrottle(c, log)
	ctx := context.Background()

	d, err := th.Fire(ctx, "rewe|", []string{"l1"}, func() error { return errors.New("offline") })
	if !errors.Is(err, ErrNotShown) {
		t.Fatalf("expected ErrNotShown, got %v", err)
	}
	if !d.Allowed {
		t.Errorf("decision = %+v, want allowed", d)
	}
	if log.Len() != 0 {
		t.Fatalf("failed reminder recorded %d entries", log.Len())
	}

	called := false
	d, err = th.Fire(ctx, "rewe|", []string{"l1"}, func() error { called = true; return nil })
	if err != nil || !d.Allowed || !called {
		t.Fatalf("second fire = %+v, %v, called=%v", d, err, called)
	}
	if log.Len() != 1 {
		t.Errorf("log entries = %d, want 1", log.Len())
	}

	called = false
	d, _ = th.Fire(ctx, "rewe|", []string{"l1"}, func() error { called = true; return nil })
	if d.Allowed || called {
		t.Errorf("fire during cooldown = %+v, called=%v", d, called)
	}
}

func TestPruneOnRead(t *testing.T) {
	c := newClock()
	log := NewMemoryLog()
	th := newThrottle(c, log)
	ctx := context.Background()

	th.Allow(ctx, "rewe|", []string{"l1"})
	c.advance(25 * time.Hour)
	th.Check(ctx, "aldi|", nil)
	if log.Len() != 0 {
		t.Errorf("records after 25h = %d, want 0", log.Len())
	}
}

type failingLog struct{ MemoryLog }

func (f *failingLog) Since(context.Context, string, time.Time) ([]model.NotificationRecord, error) {
	return nil, errors.New("storage unavailable")
}

func TestUnreadableHistoryAllows(t *testing.T) {
	th := newThrottle(newClock(), &failingLog{})
	if d := th.Check(context.Background(), "rewe|", []string{"l1"}); !d.Allowed {
		t.Errorf("decision = %+v, want allowed when history is unreadable", d)
	}
}

func TestSQLiteLog(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "basket.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	c := newClock()
	th := newThrottle(c, store.NewNotificationLogStore(db))
	ctx := context.Background()

	if d, err := th.Allow(ctx, "rewe|", []string{"l1"}); err != nil || !d.Allowed {
		t.Fatalf("first = %+v, %v", d, err)
	}
	c.advance(10 * time.Minute)
	if d, _ := th.Allow(ctx, "rewe|", []string{"l9"}); d.Reason != ReasonCooldown {
		t.Errorf("second = %+v, want cooldown", d)
	}
}
