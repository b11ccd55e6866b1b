package proximity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/basket/internal/geo"
	"github.com/dukerupert/basket/internal/model"
	"github.com/dukerupert/basket/internal/notify"
	"github.com/dukerupert/basket/internal/throttle"
)

// DefaultAutoClose is how long an alert stays up before it is closed.
const DefaultAutoClose = 10 * time.Second

var ErrRunning = errors.New("tracker already running")

// Stores lists the known supermarkets.
type Stores interface {
	List(ctx context.Context) ([]model.Supermarket, error)
}

// Lists returns the active shopping lists.
type Lists interface {
	Lists() []model.ShoppingList
}

// Router estimates a walking route. It never fails.
type Router interface {
	Route(ctx context.Context, lat1, lon1, lat2, lon2 float64) geo.Route
}

type Config struct {
	Threshold float64 // meters
	AutoClose time.Duration
}

// Notice is the evaluation of one nearby store.
type Notice struct {
	Store    model.Supermarket `json:"store"`
	Meters   float64           `json:"meters"`
	Decision throttle.Decision `json:"decision"`
	Alert    *notify.Alert     `json:"alert,omitempty"`
	Route    *geo.Route        `json:"route,omitempty"`
}

type Tracker struct {
	stores     Stores
	lists      Lists
	throttle   *throttle.Throttle
	dispatcher notify.Dispatcher
	router     Router
	cache      *geo.DistanceCache
	cfg        Config
	logger     *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	unwatch func()
	timers  map[string]*time.Timer
}

// NewTracker creates a Tracker. A nil router uses the straight-line
// estimate for alert text.
func NewTracker(stores Stores, lists Lists, th *throttle.Throttle, d notify.Dispatcher, router Router, cfg Config, logger *slog.Logger) *Tracker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = geo.DefaultThreshold
	}
	if cfg.AutoClose <= 0 {
		cfg.AutoClose = DefaultAutoClose
	}
	return &Tracker{
		stores:     stores,
		lists:      lists,
		throttle:   th,
		dispatcher: d,
		router:     router,
		cache:      geo.NewDistanceCache(),
		cfg:        cfg,
		logger:     logger,
		timers:     make(map[string]*time.Timer),
	}
}

// WithCache replaces the distance cache. Used by tests.
func (t *Tracker) WithCache(c *geo.DistanceCache) *Tracker {
	t.cache = c
	return t
}

// Running reports whether a tracking session is active.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Start begins a tracking session on positions from loc. Positions are
// evaluated one at a time; when evaluations fall behind only the latest
// position is kept.
func (t *Tracker) Start(ctx context.Context, loc Locator) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return ErrRunning
	}

	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	latest := make(chan model.Position, 1)

	offer := func(p model.Position) {
		for {
			select {
			case latest <- p:
				return
			default:
			}
			select {
			case <-latest:
			default:
			}
		}
	}
	t.unwatch = loc.Watch(offer)
	if p, ok := loc.Current(); ok {
		offer(p)
	}

	go func(done chan struct{}) {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case p := <-latest:
				if _, err := t.Evaluate(ctx, p); err != nil && ctx.Err() == nil {
					t.logger.Warn("proximity evaluation failed", "error", err)
				}
			}
		}
	}(t.done)

	t.logger.Info("proximity tracking started", "threshold_m", t.cfg.Threshold)
	return nil
}

// Stop ends the session: the watch is cancelled, in-flight routing is
// abandoned, and pending auto-close timers are stopped.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel, done, unwatch := t.cancel, t.done, t.unwatch
	t.cancel, t.done, t.unwatch = nil, nil, nil
	t.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
		t.logger.Info("proximity tracking stopped")
	}

	t.mu.Lock()
	for tag, timer := range t.timers {
		timer.Stop()
		delete(t.timers, tag)
	}
	t.mu.Unlock()
}

// Evaluate decides whether pos warrants an alert. At most one alert, for
// the closest permitted store, is shown per position.
func (t *Tracker) Evaluate(ctx context.Context, pos model.Position) ([]Notice, error) {
	stores, err := t.stores.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list supermarkets: %w", err)
	}
	nearby := geo.NearbyStores(t.cache, pos, stores, t.cfg.Threshold)
	if len(nearby) == 0 {
		return nil, nil
	}

	eligible := eligibleLists(t.lists.Lists())
	if len(eligible) == 0 {
		return nil, nil
	}
	if !t.dispatcher.Permitted(ctx) {
		t.logger.Debug("alerts not permitted, skipping", "nearby", len(nearby))
		return nil, nil
	}
	ids := make([]string, len(eligible))
	for i, l := range eligible {
		ids[i] = l.ID
	}

	notices := make([]Notice, 0, len(nearby))
	shown := false
	for _, ns := range nearby {
		n := Notice{Store: ns.Store, Meters: ns.Meters}
		key := ns.Store.Key()
		if shown {
			n.Decision = throttle.Decision{Reason: "already_alerted"}
			notices = append(notices, n)
			continue
		}

		n.Decision = t.throttle.Check(ctx, key, ids)
		if !n.Decision.Allowed {
			t.logger.Debug("alert suppressed", "store", key, "reason", n.Decision.Reason)
			notices = append(notices, n)
			continue
		}

		route := t.route(ctx, pos, ns)
		if ctx.Err() != nil {
			return notices, ctx.Err()
		}
		n.Route = &route

		alert := buildAlert(ns.Store, eligible, route)
		d, err := t.throttle.Fire(ctx, key, ids, func() error {
			return t.dispatcher.Show(ctx, alert)
		})
		n.Decision = d
		if errors.Is(err, throttle.ErrNotShown) {
			t.logger.Warn("show alert", "store", key, "error", err)
			notices = append(notices, n)
			continue
		}
		if err != nil {
			t.logger.Warn("record notification", "store", key, "error", err)
		}
		if !d.Allowed {
			notices = append(notices, n)
			continue
		}

		n.Alert = &alert
		t.scheduleClose(alert.Tag)
		shown = true
		notices = append(notices, n)
		t.logger.Info("proximity alert", "store", key, "meters", ns.Meters, "lists", len(ids))
	}
	return notices, nil
}

func (t *Tracker) route(ctx context.Context, pos model.Position, ns geo.NearbyStore) geo.Route {
	if t.router == nil {
		return geo.Estimate(ns.Meters)
	}
	return t.router.Route(ctx, pos.Latitude, pos.Longitude, *ns.Store.Latitude, *ns.Store.Longitude)
}

func (t *Tracker) scheduleClose(tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.timers[tag]; ok {
		old.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(t.cfg.AutoClose, func() {
		t.mu.Lock()
		if t.timers[tag] != timer {
			t.mu.Unlock()
			return
		}
		delete(t.timers, tag)
		t.mu.Unlock()

		if err := t.dispatcher.Close(context.Background(), tag); err != nil {
			t.logger.Warn("close alert", "tag", tag, "error", err)
		}
	})
	t.timers[tag] = timer
}

// PendingCloses returns the number of alerts waiting to be auto-closed.
func (t *Tracker) PendingCloses() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// eligibleLists returns the unarchived lists with something left to buy.
func eligibleLists(lists []model.ShoppingList) []model.ShoppingList {
	var out []model.ShoppingList
	for _, l := range lists {
		if !l.Archived && l.HasIncomplete() {
			out = append(out, l)
		}
	}
	return out
}

func buildAlert(store model.Supermarket, lists []model.ShoppingList, route geo.Route) notify.Alert {
	remaining := 0
	names := make([]string, 0, len(lists))
	for _, l := range lists {
		names = append(names, l.Name)
		for _, it := range l.Items {
			if !it.Completed {
				remaining++
			}
		}
	}

	noun := "items"
	if remaining == 1 {
		noun = "item"
	}
	body := fmt.Sprintf("%d %s to buy on %s. About %.0f min walk (%.2f km).",
		remaining, noun, strings.Join(names, ", "), route.Minutes, route.DistanceKm)

	return notify.Alert{
		Title: "You're near " + store.Name,
		Body:  body,
		Tag:   store.Key(),
		URL:   "/lists/" + lists[0].ID,
	}
}
