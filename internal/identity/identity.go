// Package identity moves the shopping collection between the guest and user
// namespaces on login and logout, and keeps a signed-in collection in step
// with the remote store.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/basket/internal/localstore"
	"github.com/dukerupert/basket/internal/model"
	"github.com/dukerupert/basket/internal/remote"
	"github.com/dukerupert/basket/internal/shopping"
)

// DefaultRetryDelay is the pause before the second remote query on login.
const DefaultRetryDelay = 2 * time.Second

var ErrMissingUser = errors.New("user id is required")

// Outcome describes what a login did.
type Outcome struct {
	UserID    string `json:"user_id"`
	FirstTime bool   `json:"first_time"`
	Deferred  bool   `json:"deferred"` // sync was busy, remote versions not applied
	Lists     int    `json:"lists"`
	Pushed    int    `json:"pushed"`
}

type Handler struct {
	svc        *shopping.Service
	remote     remote.Store
	logger     *slog.Logger
	RetryDelay time.Duration

	mu sync.Mutex // one transition at a time
}

// NewHandler creates a Handler. A nil remote store makes every login a
// local namespace switch that carries over guest lists.
func NewHandler(svc *shopping.Service, rs remote.Store, logger *slog.Logger) *Handler {
	return &Handler{
		svc:        svc,
		remote:     rs,
		logger:     logger,
		RetryDelay: DefaultRetryDelay,
	}
}

func guestNamespace() string {
	return localstore.Namespace(localstore.DefaultBase, false, "")
}

// fetch queries the remote lists, retrying once after RetryDelay.
func (h *Handler) fetch(ctx context.Context, userID string) ([]model.ShoppingList, error) {
	lists, err := h.remote.ListAll(ctx, userID)
	if err == nil {
		return lists, nil
	}
	h.logger.Warn("remote list query failed, retrying", "user", userID, "error", err)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(h.RetryDelay):
	}
	lists, err = h.remote.ListAll(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list remote lists: %w", err)
	}
	return lists, nil
}

// Login switches to the user's namespace. A user with no remote lists is
// seeded from the guest lists; a returning user gets the merge of local and
// remote lists.
func (h *Handler) Login(ctx context.Context, userID string) (Outcome, error) {
	if userID == "" {
		return Outcome{}, ErrMissingUser
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	out := Outcome{UserID: userID}
	guest := h.svc.ReadNamespace(guestNamespace())
	h.svc.SwitchIdentity(true, userID)

	var remoteLists []model.ShoppingList
	if h.remote != nil {
		lists, err := h.fetch(ctx, userID)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			h.logger.Warn("remote lists unavailable, assuming first-time user", "user", userID, "error", err)
		}
		remoteLists = lists
	}
	out.FirstTime = len(remoteLists) == 0

	h.svc.Reconcile(func(current []model.ShoppingList, _ string, busy bool) *shopping.Plan {
		local := Union(current, guest)

		if out.FirstTime {
			plan := &shopping.Plan{Lists: local}
			for _, l := range local {
				if l.RemoteID == "" {
					plan.Create = append(plan.Create, l.ID)
				}
			}
			out.Lists, out.Pushed = len(local), len(plan.Create)
			return plan
		}

		if busy {
			// Lists the remote side has never seen are still queued; creates
			// upsert on the client id, so a pending duplicate is harmless.
			out.Deferred = true
			plan := &shopping.Plan{Lists: addRemoteOnly(local, remoteLists)}
			plan.Create = localOnly(local, remoteLists)
			out.Lists, out.Pushed = len(plan.Lists), len(plan.Create)
			return plan
		}

		m := Merge(local, remoteLists)
		out.Lists, out.Pushed = len(m.Lists), len(m.Create)+len(m.Update)
		return &shopping.Plan{Lists: m.Lists, Create: m.Create, Update: m.Update}
	})

	h.logger.Info("logged in", "user", userID, "first_time", out.FirstTime,
		"lists", out.Lists, "pushed", out.Pushed, "deferred", out.Deferred)
	return out, nil
}

// Logout restores the guest namespace. Pending remote operations of the
// user keep draining.
func (h *Handler) Logout(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, userID := h.svc.Identity()
	h.svc.SwitchIdentity(false, "")
	h.logger.Info("logged out", "user", userID)
}

// Refresh pulls the remote lists and merges them into the active collection.
// It does nothing for guests or while remote operations are pending.
func (h *Handler) Refresh(ctx context.Context) error {
	if h.remote == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	authenticated, userID := h.svc.Identity()
	if !authenticated {
		return nil
	}
	remoteLists, err := h.remote.ListAll(ctx, userID)
	if err != nil {
		return fmt.Errorf("refresh lists: %w", err)
	}

	h.svc.Reconcile(func(current []model.ShoppingList, now string, busy bool) *shopping.Plan {
		if busy {
			h.logger.Debug("refresh skipped, sync in flight")
			return nil
		}
		if now != userID {
			return nil
		}
		m := Merge(current, remoteLists)
		if sameLists(current, m.Lists) && len(m.Create) == 0 && len(m.Update) == 0 {
			return nil
		}
		return &shopping.Plan{Lists: m.Lists, Create: m.Create, Update: m.Update}
	})
	return nil
}

func addRemoteOnly(local, remoteLists []model.ShoppingList) []model.ShoppingList {
	out := model.CloneLists(local)
	known := make(map[string]bool, len(local)*2)
	for _, l := range local {
		known[l.ID] = true
		if l.RemoteID != "" {
			known[l.RemoteID] = true
		}
	}
	for _, r := range remoteLists {
		if !known[r.ID] && !known[r.RemoteID] {
			out = append(out, r.Clone())
		}
	}
	return out
}

// localOnly returns the ids of local lists that were never pushed and have
// no remote counterpart.
func localOnly(local, remoteLists []model.ShoppingList) []string {
	known := make(map[string]bool, len(remoteLists))
	for _, r := range remoteLists {
		known[r.ID] = true
	}
	var ids []string
	for _, l := range local {
		if l.RemoteID == "" && !known[l.ID] {
			ids = append(ids, l.ID)
		}
	}
	return ids
}

func sameLists(a, b []model.ShoppingList) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID || x.RemoteID != y.RemoteID || x.Name != y.Name ||
			x.Archived != y.Archived || x.UpdatedAt != y.UpdatedAt || len(x.Items) != len(y.Items) {
			return false
		}
		for j := range x.Items {
			if x.Items[j] != y.Items[j] {
				return false
			}
		}
	}
	return true
}

// Refresher periodically pulls remote changes for the signed-in user.
type Refresher struct {
	mu       sync.RWMutex
	handler  *Handler
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewRefresher(h *Handler, interval time.Duration, logger *slog.Logger) *Refresher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Refresher{handler: h, interval: interval, logger: logger}
}

// Start begins the refresh loop.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.handler.Refresh(ctx); err != nil && ctx.Err() == nil {
					r.logger.Warn("refresh failed", "error", err)
				}
			}
		}
	}()
}

// Stop stops the loop and waits for it to exit.
func (r *Refresher) Stop() {
	r.mu.RLock()
	cancel := r.cancel
	done := r.done
	r.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
