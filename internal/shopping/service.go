// Package shopping is the mutation API for shopping lists. Every mutation
// is applied to the local store immediately; when a user is signed in, the
// equivalent remote mutation is queued for delivery.
package shopping

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dukerupert/basket/internal/localstore"
	"github.com/dukerupert/basket/internal/model"
	"github.com/dukerupert/basket/internal/remote"
	"github.com/dukerupert/basket/internal/syncqueue"
	"github.com/google/uuid"
)

// Queue accepts remote operations for ordered delivery.
type Queue interface {
	Enqueue(op syncqueue.Operation)
	Busy() bool
}

type Service struct {
	local  *localstore.Store
	queue  Queue
	remote remote.Store
	base   string
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu            sync.Mutex
	authenticated bool
	userID        string
	namespace     string
	lastDeleted   *Deleted
	remoteIDs     map[string]string // local id -> remote id

	listenMu  sync.Mutex
	listeners []func(Event)
}

// NewService creates a Service that starts in the guest namespace. A nil
// remote store or queue disables the remote phase.
func NewService(local *localstore.Store, queue Queue, rs remote.Store, logger *slog.Logger) *Service {
	return &Service{
		local:     local,
		queue:     queue,
		remote:    rs,
		base:      localstore.DefaultBase,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
		namespace: localstore.Namespace(localstore.DefaultBase, false, ""),
		remoteIDs: make(map[string]string),
	}
}

// WithClock replaces the clock used for timestamps. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// OnChange registers fn for every mutation event.
func (s *Service) OnChange(fn func(Event)) {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Service) emit(events ...Event) {
	s.listenMu.Lock()
	fns := slices.Clone(s.listeners)
	s.listenMu.Unlock()
	for _, e := range events {
		for _, fn := range fns {
			fn(e)
		}
	}
}

// Identity returns the current session.
func (s *Service) Identity() (authenticated bool, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated, s.userID
}

// Namespace returns the local store slot currently in use.
func (s *Service) Namespace() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namespace
}

// SyncEnabled reports whether mutations are currently pushed remotely.
func (s *Service) SyncEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncingLocked()
}

func (s *Service) syncingLocked() bool {
	return s.authenticated && s.userID != "" && s.remote != nil && s.queue != nil
}

// SwitchIdentity changes the active namespace. Queued operations keep the
// user id they were created with.
func (s *Service) SwitchIdentity(authenticated bool, userID string) {
	s.mu.Lock()
	s.authenticated = authenticated && userID != ""
	s.userID = ""
	if s.authenticated {
		s.userID = userID
	}
	s.namespace = localstore.Namespace(s.base, s.authenticated, s.userID)
	s.lastDeleted = nil
	ns := s.namespace
	s.mu.Unlock()

	s.logger.Info("identity switched", "authenticated", authenticated, "namespace", ns)
	s.emit(Event{Entity: "list", Action: "reloaded"})
}

// Plan is the outcome of a reconciliation. Lists replaces the active
// collection; Create and Update name lists whose local version must be
// pushed remotely, as new documents or over existing ones.
type Plan struct {
	Lists  []model.ShoppingList
	Create []string
	Update []string
}

// Reconcile replaces the active collection with the plan fn returns. fn
// gets the signed-in user id ("" for guests) and whether remote operations
// are pending so it can avoid discarding them. Mutations are blocked while
// fn runs, so fn must not call back into the Service. A nil plan changes
// nothing.
func (s *Service) Reconcile(fn func(current []model.ShoppingList, userID string, busy bool) *Plan) {
	s.mu.Lock()
	busy := s.queue != nil && s.queue.Busy()
	plan := fn(s.local.Read(s.namespace), s.userID, busy)
	if plan != nil {
		s.rememberRemoteIDsLocked(plan.Lists)
		s.local.Write(s.namespace, plan.Lists)
		if s.syncingLocked() {
			s.enqueuePlanLocked(plan)
		}
	}
	s.mu.Unlock()

	if plan != nil {
		s.emit(Event{Entity: "list", Action: "reloaded"})
	}
}

// ReadNamespace returns the collection stored under ns.
func (s *Service) ReadNamespace(ns string) []model.ShoppingList {
	return s.local.Read(ns)
}

func (s *Service) rememberRemoteIDsLocked(lists []model.ShoppingList) {
	for _, l := range lists {
		if l.RemoteID != "" {
			s.remoteIDs[l.ID] = l.RemoteID
		}
		for _, it := range l.Items {
			if it.RemoteID != "" {
				s.remoteIDs[it.ID] = it.RemoteID
			}
		}
	}
}

func (s *Service) nowMillis() int64 {
	return s.now().UnixMilli()
}

// touch advances updatedAt without ever moving it backwards.
func (s *Service) touch(prev int64) int64 {
	return max(s.nowMillis(), prev)
}

// Lists returns the active collection.
func (s *Service) Lists() []model.ShoppingList {
	s.mu.Lock()
	ns := s.namespace
	s.mu.Unlock()
	return s.local.Read(ns)
}

// List returns one list of the active collection.
func (s *Service) List(id string) (model.ShoppingList, error) {
	for _, l := range s.Lists() {
		if l.ID == id {
			return l, nil
		}
	}
	return model.ShoppingList{}, ErrListNotFound
}

// LastDeleted returns the undo slot, or nil.
func (s *Service) LastDeleted() *Deleted {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastDeleted == nil {
		return nil
	}
	d := *s.lastDeleted
	return &d
}

func findList(lists []model.ShoppingList, id string) int {
	for i := range lists {
		if lists[i].ID == id {
			return i
		}
	}
	return -1
}
