// Package localstore is the durable, per-identity slot that holds the full
// shopping-list collection. Reads and writes never fail from the caller's
// point of view: backend problems are logged and degrade to the in-process
// copy or an empty collection.
package localstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/basket/internal/model"
)

// DefaultBase is the namespace prefix used by the daemon.
const DefaultBase = "basket"

const backendTimeout = 2 * time.Second

// Namespace derives the storage slot for an identity. Unauthenticated callers
// (or an empty user id) all share the guest slot.
func Namespace(base string, authenticated bool, userID string) string {
	if !authenticated || userID == "" {
		return base + ":guest"
	}
	return base + ":user:" + userID
}

// Backend persists serialized slot values.
type Backend interface {
	Get(ctx context.Context, namespace string) ([]byte, bool, error)
	Put(ctx context.Context, namespace string, value []byte) error
}

// Change describes a write to a namespace. External is true when the write
// came from another instance sharing the same backend.
type Change struct {
	Namespace string
	External  bool
}

type Store struct {
	backend  Backend
	notifier Notifier
	logger   *slog.Logger

	writeMu sync.Mutex // orders backend writes with cache updates

	mu    sync.RWMutex
	cache map[string][]model.ShoppingList

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Store. A nil notifier keeps change notification in-process.
func New(backend Backend, notifier Notifier, logger *slog.Logger) *Store {
	if notifier == nil {
		notifier = LocalNotifier{}
	}
	return &Store{
		backend:  backend,
		notifier: notifier,
		logger:   logger,
		cache:    make(map[string][]model.ShoppingList),
		subs:     make(map[int]func(Change)),
	}
}

// Read returns a copy of the collection stored under namespace.
func (s *Store) Read(namespace string) []model.ShoppingList {
	s.mu.RLock()
	cached, ok := s.cache[namespace]
	s.mu.RUnlock()
	if ok {
		return model.CloneLists(cached)
	}

	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()

	data, found, err := s.backend.Get(ctx, namespace)
	if err != nil {
		s.logger.Warn("read local slot", "namespace", namespace, "error", err)
		return []model.ShoppingList{}
	}

	lists := []model.ShoppingList{}
	if found && len(data) > 0 {
		if err := json.Unmarshal(data, &lists); err != nil {
			s.logger.Warn("decode local slot", "namespace", namespace, "error", err)
			lists = []model.ShoppingList{}
		}
	}

	s.mu.Lock()
	// A concurrent Write wins over what we just loaded.
	if current, ok := s.cache[namespace]; ok {
		lists = current
	} else {
		s.cache[namespace] = lists
	}
	s.mu.Unlock()

	return model.CloneLists(lists)
}

// Write replaces the collection stored under namespace. The new value is
// visible to Read immediately, even when persisting it fails.
func (s *Store) Write(namespace string, lists []model.ShoppingList) {
	value := model.CloneLists(lists)
	if value == nil {
		value = []model.ShoppingList{}
	}

	s.writeMu.Lock()
	s.mu.Lock()
	s.cache[namespace] = value
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()

	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("encode local slot", "namespace", namespace, "error", err)
	} else if err := s.backend.Put(ctx, namespace, data); err != nil {
		s.logger.Error("write local slot", "namespace", namespace, "error", err)
	} else if err := s.notifier.Publish(ctx, namespace); err != nil {
		s.logger.Warn("publish local slot change", "namespace", namespace, "error", err)
	}
	s.writeMu.Unlock()

	s.emit(Change{Namespace: namespace})
}

// Subscribe registers fn for every change; the returned func unregisters it.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) emit(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// handleExternal drops the cached copy so the next Read reloads what the
// other instance wrote.
func (s *Store) handleExternal(namespace string) {
	s.mu.Lock()
	delete(s.cache, namespace)
	s.mu.Unlock()

	s.logger.Debug("local slot changed externally", "namespace", namespace)
	s.emit(Change{Namespace: namespace, External: true})
}

// Start listens for changes made by other instances until Stop is called.
func (s *Store) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		if err := s.notifier.Listen(ctx, s.handleExternal); err != nil && ctx.Err() == nil {
			s.logger.Error("listen for local slot changes", "error", err)
		}
	}()
}

func (s *Store) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}
