// Package proximity reminds the user about their lists when they are close
// to a known supermarket.
package proximity

import (
	"sync"

	"github.com/dukerupert/basket/internal/model"
)

// Locator is a geolocation provider: a one-shot fix and a continuous watch.
type Locator interface {
	Current() (model.Position, bool)
	// Watch calls fn for every new fix until the returned cancel is called.
	Watch(fn func(model.Position)) (cancel func())
}

// Feed is a Locator fed by positions reported from the UI.
type Feed struct {
	mu       sync.Mutex
	current  model.Position
	known    bool
	watchers map[int]func(model.Position)
	next     int
}

func NewFeed() *Feed {
	return &Feed{watchers: make(map[int]func(model.Position))}
}

// Update records pos and passes it to every watcher.
func (f *Feed) Update(pos model.Position) {
	f.mu.Lock()
	f.current, f.known = pos, true
	fns := make([]func(model.Position), 0, len(f.watchers))
	for _, fn := range f.watchers {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(pos)
	}
}

func (f *Feed) Current() (model.Position, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.known
}

func (f *Feed) Watch(fn func(model.Position)) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.watchers[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.watchers, id)
			f.mu.Unlock()
		})
	}
}

// Watchers returns the number of active watch registrations.
func (f *Feed) Watchers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watchers)
}
