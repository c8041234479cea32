package devices

import (
	"sort"
	"sync"

	"github.com/signalsfoundry/atmos-simulator/model"
)

// AppearanceChange is published whenever a device's visual state changes.
type AppearanceChange struct {
	Entity model.Entity
	Old    model.Appearance
	New    model.Appearance
}

// AppearanceSystem is the only writer of device appearances. Device systems
// compute the appearance they want and hand it to Apply; subscribers (a
// rendering layer, the inspection API) see only actual changes.
type AppearanceSystem struct {
	mu      sync.RWMutex
	current map[model.Entity]model.Appearance
	subs    map[int]func(AppearanceChange)
	nextID  int
}

func NewAppearanceSystem() *AppearanceSystem {
	return &AppearanceSystem{
		current: make(map[model.Entity]model.Appearance),
		subs:    make(map[int]func(AppearanceChange)),
	}
}

// Apply stores app for e and notifies subscribers when it differs from the
// stored value. It reports whether anything changed.
func (a *AppearanceSystem) Apply(e model.Entity, app model.Appearance) bool {
	a.mu.Lock()
	old, seen := a.current[e]
	if seen && old == app {
		a.mu.Unlock()
		return false
	}
	a.current[e] = app
	subs := a.subscribersLocked()
	a.mu.Unlock()

	change := AppearanceChange{Entity: e, Old: old, New: app}
	for _, fn := range subs {
		fn(change)
	}
	return true
}

// Get returns e's current appearance.
func (a *AppearanceSystem) Get(e model.Entity) (model.Appearance, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	app, ok := a.current[e]
	return app, ok
}

// Remove forgets e.
func (a *AppearanceSystem) Remove(e model.Entity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.current, e)
}

// Subscribe registers fn for appearance changes and returns an unsubscribe
// function.
func (a *AppearanceSystem) Subscribe(fn func(AppearanceChange)) (unsubscribe func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.subs[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.subs, id)
	}
}

func (a *AppearanceSystem) subscribersLocked() []func(AppearanceChange) {
	ids := make([]int, 0, len(a.subs))
	for id := range a.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(AppearanceChange), 0, len(ids))
	for _, id := range ids {
		out = append(out, a.subs[id])
	}
	return out
}

// update merges a computed appearance over e's stored one with fn and
// applies the result.
func (a *AppearanceSystem) update(e model.Entity, fn func(*model.Appearance)) {
	app, ok := a.Get(e)
	if !ok {
		app = model.Appearance{PressureTier: model.NoGauge}
	}
	fn(&app)
	a.Apply(e, app)
}
