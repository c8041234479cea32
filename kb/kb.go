package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/atmos-simulator/model"
)

var (
	// ErrEntityNotFound is returned for deleted or never-issued handles.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrComponentMissing is returned when an entity lacks a required component.
	ErrComponentMissing = errors.New("component missing")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventEntityCreated EventType = iota
	EventEntityDeleted
	EventAnchorChanged
	EventMoved
	EventContainerInserted
	EventContainerRemoved
	EventDeviceEnabled
	EventDeviceDisabled
)

func (t EventType) String() string {
	switch t {
	case EventEntityCreated:
		return "entity_created"
	case EventEntityDeleted:
		return "entity_deleted"
	case EventAnchorChanged:
		return "anchor_changed"
	case EventMoved:
		return "moved"
	case EventContainerInserted:
		return "container_inserted"
	case EventContainerRemoved:
		return "container_removed"
	case EventDeviceEnabled:
		return "device_enabled"
	case EventDeviceDisabled:
		return "device_disabled"
	}
	return "unknown"
}

// Event is emitted to subscribers when an entity's topology changes. Which
// payload fields are meaningful depends on Type.
type Event struct {
	Type   EventType
	Entity model.Entity

	// EventAnchorChanged
	Anchored bool
	// EventMoved, and the position of EventAnchorChanged
	From model.Vec2i
	To   model.Vec2i
	// EventContainerInserted / EventContainerRemoved
	Slot      string
	Contained model.Entity
}

// Topology reports whether the event can change pipe connectivity.
func (e Event) Topology() bool {
	switch e.Type {
	case EventEntityDeleted, EventAnchorChanged, EventMoved, EventContainerInserted, EventContainerRemoved:
		return true
	}
	return false
}

type slot struct {
	generation uint32
	alive      bool
	name       string
	transform  model.Transform
}

// KnowledgeBase is the entity registry: it issues generation-checked handles,
// tracks each entity's name and transform, and fans topology events out to
// subscribers.
type KnowledgeBase struct {
	mu sync.RWMutex

	slots []slot
	free  []uint32
	count int

	subs   map[int]func(Event)
	nextID int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{subs: make(map[int]func(Event))}
}

// Create issues a new entity at pos. New entities start unanchored.
func (kb *KnowledgeBase) Create(name string, pos model.Vec2i) model.Entity {
	kb.mu.Lock()
	var idx uint32
	if n := len(kb.free); n > 0 {
		idx = kb.free[n-1]
		kb.free = kb.free[:n-1]
	} else {
		kb.slots = append(kb.slots, slot{})
		idx = uint32(len(kb.slots) - 1)
	}
	s := &kb.slots[idx]
	s.generation++
	s.alive = true
	s.name = name
	s.transform = model.Transform{Pos: pos}
	kb.count++
	e := model.Entity{Index: idx, Generation: s.generation}
	kb.mu.Unlock()

	kb.Publish(Event{Type: EventEntityCreated, Entity: e, To: pos})
	return e
}

// Delete removes an entity. Subscribers see EventEntityDeleted before the
// handle is invalidated so they can still resolve its components.
func (kb *KnowledgeBase) Delete(e model.Entity) error {
	kb.mu.RLock()
	s, ok := kb.lookupLocked(e)
	var pos model.Vec2i
	if ok {
		pos = s.transform.Pos
	}
	kb.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, e)
	}

	kb.Publish(Event{Type: EventEntityDeleted, Entity: e, From: pos})

	kb.mu.Lock()
	defer kb.mu.Unlock()
	if s, ok := kb.lookupLocked(e); ok {
		s.alive = false
		s.name = ""
		kb.free = append(kb.free, e.Index)
		kb.count--
	}
	return nil
}

// Alive reports whether e refers to a live entity.
func (kb *KnowledgeBase) Alive(e model.Entity) bool {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	_, ok := kb.lookupLocked(e)
	return ok
}

// Name returns the entity's name, or "" when it does not exist.
func (kb *KnowledgeBase) Name(e model.Entity) string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	if s, ok := kb.lookupLocked(e); ok {
		return s.name
	}
	return ""
}

// Transform returns the entity's placement.
func (kb *KnowledgeBase) Transform(e model.Entity) (model.Transform, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	s, ok := kb.lookupLocked(e)
	if !ok {
		return model.Transform{}, fmt.Errorf("%w: %s", ErrEntityNotFound, e)
	}
	return s.transform, nil
}

// SetAnchored changes the anchor state and notifies subscribers when it
// actually changed.
func (kb *KnowledgeBase) SetAnchored(e model.Entity, anchored bool) error {
	kb.mu.Lock()
	s, ok := kb.lookupLocked(e)
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEntityNotFound, e)
	}
	if s.transform.Anchored == anchored {
		kb.mu.Unlock()
		return nil
	}
	s.transform.Anchored = anchored
	pos := s.transform.Pos
	kb.mu.Unlock()

	kb.Publish(Event{Type: EventAnchorChanged, Entity: e, Anchored: anchored, From: pos, To: pos})
	return nil
}

// Move places an entity on another tile.
func (kb *KnowledgeBase) Move(e model.Entity, to model.Vec2i) error {
	kb.mu.Lock()
	s, ok := kb.lookupLocked(e)
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEntityNotFound, e)
	}
	from := s.transform.Pos
	if from == to {
		kb.mu.Unlock()
		return nil
	}
	s.transform.Pos = to
	kb.mu.Unlock()

	kb.Publish(Event{Type: EventMoved, Entity: e, From: from, To: to})
	return nil
}

// Entities returns every live entity ordered by index.
func (kb *KnowledgeBase) Entities() []model.Entity {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := make([]model.Entity, 0, kb.count)
	for i := range kb.slots {
		if kb.slots[i].alive {
			out = append(out, model.Entity{Index: uint32(i), Generation: kb.slots[i].generation})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Len returns the number of live entities.
func (kb *KnowledgeBase) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.count
}

// Publish delivers ev to every subscriber. Subscribers run outside the lock.
func (kb *KnowledgeBase) Publish(ev Event) {
	kb.mu.RLock()
	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, kb.subs[id])
	}
	kb.mu.RUnlock()

	for _, sub := range subs {
		sub(ev)
	}
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextID
	kb.nextID++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

func (kb *KnowledgeBase) lookupLocked(e model.Entity) (*slot, bool) {
	if !e.Valid() || int(e.Index) >= len(kb.slots) {
		return nil, false
	}
	s := &kb.slots[e.Index]
	if !s.alive || s.generation != e.Generation {
		return nil, false
	}
	return s, true
}
