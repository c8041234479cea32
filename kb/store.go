package kb

import "github.com/signalsfoundry/atmos-simulator/model"

// Store is a dense component array indexed by entity handle. Pointers
// returned by Get and Each stay valid until the next Set or Remove on the
// same store.
//
// A Store is not safe for concurrent use.
type Store[T any] struct {
	sparse []int32
	dense  []T
	owners []model.Entity
}

// NewStore returns an empty store.
func NewStore[T any]() *Store[T] {
	return &Store[T]{}
}

// Set attaches or replaces e's component.
func (s *Store[T]) Set(e model.Entity, c T) {
	if !e.Valid() {
		return
	}
	if slot, ok := s.slot(e); ok {
		s.dense[slot] = c
		return
	}
	for int(e.Index) >= len(s.sparse) {
		s.sparse = append(s.sparse, -1)
	}
	if old := s.sparse[e.Index]; old >= 0 {
		// A stale generation still occupies the index.
		s.removeSlot(int(old))
	}
	s.sparse[e.Index] = int32(len(s.dense))
	s.dense = append(s.dense, c)
	s.owners = append(s.owners, e)
}

// Get returns e's component.
func (s *Store[T]) Get(e model.Entity) (*T, bool) {
	slot, ok := s.slot(e)
	if !ok {
		return nil, false
	}
	return &s.dense[slot], true
}

// Has reports whether e carries this component.
func (s *Store[T]) Has(e model.Entity) bool {
	_, ok := s.slot(e)
	return ok
}

// Remove detaches e's component and reports whether it was present.
func (s *Store[T]) Remove(e model.Entity) bool {
	slot, ok := s.slot(e)
	if !ok {
		return false
	}
	s.removeSlot(slot)
	return true
}

// Len returns the number of components.
func (s *Store[T]) Len() int { return len(s.dense) }

// Entities returns a copy of the owning entities in dense order.
func (s *Store[T]) Entities() []model.Entity {
	return append([]model.Entity(nil), s.owners...)
}

// Each calls fn for every component in dense order. fn must not add or
// remove components of this store.
func (s *Store[T]) Each(fn func(model.Entity, *T)) {
	for i := range s.dense {
		fn(s.owners[i], &s.dense[i])
	}
}

func (s *Store[T]) slot(e model.Entity) (int, bool) {
	if !e.Valid() || int(e.Index) >= len(s.sparse) {
		return 0, false
	}
	idx := s.sparse[e.Index]
	if idx < 0 || s.owners[idx] != e {
		return 0, false
	}
	return int(idx), true
}

func (s *Store[T]) removeSlot(slot int) {
	last := len(s.dense) - 1
	removed := s.owners[slot]
	if slot != last {
		s.dense[slot] = s.dense[last]
		s.owners[slot] = s.owners[last]
		s.sparse[s.owners[slot].Index] = int32(slot)
	}
	var zero T
	s.dense[last] = zero
	s.dense = s.dense[:last]
	s.owners = s.owners[:last]
	s.sparse[removed.Index] = -1
}
