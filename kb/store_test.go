package kb

import (
	"testing"

	"github.com/signalsfoundry/atmos-simulator/model"
)

type pressure struct{ kPa float64 }

func TestStoreSetGetRemove(t *testing.T) {
	s := NewStore[pressure]()
	a := model.Entity{Index: 0, Generation: 1}
	b := model.Entity{Index: 5, Generation: 1}

	s.Set(a, pressure{1})
	s.Set(b, pressure{2})
	if got, ok := s.Get(b); !ok || got.kPa != 2 {
		t.Fatalf("Get(b) = %v, %v, want 2, true", got, ok)
	}

	p, _ := s.Get(a)
	p.kPa = 10
	if got, _ := s.Get(a); got.kPa != 10 {
		t.Fatalf("mutation through pointer lost: %v", got.kPa)
	}

	if !s.Remove(a) {
		t.Fatalf("Remove(a) = false, want true")
	}
	if s.Has(a) {
		t.Fatalf("Has(a) after remove")
	}
	if got, ok := s.Get(b); !ok || got.kPa != 2 {
		t.Fatalf("Get(b) after swap-remove = %v, %v", got, ok)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
}

func TestStoreRejectsStaleGeneration(t *testing.T) {
	s := NewStore[pressure]()
	old := model.Entity{Index: 3, Generation: 1}
	fresh := model.Entity{Index: 3, Generation: 2}

	s.Set(old, pressure{1})
	if s.Has(fresh) {
		t.Fatalf("fresh handle resolved to a stale component")
	}
	s.Set(fresh, pressure{2})
	if s.Has(old) {
		t.Fatalf("stale handle still resolves after reuse")
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
}

func TestStoreEachVisitsAll(t *testing.T) {
	s := NewStore[pressure]()
	for i := uint32(0); i < 4; i++ {
		s.Set(model.Entity{Index: i, Generation: 1}, pressure{float64(i)})
	}
	var sum float64
	s.Each(func(_ model.Entity, p *pressure) { sum += p.kPa })
	if sum != 6 {
		t.Fatalf("sum = %v, want 6", sum)
	}
}
