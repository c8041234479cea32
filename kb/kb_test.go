package kb

import (
	"errors"
	"sync"
	"testing"

	"github.com/signalsfoundry/atmos-simulator/model"
)

func TestCreateAndLookup(t *testing.T) {
	store := NewKnowledgeBase()
	e := store.Create("vent", model.Vec2i{X: 2, Y: 3})

	if !store.Alive(e) {
		t.Fatalf("Alive(%s) = false, want true", e)
	}
	if got := store.Name(e); got != "vent" {
		t.Fatalf("Name(%s) = %q, want vent", e, got)
	}
	tr, err := store.Transform(e)
	if err != nil {
		t.Fatalf("Transform error: %v", err)
	}
	if tr.Pos != (model.Vec2i{X: 2, Y: 3}) || tr.Anchored {
		t.Fatalf("Transform = %+v, want unanchored at (2,3)", tr)
	}
}

func TestDeleteInvalidatesHandleAndReusesSlot(t *testing.T) {
	store := NewKnowledgeBase()
	a := store.Create("a", model.Vec2i{})
	if err := store.Delete(a); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if store.Alive(a) {
		t.Fatalf("deleted entity still alive")
	}
	if err := store.Delete(a); !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("second Delete error = %v, want ErrEntityNotFound", err)
	}

	b := store.Create("b", model.Vec2i{})
	if b.Index != a.Index {
		t.Fatalf("Create reused index %d, want %d", b.Index, a.Index)
	}
	if b.Generation == a.Generation {
		t.Fatalf("reused slot kept generation %d", b.Generation)
	}
	if store.Alive(a) {
		t.Fatalf("stale handle resolved after slot reuse")
	}
}

func TestSubscribeReceivesTopologyEvents(t *testing.T) {
	store := NewKnowledgeBase()
	var got []EventType
	unsubscribe := store.Subscribe(func(ev Event) { got = append(got, ev.Type) })

	e := store.Create("pipe", model.Vec2i{})
	if err := store.SetAnchored(e, true); err != nil {
		t.Fatalf("SetAnchored error: %v", err)
	}
	// No change, no event.
	if err := store.SetAnchored(e, true); err != nil {
		t.Fatalf("SetAnchored error: %v", err)
	}
	if err := store.Move(e, model.Vec2i{X: 1}); err != nil {
		t.Fatalf("Move error: %v", err)
	}
	if err := store.Delete(e); err != nil {
		t.Fatalf("Delete error: %v", err)
	}

	want := []EventType{EventEntityCreated, EventAnchorChanged, EventMoved, EventEntityDeleted}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	unsubscribe()
	store.Create("other", model.Vec2i{})
	if len(got) != len(want) {
		t.Fatalf("received event after unsubscribe")
	}
}

func TestDeleteEventSeesLiveEntity(t *testing.T) {
	store := NewKnowledgeBase()
	e := store.Create("tank", model.Vec2i{})
	var aliveDuringEvent bool
	store.Subscribe(func(ev Event) {
		if ev.Type == EventEntityDeleted {
			aliveDuringEvent = store.Alive(ev.Entity)
		}
	})
	if err := store.Delete(e); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if !aliveDuringEvent {
		t.Fatalf("entity already invalid while delete event was dispatched")
	}
}

func TestConcurrentCreate(t *testing.T) {
	store := NewKnowledgeBase()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				store.Create("x", model.Vec2i{X: j})
			}
		}()
	}
	wg.Wait()
	if got := store.Len(); got != 400 {
		t.Fatalf("Len() = %d, want 400", got)
	}
	if got := len(store.Entities()); got != 400 {
		t.Fatalf("len(Entities()) = %d, want 400", got)
	}
}
