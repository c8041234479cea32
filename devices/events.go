package devices

import (
	"context"

	"github.com/signalsfoundry/atmos-simulator/core"
	"github.com/signalsfoundry/atmos-simulator/internal/logging"
	"github.com/signalsfoundry/atmos-simulator/kb"
	"github.com/signalsfoundry/atmos-simulator/model"
)

// Bind routes registry events to builder first and then to w. It returns
// an unsubscribe function.
func (w *World) Bind(builder *core.NetworkBuilder) (unsubscribe func()) {
	return w.KB.Subscribe(func(ev kb.Event) {
		if builder != nil {
			builder.HandleEvent(ev)
		}
		w.HandleEvent(ev)
	})
}

// HandleEvent keeps device components in step with registry changes.
func (w *World) HandleEvent(ev kb.Event) {
	switch ev.Type {
	case kb.EventEntityDeleted:
		w.handleDeleted(context.Background(), ev)
	case kb.EventAnchorChanged:
		w.handleAnchorChanged(ev)
	case kb.EventContainerInserted, kb.EventContainerRemoved:
		w.handleContainer(ev)
	case kb.EventDeviceDisabled:
		if w.Devices.Has(ev.Entity) {
			w.Appearance.update(ev.Entity, func(app *model.Appearance) {
				app.State = model.VisualOff
				app.Enabled = false
			})
		}
	}
}

func (w *World) handleDeleted(ctx context.Context, ev kb.Event) {
	e := ev.Entity
	if c, ok := w.Canisters.Get(e); ok {
		if slot, ok := w.Slots.Get(e); ok && !slot.Empty() {
			tank := slot.Contained
			slot.Contained = model.NoEntity
			_ = w.KB.Move(tank, ev.From)
		}
		if !c.Air.IsEmpty() {
			w.purgeAt(ctx, e, c, ev.From)
		}
	}
	if tank, ok := w.PortableTanks.Get(e); ok {
		if owner, held := w.holder(e); held {
			if slot, ok := w.Slots.Get(owner); ok {
				slot.Contained = model.NoEntity
			}
			w.uiDirty.Put(owner)
			w.Appearance.update(owner, func(app *model.Appearance) { app.TankInserted = false })
		}
		if env := w.Atmos.GetTileMixture(ev.From); env != nil {
			w.Atmos.Merge(env, tank.Air)
		}
	}
	w.Forget(e)
}

func (w *World) handleAnchorChanged(ev kb.Event) {
	e := ev.Entity
	dev, ok := w.Devices.Get(e)
	if !ok {
		return
	}
	dev.Joined = ev.Anchored
	portable := w.Portables.Has(e)
	if portable {
		w.Graph.SetOwnerConnections(e, ev.Anchored)
	}
	if !dev.RequireAnchored && !portable {
		return
	}
	typ := kb.EventDeviceDisabled
	if ev.Anchored {
		typ = kb.EventDeviceEnabled
	}
	w.KB.Publish(kb.Event{Type: typ, Entity: e})
}

func (w *World) handleContainer(ev kb.Event) {
	c, ok := w.Canisters.Get(ev.Entity)
	if !ok || ev.Slot != c.Slot {
		return
	}
	inserted := ev.Type == kb.EventContainerInserted
	w.uiDirty.Put(ev.Entity)
	w.Appearance.update(ev.Entity, func(app *model.Appearance) { app.TankInserted = inserted })
	w.log.Debug(context.Background(), "canister slot changed",
		logging.String("canister", ev.Entity.String()),
		logging.String("tank", ev.Contained.String()),
		logging.Bool("inserted", inserted),
	)
}
