package devices

import (
	"context"

	"github.com/signalsfoundry/atmos-simulator/core"
	"github.com/signalsfoundry/atmos-simulator/internal/logging"
	"github.com/signalsfoundry/atmos-simulator/model"
)

// StartupSystem runs the one-time startup work of newly spawned devices. It
// goes first in the device order so a tank seeds its net before anything
// reads it.
type StartupSystem struct{ w *World }

func (s *StartupSystem) Name() string { return "startup" }

func (s *StartupSystem) Update(ctx context.Context, _ core.UpdateEvent) {
	s.w.RunStartups(ctx)
}

// startTank assigns the tank's node a net if it has none and seeds it with
// the configured initial mixture.
func (w *World) startTank(ctx context.Context, e model.Entity, tank *model.GasTank) {
	node, ok := w.Graph.TryGetNode(e, tank.Node)
	if !ok {
		w.log.Warn(ctx, "gas tank without node",
			logging.String("entity", e.String()),
			logging.String("node", tank.Node),
		)
		return
	}
	if tank.InitialMixture == nil {
		return
	}
	net := w.Graph.TryAssignGroupIfNeeded(node)
	w.Atmos.Merge(net.Air, tank.InitialMixture)
	net.Air.SetTemperature(tank.InitialMixture.Temperature())
	w.log.Debug(ctx, "gas tank seeded",
		logging.String("entity", e.String()),
		logging.String("net", net.ID.String()),
		logging.Float64("moles", tank.InitialMixture.TotalMoles()),
	)
}

// startCanister ensures the canister's tank slot and publishes its initial
// appearance.
func (w *World) startCanister(e model.Entity, c *model.Canister) {
	if !w.Slots.Has(e) {
		w.Slots.Set(e, model.ContainerSlot{ID: c.Slot})
	}
	slot, _ := w.Slots.Get(e)
	w.Appearance.update(e, func(app *model.Appearance) {
		app.Locked = c.Locked
		app.TankInserted = !slot.Empty()
		app.PressureTier = pressureTier(c.Air.Pressure())
	})
	c.LastPressure = c.Air.Pressure()
	w.uiDirty.Put(e)
}
