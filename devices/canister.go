package devices

import (
	"context"
	"fmt"
	"math"

	"github.com/signalsfoundry/atmos-simulator/core"
	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/internal/logging"
	"github.com/signalsfoundry/atmos-simulator/kb"
	"github.com/signalsfoundry/atmos-simulator/model"
)

// canisterPressureEpsilon is the relative pressure change below which a
// canister skips its UI and gauge refresh.
const canisterPressureEpsilon = 0.00001

// CanisterSystem buffers each canister with its port net and runs its
// release valve.
type CanisterSystem struct{ w *World }

func (s *CanisterSystem) Name() string { return "canister" }

func (s *CanisterSystem) Update(_ context.Context, ev core.UpdateEvent) {
	w := s.w
	w.Canisters.Each(func(e model.Entity, c *model.Canister) {
		if !w.active(e) {
			return
		}
		if ev.Settings.Reactions {
			w.Atmos.React(c.Air, e)
		}

		node, ok := w.Graph.TryGetNode(e, c.Port)
		if !ok {
			return
		}
		if net, ok := w.Graph.NetOf(node); ok && net.NodeCount() > 1 {
			mixContainerWithPipeNet(w.Atmos, c.Air, net.Air)
		}

		if c.ReleaseValve {
			if !w.Slots.Has(e) {
				return
			}
			if _, tank, ok := w.insertedTank(e); ok {
				w.Atmos.ReleaseGasTo(c.Air, tank.Air, c.ReleasePressure)
			} else {
				w.Atmos.ReleaseGasTo(c.Air, w.environment(ev, e), c.ReleasePressure)
			}
		}

		p := c.Air.Pressure()
		if closeToPercent(p, c.LastPressure, canisterPressureEpsilon) {
			return
		}
		w.uiDirty.Put(e)
		c.LastPressure = p
		w.Appearance.update(e, func(app *model.Appearance) {
			app.PressureTier = pressureTier(p)
		})
	})
}

// mixContainerWithPipeNet pools container and net gas and hands each side
// back its volume fraction of the pool.
func mixContainerWithPipeNet(atmos *core.AtmosphereSystem, containerAir, netAir *gas.Mixture) {
	buffer := gas.NewMixture(netAir.Volume + containerAir.Volume)
	if buffer.Volume <= 0 {
		return
	}
	atmos.Merge(buffer, netAir)
	atmos.Merge(buffer, containerAir)

	netAir.Clear()
	atmos.Merge(netAir, buffer)
	netAir.Multiply(netAir.Volume / buffer.Volume)

	containerAir.Clear()
	atmos.Merge(containerAir, buffer)
	containerAir.Multiply(containerAir.Volume / buffer.Volume)
}

// pressureTier maps a canister pressure onto its four-level gauge.
func pressureTier(p float64) int {
	switch {
	case p < 10:
		return 0
	case p < gas.OneAtmosphere:
		return 1
	case p < 15*gas.OneAtmosphere:
		return 2
	}
	return 3
}

func closeToPercent(a, b, pct float64) bool {
	eps := math.Max(math.Max(math.Abs(a), math.Abs(b))*pct, pct)
	return math.Abs(a-b) <= eps
}

// CanisterUI is the state a canister's user interface shows.
type CanisterUI struct {
	Name               string
	Pressure           float64
	PortStatus         bool
	TankLabel          string
	TankPressure       float64
	ReleasePressure    float64
	ReleaseValve       bool
	MinReleasePressure float64
	MaxReleasePressure float64
}

func (w *World) canister(e model.Entity) (*model.Canister, error) {
	c, ok := w.Canisters.Get(e)
	if !ok {
		return nil, fmt.Errorf("%w: canister %s", kb.ErrComponentMissing, e)
	}
	return c, nil
}

// insertedTank returns the portable tank held in e's slot.
func (w *World) insertedTank(e model.Entity) (model.Entity, *model.PortableTank, bool) {
	slot, ok := w.Slots.Get(e)
	if !ok || slot.Empty() {
		return model.NoEntity, nil, false
	}
	tank, ok := w.PortableTanks.Get(slot.Contained)
	if !ok {
		return model.NoEntity, nil, false
	}
	return slot.Contained, tank, true
}

// holder returns the container e sits in, if any.
func (w *World) holder(e model.Entity) (model.Entity, bool) {
	var found model.Entity
	w.Slots.Each(func(owner model.Entity, slot *model.ContainerSlot) {
		if slot.Contained == e {
			found = owner
		}
	})
	return found, found.Valid()
}

// CanisterUI builds the UI state of canister e.
func (w *World) CanisterUI(e model.Entity) (CanisterUI, error) {
	c, err := w.canister(e)
	if err != nil {
		return CanisterUI{}, err
	}
	ui := CanisterUI{
		Name:               w.KB.Name(e),
		Pressure:           c.Air.Pressure(),
		ReleasePressure:    c.ReleasePressure,
		ReleaseValve:       c.ReleaseValve,
		MinReleasePressure: c.MinReleasePressure,
		MaxReleasePressure: c.MaxReleasePressure,
	}
	if node, ok := w.Graph.TryGetNode(e, c.Port); ok {
		if net, ok := w.Graph.NetOf(node); ok && net.NodeCount() > 1 {
			ui.PortStatus = true
		}
	}
	if tankEnt, tank, ok := w.insertedTank(e); ok {
		ui.TankLabel = tank.Label
		if ui.TankLabel == "" {
			ui.TankLabel = w.KB.Name(tankEnt)
		}
		ui.TankPressure = tank.Air.Pressure()
	}
	return ui, nil
}

// InsertTank puts a portable tank into canister e's slot.
func (w *World) InsertTank(ctx context.Context, e, tank model.Entity) error {
	if _, err := w.canister(e); err != nil {
		return err
	}
	if !w.PortableTanks.Has(tank) {
		return fmt.Errorf("%w: %s", ErrNotATank, tank)
	}
	if other, ok := w.holder(tank); ok {
		return fmt.Errorf("%w: tank %s already in %s", ErrSlotOccupied, tank, other)
	}
	slot, ok := w.Slots.Get(e)
	if !ok {
		return fmt.Errorf("%w: slot of %s", kb.ErrComponentMissing, e)
	}
	if !slot.Empty() {
		return fmt.Errorf("%w: %s", ErrSlotOccupied, e)
	}
	slot.Contained = tank
	id := slot.ID

	w.log.Info(ctx, "canister tank inserted",
		logging.String("canister", e.String()),
		logging.String("tank", tank.String()),
	)
	w.KB.Publish(kb.Event{Type: kb.EventContainerInserted, Entity: e, Slot: id, Contained: tank})
	return nil
}

// EjectTank removes the tank from canister e and drops it on the
// canister's tile.
func (w *World) EjectTank(ctx context.Context, e model.Entity) (model.Entity, error) {
	c, err := w.canister(e)
	if err != nil {
		return model.NoEntity, err
	}
	if c.Locked {
		return model.NoEntity, fmt.Errorf("%w: %s", ErrLocked, e)
	}
	slot, ok := w.Slots.Get(e)
	if !ok || slot.Empty() {
		return model.NoEntity, fmt.Errorf("%w: %s", ErrSlotEmpty, e)
	}
	tank := slot.Contained
	slot.Contained = model.NoEntity
	id := slot.ID

	if pos, ok := w.pos(e); ok {
		_ = w.KB.Move(tank, pos)
	}
	w.log.Info(ctx, "canister tank ejected",
		logging.String("canister", e.String()),
		logging.String("tank", tank.String()),
	)
	w.KB.Publish(kb.Event{Type: kb.EventContainerRemoved, Entity: e, Slot: id, Contained: tank})
	return tank, nil
}

// SetReleasePressure sets the valve target, clamped to the canister's range.
// A non-finite pressure is rejected and leaves the target unchanged.
func (w *World) SetReleasePressure(ctx context.Context, e model.Entity, pressure float64) (float64, error) {
	c, err := w.canister(e)
	if err != nil {
		return 0, err
	}
	if c.Locked {
		return 0, fmt.Errorf("%w: %s", ErrLocked, e)
	}
	if math.IsNaN(pressure) || math.IsInf(pressure, 0) {
		return c.ReleasePressure, fmt.Errorf("%w: %v", ErrBadPressure, pressure)
	}
	clamped := math.Min(math.Max(pressure, c.MinReleasePressure), c.MaxReleasePressure)
	w.log.Info(ctx, "canister release pressure set",
		logging.String("canister", e.String()),
		logging.Float64("requested", pressure),
		logging.Float64("pressure", clamped),
	)
	c.ReleasePressure = clamped
	w.uiDirty.Put(e)
	return clamped, nil
}

// SetReleaseValve opens or closes the release valve. Opening with no tank
// inserted vents into the room and is logged as a warning.
func (w *World) SetReleaseValve(ctx context.Context, e model.Entity, open bool) error {
	c, err := w.canister(e)
	if err != nil {
		return err
	}
	if c.Locked {
		return fmt.Errorf("%w: %s", ErrLocked, e)
	}
	fields := []logging.Field{
		logging.String("canister", e.String()),
		logging.Bool("open", open),
		logging.String("contents", c.Air.String()),
	}
	if _, _, ok := w.insertedTank(e); ok {
		w.log.Info(ctx, "canister valve set", fields...)
	} else {
		w.log.Warn(ctx, "canister valve set", fields...)
	}
	c.ReleaseValve = open
	w.uiDirty.Put(e)
	return nil
}

// PurgeContents dumps all of canister e's gas onto its tile, or into space
// when the tile is airless.
func (w *World) PurgeContents(ctx context.Context, e model.Entity) error {
	c, err := w.canister(e)
	if err != nil {
		return err
	}
	pos, _ := w.pos(e)
	w.purgeAt(ctx, e, c, pos)
	return nil
}

func (w *World) purgeAt(ctx context.Context, e model.Entity, c *model.Canister, pos model.Vec2i) {
	if env := w.Atmos.GetTileMixture(pos); env != nil {
		w.Atmos.Merge(env, c.Air)
	}
	w.log.Info(ctx, "canister purged",
		logging.String("canister", e.String()),
		logging.String("contents", c.Air.String()),
	)
	c.Air.Clear()
	w.uiDirty.Put(e)
}

// ToggleLock flips the canister lock and returns the new state.
func (w *World) ToggleLock(e model.Entity) (bool, error) {
	c, err := w.canister(e)
	if err != nil {
		return false, err
	}
	c.Locked = !c.Locked
	locked := c.Locked
	w.Appearance.update(e, func(app *model.Appearance) { app.Locked = locked })
	return locked, nil
}

// Price appraises the gas held by canister e.
func (w *World) Price(e model.Entity) (float64, error) {
	c, err := w.canister(e)
	if err != nil {
		return 0, err
	}
	return c.Air.Price(), nil
}

// CanisterControls is a batch of canister interactions. Insert is ignored
// when it is not a valid entity; the Set flags select which values apply.
type CanisterControls struct {
	ToggleLock bool
	Insert     model.Entity
	Eject      bool

	SetReleasePressure bool
	ReleasePressure    float64
	SetValve           bool
	Valve              bool

	Purge bool
}

// ApplyCanisterControls applies ctl to canister e in the order toggle lock,
// insert, eject, release pressure, valve, purge. Every control is checked
// against the state the earlier ones leave behind before anything changes,
// so a rejected batch leaves the canister untouched.
func (w *World) ApplyCanisterControls(ctx context.Context, e model.Entity, ctl CanisterControls) error {
	c, err := w.canister(e)
	if err != nil {
		return err
	}
	locked := c.Locked != ctl.ToggleLock
	if locked && (ctl.Eject || ctl.SetReleasePressure || ctl.SetValve) {
		return fmt.Errorf("%w: %s", ErrLocked, e)
	}
	if ctl.SetReleasePressure && (math.IsNaN(ctl.ReleasePressure) || math.IsInf(ctl.ReleasePressure, 0)) {
		return fmt.Errorf("%w: %v", ErrBadPressure, ctl.ReleasePressure)
	}
	slot, hasSlot := w.Slots.Get(e)
	if !hasSlot && (ctl.Insert.Valid() || ctl.Eject) {
		return fmt.Errorf("%w: slot of %s", kb.ErrComponentMissing, e)
	}
	full := hasSlot && !slot.Empty()
	if ctl.Insert.Valid() {
		if !w.PortableTanks.Has(ctl.Insert) {
			return fmt.Errorf("%w: %s", ErrNotATank, ctl.Insert)
		}
		if other, ok := w.holder(ctl.Insert); ok {
			return fmt.Errorf("%w: tank %s already in %s", ErrSlotOccupied, ctl.Insert, other)
		}
		if full {
			return fmt.Errorf("%w: %s", ErrSlotOccupied, e)
		}
		full = true
	}
	if ctl.Eject && !full {
		return fmt.Errorf("%w: %s", ErrSlotEmpty, e)
	}

	if ctl.ToggleLock {
		if locked, err = w.ToggleLock(e); err != nil {
			return err
		}
		w.log.Info(ctx, "canister lock toggled", logging.String("canister", e.String()), logging.Bool("locked", locked))
	}
	if ctl.Insert.Valid() {
		if err := w.InsertTank(ctx, e, ctl.Insert); err != nil {
			return err
		}
	}
	if ctl.Eject {
		if _, err := w.EjectTank(ctx, e); err != nil {
			return err
		}
	}
	if ctl.SetReleasePressure {
		if _, err := w.SetReleasePressure(ctx, e, ctl.ReleasePressure); err != nil {
			return err
		}
	}
	if ctl.SetValve {
		if err := w.SetReleaseValve(ctx, e, ctl.Valve); err != nil {
			return err
		}
	}
	if ctl.Purge {
		return w.PurgeContents(ctx, e)
	}
	return nil
}
