// Package devices holds the atmospherics device systems: canisters, vents,
// scrubbers, injectors, thermal machines, binary pumps and gas miners. Each
// system walks its typed component store once per tick and works on gas only
// through the pipe graph and the atmosphere façade.
package devices

import (
	"context"
	"errors"
	"sort"

	"github.com/signalsfoundry/atmos-simulator/core"
	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/internal/logging"
	"github.com/signalsfoundry/atmos-simulator/kb"
	"github.com/signalsfoundry/atmos-simulator/model"
	"github.com/zyedidia/generic/mapset"
)

var (
	// ErrNotATank is returned when inserting something that holds no gas tank.
	ErrNotATank = errors.New("entity is not a gas tank")
	// ErrSlotOccupied is returned when a canister already holds a tank.
	ErrSlotOccupied = errors.New("container slot occupied")
	// ErrSlotEmpty is returned when ejecting from an empty canister.
	ErrSlotEmpty = errors.New("container slot empty")
	// ErrLocked is returned when a locked canister is operated.
	ErrLocked = errors.New("device locked")
	// ErrNoGasPort is returned when anchoring a portable device away from a port.
	ErrNoGasPort = errors.New("no gas port on tile")
	// ErrBadPressure is returned for a NaN or infinite pressure setting.
	ErrBadPressure = errors.New("pressure must be finite")
)

// World bundles the entity registry, the typed component stores and the
// shared atmospherics state the device systems operate on.
type World struct {
	KB    *kb.KnowledgeBase
	Graph *core.PipeGraph
	Atmos *core.AtmosphereSystem

	Devices   *kb.Store[model.AtmosDevice]
	Power     *kb.Store[model.PowerReceiver]
	Portables *kb.Store[model.Portable]
	Slots     *kb.Store[model.ContainerSlot]
	Solutions *kb.Store[model.Solution]

	VentPumps       *kb.Store[model.VentPump]
	Scrubbers       *kb.Store[model.VentScrubber]
	PassiveVents    *kb.Store[model.PassiveVent]
	Injectors       *kb.Store[model.OutletInjector]
	ThermoMachines  *kb.Store[model.ThermoMachine]
	HeatExchangers  *kb.Store[model.HeatExchanger]
	Condensers      *kb.Store[model.Condenser]
	GasTanks        *kb.Store[model.GasTank]
	Canisters       *kb.Store[model.Canister]
	PortableTanks   *kb.Store[model.PortableTank]
	PressurePumps   *kb.Store[model.PressurePump]
	VolumePumps     *kb.Store[model.VolumePump]
	PassiveGates    *kb.Store[model.PassiveGate]
	Filters         *kb.Store[model.Filter]
	Mixers          *kb.Store[model.Mixer]
	Miners          *kb.Store[model.Miner]
	GasPorts        *kb.Store[struct{}]
	pendingStartups []model.Entity
	uiDirty         mapset.Set[model.Entity]

	Appearance *AppearanceSystem
	log        logging.Logger
}

// NewWorld wires empty stores to the given registry, graph and façade.
func NewWorld(registry *kb.KnowledgeBase, graph *core.PipeGraph, atmos *core.AtmosphereSystem, log logging.Logger) *World {
	return &World{
		KB:    registry,
		Graph: graph,
		Atmos: atmos,

		Devices:   kb.NewStore[model.AtmosDevice](),
		Power:     kb.NewStore[model.PowerReceiver](),
		Portables: kb.NewStore[model.Portable](),
		Slots:     kb.NewStore[model.ContainerSlot](),
		Solutions: kb.NewStore[model.Solution](),

		VentPumps:      kb.NewStore[model.VentPump](),
		Scrubbers:      kb.NewStore[model.VentScrubber](),
		PassiveVents:   kb.NewStore[model.PassiveVent](),
		Injectors:      kb.NewStore[model.OutletInjector](),
		ThermoMachines: kb.NewStore[model.ThermoMachine](),
		HeatExchangers: kb.NewStore[model.HeatExchanger](),
		Condensers:     kb.NewStore[model.Condenser](),
		GasTanks:       kb.NewStore[model.GasTank](),
		Canisters:      kb.NewStore[model.Canister](),
		PortableTanks:  kb.NewStore[model.PortableTank](),
		PressurePumps:  kb.NewStore[model.PressurePump](),
		VolumePumps:    kb.NewStore[model.VolumePump](),
		PassiveGates:   kb.NewStore[model.PassiveGate](),
		Filters:        kb.NewStore[model.Filter](),
		Mixers:         kb.NewStore[model.Mixer](),
		Miners:         kb.NewStore[model.Miner](),
		GasPorts:       kb.NewStore[struct{}](),

		uiDirty:    mapset.New[model.Entity](),
		Appearance: NewAppearanceSystem(),
		log:        logging.OrNoop(log).With(logging.String("component", "devices")),
	}
}

// Systems returns every device system in update order.
func (w *World) Systems() []core.DeviceSystem {
	return []core.DeviceSystem{
		&StartupSystem{w: w},
		&CanisterSystem{w: w},
		&VentPumpSystem{w: w},
		&VentScrubberSystem{w: w},
		&PassiveVentSystem{w: w},
		&OutletInjectorSystem{w: w},
		&PressurePumpSystem{w: w},
		&VolumePumpSystem{w: w},
		&PassiveGateSystem{w: w},
		&FilterSystem{w: w},
		&MixerSystem{w: w},
		&ThermoMachineSystem{w: w},
		&HeatExchangerSystem{w: w},
		&CondenserSystem{w: w},
		&MinerSystem{w: w},
	}
}

// Counts returns the number of devices per kind.
func (w *World) Counts() map[string]int {
	return map[string]int{
		"canister":        w.Canisters.Len(),
		"gas_tank":        w.GasTanks.Len(),
		"portable_tank":   w.PortableTanks.Len(),
		"vent_pump":       w.VentPumps.Len(),
		"vent_scrubber":   w.Scrubbers.Len(),
		"passive_vent":    w.PassiveVents.Len(),
		"outlet_injector": w.Injectors.Len(),
		"thermomachine":   w.ThermoMachines.Len(),
		"heat_exchanger":  w.HeatExchangers.Len(),
		"condenser":       w.Condensers.Len(),
		"pressure_pump":   w.PressurePumps.Len(),
		"volume_pump":     w.VolumePumps.Len(),
		"passive_gate":    w.PassiveGates.Len(),
		"filter":          w.Filters.Len(),
		"mixer":           w.Mixers.Len(),
		"miner":           w.Miners.Len(),
		"gas_port":        w.GasPorts.Len(),
	}
}

// active reports whether e receives device updates this tick.
func (w *World) active(e model.Entity) bool {
	dev, ok := w.Devices.Get(e)
	if !ok {
		return false
	}
	return !dev.RequireAnchored || dev.Joined
}

// pos returns e's tile, or false for a dead entity.
func (w *World) pos(e model.Entity) (model.Vec2i, bool) {
	tr, err := w.KB.Transform(e)
	if err != nil {
		return model.Vec2i{}, false
	}
	return tr.Pos, true
}

// tile resolves the tile under e through the tick's lookup.
func (w *World) tile(ev core.UpdateEvent, e model.Entity) *core.TileAtmosphere {
	pos, ok := w.pos(e)
	if !ok || ev.Tiles == nil {
		return nil
	}
	return ev.Tiles.GetTile(pos)
}

// environment returns the air on e's tile, or nil when it is missing or
// airless.
func (w *World) environment(ev core.UpdateEvent, e model.Entity) *gas.Mixture {
	if t := w.tile(ev, e); t != nil {
		return t.Air
	}
	return nil
}

// nodeAir re-resolves one of e's pipe nodes and returns the gas it reads and
// writes.
func (w *World) nodeAir(e model.Entity, name string) (*gas.Mixture, *core.PipeNode, bool) {
	node, ok := w.Graph.TryGetNode(e, name)
	if !ok {
		return nil, nil, false
	}
	air := w.Graph.NodeAir(node)
	if air == nil {
		return nil, nil, false
	}
	return air, node, true
}

// RunStartups performs one-time startup work for entities spawned since the
// last call.
func (w *World) RunStartups(ctx context.Context) {
	pending := w.pendingStartups
	w.pendingStartups = nil
	for _, e := range pending {
		if tank, ok := w.GasTanks.Get(e); ok {
			w.startTank(ctx, e, tank)
		}
		if c, ok := w.Canisters.Get(e); ok {
			w.startCanister(e, c)
		}
	}
}

// Forget drops every component of e.
func (w *World) Forget(e model.Entity) {
	w.Devices.Remove(e)
	w.Power.Remove(e)
	w.Portables.Remove(e)
	w.Slots.Remove(e)
	w.Solutions.Remove(e)
	w.VentPumps.Remove(e)
	w.Scrubbers.Remove(e)
	w.PassiveVents.Remove(e)
	w.Injectors.Remove(e)
	w.ThermoMachines.Remove(e)
	w.HeatExchangers.Remove(e)
	w.Condensers.Remove(e)
	w.GasTanks.Remove(e)
	w.Canisters.Remove(e)
	w.PortableTanks.Remove(e)
	w.PressurePumps.Remove(e)
	w.VolumePumps.Remove(e)
	w.PassiveGates.Remove(e)
	w.Filters.Remove(e)
	w.Mixers.Remove(e)
	w.Miners.Remove(e)
	w.GasPorts.Remove(e)
	w.Appearance.Remove(e)
	w.uiDirty.Remove(e)
}

// TakeDirtyUI returns and clears the canisters whose UI state changed.
func (w *World) TakeDirtyUI() []model.Entity {
	out := make([]model.Entity, 0, w.uiDirty.Size())
	w.uiDirty.Each(func(e model.Entity) { out = append(out, e) })
	w.uiDirty = mapset.New[model.Entity]()
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
