package devices

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/atmos-simulator/core"
	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/internal/logging"
	"github.com/signalsfoundry/atmos-simulator/kb"
	"github.com/signalsfoundry/atmos-simulator/model"
)

// DefaultNodeVolume is the volume of a pipe node in litres.
const DefaultNodeVolume = 200.0

// Placement positions a new entity. Dir is the direction the device faces:
// unary devices and pipes connect along it, binary devices take gas in from
// the opposite side and push it out along Dir. Side is the extra direction
// used by a filter's side port and a mixer's second inlet.
type Placement struct {
	Name     string
	Pos      model.Vec2i
	Dir      model.Direction
	Side     model.Direction
	Anchored bool
	// Volume overrides DefaultNodeVolume when positive.
	Volume float64
}

func (p Placement) volume() float64 {
	if p.Volume > 0 {
		return p.Volume
	}
	return DefaultNodeVolume
}

type nodeDef struct {
	name   string
	dirs   model.Direction
	port   bool
	volume float64
	// disconnected nodes only connect once their portable owner anchors.
	disconnected bool
}

// spawn creates the entity, its nodes and components. A failing step
// deletes the half-built entity and returns the error; nothing else in the
// world is affected.
func (w *World) spawn(ctx context.Context, kind string, p Placement, nodes []nodeDef, attach func(model.Entity)) (model.Entity, error) {
	name := p.Name
	if name == "" {
		name = kind
	}
	e := w.KB.Create(name, p.Pos)
	for _, n := range nodes {
		_, err := w.Graph.AddNode(core.NodeSpec{
			Owner:        e,
			Name:         n.name,
			Pos:          p.Pos,
			Directions:   n.dirs,
			Port:         n.port,
			Volume:       n.volume,
			Disconnected: n.disconnected,
		})
		if err != nil {
			return w.abortSpawn(ctx, kind, e, err)
		}
	}
	if attach != nil {
		attach(e)
	}
	w.pendingStartups = append(w.pendingStartups, e)

	if p.Anchored {
		if err := w.Anchor(e); err != nil {
			return w.abortSpawn(ctx, kind, e, err)
		}
	}
	w.log.Debug(ctx, "entity spawned",
		logging.String("kind", kind),
		logging.String("entity", e.String()),
		logging.String("pos", p.Pos.String()),
	)
	return e, nil
}

func (w *World) abortSpawn(ctx context.Context, kind string, e model.Entity, err error) (model.Entity, error) {
	w.log.Error(ctx, "entity setup failed",
		logging.String("kind", kind),
		logging.String("entity", e.String()),
		logging.Err(err),
	)
	_ = w.KB.Delete(e)
	return model.NoEntity, fmt.Errorf("spawn %s: %w", kind, err)
}

// Anchor anchors e to its tile. Portable devices need a gas port on the
// same tile.
func (w *World) Anchor(e model.Entity) error {
	if w.Portables.Has(e) {
		pos, ok := w.pos(e)
		if !ok {
			return fmt.Errorf("%w: %s", kb.ErrEntityNotFound, e)
		}
		if !w.hasGasPortAt(pos) {
			return fmt.Errorf("%w: %s", ErrNoGasPort, pos)
		}
	}
	return w.KB.SetAnchored(e, true)
}

// Unanchor frees e from its tile.
func (w *World) Unanchor(e model.Entity) error {
	return w.KB.SetAnchored(e, false)
}

func (w *World) hasGasPortAt(pos model.Vec2i) bool {
	for _, port := range w.GasPorts.Entities() {
		tr, err := w.KB.Transform(port)
		if err == nil && tr.Anchored && tr.Pos == pos {
			return true
		}
	}
	return false
}

func (w *World) device(e model.Entity, requireAnchored bool) {
	w.Devices.Set(e, model.AtmosDevice{RequireAnchored: requireAnchored})
}

// SpawnPipe places a plain pipe segment connecting along p.Dir.
func (w *World) SpawnPipe(ctx context.Context, p Placement) (model.Entity, error) {
	return w.spawn(ctx, "pipe", p, []nodeDef{{name: model.NodePipe, dirs: p.Dir, volume: p.volume()}}, nil)
}

// SpawnGasPort places a connector port that portable devices anchor onto.
func (w *World) SpawnGasPort(ctx context.Context, p Placement) (model.Entity, error) {
	return w.spawn(ctx, "gas_port", p,
		[]nodeDef{{name: model.NodePort, dirs: p.Dir, port: true, volume: p.volume()}},
		func(e model.Entity) { w.GasPorts.Set(e, struct{}{}) })
}

// SpawnVentPump places a vent pump.
func (w *World) SpawnVentPump(ctx context.Context, p Placement, vent model.VentPump) (model.Entity, error) {
	return w.spawn(ctx, "vent_pump", p,
		[]nodeDef{{name: vent.Inlet, dirs: p.Dir, volume: p.volume()}},
		func(e model.Entity) {
			w.device(e, true)
			w.VentPumps.Set(e, vent)
		})
}

// SpawnScrubber places a vent scrubber.
func (w *World) SpawnScrubber(ctx context.Context, p Placement, scrubber model.VentScrubber) (model.Entity, error) {
	return w.spawn(ctx, "vent_scrubber", p,
		[]nodeDef{{name: scrubber.Outlet, dirs: p.Dir, volume: p.volume()}},
		func(e model.Entity) {
			w.device(e, true)
			w.Scrubbers.Set(e, scrubber)
		})
}

// SpawnPassiveVent places an unpowered vent.
func (w *World) SpawnPassiveVent(ctx context.Context, p Placement, vent model.PassiveVent) (model.Entity, error) {
	if vent.Inlet == "" {
		vent.Inlet = model.NodePipe
	}
	return w.spawn(ctx, "passive_vent", p,
		[]nodeDef{{name: vent.Inlet, dirs: p.Dir, volume: p.volume()}},
		func(e model.Entity) {
			w.device(e, true)
			w.PassiveVents.Set(e, vent)
		})
}

// SpawnInjector places an outlet injector.
func (w *World) SpawnInjector(ctx context.Context, p Placement, inj model.OutletInjector) (model.Entity, error) {
	return w.spawn(ctx, "outlet_injector", p,
		[]nodeDef{{name: inj.Inlet, dirs: p.Dir, volume: p.volume()}},
		func(e model.Entity) {
			w.device(e, true)
			w.Injectors.Set(e, inj)
		})
}

// SpawnThermoMachine places a freezer or heater. A nil power receiver
// leaves the machine always powered.
func (w *World) SpawnThermoMachine(ctx context.Context, p Placement, tm model.ThermoMachine, power *model.PowerReceiver) (model.Entity, error) {
	return w.spawn(ctx, "thermomachine", p,
		[]nodeDef{{name: tm.Inlet, dirs: p.Dir, volume: p.volume()}},
		func(e model.Entity) {
			w.device(e, true)
			w.ThermoMachines.Set(e, tm)
			if power != nil {
				w.Power.Set(e, *power)
			}
		})
}

// SpawnHeatExchanger places a radiator. Without an outlet name it has a
// single node and exchanges its gas in place.
func (w *World) SpawnHeatExchanger(ctx context.Context, p Placement, hx model.HeatExchanger) (model.Entity, error) {
	nodes := []nodeDef{{name: hx.Inlet, dirs: p.Dir.Opposite(), volume: p.volume()}}
	if hx.Outlet == "" {
		nodes[0].dirs = p.Dir
	} else {
		nodes = append(nodes, nodeDef{name: hx.Outlet, dirs: p.Dir, volume: p.volume()})
	}
	return w.spawn(ctx, "heat_exchanger", p, nodes, func(e model.Entity) {
		w.device(e, true)
		w.HeatExchangers.Set(e, hx)
	})
}

// SpawnCondenser places a condenser feeding a solution of maxVolume units.
func (w *World) SpawnCondenser(ctx context.Context, p Placement, c model.Condenser, power model.PowerReceiver, maxVolume float64) (model.Entity, error) {
	return w.spawn(ctx, "condenser", p,
		[]nodeDef{{name: c.Inlet, dirs: p.Dir, volume: p.volume()}},
		func(e model.Entity) {
			w.device(e, true)
			w.Condensers.Set(e, c)
			w.Power.Set(e, power)
			w.Solutions.Set(e, model.Solution{MaxVolume: maxVolume, Reagents: map[string]float64{}})
		})
}

// SpawnGasTank places a fixed reservoir that seeds its net with initial on
// the next startup pass.
func (w *World) SpawnGasTank(ctx context.Context, p Placement, initial *gas.Mixture) (model.Entity, error) {
	vol := p.volume()
	if initial != nil && initial.Volume > 0 && p.Volume <= 0 {
		vol = initial.Volume
	}
	return w.spawn(ctx, "gas_tank", p,
		[]nodeDef{{name: model.NodeTank, dirs: p.Dir, volume: vol}},
		func(e model.Entity) {
			w.GasTanks.Set(e, model.GasTank{Node: model.NodeTank, InitialMixture: initial})
		})
}

// SpawnCanister places a portable canister. Its port node only connects
// while the canister is anchored onto a gas port.
func (w *World) SpawnCanister(ctx context.Context, p Placement, c model.Canister) (model.Entity, error) {
	if c.Air == nil {
		c.Air = model.DefaultCanister().Air
	}
	return w.spawn(ctx, "canister", p,
		[]nodeDef{{name: c.Port, port: true, disconnected: true}},
		func(e model.Entity) {
			w.device(e, false)
			w.Portables.Set(e, model.Portable{Port: c.Port})
			w.Slots.Set(e, model.ContainerSlot{ID: c.Slot})
			w.Canisters.Set(e, c)
		})
}

// SpawnPortableTank creates a hand-held gas tank lying on pos.
func (w *World) SpawnPortableTank(ctx context.Context, name string, pos model.Vec2i, air *gas.Mixture) (model.Entity, error) {
	if air == nil {
		air = gas.NewMixture(70)
		air.SetTemperature(gas.T20C)
	}
	return w.spawn(ctx, "portable_tank", Placement{Name: name, Pos: pos}, nil, func(e model.Entity) {
		w.PortableTanks.Set(e, model.PortableTank{Air: air, Label: name})
	})
}

func (w *World) binaryNodes(p Placement, inlet, outlet string) []nodeDef {
	return []nodeDef{
		{name: inlet, dirs: p.Dir.Opposite(), volume: p.volume()},
		{name: outlet, dirs: p.Dir, volume: p.volume()},
	}
}

// SpawnPressurePump places a pressure pump.
func (w *World) SpawnPressurePump(ctx context.Context, p Placement, pump model.PressurePump) (model.Entity, error) {
	return w.spawn(ctx, "pressure_pump", p, w.binaryNodes(p, pump.Inlet, pump.Outlet), func(e model.Entity) {
		w.device(e, true)
		w.PressurePumps.Set(e, pump)
	})
}

// SpawnVolumePump places a volume pump.
func (w *World) SpawnVolumePump(ctx context.Context, p Placement, pump model.VolumePump) (model.Entity, error) {
	return w.spawn(ctx, "volume_pump", p, w.binaryNodes(p, pump.Inlet, pump.Outlet), func(e model.Entity) {
		w.device(e, true)
		w.VolumePumps.Set(e, pump)
	})
}

// SpawnPassiveGate places a passive gate.
func (w *World) SpawnPassiveGate(ctx context.Context, p Placement, gate model.PassiveGate) (model.Entity, error) {
	return w.spawn(ctx, "passive_gate", p, w.binaryNodes(p, gate.Inlet, gate.Outlet), func(e model.Entity) {
		w.device(e, true)
		w.PassiveGates.Set(e, gate)
	})
}

// SpawnFilter places a gas filter with its side port along p.Side.
func (w *World) SpawnFilter(ctx context.Context, p Placement, f model.Filter) (model.Entity, error) {
	nodes := append(w.binaryNodes(p, f.Inlet, f.Outlet), nodeDef{name: f.Filtered, dirs: p.Side, volume: p.volume()})
	return w.spawn(ctx, "filter", p, nodes, func(e model.Entity) {
		w.device(e, true)
		w.Filters.Set(e, f)
	})
}

// SpawnMixer places a gas mixer with its second inlet along p.Side.
func (w *World) SpawnMixer(ctx context.Context, p Placement, m model.Mixer) (model.Entity, error) {
	nodes := append(w.binaryNodes(p, m.InletOne, m.Outlet), nodeDef{name: m.InletTwo, dirs: p.Side, volume: p.volume()})
	return w.spawn(ctx, "mixer", p, nodes, func(e model.Entity) {
		w.device(e, true)
		w.Mixers.Set(e, m)
	})
}

// SpawnMiner places a gas miner. Miners have no pipe nodes.
func (w *World) SpawnMiner(ctx context.Context, p Placement, m model.Miner) (model.Entity, error) {
	return w.spawn(ctx, "miner", p, nil, func(e model.Entity) {
		w.device(e, true)
		w.Miners.Set(e, m)
	})
}
