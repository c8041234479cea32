package core

import (
	"context"
)

// UpdateEvent is the per-tick device update payload.
type UpdateEvent struct {
	// Dt is the elapsed simulated time in seconds, already scaled by
	// Settings.Speedup.
	Dt       float64
	Tiles    TileLookup
	Atmos    *AtmosphereSystem
	Graph    *PipeGraph
	Settings Settings
}

// DeviceSystem is one device kind's per-tick update.
type DeviceSystem interface {
	Name() string
	Update(ctx context.Context, ev UpdateEvent)
}

// StepStats summarises one atmospherics step.
type StepStats struct {
	Tick    int
	Rebuild RebuildStats
	Tiles   TileStats
	// NetReactions counts the pipe nets whose air reacted.
	NetReactions int
}

// SimulationEngine runs atmospherics steps in a fixed order: topology
// rebuild, tile processing, pipe net reactions, then device systems in
// registration order.
type SimulationEngine struct {
	Graph   *PipeGraph
	Builder *NetworkBuilder
	Atmos   *AtmosphereSystem

	systems       []DeviceSystem
	tickListeners []func(StepStats)
	tick          int
}

func NewSimulationEngine(graph *PipeGraph, builder *NetworkBuilder, atmos *AtmosphereSystem) *SimulationEngine {
	return &SimulationEngine{
		Graph:         graph,
		Builder:       builder,
		Atmos:         atmos,
		tickListeners: []func(StepStats){},
	}
}

// AddSystem appends a device system to the update order.
func (se *SimulationEngine) AddSystem(sys DeviceSystem) {
	se.systems = append(se.systems, sys)
}

// Systems returns the registered systems in update order.
func (se *SimulationEngine) Systems() []DeviceSystem {
	return append([]DeviceSystem(nil), se.systems...)
}

func (se *SimulationEngine) RegisterTickListener(fn func(StepStats)) {
	se.tickListeners = append(se.tickListeners, fn)
}

// Tick returns the number of completed steps.
func (se *SimulationEngine) Tick() int { return se.tick }

// Step advances the simulation by dt seconds under settings.
func (se *SimulationEngine) Step(ctx context.Context, dt float64, settings Settings) StepStats {
	stats := StepStats{Tick: se.tick}

	stats.Rebuild = se.Builder.Rebuild()
	stats.Tiles = se.Atmos.ProcessTiles(settings)
	stats.NetReactions = se.Atmos.ProcessNetReactions(se.Graph, settings)

	ev := UpdateEvent{
		Dt:       settings.Scale(dt),
		Tiles:    se.Atmos.Grid,
		Atmos:    se.Atmos,
		Graph:    se.Graph,
		Settings: settings,
	}
	for _, sys := range se.systems {
		sys.Update(ctx, ev)
	}

	se.tick++
	for _, fn := range se.tickListeners {
		fn(stats)
	}
	return stats
}

// Run performs ticks steps of dt seconds each. Cancellation is checked
// between steps, never inside one.
func (se *SimulationEngine) Run(ctx context.Context, ticks int, dt float64, settings Settings) {
	for i := 0; i < ticks; i++ {
		if ctx.Err() != nil {
			return
		}
		se.Step(ctx, dt, settings)
	}
}
