package devices

import (
	"context"
	"testing"

	"github.com/signalsfoundry/atmos-simulator/core"
	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/kb"
	"github.com/signalsfoundry/atmos-simulator/model"
	"github.com/stretchr/testify/require"
)

func mixture(volume, temperature float64, moles map[gas.Gas]float64) *gas.Mixture {
	m := gas.NewMixture(volume)
	m.SetTemperature(temperature)
	for g, n := range moles {
		m.SetMoles(g, n)
	}
	return m
}

// atPressure returns a single-gas mixture at the given pressure.
func atPressure(g gas.Gas, volume, pressure, temperature float64) *gas.Mixture {
	return mixture(volume, temperature, map[gas.Gas]float64{g: pressure * volume / (gas.R * temperature)})
}

type harness struct {
	t        *testing.T
	grid     *core.Grid
	graph    *core.PipeGraph
	atmos    *core.AtmosphereSystem
	engine   *core.SimulationEngine
	world    *World
	settings core.Settings
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	grid := core.NewGrid()
	graph := core.NewPipeGraph()
	atmos := core.NewAtmosphereSystem(grid, nil)
	builder := core.NewNetworkBuilder(graph, grid, nil)
	w := NewWorld(kb.NewKnowledgeBase(), graph, atmos, nil)
	t.Cleanup(w.Bind(builder))

	engine := core.NewSimulationEngine(graph, builder, atmos)
	for _, sys := range w.Systems() {
		engine.AddSystem(sys)
	}
	settings := core.DefaultSettings()
	settings.TileProcessing = false
	settings.Reactions = false
	return &harness{t: t, grid: grid, graph: graph, atmos: atmos, engine: engine, world: w, settings: settings}
}

func (h *harness) step(n int) {
	for i := 0; i < n; i++ {
		h.engine.Step(context.Background(), 1, h.settings)
	}
}

func (h *harness) air(e model.Entity, node string) *gas.Mixture {
	h.t.Helper()
	air, _, ok := h.world.nodeAir(e, node)
	require.True(h.t, ok, "node %s/%s", e, node)
	return air
}

func (h *harness) net(e model.Entity, node string) *core.PipeNet {
	h.t.Helper()
	n, ok := h.graph.TryGetNode(e, node)
	require.True(h.t, ok, "node %s/%s", e, node)
	net, ok := h.graph.NetOf(n)
	require.True(h.t, ok, "node %s/%s has no net", e, node)
	return net
}

// totalMoles sums gas across tiles, pipes, canisters and portable tanks.
func (h *harness) totalMoles() float64 {
	total := h.grid.TotalMoles() + h.graph.TotalMoles()
	h.world.Canisters.Each(func(_ model.Entity, c *model.Canister) { total += c.Air.TotalMoles() })
	h.world.PortableTanks.Each(func(_ model.Entity, t *model.PortableTank) { total += t.Air.TotalMoles() })
	return total
}

func (h *harness) appearance(e model.Entity) model.Appearance {
	h.t.Helper()
	app, ok := h.world.Appearance.Get(e)
	require.True(h.t, ok, "no appearance for %s", e)
	return app
}
