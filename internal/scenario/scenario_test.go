package scenario

import (
	"strings"
	"testing"

	"github.com/signalsfoundry/atmos-simulator/core"
	"github.com/signalsfoundry/atmos-simulator/devices"
	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/kb"
	"github.com/signalsfoundry/atmos-simulator/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type station struct {
	grid   *core.Grid
	graph  *core.PipeGraph
	engine *core.SimulationEngine
	world  *devices.World
}

func newStation(t *testing.T) *station {
	t.Helper()
	grid := core.NewGrid()
	graph := core.NewPipeGraph()
	atmos := core.NewAtmosphereSystem(grid, nil)
	builder := core.NewNetworkBuilder(graph, grid, nil)
	w := devices.NewWorld(kb.NewKnowledgeBase(), graph, atmos, nil)
	t.Cleanup(w.Bind(builder))
	engine := core.NewSimulationEngine(graph, builder, atmos)
	for _, sys := range w.Systems() {
		engine.AddSystem(sys)
	}
	return &station{grid: grid, graph: graph, engine: engine, world: w}
}

func TestLoadFileAndApply(t *testing.T) {
	f, err := LoadFile("testdata/port_room.toml")
	require.NoError(t, err)
	assert.Equal(t, "port room", f.Name)

	s := newStation(t)
	loaded, err := Apply(t.Context(), f, s.grid, s.world)
	require.NoError(t, err)
	assert.Equal(t, 6, loaded.Tiles)
	assert.Equal(t, []string{"can", "filter", "port", "scrubber", "tank"}, loaded.Names())

	assert.Nil(t, s.grid.GetTile(model.Vec2i{X: 3}).Air)
	station := s.grid.GetTile(model.Vec2i{}).Air
	assert.InDelta(t, gas.OneAtmosphere, station.Pressure(), 1e-9)
	vacuum := s.grid.GetTile(model.Vec2i{Y: 1}).Air
	assert.InDelta(t, 10.0, vacuum.GetMoles(gas.Plasma), 1e-12)
	assert.InDelta(t, 150.0, vacuum.Temperature(), 1e-12)

	can := loaded.Entities["can"]
	c, ok := s.world.Canisters.Get(can)
	require.True(t, ok)
	assert.InDelta(t, 50.0, c.Air.GetMoles(gas.Nitrogen), 1e-12)
	assert.Equal(t, c.MaxReleasePressure, c.ReleasePressure, "clamped")
	tr, err := s.world.KB.Transform(can)
	require.NoError(t, err)
	assert.True(t, tr.Anchored)

	ui, err := s.world.CanisterUI(can)
	require.NoError(t, err)
	assert.Equal(t, "tank", ui.TankLabel)

	f2, ok := s.world.Filters.Get(loaded.Entities["filter"])
	require.True(t, ok)
	require.NotNil(t, f2.FilteredGas)
	assert.Equal(t, gas.Plasma, *f2.FilteredGas)

	sc, ok := s.world.Scrubbers.Get(loaded.Entities["scrubber"])
	require.True(t, ok)
	assert.Equal(t, []gas.Gas{gas.CarbonDioxide, gas.Plasma}, sc.FilterGases)
	assert.True(t, sc.WideNet)

	s.engine.Step(t.Context(), 1, core.DefaultSettings())
	port, ok := s.graph.TryGetNode(loaded.Entities["port"], model.NodePort)
	require.True(t, ok)
	net, ok := s.graph.NetOf(port)
	require.True(t, ok)
	assert.Equal(t, 3, net.NodeCount())
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := Decode(strings.NewReader(`
[[entity]]
kind = "pipe"
colour = "red"
`))
	require.ErrorIs(t, err, ErrInvalidScenario)
	assert.Contains(t, err.Error(), "colour")
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		src  string
		want error
	}{
		"unknown kind": {
			src:  "[[entity]]\nkind = \"teleporter\"\n",
			want: ErrUnknownKind,
		},
		"unknown gas": {
			src:  "[[entity]]\nkind = \"miner\"\ngas = \"unobtainium\"\n",
			want: ErrUnknownGas,
		},
		"unknown region gas": {
			src:  "[[region]]\nfrom = [0, 0]\nto = [0, 0]\ngases = { xenon = 1.0 }\n",
			want: gas.ErrUnknownGas,
		},
		"inverted region": {
			src:  "[[region]]\nfrom = [2, 0]\nto = [0, 0]\n",
			want: ErrInvalidScenario,
		},
		"bad air": {
			src:  "[[region]]\nfrom = [0, 0]\nto = [0, 0]\nair = \"soup\"\n",
			want: ErrInvalidScenario,
		},
		"bad direction": {
			src:  "[[entity]]\nkind = \"pipe\"\ndir = \"Q\"\n",
			want: ErrInvalidScenario,
		},
		"duplicate name": {
			src:  "[[entity]]\nkind = \"pipe\"\nname = \"a\"\n[[entity]]\nkind = \"pipe\"\nname = \"a\"\n",
			want: ErrInvalidScenario,
		},
		"insert into pipe": {
			src:  "[[entity]]\nkind = \"pipe\"\ninsert = \"t\"\n[[entity]]\nkind = \"portable_tank\"\nname = \"t\"\n",
			want: ErrInvalidScenario,
		},
		"insert missing tank": {
			src:  "[[entity]]\nkind = \"canister\"\ninsert = \"t\"\n",
			want: ErrInvalidScenario,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f, err := Decode(strings.NewReader(tc.src))
			require.NoError(t, err)
			assert.ErrorIs(t, f.Validate(), tc.want)
		})
	}
}

func TestApplyFailsOnPortableWithoutPort(t *testing.T) {
	f, err := Decode(strings.NewReader(`
[[region]]
from = [0, 0]
to = [0, 0]

[[entity]]
kind = "canister"
name = "can"
anchored = true
`))
	require.NoError(t, err)
	s := newStation(t)
	_, err = Apply(t.Context(), f, s.grid, s.world)
	assert.ErrorIs(t, err, devices.ErrNoGasPort)
	assert.Zero(t, s.world.KB.Len())
}

func TestGasTankAndMinerKinds(t *testing.T) {
	f, err := Decode(strings.NewReader(`
[[region]]
from = [0, 0]
to = [1, 0]
air = "vacuum"

[[entity]]
kind = "gas_tank"
name = "tank"
pos = [0, 0]
dir = "E"
volume = 500.0
temperature = 350.0
gases = { O2 = 100.0 }

[[entity]]
kind = "miner"
name = "miner"
pos = [1, 0]
gas = "nitrogen"
spawn_amount = 2.0
`))
	require.NoError(t, err)
	s := newStation(t)
	loaded, err := Apply(t.Context(), f, s.grid, s.world)
	require.NoError(t, err)

	settings := core.DefaultSettings()
	settings.TileProcessing = false
	s.engine.Step(t.Context(), 1, settings)

	node, ok := s.graph.TryGetNode(loaded.Entities["tank"], model.NodeTank)
	require.True(t, ok)
	air := s.graph.NodeAir(node)
	assert.InDelta(t, 100.0, air.GetMoles(gas.Oxygen), 1e-9)
	assert.InDelta(t, 350.0, air.Temperature(), 1e-9)
	assert.InDelta(t, 2.0, s.grid.GetTile(model.Vec2i{X: 1}).Air.GetMoles(gas.Nitrogen), 1e-9)
}

func TestKindsAreSpawnable(t *testing.T) {
	for _, kind := range Kinds() {
		if kind == "canister" || kind == "miner" || kind == "portable_tank" {
			continue
		}
		t.Run(kind, func(t *testing.T) {
			s := newStation(t)
			f := &File{Entities: []Entity{{Kind: kind, Name: "x", Dir: "E", Side: "N"}}}
			loaded, err := Apply(t.Context(), f, s.grid, s.world)
			require.NoError(t, err)
			assert.True(t, s.world.KB.Alive(loaded.Entities["x"]))
		})
	}
}
