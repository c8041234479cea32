package core

import (
	"testing"

	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAtmos(t *testing.T) *AtmosphereSystem {
	t.Helper()
	reactions, err := gas.DefaultReactions()
	require.NoError(t, err)
	return NewAtmosphereSystem(NewGrid(), reactions)
}

func TestGridLinksOnlyAirTiles(t *testing.T) {
	grid := NewGrid()
	center := grid.SetTile(model.Vec2i{}, gas.NewStationAir())
	grid.SetTile(model.Vec2i{X: 1}, gas.NewStationAir())
	grid.SetTile(model.Vec2i{X: -1}, nil)
	assert.Equal(t, 1, center.AdjacentCount())

	grid.SetTile(model.Vec2i{Y: 1}, gas.NewStationAir())
	assert.Equal(t, 2, center.AdjacentCount())

	_, err := grid.RemoveTile(model.Vec2i{X: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, center.AdjacentCount())

	_, err = grid.RemoveTile(model.Vec2i{X: 9})
	assert.ErrorIs(t, err, ErrTileNotFound)
}

func TestAirlessTileRejectsGas(t *testing.T) {
	atmos := newAtmos(t)
	atmos.Grid.SetTile(model.Vec2i{}, nil)

	mix := gas.NewStationAir()
	assert.False(t, atmos.AssumeAir(model.Vec2i{}, mix))
	assert.False(t, atmos.AssumeAir(model.Vec2i{X: 7}, mix))
	assert.Nil(t, atmos.GetTileMixture(model.Vec2i{}))
	assert.Nil(t, atmos.GetTileMixture(model.Vec2i{X: 7}))
}

func TestHeatCapacityNeverBelowFloor(t *testing.T) {
	atmos := newAtmos(t)
	assert.Equal(t, gas.MinimumHeatCapacity, atmos.GetHeatCapacity(gas.NewMixture(10)))
	assert.Equal(t, gas.MinimumHeatCapacity, atmos.GetHeatCapacity(nil))
	assert.InDelta(t, gas.NewStationAir().HeatCapacity(), atmos.GetHeatCapacity(gas.NewStationAir()), 1e-9)
}

func TestReleaseToSpaceDiscardsGas(t *testing.T) {
	atmos := newAtmos(t)
	src := gas.NewStationAir()
	before := src.TotalMoles()
	require.True(t, atmos.ReleaseGasTo(src, nil, gas.OneAtmosphere))
	assert.Less(t, src.TotalMoles(), before)
}

func TestProcessTilesConservesMoles(t *testing.T) {
	atmos := newAtmos(t)
	for x := 0; x < 4; x++ {
		for y := 0; y < 3; y++ {
			atmos.Grid.SetTile(model.Vec2i{X: x, Y: y}, gas.NewStationAir())
		}
	}
	hot := atmos.GetTileMixture(model.Vec2i{X: 0, Y: 0})
	hot.SetMoles(gas.CarbonDioxide, 300)
	hot.SetTemperature(500)
	before := atmos.Grid.TotalMoles()

	settings := DefaultSettings()
	settings.Reactions = false
	var stats TileStats
	for i := 0; i < 20; i++ {
		stats = atmos.ProcessTiles(settings)
	}
	// 4x3 grid: 3*3 east pairs + 4*2 north pairs.
	assert.Equal(t, 17, stats.Shared)
	assert.InDelta(t, before, atmos.Grid.TotalMoles(), 1e-6)

	far := atmos.GetTileMixture(model.Vec2i{X: 3, Y: 2})
	assert.Greater(t, far.GetMoles(gas.CarbonDioxide), 0.0)
	assert.Less(t, hot.Temperature(), 500.0)
}

func TestProcessTilesDisabled(t *testing.T) {
	atmos := newAtmos(t)
	a := atmos.Grid.SetTile(model.Vec2i{}, gas.NewStationAir())
	atmos.Grid.SetTile(model.Vec2i{X: 1}, gas.NewMixture(gas.CellVolume))
	before := a.Air.TotalMoles()

	stats := atmos.ProcessTiles(Settings{})
	assert.Zero(t, stats.Shared)
	assert.Equal(t, before, a.Air.TotalMoles())
}

func TestSettingsScale(t *testing.T) {
	assert.Equal(t, 0.5, Settings{}.Scale(0.5))
	assert.Equal(t, 1.0, Settings{Speedup: 2}.Scale(0.5))
}
