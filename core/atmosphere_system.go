package core

import (
	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/model"
)

// AtmosphereSystem is the gas algebra and tile access every device goes
// through. It also runs the per-tile diffusion loop.
type AtmosphereSystem struct {
	Grid      *Grid
	Reactions gas.ReactionSet
}

// NewAtmosphereSystem binds the façade to a grid and reaction set.
func NewAtmosphereSystem(grid *Grid, reactions gas.ReactionSet) *AtmosphereSystem {
	if grid == nil {
		grid = NewGrid()
	}
	return &AtmosphereSystem{Grid: grid, Reactions: reactions}
}

// GetHeatCapacity returns the mixture's heat capacity, never below
// gas.MinimumHeatCapacity so callers can divide by it.
func (a *AtmosphereSystem) GetHeatCapacity(mix *gas.Mixture) float64 {
	if mix == nil {
		return gas.MinimumHeatCapacity
	}
	hc := mix.HeatCapacity()
	if hc < gas.MinimumHeatCapacity {
		return gas.MinimumHeatCapacity
	}
	return hc
}

// Merge adds src into dst.
func (a *AtmosphereSystem) Merge(dst, src *gas.Mixture) {
	if dst == nil || src == nil {
		return
	}
	dst.Merge(src)
}

// React runs the reaction set against mix. holder is the entity whose gas is
// reacting; it only matters to reactions with side effects on their holder,
// and none of the stock ones have any.
func (a *AtmosphereSystem) React(mix *gas.Mixture, holder model.Entity) gas.ReactionResult {
	_ = holder
	return a.Reactions.React(mix)
}

// ReleaseGasTo moves gas from source towards targetPressure in target. A nil
// target releases to space.
func (a *AtmosphereSystem) ReleaseGasTo(source, target *gas.Mixture, targetPressure float64) bool {
	if source == nil {
		return false
	}
	return gas.ReleaseGasTo(source, target, targetPressure)
}

// PumpGasTo forces gas from source into target up to targetPressure.
func (a *AtmosphereSystem) PumpGasTo(source, target *gas.Mixture, targetPressure float64) bool {
	if source == nil || target == nil {
		return false
	}
	return gas.PumpGasTo(source, target, targetPressure)
}

// DivideInto splits source between receivers by volume.
func (a *AtmosphereSystem) DivideInto(source *gas.Mixture, receivers []*gas.Mixture) {
	if source == nil {
		return
	}
	gas.DivideInto(source, receivers)
}

// FractionToEqualizePressure wraps gas.FractionToEqualizePressure.
func (a *AtmosphereSystem) FractionToEqualizePressure(x, y *gas.Mixture) float64 {
	if x == nil || y == nil {
		return 0
	}
	return gas.FractionToEqualizePressure(x, y)
}

// MolesToPressureThreshold wraps gas.MolesToPressureThreshold.
func (a *AtmosphereSystem) MolesToPressureThreshold(mix *gas.Mixture, target float64) float64 {
	if mix == nil {
		return 0
	}
	return gas.MolesToPressureThreshold(mix, target)
}

// IsMixtureProbablySafe reports whether mix is breathable by pressure and
// temperature.
func (a *AtmosphereSystem) IsMixtureProbablySafe(mix *gas.Mixture) bool {
	return gas.IsProbablySafe(mix)
}

// GetTile returns the tile at pos, or nil.
func (a *AtmosphereSystem) GetTile(pos model.Vec2i) *TileAtmosphere {
	return a.Grid.GetTile(pos)
}

// GetTileMixture returns the air on pos, or nil for a missing or airless
// tile.
func (a *AtmosphereSystem) GetTileMixture(pos model.Vec2i) *gas.Mixture {
	if t := a.Grid.GetTile(pos); t != nil {
		return t.Air
	}
	return nil
}

// GetAdjacentTileMixtures returns the air of pos's neighbours that hold any.
func (a *AtmosphereSystem) GetAdjacentTileMixtures(pos model.Vec2i) []*gas.Mixture {
	t := a.Grid.GetTile(pos)
	if t == nil {
		return nil
	}
	adj := t.Adjacent()
	out := make([]*gas.Mixture, 0, len(adj))
	for _, n := range adj {
		out = append(out, n.Air)
	}
	return out
}

// AssumeAir merges mix into the tile at pos. It reports false when the tile
// is missing or airless; the gas is then lost to space.
func (a *AtmosphereSystem) AssumeAir(pos model.Vec2i, mix *gas.Mixture) bool {
	return a.Grid.GetTile(pos).AssumeAir(mix)
}

// TileStats summarises a ProcessTiles pass.
type TileStats struct {
	Shared    int
	Reactions int
}

// ProcessTiles diffuses gas between neighbouring tiles and reacts tile air.
// Each neighbouring pair is shared exactly once per call, in row-major order.
func (a *AtmosphereSystem) ProcessTiles(settings Settings) TileStats {
	var stats TileStats
	tiles := a.Grid.Tiles()
	if settings.TileProcessing {
		for _, t := range tiles {
			if t.Air == nil {
				continue
			}
			adjacent := t.AdjacentCount()
			// East and north only, so every pair is visited once.
			for _, d := range []model.Direction{model.East, model.North} {
				n := a.Grid.GetTile(t.Pos.Offset(d))
				if n == nil || n.Air == nil {
					continue
				}
				t.Air.Share(n.Air, adjacent)
				stats.Shared++
			}
		}
	}
	if settings.Reactions {
		for _, t := range tiles {
			if t.Air != nil && a.Reactions.React(t.Air) != gas.NoReaction {
				stats.Reactions++
			}
		}
	}
	return stats
}

// ProcessNetReactions reacts every pipe net's shared air once.
func (a *AtmosphereSystem) ProcessNetReactions(graph *PipeGraph, settings Settings) int {
	if !settings.Reactions || graph == nil {
		return 0
	}
	n := 0
	for _, net := range graph.Nets() {
		if a.Reactions.React(net.Air) != gas.NoReaction {
			n++
		}
	}
	return n
}
