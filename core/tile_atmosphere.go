package core

import (
	"errors"
	"fmt"
	"sort"

	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/model"
)

// ErrTileNotFound is returned when no tile exists at a coordinate.
var ErrTileNotFound = errors.New("tile not found")

// TileAtmosphere is the environment air of one map tile. A nil Air marks an
// airless tile (space, vacuum or wall): it rejects every gas operation.
type TileAtmosphere struct {
	Pos model.Vec2i
	Air *gas.Mixture

	adjacent [4]*TileAtmosphere
}

// Adjacent returns the neighbouring tiles that hold air, in cardinal order.
func (t *TileAtmosphere) Adjacent() []*TileAtmosphere {
	out := make([]*TileAtmosphere, 0, 4)
	for _, n := range t.adjacent {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// AdjacentCount returns how many neighbours hold air.
func (t *TileAtmosphere) AdjacentCount() int {
	n := 0
	for _, a := range t.adjacent {
		if a != nil {
			n++
		}
	}
	return n
}

// AssumeAir merges mix into the tile and reports whether the tile accepted it.
func (t *TileAtmosphere) AssumeAir(mix *gas.Mixture) bool {
	if t == nil || t.Air == nil || mix == nil {
		return false
	}
	t.Air.Merge(mix)
	return true
}

// TileLookup resolves tiles by world coordinate.
type TileLookup interface {
	GetTile(pos model.Vec2i) *TileAtmosphere
}

// Grid is the set of tiles on the map, keyed by coordinate.
type Grid struct {
	tiles map[model.Vec2i]*TileAtmosphere
	order []model.Vec2i
}

// NewGrid returns an empty grid.
func NewGrid() *Grid {
	return &Grid{tiles: make(map[model.Vec2i]*TileAtmosphere)}
}

// SetTile creates or replaces the tile at pos. A nil air makes it airless.
func (g *Grid) SetTile(pos model.Vec2i, air *gas.Mixture) *TileAtmosphere {
	t, ok := g.tiles[pos]
	if !ok {
		t = &TileAtmosphere{Pos: pos}
		g.tiles[pos] = t
		g.order = nil
	}
	t.Air = air
	g.relink(pos)
	for _, d := range model.Cardinals {
		g.relink(pos.Offset(d))
	}
	return t
}

// RemoveTile deletes the tile at pos, returning its air.
func (g *Grid) RemoveTile(pos model.Vec2i) (*gas.Mixture, error) {
	t, ok := g.tiles[pos]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTileNotFound, pos)
	}
	delete(g.tiles, pos)
	g.order = nil
	for _, d := range model.Cardinals {
		g.relink(pos.Offset(d))
	}
	return t.Air, nil
}

// GetTile returns the tile at pos or nil.
func (g *Grid) GetTile(pos model.Vec2i) *TileAtmosphere {
	return g.tiles[pos]
}

// Len returns the number of tiles.
func (g *Grid) Len() int { return len(g.tiles) }

// Tiles returns every tile in row-major order.
func (g *Grid) Tiles() []*TileAtmosphere {
	if g.order == nil {
		g.order = make([]model.Vec2i, 0, len(g.tiles))
		for pos := range g.tiles {
			g.order = append(g.order, pos)
		}
		sort.Slice(g.order, func(i, j int) bool { return g.order[i].Less(g.order[j]) })
	}
	out := make([]*TileAtmosphere, 0, len(g.order))
	for _, pos := range g.order {
		out = append(out, g.tiles[pos])
	}
	return out
}

// TotalMoles sums the gas held by every tile.
func (g *Grid) TotalMoles() float64 {
	var total float64
	for _, t := range g.tiles {
		if t.Air != nil {
			total += t.Air.TotalMoles()
		}
	}
	return total
}

func (g *Grid) relink(pos model.Vec2i) {
	t, ok := g.tiles[pos]
	if !ok {
		return
	}
	for i, d := range model.Cardinals {
		n, ok := g.tiles[pos.Offset(d)]
		if ok && n.Air != nil && t.Air != nil {
			t.adjacent[i] = n
		} else {
			t.adjacent[i] = nil
		}
	}
}
