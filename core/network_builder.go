package core

import (
	"context"
	"sort"

	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/internal/logging"
	"github.com/signalsfoundry/atmos-simulator/kb"
	"github.com/signalsfoundry/atmos-simulator/model"
	"github.com/zyedidia/generic/mapset"
)

// RebuildStats summarises one Rebuild pass.
type RebuildStats struct {
	NetsRemoved  int
	NetsCreated  int
	NodesVisited int
}

// NetworkBuilder is the only writer of PipeNet membership. Topology events
// mark nodes dirty; Rebuild regroups them by flood fill and redistributes the
// old nets' gas by volume.
type NetworkBuilder struct {
	Graph *PipeGraph
	// Tiles receives gas freed by deleted pipes. May be nil.
	Tiles TileLookup

	log logging.Logger
}

// NewNetworkBuilder wires a builder to graph. Gas released from deleted pipes
// goes to the tile under them when tiles is non-nil.
func NewNetworkBuilder(graph *PipeGraph, tiles TileLookup, log logging.Logger) *NetworkBuilder {
	return &NetworkBuilder{
		Graph: graph,
		Tiles: tiles,
		log:   logging.OrNoop(log).With(logging.String("component", "network_builder")),
	}
}

// HandleEvent applies a KB topology event to the graph. It never rebuilds;
// the next Rebuild call picks the changes up.
func (b *NetworkBuilder) HandleEvent(ev kb.Event) {
	switch ev.Type {
	case kb.EventEntityDeleted:
		leftover := b.Graph.RemoveOwner(ev.Entity)
		if leftover == nil {
			return
		}
		b.release(ev.From, leftover)
	case kb.EventAnchorChanged:
		b.Graph.SetOwnerAnchored(ev.Entity, ev.Anchored, ev.To)
	case kb.EventMoved:
		b.Graph.MoveOwner(ev.Entity, ev.To)
	}
}

// release dumps gas onto a tile. Without a tile holding air the gas is
// vented to space.
func (b *NetworkBuilder) release(pos model.Vec2i, mix *gas.Mixture) {
	if b.Tiles != nil {
		if tile := b.Tiles.GetTile(pos); tile.AssumeAir(mix) {
			return
		}
	}
	if mix.TotalMoles() > 0 {
		b.log.Debug(context.Background(), "pipe gas vented to space",
			logging.String("pos", pos.String()),
			logging.Float64("moles", mix.TotalMoles()),
		)
	}
}

// Rebuild regroups every node touched since the last call. Each affected
// old net's gas is split between the new nets by the volume its former
// nodes contribute to each, so totals are preserved exactly.
func (b *NetworkBuilder) Rebuild() RebuildStats {
	g := b.Graph
	var stats RebuildStats
	if !g.Dirty() {
		return stats
	}

	affected := mapset.New[NetID]()
	seeds := mapset.New[NodeID]()

	g.dirtyNodes.Each(func(id NodeID) {
		node, ok := g.Node(id)
		if !ok {
			return
		}
		seeds.Put(id)
		if node.Net.Valid() {
			affected.Put(node.Net)
		}
		for _, nb := range g.neighbours(node) {
			seeds.Put(nb)
			if other, ok := g.Node(nb); ok && other.Net.Valid() {
				affected.Put(other.Net)
			}
		}
	})
	g.dirtyNets.Each(func(id NetID) { affected.Put(id) })

	old := make(map[NetID]*PipeNet, affected.Size())
	affected.Each(func(id NetID) {
		if net, ok := g.Net(id); ok {
			old[id] = net
			net.nodes.Each(func(n NodeID) { seeds.Put(n) })
		}
	})

	components := b.floodFill(seeds, old)
	for _, comp := range components {
		stats.NodesVisited += len(comp)
	}

	// Per old net, the volume of its former nodes landing in each component.
	overlap := make(map[NetID][]float64, len(old))
	home := make(map[NetID]int, len(old))
	orphans := make([][]*gas.Mixture, len(components))
	volumes := make([]float64, len(components))
	for ci, comp := range components {
		for _, id := range comp {
			node, _ := g.Node(id)
			volumes[ci] += node.Volume
			if net, ok := old[node.Net]; ok {
				if overlap[net.ID] == nil {
					overlap[net.ID] = make([]float64, len(components))
					home[net.ID] = ci
				}
				overlap[net.ID][ci] += node.Volume
			} else if node.air != nil {
				orphans[ci] = append(orphans[ci], node.air)
			}
		}
	}

	oldIDs := make([]NetID, 0, len(old))
	for id := range old {
		oldIDs = append(oldIDs, id)
	}
	sort.Slice(oldIDs, func(i, j int) bool { return oldIDs[i].index < oldIDs[j].index })
	for _, id := range oldIDs {
		g.deleteNet(id)
		stats.NetsRemoved++
	}

	created := make([]*PipeNet, len(components))
	for ci, comp := range components {
		net := g.newNet(volumes[ci])
		for _, id := range comp {
			node, _ := g.Node(id)
			g.join(net, node)
		}
		for _, air := range orphans[ci] {
			net.Air.Merge(air)
		}
		created[ci] = net
		stats.NetsCreated++
	}

	for _, id := range oldIDs {
		redistribute(old[id].Air, overlap[id], created, home[id])
	}

	g.dirtyNodes = mapset.New[NodeID]()
	g.dirtyNets = mapset.New[NetID]()

	b.log.Debug(context.Background(), "pipe networks rebuilt",
		logging.Int("nets_removed", stats.NetsRemoved),
		logging.Int("nets_created", stats.NetsCreated),
		logging.Int("nodes_visited", stats.NodesVisited),
	)
	return stats
}

// floodFill groups seeds into connected components. Nodes of untouched nets
// reached along the way are absorbed into old so their gas is pooled too.
func (b *NetworkBuilder) floodFill(seeds mapset.Set[NodeID], old map[NetID]*PipeNet) [][]NodeID {
	g := b.Graph
	ordered := make([]NodeID, 0, seeds.Size())
	seeds.Each(func(id NodeID) { ordered = append(ordered, id) })
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].less(ordered[j]) })

	visited := mapset.New[NodeID]()
	var components [][]NodeID
	for _, start := range ordered {
		if visited.Has(start) {
			continue
		}
		if _, ok := g.Node(start); !ok {
			continue
		}
		var comp []NodeID
		queue := []NodeID{start}
		visited.Put(start)
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			node, ok := g.Node(id)
			if !ok {
				continue
			}
			comp = append(comp, id)
			if net, ok := g.Net(node.Net); ok {
				if _, known := old[net.ID]; !known {
					old[net.ID] = net
					net.nodes.Each(func(n NodeID) {
						if !visited.Has(n) {
							visited.Put(n)
							queue = append(queue, n)
						}
					})
				}
			}
			for _, nb := range g.neighbours(node) {
				if !visited.Has(nb) {
					visited.Put(nb)
					queue = append(queue, nb)
				}
			}
		}
		sort.Slice(comp, func(i, j int) bool { return comp[i].less(comp[j]) })
		components = append(components, comp)
	}
	return components
}

// redistribute splits src across the new nets by the given per-net volumes.
// When none of its volume survives it lands whole in the home net.
func redistribute(src *gas.Mixture, volumes []float64, nets []*PipeNet, home int) {
	if src == nil || len(nets) == 0 {
		return
	}
	var receivers []*gas.Mixture
	var targets []*PipeNet
	for ci, v := range volumes {
		if v > 0 {
			r := gas.NewMixture(v)
			r.SetTemperature(src.Temperature())
			receivers = append(receivers, r)
			targets = append(targets, nets[ci])
		}
	}
	if len(receivers) == 0 {
		if home < 0 || home >= len(nets) {
			home = 0
		}
		nets[home].Air.Merge(src)
		return
	}
	gas.DivideInto(src, receivers)
	for i, r := range receivers {
		targets[i].Air.Merge(r)
	}
}
