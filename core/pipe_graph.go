package core

import (
	"errors"
	"fmt"
	"sort"

	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/model"
	"github.com/zyedidia/generic/mapset"
)

var (
	ErrNodeExists   = errors.New("pipe node already exists")
	ErrNodeNotFound = errors.New("pipe node not found")
	ErrNodeBadInput = errors.New("invalid pipe node")
)

// NodeID is a generation-checked handle to a PipeNode.
type NodeID struct {
	index      uint32
	generation uint32
}

// Valid reports whether id was ever issued.
func (id NodeID) Valid() bool { return id.generation != 0 }

func (id NodeID) String() string { return fmt.Sprintf("node-%d.%d", id.index, id.generation) }

func (id NodeID) less(o NodeID) bool {
	if id.index != o.index {
		return id.index < o.index
	}
	return id.generation < o.generation
}

// NetID is a generation-checked handle to a PipeNet. The zero NetID means
// "no net".
type NetID struct {
	index      uint32
	generation uint32
}

// Valid reports whether id refers to a net at all.
func (id NetID) Valid() bool { return id.generation != 0 }

func (id NetID) String() string { return fmt.Sprintf("net-%d.%d", id.index, id.generation) }

// PipeNode is one connection point of a pipe-shaped entity.
type PipeNode struct {
	ID    NodeID
	Owner model.Entity
	// Name is the node's role on its owner (pipe, inlet, outlet, port...).
	Name       string
	Pos        model.Vec2i
	Directions model.Direction
	// Port nodes also connect to other port nodes on the same tile.
	Port   bool
	Volume float64

	Anchored           bool
	ConnectionsEnabled bool

	// Net is the node's group; invalid while the node is ungrouped.
	Net NetID

	// air holds the node's own gas while it is ungrouped.
	air *gas.Mixture
}

// connectable reports whether the node may join neighbours.
func (n *PipeNode) connectable() bool { return n.Anchored && n.ConnectionsEnabled }

// PipeNet is a maximal connected group of nodes sharing one mixture.
type PipeNet struct {
	ID  NetID
	Air *gas.Mixture

	nodes mapset.Set[NodeID]
}

// NodeCount returns the number of member nodes.
func (n *PipeNet) NodeCount() int { return n.nodes.Size() }

// Has reports whether id is a member.
func (n *PipeNet) Has(id NodeID) bool { return n.nodes.Has(id) }

// Nodes returns the member node IDs in a stable order.
func (n *PipeNet) Nodes() []NodeID {
	out := make([]NodeID, 0, n.nodes.Size())
	n.nodes.Each(func(id NodeID) { out = append(out, id) })
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

// NodeSpec describes a node to add.
type NodeSpec struct {
	Owner      model.Entity
	Name       string
	Pos        model.Vec2i
	Directions model.Direction
	Port       bool
	Volume     float64
	Anchored   bool
	// Disconnected starts the node with connections disabled.
	Disconnected bool
}

type nodeSlot struct {
	generation uint32
	node       *PipeNode
}

type netSlot struct {
	generation uint32
	net        *PipeNet
}

// PipeGraph stores pipe nodes and the nets grouping them in
// generation-indexed slot arrays. Only the NetworkBuilder changes group
// membership; devices read through TryGetNode and NodeAir.
//
// PipeGraph is not safe for concurrent use.
type PipeGraph struct {
	nodes     []nodeSlot
	freeNodes []uint32
	nets      []netSlot
	freeNets  []uint32

	byOwner map[model.Entity]map[string]NodeID
	byPos   map[model.Vec2i]mapset.Set[NodeID]

	dirtyNodes mapset.Set[NodeID]
	dirtyNets  mapset.Set[NetID]
}

// NewPipeGraph returns an empty graph.
func NewPipeGraph() *PipeGraph {
	return &PipeGraph{
		byOwner:    make(map[model.Entity]map[string]NodeID),
		byPos:      make(map[model.Vec2i]mapset.Set[NodeID]),
		dirtyNodes: mapset.New[NodeID](),
		dirtyNets:  mapset.New[NetID](),
	}
}

//
// ---------- Nodes ----------
//

// AddNode creates an ungrouped node holding an empty mixture of its volume.
func (g *PipeGraph) AddNode(spec NodeSpec) (NodeID, error) {
	if !spec.Owner.Valid() || spec.Name == "" || spec.Volume < 0 {
		return NodeID{}, fmt.Errorf("%w: owner %s name %q", ErrNodeBadInput, spec.Owner, spec.Name)
	}
	if _, exists := g.byOwner[spec.Owner][spec.Name]; exists {
		return NodeID{}, fmt.Errorf("%w: %s/%q", ErrNodeExists, spec.Owner, spec.Name)
	}

	var idx uint32
	if n := len(g.freeNodes); n > 0 {
		idx = g.freeNodes[n-1]
		g.freeNodes = g.freeNodes[:n-1]
	} else {
		g.nodes = append(g.nodes, nodeSlot{})
		idx = uint32(len(g.nodes) - 1)
	}
	slot := &g.nodes[idx]
	slot.generation++
	id := NodeID{index: idx, generation: slot.generation}

	air := gas.NewMixture(spec.Volume)
	air.SetTemperature(gas.T20C)
	slot.node = &PipeNode{
		ID:                 id,
		Owner:              spec.Owner,
		Name:               spec.Name,
		Pos:                spec.Pos,
		Directions:         spec.Directions,
		Port:               spec.Port,
		Volume:             spec.Volume,
		Anchored:           spec.Anchored,
		ConnectionsEnabled: !spec.Disconnected,
		air:                air,
	}

	if g.byOwner[spec.Owner] == nil {
		g.byOwner[spec.Owner] = make(map[string]NodeID)
	}
	g.byOwner[spec.Owner][spec.Name] = id
	g.indexPos(id, spec.Pos)
	g.dirtyNodes.Put(id)
	return id, nil
}

// RemoveNode deletes a node. The node takes its volume share of its net's gas
// with it; that gas is returned so the caller can release it somewhere.
func (g *PipeGraph) RemoveNode(id NodeID) (*gas.Mixture, error) {
	node, ok := g.Node(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	leftover := g.detach(node)

	for _, nb := range g.neighbours(node) {
		g.dirtyNodes.Put(nb)
	}
	g.dirtyNodes.Remove(id)
	g.unindexPos(id, node.Pos)
	if names := g.byOwner[node.Owner]; names != nil {
		delete(names, node.Name)
		if len(names) == 0 {
			delete(g.byOwner, node.Owner)
		}
	}
	g.nodes[id.index].node = nil
	g.freeNodes = append(g.freeNodes, id.index)
	return leftover, nil
}

// RemoveOwner deletes every node of owner and returns their combined gas,
// or nil when owner had no nodes.
func (g *PipeGraph) RemoveOwner(owner model.Entity) *gas.Mixture {
	var total *gas.Mixture
	for _, id := range g.OwnerNodes(owner) {
		leftover, err := g.RemoveNode(id)
		if err != nil || leftover == nil {
			continue
		}
		if total == nil {
			total = gas.NewMixture(0)
		}
		total.Merge(leftover)
		total.Volume += leftover.Volume
	}
	return total
}

// Node resolves a node handle.
func (g *PipeGraph) Node(id NodeID) (*PipeNode, bool) {
	if !id.Valid() || int(id.index) >= len(g.nodes) {
		return nil, false
	}
	slot := g.nodes[id.index]
	if slot.generation != id.generation || slot.node == nil {
		return nil, false
	}
	return slot.node, true
}

// TryGetNode resolves an owner's node by name.
func (g *PipeGraph) TryGetNode(owner model.Entity, name string) (*PipeNode, bool) {
	id, ok := g.byOwner[owner][name]
	if !ok {
		return nil, false
	}
	return g.Node(id)
}

// OwnerNodes returns the IDs of every node owned by owner, ordered by name.
func (g *PipeGraph) OwnerNodes(owner model.Entity) []NodeID {
	names := g.byOwner[owner]
	keys := make([]string, 0, len(names))
	for name := range names {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	out := make([]NodeID, 0, len(keys))
	for _, k := range keys {
		out = append(out, names[k])
	}
	return out
}

// NodesAt returns the nodes on a tile.
func (g *PipeGraph) NodesAt(pos model.Vec2i) []*PipeNode {
	set, ok := g.byPos[pos]
	if !ok {
		return nil
	}
	out := make([]*PipeNode, 0, set.Size())
	set.Each(func(id NodeID) {
		if n, ok := g.Node(id); ok {
			out = append(out, n)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID.less(out[j].ID) })
	return out
}

// NodeCount returns the number of live nodes.
func (g *PipeGraph) NodeCount() int {
	n := 0
	for _, s := range g.nodes {
		if s.node != nil {
			n++
		}
	}
	return n
}

// NodeAir returns the mixture a node reads and writes: its net's shared air
// when grouped, otherwise its own.
func (g *PipeGraph) NodeAir(node *PipeNode) *gas.Mixture {
	if node == nil {
		return nil
	}
	if net, ok := g.Net(node.Net); ok {
		return net.Air
	}
	return node.air
}

// NetOf returns the net a node belongs to.
func (g *PipeGraph) NetOf(node *PipeNode) (*PipeNet, bool) {
	if node == nil {
		return nil, false
	}
	return g.Net(node.Net)
}

// SetOwnerAnchored anchors or unanchors every node of owner at pos.
func (g *PipeGraph) SetOwnerAnchored(owner model.Entity, anchored bool, pos model.Vec2i) {
	for _, id := range g.OwnerNodes(owner) {
		node, ok := g.Node(id)
		if !ok {
			continue
		}
		g.touch(node)
		if node.Pos != pos {
			g.unindexPos(id, node.Pos)
			node.Pos = pos
			g.indexPos(id, pos)
		}
		node.Anchored = anchored
		g.touch(node)
	}
}

// SetOwnerConnections enables or disables connections on every node of owner.
func (g *PipeGraph) SetOwnerConnections(owner model.Entity, enabled bool) {
	for _, id := range g.OwnerNodes(owner) {
		if node, ok := g.Node(id); ok && node.ConnectionsEnabled != enabled {
			g.touch(node)
			node.ConnectionsEnabled = enabled
			g.touch(node)
		}
	}
}

// MoveOwner moves every node of owner to pos.
func (g *PipeGraph) MoveOwner(owner model.Entity, pos model.Vec2i) {
	for _, id := range g.OwnerNodes(owner) {
		if node, ok := g.Node(id); ok && node.Pos != pos {
			g.touch(node)
			g.unindexPos(id, node.Pos)
			node.Pos = pos
			g.indexPos(id, pos)
			g.touch(node)
		}
	}
}

// MarkDirty queues a node for the next rebuild.
func (g *PipeGraph) MarkDirty(id NodeID) {
	if _, ok := g.Node(id); ok {
		g.dirtyNodes.Put(id)
	}
}

// Dirty reports whether a rebuild is pending.
func (g *PipeGraph) Dirty() bool { return g.dirtyNodes.Size() > 0 || g.dirtyNets.Size() > 0 }

//
// ---------- Nets ----------
//

// Net resolves a net handle.
func (g *PipeGraph) Net(id NetID) (*PipeNet, bool) {
	if !id.Valid() || int(id.index) >= len(g.nets) {
		return nil, false
	}
	slot := g.nets[id.index]
	if slot.generation != id.generation || slot.net == nil {
		return nil, false
	}
	return slot.net, true
}

// Nets returns every live net ordered by ID.
func (g *PipeGraph) Nets() []*PipeNet {
	out := make([]*PipeNet, 0, len(g.nets))
	for _, s := range g.nets {
		if s.net != nil {
			out = append(out, s.net)
		}
	}
	return out
}

// NetCount returns the number of live nets.
func (g *PipeGraph) NetCount() int {
	n := 0
	for _, s := range g.nets {
		if s.net != nil {
			n++
		}
	}
	return n
}

// TotalMoles sums the gas held by every net and ungrouped node.
func (g *PipeGraph) TotalMoles() float64 {
	var total float64
	for _, s := range g.nets {
		if s.net != nil {
			total += s.net.Air.TotalMoles()
		}
	}
	for _, s := range g.nodes {
		if s.node != nil && !s.node.Net.Valid() && s.node.air != nil {
			total += s.node.air.TotalMoles()
		}
	}
	return total
}

// TryAssignGroupIfNeeded gives an ungrouped node its own single-node net.
func (g *PipeGraph) TryAssignGroupIfNeeded(node *PipeNode) *PipeNet {
	if net, ok := g.Net(node.Net); ok {
		return net
	}
	net := g.newNet(node.Volume)
	if node.air != nil {
		net.Air.Merge(node.air)
	}
	g.join(net, node)
	g.dirtyNodes.Put(node.ID)
	return net
}

func (g *PipeGraph) newNet(volume float64) *PipeNet {
	var idx uint32
	if n := len(g.freeNets); n > 0 {
		idx = g.freeNets[n-1]
		g.freeNets = g.freeNets[:n-1]
	} else {
		g.nets = append(g.nets, netSlot{})
		idx = uint32(len(g.nets) - 1)
	}
	slot := &g.nets[idx]
	slot.generation++
	air := gas.NewMixture(volume)
	net := &PipeNet{
		ID:    NetID{index: idx, generation: slot.generation},
		Air:   air,
		nodes: mapset.New[NodeID](),
	}
	slot.net = net
	return net
}

func (g *PipeGraph) deleteNet(id NetID) {
	if _, ok := g.Net(id); !ok {
		return
	}
	g.nets[id.index].net = nil
	g.freeNets = append(g.freeNets, id.index)
	g.dirtyNets.Remove(id)
}

func (g *PipeGraph) join(net *PipeNet, node *PipeNode) {
	net.nodes.Put(node.ID)
	node.Net = net.ID
	node.air = nil
}

// detach pulls a node out of its net, handing it its volume share of the
// shared gas. It returns the node's gas.
func (g *PipeGraph) detach(node *PipeNode) *gas.Mixture {
	net, ok := g.Net(node.Net)
	if !ok {
		node.Net = NetID{}
		return node.air
	}
	var share *gas.Mixture
	switch {
	case net.nodes.Size() <= 1:
		share = net.Air.Clone()
		net.Air.Clear()
	case net.Air.Volume > 0:
		share = net.Air.RemoveRatio(node.Volume / net.Air.Volume)
	default:
		share = net.Air.RemoveRatio(0)
	}
	share.Volume = node.Volume
	net.Air.Volume -= node.Volume
	if net.Air.Volume < 0 {
		net.Air.Volume = 0
	}
	net.nodes.Remove(node.ID)
	node.Net = NetID{}
	node.air = share

	if net.nodes.Size() == 0 {
		g.deleteNet(net.ID)
	} else {
		g.dirtyNets.Put(net.ID)
	}
	return share
}

// touch queues a node and its current neighbours for rebuild.
func (g *PipeGraph) touch(node *PipeNode) {
	g.dirtyNodes.Put(node.ID)
	if net, ok := g.Net(node.Net); ok {
		g.dirtyNets.Put(net.ID)
	}
	for _, nb := range g.neighbours(node) {
		g.dirtyNodes.Put(nb)
	}
}

// neighbours returns the nodes node connects to: axis-aligned pipes facing
// each other, plus port nodes sharing a tile.
func (g *PipeGraph) neighbours(node *PipeNode) []NodeID {
	if !node.connectable() {
		return nil
	}
	var out []NodeID
	for _, d := range model.Cardinals {
		if !node.Directions.Has(d) {
			continue
		}
		for _, other := range g.NodesAt(node.Pos.Offset(d)) {
			if other.connectable() && other.Directions.Has(d.Opposite()) {
				out = append(out, other.ID)
			}
		}
	}
	if node.Port {
		for _, other := range g.NodesAt(node.Pos) {
			if other.ID != node.ID && other.Port && other.connectable() {
				out = append(out, other.ID)
			}
		}
	}
	return out
}

func (g *PipeGraph) indexPos(id NodeID, pos model.Vec2i) {
	set, ok := g.byPos[pos]
	if !ok {
		set = mapset.New[NodeID]()
		g.byPos[pos] = set
	}
	set.Put(id)
}

func (g *PipeGraph) unindexPos(id NodeID, pos model.Vec2i) {
	if set, ok := g.byPos[pos]; ok {
		set.Remove(id)
		if set.Size() == 0 {
			delete(g.byPos, pos)
		}
	}
}
