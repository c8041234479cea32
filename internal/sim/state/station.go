package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/atmos-simulator/core"
	"github.com/signalsfoundry/atmos-simulator/devices"
	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/internal/config"
	"github.com/signalsfoundry/atmos-simulator/internal/logging"
	"github.com/signalsfoundry/atmos-simulator/internal/observability"
	"github.com/signalsfoundry/atmos-simulator/internal/scenario"
	"github.com/signalsfoundry/atmos-simulator/kb"
	"github.com/signalsfoundry/atmos-simulator/model"
)

// Re-export the lookup errors so callers can depend on state.* alone.
var (
	// ErrEntityNotFound indicates a name or handle that resolves to nothing.
	ErrEntityNotFound = kb.ErrEntityNotFound
	// ErrTileNotFound indicates a position with neither a tile nor pipes.
	ErrTileNotFound = core.ErrTileNotFound
	// ErrAlreadyLoaded is returned when loading a second scenario.
	ErrAlreadyLoaded = errors.New("scenario already loaded")
)

// Station owns one simulated map: its tiles, pipe graph, entity registry
// and device world. Every exported method takes the coarse station lock,
// so a step never overlaps an inspection or a canister interaction.
type Station struct {
	// RunID identifies this station instance in logs and over the wire.
	RunID string

	mu sync.Mutex

	grid    *core.Grid
	graph   *core.PipeGraph
	atmos   *core.AtmosphereSystem
	builder *core.NetworkBuilder
	engine  *core.SimulationEngine
	world   *devices.World
	unbind  func()

	names    map[string]model.Entity
	scenario string
	last     core.StepStats

	settings  *config.Source
	reactions gas.ReactionSet
	log       logging.Logger
	metrics   *observability.AtmosCollector
}

// StationOption customises Station construction.
type StationOption func(*Station)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) StationOption {
	return func(s *Station) { s.log = l }
}

// WithCollector reports every step to c.
func WithCollector(c *observability.AtmosCollector) StationOption {
	return func(s *Station) { s.metrics = c }
}

// WithSettings reads the per-step settings from src.
func WithSettings(src *config.Source) StationOption {
	return func(s *Station) { s.settings = src }
}

// WithReactions replaces the default reaction set.
func WithReactions(r gas.ReactionSet) StationOption {
	return func(s *Station) { s.reactions = r }
}

// WithRunID pins the run identifier instead of generating one.
func WithRunID(id string) StationOption {
	return func(s *Station) { s.RunID = id }
}

// NewStation builds an empty station. Without WithReactions the built-in
// reaction set is used.
func NewStation(opts ...StationOption) (*Station, error) {
	s := &Station{names: map[string]model.Entity{}}
	for _, opt := range opts {
		opt(s)
	}
	if s.RunID == "" {
		s.RunID = uuid.NewString()
	}
	if s.settings == nil {
		s.settings = config.NewSource(core.DefaultSettings())
	}
	if s.reactions == nil {
		set, err := gas.DefaultReactions()
		if err != nil {
			return nil, fmt.Errorf("load reactions: %w", err)
		}
		s.reactions = set
	}
	s.log = logging.OrNoop(s.log).With(logging.String("run_id", s.RunID))

	s.grid = core.NewGrid()
	s.graph = core.NewPipeGraph()
	s.atmos = core.NewAtmosphereSystem(s.grid, s.reactions)
	s.builder = core.NewNetworkBuilder(s.graph, s.grid, s.log)
	s.world = devices.NewWorld(kb.NewKnowledgeBase(), s.graph, s.atmos, s.log)
	s.unbind = s.world.Bind(s.builder)
	s.engine = core.NewSimulationEngine(s.graph, s.builder, s.atmos)
	for _, sys := range s.world.Systems() {
		s.engine.AddSystem(sys)
	}
	return s, nil
}

// Close detaches the device world from the registry.
func (s *Station) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unbind != nil {
		s.unbind()
		s.unbind = nil
	}
}

// Load applies a scenario to the empty station.
func (s *Station) Load(ctx context.Context, f *scenario.File) (*scenario.Loaded, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grid.Len() > 0 || s.world.KB.Len() > 0 {
		return nil, ErrAlreadyLoaded
	}
	loaded, err := scenario.Apply(ctx, f, s.grid, s.world)
	if err != nil {
		return nil, err
	}
	for name, e := range loaded.Entities {
		s.names[name] = e
	}
	s.scenario = loaded.Name
	s.log.Info(ctx, "scenario loaded",
		logging.String("scenario", loaded.Name),
		logging.Int("tiles", loaded.Tiles),
		logging.Int("entities", s.world.KB.Len()),
	)
	return loaded, nil
}

// Step runs one atmospherics step of dt seconds using the settings snapshot
// current at its start.
func (s *Station) Step(ctx context.Context, dt float64) core.StepStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.settings.Snapshot()
	ctx, span := observability.StartChildSpan(ctx, "atmos.Step", "",
		attribute.String("run_id", s.RunID),
		attribute.Int("tick", s.engine.Tick()+1),
		attribute.Float64("dt", dt),
	)
	defer span.End()

	start := time.Now()
	stats := s.engine.Step(ctx, dt, settings)
	elapsed := time.Since(start)
	s.last = stats

	span.SetAttributes(
		attribute.Int("nets_created", stats.Rebuild.NetsCreated),
		attribute.Int("nets_removed", stats.Rebuild.NetsRemoved),
		attribute.Int("tiles_shared", stats.Tiles.Shared),
		attribute.Int("net_reactions", stats.NetReactions),
	)
	if s.metrics != nil {
		tiles, pipes, containers := s.totalsLocked()
		s.metrics.ObserveStep(observability.StepSample{
			Duration:       elapsed,
			NetsCreated:    stats.Rebuild.NetsCreated,
			NetReactions:   stats.NetReactions,
			PipeNets:       s.graph.NetCount(),
			PipeNodes:      s.graph.NodeCount(),
			Tiles:          s.grid.Len(),
			TileMoles:      tiles,
			PipeMoles:      pipes,
			ContainerMoles: containers,
			Devices:        s.world.Counts(),
		})
	}
	if stats.Rebuild.NetsCreated > 0 || stats.Rebuild.NetsRemoved > 0 {
		s.log.Debug(ctx, "pipe networks rebuilt",
			logging.Int("tick", stats.Tick),
			logging.Int("created", stats.Rebuild.NetsCreated),
			logging.Int("removed", stats.Rebuild.NetsRemoved),
			logging.Int("visited", stats.Rebuild.NodesVisited),
		)
	}
	return stats
}

// Tick returns the number of completed steps.
func (s *Station) Tick() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Tick()
}

// LastStep returns the stats of the most recent step.
func (s *Station) LastStep() core.StepStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// ScenarioName returns the loaded scenario's name.
func (s *Station) ScenarioName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scenario
}

// Settings returns the settings the next step will use.
func (s *Station) Settings() core.Settings { return s.settings.Snapshot() }

// Do runs fn against the device world under the station lock.
func (s *Station) Do(fn func(w *devices.World) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.world)
}

// Resolve looks ref up as a scenario name first and then as an entity
// handle such as "4:1".
func (s *Station) Resolve(ref string) (model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(ref)
}

func (s *Station) resolveLocked(ref string) (model.Entity, error) {
	if e, ok := s.names[ref]; ok && s.world.KB.Alive(e) {
		return e, nil
	}
	e, err := model.ParseEntity(ref)
	if err == nil && s.world.KB.Alive(e) {
		return e, nil
	}
	return model.NoEntity, fmt.Errorf("%w: %q", ErrEntityNotFound, ref)
}

// EntityInfo is a registry entry as listed by Entities.
type EntityInfo struct {
	Entity   model.Entity
	Name     string
	Pos      model.Vec2i
	Anchored bool
}

// Entities lists every live entity in handle order.
func (s *Station) Entities() []EntityInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	ents := s.world.KB.Entities()
	out := make([]EntityInfo, 0, len(ents))
	for _, e := range ents {
		tr, err := s.world.KB.Transform(e)
		if err != nil {
			continue
		}
		out = append(out, EntityInfo{Entity: e, Name: s.world.KB.Name(e), Pos: tr.Pos, Anchored: tr.Anchored})
	}
	return out
}

// Totals returns the moles held by tiles, pipe nets and loose node air, and
// portable containers.
func (s *Station) Totals() (tiles, pipes, containers float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalsLocked()
}

func (s *Station) totalsLocked() (tiles, pipes, containers float64) {
	tiles = s.grid.TotalMoles()
	pipes = s.graph.TotalMoles()
	s.world.Canisters.Each(func(_ model.Entity, c *model.Canister) { containers += c.Air.TotalMoles() })
	s.world.PortableTanks.Each(func(_ model.Entity, t *model.PortableTank) { containers += t.Air.TotalMoles() })
	return tiles, pipes, containers
}

// MixtureReport is a read-out of one gas mixture.
type MixtureReport struct {
	Volume      float64
	Pressure    float64
	Temperature float64
	TotalMoles  float64
	// Moles lists the species present, keyed by gas name.
	Moles map[string]float64
}

func reportMixture(m *gas.Mixture) MixtureReport {
	r := MixtureReport{
		Volume:      m.Volume,
		Pressure:    m.Pressure(),
		Temperature: m.Temperature(),
		TotalMoles:  m.TotalMoles(),
		Moles:       map[string]float64{},
	}
	for _, g := range gas.Gases() {
		if n := m.GetMoles(g); n > 0 {
			r.Moles[g.String()] = n
		}
	}
	return r
}

// NodeReport is the gas seen through one pipe node.
type NodeReport struct {
	Owner     model.Entity
	OwnerName string
	Node      string
	// Net is empty while the node is ungrouped.
	Net string
	MixtureReport
}

// ScanReport is what a gas analyzer pointed at a tile shows.
type ScanReport struct {
	Pos model.Vec2i
	// Tile is nil for a missing or airless tile.
	Tile    *MixtureReport
	Airless bool
	Nodes   []NodeReport
}

// Analyze reports the tile air at pos and the gas of every pipe node on it.
func (s *Station) Analyze(pos model.Vec2i) (ScanReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := ScanReport{Pos: pos}
	tile := s.grid.GetTile(pos)
	if tile != nil {
		if tile.Air == nil {
			report.Airless = true
		} else {
			r := reportMixture(tile.Air)
			report.Tile = &r
		}
	}
	for _, node := range s.graph.NodesAt(pos) {
		air := s.graph.NodeAir(node)
		if air == nil {
			continue
		}
		nr := NodeReport{
			Owner:         node.Owner,
			OwnerName:     s.world.KB.Name(node.Owner),
			Node:          node.Name,
			MixtureReport: reportMixture(air),
		}
		if node.Net.Valid() {
			nr.Net = node.Net.String()
		}
		report.Nodes = append(report.Nodes, nr)
	}
	if tile == nil && len(report.Nodes) == 0 {
		return report, fmt.Errorf("%w: %s", ErrTileNotFound, pos)
	}
	return report, nil
}

// AnalyzeEntity reports the gas behind each of ref's pipe nodes, plus the
// internal air of canisters and portable tanks under the "contents" node.
func (s *Station) AnalyzeEntity(ref string) ([]NodeReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.resolveLocked(ref)
	if err != nil {
		return nil, err
	}
	name := s.world.KB.Name(e)
	var out []NodeReport
	for _, id := range s.graph.OwnerNodes(e) {
		node, ok := s.graph.Node(id)
		if !ok {
			continue
		}
		air := s.graph.NodeAir(node)
		if air == nil {
			continue
		}
		nr := NodeReport{Owner: e, OwnerName: name, Node: node.Name, MixtureReport: reportMixture(air)}
		if node.Net.Valid() {
			nr.Net = node.Net.String()
		}
		out = append(out, nr)
	}
	if c, ok := s.world.Canisters.Get(e); ok {
		out = append(out, NodeReport{Owner: e, OwnerName: name, Node: "contents", MixtureReport: reportMixture(c.Air)})
	}
	if t, ok := s.world.PortableTanks.Get(e); ok {
		out = append(out, NodeReport{Owner: e, OwnerName: name, Node: "contents", MixtureReport: reportMixture(t.Air)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out, nil
}
