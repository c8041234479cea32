// Package inspect serves a read-mostly gRPC view of a running station: gas
// analyzer scans, the canister UI and its controls, and manual stepping.
// Requests and responses are google.protobuf.Struct values so the service
// needs no generated code.
package inspect

import (
	"context"
	"fmt"
	"math"

	"github.com/signalsfoundry/atmos-simulator/devices"
	"github.com/signalsfoundry/atmos-simulator/internal/logging"
	"github.com/signalsfoundry/atmos-simulator/internal/observability"
	sim "github.com/signalsfoundry/atmos-simulator/internal/sim/state"
	"github.com/signalsfoundry/atmos-simulator/model"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// MaxStepsPerCall bounds the Step RPC.
const MaxStepsPerCall = 1000

// InspectorServer is the server API of the atmos.inspect.v1.Inspector service.
type InspectorServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListEntities(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Analyze(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AnalyzeEntity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCanister(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateCanister(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Step(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Server implements InspectorServer on top of a Station.
type Server struct {
	station *sim.Station
	dt      float64
	log     logging.Logger
}

var _ InspectorServer = (*Server)(nil)

// NewServer returns a Server stepping station by dt seconds per Step unless
// the request overrides it.
func NewServer(station *sim.Station, dt float64, log logging.Logger) *Server {
	if dt <= 0 {
		dt = 0.5
	}
	return &Server{station: station, dt: dt, log: logging.OrNoop(log)}
}

// NewGRPCServer builds a gRPC server exposing srv with request IDs,
// tracing and collector metrics wired in. collector may be nil.
func NewGRPCServer(srv InspectorServer, log logging.Logger, collector *observability.AtmosCollector, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(log),
			TracingUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
		),
	}, opts...)
	gs := grpc.NewServer(opts...)
	Register(gs, srv)
	return gs
}

func (s *Server) logger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.log
}

// GetStatus reports the run, tick, settings and gas totals.
func (s *Server) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	tiles, pipes, containers := s.station.Totals()
	settings := s.station.Settings()
	last := s.station.LastStep()
	return newStruct(map[string]any{
		"run_id":   s.station.RunID,
		"scenario": s.station.ScenarioName(),
		"tick":     s.station.Tick(),
		"entities": len(s.station.Entities()),
		"totals": map[string]any{
			"tiles":      tiles,
			"pipes":      pipes,
			"containers": containers,
		},
		"settings": map[string]any{
			"superconduction_tile_loss": settings.SuperconductionTileLoss,
			"tile_processing":           settings.TileProcessing,
			"reactions":                 settings.Reactions,
			"speedup":                   settings.Speedup,
		},
		"last_step": stepValue(last.Tick, last.Rebuild.NetsCreated, last.Rebuild.NetsRemoved, last.Tiles.Shared, last.NetReactions),
	})
}

// ListEntities lists every live entity.
func (s *Server) ListEntities(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	ents := s.station.Entities()
	list := make([]any, 0, len(ents))
	for _, e := range ents {
		list = append(list, map[string]any{
			"entity":   e.Entity.String(),
			"name":     e.Name,
			"x":        e.Pos.X,
			"y":        e.Pos.Y,
			"anchored": e.Anchored,
		})
	}
	return newStruct(map[string]any{"entities": list})
}

// Analyze scans the tile at {x, y}.
func (s *Server) Analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	x, err := intField(req, "x")
	if err != nil {
		return nil, ToStatusError(err)
	}
	y, err := intField(req, "y")
	if err != nil {
		return nil, ToStatusError(err)
	}
	ctx, span := observability.StartChildSpan(ctx, "inspect.Analyze", "")
	defer span.End()

	scan, err := s.station.Analyze(model.Vec2i{X: x, Y: y})
	if err != nil {
		span.RecordError(err)
		return nil, ToStatusError(err)
	}
	out := map[string]any{
		"x":       x,
		"y":       y,
		"airless": scan.Airless,
		"nodes":   nodeList(scan.Nodes),
	}
	if scan.Tile != nil {
		out["tile"] = mixtureValue(*scan.Tile)
	}
	return newStruct(out)
}

// AnalyzeEntity scans every node of {entity}.
func (s *Server) AnalyzeEntity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ref, err := stringField(req, "entity")
	if err != nil {
		return nil, ToStatusError(err)
	}
	nodes, err := s.station.AnalyzeEntity(ref)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return newStruct(map[string]any{"entity": ref, "nodes": nodeList(nodes)})
}

// GetCanister returns the UI state of canister {entity}.
func (s *Server) GetCanister(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ref, err := stringField(req, "entity")
	if err != nil {
		return nil, ToStatusError(err)
	}
	e, err := s.station.Resolve(ref)
	if err != nil {
		return nil, ToStatusError(err)
	}
	var out map[string]any
	err = s.station.Do(func(w *devices.World) error {
		out, err = canisterValue(w, e)
		return err
	})
	if err != nil {
		return nil, ToStatusError(err)
	}
	return newStruct(out)
}

// UpdateCanister applies the controls present in the request to canister
// {entity} in a fixed order: toggle_lock, insert, eject, release_pressure,
// valve, purge. Either every control applies or, on error, none does. It
// returns the resulting UI state.
func (s *Server) UpdateCanister(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ref, err := stringField(req, "entity")
	if err != nil {
		return nil, ToStatusError(err)
	}
	e, err := s.station.Resolve(ref)
	if err != nil {
		return nil, ToStatusError(err)
	}
	var ctl devices.CanisterControls
	if tankRef, ok, err := optionalString(req, "insert"); err != nil {
		return nil, ToStatusError(err)
	} else if ok {
		if ctl.Insert, err = s.station.Resolve(tankRef); err != nil {
			return nil, ToStatusError(err)
		}
	}
	if ctl.ToggleLock, _, err = optionalBool(req, "toggle_lock"); err != nil {
		return nil, ToStatusError(err)
	}
	if ctl.Eject, _, err = optionalBool(req, "eject"); err != nil {
		return nil, ToStatusError(err)
	}
	if ctl.Purge, _, err = optionalBool(req, "purge"); err != nil {
		return nil, ToStatusError(err)
	}
	if ctl.Valve, ctl.SetValve, err = optionalBool(req, "valve"); err != nil {
		return nil, ToStatusError(err)
	}
	if ctl.ReleasePressure, ctl.SetReleasePressure, err = optionalNumber(req, "release_pressure"); err != nil {
		return nil, ToStatusError(err)
	}

	ctx, span := observability.StartChildSpan(ctx, "inspect.UpdateCanister", e.String())
	defer span.End()
	log := s.logger(ctx).With(logging.Entity("canister", e))

	var out map[string]any
	err = s.station.Do(func(w *devices.World) error {
		if err := w.ApplyCanisterControls(ctx, e, ctl); err != nil {
			return err
		}
		out, err = canisterValue(w, e)
		return err
	})
	if err != nil {
		span.RecordError(err)
		log.Warn(ctx, "canister update failed", logging.Err(err))
		return nil, ToStatusError(err)
	}
	return newStruct(out)
}

// Step advances the station {count} steps (default 1) of {dt} seconds
// (default the server's dt).
func (s *Server) Step(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	count := 1
	if n, ok, err := optionalNumber(req, "count"); err != nil {
		return nil, ToStatusError(err)
	} else if ok {
		if n < 1 || n > MaxStepsPerCall || n != math.Trunc(n) {
			return nil, ToStatusError(fmt.Errorf("%w: count %v outside [1,%d]", ErrInvalidRequest, n, MaxStepsPerCall))
		}
		count = int(n)
	}
	dt := s.dt
	if v, ok, err := optionalNumber(req, "dt"); err != nil {
		return nil, ToStatusError(err)
	} else if ok {
		if v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, ToStatusError(fmt.Errorf("%w: dt %v", ErrInvalidRequest, v))
		}
		dt = v
	}

	var created, removed, shared, reactions, tick int
	for i := 0; i < count; i++ {
		stats := s.station.Step(ctx, dt)
		created += stats.Rebuild.NetsCreated
		removed += stats.Rebuild.NetsRemoved
		shared += stats.Tiles.Shared
		reactions += stats.NetReactions
		tick = stats.Tick
	}
	s.logger(ctx).Debug(ctx, "manual step", logging.Int("count", count), logging.Float64("dt", dt), logging.Int("tick", tick))
	return newStruct(stepValue(tick, created, removed, shared, reactions))
}
