package inspect

import (
	"context"
	"math"
	"net"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/internal/logging"
	"github.com/signalsfoundry/atmos-simulator/internal/observability"
	"github.com/signalsfoundry/atmos-simulator/internal/scenario"
	sim "github.com/signalsfoundry/atmos-simulator/internal/sim/state"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const testScenario = `
name = "inspect"

[[region]]
from = [0, 0]
to = [1, 0]

[[entity]]
kind = "gas_port"
name = "port"
pos = [0, 0]
dir = "E"

[[entity]]
kind = "canister"
name = "can"
pos = [0, 0]
anchored = true
gases = { nitrogen = 100.0 }

[[entity]]
kind = "portable_tank"
name = "tank"
pos = [1, 0]
`

type fixture struct {
	client    *Client
	station   *sim.Station
	collector *observability.AtmosCollector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	station, err := sim.NewStation()
	if err != nil {
		t.Fatalf("NewStation() error = %v", err)
	}
	t.Cleanup(station.Close)
	f, err := scenario.Decode(strings.NewReader(testScenario))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if _, err := station.Load(t.Context(), f); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	collector, err := observability.NewAtmosCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewAtmosCollector() error = %v", err)
	}
	lis := bufconn.Listen(1 << 20)
	gs := NewGRPCServer(NewServer(station, 1, logging.Noop()), logging.Noop(), collector)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &fixture{client: NewClient(conn), station: station, collector: collector}
}

func number(t *testing.T, m map[string]any, key string) float64 {
	t.Helper()
	v, ok := m[key].(float64)
	if !ok {
		t.Fatalf("%s = %#v, want number", key, m[key])
	}
	return v
}

func TestInspectorStepAndStatus(t *testing.T) {
	fx := newFixture(t)
	ctx := t.Context()

	res, err := fx.client.Step(ctx, 3, 0)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if got := number(t, res.AsMap(), "tick"); got != 3 {
		t.Fatalf("tick = %v, want 3", got)
	}
	if got := fx.station.Tick(); got != 3 {
		t.Fatalf("station.Tick() = %d, want 3", got)
	}

	st, err := fx.client.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	m := st.AsMap()
	if m["run_id"] != fx.station.RunID {
		t.Fatalf("run_id = %v, want %v", m["run_id"], fx.station.RunID)
	}
	if m["scenario"] != "inspect" {
		t.Fatalf("scenario = %v, want inspect", m["scenario"])
	}
	if got := number(t, m, "entities"); got != 3 {
		t.Fatalf("entities = %v, want 3", got)
	}

	if got := testutil.ToFloat64(fx.collector.RPCRequests.WithLabelValues("Inspector", "Step", "OK")); got != 1 {
		t.Fatalf("Step request count = %v, want 1", got)
	}
}

func TestInspectorStepRejectsBadCount(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.client.Step(t.Context(), MaxStepsPerCall+1, 0)
	if code := status.Code(err); code != codes.InvalidArgument {
		t.Fatalf("Step(too many) code = %v, want %v", code, codes.InvalidArgument)
	}
}

func TestInspectorAnalyze(t *testing.T) {
	fx := newFixture(t)
	ctx := t.Context()
	if _, err := fx.client.Step(ctx, 1, 0); err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	res, err := fx.client.Analyze(ctx, 0, 0)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	m := res.AsMap()
	tile, ok := m["tile"].(map[string]any)
	if !ok {
		t.Fatalf("tile = %#v, want object", m["tile"])
	}
	if p := number(t, tile, "pressure"); p < gas.OneAtmosphere-1e-6 || p > gas.OneAtmosphere+1e-6 {
		t.Fatalf("tile pressure = %v, want %v", p, gas.OneAtmosphere)
	}
	nodes, _ := m["nodes"].([]any)
	if len(nodes) != 2 {
		t.Fatalf("len(nodes) = %d, want 2", len(nodes))
	}

	_, err = fx.client.Analyze(ctx, 40, 40)
	if code := status.Code(err); code != codes.NotFound {
		t.Fatalf("Analyze(missing) code = %v, want %v", code, codes.NotFound)
	}
}

func TestInspectorAnalyzeEntity(t *testing.T) {
	fx := newFixture(t)
	res, err := fx.client.AnalyzeEntity(t.Context(), "can")
	if err != nil {
		t.Fatalf("AnalyzeEntity() error = %v", err)
	}
	nodes, _ := res.AsMap()["nodes"].([]any)
	if len(nodes) != 2 {
		t.Fatalf("len(nodes) = %d, want 2", len(nodes))
	}

	_, err = fx.client.AnalyzeEntity(t.Context(), "")
	if code := status.Code(err); code != codes.InvalidArgument {
		t.Fatalf("AnalyzeEntity(\"\") code = %v, want %v", code, codes.InvalidArgument)
	}
}

func TestInspectorCanisterControls(t *testing.T) {
	fx := newFixture(t)
	ctx := t.Context()

	res, err := fx.client.UpdateCanister(ctx, "can", map[string]any{
		"insert":           "tank",
		"release_pressure": 50000.0,
		"valve":            true,
	})
	if err != nil {
		t.Fatalf("UpdateCanister() error = %v", err)
	}
	m := res.AsMap()
	if m["tank_label"] != "tank" {
		t.Fatalf("tank_label = %v, want tank", m["tank_label"])
	}
	if got, want := number(t, m, "release_pressure"), number(t, m, "max_release_pressure"); got != want {
		t.Fatalf("release_pressure = %v, want clamped %v", got, want)
	}
	if m["release_valve"] != true {
		t.Fatalf("release_valve = %v, want true", m["release_valve"])
	}

	res, err = fx.client.UpdateCanister(ctx, "can", map[string]any{"toggle_lock": true})
	if err != nil {
		t.Fatalf("UpdateCanister(lock) error = %v", err)
	}
	if res.AsMap()["locked"] != true {
		t.Fatalf("locked = %v, want true", res.AsMap()["locked"])
	}
	_, err = fx.client.UpdateCanister(ctx, "can", map[string]any{"eject": true})
	if code := status.Code(err); code != codes.FailedPrecondition {
		t.Fatalf("UpdateCanister(eject while locked) code = %v, want %v", code, codes.FailedPrecondition)
	}
	_, err = fx.client.UpdateCanister(ctx, "can", map[string]any{"toggle_lock": true, "release_pressure": math.NaN()})
	if code := status.Code(err); code != codes.InvalidArgument {
		t.Fatalf("UpdateCanister(NaN pressure) code = %v, want %v", code, codes.InvalidArgument)
	}
	res, err = fx.client.GetCanister(ctx, "can")
	if err != nil {
		t.Fatalf("GetCanister() error = %v", err)
	}
	if res.AsMap()["locked"] != true {
		t.Fatalf("locked after rejected update = %v, want true", res.AsMap()["locked"])
	}

	_, err = fx.client.GetCanister(ctx, "port")
	if code := status.Code(err); code != codes.FailedPrecondition {
		t.Fatalf("GetCanister(port) code = %v, want %v", code, codes.FailedPrecondition)
	}
	_, err = fx.client.GetCanister(ctx, "ghost")
	if code := status.Code(err); code != codes.NotFound {
		t.Fatalf("GetCanister(ghost) code = %v, want %v", code, codes.NotFound)
	}
	_, err = fx.client.UpdateCanister(ctx, "can", map[string]any{"valve": "open"})
	if code := status.Code(err); code != codes.InvalidArgument {
		t.Fatalf("UpdateCanister(bad valve) code = %v, want %v", code, codes.InvalidArgument)
	}
}

func TestInspectorListEntities(t *testing.T) {
	fx := newFixture(t)
	res, err := fx.client.ListEntities(t.Context())
	if err != nil {
		t.Fatalf("ListEntities() error = %v", err)
	}
	ents, _ := res.AsMap()["entities"].([]any)
	if len(ents) != 3 {
		t.Fatalf("len(entities) = %d, want 3", len(ents))
	}
}

func TestRequestIDFromMetadata(t *testing.T) {
	interceptor := RequestIDUnaryServerInterceptor(logging.Noop())
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDMetadataKey, "req-42"))
	info := &grpc.UnaryServerInfo{FullMethod: fullMethod("GetStatus")}

	var seen string
	_, err := interceptor(ctx, nil, info, func(ctx context.Context, _ interface{}) (interface{}, error) {
		seen = logging.RequestIDFromContext(ctx)
		if logging.LoggerFromContext(ctx) == nil {
			t.Fatalf("LoggerFromContext() = nil, want request logger")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor error = %v", err)
	}
	if seen != "req-42" {
		t.Fatalf("request id = %q, want req-42", seen)
	}
}

func TestTracingInterceptorPassesThroughErrors(t *testing.T) {
	interceptor := TracingUnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: fullMethod("Step")}
	want := status.Error(codes.InvalidArgument, "bad")
	_, err := interceptor(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) {
		return nil, want
	})
	if err != want {
		t.Fatalf("interceptor error = %v, want %v", err, want)
	}
}
