package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAtmosCollector(reg)
	if err != nil {
		t.Fatalf("NewAtmosCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/atmos.inspect.v1.Inspector/GetTile"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Inspector", "GetTile", "OK")); got != 1 {
		t.Fatalf("inspect_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "inspect_request_duration_seconds", map[string]string{
		"service": "Inspector",
		"method":  "GetTile",
	}); count != 1 {
		t.Fatalf("inspect_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAtmosCollector(reg)
	if err != nil {
		t.Fatalf("NewAtmosCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/atmos.inspect.v1.Inspector/GetCanister"}
	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "no canister")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Inspector", "GetCanister", "NotFound")); got != 1 {
		t.Fatalf("inspect_requests_total error label = %v, want 1", got)
	}
}

func TestObserveStepSetsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAtmosCollector(reg)
	if err != nil {
		t.Fatalf("NewAtmosCollector: %v", err)
	}

	collector.ObserveStep(StepSample{
		Duration:     2 * time.Millisecond,
		NetsCreated:  3,
		NetReactions: 1,
		PipeNets:     4,
		PipeNodes:    9,
		Tiles:        16,
		TileMoles:    1500,
		PipeMoles:    20,
		Devices:      map[string]int{"canister": 2},
	})
	collector.ObserveStep(StepSample{PipeNets: 5, NetsCreated: 1})

	if got := testutil.ToFloat64(collector.Steps); got != 2 {
		t.Fatalf("atmos_steps_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.Rebuilds); got != 4 {
		t.Fatalf("atmos_rebuilds_total = %v, want 4", got)
	}
	if got := testutil.ToFloat64(collector.PipeNets); got != 5 {
		t.Fatalf("atmos_pipe_nets = %v, want 5", got)
	}
	if got := testutil.ToFloat64(collector.Devices.WithLabelValues("canister")); got != 2 {
		t.Fatalf("atmos_devices{canister} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.TotalMoles.WithLabelValues("pipes")); got != 0 {
		t.Fatalf("atmos_total_moles{pipes} = %v, want 0 after the second step", got)
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *AtmosCollector
	c.ObserveStep(StepSample{PipeNets: 1})

	_, err := c.UnaryServerInterceptor()(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor on nil collector: %v", err)
	}
}

func TestCollectorReusesRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewAtmosCollector(reg)
	if err != nil {
		t.Fatalf("NewAtmosCollector: %v", err)
	}
	second, err := NewAtmosCollector(reg)
	if err != nil {
		t.Fatalf("second NewAtmosCollector: %v", err)
	}
	first.Steps.Inc()
	if got := testutil.ToFloat64(second.Steps); got != 1 {
		t.Fatalf("shared atmos_steps_total = %v, want 1", got)
	}
}

func TestMetricsHandlerExposesStationGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAtmosCollector(reg)
	if err != nil {
		t.Fatalf("NewAtmosCollector: %v", err)
	}
	collector.ObserveStep(StepSample{PipeNets: 3, PipeNodes: 7, Tiles: 12, Devices: map[string]int{"vent_pump": 1}})
	collector.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()
	collector.RPCDurations.WithLabelValues("svc", "method").Observe(0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"atmos_steps_total",
		"atmos_step_duration_seconds",
		"atmos_pipe_nets 3",
		"atmos_pipe_nodes 7",
		"atmos_tiles 12",
		`atmos_devices{kind="vent_pump"} 1`,
		"inspect_requests_total",
		"inspect_request_duration_seconds",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestSplitMethod(t *testing.T) {
	cases := []struct {
		in, service, method string
	}{
		{"/atmos.inspect.v1.Inspector/Step", "Inspector", "Step"},
		{"Inspector/Step", "Inspector", "Step"},
		{"", "unknown", "unknown"},
		{"/Step", "unknown", "unknown"},
	}
	for _, tc := range cases {
		service, method := SplitMethod(tc.in)
		if service != tc.service || method != tc.method {
			t.Fatalf("SplitMethod(%q) = %q, %q, want %q, %q", tc.in, service, method, tc.service, tc.method)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
