package observability

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// AtmosCollector bundles the Prometheus metrics of a running station and of
// the inspection gRPC surface in front of it.
type AtmosCollector struct {
	gatherer prometheus.Gatherer

	Steps         prometheus.Counter
	StepDurations prometheus.Histogram
	Rebuilds      prometheus.Counter
	NetReactions  prometheus.Counter

	PipeNets   prometheus.Gauge
	PipeNodes  prometheus.Gauge
	Tiles      prometheus.Gauge
	TotalMoles *prometheus.GaugeVec
	Devices    *prometheus.GaugeVec

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
}

// NewAtmosCollector registers the station metrics against reg, defaulting to
// the global Prometheus registry when nil. Registering twice against the
// same registry hands back the existing collectors.
func NewAtmosCollector(reg prometheus.Registerer) (*AtmosCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	c := &AtmosCollector{gatherer: gatherer}

	var err error
	if c.Steps, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atmos_steps_total",
		Help: "Atmospherics steps completed.",
	}), "atmos_steps_total"); err != nil {
		return nil, err
	}
	if c.StepDurations, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "atmos_step_duration_seconds",
		Help:    "Wall-clock duration of one atmospherics step.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}), "atmos_step_duration_seconds"); err != nil {
		return nil, err
	}
	if c.Rebuilds, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atmos_rebuilds_total",
		Help: "Pipe nets created by network rebuilds.",
	}), "atmos_rebuilds_total"); err != nil {
		return nil, err
	}
	if c.NetReactions, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atmos_net_reactions_total",
		Help: "Pipe net reaction passes that changed the net's gas.",
	}), "atmos_net_reactions_total"); err != nil {
		return nil, err
	}

	if c.PipeNets, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atmos_pipe_nets",
		Help: "Current number of pipe nets.",
	}), "atmos_pipe_nets"); err != nil {
		return nil, err
	}
	if c.PipeNodes, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atmos_pipe_nodes",
		Help: "Current number of pipe nodes.",
	}), "atmos_pipe_nodes"); err != nil {
		return nil, err
	}
	if c.Tiles, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atmos_tiles",
		Help: "Current number of map tiles.",
	}), "atmos_tiles"); err != nil {
		return nil, err
	}
	if c.TotalMoles, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "atmos_total_moles",
		Help: "Moles of gas held, labeled by scope (tiles, pipes, containers).",
	}, []string{"scope"}), "atmos_total_moles"); err != nil {
		return nil, err
	}
	if c.Devices, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "atmos_devices",
		Help: "Current number of devices, labeled by kind.",
	}, []string{"kind"}), "atmos_devices"); err != nil {
		return nil, err
	}

	if c.RPCRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inspect_requests_total",
		Help: "Total number of handled inspection RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "inspect_requests_total"); err != nil {
		return nil, err
	}
	if c.RPCDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inspect_request_duration_seconds",
		Help:    "Inspection RPC latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"service", "method"}), "inspect_request_duration_seconds"); err != nil {
		return nil, err
	}
	return c, nil
}

// StepSample is what the station reports to the collector after a step.
type StepSample struct {
	Duration     time.Duration
	NetsCreated  int
	NetReactions int

	PipeNets  int
	PipeNodes int
	Tiles     int

	TileMoles      float64
	PipeMoles      float64
	ContainerMoles float64

	Devices map[string]int
}

// ObserveStep records one completed step. A nil collector is a no-op.
func (c *AtmosCollector) ObserveStep(s StepSample) {
	if c == nil {
		return
	}
	c.Steps.Inc()
	c.StepDurations.Observe(s.Duration.Seconds())
	c.Rebuilds.Add(float64(s.NetsCreated))
	c.NetReactions.Add(float64(s.NetReactions))

	c.PipeNets.Set(float64(s.PipeNets))
	c.PipeNodes.Set(float64(s.PipeNodes))
	c.Tiles.Set(float64(s.Tiles))
	c.TotalMoles.WithLabelValues("tiles").Set(s.TileMoles)
	c.TotalMoles.WithLabelValues("pipes").Set(s.PipeMoles)
	c.TotalMoles.WithLabelValues("containers").Set(s.ContainerMoles)
	for kind, n := range s.Devices {
		c.Devices.WithLabelValues(kind).Set(float64(n))
	}
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *AtmosCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}
		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *AtmosCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}
