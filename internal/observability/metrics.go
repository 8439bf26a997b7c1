package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/wsn-simulator/model"
)

// NetworkCollector bundles Prometheus metrics describing the simulated
// network and the process's gRPC surface.
type NetworkCollector struct {
	gatherer prometheus.Gatherer

	Nodes            *prometheus.GaugeVec
	Rounds           prometheus.Counter
	RoundDurations   prometheus.Histogram
	FeasibleEdges    prometheus.Gauge
	ReachableNodes   prometheus.Gauge
	ControllerEnergy prometheus.Gauge
	ResidualEnergy   prometheus.Gauge
	Transmissions    *prometheus.CounterVec

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
}

// NewNetworkCollector registers network metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewNetworkCollector(reg prometheus.Registerer) (*NetworkCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	nodes, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wsn_nodes",
		Help: "Current number of sensor nodes, labeled by state (alive, asleep, dead, isolated).",
	}, []string{"state"}), "wsn_nodes")
	if err != nil {
		return nil, err
	}

	rounds, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wsn_rounds_total",
		Help: "Total number of completed simulation rounds.",
	}), "wsn_rounds_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wsn_round_duration_seconds",
		Help:    "Wall-clock time spent advancing one round.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}), "wsn_round_duration_seconds")
	if err != nil {
		return nil, err
	}

	edges, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wsn_feasible_edges",
		Help: "Number of edges in the current feasible topology.",
	}), "wsn_feasible_edges")
	if err != nil {
		return nil, err
	}
	reachable, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wsn_reachable_nodes",
		Help: "Sensors with a feasible route to the controller.",
	}), "wsn_reachable_nodes")
	if err != nil {
		return nil, err
	}
	ctrlEnergy, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wsn_controller_energy_joules",
		Help: "Remaining energy of the controller.",
	}), "wsn_controller_energy_joules")
	if err != nil {
		return nil, err
	}
	residual, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wsn_residual_energy_joules",
		Help: "Sum of remaining energy across living sensors.",
	}), "wsn_residual_energy_joules")
	if err != nil {
		return nil, err
	}

	tx, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wsn_transmissions_total",
		Help: "Transmission attempts, labeled by phase and result.",
	}, []string{"phase", "result"}), "wsn_transmissions_total")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wsn_grpc_requests_total",
		Help: "Total number of handled gRPC calls, labeled by service, method, and status code.",
	}, []string{"service", "method", "code"}), "wsn_grpc_requests_total")
	if err != nil {
		return nil, err
	}
	rpcDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wsn_grpc_request_duration_seconds",
		Help:    "gRPC call latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"service", "method"}), "wsn_grpc_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &NetworkCollector{
		gatherer:         gatherer,
		Nodes:            nodes,
		Rounds:           rounds,
		RoundDurations:   durations,
		FeasibleEdges:    edges,
		ReachableNodes:   reachable,
		ControllerEnergy: ctrlEnergy,
		ResidualEnergy:   residual,
		Transmissions:    tx,
		RPCRequests:      requests,
		RPCDurations:     rpcDurations,
	}, nil
}

// SetNodeCounts updates the per-state node gauges.
func (c *NetworkCollector) SetNodeCounts(alive, asleep, dead, isolated int) {
	if c == nil || c.Nodes == nil {
		return
	}
	c.Nodes.WithLabelValues("alive").Set(float64(alive))
	c.Nodes.WithLabelValues("asleep").Set(float64(asleep))
	c.Nodes.WithLabelValues("dead").Set(float64(dead))
	c.Nodes.WithLabelValues("isolated").Set(float64(isolated))
}

// ObserveRound records a completed round.
func (c *NetworkCollector) ObserveRound(stats model.RoundStats) {
	if c == nil {
		return
	}
	if c.Rounds != nil {
		c.Rounds.Inc()
	}
	if c.RoundDurations != nil {
		c.RoundDurations.Observe(stats.Elapsed.Seconds())
	}
	if c.FeasibleEdges != nil {
		c.FeasibleEdges.Set(float64(stats.FeasibleEdges))
	}
	if c.ReachableNodes != nil {
		c.ReachableNodes.Set(float64(stats.Reachable))
	}
	if c.ControllerEnergy != nil {
		c.ControllerEnergy.Set(stats.ControllerEnergy)
	}
	if c.ResidualEnergy != nil {
		c.ResidualEnergy.Set(stats.ResidualEnergy)
	}
	c.SetNodeCounts(stats.Alive, stats.Sleeping, stats.Dead, stats.Isolated)
}

// AddTransmissions adds n attempts with the given phase and result.
func (c *NetworkCollector) AddTransmissions(phase, result string, n int) {
	if c == nil || c.Transmissions == nil || n <= 0 {
		return
	}
	c.Transmissions.WithLabelValues(phase, result).Add(float64(n))
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *NetworkCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
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
func (c *NetworkCollector) Handler() http.Handler {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and
// method components, returning "unknown"/"unknown" when parsing fails.
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

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
