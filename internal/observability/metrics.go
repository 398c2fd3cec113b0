// Package observability exposes Prometheus metrics for the anchor watch.
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

	"github.com/oshokin/anchor-watch/internal/domain/anchor"
	"github.com/oshokin/anchor-watch/internal/domain/filter"
)

// Collector bundles the watch metrics. It implements controller.Recorder.
type Collector struct {
	gatherer prometheus.Gatherer

	Fixes       *prometheus.CounterVec
	Transitions *prometheus.CounterVec
	RPCRequests *prometheus.CounterVec
	RPCDuration *prometheus.HistogramVec

	Distance   prometheus.Gauge
	SafeRadius prometheus.Gauge
	Alarmed    prometheus.Gauge
	Anchored   prometheus.Gauge
	Stale      prometheus.Gauge
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Collectors already registered are reused.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}

	var err error

	if c.Fixes, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anchorwatch_fixes_total",
		Help: "Position fixes handled by the watch, labeled by filter result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}

	if c.Transitions, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anchorwatch_transitions_total",
		Help: "Safe/alarmed transitions, labeled by the status entered.",
	}, []string{"to"})); err != nil {
		return nil, err
	}

	if c.RPCRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anchorwatch_rpc_requests_total",
		Help: "Handled RPCs, labeled by method and gRPC status code.",
	}, []string{"method", "code"})); err != nil {
		return nil, err
	}

	if c.RPCDuration, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "anchorwatch_rpc_duration_seconds",
		Help:    "RPC latency in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method"})); err != nil {
		return nil, err
	}

	gauges := []struct {
		dst  *prometheus.Gauge
		name string
		help string
	}{
		{&c.Distance, "anchorwatch_distance_meters", "Distance from the anchor to the last accepted fix."},
		{&c.SafeRadius, "anchorwatch_safe_radius_meters", "Configured safe radius."},
		{&c.Alarmed, "anchorwatch_alarmed", "1 while the watch is alarmed."},
		{&c.Anchored, "anchorwatch_anchored", "1 while an anchor is set."},
		{&c.Stale, "anchorwatch_positioning_stale", "1 while the positioning feed is silent."},
	}

	for _, g := range gauges {
		if *g.dst, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: g.name,
			Help: g.help,
		})); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// ObserveFix counts a filter decision.
func (c *Collector) ObserveFix(d filter.Decision) {
	if c == nil {
		return
	}

	c.Fixes.WithLabelValues(d.Reason.String()).Inc()
}

// ObserveVerdict refreshes the state gauges.
func (c *Collector) ObserveVerdict(s anchor.Status, v *anchor.Verdict, safeRadius float64) {
	if c == nil {
		return
	}

	c.SafeRadius.Set(safeRadius)
	c.Anchored.Set(boolToFloat(s != anchor.NoAnchor))
	c.Alarmed.Set(boolToFloat(s == anchor.Alarmed))

	distance := 0.0
	if v != nil {
		distance = v.DistanceMeters
	}

	c.Distance.Set(distance)
}

// ObserveTransition counts a status change.
func (c *Collector) ObserveTransition(to anchor.Status) {
	if c == nil {
		return
	}

	c.Transitions.WithLabelValues(to.String()).Inc()
}

// SetStale flags the positioning feed as silent or live.
func (c *Collector) SetStale(stale bool) {
	if c == nil {
		return
	}

	c.Stale.Set(boolToFloat(stale))
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *Collector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		method := "unknown"
		if info != nil {
			method = MethodName(info.FullMethod)
		}

		c.RPCRequests.WithLabelValues(method, status.Code(err).String()).Inc()
		c.RPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

		return resp, err
	}
}

// Handler exposes the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// MethodName returns the last path element of a full gRPC method name.
func MethodName(fullMethod string) string {
	fullMethod = strings.TrimPrefix(fullMethod, "/")

	i := strings.LastIndex(fullMethod, "/")
	if i < 0 || i == len(fullMethod)-1 {
		return "unknown"
	}

	return fullMethod[i+1:]
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}

	return 0
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError) //nolint:errorlint // Registry returns the value type.
		if !ok {
			return nil, err
		}

		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}

		return existing, nil
	}

	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError) //nolint:errorlint // Registry returns the value type.
		if !ok {
			return nil, err
		}

		existing, ok := are.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}

		return existing, nil
	}

	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError) //nolint:errorlint // Registry returns the value type.
		if !ok {
			return nil, err
		}

		existing, ok := are.ExistingCollector.(prometheus.Gauge)
		if !ok {
			return nil, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}

		return existing, nil
	}

	return gauge, nil
}
