package shm

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/srediag/hftshm/pkg/shm"

// Metrics are the Prometheus collectors updated by a Policy. A nil *Metrics
// records nothing.
type Metrics struct {
	segments    *prometheus.CounterVec
	fallbacks   prometheus.Counter
	mapFailures prometheus.Counter
	mappedBytes prometheus.Gauge
}

// NewMetrics builds the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		segments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hftshm",
			Name:      "segments_created_total",
			Help:      "Segment files created, by mode (created or adopted).",
		}, []string{"mode"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hftshm",
			Name:      "hugepage_fallbacks_total",
			Help:      "Hugepage mappings that fell back to regular pages.",
		}),
		mapFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hftshm",
			Name:      "map_failures_total",
			Help:      "Mappings that failed entirely.",
		}),
		mappedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hftshm",
			Name:      "mapped_bytes",
			Help:      "Bytes currently mapped through this process.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.segments, m.fallbacks, m.mapFailures, m.mappedBytes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) segmentCreated(adopted bool) {
	if m == nil {
		return
	}
	mode := "created"
	if adopted {
		mode = "adopted"
	}
	m.segments.WithLabelValues(mode).Inc()
}

func (m *Metrics) mapped(mp Mapping) {
	if m == nil {
		return
	}
	if mp.FellBack() {
		m.fallbacks.Inc()
	}
	m.mappedBytes.Add(float64(len(mp.Data)))
}

func (m *Metrics) mapFailed() {
	if m == nil {
		return
	}
	m.mapFailures.Inc()
}

func (m *Metrics) unmapped(n int) {
	if m == nil {
		return
	}
	m.mappedBytes.Sub(float64(n))
}

// otelInstruments wraps the OpenTelemetry counters of a Policy.
type otelInstruments struct {
	maps metric.Int64Counter
}

func newOtelInstruments(meter metric.Meter) otelInstruments {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(instrumentationName)
	}
	maps, err := meter.Int64Counter("hftshm.segment.maps",
		metric.WithDescription("Segment mappings by backing page size."))
	if err != nil {
		internalLogger.warnf("otel counter hftshm.segment.maps: %v", err)
		maps, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("hftshm.segment.maps")
	}
	return otelInstruments{maps: maps}
}

func (o otelInstruments) mapped(b Backing) {
	o.maps.Add(context.Background(), 1, metric.WithAttributes(attribute.String("backing", b.String())))
}
