// Package metrics exposes Prometheus collectors for the order pipeline.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "orderbot"

// Metrics holds the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	turns            *prometheus.CounterVec
	dispatch         *prometheus.CounterVec
	lockedRejections prometheus.Counter
	throttled        prometheus.Counter
	ordersPersisted  prometheus.Counter
	unresolvedItems  prometheus.Counter
	modelLatency     *prometheus.HistogramVec
	liveContexts     prometheus.Gauge
}

// New creates unregistered collectors.
func New() *Metrics {
	return &Metrics{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Processed turns by extracted intent.",
		}, []string{"intent"}),
		dispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Outbound actions by kind (template, ack, text, none).",
		}, []string{"kind"}),
		lockedRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locked_rejections_total",
			Help:      "Changes rejected because the order was already confirmed.",
		}),
		throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttled_total",
			Help:      "Inbound messages dropped by the throttle.",
		}),
		ordersPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_persisted_total",
			Help:      "Confirmed orders written to the store.",
		}),
		unresolvedItems: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unresolved_items_total",
			Help:      "Order items the catalog could not price.",
		}),
		modelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_latency_seconds",
			Help:      "Chat completion latency by outcome.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"outcome"}),
		liveContexts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_contexts",
			Help:      "Customers with an in-flight order context.",
		}),
	}
}

// Register adds every collector to reg. Collectors already registered by an
// earlier call are tolerated.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.turns, m.dispatch, m.lockedRejections, m.throttled,
		m.ordersPersisted, m.unresolvedItems, m.modelLatency, m.liveContexts,
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func (m *Metrics) Turn(intent string) {
	if m != nil {
		m.turns.WithLabelValues(intent).Inc()
	}
}

func (m *Metrics) Dispatched(kind string) {
	if m != nil {
		m.dispatch.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) LockedRejection() {
	if m != nil {
		m.lockedRejections.Inc()
	}
}

func (m *Metrics) Throttled() {
	if m != nil {
		m.throttled.Inc()
	}
}

func (m *Metrics) OrderPersisted() {
	if m != nil {
		m.ordersPersisted.Inc()
	}
}

func (m *Metrics) UnresolvedItems(n int) {
	if m != nil && n > 0 {
		m.unresolvedItems.Add(float64(n))
	}
}

// ModelCall records one completion; outcome is "ok" or "error".
func (m *Metrics) ModelCall(outcome string, d time.Duration) {
	if m != nil {
		m.modelLatency.WithLabelValues(outcome).Observe(d.Seconds())
	}
}

func (m *Metrics) LiveContexts(n int) {
	if m != nil {
		m.liveContexts.Set(float64(n))
	}
}
