package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Publish results recorded by RecordPublish.
const (
	ResultAccepted  = "accepted"
	ResultDuplicate = "duplicate"
	ResultRejected  = "rejected"
)

// Delivery sources recorded by RecordDelivery.
const (
	SourceReplay = "replay"
	SourceLive   = "live"
)

// Metrics holds the relay's Prometheus instruments.
type Metrics struct {
	EventsReceivedTotal *prometheus.CounterVec
	DeliveriesTotal     *prometheus.CounterVec
	DeliveryFailures    prometheus.Counter
	BroadcastLatency    prometheus.Histogram
	NoticesTotal        prometheus.Counter
	PurgesTotal         prometheus.Counter
	PurgedEventsTotal   prometheus.Counter
	StoredEvents        prometheus.Gauge
	Subscriptions       prometheus.Gauge
	Connections         prometheus.Gauge
}

// NewMetrics creates the instruments and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsReceivedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_received_total",
			Help: "Published events by outcome.",
		}, []string{"result"}),
		DeliveriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "EVENT frames routed to subscriptions, by source.",
		}, []string{"source"}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_delivery_failures_total",
			Help: "EVENT frames that could not be handed to a connection.",
		}),
		BroadcastLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_broadcast_latency_seconds",
			Help:    "Time spent routing one event to all live subscriptions.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
		}),
		NoticesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_notices_total",
			Help: "NOTICE frames sent to clients.",
		}),
		PurgesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_purges_total",
			Help: "Completed full-store purges.",
		}),
		PurgedEventsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_purged_events_total",
			Help: "Events discarded by purges.",
		}),
		StoredEvents: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_stored_events",
			Help: "Events currently retained.",
		}),
		Subscriptions: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_subscriptions",
			Help: "Live subscriptions across all connections.",
		}),
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Open client connections.",
		}),
	}
}

// RecordPublish counts one EVENT frame by result.
func (m *Metrics) RecordPublish(result string) {
	m.EventsReceivedTotal.WithLabelValues(result).Inc()
}

// RecordDelivery counts n EVENT frames routed from source.
func (m *Metrics) RecordDelivery(source string, n int) {
	if n <= 0 {
		return
	}
	m.DeliveriesTotal.WithLabelValues(source).Add(float64(n))
}

// RecordPurge counts a completed purge that discarded n events.
func (m *Metrics) RecordPurge(n int) {
	m.PurgesTotal.Inc()
	m.PurgedEventsTotal.Add(float64(n))
	m.StoredEvents.Set(0)
}
