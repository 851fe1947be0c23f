// Package metrics defines the Prometheus collectors exported by the hub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "multichat"

// Hub holds the hub's collectors.
type Hub struct {
	Sessions         prometheus.Gauge
	Participants     prometheus.Gauge
	EventsReceived   *prometheus.CounterVec
	FramesRelayed    prometheus.Counter
	DeliveryFailures prometheus.Counter
	Violations       prometheus.Counter
}

// NewHub registers the hub collectors with reg.
func NewHub(reg prometheus.Registerer, namespace string) *Hub {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Hub{
		Sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "sessions",
			Help:      "Number of registered connection sessions",
		}),
		Participants: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "participants",
			Help:      "Number of active participants",
		}),
		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "events_received_total",
			Help:      "Chat events received from sessions",
		}, []string{"kind"}),
		FramesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "frames_relayed_total",
			Help:      "Frames queued to recipients by the broadcast router",
		}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "delivery_failures_total",
			Help:      "Recipients dropped because a frame could not be queued",
		}),
		Violations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "protocol_violations_total",
			Help:      "Events rejected by strict presence checks",
		}),
	}
}
