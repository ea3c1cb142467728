// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "violation_transitions_total",
		Help: "Lifecycle operations by operation and outcome",
	}, []string{"operation", "outcome"})

	NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "violation_notifications_created_total",
		Help: "Notification rows written, by type",
	}, []string{"type"})

	DispatchDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "violation_dispatch_dropped_total",
		Help: "Push events dropped because the dispatch queue was full",
	})

	DispatchFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "violation_dispatch_failed_total",
		Help: "Push events that could not be published after retries",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "violation_realtime_events_total",
		Help: "Events fanned out by the realtime hub, by event kind",
	}, []string{"event"})

	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "violation_realtime_connections",
		Help: "Open websocket sessions",
	})

	SlowClientsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "violation_realtime_slow_clients_total",
		Help: "Websocket sessions closed because their send buffer was full",
	})

	ExternalEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "violation_external_events_total",
		Help: "Campus events consumed from kafka, by type and outcome",
	}, []string{"type", "outcome"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
