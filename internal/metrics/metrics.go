// Package metrics holds the Prometheus collectors shared by the
// monitoring pipeline. Collectors are registered once at package init
// and written to from the watcher, dispatcher, workers, and retention
// manager.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsEmitted counts raw events emitted by root watchers, by kind.
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filesentry_events_emitted_total",
		Help: "Raw filesystem events emitted by root watchers.",
	}, []string{"kind"})

	// EventsShed counts events dropped under queue backpressure.
	EventsShed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filesentry_events_shed_total",
		Help: "Events shed by the dispatcher ingress queue under overflow.",
	})

	// EventsDeduped counts events dropped by the dedup window or the
	// content-hash change filter.
	EventsDeduped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filesentry_events_deduped_total",
		Help: "Events dropped as duplicates, by filter (window, hash).",
	}, []string{"filter"})

	// Analyses counts completed analyses by resulting risk level.
	Analyses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filesentry_analyses_total",
		Help: "Completed file analyses by risk level.",
	}, []string{"risk_level"})

	// AnalysesDropped counts jobs dropped after persistence retry failure.
	AnalysesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filesentry_analyses_dropped_total",
		Help: "Analysis jobs dropped after exhausting persistence retries.",
	})

	// QueueDepth tracks the current dispatcher ingress queue depth.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "filesentry_queue_depth",
		Help: "Current depth of the dispatcher ingress queue.",
	})

	// WalkErrors counts per-path filesystem errors during scan passes.
	WalkErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filesentry_walk_errors_total",
		Help: "Filesystem errors encountered during tree walks.",
	})

	// WatcherUnhealthy counts health events raised by watchers whose
	// sustained error rate exceeded the threshold.
	WatcherUnhealthy = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filesentry_watcher_unhealthy_total",
		Help: "Health events raised by root watchers.",
	})

	// RetentionDeleted counts rows removed by retention cycles, by table.
	RetentionDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filesentry_retention_deleted_total",
		Help: "Rows deleted by retention cycles, by table.",
	}, []string{"table"})
)
