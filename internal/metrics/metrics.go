// Package metrics exposes the relay's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wikiwatch_cycles_total",
		Help: "Total number of polling cycles started.",
	})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wikiwatch_cycle_duration_seconds",
		Help:    "End-to-end duration of one polling cycle.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	EventsNormalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wikiwatch_events_normalized_total",
		Help: "Canonical events produced by the normalizers, by category.",
	}, []string{"category"})

	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wikiwatch_events_delivered_total",
		Help: "Events delivered to channels, by channel kind.",
	}, []string{"kind"})

	DeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wikiwatch_delivery_failures_total",
		Help: "Per-event delivery failures, by channel kind.",
	}, []string{"kind"})

	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wikiwatch_fetch_failures_total",
		Help: "Feed fetch failures, by feed name.",
	}, []string{"feed"})

	SourceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wikiwatch_source_failures_total",
		Help: "Cycles in which a source could not be fully processed.",
	})

	CursorCommits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wikiwatch_cursor_commits_total",
		Help: "Successful per-source cursor commits.",
	})
)
