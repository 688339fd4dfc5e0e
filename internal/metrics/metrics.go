package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "similarity"

var (
	ChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Plagiarism checks by outcome (passed, flagged, failed).",
		},
		[]string{"outcome"},
	)

	StrategyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_total",
			Help:      "Scoring runs by the strategy that produced the scores.",
		},
		[]string{"strategy"},
	)

	FallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_total",
			Help:      "Checks where the primary strategy failed and Jaccard was used.",
		},
	)

	SkippedPeersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_peers_total",
			Help:      "Peer documents skipped because they could not be loaded or extracted.",
		},
	)

	AdvisorFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisor_failures_total",
			Help:      "External source lookups that degraded to an empty list.",
		},
		[]string{"reason"},
	)

	AutoGradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_graded_total",
			Help:      "Documents automatically graded zero.",
		},
	)

	CheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Wall time of a full plagiarism check.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)

func init() {
	prometheus.MustRegister(
		ChecksTotal,
		StrategyTotal,
		FallbackTotal,
		SkippedPeersTotal,
		AdvisorFailuresTotal,
		AutoGradedTotal,
		CheckDuration,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
