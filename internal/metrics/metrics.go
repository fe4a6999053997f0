package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Routing metrics
	RouteDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casefile_route_decisions_total",
			Help: "Questions routed, by route and graph category",
		},
		[]string{"route", "category", "rule"},
	)

	// Chain-of-agents metrics
	WorkerPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "casefile_worker_pass_duration_seconds",
			Help:    "Duration of one search worker pass",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		},
	)

	WorkerOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casefile_worker_outcomes_total",
			Help: "Worker passes by outcome (parsed, malformed, failed)",
		},
		[]string{"outcome"},
	)

	Decompositions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casefile_decompositions_total",
			Help: "Question decompositions by outcome (skipped, expanded, fallback)",
		},
		[]string{"outcome"},
	)

	SynthesisPaths = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casefile_synthesis_total",
			Help: "Synthesis runs by delivery path (stream, fallback, error)",
		},
		[]string{"path"},
	)

	// Knowledge graph metrics
	GraphMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casefile_graph_mutations_total",
			Help: "Graph mutations by operation (merge, remove, deduplicate)",
		},
		[]string{"op"},
	)

	ConflictsDetected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "casefile_conflicts_detected",
			Help: "Conflicts recorded in the graph after the last detection",
		},
	)

	// Completion service metrics
	CompletionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casefile_completion_requests_total",
			Help: "Completion service calls by provider, kind and status",
		},
		[]string{"provider", "kind", "status"},
	)
)
