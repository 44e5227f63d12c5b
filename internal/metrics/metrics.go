package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline run metrics
	RunsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coursegen_runs_started_total",
			Help: "Total number of generation runs started",
		},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursegen_runs_completed_total",
			Help: "Total number of generation runs completed",
		},
		[]string{"status"},
	)

	RunSteps = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coursegen_run_steps",
			Help:    "Pipeline steps consumed per run",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
	)

	// Stage metrics
	StageExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursegen_stage_executions_total",
			Help: "Total stage handler executions",
		},
		[]string{"stage", "status"},
	)

	StageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coursegen_stage_duration_seconds",
			Help:    "Stage handler duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Content unit metrics
	UnitsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursegen_units_generated_total",
			Help: "Content units authored, by outcome",
		},
		[]string{"outcome", "content_type"},
	)

	RefinementPasses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coursegen_refinement_passes_total",
			Help: "Total unit refinement calls across all runs",
		},
	)

	QualityScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coursegen_quality_score",
			Help:    "Aggregate quality score distribution",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	// Backend client metrics
	CompletionCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursegen_completion_calls_total",
			Help: "Completion backend calls, by status",
		},
		[]string{"status"},
	)

	CompletionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coursegen_completion_duration_seconds",
			Help:    "Completion backend call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	SearchCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursegen_search_calls_total",
			Help: "Search backend calls, by status",
		},
		[]string{"status"},
	)

	SearchResultsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coursegen_search_results_dropped_total",
			Help: "Malformed search results dropped during normalization",
		},
	)

	// Learner profile cache metrics
	ProfileCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coursegen_profile_cache_hits_total",
			Help: "Learner profile reads served from Redis",
		},
	)

	ProfileCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coursegen_profile_cache_misses_total",
			Help: "Learner profile reads that fell through to Postgres",
		},
	)
)
