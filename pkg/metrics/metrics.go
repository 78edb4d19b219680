// Package metrics holds the Prometheus collectors of the consistency
// pipeline. They register on the default registry and are served by
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP surface
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphmerge_http_requests_total",
		Help: "HTTP requests by method, route and status code",
	}, []string{"method", "route", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "graphmerge_http_request_duration_seconds",
		Help:    "Latency of HTTP requests by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// Postgres backend
	DBQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "graphmerge_db_query_duration_seconds",
		Help:    "Latency of Postgres queries by operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// Commit protocol
	CommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphmerge_commits_total",
		Help: "Committed transactions by final status",
	}, []string{"status"})

	CommitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "graphmerge_commit_duration_seconds",
		Help:    "Wall time of one commit against the store",
		Buckets: prometheus.DefBuckets,
	})

	CommittedStatements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphmerge_committed_statements_total",
		Help: "Statements written by successful commits",
	}, []string{"activity"})

	// Pipeline
	StageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphmerge_stage_errors_total",
		Help: "Pipeline stage failures",
	}, []string{"stage"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "graphmerge_stage_duration_seconds",
		Help:    "Wall time of one pipeline stage",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	SkippedNodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphmerge_skipped_nodes_total",
		Help: "Nodes left unchanged because they carry no rdf:type",
	}, []string{"stage"})

	// Sweep
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphmerge_sweep_runs_total",
		Help: "Sweep passes by result (completed, failed, skipped)",
	}, []string{"result"})

	SweepMerged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graphmerge_sweep_merged_total",
		Help: "Duplicate resources merged by the sweep",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "graphmerge_sweep_duration_seconds",
		Help:    "Wall time of one sweep pass over all tenants",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	})

	// Maintenance jobs
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphmerge_job_runs_total",
		Help: "Maintenance job passes by job and result (completed, failed, skipped)",
	}, []string{"job", "result"})

	IdentifiersReplaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graphmerge_identifiers_replaced_total",
		Help: "Stored subjects moved to a local identifier",
	})

	// Events
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphmerge_events_emitted_total",
		Help: "Entity events emitted by type",
	}, []string{"type"})

	PostprocessorRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphmerge_postprocessor_runs_total",
		Help: "Postprocessor runs by processor and result",
	}, []string{"processor", "result"})
)
