// Package metrics holds the prometheus collectors for the pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DocumentsStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailrag_documents_stored_total",
			Help: "Documents written to the durable store by sync runs",
		},
		[]string{"class"},
	)
	DocumentsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailrag_documents_skipped_total",
			Help: "Attachments skipped during sync, by reason",
		},
		[]string{"class", "reason"},
	)
	MirrorFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailrag_mirror_failures_total",
			Help: "Remote mirror writes that failed after the local write succeeded",
		},
		[]string{"class"},
	)
	IndexBuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailrag_index_builds_total",
			Help: "Index builds, by outcome",
		},
		[]string{"class", "outcome"},
	)
	IndexLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailrag_index_loads_total",
			Help: "Indexes served from a persisted artifact",
		},
		[]string{"class"},
	)
	BuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailrag_index_build_duration_seconds",
			Help:    "Wall time of index builds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"class"},
	)
	EmbedCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailrag_embed_cache_lookups_total",
			Help: "Embedding cache lookups, by cache tier and outcome",
		},
		[]string{"tier", "outcome"},
	)
	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailrag_job_runs_total",
			Help: "Scheduled job runs, by outcome",
		},
		[]string{"job", "outcome"},
	)
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailrag_query_duration_seconds",
			Help:    "Wall time of answered queries, retrieval and generation included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"class"},
	)
)

func init() {
	prometheus.MustRegister(
		DocumentsStored,
		DocumentsSkipped,
		MirrorFailures,
		IndexBuilds,
		IndexLoads,
		BuildDuration,
		EmbedCacheLookups,
		JobRuns,
		QueryDuration,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
