package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: how many lookups were served from the result cache.
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bricksync_cache_hits_total",
			Help: "Total number of result cache hits.",
		},
		[]string{"kind"},
	)

	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bricksync_cache_misses_total",
			Help: "Total number of result cache misses.",
		},
		[]string{"kind"},
	)

	// Counter: job outcomes per kind. outcome is one of
	// done | failed | queued | cancelled.
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bricksync_jobs_total",
			Help: "Terminal job outcomes by kind.",
		},
		[]string{"kind", "outcome"},
	)

	// Counter: status polls issued while waiting for a job.
	JobPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bricksync_job_polls_total",
			Help: "Status polls issued for in-flight jobs.",
		},
		[]string{"kind"},
	)

	// Counter: pending-queue entries replayed successfully by the drainer.
	DrainedEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bricksync_drained_entries_total",
			Help: "Pending-queue entries replayed successfully.",
		},
		[]string{"kind"},
	)

	// Gauge: current depth of each pending queue.
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bricksync_queue_depth",
			Help: "Current number of entries in each pending queue.",
		},
		[]string{"kind"},
	)

	CollabReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bricksync_collab_reconnects_total",
			Help: "Collaboration channel reconnect attempts.",
		},
	)

	CollabReplayedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bricksync_collab_replayed_total",
			Help: "Queued collaboration messages replayed after reconnect.",
		},
	)

	// Gauge: peers currently reported by the collaboration room.
	CollabPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bricksync_collab_peers",
			Help: "Connected peers in the collaboration room.",
		},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		CacheHitsTotal,
		CacheMissesTotal,
		JobsTotal,
		JobPollsTotal,
		DrainedEntriesTotal,
		QueueDepth,
		CollabReconnectsTotal,
		CollabReplayedTotal,
		CollabPeers,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}
