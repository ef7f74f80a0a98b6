// Package metrics registers the Prometheus collectors the core exposes.
// The teacher pulls in prometheus/client_golang (and grpc_prometheus)
// throughout its downloader and rpcdaemon commands; this package is the
// equivalent surface for the chain-indexing engine. Wiring an HTTP
// /metrics endpoint is out of scope (§1 excludes the outer HTTP
// surface) — callers that want one can mount promhttp.Handler() against
// Registry() themselves.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// BlocksApplied counts successful Block Applier commits by
	// direction ("connect"/"disconnect").
	BlocksApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainindex",
		Name:      "blocks_applied_total",
		Help:      "Number of blocks committed by the Block Applier, by direction.",
	}, []string{"direction"})

	// BatchCommitSeconds observes the latency of each atomic Store
	// batch commit performed by the Block Applier.
	BatchCommitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chainindex",
		Name:      "batch_commit_seconds",
		Help:      "Latency of one Block Applier batch commit.",
		Buckets:   prometheus.DefBuckets,
	})

	// ReorgDepth observes the number of blocks disconnected per reorg.
	ReorgDepth = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chainindex",
		Name:      "reorg_depth",
		Help:      "Number of blocks disconnected during a reorg.",
		Buckets:   []float64{1, 2, 3, 5, 10, 25, 50, 100},
	})

	// EventBusDropped counts events dropped because a subscriber's
	// queue was full, by topic.
	EventBusDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainindex",
		Name:      "eventbus_dropped_total",
		Help:      "Number of events dropped due to a full subscriber queue, by topic.",
	}, []string{"topic"})
)

// Registry returns a prometheus.Registerer with every collector above
// registered. Call it once during Lifecycle startup.
func Registry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(BlocksApplied, BatchCommitSeconds, ReorgDepth, EventBusDropped)
	return r
}
