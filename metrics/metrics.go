// Package metrics exposes the replica's Prometheus collectors. The
// collectors are registered against the default registry; "serve
// --metrics-addr" exposes them over HTTP. The engine's handlers update
// them, so the engine tests exercise them only indirectly; no test reads
// their values.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ChainLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pbft_chain_length",
		Help: "Number of records currently in this replica's chain.",
	})
	TotalPeers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pbft_total_peers",
		Help: "Total replica count used for quorum math (registry size + self).",
	})
	CommittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pbft_committed_total",
		Help: "Total number of proposal keys sealed into the committed set.",
	})
	PrepareReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pbft_prepare_received_total",
		Help: "Total number of accepted prepare votes across all proposal keys.",
	})
	CommitReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pbft_commit_received_total",
		Help: "Total number of accepted commit votes across all proposal keys.",
	})
	ByzantineDropsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pbft_byzantine_drops_total",
		Help: "Total number of protocol messages silently dropped because this replica is Byzantine.",
	})
	UnreachablePeers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pbft_unreachable_peers",
		Help: "Number of known peers that failed the most recent liveness probe.",
	})
)

func init() {
	prometheus.MustRegister(
		ChainLength,
		TotalPeers,
		CommittedTotal,
		PrepareReceivedTotal,
		CommitReceivedTotal,
		ByzantineDropsTotal,
		UnreachablePeers,
	)
}
