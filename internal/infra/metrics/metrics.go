// Package metrics holds the Prometheus instruments for the ledger service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ReceiptsIngested  prometheus.Counter
	DuplicateReceipts prometheus.Counter
	AnchorsCreated    prometheus.Counter
	AnchorBatchSize   prometheus.Histogram

	PublishAttemptsTotal *prometheus.CounterVec
	PublishRetriesTotal  *prometheus.CounterVec
	// DegradedAnchors counts anchors whose external publish budget is
	// exhausted: internally provable but missing at least one external proof.
	DegradedAnchors    prometheus.Gauge
	UnanchoredReceipts *prometheus.GaugeVec

	BundlesRehydrated prometheus.Counter
	EndpointLatency   *prometheus.HistogramVec
}

// New registers all instruments against reg. Tests pass a fresh registry
// (or nil to skip registration) so parallel packages never collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ReceiptsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledgerd_receipts_ingested_total",
			Help: "Total number of receipts accepted into the ledger",
		}),
		DuplicateReceipts: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledgerd_receipts_duplicate_total",
			Help: "Total number of receipt submissions rejected as duplicates",
		}),
		AnchorsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledgerd_anchors_created_total",
			Help: "Total number of Merkle anchors created",
		}),
		AnchorBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledgerd_anchor_batch_size",
			Help:    "Number of receipts per anchor batch",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		}),
		PublishAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerd_publish_attempts_total",
			Help: "Total external notary publish attempts by provider and outcome",
		}, []string{"provider", "status"}),
		PublishRetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerd_publish_retries_total",
			Help: "Total rescheduled notary publishes by provider and error code",
		}, []string{"provider", "error_code"}),
		DegradedAnchors: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ledgerd_degraded_anchors",
			Help: "Anchors with exhausted external publish budget and no external proof",
		}),
		UnanchoredReceipts: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledgerd_unanchored_receipts",
			Help: "Receipts awaiting anchoring per tenant",
		}, []string{"tenant_id"}),
		BundlesRehydrated: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledgerd_bundles_rehydrated_total",
			Help: "Total evidence bundles produced",
		}),
		EndpointLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledgerd_endpoint_latency_seconds",
			Help:    "Latency of HTTP endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}
