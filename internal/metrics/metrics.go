package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus metrics for the wake service.
type Metrics struct {
	RelationshipOps    *prometheus.CounterVec   // labels: operation, status
	CycleChecks        *prometheus.CounterVec   // labels: outcome
	TraversalDuration  *prometheus.HistogramVec // labels: operation
	TraversalNodes     *prometheus.HistogramVec // labels: operation
	PathRecomputeRows  *prometheus.HistogramVec // labels: operation
	Suggestions        *prometheus.CounterVec   // labels: outcome
	ClassifierRequests *prometheus.CounterVec   // labels: status
	ClassifierLatency  *prometheus.HistogramVec // labels: status
	IngestEvents       *prometheus.CounterVec   // labels: outcome
}
