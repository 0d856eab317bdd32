// internal/metrics/metrics.go
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starkloop_operations_total",
			Help: "Position lifecycle operations by name and outcome",
		},
		[]string{"operation", "status"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "starkloop_operation_duration_seconds",
			Help:    "End-to-end duration of position lifecycle operations",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"operation"},
	)

	deployCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starkloop_contract_deploys_total",
			Help: "Proxy contract deployments by outcome",
		},
		[]string{"status"},
	)

	divergenceCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "starkloop_ledger_divergence_total",
			Help: "Backend writes that failed after a confirmed on-chain transaction",
		},
	)
)

var registerOnce sync.Once

// Collector records orchestration metrics.
type Collector struct{}

// NewCollector registers the collectors (once) and returns a recorder.
func NewCollector() *Collector {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			operationCounter,
			operationDuration,
			deployCounter,
			divergenceCounter,
		)
	})
	return &Collector{}
}

// RecordOperation records one finished lifecycle operation.
func (c *Collector) RecordOperation(operation string, start time.Time, success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	operationCounter.WithLabelValues(operation, status).Inc()
	operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordDeploy records a proxy deployment attempt.
func (c *Collector) RecordDeploy(success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	deployCounter.WithLabelValues(status).Inc()
}

// RecordDivergence records an off-chain/on-chain divergence: the chain holds
// a confirmed transaction the ledger does not know about yet.
func (c *Collector) RecordDivergence() {
	divergenceCounter.Inc()
}
