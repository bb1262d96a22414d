package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LockupMetrics groups the collectors exported by the lockup inspector.
type LockupMetrics struct {
	rpcRequests    *prometheus.CounterVec
	rpcLatency     *prometheus.HistogramVec
	inspections    *prometheus.CounterVec
	decodeFailures prometheus.Counter
}

var (
	lockupOnce     sync.Once
	lockupRegistry *LockupMetrics
)

// Lockup returns the process-wide collectors, registering them on first use.
func Lockup() *LockupMetrics {
	lockupOnce.Do(func() {
		lockupRegistry = &LockupMetrics{
			rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "near_lockup_rpc_requests_total",
				Help: "Count of NEAR JSON-RPC requests by method and outcome.",
			}, []string{"method", "outcome"}),
			rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "near_lockup_rpc_request_duration_seconds",
				Help:    "Latency of NEAR JSON-RPC requests by method.",
				Buckets: prometheus.DefBuckets,
			}, []string{"method"}),
			inspections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "near_lockup_inspections_total",
				Help: "Count of lockup inspections by outcome.",
			}, []string{"outcome"}),
			decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "near_lockup_decode_failures_total",
				Help: "Number of lockup contract states that failed to decode.",
			}),
		}
		prometheus.MustRegister(
			lockupRegistry.rpcRequests,
			lockupRegistry.rpcLatency,
			lockupRegistry.inspections,
			lockupRegistry.decodeFailures,
		)
	})
	return lockupRegistry
}

func (m *LockupMetrics) ObserveRPC(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
	m.rpcLatency.WithLabelValues(method).Observe(d.Seconds())
}

func (m *LockupMetrics) RecordInspection(outcome string) {
	if m == nil {
		return
	}
	m.inspections.WithLabelValues(outcome).Inc()
}

func (m *LockupMetrics) RecordDecodeFailure() {
	if m == nil {
		return
	}
	m.decodeFailures.Inc()
}

// Inspections exposes the inspections counter for tests and dashboards.
func (m *LockupMetrics) Inspections() *prometheus.CounterVec { return m.inspections }

// DecodeFailures exposes the decode failure counter.
func (m *LockupMetrics) DecodeFailures() prometheus.Counter { return m.decodeFailures }
