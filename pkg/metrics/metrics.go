// Package metrics exports registry and HTTP metrics to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/workledger/workledger/pkg/backend"
)

const namespace = "workledger"

var statuses = []backend.Status{
	backend.StatusUnknown,
	backend.StatusOnline,
	backend.StatusDegraded,
	backend.StatusOffline,
}

// Observer implements backend.Observer on Prometheus collectors.
type Observer struct {
	operations    *prometheus.CounterVec
	operationTime *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	failovers     *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	storeStatus   *prometheus.GaugeVec
	activeStore   *prometheus.GaugeVec
	activeChanges prometheus.Counter
	probes        *prometheus.CounterVec
	probeLatency  *prometheus.HistogramVec
	openHandles   prometheus.Gauge
}

var _ backend.Observer = (*Observer)(nil)

// NewObserver registers the backend collectors with reg.
func NewObserver(reg prometheus.Registerer) *Observer {
	f := promauto.With(reg)
	return &Observer{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "operations_total",
			Help:      "Store operation attempts by store, operation and outcome",
		}, []string{"store", "op", "outcome"}), // outcome: success/transient/permanent/canceled

		operationTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "operation_duration_seconds",
			Help:      "Duration of store operation attempts",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"store", "op"}),

		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "retries_total",
			Help:      "Retries on the same store after a transient failure",
		}, []string{"store", "op"}),

		failovers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "failovers_total",
			Help:      "Failovers between stores",
		}, []string{"from", "to", "leg"}),

		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "status_transitions_total",
			Help:      "Store health status transitions",
		}, []string{"store", "from", "to"}),

		storeStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "store_status",
			Help:      "1 for the current health status of each store, 0 otherwise",
		}, []string{"store", "status"}),

		activeStore: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "active_store",
			Help:      "1 for the store currently serving traffic",
		}, []string{"store"}),

		activeChanges: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "active_store_changes_total",
			Help:      "Changes of the active store",
		}),

		probes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "probes_total",
			Help:      "Health probes by store and result",
		}, []string{"store", "result"}), // result: healthy/unhealthy

		probeLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "probe_duration_seconds",
			Help:      "Duration of health probes",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms ~ 2s
		}, []string{"store"}),

		openHandles: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "open_handles",
			Help:      "Acquired handles not yet released",
		}),
	}
}

func (o *Observer) OperationDone(storeID, op, outcome string, elapsed time.Duration) {
	o.operations.WithLabelValues(storeID, op, outcome).Inc()
	o.operationTime.WithLabelValues(storeID, op).Observe(elapsed.Seconds())
}

func (o *Observer) Retried(storeID, op string) {
	o.retries.WithLabelValues(storeID, op).Inc()
}

func (o *Observer) FailedOver(from, to string, leg backend.Leg) {
	o.failovers.WithLabelValues(from, to, leg.String()).Inc()
}

func (o *Observer) StatusChanged(storeID string, from, to backend.Status) {
	o.transitions.WithLabelValues(storeID, from.String(), to.String()).Inc()
	for _, s := range statuses {
		v := 0.0
		if s == to {
			v = 1
		}
		o.storeStatus.WithLabelValues(storeID, s.String()).Set(v)
	}
}

func (o *Observer) ActiveChanged(from, to string) {
	o.activeChanges.Inc()
	if from != "" {
		o.activeStore.WithLabelValues(from).Set(0)
	}
	if to != "" {
		o.activeStore.WithLabelValues(to).Set(1)
	}
}

func (o *Observer) Probed(storeID string, healthy bool, latency time.Duration) {
	result := "healthy"
	if !healthy {
		result = "unhealthy"
	}
	o.probes.WithLabelValues(storeID, result).Inc()
	o.probeLatency.WithLabelValues(storeID).Observe(latency.Seconds())
}

func (o *Observer) HandlesOpen(n int64) {
	o.openHandles.Set(float64(n))
}
