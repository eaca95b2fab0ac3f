package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LifecycleMetrics records controller state transitions, bootstrap phases and cleanup.
type LifecycleMetrics struct {
	state           prometheus.Gauge
	transitions     *prometheus.CounterVec
	startDuration   *prometheus.HistogramVec
	phaseDuration   *prometheus.HistogramVec
	cleanupActions  *prometheus.CounterVec
	cleanupDuration *prometheus.HistogramVec
}

// lifecycleBuckets covers sub-millisecond in-memory bootstraps up to slow disk replays.
var lifecycleBuckets = []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60}

func newLifecycleMetrics(reg prometheus.Registerer) *LifecycleMetrics {
	return &LifecycleMetrics{
		state: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "lifecycle_state",
			Help:      "Current lifecycle state (0=Idle, 1=Starting, 2=Running, 3=Stopping, 4=Stopped)",
		}),
		transitions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "lifecycle_transitions_total",
			Help:      "Total number of lifecycle state transitions by target state",
		}, []string{"state"}),
		startDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "start_duration_seconds",
			Help:      "Duration from Start to a resolved start outcome",
			Buckets:   lifecycleBuckets,
		}, []string{"result"}),
		phaseDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "bootstrap_phase_duration_seconds",
			Help:      "Duration of each bootstrap phase",
			Buckets:   lifecycleBuckets,
		}, []string{"phase", "result"}),
		cleanupActions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cleanup_actions_total",
			Help:      "Total number of cleanup actions executed by result",
		}, []string{"result"}),
		cleanupDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "cleanup_action_duration_seconds",
			Help:      "Duration of each cleanup action",
			Buckets:   lifecycleBuckets,
		}, []string{"action"}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordState records a transition to the given state.
func (m *LifecycleMetrics) RecordState(name string, ordinal int) {
	if m == nil {
		return
	}
	m.state.Set(float64(ordinal))
	m.transitions.WithLabelValues(name).Inc()
}

// ObserveStart records how long a start took to resolve.
func (m *LifecycleMetrics) ObserveStart(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.startDuration.WithLabelValues(result(err)).Observe(d.Seconds())
}

// ObservePhase records the duration of a bootstrap phase.
func (m *LifecycleMetrics) ObservePhase(phase string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase, result(err)).Observe(d.Seconds())
}

// ObserveCleanupAction records one executed cleanup action.
func (m *LifecycleMetrics) ObserveCleanupAction(action string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.cleanupActions.WithLabelValues(result(err)).Inc()
	m.cleanupDuration.WithLabelValues(action).Observe(d.Seconds())
}
