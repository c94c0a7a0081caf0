package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Raft cluster metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessiond_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessiond_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessiond_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessiond_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sessiond_raft_apply_duration_seconds",
			Help:    "Time taken for the FSM to apply one committed Raft log entry",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Scheduling coordinator metrics
	CoordinatorRoundDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sessiond_coordinator_round_duration_seconds",
			Help:    "Time taken for one coordinator round across all handlers",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scaling_group"},
	)

	HandlerExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_handler_executions_total",
			Help: "Total lifecycle handler runs by handler name and outcome (success, failure, skipped)",
		},
		[]string{"handler", "outcome"},
	)

	HandlerSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_handler_sessions_total",
			Help: "Total sessions processed by a handler run, by handler name and disposition (success, failure, stale)",
		},
		[]string{"handler", "disposition"},
	)

	// Health monitor metrics
	HealthCheckOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_health_check_outcomes_total",
			Help: "Total health-check outcomes by session status and outcome (healthy, unhealthy)",
		},
		[]string{"status", "outcome"},
	)

	SessionsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sessiond_sessions_by_status",
			Help: "Current number of sessions in each status, as sampled by the manager's periodic metrics collector",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		RaftLeader,
		RaftPeers,
		RaftLogIndex,
		RaftAppliedIndex,
		RaftApplyDuration,
		CoordinatorRoundDuration,
		HandlerExecutionsTotal,
		HandlerSessionsTotal,
		HealthCheckOutcomesTotal,
		SessionsByStatus,
	)
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
