// Package metrics defines and registers every Prometheus metric the
// scheduling coordinator, health monitor, and Raft FSM record, plus the
// small health-check registry backing /health, /ready, and /live.
//
// Metrics are package-level variables registered against the default
// Prometheus registry in init(); callers never construct their own.
// Handler() exposes them for scraping at /metrics.
package metrics
