package manager

import (
	"time"

	"github.com/cuemby/sessiond/pkg/metrics"
)

// MetricsCollector polls this node's Raft status and current session mix
// on an interval, for metrics that are cheaper to sample than to
// instrument at every call site.
type MetricsCollector struct {
	manager *Manager
	stopCh  chan struct{}
}

// NewMetricsCollector creates a new metrics collector over mgr.
func NewMetricsCollector(mgr *Manager) *MetricsCollector {
	return &MetricsCollector{
		manager: mgr,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *MetricsCollector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *MetricsCollector) Stop() {
	close(c.stopCh)
}

func (c *MetricsCollector) collect() {
	c.collectRaftMetrics()
	c.collectSessionMetrics()
}

func (c *MetricsCollector) collectRaftMetrics() {
	if c.manager.IsLeader() {
		metrics.RaftLeader.Set(1)
	} else {
		metrics.RaftLeader.Set(0)
	}

	stats := c.manager.GetRaftStats()
	if stats == nil {
		return
	}
	if lastIndex, ok := stats["last_log_index"].(uint64); ok {
		metrics.RaftLogIndex.Set(float64(lastIndex))
	}
	if appliedIndex, ok := stats["applied_index"].(uint64); ok {
		metrics.RaftAppliedIndex.Set(float64(appliedIndex))
	}
	if peers, ok := stats["peers"].(uint64); ok {
		metrics.RaftPeers.Set(float64(peers))
	}
}

func (c *MetricsCollector) collectSessionMetrics() {
	sessions, err := c.manager.Store().ListSessions()
	if err != nil {
		return
	}

	counts := make(map[string]int)
	for _, s := range sessions {
		counts[string(s.Status)]++
	}
	for status, count := range counts {
		metrics.SessionsByStatus.WithLabelValues(status).Set(float64(count))
	}
}
