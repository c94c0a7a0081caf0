package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/sessiond/pkg/batch"
	"github.com/cuemby/sessiond/pkg/log"
	"github.com/cuemby/sessiond/pkg/metrics"
	"github.com/cuemby/sessiond/pkg/storage"
	"github.com/cuemby/sessiond/pkg/types"
)

// Monitor dispatches health checks per session status to the keeper
// registered for that status, running independently of the scheduling
// coordinator on its own tick.
type Monitor struct {
	sched   storage.SchedulerRepository
	keepers map[types.SessionStatus]Keeper
	tick    time.Duration
	logger  zerolog.Logger
	stopCh  chan struct{}
}

// NewMonitor builds a Monitor wiring the standard keeper set: PREPARING and
// PULLING share one PullingHealthKeeper instance, CREATING gets its own
// CreatingHealthKeeper.
func NewMonitor(sched storage.SchedulerRepository, sessions storage.SessionRepository, agents AgentChecker, tickInterval time.Duration) *Monitor {
	retrier := NewRetryPolicy(sessions)
	pullingKeeper := NewPullingHealthKeeper(agents, retrier)
	creatingKeeper := NewCreatingHealthKeeper(agents, retrier)

	return &Monitor{
		sched: sched,
		keepers: map[types.SessionStatus]Keeper{
			types.SessionPreparing: pullingKeeper,
			types.SessionPulling:   pullingKeeper,
			types.SessionCreating:  creatingKeeper,
		},
		tick:   tickInterval,
		logger: log.WithComponent("health.monitor"),
		stopCh: make(chan struct{}),
	}
}

// Start runs the monitor's tick loop in a new goroutine.
func (m *Monitor) Start() {
	go m.run()
}

// Stop terminates the monitor's tick loop.
func (m *Monitor) Stop() {
	close(m.stopCh)
}

func (m *Monitor) run() {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.RunHealthChecks(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// RunHealthChecks checks every monitored status once and logs aggregate
// totals.
func (m *Monitor) RunHealthChecks(ctx context.Context) map[types.SessionStatus]batch.HealthCheckResult {
	results := make(map[types.SessionStatus]batch.HealthCheckResult, len(m.keepers))
	var totalHealthy, totalUnhealthy int

	for status := range m.keepers {
		result, err := m.CheckSessionsByStatus(ctx, status)
		if err != nil {
			m.logger.Error().Err(err).Str("status", string(status)).Msg("health check failed")
			continue
		}
		if len(result.HealthySessions) == 0 && len(result.UnhealthySessions) == 0 {
			continue
		}
		results[status] = result
		totalHealthy += len(result.HealthySessions)
		totalUnhealthy += len(result.UnhealthySessions)
	}

	m.logger.Info().Int("healthy", totalHealthy).Int("unhealthy", totalUnhealthy).Msg("health check complete")
	return results
}

// CheckSessionsByStatus pulls every session currently in status and runs it
// through that status's keeper, if one is registered.
func (m *Monitor) CheckSessionsByStatus(ctx context.Context, status types.SessionStatus) (batch.HealthCheckResult, error) {
	keeper, ok := m.keepers[status]
	if !ok {
		return batch.HealthCheckResult{}, nil
	}

	sessions, err := m.sched.GetSessionsByStatus(ctx, status)
	if err != nil {
		return batch.HealthCheckResult{}, err
	}
	if len(sessions) == 0 {
		return batch.HealthCheckResult{}, nil
	}

	result, err := keeper.HandleBatch(ctx, sessions)
	if err != nil {
		return result, err
	}
	metrics.HealthCheckOutcomesTotal.WithLabelValues(string(status), "healthy").Add(float64(len(result.HealthySessions)))
	metrics.HealthCheckOutcomesTotal.WithLabelValues(string(status), "unhealthy").Add(float64(len(result.UnhealthySessions)))
	return result, nil
}
