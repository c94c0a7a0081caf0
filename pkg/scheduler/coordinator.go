// Package scheduler implements the scheduling coordinator (C5): a single
// long-running controller per scaling group that runs the lifecycle
// handlers in declared order each round, under per-handler named locks.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/sessiond/pkg/batch"
	"github.com/cuemby/sessiond/pkg/events"
	"github.com/cuemby/sessiond/pkg/handlers"
	"github.com/cuemby/sessiond/pkg/lock"
	"github.com/cuemby/sessiond/pkg/log"
	"github.com/cuemby/sessiond/pkg/metrics"
	"github.com/cuemby/sessiond/pkg/storage"
	"github.com/cuemby/sessiond/pkg/types"
)

// Config tunes the coordinator's timing; see pkg/config for the
// cluster-wide defaults these are built from.
type Config struct {
	TickInterval       time.Duration
	Debounce           time.Duration
	LockAcquireTimeout time.Duration
}

// Locker is the narrow surface of pkg/lock.Service the coordinator needs,
// kept as an interface so tests can swap in an in-memory fake instead of a
// real Redis connection.
type Locker interface {
	Acquire(ctx context.Context, name string, lease time.Duration) (lock.Held, bool, error)
}

// Coordinator runs one scaling group's handler rounds.
type Coordinator struct {
	scalingGroup string
	handlers     []handlers.LifecycleHandler
	sched        storage.SchedulerRepository
	sessions     storage.SessionRepository
	locks        Locker
	bus          *events.Broker
	cfg          Config
	logger       zerolog.Logger

	triggerCh chan string
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New builds a Coordinator for one scaling group. handlerChain must be in
// the order SPEC_FULL.md §4.3 declares: schedule, pulling, creating,
// terminating, abnormal-termination.
func New(scalingGroup string, handlerChain []handlers.LifecycleHandler, sched storage.SchedulerRepository, sessions storage.SessionRepository, locks Locker, bus *events.Broker, cfg Config) *Coordinator {
	return &Coordinator{
		scalingGroup: scalingGroup,
		handlers:     handlerChain,
		sched:        sched,
		sessions:     sessions,
		locks:        locks,
		bus:          bus,
		cfg:          cfg,
		logger:       log.WithScalingGroup(scalingGroup),
		triggerCh:    make(chan string, 64),
		stopCh:       make(chan struct{}),
	}
}

// MarkSchedulingNeeded queues a trigger for the next round. Never blocks:
// a full trigger channel means a round is already pending, which has the
// same effect.
func (c *Coordinator) MarkSchedulingNeeded(reason string) {
	select {
	case c.triggerCh <- reason:
	default:
	}
}

// Start runs the coordinator's main loop in a new goroutine.
func (c *Coordinator) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop cancels the main loop and waits for it to exit.
func (c *Coordinator) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Coordinator) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.runRound(context.Background())
		case reason := <-c.triggerCh:
			c.debounce(reason)
			c.runRound(context.Background())
		}
	}
}

// debounce drains any further triggers that arrive within the debounce
// window, coalescing a burst into the single round about to run.
func (c *Coordinator) debounce(first string) {
	timer := time.NewTimer(c.cfg.Debounce)
	defer timer.Stop()
	for {
		select {
		case <-c.triggerCh:
		case <-timer.C:
			return
		}
	}
}

// runRound runs every handler once, in order, each under its own lock.
func (c *Coordinator) runRound(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.CoordinatorRoundDuration, c.scalingGroup)

	for _, h := range c.handlers {
		c.runHandler(ctx, h)
	}
}

func (c *Coordinator) runHandler(ctx context.Context, h handlers.LifecycleHandler) {
	logger := c.logger.With().Str("handler", h.Name()).Logger()

	lockCtx, cancel := context.WithTimeout(ctx, c.cfg.LockAcquireTimeout)
	defer cancel()

	held, ok, err := c.locks.Acquire(lockCtx, h.LockID(), c.cfg.LockAcquireTimeout*2)
	if err != nil {
		logger.Error().Err(err).Msg("lock acquisition failed")
		metrics.HandlerExecutionsTotal.WithLabelValues(h.Name(), "failure").Inc()
		return
	}
	if !ok {
		logger.Debug().Msg("lock held elsewhere, skipping this round")
		metrics.HandlerExecutionsTotal.WithLabelValues(h.Name(), "skipped").Inc()
		return
	}
	defer func() {
		if err := held.Release(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to release handler lock")
		}
	}()

	sessions, err := c.sched.GetSessionsForTransition(ctx, h.TargetStatuses(), h.TargetKernelStatuses(), c.scalingGroup)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load batch")
		metrics.HandlerExecutionsTotal.WithLabelValues(h.Name(), "failure").Inc()
		return
	}
	if len(sessions) == 0 {
		metrics.HandlerExecutionsTotal.WithLabelValues(h.Name(), "skipped").Inc()
		return
	}

	result, err := h.Execute(ctx, sessions, c.scalingGroup)
	if err != nil {
		logger.Error().Err(err).Int("batch_size", len(sessions)).Msg("handler execution failed, batch retains prior status")
		metrics.HandlerExecutionsTotal.WithLabelValues(h.Name(), "failure").Inc()
		return
	}
	metrics.HandlerExecutionsTotal.WithLabelValues(h.Name(), "success").Inc()
	metrics.HandlerSessionsTotal.WithLabelValues(h.Name(), "success").Add(float64(len(result.Successes)))
	metrics.HandlerSessionsTotal.WithLabelValues(h.Name(), "failure").Add(float64(len(result.Failures)))
	metrics.HandlerSessionsTotal.WithLabelValues(h.Name(), "stale").Add(float64(len(result.Stales)))

	c.commit(ctx, h, result, logger)

	if result.NeedsPostProcessing() {
		c.publish(h, result)
	}
}

// commit applies SuccessStatus/FailureStatus/StaleStatus to the handler's
// result. A status update that errors is logged and does not roll back
// whatever else the handler already did: the scheduling handler's
// ApplySchedulingDecision, for instance, already committed its own status
// change, and re-applying SessionScheduled here is a no-op under the
// store's current-status guard.
func (c *Coordinator) commit(ctx context.Context, h handlers.LifecycleHandler, result batch.SessionExecutionResult, logger zerolog.Logger) {
	reasons := make(map[string]string, len(result.ScheduledData))
	for _, sd := range result.ScheduledData {
		reasons[sd.SessionID] = sd.Reason
	}

	if len(result.Successes) > 0 {
		if err := c.applyStatus(ctx, h.SuccessStatus(), result.Successes, reasons); err != nil {
			logger.Error().Err(err).Msg("failed to commit success status")
		}
	}
	if failureStatus, ok := h.FailureStatus(); ok && len(result.Failures) > 0 {
		if err := c.applyStatus(ctx, failureStatus, result.Failures, reasons); err != nil {
			logger.Error().Err(err).Msg("failed to commit failure status")
		}
	}
	if staleStatus, ok := h.StaleStatus(); ok && len(result.Stales) > 0 {
		if err := c.applyStatus(ctx, staleStatus, result.Stales, reasons); err != nil {
			logger.Error().Err(err).Msg("failed to commit stale status")
		}
	}
}

// applyStatus groups ids by their per-session reason (UpdateSessionsTo
// takes one reason for the whole call) so sessions with distinct reasons
// each get their own, truthful StatusInfo.
func (c *Coordinator) applyStatus(ctx context.Context, status types.SessionStatus, ids []string, reasons map[string]string) error {
	byReason := make(map[string][]string, len(ids))
	for _, id := range ids {
		byReason[reasons[id]] = append(byReason[reasons[id]], id)
	}
	for reason, group := range byReason {
		if err := c.sessions.UpdateSessionsTo(ctx, status, group, reason); err != nil {
			return err
		}
	}
	return nil
}

// eventTypeFor maps a handler's declared success status to the event
// broadcast once that status commits.
func eventTypeFor(status types.SessionStatus) events.EventType {
	switch status {
	case types.SessionRunning:
		return events.EventSessionStarted
	case types.SessionTerminated, types.SessionTerminating:
		return events.EventSessionTerminated
	default:
		return events.EventSessionStarted
	}
}

func (c *Coordinator) publish(h handlers.LifecycleHandler, result batch.SessionExecutionResult) {
	eventType := eventTypeFor(h.SuccessStatus())
	for _, sd := range result.ScheduledData {
		c.bus.Publish(&events.Event{
			Type:      eventType,
			SessionID: sd.SessionID,
			Reason:    sd.Reason,
		})
	}
}
