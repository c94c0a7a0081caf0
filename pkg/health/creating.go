package health

import (
	"context"
	"time"

	"github.com/cuemby/sessiond/pkg/batch"
)

// creatingCheckThreshold is the minimum age of a CREATING session's
// status_changed_at before it is considered stuck long enough to probe.
const creatingCheckThreshold = 600 * time.Second

// CreatingHealthKeeper watches CREATING sessions: if none of a session's
// kernels report active creation on their agent, creation has stalled and
// the session is unhealthy.
type CreatingHealthKeeper struct {
	Base
	agents     AgentChecker
	retrier    RetryPolicy
	maxRetries int
}

// NewCreatingHealthKeeper builds a CreatingHealthKeeper probing agents
// through checker and applying the given retry policy.
func NewCreatingHealthKeeper(checker AgentChecker, retrier RetryPolicy) *CreatingHealthKeeper {
	k := &CreatingHealthKeeper{agents: checker, retrier: retrier, maxRetries: 3}
	k.Base = Base{self: k}
	return k
}

func (k *CreatingHealthKeeper) Name() string { return "creating-health-check" }

func (k *CreatingHealthKeeper) NeedCheck(session batch.HandlerSessionData, now time.Time) bool {
	if session.StatusChangedAt == 0 {
		return true
	}
	age := now.Sub(time.Unix(session.StatusChangedAt, 0))
	return age >= creatingCheckThreshold
}

func (k *CreatingHealthKeeper) CheckBatch(ctx context.Context, sessions []batch.HandlerSessionData) (batch.HealthCheckResult, error) {
	var result batch.HealthCheckResult
	for _, s := range sessions {
		operating := false
		for _, kernel := range s.Kernels {
			if kernel.AgentID == "" {
				continue
			}
			active, err := k.agents.CheckCreating(ctx, kernel.AgentID, kernel.KernelID)
			if err != nil {
				continue
			}
			if active {
				operating = true
				break
			}
		}

		if operating {
			result.HealthySessions = append(result.HealthySessions, s.SessionID)
		} else {
			result.UnhealthySessions = append(result.UnhealthySessions, s.SessionID)
		}
	}
	return result, nil
}

func (k *CreatingHealthKeeper) RetryUnhealthy(ctx context.Context, unhealthyIDs []string) error {
	return k.retrier.Retry(ctx, unhealthyIDs, k.maxRetries)
}
