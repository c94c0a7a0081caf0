package health

import (
	"context"
	"time"

	"github.com/cuemby/sessiond/pkg/batch"
)

// pullingCheckThreshold is the minimum age of a PREPARING/PULLING session's
// status_changed_at before it is considered stuck long enough to probe.
const pullingCheckThreshold = 900 * time.Second

// PullingHealthKeeper watches PREPARING/PULLING sessions: if none of a
// session's kernel images are still actively being pulled on their agent,
// the pull has stalled and the session is unhealthy.
type PullingHealthKeeper struct {
	Base
	agents     AgentChecker
	retrier    RetryPolicy
	maxRetries int
}

// NewPullingHealthKeeper builds a PullingHealthKeeper probing agents
// through checker and applying the given retry policy.
func NewPullingHealthKeeper(checker AgentChecker, retrier RetryPolicy) *PullingHealthKeeper {
	k := &PullingHealthKeeper{agents: checker, retrier: retrier, maxRetries: 3}
	k.Base = Base{self: k}
	return k
}

func (k *PullingHealthKeeper) Name() string { return "pulling-health-check" }

func (k *PullingHealthKeeper) NeedCheck(session batch.HandlerSessionData, now time.Time) bool {
	if session.StatusChangedAt == 0 {
		return true
	}
	age := now.Sub(time.Unix(session.StatusChangedAt, 0))
	return age >= pullingCheckThreshold
}

func (k *PullingHealthKeeper) CheckBatch(ctx context.Context, sessions []batch.HandlerSessionData) (batch.HealthCheckResult, error) {
	var result batch.HealthCheckResult
	for _, s := range sessions {
		main := s.MainKernel()
		if main == nil || main.AgentID == "" {
			result.UnhealthySessions = append(result.UnhealthySessions, s.SessionID)
			continue
		}

		images := uniqueImages(s.Kernels)
		operating := false
		for _, image := range images {
			active, err := k.agents.CheckPulling(ctx, main.AgentID, image)
			if err != nil {
				// RPC failure fails closed toward unhealthy.
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

func (k *PullingHealthKeeper) RetryUnhealthy(ctx context.Context, unhealthyIDs []string) error {
	return k.retrier.Retry(ctx, unhealthyIDs, k.maxRetries)
}

func uniqueImages(kernels []batch.HandlerKernelData) []string {
	seen := make(map[string]struct{}, len(kernels))
	var out []string
	for _, k := range kernels {
		if k.Image == "" {
			continue
		}
		if _, ok := seen[k.Image]; ok {
			continue
		}
		seen[k.Image] = struct{}{}
		out = append(out, k.Image)
	}
	return out
}
