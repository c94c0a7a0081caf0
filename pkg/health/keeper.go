package health

import (
	"context"
	"time"

	"github.com/cuemby/sessiond/pkg/batch"
)

// AgentChecker is the narrow slice of pkg/agentrpc's client a health keeper
// needs: liveness probes against a single agent, never control-plane calls.
type AgentChecker interface {
	CheckPulling(ctx context.Context, agentID, image string) (bool, error)
	CheckCreating(ctx context.Context, agentID, kernelID string) (bool, error)
}

// Keeper is the per-status health-check unit. A concrete keeper implements
// Name, NeedCheck, CheckBatch and RetryUnhealthy; HandleBatch is the
// template method composing the last three, implemented once on Base.
type Keeper interface {
	Name() string
	NeedCheck(session batch.HandlerSessionData, now time.Time) bool
	CheckBatch(ctx context.Context, sessions []batch.HandlerSessionData) (batch.HealthCheckResult, error)
	RetryUnhealthy(ctx context.Context, unhealthyIDs []string) error
	HandleBatch(ctx context.Context, sessions []batch.HandlerSessionData) (batch.HealthCheckResult, error)
}

// Base implements the template method every Keeper embeds: filter by
// NeedCheck, delegate to the embedding keeper's CheckBatch, retry unhealthy
// sessions if any turned up. Go has no `final`, so the convention is simply
// that nothing outside this file calls self.CheckBatch/self.RetryUnhealthy
// directly — HandleBatch is the only entry point the monitor uses.
type Base struct {
	self interface {
		NeedCheck(session batch.HandlerSessionData, now time.Time) bool
		CheckBatch(ctx context.Context, sessions []batch.HandlerSessionData) (batch.HealthCheckResult, error)
		RetryUnhealthy(ctx context.Context, unhealthyIDs []string) error
	}
}

// HandleBatch filters sessions needing a check, runs the batch check, and
// retries any unhealthy session found.
func (b Base) HandleBatch(ctx context.Context, sessions []batch.HandlerSessionData) (batch.HealthCheckResult, error) {
	now := time.Now()
	var due []batch.HandlerSessionData
	for _, s := range sessions {
		if b.self.NeedCheck(s, now) {
			due = append(due, s)
		}
	}
	if len(due) == 0 {
		return batch.HealthCheckResult{}, nil
	}

	result, err := b.self.CheckBatch(ctx, due)
	if err != nil {
		return batch.HealthCheckResult{}, err
	}

	if result.HasUnhealthySessions() {
		if err := b.self.RetryUnhealthy(ctx, result.UnhealthySessions); err != nil {
			return result, err
		}
	}
	return result, nil
}
