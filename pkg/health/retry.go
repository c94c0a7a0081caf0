package health

import (
	"context"

	"github.com/cuemby/sessiond/pkg/storage"
	"github.com/cuemby/sessiond/pkg/types"
)

// RetryPolicy re-marks unhealthy sessions for scheduling, bounded by a
// retry cap: sessions below the cap have RetryCount incremented and go
// back to PENDING for another scheduling attempt; sessions at or above
// the cap are failed outright. No spacing is added between attempts
// beyond each keeper's fixed NeedCheck threshold, which does not depend on
// RetryCount.
type RetryPolicy struct {
	sessions storage.SessionRepository
}

// NewRetryPolicy builds a RetryPolicy over the session repository.
func NewRetryPolicy(sessions storage.SessionRepository) RetryPolicy {
	return RetryPolicy{sessions: sessions}
}

// Retry re-marks each session in ids as PENDING if its RetryCount is below
// maxRetries, or ERROR otherwise.
func (p RetryPolicy) Retry(ctx context.Context, ids []string, maxRetries int) error {
	if p.sessions == nil || len(ids) == 0 {
		return nil
	}

	var retryable, exhausted []string
	for _, id := range ids {
		session, err := p.sessions.GetByID(ctx, id)
		if err != nil {
			continue
		}
		if session.Session.RetryCount >= maxRetries {
			exhausted = append(exhausted, id)
		} else {
			retryable = append(retryable, id)
		}
	}

	if len(retryable) > 0 {
		for _, id := range retryable {
			if err := p.sessions.IncrementRetryCount(ctx, id); err != nil {
				return err
			}
		}
		if err := p.sessions.UpdateSessionsTo(ctx, types.SessionPending, retryable, "health-retry"); err != nil {
			return err
		}
	}
	if len(exhausted) > 0 {
		if err := p.sessions.UpdateSessionsTo(ctx, types.SessionError, exhausted, "health-retry-exhausted"); err != nil {
			return err
		}
	}
	return nil
}
