package health

import (
	"context"
	"errors"

	"github.com/cuemby/sessiond/pkg/batch"
	"github.com/cuemby/sessiond/pkg/storage"
	"github.com/cuemby/sessiond/pkg/types"
)

// fakeAgentChecker answers CheckPulling/CheckCreating from fixed maps keyed
// by image/kernel id, so a test can script exactly which probes report
// active work.
type fakeAgentChecker struct {
	pullingActive  map[string]bool
	creatingActive map[string]bool
	pullingErr     error
	creatingErr    error
}

func (c *fakeAgentChecker) CheckPulling(ctx context.Context, agentID, image string) (bool, error) {
	if c.pullingErr != nil {
		return false, c.pullingErr
	}
	return c.pullingActive[image], nil
}

func (c *fakeAgentChecker) CheckCreating(ctx context.Context, agentID, kernelID string) (bool, error) {
	if c.creatingErr != nil {
		return false, c.creatingErr
	}
	return c.creatingActive[kernelID], nil
}

// fakeSessionRepo is a minimal storage.SessionRepository for health tests.
type fakeSessionRepo struct {
	storage.SessionRepository
	byID    map[string]*types.SessionWithKernels
	updates []sessionUpdate
}

type sessionUpdate struct {
	status types.SessionStatus
	ids    []string
	reason string
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, sessionID string) (*types.SessionWithKernels, error) {
	s, ok := r.byID[sessionID]
	if !ok {
		return nil, errors.New("not found")
	}
	return s, nil
}

func (r *fakeSessionRepo) UpdateSessionsTo(ctx context.Context, status types.SessionStatus, ids []string, reason string) error {
	r.updates = append(r.updates, sessionUpdate{status: status, ids: ids, reason: reason})
	return nil
}

func (r *fakeSessionRepo) IncrementRetryCount(ctx context.Context, sessionID string) error {
	if s, ok := r.byID[sessionID]; ok {
		s.Session.RetryCount++
	}
	return nil
}

// fakeSchedRepo is a minimal storage.SchedulerRepository for monitor tests.
type fakeSchedRepo struct {
	storage.SchedulerRepository
	byStatus map[types.SessionStatus][]batch.HandlerSessionData
	err      error
}

func (r *fakeSchedRepo) GetSessionsByStatus(ctx context.Context, status types.SessionStatus) ([]batch.HandlerSessionData, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.byStatus[status], nil
}
