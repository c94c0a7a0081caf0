package handlers

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/cuemby/sessiond/pkg/batch"
	"github.com/cuemby/sessiond/pkg/storage"
	"github.com/cuemby/sessiond/pkg/types"
)

// fakeSessionRepo is a minimal storage.SessionRepository for handler tests.
type fakeSessionRepo struct {
	storage.SessionRepository
	byID          map[string]*types.SessionWithKernels
	invalidated   []string
	invalidateErr error
	getByIDErr    error
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, sessionID string) (*types.SessionWithKernels, error) {
	if r.getByIDErr != nil {
		return nil, r.getByIDErr
	}
	s, ok := r.byID[sessionID]
	if !ok {
		return nil, errors.New("not found")
	}
	return s, nil
}

func (r *fakeSessionRepo) InvalidateKernelRelatedCache(ctx context.Context, sessionIDs []string) error {
	if r.invalidateErr != nil {
		return r.invalidateErr
	}
	r.invalidated = append(r.invalidated, sessionIDs...)
	return nil
}

// fakeAgentRepo is a minimal storage.AgentRepository for handler tests.
type fakeAgentRepo struct {
	storage.AgentRepository
	agents       []*types.Agent
	resources    map[string][]types.AgentResource
	scalingGroup *types.ScalingGroup
}

func (r *fakeAgentRepo) ListSchedulable(ctx context.Context, scalingGroup string) ([]*types.Agent, error) {
	return r.agents, nil
}

func (r *fakeAgentRepo) GetResources(ctx context.Context, agentID string) ([]types.AgentResource, error) {
	return r.resources[agentID], nil
}

func (r *fakeAgentRepo) GetScalingGroup(ctx context.Context, name string) (*types.ScalingGroup, error) {
	if r.scalingGroup != nil {
		return r.scalingGroup, nil
	}
	return &types.ScalingGroup{Name: name}, nil
}

// fakeSchedRepo is a minimal storage.SchedulerRepository for handler tests.
type fakeSchedRepo struct {
	storage.SchedulerRepository
	decisions       []storage.SchedulingDecision
	applyErr        error
	releasedKernels []string
	releaseErr      error
}

func (r *fakeSchedRepo) ApplySchedulingDecision(ctx context.Context, decision storage.SchedulingDecision) error {
	if r.applyErr != nil {
		return r.applyErr
	}
	r.decisions = append(r.decisions, decision)
	return nil
}

func (r *fakeSchedRepo) ReleaseKernelAllocations(ctx context.Context, kernelIDs []string) error {
	if r.releaseErr != nil {
		return r.releaseErr
	}
	r.releasedKernels = append(r.releasedKernels, kernelIDs...)
	return nil
}

func slot(amount int64) types.ResourceSlot {
	return types.ResourceSlot{"cpu": decimal.NewFromInt(amount)}
}

func hookFunc(err error) HookFunc {
	return func(ctx context.Context, session batch.HandlerSessionData) error {
		return err
	}
}
