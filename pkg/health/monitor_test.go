package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/sessiond/pkg/batch"
	"github.com/cuemby/sessiond/pkg/types"
)

func TestNewMonitor_SharesOnePullingKeeperAcrossPreparingAndPulling(t *testing.T) {
	m := NewMonitor(&fakeSchedRepo{}, &fakeSessionRepo{}, &fakeAgentChecker{}, time.Minute)
	assert.Same(t, m.keepers[types.SessionPreparing], m.keepers[types.SessionPulling])
	assert.NotSame(t, m.keepers[types.SessionPreparing], m.keepers[types.SessionCreating])
}

func TestCheckSessionsByStatus_UnmonitoredStatusIsANoop(t *testing.T) {
	m := NewMonitor(&fakeSchedRepo{}, &fakeSessionRepo{}, &fakeAgentChecker{}, time.Minute)
	result, err := m.CheckSessionsByStatus(context.Background(), types.SessionRunning)
	require.NoError(t, err)
	assert.False(t, result.HasUnhealthySessions())
}

func TestCheckSessionsByStatus_DelegatesToKeeper(t *testing.T) {
	sched := &fakeSchedRepo{
		byStatus: map[types.SessionStatus][]batch.HandlerSessionData{
			types.SessionCreating: {
				{
					SessionID:       "sess-1",
					StatusChangedAt: time.Now().Add(-time.Hour).Unix(),
					Kernels:         []batch.HandlerKernelData{{KernelID: "k1", AgentID: "agent-1"}},
				},
			},
		},
	}
	checker := &fakeAgentChecker{creatingActive: map[string]bool{"k1": true}}
	m := NewMonitor(sched, &fakeSessionRepo{}, checker, time.Minute)

	result, err := m.CheckSessionsByStatus(context.Background(), types.SessionCreating)
	require.NoError(t, err)
	assert.Equal(t, []string{"sess-1"}, result.HealthySessions)
}

func TestRunHealthChecks_OmitsStatusWithNoSessionDue(t *testing.T) {
	recentChangedAt := time.Now().Unix()
	sched := &fakeSchedRepo{
		byStatus: map[types.SessionStatus][]batch.HandlerSessionData{
			types.SessionCreating: {{SessionID: "sess-1", StatusChangedAt: recentChangedAt}},
		},
	}
	m := NewMonitor(sched, &fakeSessionRepo{}, &fakeAgentChecker{}, time.Minute)

	results := m.RunHealthChecks(context.Background())
	// Recently-changed sessions are not yet due for a check, so nothing
	// should appear in the aggregate for this round.
	assert.Empty(t, results)
}
