package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/sessiond/pkg/batch"
)

func TestCreatingHealthKeeper_NeedCheck(t *testing.T) {
	k := NewCreatingHealthKeeper(&fakeAgentChecker{}, RetryPolicy{})
	now := time.Unix(2_000_000, 0)

	assert.False(t, k.NeedCheck(batch.HandlerSessionData{StatusChangedAt: now.Unix() - 100}, now))
	assert.True(t, k.NeedCheck(batch.HandlerSessionData{StatusChangedAt: now.Unix() - 601}, now))
}

func TestCreatingHealthKeeper_CheckBatch_HealthyWhenAnyKernelActive(t *testing.T) {
	checker := &fakeAgentChecker{creatingActive: map[string]bool{"k2": true}}
	k := NewCreatingHealthKeeper(checker, RetryPolicy{})

	result, err := k.CheckBatch(context.Background(), []batch.HandlerSessionData{
		{
			SessionID: "sess-1",
			Kernels: []batch.HandlerKernelData{
				{KernelID: "k1", AgentID: "agent-1"},
				{KernelID: "k2", AgentID: "agent-1"},
			},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"sess-1"}, result.HealthySessions)
}

func TestCreatingHealthKeeper_CheckBatch_UnhealthyWhenNoneActive(t *testing.T) {
	checker := &fakeAgentChecker{}
	k := NewCreatingHealthKeeper(checker, RetryPolicy{})

	result, err := k.CheckBatch(context.Background(), []batch.HandlerSessionData{
		{
			SessionID: "sess-1",
			Kernels: []batch.HandlerKernelData{
				{KernelID: "k1", AgentID: "agent-1"},
			},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"sess-1"}, result.UnhealthySessions)
}

func TestCreatingHealthKeeper_CheckBatch_SkipsKernelsWithoutAgent(t *testing.T) {
	checker := &fakeAgentChecker{creatingActive: map[string]bool{"k1": true}}
	k := NewCreatingHealthKeeper(checker, RetryPolicy{})

	result, err := k.CheckBatch(context.Background(), []batch.HandlerSessionData{
		{
			SessionID: "sess-1",
			Kernels: []batch.HandlerKernelData{
				{KernelID: "k1", AgentID: ""},
			},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"sess-1"}, result.UnhealthySessions)
}
