package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/sessiond/pkg/types"
)

func TestRetryPolicy_SplitsByRetryCount(t *testing.T) {
	sessions := &fakeSessionRepo{
		byID: map[string]*types.SessionWithKernels{
			"sess-fresh":     {Session: &types.Session{ID: "sess-fresh", RetryCount: 0}},
			"sess-exhausted": {Session: &types.Session{ID: "sess-exhausted", RetryCount: 3}},
		},
	}
	policy := NewRetryPolicy(sessions)

	err := policy.Retry(context.Background(), []string{"sess-fresh", "sess-exhausted"}, 3)
	require.NoError(t, err)

	require.Len(t, sessions.updates, 2)
	byStatus := map[types.SessionStatus][]string{}
	for _, u := range sessions.updates {
		byStatus[u.status] = u.ids
	}
	assert.Equal(t, []string{"sess-fresh"}, byStatus[types.SessionPending])
	assert.Equal(t, []string{"sess-exhausted"}, byStatus[types.SessionError])
}

func TestRetryPolicy_IncrementsRetryCountOnRetry(t *testing.T) {
	sessions := &fakeSessionRepo{
		byID: map[string]*types.SessionWithKernels{
			"sess-fresh": {Session: &types.Session{ID: "sess-fresh", RetryCount: 1}},
		},
	}
	policy := NewRetryPolicy(sessions)

	err := policy.Retry(context.Background(), []string{"sess-fresh"}, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, sessions.byID["sess-fresh"].Session.RetryCount)
}

func TestRetryPolicy_SkipsSessionsItCannotLoad(t *testing.T) {
	sessions := &fakeSessionRepo{byID: map[string]*types.SessionWithKernels{}}
	policy := NewRetryPolicy(sessions)

	err := policy.Retry(context.Background(), []string{"missing"}, 3)
	require.NoError(t, err)
	assert.Empty(t, sessions.updates)
}

func TestRetryPolicy_NoopOnEmptyIDs(t *testing.T) {
	policy := NewRetryPolicy(&fakeSessionRepo{})
	err := policy.Retry(context.Background(), nil, 3)
	assert.NoError(t, err)
}
