package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/sessiond/pkg/batch"
)

// stubKeeper is a minimal Keeper used to exercise Base.HandleBatch in
// isolation from any real probing logic.
type stubKeeper struct {
	Base
	due          map[string]bool
	checkResult  batch.HealthCheckResult
	checkErr     error
	retriedIDs   []string
	retryErr     error
	checkedBatch []batch.HandlerSessionData
}

func newStubKeeper() *stubKeeper {
	k := &stubKeeper{due: map[string]bool{}}
	k.Base = Base{self: k}
	return k
}

func (k *stubKeeper) Name() string { return "stub" }

func (k *stubKeeper) NeedCheck(session batch.HandlerSessionData, now time.Time) bool {
	return k.due[session.SessionID]
}

func (k *stubKeeper) CheckBatch(ctx context.Context, sessions []batch.HandlerSessionData) (batch.HealthCheckResult, error) {
	k.checkedBatch = sessions
	return k.checkResult, k.checkErr
}

func (k *stubKeeper) RetryUnhealthy(ctx context.Context, unhealthyIDs []string) error {
	k.retriedIDs = unhealthyIDs
	return k.retryErr
}

func TestBase_HandleBatch_FiltersToDueSessionsOnly(t *testing.T) {
	k := newStubKeeper()
	k.due["sess-1"] = true
	k.checkResult = batch.HealthCheckResult{HealthySessions: []string{"sess-1"}}

	_, err := k.HandleBatch(context.Background(), []batch.HandlerSessionData{
		{SessionID: "sess-1"},
		{SessionID: "sess-2"},
	})

	require.NoError(t, err)
	require.Len(t, k.checkedBatch, 1)
	assert.Equal(t, "sess-1", k.checkedBatch[0].SessionID)
}

func TestBase_HandleBatch_NoSessionsDueSkipsCheck(t *testing.T) {
	k := newStubKeeper()
	result, err := k.HandleBatch(context.Background(), []batch.HandlerSessionData{{SessionID: "sess-1"}})

	require.NoError(t, err)
	assert.Nil(t, k.checkedBatch)
	assert.False(t, result.HasUnhealthySessions())
}

func TestBase_HandleBatch_RetriesWhenUnhealthyFound(t *testing.T) {
	k := newStubKeeper()
	k.due["sess-1"] = true
	k.checkResult = batch.HealthCheckResult{UnhealthySessions: []string{"sess-1"}}

	_, err := k.HandleBatch(context.Background(), []batch.HandlerSessionData{{SessionID: "sess-1"}})

	require.NoError(t, err)
	assert.Equal(t, []string{"sess-1"}, k.retriedIDs)
}

func TestBase_HandleBatch_SkipsRetryWhenAllHealthy(t *testing.T) {
	k := newStubKeeper()
	k.due["sess-1"] = true
	k.checkResult = batch.HealthCheckResult{HealthySessions: []string{"sess-1"}}

	_, err := k.HandleBatch(context.Background(), []batch.HandlerSessionData{{SessionID: "sess-1"}})

	require.NoError(t, err)
	assert.Nil(t, k.retriedIDs)
}

func TestBase_HandleBatch_PropagatesCheckError(t *testing.T) {
	k := newStubKeeper()
	k.due["sess-1"] = true
	k.checkErr = errors.New("probe failed")

	_, err := k.HandleBatch(context.Background(), []batch.HandlerSessionData{{SessionID: "sess-1"}})

	assert.Error(t, err)
}
