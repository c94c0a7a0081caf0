package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/sessiond/pkg/batch"
	"github.com/cuemby/sessiond/pkg/types"
)

func terminatedSession(id string) batch.HandlerSessionData {
	return batch.HandlerSessionData{
		SessionID: id,
		Kernels:   []batch.HandlerKernelData{{KernelID: "k1", Status: types.KernelTerminated}},
	}
}

func TestCheckTerminatingProgressHandler_ReleasesAllocationsAndAdvances(t *testing.T) {
	sched := &fakeSchedRepo{}
	sessions := &fakeSessionRepo{}

	h := NewCheckTerminatingProgressHandler(sched, sessions, nil)
	result, err := h.Execute(context.Background(), []batch.HandlerSessionData{terminatedSession("sess-1")}, "default")

	require.NoError(t, err)
	assert.Equal(t, []string{"sess-1"}, result.Successes)
	assert.Equal(t, []string{"k1"}, sched.releasedKernels)
	assert.Equal(t, []string{"sess-1"}, sessions.invalidated)
}

func TestCheckTerminatingProgressHandler_FailsWhenReleaseErrors(t *testing.T) {
	sched := &fakeSchedRepo{releaseErr: errors.New("boom")}
	sessions := &fakeSessionRepo{}

	h := NewCheckTerminatingProgressHandler(sched, sessions, nil)
	result, err := h.Execute(context.Background(), []batch.HandlerSessionData{terminatedSession("sess-1")}, "default")

	require.NoError(t, err)
	assert.Empty(t, result.Successes)
	assert.Equal(t, []string{"sess-1"}, result.Failures)
}

func TestCheckTerminatingProgressHandler_CacheErrorDoesNotBlockSuccess(t *testing.T) {
	sched := &fakeSchedRepo{}
	sessions := &fakeSessionRepo{invalidateErr: errors.New("cache down")}

	h := NewCheckTerminatingProgressHandler(sched, sessions, nil)
	result, err := h.Execute(context.Background(), []batch.HandlerSessionData{terminatedSession("sess-1")}, "default")

	require.NoError(t, err)
	assert.Equal(t, []string{"sess-1"}, result.Successes)
}

func TestCheckTerminatingProgressHandler_HoldsWhileAnyKernelNotTerminated(t *testing.T) {
	sched := &fakeSchedRepo{}
	sessions := &fakeSessionRepo{}

	h := NewCheckTerminatingProgressHandler(sched, sessions, nil)
	result, err := h.Execute(context.Background(), []batch.HandlerSessionData{
		{
			SessionID: "sess-1",
			Kernels: []batch.HandlerKernelData{
				{KernelID: "k1", Status: types.KernelTerminated},
				{KernelID: "k2", Status: types.KernelTerminating},
			},
		},
	}, "default")

	require.NoError(t, err)
	assert.Empty(t, result.Successes)
	assert.Empty(t, sched.releasedKernels)
}
