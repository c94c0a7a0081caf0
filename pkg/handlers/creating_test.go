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

func runningSession(id string) batch.HandlerSessionData {
	return batch.HandlerSessionData{
		SessionID: id,
		Kernels:   []batch.HandlerKernelData{{KernelID: "k1", Status: types.KernelRunning}},
	}
}

func TestCheckCreatingProgressHandler_AdvancesWithNoHooks(t *testing.T) {
	h := NewCheckCreatingProgressHandler(nil)
	result, err := h.Execute(context.Background(), []batch.HandlerSessionData{runningSession("sess-1")}, "default")

	require.NoError(t, err)
	assert.Equal(t, []string{"sess-1"}, result.Successes)
}

func TestCheckCreatingProgressHandler_HoldsOnHookFailure(t *testing.T) {
	registry := NewHookRegistry()
	registry.Register(TransitionToRunning, hookFunc(errors.New("boom")))

	h := NewCheckCreatingProgressHandler(registry)
	result, err := h.Execute(context.Background(), []batch.HandlerSessionData{runningSession("sess-1")}, "default")

	require.NoError(t, err)
	assert.Empty(t, result.Successes)
}

func TestCheckCreatingProgressHandler_HoldsWhileAnyKernelNotRunning(t *testing.T) {
	h := NewCheckCreatingProgressHandler(nil)
	result, err := h.Execute(context.Background(), []batch.HandlerSessionData{
		{
			SessionID: "sess-1",
			Kernels: []batch.HandlerKernelData{
				{KernelID: "k1", Status: types.KernelRunning},
				{KernelID: "k2", Status: types.KernelCreating},
			},
		},
	}, "default")

	require.NoError(t, err)
	assert.Empty(t, result.Successes)
}
