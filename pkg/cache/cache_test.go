package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return New(client)
}

func TestInstalledImages_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	images := []InstalledImage{
		{Canonical: "cr.backend.ai/stable/python:3.11", Digest: "sha256:abc", Architecture: "x86_64"},
	}
	require.NoError(t, c.SetInstalledImages(ctx, "agent-1", images))

	got, err := c.InstalledImages(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, images, got)
}

func TestInstalledImages_MissReturnsNil(t *testing.T) {
	c := newTestCache(t)
	got, err := c.InstalledImages(context.Background(), "unknown-agent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAgentsForImage_AddRemove(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.AddAgentForImage(ctx, "image-1", "agent-1"))
	require.NoError(t, c.AddAgentForImage(ctx, "image-1", "agent-2"))

	agents, err := c.AgentsForImage(ctx, "image-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"agent-1", "agent-2"}, agents)

	require.NoError(t, c.RemoveAgentForImage(ctx, "image-1", "agent-1"))
	agents, err = c.AgentsForImage(ctx, "image-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"agent-2"}, agents)
}

func TestScheduleNeeded_SetAndConsume(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	needed, err := c.ScheduleNeeded(ctx, "default")
	require.NoError(t, err)
	assert.False(t, needed)

	require.NoError(t, c.MarkScheduleNeeded(ctx, "default", time.Minute))

	needed, err = c.ScheduleNeeded(ctx, "default")
	require.NoError(t, err)
	assert.True(t, needed)

	// Consuming the flag clears it.
	needed, err = c.ScheduleNeeded(ctx, "default")
	require.NoError(t, err)
	assert.False(t, needed)
}

func TestGPUAllocationMap_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	m := map[string]any{"cuda.shares": float64(2)}
	require.NoError(t, c.SetGPUAllocationMap(ctx, "agent-1", m))

	got, err := c.GPUAllocationMap(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestInvalidateAgent_ClearsNamespacedKeys(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetInstalledImages(ctx, "agent-1", []InstalledImage{{Canonical: "x"}}))
	require.NoError(t, c.SetGPUAllocationMap(ctx, "agent-1", map[string]any{"a": 1.0}))

	require.NoError(t, c.InvalidateAgent(ctx, "agent-1"))

	images, err := c.InstalledImages(ctx, "agent-1")
	require.NoError(t, err)
	assert.Nil(t, images)

	gpuMap, err := c.GPUAllocationMap(ctx, "agent-1")
	require.NoError(t, err)
	assert.Nil(t, gpuMap)
}
