// Package cache implements the Redis-backed ephemeral layout SPEC_FULL.md
// §6.3 describes: rebuildable indexes the coordinator and image-sync step
// keep warm alongside the durable store. Nothing here is ever the sole
// copy of a fact; on a cache miss, callers fall back to the store.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// InstalledImage is one entry of the installed_image:{agent_id} list.
type InstalledImage struct {
	Canonical    string `json:"canonical"`
	Digest       string `json:"digest"`
	Architecture string `json:"architecture"`
}

// Cache wraps a Redis client with the session scheduler's key layout.
type Cache struct {
	client *redis.Client
}

// New wraps an existing Redis client.
func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func installedImageKey(agentID string) string      { return "installed_image:" + agentID }
func agentsForImageKey(imageID string) string      { return "agents_for_image:" + imageID }
func scheduleNeededKey(scalingGroup string) string { return "mark_schedule_needed:" + scalingGroup }
func gpuAllocationKey(agentID string) string       { return "gpu_allocation_map:" + agentID }

// SetInstalledImages overwrites the installed-image list for an agent.
func (c *Cache) SetInstalledImages(ctx context.Context, agentID string, images []InstalledImage) error {
	data, err := json.Marshal(images)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, installedImageKey(agentID), data, 0).Err()
}

// InstalledImages reads back an agent's installed-image list; a cache miss
// returns a nil slice and no error, signaling the caller should rebuild it
// from the live agent heartbeat.
func (c *Cache) InstalledImages(ctx context.Context, agentID string) ([]InstalledImage, error) {
	data, err := c.client.Get(ctx, installedImageKey(agentID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var images []InstalledImage
	if err := json.Unmarshal(data, &images); err != nil {
		return nil, err
	}
	return images, nil
}

// AddAgentForImage records that agentID has imageID available.
func (c *Cache) AddAgentForImage(ctx context.Context, imageID, agentID string) error {
	return c.client.SAdd(ctx, agentsForImageKey(imageID), agentID).Err()
}

// RemoveAgentForImage drops agentID from imageID's agent set.
func (c *Cache) RemoveAgentForImage(ctx context.Context, imageID, agentID string) error {
	return c.client.SRem(ctx, agentsForImageKey(imageID), agentID).Err()
}

// AgentsForImage lists the agents known to have imageID available.
func (c *Cache) AgentsForImage(ctx context.Context, imageID string) ([]string, error) {
	return c.client.SMembers(ctx, agentsForImageKey(imageID)).Result()
}

// MarkScheduleNeeded raises the schedule-needed flag for a scaling group,
// expiring it after ttl so a crashed consumer doesn't leave it stuck.
func (c *Cache) MarkScheduleNeeded(ctx context.Context, scalingGroup string, ttl time.Duration) error {
	return c.client.Set(ctx, scheduleNeededKey(scalingGroup), "1", ttl).Err()
}

// ScheduleNeeded reports and clears the schedule-needed flag for a scaling
// group in one round trip.
func (c *Cache) ScheduleNeeded(ctx context.Context, scalingGroup string) (bool, error) {
	n, err := c.client.Del(ctx, scheduleNeededKey(scalingGroup)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetGPUAllocationMap overwrites an agent's GPU allocation map.
func (c *Cache) SetGPUAllocationMap(ctx context.Context, agentID string, allocationMap map[string]any) error {
	data, err := json.Marshal(allocationMap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, gpuAllocationKey(agentID), data, 0).Err()
}

// GPUAllocationMap reads back an agent's GPU allocation map.
func (c *Cache) GPUAllocationMap(ctx context.Context, agentID string) (map[string]any, error) {
	data, err := c.client.Get(ctx, gpuAllocationKey(agentID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// InvalidateAgent clears every key namespaced to a single agent, used when
// an agent is declared LOST or TERMINATED.
func (c *Cache) InvalidateAgent(ctx context.Context, agentID string) error {
	return c.client.Del(ctx, installedImageKey(agentID), gpuAllocationKey(agentID)).Err()
}
