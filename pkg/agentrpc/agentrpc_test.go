package agentrpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/sessiond/pkg/types"
)

type fakeResolver struct {
	agents map[string]*types.Agent
	calls  int
}

func (f *fakeResolver) GetAgentByID(ctx context.Context, agentID string) (*types.Agent, error) {
	f.calls++
	a, ok := f.agents[agentID]
	if !ok {
		return nil, assert.AnError
	}
	return a, nil
}

func TestConnFor_CachesConnectionPerAddress(t *testing.T) {
	resolver := &fakeResolver{agents: map[string]*types.Agent{
		"agent-1": {ID: "agent-1", Addr: "127.0.0.1:50999"},
	}}
	c := New(resolver, time.Second)
	defer c.Close()

	conn1, err := c.connFor(context.Background(), "agent-1")
	require.NoError(t, err)
	conn2, err := c.connFor(context.Background(), "agent-1")
	require.NoError(t, err)

	assert.Same(t, conn1, conn2)
	assert.Equal(t, 2, resolver.calls, "resolver is consulted every call even on cache hit")
}

func TestConnFor_PropagatesResolverError(t *testing.T) {
	resolver := &fakeResolver{agents: map[string]*types.Agent{}}
	c := New(resolver, time.Second)
	defer c.Close()

	_, err := c.connFor(context.Background(), "missing")
	assert.Error(t, err)
}

func TestClose_ClearsConnectionCache(t *testing.T) {
	resolver := &fakeResolver{agents: map[string]*types.Agent{
		"agent-1": {ID: "agent-1", Addr: "127.0.0.1:50998"},
	}}
	c := New(resolver, time.Second)

	_, err := c.connFor(context.Background(), "agent-1")
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.Empty(t, c.conns)
}
