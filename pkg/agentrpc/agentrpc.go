// Package agentrpc is the client for the compute agent's RPC surface: the
// health monitor's liveness probes go through here. CreateSession,
// CommitSession, PurgeImages and PushImage are client methods that no
// handler in this module calls. The agent side of this contract is
// an external collaborator (the container runtime and image driver are
// explicitly out of scope for this module) - this package only ever
// dials out.
package agentrpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	_ "github.com/cuemby/sessiond/pkg/rpccodec"
	"github.com/cuemby/sessiond/pkg/types"
)

const serviceName = "sessiond.agent.AgentService"

// ImageRef identifies one container image for PurgeImages.
type ImageRef struct {
	Canonical    string `json:"canonical"`
	Architecture string `json:"architecture"`
}

// PurgeResult is one agent's outcome for one image in a PurgeImages call.
type PurgeResult struct {
	Image   string `json:"image"`
	Removed bool   `json:"removed"`
	Error   string `json:"error,omitempty"`
}

// SessionSpec is the placement payload sent to CreateSession.
type SessionSpec struct {
	SessionID string            `json:"session_id"`
	KernelID  string            `json:"kernel_id"`
	Image     string            `json:"image"`
	Slots     map[string]string `json:"slots"`
	Env       map[string]string `json:"env,omitempty"`
}

// CreateSessionResult reports the agent's acceptance of a placement.
type CreateSessionResult struct {
	ContainerID string `json:"container_id"`
	Accepted    bool   `json:"accepted"`
	Error       string `json:"error,omitempty"`
}

// CommitSessionResult reports the outcome of finalizing a session.
type CommitSessionResult struct {
	Committed bool   `json:"committed"`
	Error     string `json:"error,omitempty"`
}

type checkPullingRequest struct {
	Image string `json:"image"`
}
type checkPullingResponse struct {
	Active bool `json:"active"`
}
type checkCreatingRequest struct {
	KernelID string `json:"kernel_id"`
}
type checkCreatingResponse struct {
	Active bool `json:"active"`
}
type purgeImagesRequest struct {
	Images  []ImageRef `json:"images"`
	Force   bool       `json:"force"`
	Noprune bool       `json:"noprune"`
}
type purgeImagesResponse struct {
	Results []PurgeResult `json:"results"`
}
type commitSessionRequest struct {
	SessionID string `json:"session_id"`
}
type pushImageRequest struct {
	Image string `json:"image"`
}
type pushImageResponse struct {
	Pushed bool `json:"pushed"`
}

// AgentResolver maps an agent id to its RPC endpoint address. Satisfied by
// storage.AgentRepository.
type AgentResolver interface {
	GetAgentByID(ctx context.Context, agentID string) (*types.Agent, error)
}

// Client dials compute agents on demand and caches one connection per
// address. Connections are never actively torn down except by Close; an
// agent that goes away simply fails its next call, which the caller
// (health checks, failing closed) already treats as unhealthy.
type Client struct {
	resolver AgentResolver
	timeout  time.Duration

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// New builds a Client resolving agent addresses through resolver, applying
// timeout to every RPC unless the caller's context already carries a
// shorter deadline.
func New(resolver AgentResolver, timeout time.Duration) *Client {
	return &Client{
		resolver: resolver,
		timeout:  timeout,
		conns:    make(map[string]*grpc.ClientConn),
	}
}

// Close tears down every cached connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for addr, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.conns, addr)
	}
	return firstErr
}

func (c *Client) connFor(ctx context.Context, agentID string) (*grpc.ClientConn, error) {
	agent, err := c.resolver.GetAgentByID(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("resolve agent %s: %w", agentID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[agent.Addr]; ok {
		return conn, nil
	}

	conn, err := grpc.NewClient(agent.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial agent %s at %s: %w", agentID, agent.Addr, err)
	}
	c.conns[agent.Addr] = conn
	return conn, nil
}

func (c *Client) invoke(ctx context.Context, agentID, method string, req, resp interface{}) error {
	conn, err := c.connFor(ctx, agentID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return conn.Invoke(ctx, fmt.Sprintf("/%s/%s", serviceName, method), req, resp,
		grpc.CallContentSubtype("json"))
}

// CheckPulling reports whether the agent is still actively pulling image.
// Implements health.AgentChecker.
func (c *Client) CheckPulling(ctx context.Context, agentID, image string) (bool, error) {
	var resp checkPullingResponse
	err := c.invoke(ctx, agentID, "CheckPulling", &checkPullingRequest{Image: image}, &resp)
	if err != nil {
		return false, err
	}
	return resp.Active, nil
}

// CheckCreating reports whether the agent still has kernelID's container
// creation in flight. Implements health.AgentChecker.
func (c *Client) CheckCreating(ctx context.Context, agentID, kernelID string) (bool, error) {
	var resp checkCreatingResponse
	err := c.invoke(ctx, agentID, "CheckCreating", &checkCreatingRequest{KernelID: kernelID}, &resp)
	if err != nil {
		return false, err
	}
	return resp.Active, nil
}

// PurgeImages asks the agent to remove the given images, best-effort.
func (c *Client) PurgeImages(ctx context.Context, agentID string, images []ImageRef, force, noprune bool) ([]PurgeResult, error) {
	var resp purgeImagesResponse
	req := &purgeImagesRequest{Images: images, Force: force, Noprune: noprune}
	if err := c.invoke(ctx, agentID, "PurgeImages", req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// CreateSession places a kernel on the agent after slot reservation.
func (c *Client) CreateSession(ctx context.Context, agentID string, spec SessionSpec) (CreateSessionResult, error) {
	var resp CreateSessionResult
	if err := c.invoke(ctx, agentID, "CreateSession", &spec, &resp); err != nil {
		return CreateSessionResult{}, err
	}
	return resp, nil
}

// CommitSession finalizes a session on the agent.
func (c *Client) CommitSession(ctx context.Context, agentID, sessionID string) (CommitSessionResult, error) {
	var resp CommitSessionResult
	req := &commitSessionRequest{SessionID: sessionID}
	if err := c.invoke(ctx, agentID, "CommitSession", req, &resp); err != nil {
		return CommitSessionResult{}, err
	}
	return resp, nil
}

// PushImage is a pass-through stub for the out-of-core image push path.
func (c *Client) PushImage(ctx context.Context, agentID, image string) (bool, error) {
	var resp pushImageResponse
	req := &pushImageRequest{Image: image}
	if err := c.invoke(ctx, agentID, "PushImage", req, &resp); err != nil {
		return false, err
	}
	return resp.Pushed, nil
}
