// Package manager wires the Raft consensus layer to the embedded store and
// hosts the control listener new voters use to join the cluster. The
// scheduling coordinator (pkg/scheduler) and health monitor (pkg/health)
// run alongside it on every node; Raft leadership does not decide which
// node's coordinator is active.
package manager

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/cuemby/sessiond/pkg/events"
	"github.com/cuemby/sessiond/pkg/storage"
)

// Manager owns one node's Raft participation: the consensus instance, its
// backing FSM and store, and the control listener used to admit new
// voters.
type Manager struct {
	nodeID      string
	bindAddr    string
	controlAddr string
	dataDir     string

	raft        *raft.Raft
	fsm         *FSM
	store       storage.Store
	eventBroker *events.Broker
	control     *controlServer
}

// Config holds the identity and addressing a Manager needs to join or
// bootstrap a cluster.
type Config struct {
	NodeID      string
	BindAddr    string
	ControlAddr string
	DataDir     string
}

// NewManager creates a Manager with a fresh BoltDB store and FSM, but does
// not yet start Raft; call Bootstrap or Join for that.
func NewManager(cfg *Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	fsm := NewFSM(store)

	eventBroker := events.NewBroker()
	eventBroker.Start()

	return &Manager{
		nodeID:      cfg.NodeID,
		bindAddr:    cfg.BindAddr,
		controlAddr: cfg.ControlAddr,
		dataDir:     cfg.DataDir,
		fsm:         fsm,
		store:       store,
		eventBroker: eventBroker,
	}, nil
}

// NodeID returns this node's Raft server ID.
func (m *Manager) NodeID() string { return m.nodeID }

// Store returns the embedded store backing the FSM, the repository
// contracts the scheduling coordinator and health monitor read from.
func (m *Manager) Store() storage.Store { return m.store }

func (m *Manager) raftConfig() *raft.Config {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)

	// Hashicorp Raft's defaults (HeartbeatTimeout=1s, ElectionTimeout=1s,
	// LeaderLeaseTimeout=500ms) target WAN deployments; this cluster runs
	// on a LAN/edge network, so failover can be tightened considerably.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond
	return config
}

func (m *Manager) setupRaft(config *raft.Config) (*raft.TCPTransport, error) {
	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("create stable store: %w", err)
	}

	r, err := raft.NewRaft(config, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("create raft: %w", err)
	}
	m.raft = r
	return transport, nil
}

// Bootstrap initializes a brand-new single-node Raft cluster and starts
// the control listener new voters will dial.
func (m *Manager) Bootstrap() error {
	transport, err := m.setupRaft(m.raftConfig())
	if err != nil {
		return err
	}

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{ID: raft.ServerID(m.nodeID), Address: transport.LocalAddr()},
		},
	}
	if err := m.raft.BootstrapCluster(configuration).Error(); err != nil {
		return fmt.Errorf("bootstrap cluster: %w", err)
	}

	return m.startControlServer()
}

// Join starts Raft on this node and asks the leader at leaderAddr to add
// it as a voter, then starts this node's own control listener so it can
// in turn admit future voters if it is later elected leader.
func (m *Manager) Join(leaderAddr string) error {
	if _, err := m.setupRaft(m.raftConfig()); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resolvedLeader, err := joinCluster(ctx, leaderAddr, m.nodeID, m.bindAddr)
	if err != nil {
		return fmt.Errorf("join cluster via %s: %w", leaderAddr, err)
	}
	_ = resolvedLeader

	return m.startControlServer()
}

func (m *Manager) startControlServer() error {
	control, err := newControlServer(m, m.controlAddr)
	if err != nil {
		return fmt.Errorf("start control listener: %w", err)
	}
	control.start()
	m.control = control
	return nil
}

// Close stops the control listener, the event broker, and the store.
func (m *Manager) Close() error {
	if m.control != nil {
		m.control.stop()
	}
	m.eventBroker.Stop()
	return m.store.Close()
}

// AddVoter adds a new node to the Raft cluster. Only the leader may call
// this successfully.
func (m *Manager) AddVoter(nodeID, address string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", m.LeaderAddr())
	}
	if err := m.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second).Error(); err != nil {
		return fmt.Errorf("add voter: %w", err)
	}
	return nil
}

// RemoveServer removes a node from the Raft cluster. Only the leader may
// call this successfully.
func (m *Manager) RemoveServer(nodeID string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader")
	}
	if err := m.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second).Error(); err != nil {
		return fmt.Errorf("remove server: %w", err)
	}
	return nil
}

// GetClusterServers returns every server Raft currently knows about.
func (m *Manager) GetClusterServers() ([]raft.Server, error) {
	if m.raft == nil {
		return nil, fmt.Errorf("raft not initialized")
	}
	future := m.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("get configuration: %w", err)
	}
	return future.Configuration().Servers, nil
}

// IsLeader reports whether this node currently holds Raft leadership.
func (m *Manager) IsLeader() bool {
	return m.raft != nil && m.raft.State() == raft.Leader
}

// LeaderAddr returns the current Raft leader's address, or "" if none is
// known.
func (m *Manager) LeaderAddr() string {
	if m.raft == nil {
		return ""
	}
	return string(m.raft.Leader())
}

// GetRaftStats reports a snapshot of Raft's internal state for the status
// CLI command and the metrics collector.
func (m *Manager) GetRaftStats() map[string]interface{} {
	if m.raft == nil {
		return nil
	}

	stats := map[string]interface{}{
		"state":          m.raft.State().String(),
		"last_log_index": m.raft.LastIndex(),
		"applied_index":  m.raft.AppliedIndex(),
		"leader":         string(m.raft.Leader()),
	}

	configFuture := m.raft.GetConfiguration()
	if err := configFuture.Error(); err == nil {
		stats["peers"] = uint64(len(configFuture.Configuration().Servers))
	} else {
		stats["peers"] = uint64(0)
	}

	return stats
}

// GetEventBroker returns the cluster's event bus.
func (m *Manager) GetEventBroker() *events.Broker {
	return m.eventBroker
}

// PublishEvent publishes event to every subscriber of the event bus.
func (m *Manager) PublishEvent(event *events.Event) {
	m.eventBroker.Publish(event)
}
