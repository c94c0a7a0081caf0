package manager

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, nodeID string, raftPort, controlPort int) *Manager {
	t.Helper()
	mgr, err := NewManager(&Config{
		NodeID:      nodeID,
		BindAddr:    fmt.Sprintf("127.0.0.1:%d", raftPort),
		ControlAddr: fmt.Sprintf("127.0.0.1:%d", controlPort),
		DataDir:     t.TempDir(),
	})
	require.NoError(t, err)
	return mgr
}

// waitForLeader polls until one of managers reports itself as Raft leader,
// failing the test if none does before the deadline.
func waitForLeader(t *testing.T, deadline time.Duration, managers ...*Manager) *Manager {
	t.Helper()
	until := time.Now().Add(deadline)
	for time.Now().Before(until) {
		for _, m := range managers {
			if m.IsLeader() {
				return m
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("no leader elected within deadline")
	return nil
}

func TestManager_BootstrapBecomesLeader(t *testing.T) {
	mgr := newTestManager(t, "node-1", 31100, 31101)
	defer mgr.Close()

	require.NoError(t, mgr.Bootstrap())
	waitForLeader(t, 10*time.Second, mgr)
}

// TestManager_LeaderFailoverElectsNewLeader grounds SPEC_FULL.md §8's
// leader-failover scenario: a three-node cluster re-elects a leader from
// its remaining voters once the current leader's Raft instance goes away.
func TestManager_LeaderFailoverElectsNewLeader(t *testing.T) {
	leader := newTestManager(t, "node-a", 31110, 31111)
	defer leader.Close()
	require.NoError(t, leader.Bootstrap())
	waitForLeader(t, 10*time.Second, leader)

	follower1 := newTestManager(t, "node-b", 31112, 31113)
	defer follower1.Close()
	require.NoError(t, follower1.Join(leader.controlAddr))

	follower2 := newTestManager(t, "node-c", 31114, 31115)
	defer follower2.Close()
	require.NoError(t, follower2.Join(leader.controlAddr))

	waitForLeader(t, 10*time.Second, leader, follower1, follower2)
	originalLeaderAddr := leader.LeaderAddr()

	require.NoError(t, leader.raft.Shutdown().Error())

	newLeader := waitForLeader(t, 15*time.Second, follower1, follower2)
	require.NotEqual(t, originalLeaderAddr, newLeader.LeaderAddr())
}
