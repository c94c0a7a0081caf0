package manager

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	_ "github.com/cuemby/sessiond/pkg/rpccodec"
)

// clusterServiceName is the grpc service this node's control listener
// registers. No protoc-generated stubs exist for it, so requests and
// responses travel as plain JSON-encoded structs (see pkg/rpccodec);
// the ServiceDesc below is the same shape protoc-gen-go would emit, built
// by hand.
const clusterServiceName = "sessiond.cluster.ClusterService"

// JoinRequest is sent by a node asking the leader to add it as a Raft
// voter.
type JoinRequest struct {
	NodeID   string `json:"node_id"`
	BindAddr string `json:"bind_addr"`
}

// JoinResponse carries the leader's address back to the joining node;
// Manager.Join on the joining node does not use it.
type JoinResponse struct {
	LeaderAddr string `json:"leader_addr"`
}

// clusterServer implements the control RPC surface against one Manager.
type clusterServer struct {
	manager *Manager
}

func (s *clusterServer) Join(ctx context.Context, req *JoinRequest) (*JoinResponse, error) {
	if !s.manager.IsLeader() {
		return nil, fmt.Errorf("not the leader, current leader is at: %s", s.manager.LeaderAddr())
	}
	if err := s.manager.AddVoter(req.NodeID, req.BindAddr); err != nil {
		return nil, fmt.Errorf("add voter: %w", err)
	}
	return &JoinResponse{LeaderAddr: s.manager.LeaderAddr()}, nil
}

func joinMethodHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(JoinRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*clusterServer).Join(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + clusterServiceName + "/Join"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*clusterServer).Join(ctx, req.(*JoinRequest))
	}
	return interceptor(ctx, req, info, handler)
}

var clusterServiceDesc = grpc.ServiceDesc{
	ServiceName: clusterServiceName,
	HandlerType: (*clusterServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Join", Handler: joinMethodHandler},
	},
}

// controlServer hosts the cluster-control grpc listener a leader uses to
// accept join requests from new voters.
type controlServer struct {
	grpc *grpc.Server
	lis  net.Listener
}

func newControlServer(mgr *Manager, addr string) (*controlServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on control addr %s: %w", addr, err)
	}

	srv := grpc.NewServer()
	srv.RegisterService(&clusterServiceDesc, &clusterServer{manager: mgr})

	return &controlServer{grpc: srv, lis: lis}, nil
}

func (c *controlServer) start() {
	go c.grpc.Serve(c.lis)
}

func (c *controlServer) stop() {
	c.grpc.GracefulStop()
}

// joinCluster dials leaderAddr's control listener and asks it to add this
// node as a Raft voter, returning the leader's address as it sees it.
func joinCluster(ctx context.Context, leaderAddr, nodeID, bindAddr string) (string, error) {
	conn, err := grpc.NewClient(leaderAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return "", fmt.Errorf("dial leader %s: %w", leaderAddr, err)
	}
	defer conn.Close()

	req := &JoinRequest{NodeID: nodeID, BindAddr: bindAddr}
	resp := new(JoinResponse)
	if err := conn.Invoke(ctx, "/"+clusterServiceName+"/Join", req, resp, grpc.CallContentSubtype("json")); err != nil {
		return "", fmt.Errorf("join rpc: %w", err)
	}
	return resp.LeaderAddr, nil
}
