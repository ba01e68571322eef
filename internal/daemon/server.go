package daemon

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/matheus3301/doska/internal/api"
	"github.com/matheus3301/doska/internal/instance"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Server serves the admin API on the instance's Unix domain socket.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer binds the socket. A stale socket from a crashed daemon is
// removed first; the instance lock guarantees it is not in use.
func NewServer(p Params, logger *zap.Logger, admin *api.Admin) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = instance.SocketPath(p.Instance)
	}

	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := grpc.NewServer()
	api.RegisterAdminServer(srv, admin)

	return &Server{
		grpcServer: srv,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Start serves until Stop.
func (s *Server) Start() error {
	s.logger.Info("admin server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop drains in-flight calls and removes the socket file.
func (s *Server) Stop(_ context.Context) {
	s.grpcServer.GracefulStop()
	_ = os.Remove(s.socketPath)
}
