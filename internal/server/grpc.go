package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

// GRPCServer runs a gRPC server on a fixed address.
type GRPCServer struct {
	server *grpc.Server
	addr   string
}

// NewGRPCServer creates a GRPCServer.
func NewGRPCServer(server *grpc.Server, addr string) *GRPCServer {
	return &GRPCServer{server: server, addr: addr}
}

// Start blocks serving on the configured address until Stop is called.
func (s *GRPCServer) Start(securityLayer SecurityLayer) error {
	listener, err := securityLayer.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.server.Serve(listener)
}

// Stop drains in-flight calls, forcing the server down if ctx expires first.
func (s *GRPCServer) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return ctx.Err()
	}
}

// Address returns the configured listen address.
func (s *GRPCServer) Address() string {
	return s.addr
}
