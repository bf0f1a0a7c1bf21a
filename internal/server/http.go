package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const readHeaderTimeout = 5 * time.Second

// HTTPServer runs an http.Handler on a fixed address.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer creates an HTTPServer.
func NewHTTPServer(handler http.Handler, addr string) *HTTPServer {
	return &HTTPServer{server: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}}
}

// Start blocks serving on the configured address. It returns nil after Stop.
func (s *HTTPServer) Start(securityLayer SecurityLayer) error {
	listener, err := securityLayer.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down, waiting for active requests until ctx expires.
func (s *HTTPServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Address returns the configured listen address.
func (s *HTTPServer) Address() string {
	return s.server.Addr
}
