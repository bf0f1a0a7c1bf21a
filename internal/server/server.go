// Package server runs the local API listeners.
package server

import (
	"context"
	"net"
)

// SecurityLayer opens the listener a server accepts connections on.
type SecurityLayer interface {
	Listen(network, addr string) (net.Listener, error)
}

// Server is a long-running listener with graceful shutdown.
type Server interface {
	Start(securityLayer SecurityLayer) error
	Stop(ctx context.Context) error
	Address() string
}
