package server

import (
	"crypto/tls"
	"fmt"
	"net"
)

// NewSecurityLayer picks TLS when enabled and a plain listener otherwise.
func NewSecurityLayer(enableTLS bool, certFileName, privateKeyFileName string) SecurityLayer {
	if enableTLS {
		return NewTLSListener(certFileName, privateKeyFileName)
	}
	return NewPlainListener()
}

// TLSListener serves TLS using a certificate and key loaded from disk on
// every Listen call.
type TLSListener struct {
	certFileName       string
	privateKeyFileName string
}

// NewTLSListener creates a TLSListener.
func NewTLSListener(certFileName, privateKeyFileName string) *TLSListener {
	return &TLSListener{
		certFileName:       certFileName,
		privateKeyFileName: privateKeyFileName,
	}
}

// Listen loads the key pair and opens a TLS listener on addr.
func (l *TLSListener) Listen(network, addr string) (net.Listener, error) {
	cert, err := tls.LoadX509KeyPair(l.certFileName, l.privateKeyFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}
	return tls.Listen(network, addr, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
}

// PlainListener opens unencrypted listeners. The local API binds to
// loopback by default, so this is the usual choice.
type PlainListener struct{}

// NewPlainListener creates a PlainListener.
func NewPlainListener() *PlainListener {
	return &PlainListener{}
}

// Listen opens a plain listener on addr.
func (l *PlainListener) Listen(network, addr string) (net.Listener, error) {
	return net.Listen(network, addr)
}
