package incppect

import (
	"crypto/tls"
	"fmt"
)

// serverTLSConfig builds a server-only TLS config from a cert/key PEM
// file pair. Clients are not verified; this is a debugging channel,
// not an authenticated surface, so there is no CA pool or ClientAuth
// policy.
func serverTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading server key pair: %w", err)
	}

	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}, nil
}
