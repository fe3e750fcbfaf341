package client

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// tlsConfigFromCAFile builds a *tls.Config that trusts the CA certificate at
// path, for use with a server that presents a certificate signed by a
// private CA.
func tlsConfigFromCAFile(path string) (*tls.Config, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read server_key: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("server_key does not contain a valid PEM certificate")
	}
	return &tls.Config{RootCAs: pool}, nil
}
