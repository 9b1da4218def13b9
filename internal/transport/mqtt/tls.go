package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

var ErrBadCA = errors.New("mqtt: no certificates in CA file")

// TLSConfig builds the client TLS settings for a. System roots are used
// unless CAFile is set; CertFile and KeyFile enable client authentication
// and must be set together.
func TLSConfig(a Address) (*tls.Config, error) {
	cfg := &tls.Config{ServerName: a.Broker, MinVersion: tls.VersionTLS12}
	if a.CAFile != "" {
		pem, err := os.ReadFile(a.CAFile)
		if err != nil {
			return nil, fmt.Errorf("mqtt: read ca %s: %w", a.CAFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: %s", ErrBadCA, a.CAFile)
		}
		cfg.RootCAs = pool
	}
	if (a.CertFile == "") != (a.KeyFile == "") {
		return nil, fmt.Errorf("mqtt: cert_file and key_file must be set together")
	}
	if a.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(a.CertFile, a.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("mqtt: load client cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
