package mqtt

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/pkcs12"
)

// Supported values of TLSProfile.Protocol.
const (
	protocolTLS12 = "1.2"
	protocolTLS13 = "1.3"
)

// newTLSConfig turns a TLS profile into a client tls.Config for host.
func newTLSConfig(host string, profile *TLSProfile) (*tls.Config, error) {
	version, err := resolveProtocol(profile.Protocol)
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		ServerName: host,
		MinVersion: version,
		MaxVersion: version,
	}

	if err := loadCertificates(cfg, profile.Certificates); err != nil {
		return nil, err
	}

	switch {
	case profile.AllowUntrustedCertificates:
		cfg.InsecureSkipVerify = true //nolint:gosec // explicitly requested by the operator
	case profile.IgnoreCertificateChainErrors:
		// Chain building is skipped, the leaf must still be current and
		// issued for the host.
		cfg.InsecureSkipVerify = true //nolint:gosec // leaf is checked in verifyLeaf
		cfg.VerifyPeerCertificate = verifyLeaf(host)
	}

	// crypto/tls never checks revocation, so IgnoreCertificateRevocationErrors
	// needs no translation.

	return cfg, nil
}

// resolveProtocol maps a protocol string onto a pinned TLS version.
func resolveProtocol(protocol string) (uint16, error) {
	switch strings.TrimSpace(protocol) {
	case "", protocolTLS12:
		return tls.VersionTLS12, nil
	case protocolTLS13:
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("%w: %w: %q", ErrConfiguration, ErrUnsupportedProtocol, protocol)
	}
}

// loadCertificates reads each certificate source in order.
//
// Accepted formats:
//   - PEM containing a private key: client certificate and key
//   - PEM without a private key: trusted root certificate(s)
//   - anything else: PKCS#12 bundle, decoded with the pass phrase
func loadCertificates(cfg *tls.Config, sources []CertificateSource) error {
	for _, src := range sources {
		data, err := os.ReadFile(src.File)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: %s", ErrCertificateNotFound, src.File)
			}
			return fmt.Errorf("%w: reading certificate %s: %w", ErrConfiguration, src.File, err)
		}

		if !isPEM(data) {
			cert, err := decodePKCS12(data, src.PassPhrase)
			if err != nil {
				return fmt.Errorf("%w: certificate %s: %w", ErrConfiguration, src.File, err)
			}
			cfg.Certificates = append(cfg.Certificates, cert)
			continue
		}

		if src.PassPhrase != "" {
			return fmt.Errorf("%w: certificate %s: pass phrase only applies to PKCS#12 bundles", ErrConfiguration, src.File)
		}

		if hasPrivateKey(data) {
			cert, err := tls.X509KeyPair(data, data)
			if err != nil {
				return fmt.Errorf("%w: certificate %s: %w", ErrConfiguration, src.File, err)
			}
			cfg.Certificates = append(cfg.Certificates, cert)
			continue
		}

		if cfg.RootCAs == nil {
			cfg.RootCAs = x509.NewCertPool()
		}
		if !cfg.RootCAs.AppendCertsFromPEM(data) {
			return fmt.Errorf("%w: certificate %s: no certificates found", ErrConfiguration, src.File)
		}
	}
	return nil
}

func isPEM(data []byte) bool {
	return bytes.Contains(data, []byte("-----BEGIN "))
}

func hasPrivateKey(data []byte) bool {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return false
		}
		if strings.HasSuffix(block.Type, "PRIVATE KEY") {
			return true
		}
	}
}

func decodePKCS12(data []byte, passPhrase string) (tls.Certificate, error) {
	key, leaf, err := pkcs12.Decode(data, passPhrase)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decoding PKCS#12 bundle: %w", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{leaf.Raw},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

// verifyLeaf checks the validity window and host name of the peer's leaf
// certificate without building a chain.
func verifyLeaf(host string) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return errors.New("mqtt: broker presented no certificate")
		}
		leaf, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("mqtt: parsing broker certificate: %w", err)
		}

		now := time.Now()
		if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
			return fmt.Errorf("mqtt: broker certificate not valid at %s", now.Format(time.RFC3339))
		}
		return leaf.VerifyHostname(host)
	}
}
