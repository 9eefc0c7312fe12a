// Package certs keeps the self-signed localhost certificate that the bank
// Link page is served with when Plaid requires an HTTPS redirect.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	certName = "localhost.crt"
	keyName  = "localhost.key"
	validFor = 365 * 24 * time.Hour

	// Regenerate ahead of expiry so a Link session never straddles it.
	renewBefore = 24 * time.Hour
)

// Manager supplies a certificate for the local Link server.
type Manager interface {
	GetOrCreateCertificate() (tls.Certificate, error)
}

// FileManager stores the certificate and key as PEM files in one directory.
type FileManager struct {
	now      func() time.Time
	logger   *slog.Logger
	certDir  string
	certFile string
	keyFile  string
}

var _ Manager = (*FileManager)(nil)

// NewFileManager creates a FileManager rooted at certDir.
func NewFileManager(certDir string) *FileManager {
	return &FileManager{
		now:      time.Now,
		logger:   slog.Default().With("component", "certs"),
		certDir:  certDir,
		certFile: filepath.Join(certDir, certName),
		keyFile:  filepath.Join(certDir, keyName),
	}
}

// GetOrCreateCertificate loads the saved certificate, replacing it when it
// is unreadable, expiring or not valid for localhost.
func (m *FileManager) GetOrCreateCertificate() (tls.Certificate, error) {
	exists, err := m.CertificateExists()
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to check certificate: %w", err)
	}

	if exists {
		cert, loadErr := tls.LoadX509KeyPair(m.certFile, m.keyFile)
		if loadErr == nil {
			loadErr = m.verifyCertificate(cert)
		}
		if loadErr == nil {
			return cert, nil
		}
		m.logger.Info("Regenerating local certificate", "reason", loadErr)
	}

	return m.generateCertificate()
}

// CertificateExists reports whether both the certificate and key are on disk.
func (m *FileManager) CertificateExists() (bool, error) {
	for _, path := range []string{m.certFile, m.keyFile} {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return false, nil
			}
			return false, err
		}
	}
	return true, nil
}

func (m *FileManager) generateCertificate() (tls.Certificate, error) {
	if err := os.MkdirAll(m.certDir, 0700); err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to create certificate directory: %w", err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := m.now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"GigProof"}, CommonName: "localhost"},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:              []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to encode key: %w", err)
	}

	if err := writePEM(m.certFile, "CERTIFICATE", der); err != nil {
		return tls.Certificate{}, err
	}
	if err := writePEM(m.keyFile, "EC PRIVATE KEY", keyDER); err != nil {
		return tls.Certificate{}, err
	}

	m.logger.Info("Created local certificate", "path", m.certFile, "expires", template.NotAfter.Format(time.DateOnly))
	return tls.LoadX509KeyPair(m.certFile, m.keyFile)
}

func (m *FileManager) verifyCertificate(cert tls.Certificate) error {
	if len(cert.Certificate) == 0 {
		return errors.New("no certificates found")
	}

	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}

	now := m.now()
	if now.Before(parsed.NotBefore) {
		return errors.New("certificate not yet valid")
	}
	if now.Add(renewBefore).After(parsed.NotAfter) {
		return errors.New("certificate expires within a day")
	}
	return parsed.VerifyHostname("localhost")
}

func writePEM(path, blockType string, der []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = f.Close() }()

	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// TLSConfig builds a server TLS configuration around m's certificate.
func TLSConfig(m Manager) (*tls.Config, error) {
	cert, err := m.GetOrCreateCertificate()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
