package certs

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaf(t *testing.T, cert tls.Certificate) *x509.Certificate {
	t.Helper()
	require.Len(t, cert.Certificate, 1)
	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	return parsed
}

func TestGetOrCreateCertificate(t *testing.T) {
	tests := []struct {
		setup     func(t *testing.T, m *FileManager)
		name      string
		wantFresh bool
	}{
		{
			name:      "creates when missing",
			setup:     func(*testing.T, *FileManager) {},
			wantFresh: true,
		},
		{
			name: "reuses a valid certificate",
			setup: func(t *testing.T, m *FileManager) {
				t.Helper()
				m.now = func() time.Time { return time.Now().Add(-time.Hour) }
				_, err := m.GetOrCreateCertificate()
				require.NoError(t, err)
				m.now = time.Now
			},
		},
		{
			name: "replaces unreadable files",
			setup: func(t *testing.T, m *FileManager) {
				t.Helper()
				require.NoError(t, os.MkdirAll(m.certDir, 0700))
				require.NoError(t, os.WriteFile(m.certFile, []byte("garbage"), 0600))
				require.NoError(t, os.WriteFile(m.keyFile, []byte("garbage"), 0600))
			},
			wantFresh: true,
		},
		{
			name: "replaces a certificate about to expire",
			setup: func(t *testing.T, m *FileManager) {
				t.Helper()
				m.now = func() time.Time { return time.Now().Add(-validFor + time.Hour) }
				_, err := m.GetOrCreateCertificate()
				require.NoError(t, err)
				m.now = time.Now
			},
			wantFresh: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewFileManager(filepath.Join(t.TempDir(), "certs"))
			tt.setup(t, m)

			cert, err := m.GetOrCreateCertificate()
			require.NoError(t, err)

			parsed := leaf(t, cert)
			assert.NoError(t, parsed.VerifyHostname("localhost"))
			assert.NoError(t, parsed.VerifyHostname("127.0.0.1"))
			assert.Equal(t, []string{"GigProof"}, parsed.Subject.Organization)

			fresh := parsed.NotBefore.After(time.Now().Add(-10 * time.Minute))
			assert.Equal(t, tt.wantFresh, fresh)
		})
	}
}

func TestGetOrCreateCertificate_DirectoryIsAFile(t *testing.T) {
	certDir := filepath.Join(t.TempDir(), "certs")
	require.NoError(t, os.WriteFile(certDir, []byte("not a directory"), 0600))

	_, err := NewFileManager(certDir).GetOrCreateCertificate()
	assert.Error(t, err)
}

func TestCertificateExists(t *testing.T) {
	m := NewFileManager(t.TempDir())

	exists, err := m.CertificateExists()
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, os.WriteFile(m.certFile, []byte("x"), 0600))
	exists, err = m.CertificateExists()
	require.NoError(t, err)
	assert.False(t, exists, "key still missing")

	require.NoError(t, os.WriteFile(m.keyFile, []byte("x"), 0600))
	exists, err = m.CertificateExists()
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestKeyFilePermissions(t *testing.T) {
	m := NewFileManager(t.TempDir())
	_, err := m.GetOrCreateCertificate()
	require.NoError(t, err)

	info, err := os.Stat(m.keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

type failingManager struct{}

func (failingManager) GetOrCreateCertificate() (tls.Certificate, error) {
	return tls.Certificate{}, errors.New("disk full")
}

func TestTLSConfig(t *testing.T) {
	cfg, err := TLSConfig(NewFileManager(t.TempDir()))
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)

	_, err = TLSConfig(failingManager{})
	assert.EqualError(t, err, "disk full")
}
