package proxy

import (
	"crypto/x509"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureLocalCert_GeneratesOnFirstCall(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "tls", "cert.pem")
	keyPath := filepath.Join(dir, "tls", "key.pem")

	cert, err := EnsureLocalCert(certPath, keyPath)
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", leaf.Subject.CommonName)
	assert.Contains(t, leaf.DNSNames, "localhost")
	assert.True(t, time.Until(leaf.NotAfter) > 300*24*time.Hour)
}

func TestEnsureLocalCert_ReusesExisting(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")

	first, err := EnsureLocalCert(certPath, keyPath)
	require.NoError(t, err)
	second, err := EnsureLocalCert(certPath, keyPath)
	require.NoError(t, err)

	assert.Equal(t, first.Certificate[0], second.Certificate[0])
}
