package proxy

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// certValidity is how long a generated leaf certificate is valid for.
const certValidity = 365 * 24 * time.Hour

// certRenewWindow is how close to expiry EnsureLocalCert regenerates the
// certificate on its own.
const certRenewWindow = 30 * 24 * time.Hour

// EnsureLocalCert loads the TLS cert/key at certPath/keyPath, generating a
// fresh self-signed leaf for 127.0.0.1/localhost if none exists or the
// existing one is within certRenewWindow of expiry. TLS here exists only to
// satisfy clients that refuse plain HTTP to a loopback address — it is not
// a security boundary, since the proxy never terminates TLS for anything
// but the local agent client.
func EnsureLocalCert(certPath, keyPath string) (tls.Certificate, error) {
	if cert, err := tls.LoadX509KeyPair(certPath, keyPath); err == nil {
		if leaf, err := x509.ParseCertificate(cert.Certificate[0]); err == nil {
			if time.Until(leaf.NotAfter) > certRenewWindow {
				return cert, nil
			}
		}
	}

	cert, certPEM, keyPEM, err := generateLocalCert()
	if err != nil {
		return tls.Certificate{}, err
	}

	if dir := filepath.Dir(certPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return tls.Certificate{}, fmt.Errorf("creating tls directory: %w", err)
		}
	}
	if err := os.WriteFile(certPath, certPEM, 0600); err != nil {
		return tls.Certificate{}, fmt.Errorf("writing tls cert: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return tls.Certificate{}, fmt.Errorf("writing tls key: %w", err)
	}
	return cert, nil
}

// generateLocalCert creates an Ed25519 leaf certificate for CN=127.0.0.1
// with SANs 127.0.0.1 and localhost, self-signed with no intermediate CA:
// this proxy terminates TLS from the local client only, it never re-signs
// per-upstream-host certificates.
func generateLocalCert() (tls.Certificate, []byte, []byte, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return tls.Certificate{}, nil, nil, fmt.Errorf("generating tls key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return tls.Certificate{}, nil, nil, fmt.Errorf("generating serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(certValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		return tls.Certificate{}, nil, nil, fmt.Errorf("creating tls certificate: %w", err)
	}

	keyBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, nil, nil, fmt.Errorf("marshaling tls key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, nil, nil, fmt.Errorf("loading generated tls cert: %w", err)
	}
	return cert, certPEM, keyPEM, nil
}
