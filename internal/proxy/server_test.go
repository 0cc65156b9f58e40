package proxy

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tech4242/aquaman/internal/audit"
	"github.com/tech4242/aquaman/internal/credential"
	"github.com/tech4242/aquaman/internal/registry"
)

func newServingProxy(t *testing.T) *Proxy {
	t.Helper()
	auditLog, err := audit.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { auditLog.Close() })

	p, err := New(registry.New(), []string{"anthropic"}, credential.NewMemoryStore(), auditLog)
	require.NoError(t, err)
	return p
}

func TestServer_ListenUnix(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "aquaman.sock")
	srv := NewServer(newServingProxy(t))
	require.NoError(t, srv.ListenUnix(socketPath))
	require.NoError(t, srv.Serve())
	defer srv.Stop(context.Background())

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", socketPath)
			},
		},
	}
	resp, err := client.Get("http://unix/_health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "", srv.Port())
}

func TestServer_ListenTCP(t *testing.T) {
	srv := NewServer(newServingProxy(t))
	require.NoError(t, srv.ListenTCP(0, nil))
	require.NoError(t, srv.Serve())
	defer srv.Stop(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/_health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, srv.Port())
}

func TestServer_ListenTCP_WithTLS(t *testing.T) {
	dir := t.TempDir()
	cert, err := EnsureLocalCert(filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem"))
	require.NoError(t, err)

	srv := NewServer(newServingProxy(t))
	require.NoError(t, srv.ListenTCP(0, &cert))
	require.NoError(t, srv.Serve())
	defer srv.Stop(context.Background())

	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	resp, err := client.Get("https://" + srv.Addr() + "/_health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Stop_NoopWhenNotStarted(t *testing.T) {
	srv := NewServer(newServingProxy(t))
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestServer_Stop_DrainsWithinTimeout(t *testing.T) {
	srv := NewServer(newServingProxy(t))
	require.NoError(t, srv.ListenTCP(0, nil))
	require.NoError(t, srv.Serve())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, srv.Stop(ctx))
}
